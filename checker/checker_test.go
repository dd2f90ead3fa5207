package checker

import (
	"testing"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bvbohnen/x4vfs/extension"
)

func writeFile(t *testing.T, fs billy.Filesystem, path, content string) {
	t.Helper()
	f, err := fs.Create(path)
	require.NoError(t, err)
	_, err = f.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

// buildOrderSensitiveFixture lays out a base game file plus two
// extensions: "b" inserts a node, "a" patches a node only "b" creates,
// but "a" declares no dependency on "b". Alphabetical load order puts
// "a" before "b", so "a"'s patch fails; a "late" order puts "a" after
// "b", so it succeeds.
func buildOrderSensitiveFixture(t *testing.T) (billy.Filesystem, *extension.Record, []*extension.Record) {
	t.Helper()
	fs := memfs.New()

	writeFile(t, fs, "libraries/jobs.xml", `<jobs><job id="base"/></jobs>`)

	writeFile(t, fs, "extensions/a/content.xml", `<content id="a" name="A" version="1"/>`)
	writeFile(t, fs, "extensions/a/libraries/jobs.xml",
		`<diff><add sel="//job[@id='extra']" pos="prepend"><job id="from_a"/></add></diff>`)

	writeFile(t, fs, "extensions/b/content.xml", `<content id="b" name="B" version="1"/>`)
	writeFile(t, fs, "extensions/b/libraries/jobs.xml",
		`<diff><add sel="//jobs" pos="append"><job id="extra"/></add></diff>`)

	records, warnings, err := extension.Discover(fs, []string{""}, extension.Config{})
	require.NoError(t, err)
	require.Empty(t, warnings)
	require.Len(t, records, 2)

	var a *extension.Record
	for _, r := range records {
		if r.FolderID == "a" {
			a = r
		}
	}
	require.NotNil(t, a)

	return fs, a, records
}

func TestCheckAlphabeticalFailsOnMissingOrderDependency(t *testing.T) {
	fs, a, all := buildOrderSensitiveFixture(t)

	report, err := Check(fs, a, all, []string{""}, Config{})
	require.NoError(t, err)
	require.Len(t, report.Orders, 1)
	assert.Equal(t, Alphabetical, report.Orders[0].Order)
	assert.NotEmpty(t, report.Orders[0].Failures)
	assert.True(t, report.Failed())
}

func TestCheckLatestOrderSucceedsWhereAlphabeticalFails(t *testing.T) {
	fs, a, all := buildOrderSensitiveFixture(t)

	report, err := Check(fs, a, all, []string{""}, Config{CheckEarliestAndLatest: true})
	require.NoError(t, err)
	require.Len(t, report.Orders, 3)

	byOrder := make(map[Order]OrderFailure)
	for _, o := range report.Orders {
		byOrder[o.Order] = o
	}

	assert.NotEmpty(t, byOrder[Alphabetical].Failures)
	assert.NotEmpty(t, byOrder[Earliest].Failures)
	assert.Empty(t, byOrder[Latest].Failures)
}

func TestReportFailedFalseWhenNoFailures(t *testing.T) {
	report := &Report{
		FolderID: "clean",
		Orders: []OrderFailure{
			{Order: Alphabetical},
		},
	}
	assert.False(t, report.Failed())
}
