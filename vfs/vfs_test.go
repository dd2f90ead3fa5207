package vfs

import (
	"context"
	"testing"

	"github.com/beevik/etree"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bvbohnen/x4vfs/catalog"
	"github.com/bvbohnen/x4vfs/source"
)

func openLocation(t *testing.T, originExtensionID string, files map[string]string) *source.Location {
	t.Helper()
	fs := memfs.New()
	w := catalog.NewWriter(fs, "01.cat", "01.dat")
	var i int64
	for path, data := range files {
		i++
		w.Add(path, []byte(data), i)
	}
	require.NoError(t, w.Close())

	loc, err := source.Open(fs, "", false, originExtensionID)
	require.NoError(t, err)
	return loc
}

func TestVFSBaseOnlyRead(t *testing.T) {
	base := openLocation(t, "", map[string]string{
		"libraries/jobs.xml": "<jobs/>",
	})

	v, err := New(Config{}, base)
	require.NoError(t, err)

	root, err := v.GetRoot("libraries/JOBS.xml")
	require.NoError(t, err)
	assert.Equal(t, "jobs", root.Root().Tag)
}

func TestVFSExtensionPatch(t *testing.T) {
	base := openLocation(t, "", map[string]string{
		"libraries/jobs.xml": `<jobs><job id="a" quota="10"/></jobs>`,
	})
	extX := openLocation(t, "x", map[string]string{
		"libraries/jobs.xml": `<diff><replace sel="//job[@id='a']/@quota">20</replace></diff>`,
	})

	v, err := New(Config{}, base, extX)
	require.NoError(t, err)

	root, err := v.GetRoot("libraries/jobs.xml")
	require.NoError(t, err)
	job := root.FindElement("//job[@id='a']")
	require.NotNil(t, job)
	assert.Equal(t, "20", job.SelectAttrValue("quota", ""))

	assert.Contains(t, v.OriginatingExtensions("libraries/jobs.xml"), "x")
}

func TestVFSTwoConflictingExtensionsLastWins(t *testing.T) {
	base := openLocation(t, "", map[string]string{
		"libraries/jobs.xml": `<jobs><job id="a" quota="10"/></jobs>`,
	})
	// y loads before x (x depends on y), so x's patch applies last and wins.
	extY := openLocation(t, "y", map[string]string{
		"libraries/jobs.xml": `<diff><replace sel="//job[@id='a']/@quota">20</replace></diff>`,
	})
	extX := openLocation(t, "x", map[string]string{
		"libraries/jobs.xml": `<diff><replace sel="//job[@id='a']/@quota">30</replace></diff>`,
	})

	v, err := New(Config{}, base, extY, extX)
	require.NoError(t, err)

	root, err := v.GetRoot("libraries/jobs.xml")
	require.NoError(t, err)
	job := root.FindElement("//job[@id='a']")
	require.NotNil(t, job)
	assert.Equal(t, "30", job.SelectAttrValue("quota", ""))

	origins := v.OriginatingExtensions("libraries/jobs.xml")
	assert.Equal(t, []string{"y", "x"}, origins)
}

func TestVFSFullReplacementFromExtensionSkipsBasePatches(t *testing.T) {
	base := openLocation(t, "", map[string]string{
		"libraries/jobs.xml": `<jobs><job id="a" quota="10"/></jobs>`,
	})
	extReplace := openLocation(t, "r", map[string]string{
		"libraries/jobs.xml": `<jobs><job id="a" quota="999"/></jobs>`,
	})

	v, err := New(Config{}, base, extReplace)
	require.NoError(t, err)

	root, err := v.GetRoot("libraries/jobs.xml")
	require.NoError(t, err)
	job := root.FindElement("//job[@id='a']")
	require.NotNil(t, job)
	assert.Equal(t, "999", job.SelectAttrValue("quota", ""))
}

func TestVFSListFilesAcrossSources(t *testing.T) {
	base := openLocation(t, "", map[string]string{
		"libraries/jobs.xml":  "<jobs/>",
		"libraries/wares.xml": "<wares/>",
	})
	ext := openLocation(t, "x", map[string]string{
		"libraries/newstuff.xml": "<newstuff/>",
	})

	v, err := New(Config{}, base, ext)
	require.NoError(t, err)

	got, err := v.ListFiles("libraries/*.xml")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"libraries/jobs.xml", "libraries/wares.xml", "libraries/newstuff.xml",
	}, got)
}

func TestVFSUpdateRootTracksModifiedPaths(t *testing.T) {
	base := openLocation(t, "", map[string]string{
		"libraries/jobs.xml": `<jobs><job id="a"/></jobs>`,
	})

	v, err := New(Config{}, base)
	require.NoError(t, err)

	root, err := v.GetRoot("libraries/jobs.xml")
	require.NoError(t, err)
	root.FindElement("//job[@id='a']").CreateAttr("quota", "1")
	require.NoError(t, v.UpdateRoot("libraries/jobs.xml", root))

	assert.Equal(t, []string{"libraries/jobs.xml"}, v.ModifiedPaths())

	patched, err := v.PatchedBase("libraries/jobs.xml")
	require.NoError(t, err)
	assert.Nil(t, patched.FindElement("//job[@id='a']").SelectAttr("quota"))
}

func TestVFSHookTreeEdits(t *testing.T) {
	base := openLocation(t, "", map[string]string{
		"libraries/jobs.xml": `<jobs><job id="a"/></jobs>`,
	})

	v, err := New(Config{}, base)
	require.NoError(t, err)

	err = v.HookTreeEdits("libraries/jobs.xml", func(root *etree.Document) error {
		root.FindElement("//job[@id='a']").CreateAttr("edited", "true")
		return nil
	})
	require.NoError(t, err)

	root, err := v.GetRoot("libraries/jobs.xml")
	require.NoError(t, err)
	assert.Equal(t, "true", root.FindElement("//job[@id='a']").SelectAttrValue("edited", ""))
	assert.Contains(t, v.ModifiedPaths(), "libraries/jobs.xml")
}

func TestVFSWarmUpLoadsEveryPath(t *testing.T) {
	base := openLocation(t, "", map[string]string{
		"libraries/jobs.xml":  "<jobs/>",
		"libraries/wares.xml": "<wares/>",
	})

	v, err := New(Config{}, base)
	require.NoError(t, err)

	err = v.WarmUp(context.Background(), []string{"libraries/jobs.xml", "libraries/wares.xml"})
	require.NoError(t, err)

	v.mu.RLock()
	n := len(v.handles)
	v.mu.RUnlock()
	assert.Equal(t, 2, n)
}

func TestVFSMissingFile(t *testing.T) {
	base := openLocation(t, "", map[string]string{
		"libraries/jobs.xml": "<jobs/>",
	})
	v, err := New(Config{}, base)
	require.NoError(t, err)

	_, err = v.LoadFile("libraries/missing.xml")
	assert.ErrorIs(t, err, ErrNotFound)
}
