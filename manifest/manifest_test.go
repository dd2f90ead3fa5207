package manifest

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBasic(t *testing.T) {
	xml := `<content id="my_ext" name="My Extension" version="1.2.3" save="true">
		<dependency id="base_ext" version="2" optional="false"/>
		<dependency id="soft_ext" optional="true"/>
	</content>`

	rec, err := Parse(strings.NewReader(xml), "folder_name")
	require.NoError(t, err)
	assert.Equal(t, "my_ext", rec.ID)
	assert.Equal(t, "My Extension", rec.Name)
	assert.Equal(t, "1.2.3", rec.Version.String())
	assert.True(t, rec.Save)
	require.Len(t, rec.Dependencies, 2)
	assert.Equal(t, "base_ext", rec.Dependencies[0].ID)
	assert.False(t, rec.Dependencies[0].Optional)
	assert.True(t, rec.Dependencies[1].Optional)
}

func TestParseMissingIDFallsBackToFolder(t *testing.T) {
	rec, err := Parse(strings.NewReader(`<content name="Nameless"/>`), "FolderName")
	require.NoError(t, err)
	assert.Equal(t, "foldername", rec.ID)
}

func TestParseDefaultsEnabledTrue(t *testing.T) {
	rec, err := Parse(strings.NewReader(`<content id="x"/>`), "x")
	require.NoError(t, err)
	assert.True(t, rec.Enabled)
}

func TestParseHonorsExplicitDisabled(t *testing.T) {
	rec, err := Parse(strings.NewReader(`<content id="x" enabled="false"/>`), "x")
	require.NoError(t, err)
	assert.False(t, rec.Enabled)
}

func TestParseRejectsWrongRoot(t *testing.T) {
	_, err := Parse(strings.NewReader(`<diff/>`), "x")
	require.ErrorIs(t, err, ErrManifestParse)
}

func TestWriteToRoundTrips(t *testing.T) {
	rec := &Record{
		ID:      "my_ext",
		Name:    "My Extension",
		Version: ParseVersion("3"),
		Save:    true,
		Dependencies: []Dependency{
			{ID: "base_ext", Version: "2", Optional: false},
		},
	}
	var buf bytes.Buffer
	_, err := rec.WriteTo(&buf)
	require.NoError(t, err)

	reparsed, err := Parse(&buf, "")
	require.NoError(t, err)
	assert.Equal(t, rec.ID, reparsed.ID)
	assert.Equal(t, rec.Version.String(), reparsed.Version.String())
	require.Len(t, reparsed.Dependencies, 1)
	assert.Equal(t, "base_ext", reparsed.Dependencies[0].ID)
}

func TestVersionCompare(t *testing.T) {
	assert.Equal(t, -1, ParseVersion("1.2").Compare(ParseVersion("1.3")))
	assert.Equal(t, 0, ParseVersion("1.2.0").Compare(ParseVersion("1.2")))
	assert.Equal(t, 1, ParseVersion("2").Compare(ParseVersion("1.9.9")))
}
