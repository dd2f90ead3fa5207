package catalog

import (
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestCatalogRoundTrip checks that writing a catalog from a directory
// scan and reading it back reproduces the same entries and bytes.
func TestCatalogRoundTrip(t *testing.T) {
	src := memfs.New()
	files := map[string][]byte{
		"libraries/jobs.xml":     []byte("<jobs/>"),
		"libraries/wares.xml":    []byte("<wares/>"),
		"assets/fx/explosion.xa": []byte{0x01, 0x02, 0x03},
		"":                       nil,
	}
	for path, data := range files {
		if path == "" {
			continue
		}
		f, err := src.Create(path)
		require.NoError(t, err)
		_, err = f.Write(data)
		require.NoError(t, err)
		require.NoError(t, f.Close())
	}

	scanned, err := Scan(src, "")
	require.NoError(t, err)
	require.Len(t, scanned, 3)

	out := memfs.New()
	w := NewWriter(out, "ext_01.cat", "ext_01.dat")
	for _, f := range scanned {
		w.Add(f.Path, f.Data, f.Timestamp)
	}
	require.NoError(t, w.Close())

	r, err := Open(out, "ext_01.cat", "ext_01.dat")
	require.NoError(t, err)

	for path, want := range files {
		if path == "" {
			continue
		}
		got, err := r.Read(path)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	assert.Len(t, r.Paths(), 3)
}

// TestCatalogRoundTripDeterministic asserts reruns over the same
// source tree produce byte-identical .cat output.
func TestCatalogRoundTripDeterministic(t *testing.T) {
	src := memfs.New()
	for _, p := range []string{"b/file.xml", "a/file.xml", "a/aa.xml"} {
		f, err := src.Create(p)
		require.NoError(t, err)
		_, _ = f.Write([]byte("x"))
		require.NoError(t, f.Close())
	}

	run := func() []byte {
		scanned, err := Scan(src, "")
		require.NoError(t, err)
		out := memfs.New()
		w := NewWriter(out, "01.cat", "01.dat")
		for _, f := range scanned {
			w.Add(f.Path, f.Data, 0)
		}
		require.NoError(t, w.Close())
		cf, err := out.Open("01.cat")
		require.NoError(t, err)
		defer cf.Close()
		data, err := readAll(out, "01.cat")
		require.NoError(t, err)
		return data
	}

	a := run()
	b := run()
	assert.Equal(t, a, b)
}
