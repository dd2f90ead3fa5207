package catalog

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/go-git/go-billy/v5"

	"github.com/bvbohnen/x4vfs/vpath"
)

// Scan walks root on fs and returns its files as SourceFile values
// with virtual paths relative to root, in the same lexical,
// depth-first order a fresh directory scan would produce. Catalog
// output built from this order is deterministic across platforms.
func Scan(fs billy.Filesystem, root string) ([]SourceFile, error) {
	var out []SourceFile
	if err := scanDir(fs, root, "", &out); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Path) < strings.ToLower(out[j].Path)
	})
	return out, nil
}

func scanDir(fs billy.Filesystem, realDir, virtualPrefix string, out *[]SourceFile) error {
	infos, err := fs.ReadDir(realDir)
	if err != nil {
		return fmt.Errorf("catalog: scanning %s: %w", realDir, err)
	}
	for _, info := range infos {
		realPath := realDir + "/" + info.Name()
		virtualPath := vpath.Join(virtualPrefix, info.Name())
		if info.IsDir() {
			if err := scanDir(fs, realPath, virtualPath, out); err != nil {
				return err
			}
			continue
		}

		data, err := readAll(fs, realPath)
		if err != nil {
			return fmt.Errorf("catalog: reading %s: %w", realPath, err)
		}

		*out = append(*out, SourceFile{
			Path:      virtualPath,
			Data:      data,
			Timestamp: info.ModTime().Unix(),
		})
	}
	return nil
}

func readAll(fs billy.Filesystem, path string) ([]byte, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
