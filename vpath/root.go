package vpath

import securejoin "github.com/cyphar/filepath-securejoin"

// JoinRoot resolves a virtual path onto a real filesystem root,
// refusing to let the result escape root even if p contains ".."
// segments or symlinks do. The writer uses it for every path it writes
// or removes under the output folder (loose files, cat pairs,
// content.xml); loose-file reads and catalog scans join paths directly.
func JoinRoot(root, p string) (string, error) {
	return securejoin.SecureJoin(root, Normalize(p))
}
