// Command x4vfs drives the engine from the command line: discover
// extensions, compose the virtual file system, and either emit a
// merged output extension or check one extension against every load
// order its dependencies leave ambiguous.
package main

import (
	"fmt"
	"os"

	flags "github.com/jessevdk/go-flags"
)

func main() {
	parser := flags.NewParser(&struct{}{}, flags.Default)

	if _, err := parser.AddCommand("build",
		"Compose the VFS and write the merged output extension",
		"Discovers extensions under the game and user roots, resolves their load order, composes the virtual file system, and drains it through the writer into an output extension folder.",
		&buildCmd); err != nil {
		fmt.Fprintln(os.Stderr, "x4vfs:", err)
		os.Exit(1)
	}

	if _, err := parser.AddCommand("check",
		"Check one extension against every ambiguous load order",
		"Resolves the alphabetical load order and, with --full, also places the target extension at the earliest and latest positions its declared dependencies allow, applying its patches in soft mode under each and reporting every failure.",
		&checkCmd); err != nil {
		fmt.Fprintln(os.Stderr, "x4vfs:", err)
		os.Exit(1)
	}

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, "x4vfs:", err)
		os.Exit(1)
	}
}
