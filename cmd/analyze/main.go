// Command analyze prints quick, human-readable heuristics about the level
// files in a directory (default "levels"). For each level it summarizes the
// grid, the fewest selections each agent needs against its budget, and the
// cells where two agents following their shortest routes would collide.
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/wricardo/pathpath/game/engine"
	"github.com/wricardo/pathpath/validate"
)

func main() {
	dir := "levels"
	if len(os.Args) > 1 {
		dir = os.Args[1]
	}

	if err := run(os.Stdout, dir); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run analyzes every level file in dir in file name order
func run(w io.Writer, dir string) error {
	files, err := levelFiles(dir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no level files in %s", dir)
	}

	for _, file := range files {
		fmt.Fprintf(w, "\n=== Analyzing %s ===\n", filepath.Base(file))
		if err := validate.WriteAnalysis(w, file); err != nil {
			fmt.Fprintf(w, "Error: %v\n", err)
		}
	}
	return nil
}

func levelFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && engine.IsLevelFile(entry.Name()) {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}
