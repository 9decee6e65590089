package ingest

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joseph-ayodele/lab-report-parser/internal/common"
)

// DirStats summarizes a directory scan.
type DirStats struct {
	Scanned uint32
	Matched uint32
	Skipped uint32
}

// ListReports walks root and returns the sorted paths of files with a supported
// extension. Hidden files and directories are skipped, and so are unreadable entries.
func ListReports(root string) ([]string, DirStats, error) {
	var stats DirStats
	if strings.TrimSpace(root) == "" {
		return nil, stats, common.NewAppError("INVALID_ARGUMENT", "directory is required", common.ErrInvalidInput)
	}

	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == root {
				return walkErr
			}
			stats.Skipped++
			return nil
		}
		if path != root && IsHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		stats.Scanned++
		if !AllowedExt(filepath.Ext(path)) {
			return nil
		}
		stats.Matched++
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, stats, common.NewAppError("INVALID_ARGUMENT", fmt.Sprintf("walk %s", root),
			fmt.Errorf("%w: %v", common.ErrInvalidInput, err))
	}
	sort.Strings(paths)
	return paths, stats, nil
}
