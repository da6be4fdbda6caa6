package testfile

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	appErr "reftester/pkg/errors"
)

// Discover lists every regular file under the given roots. Directories are walked
// recursively; the result is sorted and free of duplicates.
func Discover(roots ...string) ([]string, error) {
	seen := make(map[string]struct{})
	var files []string
	add := func(path string) {
		path = filepath.Clean(path)
		if _, ok := seen[path]; ok {
			return
		}
		seen[path] = struct{}{}
		files = append(files, path)
	}

	for _, root := range roots {
		info, err := os.Stat(root)
		if err != nil {
			return nil, appErr.Wrapf(err, appErr.FileReadFailed, "stat %s failed", root).WithDetail("path", root)
		}
		if !info.IsDir() {
			add(root)
			continue
		}
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.Type().IsRegular() {
				add(path)
			}
			return nil
		})
		if err != nil {
			return nil, appErr.Wrapf(err, appErr.FileReadFailed, "walk %s failed", root).WithDetail("path", root)
		}
	}
	sort.Strings(files)
	return files, nil
}
