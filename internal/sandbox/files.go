package sandbox

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

const (
	// maxCacheFiles caps how many files are exposed per invocation.
	maxCacheFiles = 32
	// maxCacheFileBytes caps the size of any single exposed file.
	maxCacheFileBytes = 256 << 10
)

// loadCacheFiles reads every regular file under the allow-listed dirs into
// a path→content map. The map is the complete universe readCacheFile can
// see: paths outside the allow-list are simply never present, so no
// call-time path check can be bypassed.
func loadCacheFiles(dirs []string, logger *slog.Logger) map[string]any {
	out := make(map[string]any)
	for _, dir := range dirs {
		root := filepath.Clean(dir)
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil // unreadable subtree: skip, not fatal
			}
			if d.IsDir() || !d.Type().IsRegular() {
				return nil
			}
			if len(out) >= maxCacheFiles {
				return filepath.SkipAll
			}
			info, err := d.Info()
			if err != nil || info.Size() > maxCacheFileBytes {
				return nil
			}
			content, err := os.ReadFile(path)
			if err != nil {
				return nil
			}
			out[path] = string(content)
			return nil
		})
		if err != nil {
			logger.Debug("cache dir walk failed", "dir", dir, "error", err)
		}
	}
	return out
}
