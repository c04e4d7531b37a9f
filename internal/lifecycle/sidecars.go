package lifecycle

import (
	"os"
	"path/filepath"
)

func removeIfExists(takDir, subdir, name string) {
	_ = os.Remove(filepath.Join(takDir, subdir, name))
}

func removeDirIfExists(takDir, subdir, name string) {
	_ = os.RemoveAll(filepath.Join(takDir, subdir, name))
}
