package threatintel

import (
	"os"
	"path/filepath"
)

// NewFileSystem creates a FileSystem rooted at the given directory.
func NewFileSystem(dir string) FileSystem {
	return &osFileSystem{dir: dir}
}

type osFileSystem struct {
	dir string
}

func (fs *osFileSystem) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(filepath.Join(fs.dir, name))
}

func (fs *osFileSystem) WriteFile(name string, data []byte) error {
	if err := os.MkdirAll(fs.dir, 0755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(fs.dir, name), data, 0644)
}
