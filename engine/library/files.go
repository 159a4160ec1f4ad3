package library

import (
	"os"
	"path/filepath"
)

// Touch creates the file, and any missing parent directories, if it does not exist.
func Touch(name string) {
	if _, err := os.Stat(name); err == nil {
		return
	}
	if err := os.MkdirAll(filepath.Dir(name), 0755); err != nil {
		LogCLI(err.Error(), 1)
		return
	}
	f, err := os.OpenFile(name, os.O_RDONLY|os.O_CREATE, 0644)
	if err != nil {
		LogCLI(err.Error(), 1)
		return
	}
	_ = f.Close()
}
