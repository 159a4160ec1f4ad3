package actors

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Open returns the flat file bucket/name from the data directory, or false if there is none.
func Open(bucket, name string) (*os.File, bool) {
	file, err := os.Open(filepath.Join(directory(bucket), name))
	if err != nil {
		return nil, false
	}
	return file, true
}

// Write replaces the flat file bucket/name in the data directory and returns its path.
func Write(bucket, name string, b []byte) (string, error) {
	if err := os.MkdirAll(directory(bucket), 0755); err != nil {
		return "", err
	}
	path := filepath.Join(directory(bucket), name)
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return "", err
	}
	if _, err = io.Copy(f, bytes.NewReader(b)); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return path, os.Rename(tmp, path)
}

func directory(bucket string) string {
	dir := MakeOrGetConfig().GetString("rootDir")
	dir = dir + MakeOrGetConfig().GetString("flatFileDir")
	dir = dir + bucket + "/"
	return dir
}
