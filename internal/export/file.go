package export

import (
	"fmt"
	"os"
	"path/filepath"

	"cvtailor/internal/errors"
)

// WriteFile saves f into dir and returns the final path.
// The data goes to a temporary file that is renamed into place, so a failed write leaves nothing behind.
func WriteFile(dir string, f *File) (path string, err error) {
	if f == nil || f.Name == "" {
		return "", errors.NewValidationError(errors.ErrCodeExportFailed, "nothing to write", nil)
	}
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", errors.NewIOError(errors.ErrCodeExportFailed,
			fmt.Sprintf("Cannot create directory: %s", dir), err)
	}

	tmp, err := os.CreateTemp(dir, "."+f.Name+".*.tmp")
	if err != nil {
		return "", errors.NewIOError(errors.ErrCodeExportFailed,
			fmt.Sprintf("Cannot create file in %s", dir), err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(f.Data); err != nil {
		return "", errors.NewIOError(errors.ErrCodeExportFailed, "Cannot write "+f.Name, err)
	}
	if err = tmp.Sync(); err != nil {
		return "", errors.NewIOError(errors.ErrCodeExportFailed, "Cannot flush "+f.Name, err)
	}
	if err = tmp.Close(); err != nil {
		return "", errors.NewIOError(errors.ErrCodeExportFailed, "Cannot close "+f.Name, err)
	}
	if err = os.Chmod(tmpName, 0640); err != nil {
		return "", errors.NewIOError(errors.ErrCodeExportFailed, "Cannot set permissions on "+f.Name, err)
	}

	path = filepath.Join(dir, f.Name)
	if err = os.Rename(tmpName, path); err != nil {
		return "", errors.NewIOError(errors.ErrCodeExportFailed, "Cannot move "+f.Name+" into place", err)
	}
	return path, nil
}
