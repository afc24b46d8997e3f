// Package fsx wraps the filesystem operations the scanner and executor
// need, behind an interface so tests can inject failures.
package fsx

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// ErrExists is returned by CopyTree when the destination already exists.
var ErrExists = errors.New("destination already exists")

// FS is the filesystem surface consumed by the scanner and the executor.
type FS interface {
	// ListSubdirs returns the names of the immediate subdirectories of path.
	ListSubdirs(path string) ([]string, error)
	// TreeSize sums the sizes of all files under path, recursively.
	TreeSize(path string) (int64, error)
	// CopyTree copies src recursively to dst. Fails with ErrExists when dst
	// is already present; the destination is not cleaned up on failure.
	CopyTree(src, dst string) error
	// DeleteTree removes path and everything under it.
	DeleteTree(path string) error
	// CopyFile copies a single file, creating parent directories of dst.
	CopyFile(src, dst string) error
}

// OS is the real-filesystem implementation of FS.
type OS struct{}

func (OS) ListSubdirs(path string) ([]string, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func (OS) TreeSize(path string) (int64, error) {
	var total int64
	err := filepath.WalkDir(path, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (o OS) CopyTree(src, dst string) error {
	if _, err := os.Lstat(dst); err == nil {
		return fmt.Errorf("%w: %s", ErrExists, dst)
	} else if !os.IsNotExist(err) {
		return err
	}
	return filepath.WalkDir(src, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return o.CopyFile(p, target)
	})
}

func (OS) DeleteTree(path string) error {
	return os.RemoveAll(path)
}

func (OS) CopyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// WriteFileAtomic writes data to path via a same-directory temp file and
// rename, so a crash mid-write never truncates an existing file.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		tmp.Close()
		os.Remove(tmpName)
	}()
	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
