// Package file provides small filesystem helpers shared across the tools.

package file

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
)

// Read returns the contents of the file as a string.
func Read(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read file (%s):\n%w", path, err)
	}
	return string(content), nil
}

// Write writes the string to the file, creating it if needed.
func Write(content string, path string) error {
	err := os.WriteFile(path, []byte(content), 0o644)
	if err != nil {
		return fmt.Errorf("failed to write file (%s):\n%w", path, err)
	}
	return nil
}

// PathExists reports whether the path exists at all.
func PathExists(path string) (bool, error) {
	_, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// IsFile reports whether the path exists and is a regular file.
func IsFile(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return info.Mode().IsRegular(), nil
}

// DirExists reports whether the path exists and is a directory.
func DirExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return info.IsDir(), nil
}

// CommandExists reports whether the named command is on the PATH.
func CommandExists(command string) (bool, error) {
	_, err := exec.LookPath(command)
	if err != nil {
		if _, ok := err.(*exec.Error); ok {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// GetAbsPathWithBase joins a possibly-relative path onto a base directory.
func GetAbsPathWithBase(baseDirPath string, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDirPath, path)
}

// CreateDestinationDir creates the parent directory of the given file path.
func CreateDestinationDir(filePath string, dirFileMode os.FileMode) error {
	dir := filepath.Dir(filePath)
	return os.MkdirAll(dir, dirFileMode)
}

// Copy copies a regular file, preserving the source's permission bits.
func Copy(src string, dst string) error {
	return NewFileCopyBuilder(src, dst).Run()
}

// CopyFileMode copies a regular file and sets the given permission bits on
// the destination.
func CopyFileMode(src string, dst string, fileMode os.FileMode) error {
	return NewFileCopyBuilder(src, dst).SetFileMode(fileMode).Run()
}

// FileCopyBuilder configures a single file copy.
type FileCopyBuilder struct {
	Src            string
	Dst            string
	DirFileMode    os.FileMode
	ChangeFileMode bool
	FileMode       os.FileMode
	NoDereference  bool
}

func NewFileCopyBuilder(src string, dst string) FileCopyBuilder {
	return FileCopyBuilder{
		Src:         src,
		Dst:         dst,
		DirFileMode: os.ModePerm,
	}
}

func (b FileCopyBuilder) SetDirFileMode(dirFileMode os.FileMode) FileCopyBuilder {
	b.DirFileMode = dirFileMode
	return b
}

func (b FileCopyBuilder) SetFileMode(fileMode os.FileMode) FileCopyBuilder {
	b.ChangeFileMode = true
	b.FileMode = fileMode
	return b
}

// SetNoDereference copies symlinks as symlinks instead of following them.
func (b FileCopyBuilder) SetNoDereference() FileCopyBuilder {
	b.NoDereference = true
	return b
}

func (b FileCopyBuilder) Run() error {
	if b.NoDereference && b.ChangeFileMode {
		return fmt.Errorf("cannot modify file permissions of symlinks")
	}

	if b.NoDereference {
		srcInfo, err := os.Lstat(b.Src)
		if err != nil {
			return fmt.Errorf("failed to read source file link info (%s):\n%w", b.Src, err)
		}

		if srcInfo.Mode().Type() == os.ModeSymlink {
			linkTarget, err := os.Readlink(b.Src)
			if err != nil {
				return fmt.Errorf("failed to read source symlink (%s):\n%w", b.Src, err)
			}

			err = CreateDestinationDir(b.Dst, b.DirFileMode)
			if err != nil {
				return fmt.Errorf("failed to create destination directory for (%s):\n%w", b.Dst, err)
			}

			err = os.Symlink(linkTarget, b.Dst)
			if err != nil {
				return fmt.Errorf("failed to copy symlink (%s):\n%w", b.Src, err)
			}
			return nil
		}
	}

	srcInfo, err := os.Stat(b.Src)
	if err != nil {
		return fmt.Errorf("failed to read source file info (%s):\n%w", b.Src, err)
	}
	if srcInfo.IsDir() {
		return fmt.Errorf("source (%s) is not a file", b.Src)
	}

	dstFileMode := srcInfo.Mode()
	if b.ChangeFileMode {
		dstFileMode = b.FileMode
	}

	err = CreateDestinationDir(b.Dst, b.DirFileMode)
	if err != nil {
		return fmt.Errorf("failed to create destination directory for (%s):\n%w", b.Dst, err)
	}

	srcFile, err := os.Open(b.Src)
	if err != nil {
		return fmt.Errorf("failed to open source file (%s):\n%w", b.Src, err)
	}
	defer srcFile.Close()

	dstFile, err := os.OpenFile(b.Dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, dstFileMode)
	if err != nil {
		return fmt.Errorf("failed to create destination file (%s):\n%w", b.Dst, err)
	}
	defer dstFile.Close()

	// OpenFile's permission arg is subject to umask. Chmod to make it exact.
	err = dstFile.Chmod(dstFileMode)
	if err != nil {
		return fmt.Errorf("failed to set destination file permissions (%s):\n%w", b.Dst, err)
	}

	_, err = io.Copy(dstFile, srcFile)
	if err != nil {
		return fmt.Errorf("failed to copy (%s) to (%s):\n%w", b.Src, b.Dst, err)
	}

	err = dstFile.Close()
	if err != nil {
		return fmt.Errorf("failed to finalize destination file (%s):\n%w", b.Dst, err)
	}

	return nil
}
