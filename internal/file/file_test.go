package file

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReadWriteRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.txt")

	err := Write("hello", path)
	assert.NoError(t, err)

	content, err := Read(path)
	assert.NoError(t, err)
	assert.Equal(t, "hello", content)
}

func TestPathExists(t *testing.T) {
	tempDir := t.TempDir()
	path := filepath.Join(tempDir, "a.txt")

	exists, err := PathExists(path)
	assert.NoError(t, err)
	assert.False(t, exists)

	err = Write("", path)
	assert.NoError(t, err)

	exists, err = PathExists(path)
	assert.NoError(t, err)
	assert.True(t, exists)
}

func TestPathExistsBrokenSymlink(t *testing.T) {
	tempDir := t.TempDir()
	linkPath := filepath.Join(tempDir, "dangling")

	err := os.Symlink(filepath.Join(tempDir, "absent"), linkPath)
	assert.NoError(t, err)

	// Lstat-based check: a dangling symlink still counts as present.
	exists, err := PathExists(linkPath)
	assert.NoError(t, err)
	assert.True(t, exists)
}

func TestIsFileAndDirExists(t *testing.T) {
	tempDir := t.TempDir()
	path := filepath.Join(tempDir, "a.txt")

	err := Write("", path)
	assert.NoError(t, err)

	isFile, err := IsFile(path)
	assert.NoError(t, err)
	assert.True(t, isFile)

	isFile, err = IsFile(tempDir)
	assert.NoError(t, err)
	assert.False(t, isFile)

	isDir, err := DirExists(tempDir)
	assert.NoError(t, err)
	assert.True(t, isDir)

	isDir, err = DirExists(path)
	assert.NoError(t, err)
	assert.False(t, isDir)
}

func TestGetAbsPathWithBase(t *testing.T) {
	assert.Equal(t, "/abs/path", GetAbsPathWithBase("/base", "/abs/path"))
	assert.Equal(t, "/base/rel", GetAbsPathWithBase("/base", "rel"))
}

func TestCopyPreservesMode(t *testing.T) {
	tempDir := t.TempDir()
	src := filepath.Join(tempDir, "src")
	dst := filepath.Join(tempDir, "sub", "dst")

	err := os.WriteFile(src, []byte("payload"), 0o750)
	assert.NoError(t, err)

	err = Copy(src, dst)
	assert.NoError(t, err)

	content, err := os.ReadFile(dst)
	assert.NoError(t, err)
	assert.Equal(t, "payload", string(content))

	info, err := os.Stat(dst)
	assert.NoError(t, err)
	assert.Equal(t, os.FileMode(0o750), info.Mode().Perm())
}

func TestCopyFileMode(t *testing.T) {
	tempDir := t.TempDir()
	src := filepath.Join(tempDir, "src")
	dst := filepath.Join(tempDir, "dst")

	err := os.WriteFile(src, []byte("payload"), 0o644)
	assert.NoError(t, err)

	err = CopyFileMode(src, dst, 0o755)
	assert.NoError(t, err)

	info, err := os.Stat(dst)
	assert.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())
}

func TestCopyNoDereference(t *testing.T) {
	tempDir := t.TempDir()
	target := filepath.Join(tempDir, "target")
	link := filepath.Join(tempDir, "link")
	dst := filepath.Join(tempDir, "dst")

	err := os.WriteFile(target, []byte("content"), 0o644)
	assert.NoError(t, err)
	err = os.Symlink(target, link)
	assert.NoError(t, err)

	err = NewFileCopyBuilder(link, dst).SetNoDereference().Run()
	assert.NoError(t, err)

	linkTarget, err := os.Readlink(dst)
	assert.NoError(t, err)
	assert.Equal(t, target, linkTarget)
}

func TestCopyNoDereferenceCreatesParentDir(t *testing.T) {
	tempDir := t.TempDir()
	target := filepath.Join(tempDir, "target")
	link := filepath.Join(tempDir, "link")
	dst := filepath.Join(tempDir, "sub", "nested", "dst")

	err := os.WriteFile(target, []byte("content"), 0o644)
	assert.NoError(t, err)
	err = os.Symlink(target, link)
	assert.NoError(t, err)

	err = NewFileCopyBuilder(link, dst).SetNoDereference().SetDirFileMode(0o700).Run()
	assert.NoError(t, err)

	linkTarget, err := os.Readlink(dst)
	assert.NoError(t, err)
	assert.Equal(t, target, linkTarget)

	info, err := os.Stat(filepath.Dir(dst))
	assert.NoError(t, err)
	assert.Equal(t, os.FileMode(0o700), info.Mode().Perm())
}

func TestCopyDirectoryFails(t *testing.T) {
	tempDir := t.TempDir()
	err := Copy(tempDir, filepath.Join(tempDir, "dst"))
	assert.ErrorContains(t, err, "is not a file")
}
