package diskutils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBytesToSectorsRoundsUp(t *testing.T) {
	assert.Equal(t, int64(0), BytesToSectors(0))
	assert.Equal(t, int64(1), BytesToSectors(1))
	assert.Equal(t, int64(1), BytesToSectors(512))
	assert.Equal(t, int64(2), BytesToSectors(513))
	assert.Equal(t, int64(2048), BytesToSectors(MiB))
}

func TestSectorsToBytes(t *testing.T) {
	assert.Equal(t, int64(0), SectorsToBytes(0))
	assert.Equal(t, int64(512), SectorsToBytes(1))
	assert.Equal(t, int64(MiB), SectorsToBytes(2048))
}

func TestSectorRoundTripIsNonShrinking(t *testing.T) {
	for _, size := range []int64{1, 511, 512, 513, 4095, MiB + 1} {
		roundTripped := SectorsToBytes(BytesToSectors(size))
		assert.GreaterOrEqual(t, roundTripped, size)
		assert.Less(t, roundTripped-size, int64(SectorSize))
	}
}

func TestApparentSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image.img")

	err := os.WriteFile(path, make([]byte, 4096), 0o644)
	assert.NoError(t, err)

	size, err := ApparentSize(path)
	assert.NoError(t, err)
	assert.Equal(t, int64(4096), size)
}

func TestTruncateExtends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image.img")

	err := os.WriteFile(path, nil, 0o644)
	assert.NoError(t, err)

	err = Truncate(path, MiB)
	assert.NoError(t, err)

	size, err := ApparentSize(path)
	assert.NoError(t, err)
	assert.Equal(t, int64(MiB), size)
}

func TestTruncateIsSparse(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image.img")

	err := os.WriteFile(path, nil, 0o644)
	assert.NoError(t, err)

	err = Truncate(path, 8*MiB)
	assert.NoError(t, err)

	size, err := ApparentSize(path)
	assert.NoError(t, err)
	assert.Equal(t, int64(8*MiB), size)

	// Truncation extends the logical length only; no backing storage is
	// consumed for the hole.
	allocated, err := AllocatedSize(path)
	assert.NoError(t, err)
	assert.Less(t, allocated, int64(MiB))
}

func TestAllocateGrowOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image.img")

	err := os.WriteFile(path, make([]byte, 4096), 0o644)
	assert.NoError(t, err)

	// Requesting less than the current size must not shrink the file.
	err = Allocate(path, 1024)
	assert.NoError(t, err)

	size, err := ApparentSize(path)
	assert.NoError(t, err)
	assert.Equal(t, int64(4096), size)
}

func TestAllocateExtends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image.img")

	err := os.WriteFile(path, make([]byte, 4096), 0o644)
	assert.NoError(t, err)

	err = Allocate(path, MiB)
	assert.NoError(t, err)

	size, err := ApparentSize(path)
	assert.NoError(t, err)
	assert.Equal(t, int64(MiB), size)
}

func TestFreeAndUsedSpace(t *testing.T) {
	tempDir := t.TempDir()

	free, err := FreeSpace(tempDir)
	assert.NoError(t, err)
	assert.Greater(t, free, int64(0))

	used, err := UsedSpace(tempDir)
	assert.NoError(t, err)
	assert.GreaterOrEqual(t, used, int64(0))
}

func TestApparentSizeMissingFile(t *testing.T) {
	_, err := ApparentSize(filepath.Join(t.TempDir(), "absent.img"))
	assert.Error(t, err)
}
