package bridgeinstallerlib

import (
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"

	"github.com/android-image-tools/nativebridge-installer/internal/logger"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

// writeTestPayload creates payload sources for every manifest entry of the
// given layer under a fresh variant directory.
func writeTestPayload(t *testing.T, bridgeType BridgeType) string {
	variantDir := t.TempDir()

	for _, entry := range bridgeManifest(bridgeType) {
		srcPath := filepath.Join(variantDir, entry.Source)

		if entry.Directory {
			err := os.MkdirAll(srcPath, 0o755)
			assert.NoError(t, err)
			err = os.WriteFile(filepath.Join(srcPath, "member.so"), []byte("lib"), 0o644)
			assert.NoError(t, err)
		} else {
			err := os.MkdirAll(filepath.Dir(srcPath), 0o755)
			assert.NoError(t, err)
			err = os.WriteFile(srcPath, []byte("payload"), 0o644)
			assert.NoError(t, err)
		}
	}

	return variantDir
}

func TestInstallPayloadHoudini(t *testing.T) {
	if os.Geteuid() != 0 {
		t.Skip("Test must be run as root because it sets file ownership")
	}

	variantDir := writeTestPayload(t, BridgeTypeHoudini)
	systemRoot := t.TempDir()
	vendorRoot := t.TempDir()

	err := installPayload(variantDir, BridgeTypeHoudini, systemRoot, vendorRoot)
	assert.NoError(t, err)

	for _, entry := range bridgeManifest(BridgeTypeHoudini) {
		root := systemRoot
		if entry.Partition == VendorImageName {
			root = vendorRoot
		}
		dstPath := filepath.Join(root, entry.Destination)

		info, err := os.Stat(dstPath)
		assert.NoErrorf(t, err, "destination (%s) should exist", entry.Destination)
		if err != nil {
			continue
		}

		if entry.Directory {
			assert.True(t, info.IsDir())
			assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())
		} else {
			assert.Equal(t, entry.Mode, info.Mode().Perm())
		}
	}

	// Spot-check ownership of the vendor binaries.
	info, err := os.Stat(filepath.Join(vendorRoot, "bin/houdini"))
	assert.NoError(t, err)
	stat := info.Sys().(*syscall.Stat_t)
	assert.Equal(t, uint32(aidRoot), stat.Uid)
	assert.Equal(t, uint32(aidShell), stat.Gid)
}

func TestInstallPayloadMissingOptionalWarns(t *testing.T) {
	if os.Geteuid() != 0 {
		t.Skip("Test must be run as root because it sets file ownership")
	}

	variantDir := writeTestPayload(t, BridgeTypeHoudini)
	systemRoot := t.TempDir()
	vendorRoot := t.TempDir()

	// Drop an optional per-architecture directory from the payload.
	err := os.RemoveAll(filepath.Join(variantDir, "system/lib/arm"))
	assert.NoError(t, err)

	hook := logger.NewMemoryLogHook()
	detach := hook.Attach()
	defer detach()

	err = installPayload(variantDir, BridgeTypeHoudini, systemRoot, vendorRoot)
	assert.NoError(t, err)

	foundWarning := false
	for _, message := range hook.Messages() {
		if message.Level == logrus.WarnLevel && strings.Contains(message.Message, "system/lib/arm") {
			foundWarning = true
		}
	}
	assert.True(t, foundWarning)
}

func TestInstallPayloadMissingMandatoryFails(t *testing.T) {
	if os.Geteuid() != 0 {
		t.Skip("Test must be run as root because it sets file ownership")
	}

	variantDir := writeTestPayload(t, BridgeTypeHoudini)

	err := os.Remove(filepath.Join(variantDir, "system/lib/libhoudini.so"))
	assert.NoError(t, err)

	err = installPayload(variantDir, BridgeTypeHoudini, t.TempDir(), t.TempDir())
	assert.ErrorIs(t, err, ErrMandatoryCopy)
}
