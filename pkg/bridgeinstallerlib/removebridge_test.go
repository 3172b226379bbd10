package bridgeinstallerlib

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

// populateFakeInstall creates a file or directory at every manifest
// destination for the given layer.
func populateFakeInstall(t *testing.T, bridgeType BridgeType, systemRoot string, vendorRoot string) {
	for _, entry := range bridgeManifest(bridgeType) {
		root := systemRoot
		if entry.Partition == VendorImageName {
			root = vendorRoot
		}
		target := filepath.Join(root, entry.Destination)

		if entry.Directory {
			err := os.MkdirAll(filepath.Join(target, "nested"), 0o755)
			assert.NoError(t, err)
		} else {
			err := os.MkdirAll(filepath.Dir(target), 0o755)
			assert.NoError(t, err)
			err = os.WriteFile(target, []byte("payload"), 0o644)
			assert.NoError(t, err)
		}
	}
}

func TestRemoveBridgeHoudini(t *testing.T) {
	systemRoot := t.TempDir()
	vendorRoot := t.TempDir()
	populateFakeInstall(t, BridgeTypeHoudini, systemRoot, vendorRoot)

	err := removeBridge(BridgeTypeHoudini, systemRoot, vendorRoot)
	assert.NoError(t, err)

	for _, entry := range bridgeManifest(BridgeTypeHoudini) {
		root := systemRoot
		if entry.Partition == VendorImageName {
			root = vendorRoot
		}
		_, err := os.Lstat(filepath.Join(root, entry.Destination))
		assert.Truef(t, os.IsNotExist(err), "destination (%s) should be removed", entry.Destination)
	}
}

func TestRemoveBridgeLeavesOtherLayer(t *testing.T) {
	systemRoot := t.TempDir()
	vendorRoot := t.TempDir()
	populateFakeInstall(t, BridgeTypeNdk, systemRoot, vendorRoot)

	err := removeBridge(BridgeTypeHoudini, systemRoot, vendorRoot)
	assert.NoError(t, err)

	// The ndk mandatory files are untouched by a houdini removal.
	for _, entry := range bridgeManifest(BridgeTypeNdk) {
		if entry.Optional {
			continue
		}
		root := systemRoot
		if entry.Partition == VendorImageName {
			root = vendorRoot
		}
		_, err := os.Lstat(filepath.Join(root, entry.Destination))
		assert.NoErrorf(t, err, "destination (%s) should survive", entry.Destination)
	}
}

func TestRemoveBridgeEmptyRoots(t *testing.T) {
	err := removeBridge(BridgeTypeHoudini, t.TempDir(), t.TempDir())
	assert.NoError(t, err)
}

func TestRemoveBridgeStripsRegistrations(t *testing.T) {
	systemRoot := t.TempDir()
	vendorRoot := writeTestInitScript(t, sampleInitScript)

	// Patch first so registration lines exist, then remove them.
	err := patchInitScript(vendorRoot, BridgeTypeHoudini)
	assert.NoError(t, err)

	err = removeBridge(BridgeTypeHoudini, systemRoot, vendorRoot)
	assert.NoError(t, err)

	content, err := os.ReadFile(filepath.Join(vendorRoot, initScriptRelPath))
	assert.NoError(t, err)
	assert.NotContains(t, string(content), "binfmt_misc/register")

	// The bind-mount lines are not registrations and stay in place.
	assert.Contains(t, string(content), "--bind /vendor/bin/houdini ")
}

func TestOtherBridgeType(t *testing.T) {
	assert.Equal(t, BridgeTypeNdk, otherBridgeType(BridgeTypeHoudini))
	assert.Equal(t, BridgeTypeHoudini, otherBridgeType(BridgeTypeNdk))
}
