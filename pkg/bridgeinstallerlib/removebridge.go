package bridgeinstallerlib

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/android-image-tools/nativebridge-installer/internal/file"
	"github.com/android-image-tools/nativebridge-installer/internal/logger"
	"github.com/android-image-tools/nativebridge-installer/internal/textedit"
)

// removeBridge removes every file belonging to the given translation layer
// from both partitions, along with its init-script registrations. The two
// layers are not meant to coexist, so the installer removes the other type
// before installing the selected one.
func removeBridge(bridgeType BridgeType, systemRoot string, vendorRoot string) error {
	logger.Log.Infof("Removing any existing %s installation", bridgeType)

	removedCount := 0
	for _, entry := range bridgeManifest(bridgeType) {
		root := systemRoot
		if entry.Partition == VendorImageName {
			root = vendorRoot
		}
		targetPath := filepath.Join(root, entry.Destination)

		targetExists, err := file.PathExists(targetPath)
		if err != nil {
			return fmt.Errorf("failed to check for (%s):\n%w", targetPath, err)
		}
		if !targetExists {
			continue
		}

		err = os.RemoveAll(targetPath)
		if err != nil {
			return fmt.Errorf("failed to remove (%s):\n%w", targetPath, err)
		}
		removedCount++
	}

	if removedCount > 0 {
		logger.Log.Infof("Removed %d %s paths", removedCount, bridgeType)
	}

	if bridgeType == BridgeTypeHoudini {
		err := removeHoudiniRegistrations(vendorRoot)
		if err != nil {
			return err
		}
	}

	return nil
}

// removeHoudiniRegistrations strips previously inserted binfmt registration
// lines from the init script. The script may legitimately be absent on
// images that never carried houdini.
func removeHoudiniRegistrations(vendorRoot string) error {
	scriptPath := filepath.Join(vendorRoot, initScriptRelPath)

	scriptExists, err := file.IsFile(scriptPath)
	if err != nil {
		return fmt.Errorf("failed to check for init script (%s):\n%w", scriptPath, err)
	}
	if !scriptExists {
		return nil
	}

	editCount, err := textedit.PatchFile(scriptPath, textedit.DeleteMatching(binfmtRegisterPattern))
	if err != nil {
		return fmt.Errorf("failed to strip binfmt registrations from (%s):\n%w", scriptPath, err)
	}

	if editCount > 0 {
		logger.Log.Infof("Stripped %d binfmt registration lines from (%s)", editCount, scriptPath)
	}

	return nil
}
