package bridgeinstallerlib

import (
	"fmt"
	"path/filepath"

	"github.com/android-image-tools/nativebridge-installer/internal/file"
	"github.com/android-image-tools/nativebridge-installer/internal/logger"
	"github.com/android-image-tools/nativebridge-installer/internal/propfile"
	"github.com/android-image-tools/nativebridge-installer/internal/textedit"
)

const (
	buildPropRelPath = "build.prop"

	// The property selecting which translation runtime handles execution of
	// foreign-architecture binaries.
	nativeBridgeKey = "ro.dalvik.vm.native.bridge"
)

// Properties inserted after the native-bridge selector. Identical for both
// layer types: the guest always translates arm on x86 and arm64 on x86_64.
func bridgeProps() []string {
	return []string{
		"ro.dalvik.vm.isa.arm=x86",
		"ro.dalvik.vm.isa.arm64=x86_64",
		"ro.enable.native.bridge.exec=1",
		"ro.enable.native.bridge.exec64=1",
	}
}

// patchBuildProps points the native-bridge selector at the newly installed
// translation library and inserts the bridge execution properties after it.
// A missing selector key is non-fatal: older images may lack it.
func patchBuildProps(systemRoot string, bridgeType BridgeType) error {
	propPath := filepath.Join(systemRoot, buildPropRelPath)

	propExists, err := file.IsFile(propPath)
	if err != nil {
		return fmt.Errorf("failed to check for build.prop (%s):\n%w", propPath, err)
	}
	if !propExists {
		return fmt.Errorf("%w (file='%s')", ErrConfigFileAbsent, propPath)
	}

	props, err := propfile.LoadPropertyFile(propPath)
	if err != nil {
		return err
	}

	currentValue, hasKey := props.Get(nativeBridgeKey)
	if !hasKey {
		logger.Log.Warnf("Property (%s) not found in (%s), skipping native-bridge patch",
			nativeBridgeKey, propPath)
		return nil
	}

	newValue := bridgeLibraryName(bridgeType)
	logger.Log.Infof("Setting %s=%s (was %s)", nativeBridgeKey, newValue, currentValue)

	err = textedit.BackupFile(propPath)
	if err != nil {
		return err
	}

	props.SetValue(nativeBridgeKey, newValue)
	props.InsertAfter(nativeBridgeKey, bridgeProps())

	err = props.Save(propPath)
	if err != nil {
		return err
	}

	return nil
}
