package bridgeinstallerlib

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/android-image-tools/nativebridge-installer/internal/file"
	"github.com/android-image-tools/nativebridge-installer/internal/logger"
	"golang.org/x/sys/unix"
)

const selinuxXattrName = "security.selinux"

// installPayload copies the translation layer's manifest into the mounted
// partitions, applying per-path ownership, permissions, and SELinux labels.
// Optional entries that are missing from the payload variant log a warning;
// mandatory ones abort the run.
func installPayload(variantDir string, bridgeType BridgeType, systemRoot string, vendorRoot string) error {
	logger.Log.Infof("Installing %s payload from (%s)", bridgeType, variantDir)

	for _, entry := range bridgeManifest(bridgeType) {
		err := installManifestEntry(variantDir, entry, systemRoot, vendorRoot)
		if err != nil {
			if entry.Optional {
				logger.Log.Warnf("Skipping optional payload entry (%s): %v", entry.Source, err)
				continue
			}
			return fmt.Errorf("%w (source='%s'):\n%w", ErrMandatoryCopy, entry.Source, err)
		}
	}

	return nil
}

func installManifestEntry(variantDir string, entry ManifestEntry, systemRoot string, vendorRoot string) error {
	srcPath := filepath.Join(variantDir, entry.Source)

	root := systemRoot
	if entry.Partition == VendorImageName {
		root = vendorRoot
	}
	dstPath := filepath.Join(root, entry.Destination)

	srcExists, err := file.PathExists(srcPath)
	if err != nil {
		return fmt.Errorf("failed to check payload source (%s):\n%w", srcPath, err)
	}
	if !srcExists {
		return fmt.Errorf("payload source (%s) does not exist", srcPath)
	}

	logger.Log.Infof("Copying: %s", entry.Destination)

	if entry.Directory {
		return copyManifestTree(srcPath, dstPath, entry)
	}

	err = file.CopyFileMode(srcPath, dstPath, entry.Mode)
	if err != nil {
		return err
	}

	return applyEntryMetadata(dstPath, entry)
}

func copyManifestTree(srcDir string, dstDir string, entry ManifestEntry) error {
	return filepath.WalkDir(srcDir, func(srcPath string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		relPath, err := filepath.Rel(srcDir, srcPath)
		if err != nil {
			return err
		}
		dstPath := filepath.Join(dstDir, relPath)

		switch {
		case d.IsDir():
			err := os.MkdirAll(dstPath, 0o755)
			if err != nil {
				return fmt.Errorf("failed to create directory (%s):\n%w", dstPath, err)
			}
			return applyEntryMetadata(dstPath, entry)

		case d.Type() == fs.ModeSymlink:
			err := file.NewFileCopyBuilder(srcPath, dstPath).SetNoDereference().SetDirFileMode(0o755).Run()
			if err != nil {
				return err
			}
			return applyEntryOwnership(dstPath, entry)

		default:
			err := file.CopyFileMode(srcPath, dstPath, entry.Mode)
			if err != nil {
				return err
			}
			return applyEntryMetadata(dstPath, entry)
		}
	})
}

// applyEntryMetadata sets ownership, permission bits, and the SELinux label.
// Label failures are non-fatal: most deployment targets tolerate a missing
// label, while absence of the file itself would not be tolerated.
func applyEntryMetadata(path string, entry ManifestEntry) error {
	err := applyEntryOwnership(path, entry)
	if err != nil {
		return err
	}

	info, err := os.Lstat(path)
	if err != nil {
		return fmt.Errorf("failed to stat (%s):\n%w", path, err)
	}

	if info.IsDir() {
		err = os.Chmod(path, 0o755)
	} else {
		err = os.Chmod(path, entry.Mode)
	}
	if err != nil {
		return fmt.Errorf("failed to set permissions on (%s):\n%w", path, err)
	}

	applyEntryLabel(path, entry)
	return nil
}

func applyEntryOwnership(path string, entry ManifestEntry) error {
	err := os.Lchown(path, entry.Owner, entry.Group)
	if err != nil {
		return fmt.Errorf("failed to set ownership on (%s):\n%w", path, err)
	}
	return nil
}

func applyEntryLabel(path string, entry ManifestEntry) {
	if entry.Label == "" {
		return
	}

	// SELinux xattr values are NUL-terminated.
	labelValue := append([]byte(entry.Label), 0)

	err := unix.Lsetxattr(path, selinuxXattrName, labelValue, 0)
	if err != nil {
		logger.Log.Warnf("Failed to set SELinux label (%s) on (%s): %v", entry.Label, path, err)
	}
}
