package bridgeinstallerlib

import (
	"os"
)

// Android uid/gid constants for installed files.
const (
	aidRoot  = 0
	aidShell = 2000
)

// SELinux labels for installed files.
const (
	labelSystemFile = "u:object_r:system_file:s0"
	labelVendorFile = "u:object_r:vendor_file:s0"
)

// ManifestEntry describes one payload file or directory to install.
type ManifestEntry struct {
	// Source path, relative to the payload variant directory.
	Source string
	// Destination path, relative to the partition's resolved content root.
	Destination string
	// Partition is SystemImageName or VendorImageName.
	Partition string
	Owner     int
	Group     int
	// Mode applies to files; directories always get 0755.
	Mode  os.FileMode
	Label string
	// Optional entries may be missing from a payload variant; their copy
	// failures log a warning instead of aborting the run.
	Optional bool
	// Directory entries are copied recursively.
	Directory bool
}

// bridgeManifest enumerates the files a translation layer installs into both
// partitions. Core binaries and the main shared libraries are mandatory;
// per-architecture library directories vary between payload variants and are
// optional.
func bridgeManifest(bridgeType BridgeType) []ManifestEntry {
	switch bridgeType {
	case BridgeTypeNdk:
		return ndkManifest()
	default:
		return houdiniManifest()
	}
}

func houdiniManifest() []ManifestEntry {
	return []ManifestEntry{
		{
			Source: "system/lib/libhoudini.so", Destination: "lib/libhoudini.so", Partition: SystemImageName,
			Owner: aidRoot, Group: aidRoot, Mode: 0o644, Label: labelSystemFile,
		},
		{
			Source: "system/lib64/libhoudini.so", Destination: "lib64/libhoudini.so", Partition: SystemImageName,
			Owner: aidRoot, Group: aidRoot, Mode: 0o644, Label: labelSystemFile,
		},
		{
			Source: "system/lib/arm", Destination: "lib/arm", Partition: SystemImageName,
			Owner: aidRoot, Group: aidRoot, Mode: 0o644, Label: labelSystemFile, Optional: true, Directory: true,
		},
		{
			Source: "system/lib64/arm64", Destination: "lib64/arm64", Partition: SystemImageName,
			Owner: aidRoot, Group: aidRoot, Mode: 0o644, Label: labelSystemFile, Optional: true, Directory: true,
		},
		{
			Source: "vendor/bin/houdini", Destination: "bin/houdini", Partition: VendorImageName,
			Owner: aidRoot, Group: aidShell, Mode: 0o755, Label: labelVendorFile,
		},
		{
			Source: "vendor/bin/houdini64", Destination: "bin/houdini64", Partition: VendorImageName,
			Owner: aidRoot, Group: aidShell, Mode: 0o755, Label: labelVendorFile,
		},
		{
			Source: "vendor/lib/libhoudini.so", Destination: "lib/libhoudini.so", Partition: VendorImageName,
			Owner: aidRoot, Group: aidRoot, Mode: 0o644, Label: labelVendorFile,
		},
		{
			Source: "vendor/lib64/libhoudini.so", Destination: "lib64/libhoudini.so", Partition: VendorImageName,
			Owner: aidRoot, Group: aidRoot, Mode: 0o644, Label: labelVendorFile,
		},
		{
			Source: "vendor/lib/arm", Destination: "lib/arm", Partition: VendorImageName,
			Owner: aidRoot, Group: aidRoot, Mode: 0o644, Label: labelVendorFile, Optional: true, Directory: true,
		},
		{
			Source: "vendor/lib64/arm64", Destination: "lib64/arm64", Partition: VendorImageName,
			Owner: aidRoot, Group: aidRoot, Mode: 0o644, Label: labelVendorFile, Optional: true, Directory: true,
		},
	}
}

func ndkManifest() []ManifestEntry {
	return []ManifestEntry{
		{
			Source:      "system/bin/ndk_translation_program_runner_binfmt_misc",
			Destination: "bin/ndk_translation_program_runner_binfmt_misc", Partition: SystemImageName,
			Owner: aidRoot, Group: aidShell, Mode: 0o755, Label: labelSystemFile,
		},
		{
			Source:      "system/bin/ndk_translation_program_runner_binfmt_misc_arm64",
			Destination: "bin/ndk_translation_program_runner_binfmt_misc_arm64", Partition: SystemImageName,
			Owner: aidRoot, Group: aidShell, Mode: 0o755, Label: labelSystemFile,
		},
		{
			Source: "system/lib/libndk_translation.so", Destination: "lib/libndk_translation.so", Partition: SystemImageName,
			Owner: aidRoot, Group: aidRoot, Mode: 0o644, Label: labelSystemFile,
		},
		{
			Source: "system/lib64/libndk_translation.so", Destination: "lib64/libndk_translation.so", Partition: SystemImageName,
			Owner: aidRoot, Group: aidRoot, Mode: 0o644, Label: labelSystemFile,
		},
		{
			Source: "system/lib/arm", Destination: "lib/arm", Partition: SystemImageName,
			Owner: aidRoot, Group: aidRoot, Mode: 0o644, Label: labelSystemFile, Optional: true, Directory: true,
		},
		{
			Source: "system/lib64/arm64", Destination: "lib64/arm64", Partition: SystemImageName,
			Owner: aidRoot, Group: aidRoot, Mode: 0o644, Label: labelSystemFile, Optional: true, Directory: true,
		},
		{
			Source: "system/etc/binfmt_misc", Destination: "etc/binfmt_misc", Partition: SystemImageName,
			Owner: aidRoot, Group: aidRoot, Mode: 0o644, Label: labelSystemFile, Optional: true, Directory: true,
		},
		{
			Source: "vendor/lib/arm", Destination: "lib/arm", Partition: VendorImageName,
			Owner: aidRoot, Group: aidRoot, Mode: 0o644, Label: labelVendorFile, Optional: true, Directory: true,
		},
		{
			Source: "vendor/lib64/arm64", Destination: "lib64/arm64", Partition: VendorImageName,
			Owner: aidRoot, Group: aidRoot, Mode: 0o644, Label: labelVendorFile, Optional: true, Directory: true,
		},
	}
}

// bridgeLibraryName returns the shared library that the native-bridge
// property must point at for the given translation layer.
func bridgeLibraryName(bridgeType BridgeType) string {
	switch bridgeType {
	case BridgeTypeNdk:
		return "libndk_translation.so"
	default:
		return "libhoudini.so"
	}
}
