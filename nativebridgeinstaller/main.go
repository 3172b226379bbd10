package main

import (
	"context"
	"log"
	"os"

	"github.com/android-image-tools/nativebridge-installer/internal/exe"
	"github.com/android-image-tools/nativebridge-installer/internal/logger"
	"github.com/android-image-tools/nativebridge-installer/internal/telemetry"
	"github.com/android-image-tools/nativebridge-installer/pkg/bridgeinstallerlib"
	"gopkg.in/alecthomas/kingpin.v2"
)

var (
	app = kingpin.New("nativebridgeinstaller", "Installs an ARM translation layer into Android system/vendor images")

	workDir             = app.Flag("work-dir", "Directory containing system.vhdx and vendor.vhdx. Receives all intermediate files.").Required().String()
	payloadDir          = app.Flag("payload-dir", "Root of the translation runtime payload tree, one subdirectory per variant.").Required().String()
	bridgeType          = app.Flag("bridge-type", "Translation layer to install. Supported: houdini, ndk.").Required().Enum(bridgeinstallerlib.BridgeTypes()...)
	payloadVariant      = app.Flag("payload-variant", "Name of the payload variant to install.").Required().String()
	variantCatalogFile  = app.Flag("variant-catalog", "Path of a YAML file overriding the built-in variant catalog.").String()
	archiveName         = app.Flag("archive-name", "Create <name>.tar.gz of the working directory after a successful run.").String()
	preservePlannedSize = app.Flag("preserve-planned-size", "Keep the vendor image at its planned size instead of shrinking to used space plus buffer.").Bool()
	keepRawImages       = app.Flag("keep-raw", "Keep the intermediate raw images instead of deleting them.").Bool()
	disableTelemetry    = app.Flag("disable-telemetry", "Disable telemetry collection.").Bool()
	logFlags            = exe.SetupLogFlags(app)
)

func main() {
	app.Version(bridgeinstallerlib.ToolVersion)
	kingpin.MustParse(app.Parse(os.Args[1:]))

	logger.InitBestEffort(logFlags)

	ctx := context.Background()

	err := telemetry.InitTelemetry(*disableTelemetry, bridgeinstallerlib.ToolVersion)
	if err != nil {
		logger.Log.Warnf("Failed to initialize telemetry: %v", err)
	}
	defer func() {
		err := telemetry.ShutdownTelemetry(ctx)
		if err != nil {
			logger.Log.Warnf("Failed to shut down telemetry: %v", err)
		}
	}()

	err = installBridge(ctx)
	if err != nil {
		log.Fatalf("bridge installation failed:\n%v", err)
	}
}

func installBridge(ctx context.Context) error {
	options := bridgeinstallerlib.Options{
		WorkDir:             *workDir,
		PayloadDir:          *payloadDir,
		BridgeType:          bridgeinstallerlib.BridgeType(*bridgeType),
		PayloadVariant:      *payloadVariant,
		VariantCatalogFile:  *variantCatalogFile,
		ArchiveName:         *archiveName,
		PreservePlannedSize: *preservePlannedSize,
		KeepRawImages:       *keepRawImages,
	}

	return bridgeinstallerlib.InstallBridge(ctx, options)
}
