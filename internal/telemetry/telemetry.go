package telemetry

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/android-image-tools/nativebridge-installer/internal/logger"
	autoexport "go.opentelemetry.io/contrib/exporters/autoexport"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
)

var shutdownFn func(ctx context.Context) error

// InitTelemetry configures the OTLP span exporter. Telemetry is a no-op
// unless an OTLP endpoint is configured in the environment.
func InitTelemetry(disableTelemetry bool, toolVersion string) error {
	if disableTelemetry {
		logger.Log.Info("Disabled telemetry collection")
		return nil
	} else if os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") == "" {
		logger.Log.Debug("No OTLP endpoint set, telemetry will not be collected")
		return nil
	}

	exporter, err := autoexport.NewSpanExporter(context.Background())
	if err != nil {
		return fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	res, _ := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String("nativebridgeinstaller"),
			semconv.ServiceVersionKey.String(toolVersion),
			attribute.String("host.architecture", runtime.GOARCH),
		),
	)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	shutdownFn = tp.Shutdown
	return nil
}

func ShutdownTelemetry(ctx context.Context) error {
	if shutdownFn == nil {
		return nil
	}

	tp, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	if ok {
		err := tp.ForceFlush(ctx)
		if err != nil {
			logger.Log.Warnf("Failed to flush telemetry spans: %v", err)
		}
	}

	return shutdownFn(ctx)
}
