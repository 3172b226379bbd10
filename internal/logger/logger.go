// Shared logger for all tools in this repo.

package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
)

// Log is the shared logger instance. Packages log through this rather than
// creating their own loggers so that flags configure output globally.
var Log = logrus.New()

const (
	ColorFlag          = "log-color"
	ColorFlagHelp      = "Color setting for log output."
	ColorsPlaceholder  = "(always|auto|never)"
	FileFlag           = "log-file"
	FileFlagHelp       = "Full path of the file to write logs to, in addition to stderr."
	LevelsFlag         = "log-level"
	LevelsHelp         = "Minimum log level to output."
	LevelsPlaceholder  = "(panic|fatal|error|warn|info|debug|trace)"
	defaultLogLevel    = logrus.InfoLevel
	defaultLogFileMode = 0o644
)

const (
	colorAlways = "always"
	colorAuto   = "auto"
	colorNever  = "never"
)

type LogFlags struct {
	LogColor *string
	LogFile  *string
	LogLevel *string
}

func Colors() []string {
	return []string{colorAlways, colorAuto, colorNever}
}

func Levels() []string {
	levels := make([]string, 0, len(logrus.AllLevels))
	for _, level := range logrus.AllLevels {
		levels = append(levels, level.String())
	}
	return levels
}

// InitStderrLog initializes the logger with default settings. Used by tests
// and as the fallback when flag parsing fails.
func InitStderrLog() {
	configureLogger(os.Stderr, defaultLogLevel)
}

// InitBestEffort applies the log flags, falling back to defaults on any
// invalid value rather than failing the program over a logging option.
func InitBestEffort(flags *LogFlags) {
	err := initLog(flags)
	if err != nil {
		InitStderrLog()
		Log.Warnf("Failed to configure logger, using defaults: %v", err)
	}
}

func initLog(flags *LogFlags) error {
	level := defaultLogLevel
	if flags.LogLevel != nil && *flags.LogLevel != "" {
		parsedLevel, err := logrus.ParseLevel(*flags.LogLevel)
		if err != nil {
			return fmt.Errorf("invalid value for --%s (%s):\n%w", LevelsFlag, *flags.LogLevel, err)
		}
		level = parsedLevel
	}

	output := io.Writer(os.Stderr)
	if flags.LogFile != nil && *flags.LogFile != "" {
		logFile, err := os.OpenFile(*flags.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, defaultLogFileMode)
		if err != nil {
			return fmt.Errorf("failed to open log file (%s):\n%w", *flags.LogFile, err)
		}
		output = io.MultiWriter(os.Stderr, logFile)
	}

	if flags.LogColor != nil {
		switch strings.ToLower(*flags.LogColor) {
		case colorAlways:
			color.NoColor = false
		case colorNever:
			color.NoColor = true
		case colorAuto, "":
			// Leave the tty auto-detection in place.
		default:
			return fmt.Errorf("invalid value for --%s (%s)", ColorFlag, *flags.LogColor)
		}
	}

	configureLogger(output, level)
	return nil
}

func configureLogger(output io.Writer, level logrus.Level) {
	Log.SetOutput(output)
	Log.SetLevel(level)
	Log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02T15:04:05",
		DisableColors:   color.NoColor,
		ForceColors:     !color.NoColor,
	})
}
