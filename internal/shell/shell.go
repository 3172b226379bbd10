// Package shell runs external commands with their output routed through the
// shared logger.

package shell

import (
	"bufio"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	"github.com/android-image-tools/nativebridge-installer/internal/logger"
	"github.com/sirupsen/logrus"
)

// Execute runs the command and returns its captured stdout and stderr.
func Execute(command string, args ...string) (stdout string, stderr string, err error) {
	return NewExecBuilder(command, args...).ExecuteCaptureOutput()
}

// ExecuteLive runs the command, streaming its output to the log as it is
// produced. If squashErrors is set, stderr is logged at debug level instead
// of warn level; useful for tools that write progress to stderr.
func ExecuteLive(squashErrors bool, command string, args ...string) error {
	stderrLevel := logrus.WarnLevel
	if squashErrors {
		stderrLevel = logrus.DebugLevel
	}

	return NewExecBuilder(command, args...).
		LogLevel(logrus.DebugLevel, stderrLevel).
		ErrorStderrLines(1).
		Execute()
}

// ExecBuilder configures a single command execution.
type ExecBuilder struct {
	command          string
	args             []string
	workingDirectory string
	stdinString      string
	stdoutLogLevel   logrus.Level
	stderrLogLevel   logrus.Level
	errorStderrLines int
}

func NewExecBuilder(command string, args ...string) ExecBuilder {
	return ExecBuilder{
		command:        command,
		args:           args,
		stdoutLogLevel: logrus.DebugLevel,
		stderrLogLevel: logrus.WarnLevel,
	}
}

// Stdin provides a string to feed to the process's stdin.
func (b ExecBuilder) Stdin(value string) ExecBuilder {
	b.stdinString = value
	return b
}

// WorkingDirectory sets the process's working directory.
func (b ExecBuilder) WorkingDirectory(path string) ExecBuilder {
	b.workingDirectory = path
	return b
}

// LogLevel sets the log levels used for the process's stdout and stderr.
func (b ExecBuilder) LogLevel(stdoutLevel logrus.Level, stderrLevel logrus.Level) ExecBuilder {
	b.stdoutLogLevel = stdoutLevel
	b.stderrLogLevel = stderrLevel
	return b
}

// ErrorStderrLines sets how many trailing stderr lines are included in the
// returned error when the process fails.
func (b ExecBuilder) ErrorStderrLines(lines int) ExecBuilder {
	b.errorStderrLines = lines
	return b
}

// Execute runs the command, streaming output to the log.
func (b ExecBuilder) Execute() error {
	_, _, err := b.run(false)
	return err
}

// ExecuteCaptureOutput runs the command and captures stdout and stderr.
func (b ExecBuilder) ExecuteCaptureOutput() (string, string, error) {
	return b.run(true)
}

func (b ExecBuilder) run(captureOutput bool) (stdout string, stderr string, err error) {
	logger.Log.Debugf("Executing: %s %s", b.command, strings.Join(b.args, " "))

	cmd := exec.Command(b.command, b.args...)
	cmd.Dir = b.workingDirectory

	if b.stdinString != "" {
		cmd.Stdin = strings.NewReader(b.stdinString)
	}

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return "", "", fmt.Errorf("failed to create stdout pipe:\n%w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return "", "", fmt.Errorf("failed to create stderr pipe:\n%w", err)
	}

	err = cmd.Start()
	if err != nil {
		return "", "", fmt.Errorf("failed to start (%s):\n%w", b.command, err)
	}

	var stdoutBuilder, stderrBuilder strings.Builder
	stderrTail := []string(nil)

	wg := sync.WaitGroup{}
	wg.Add(2)
	go func() {
		defer wg.Done()
		b.consumeStream(stdoutPipe, captureOutput, &stdoutBuilder, b.stdoutLogLevel, nil)
	}()
	go func() {
		defer wg.Done()
		stderrTail = b.consumeStream(stderrPipe, captureOutput, &stderrBuilder, b.stderrLogLevel, &b.errorStderrLines)
	}()
	wg.Wait()

	err = cmd.Wait()
	if err != nil {
		errMessage := fmt.Sprintf("%s failed", b.command)
		if len(stderrTail) > 0 {
			errMessage = fmt.Sprintf("%s:\n%s", errMessage, strings.Join(stderrTail, "\n"))
		}
		return stdoutBuilder.String(), stderrBuilder.String(), fmt.Errorf("%s:\n%w", errMessage, err)
	}

	return stdoutBuilder.String(), stderrBuilder.String(), nil
}

func (b ExecBuilder) consumeStream(pipe io.Reader, capture bool, builder *strings.Builder,
	level logrus.Level, tailLines *int,
) []string {
	tail := []string(nil)

	scanner := bufio.NewScanner(pipe)
	for scanner.Scan() {
		line := scanner.Text()

		if capture {
			builder.WriteString(line)
			builder.WriteString("\n")
		} else {
			logger.Log.Log(level, line)
		}

		if tailLines != nil && *tailLines > 0 {
			tail = append(tail, line)
			if len(tail) > *tailLines {
				tail = tail[1:]
			}
		}
	}

	return tail
}
