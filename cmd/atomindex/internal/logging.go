package internal

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds the CLI logger: warnings and up on stderr, everything to
// a per-run file under ~/.atomindex/logs/. When the log directory cannot be
// created the logger still works, stderr only.
func NewLogger(subcommand string, verbose bool) (*zap.Logger, error) {
	stderrLevel := zapcore.WarnLevel
	if verbose {
		stderrLevel = zapcore.DebugLevel
	}

	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
	consoleCore := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.Lock(os.Stderr),
		stderrLevel,
	)

	logPath, err := logFilePath(subcommand)
	if err != nil {
		return zap.New(consoleCore), nil
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return zap.New(consoleCore), nil
	}

	fileCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
		zapcore.AddSync(logFile),
		zapcore.DebugLevel,
	)

	return zap.New(zapcore.NewTee(consoleCore, fileCore)), nil
}

func logFilePath(subcommand string) (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	logDir := filepath.Join(homeDir, ".atomindex", "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return "", err
	}
	timestamp := time.Now().Format("20060102-150405")
	return filepath.Join(logDir, fmt.Sprintf("atomindex-%s-%s.log", subcommand, timestamp)), nil
}
