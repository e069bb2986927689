// Package logutil wires up the arbor structured logger used throughout
// webreplica, following the same writer-stacking convention as the teacher's
// internal/common/logger.go.
package logutil

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/ternarybob/arbor"
	arborcommon "github.com/ternarybob/arbor/common"
	"github.com/ternarybob/arbor/models"

	"github.com/ternarybob/webreplica/internal/config"
)

var (
	globalLogger arbor.ILogger
	mu           sync.RWMutex
)

// Get returns the global logger, falling back to a bare console logger if
// Setup hasn't run yet.
func Get() arbor.ILogger {
	mu.RLock()
	if globalLogger != nil {
		mu.RUnlock()
		return globalLogger
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if globalLogger == nil {
		globalLogger = arbor.NewLogger().WithConsoleWriter(writerConfig(nil, models.LogWriterTypeConsole, ""))
		globalLogger.Warn().Msg("using fallback logger - logutil.Setup was not called during startup")
	}
	return globalLogger
}

// Setup configures the global logger from resolved configuration and a
// capture-site output directory (for the "file" output target).
func Setup(cfg *config.LoggingConfig, outputDir string) arbor.ILogger {
	logger := arbor.NewLogger()

	hasFile, hasConsole := false, false
	for _, out := range cfg.Output {
		switch out {
		case "file":
			hasFile = true
		case "stdout", "console":
			hasConsole = true
		}
	}

	if hasFile && outputDir != "" {
		logsDir := filepath.Join(outputDir, "logs")
		if err := os.MkdirAll(logsDir, 0755); err != nil {
			logger = logger.WithConsoleWriter(writerConfig(cfg, models.LogWriterTypeConsole, ""))
			logger.Warn().Err(err).Str("logs_dir", logsDir).Msg("failed to create logs directory, falling back to console")
		} else {
			logFile := filepath.Join(logsDir, "webreplica.log")
			logger = logger.WithFileWriter(writerConfig(cfg, models.LogWriterTypeFile, logFile))
		}
	}

	if hasConsole || !hasFile {
		logger = logger.WithConsoleWriter(writerConfig(cfg, models.LogWriterTypeConsole, ""))
	}

	logger = logger.WithMemoryWriter(writerConfig(cfg, models.LogWriterTypeMemory, ""))
	logger = logger.WithLevelFromString(cfg.Level)

	mu.Lock()
	globalLogger = logger
	mu.Unlock()

	return logger
}

func writerConfig(cfg *config.LoggingConfig, writerType models.LogWriterType, filename string) models.WriterConfiguration {
	timeFormat := "15:04:05.000"
	if cfg != nil && cfg.TimeFormat != "" {
		timeFormat = cfg.TimeFormat
	}
	return models.WriterConfiguration{
		Type:             writerType,
		FileName:         filename,
		TimeFormat:       timeFormat,
		DisableTimestamp: false,
		MaxSize:          100 * 1024 * 1024,
		MaxBackups:       3,
	}
}

// Stop flushes any buffered log writers before process exit.
func Stop() {
	arborcommon.Stop()
}
