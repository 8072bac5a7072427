package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"dashsync-go/internal/config"

	log "github.com/sirupsen/logrus"
)

var (
	logMux        sync.Mutex
	logFileHandle *os.File
)

// Setup configures the global logrus logger from the logging config domain.
// It is idempotent; the most recent call wins.
func Setup(cfg *config.Config) error {
	logMux.Lock()
	defer logMux.Unlock()

	lc := config.LoggingConfig{Level: "info", Format: "json"}
	if cfg != nil {
		lc = cfg.Logging
	}

	var formatter log.Formatter = &log.JSONFormatter{TimestampFormat: time.RFC3339Nano}
	if strings.EqualFold(lc.Format, "text") {
		formatter = &log.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339Nano,
		}
	}
	log.SetFormatter(formatter)

	level, err := log.ParseLevel(lc.Level)
	if err != nil {
		level = log.InfoLevel
	}
	if lc.Debug {
		level = log.DebugLevel
	}
	log.SetLevel(level)

	writers := []io.Writer{os.Stdout}

	if logFileHandle != nil {
		_ = logFileHandle.Close()
		logFileHandle = nil
	}

	if lc.File != "" {
		if err := os.MkdirAll(filepath.Dir(lc.File), 0o755); err != nil {
			return fmt.Errorf("create log directory: %w", err)
		}
		file, err := os.OpenFile(lc.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		logFileHandle = file
		writers = append(writers, file)
	}

	log.SetOutput(io.MultiWriter(writers...))
	return nil
}
