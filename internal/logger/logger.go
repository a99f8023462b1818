package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var (
	logFile  *os.File
	minLevel = LevelInfo
	logMu    sync.Mutex
)

// Init opens the log file at path, creating parent directories as needed.
// An empty path keeps logging on stdout only.
func Init(path string, level Level) error {
	logMu.Lock()
	defer logMu.Unlock()

	minLevel = level
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
	if err != nil {
		return err
	}
	logFile = f
	return nil
}

func Close() {
	logMu.Lock()
	defer logMu.Unlock()
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
}

func Debug(format string, args ...interface{}) {
	log(LevelDebug, format, args...)
}

func Info(format string, args ...interface{}) {
	log(LevelInfo, format, args...)
}

func Warn(format string, args ...interface{}) {
	log(LevelWarn, format, args...)
}

func Error(format string, args ...interface{}) {
	log(LevelError, format, args...)
}

func log(lvl Level, format string, args ...interface{}) {
	logMu.Lock()
	defer logMu.Unlock()
	if lvl < minLevel {
		return
	}

	now := time.Now().Format("2006/01/02 15:04:05")
	msg := fmt.Sprintf(format, args...)
	var label, colorStart, colorEnd string
	switch lvl {
	case LevelDebug:
		colorStart = "\033[36m" // Cyan
		label = "[DEBG] "
		colorEnd = "\033[0m"
	case LevelInfo:
		colorStart = "\033[32m" // Green
		label = "[INFO] "
		colorEnd = "\033[0m"
	case LevelWarn:
		colorStart = "\033[33m" // Yellow
		label = "[WARN] "
		colorEnd = "\033[0m"
	case LevelError:
		colorStart = "\033[31m" // Red
		label = "[EROR] " // 4 chars align
		colorEnd = "\033[0m"
	}

	// File output (no color)
	if logFile != nil {
		_, _ = fmt.Fprintf(logFile, "%s %s%s\n", now, label, msg)
	}

	// Stdout (color)
	fmt.Fprintf(os.Stdout, "%s %s%s%s%s\n", now, colorStart, label, colorEnd, msg)
}
