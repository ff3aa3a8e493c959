package utils

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"
)

var (
	InfoLogger  = log.New(os.Stdout, "INFO: ", log.Ldate|log.Ltime)
	ErrorLogger = log.New(os.Stderr, "ERROR: ", log.Ldate|log.Ltime)
	DebugLogger = log.New(io.Discard, "DEBUG: ", log.Ldate|log.Ltime)

	loggersMu sync.Mutex
)

// InitLoggers routes the loggers to info.log, error.log and debug.log in dir.
// An empty dir keeps stdout/stderr and disables debug output.
func InitLoggers(dir string, debug bool) error {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	if dir == "" {
		if debug {
			DebugLogger.SetOutput(os.Stdout)
		}
		return nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	open := func(name string) (*os.File, error) {
		return os.OpenFile(filepath.Join(dir, name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	}

	infoFile, err := open("info.log")
	if err != nil {
		return fmt.Errorf("failed to open info log file: %w", err)
	}
	errorFile, err := open("error.log")
	if err != nil {
		return fmt.Errorf("failed to open error log file: %w", err)
	}

	InfoLogger.SetOutput(io.MultiWriter(os.Stdout, infoFile))
	ErrorLogger.SetOutput(io.MultiWriter(os.Stderr, errorFile))

	if debug {
		debugFile, err := open("debug.log")
		if err != nil {
			return fmt.Errorf("failed to open debug log file: %w", err)
		}
		DebugLogger.SetOutput(debugFile)
	}
	return nil
}

// LogInfo logs an informational message
func LogInfo(format string, v ...interface{}) {
	_, file, line, _ := runtime.Caller(1)
	InfoLogger.Printf("%s:%d - %s", filepath.Base(file), line, fmt.Sprintf(format, v...))
}

// LogError logs an error message
func LogError(format string, v ...interface{}) {
	_, file, line, _ := runtime.Caller(1)
	ErrorLogger.Printf("%s:%d - %s", filepath.Base(file), line, fmt.Sprintf(format, v...))
}

// LogDebug logs a debug message
func LogDebug(format string, v ...interface{}) {
	_, file, line, _ := runtime.Caller(1)
	DebugLogger.Printf("%s:%d - %s", filepath.Base(file), line, fmt.Sprintf(format, v...))
}

// LogOperation logs the outcome and duration of an operation
func LogOperation(operation string, startTime time.Time, err error) {
	duration := time.Since(startTime)
	if err != nil {
		LogError("Operation %s failed after %v: %v", operation, duration, err)
	} else {
		LogDebug("Operation %s completed in %v", operation, duration)
	}
}
