// Package logger provides the process-wide logger used by visual-diff.
//
// Messages go to an optional log file. Warnings and errors are also mirrored
// to a console writer (stderr unless changed) so screenshot mismatches stay
// visible in test output when no log file is configured.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
)

var (
	globalLogger  *log.Logger
	consoleLogger = log.New(os.Stderr, "", 0)
	logFile       *os.File
	verbose       bool
	mu            sync.Mutex
)

// Init initializes the global logger with the specified log file path.
func Init(logPath string) error {
	mu.Lock()
	defer mu.Unlock()

	// Close previous log file if exists
	if logFile != nil {
		logFile.Close()
	}

	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}

	logFile = f
	globalLogger = log.New(f, "", log.Ltime|log.Lmicroseconds)

	return nil
}

// SetOutput routes file-level logging to w instead of a log file.
// Passing nil disables it.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
	if w == nil {
		globalLogger = nil
		return
	}
	globalLogger = log.New(w, "", log.Ltime|log.Lmicroseconds)
}

// SetConsole sets the writer warnings and errors are mirrored to.
// Passing nil silences the console.
func SetConsole(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()

	if w == nil {
		w = io.Discard
	}
	consoleLogger = log.New(w, "", 0)
}

// SetVerbose mirrors info and debug messages to the console too.
func SetVerbose(v bool) {
	mu.Lock()
	defer mu.Unlock()
	verbose = v
}

// Close closes the log file.
func Close() {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		logFile.Close()
		logFile = nil
		globalLogger = nil
	}
}

// Info logs an info message.
func Info(format string, v ...interface{}) {
	logf("INFO", false, format, v...)
}

// Debug logs a debug message.
func Debug(format string, v ...interface{}) {
	logf("DEBUG", false, format, v...)
}

// Warn logs a warning message.
func Warn(format string, v ...interface{}) {
	logf("WARN", true, format, v...)
}

// Error logs an error message.
func Error(format string, v ...interface{}) {
	logf("ERROR", true, format, v...)
}

func logf(level string, console bool, format string, v ...interface{}) {
	mu.Lock()
	defer mu.Unlock()

	if globalLogger != nil {
		globalLogger.Printf("["+level+"] "+format, v...)
	}
	if console || verbose {
		consoleLogger.Printf(level+": "+format, v...)
	}
}

// GetWriter returns the underlying writer for use by other components.
func GetWriter() io.Writer {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		return logFile
	}
	return io.Discard
}
