package core

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

// LogLevel is a minimum verbosity of the loggers.
type LogLevel int

const (
	// LogLevelDebug enables all loggers.
	LogLevelDebug LogLevel = iota
	// LogLevelInfo disables debug logging.
	LogLevelInfo
	// LogLevelWarning leaves only warnings and errors.
	LogLevelWarning
	// LogLevelError leaves only errors.
	LogLevelError
	// LogLevelNone disables logging.
	LogLevelNone
)

var (
	// LogDbg logs diagnostic events.
	LogDbg = log.New(io.Discard, "dbg:", log.LstdFlags)
	// LogInf logs informational events.
	LogInf = log.New(os.Stderr, "inf:", log.LstdFlags)
	// LogWrn logs warning events.
	LogWrn = log.New(os.Stderr, "wrn:", log.LstdFlags)
	// LogErr logs error events.
	LogErr = log.New(os.Stderr, "err:", log.LstdFlags)

	logMu     sync.Mutex
	logOutput io.Writer = os.Stderr
	logLevel            = LogLevelInfo
)

// SetLogFile setups a log file for all loggers.
func SetLogFile(path string) error {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		return err
	}

	logMu.Lock()
	defer logMu.Unlock()

	logOutput = file

	for _, logger := range loggers() {
		logger.SetFlags(log.LUTC | log.Ldate | log.Ltime | log.Lmicroseconds | log.Lshortfile)
	}

	applyLevel()

	return nil
}

// SetLogLevel sets the minimum verbosity, loggers below it are discarded.
func SetLogLevel(level LogLevel) {
	logMu.Lock()
	defer logMu.Unlock()

	logLevel = level
	applyLevel()
}

// ParseLogLevel converts a textual level into LogLevel.
//
// Remarks:
//   - Both short ("warn") and long ("warning", "information") names are accepted,
//     the comparison is case-insensitive.
func ParseLogLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace", "debug":
		return LogLevelDebug, nil
	case "", "info", "information":
		return LogLevelInfo, nil
	case "warn", "warning":
		return LogLevelWarning, nil
	case "error", "critical":
		return LogLevelError, nil
	case "none", "off":
		return LogLevelNone, nil
	default:
		return LogLevelInfo, fmt.Errorf("unknown log level: %q", s)
	}
}

func loggers() []*log.Logger {
	return []*log.Logger{LogDbg, LogInf, LogWrn, LogErr}
}

func applyLevel() {
	for i, logger := range loggers() {
		if LogLevel(i) >= logLevel {
			logger.SetOutput(logOutput)
		} else {
			logger.SetOutput(io.Discard)
		}
	}
}
