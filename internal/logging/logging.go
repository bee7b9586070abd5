// Package logging is a small leveled key/value logger on top of the
// standard library logger. Level is controlled with CALENS_LOG_LEVEL
// (debug|info|error, default info).
package logging

import (
	"fmt"
	stdlog "log"
	"os"
	"strings"
	"sync"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelError
)

var (
	mu       sync.Mutex
	logger   = stdlog.New(os.Stderr, "", stdlog.LstdFlags)
	minLevel = levelFromEnv()
)

func levelFromEnv() Level {
	switch strings.ToLower(os.Getenv("CALENS_LOG_LEVEL")) {
	case "debug":
		return LevelDebug
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// SetLevel overrides the minimum level.
func SetLevel(l Level) {
	mu.Lock()
	defer mu.Unlock()
	minLevel = l
}

// SetOutput redirects log output (used by tests).
func SetOutput(w interface{ Write([]byte) (int, error) }) {
	mu.Lock()
	defer mu.Unlock()
	logger.SetOutput(w)
}

func Debug(msg string, kv ...any) { emit(LevelDebug, "DEBUG", msg, kv...) }

func Info(msg string, kv ...any) { emit(LevelInfo, "INFO", msg, kv...) }

// Error logs msg with the error prepended to the key/value list.
func Error(msg string, err error, kv ...any) {
	emit(LevelError, "ERROR", msg, append([]any{"err", err}, kv...)...)
}

func emit(l Level, tag, msg string, kv ...any) {
	mu.Lock()
	defer mu.Unlock()
	if l < minLevel {
		return
	}
	line := "[" + tag + "] " + msg
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		line += " " + key + "=" + fmt.Sprint(kv[i+1])
	}
	logger.Println(line)
}
