package panics

import (
	"fmt"
	"os"
	"runtime/debug"
	"time"

	"github.com/timecoin/timed/infrastructure/logger"
)

const exitHandlerTimeout = 5 * time.Second

// HandlePanic recovers a panic, logs it together with the stack trace of
// the goroutine that spawned the panicking one, and exits the process.
func HandlePanic(log *logger.Logger, spawnStackTrace []byte) {
	err := recover()
	if err == nil {
		return
	}
	exit(log, fmt.Sprintf("Fatal error: %+v", err), debug.Stack(), spawnStackTrace)
}

// GoroutineWrapperFunc returns a `go` replacement that routes panics of the
// spawned goroutine through HandlePanic.
func GoroutineWrapperFunc(log *logger.Logger) func(func()) {
	return func(f func()) {
		stackTrace := debug.Stack()
		go func() {
			defer HandlePanic(log, stackTrace)
			f()
		}()
	}
}

// AfterFuncWrapperFunc is GoroutineWrapperFunc for time.AfterFunc.
func AfterFuncWrapperFunc(log *logger.Logger) func(d time.Duration, f func()) *time.Timer {
	return func(d time.Duration, f func()) *time.Timer {
		stackTrace := debug.Stack()
		return time.AfterFunc(d, func() {
			defer HandlePanic(log, stackTrace)
			f()
		})
	}
}

// Exit logs reason at critical level, flushes the log backend and exits.
func Exit(log *logger.Logger, reason string) {
	exit(log, reason, nil, nil)
}

func exit(log *logger.Logger, reason string, stackTrace []byte, spawnStackTrace []byte) {
	flushed := make(chan struct{})
	go func() {
		log.Criticalf("Exiting: %s", reason)
		if spawnStackTrace != nil {
			log.Criticalf("Spawned at: %s", spawnStackTrace)
		}
		if stackTrace != nil {
			log.Criticalf("Stack trace: %s", stackTrace)
		}
		log.Backend().Close()
		close(flushed)
	}()

	select {
	case <-time.After(exitHandlerTimeout):
		fmt.Fprintln(os.Stderr, "Couldn't exit gracefully.")
	case <-flushed:
	}
	os.Exit(1)
}
