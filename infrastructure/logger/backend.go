package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/jrick/logrotate/rotator"
	"github.com/pkg/errors"
)

// defaultFlags is read from the LOGFLAGS environment variable once, before
// any subsystem logger is registered.
var defaultFlags = getDefaultFlags()

// Flags to modify Backend's behavior.
const (
	// LogFlagLongFile adds the full path and line number of the callsite.
	LogFlagLongFile uint32 = 1 << iota

	// LogFlagShortFile adds the file name and line number of the callsite.
	// Takes precedence over LogFlagLongFile.
	LogFlagShortFile
)

func getDefaultFlags() (flags uint32) {
	for _, f := range strings.Split(os.Getenv("LOGFLAGS"), ",") {
		switch f {
		case "longfile":
			flags |= LogFlagLongFile
		case "shortfile":
			flags |= LogFlagShortFile
		}
	}
	return
}

const (
	logEntriesBuffer   = 256
	defaultThresholdKB = 100 * 1000 // 100 MB
	defaultMaxRolls    = 8
)

type logEntry struct {
	log   []byte
	level Level
}

type logWriter struct {
	io.WriteCloser
	level Level
}

// Backend serializes the output of every subsystem logger into a set of
// writers, each of which receives the entries at or above its own level.
type Backend struct {
	flag      uint32
	isRunning uint32
	writers   []logWriter
	entries   chan logEntry
	closeLock sync.RWMutex
	done      sync.WaitGroup
}

// NewBackendWithFlags creates a Backend using the given flags instead of
// the ones parsed from LOGFLAGS.
func NewBackendWithFlags(flags uint32) *Backend {
	return &Backend{flag: flags, entries: make(chan logEntry, logEntriesBuffer)}
}

// NewBackend creates a new logger backend.
func NewBackend() *Backend {
	return NewBackendWithFlags(defaultFlags)
}

// AddLogFile adds a rotated log file that receives every entry at
// logLevel or above.
func (b *Backend) AddLogFile(logFile string, logLevel Level) error {
	return b.AddLogFileWithCustomRotator(logFile, logLevel, defaultThresholdKB, defaultMaxRolls)
}

// AddLogFileWithCustomRotator is AddLogFile with explicit rotation settings.
func (b *Backend) AddLogFileWithCustomRotator(logFile string, logLevel Level, thresholdKB int64, maxRolls int) error {
	logDir, _ := filepath.Split(logFile)
	if logDir != "" {
		err := os.MkdirAll(logDir, 0700)
		if err != nil {
			return errors.Wrapf(err, "failed to create log directory %s", logDir)
		}
	}
	r, err := rotator.New(logFile, thresholdKB, false, maxRolls)
	if err != nil {
		return errors.Wrapf(err, "failed to create file rotator for %s", logFile)
	}
	return b.AddLogWriter(r, logLevel)
}

// AddLogWriter adds an arbitrary writer, such as os.Stdout.
func (b *Backend) AddLogWriter(writer io.WriteCloser, logLevel Level) error {
	if b.IsRunning() {
		return errors.New("the logger is already running")
	}
	b.writers = append(b.writers, logWriter{WriteCloser: writer, level: logLevel})
	return nil
}

// Run starts draining log entries into the writers. It must be called once.
func (b *Backend) Run() error {
	if !atomic.CompareAndSwapUint32(&b.isRunning, 0, 1) {
		return errors.New("the logger is already running")
	}
	b.done.Add(1)
	go func() {
		defer b.done.Done()
		defer func() {
			if err := recover(); err != nil {
				_, _ = fmt.Fprintf(os.Stderr, "Fatal error in logger.Backend goroutine: %+v\n", err)
				_, _ = fmt.Fprintf(os.Stderr, "Goroutine stacktrace: %s\n", debug.Stack())
			}
		}()
		for entry := range b.entries {
			for _, writer := range b.writers {
				if entry.level >= writer.level {
					_, _ = writer.Write(entry.log)
				}
			}
		}
	}()
	return nil
}

// IsRunning returns whether Run was called and Close was not.
func (b *Backend) IsRunning() bool {
	return atomic.LoadUint32(&b.isRunning) != 0
}

// Close flushes pending entries and closes every writer.
func (b *Backend) Close() {
	b.closeLock.Lock()
	if !atomic.CompareAndSwapUint32(&b.isRunning, 1, 0) {
		b.closeLock.Unlock()
		return
	}
	close(b.entries)
	b.closeLock.Unlock()
	b.done.Wait()
	for _, writer := range b.writers {
		_ = writer.Close()
	}
}

func (b *Backend) write(entry logEntry) {
	b.closeLock.RLock()
	defer b.closeLock.RUnlock()
	if !b.IsRunning() {
		return
	}
	b.entries <- entry
}

// Logger returns a new logger for the given subsystem tag. The logger
// starts muted; its level is set by SetLogLevels or SetLogLevel.
func (b *Backend) Logger(subsystemTag string) *Logger {
	return &Logger{level: uint32(LevelOff), tag: subsystemTag, backend: b}
}
