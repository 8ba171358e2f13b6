package log

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// FileOption configures a FileLogger.
type FileOption func(*FileLogger)

// WithMaxSize rotates the file once it grows past n bytes: the current file
// is renamed to path + ".1", replacing an older one, and a new file is
// started. Zero disables rotation.
func WithMaxSize(n int64) FileOption {
	return func(l *FileLogger) { l.maxSize = n }
}

// FileLogger appends events to a CBOR log file. Safe for concurrent use.
type FileLogger struct {
	path    string
	maxSize int64
	dropped atomic.Int64

	mu     sync.Mutex
	file   *os.File
	size   int64
	closed bool
}

// NewFileLogger opens path for appending, creating it with a header if it
// does not exist or is empty.
func NewFileLogger(path string, opts ...FileOption) (*FileLogger, error) {
	l := &FileLogger{path: path}
	for _, opt := range opts {
		opt(l)
	}
	if err := l.open(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *FileLogger) open() error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return err
	}
	l.file = f
	l.size = info.Size()
	if l.size == 0 {
		if err := l.write(Header{Format: FileFormat, Version: FileVersion, Created: time.Now()}); err != nil {
			_ = f.Close()
			return fmt.Errorf("writing header: %w", err)
		}
	}
	return nil
}

func (l *FileLogger) write(v any) error {
	data, err := encMode.Marshal(v)
	if err != nil {
		return err
	}
	n, err := l.file.Write(data)
	l.size += int64(n)
	return err
}

// Log appends event. Events that cannot be written are counted in Dropped.
func (l *FileLogger) Log(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}
	if l.maxSize > 0 && l.size >= l.maxSize {
		if err := l.rotate(); err != nil {
			l.dropped.Add(1)
			return
		}
	}
	if err := l.write(event); err != nil {
		l.dropped.Add(1)
	}
}

func (l *FileLogger) rotate() error {
	if err := l.file.Close(); err != nil {
		return err
	}
	if err := os.Rename(l.path, l.path+".1"); err != nil {
		return err
	}
	return l.open()
}

// Dropped returns the number of events that could not be written.
func (l *FileLogger) Dropped() int64 {
	return l.dropped.Load()
}

// Close closes the file. Later calls to Log are ignored.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	return l.file.Close()
}

var _ Logger = (*FileLogger)(nil)
