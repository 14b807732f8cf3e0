package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
)

// fileSink appends to a log file, opening it lazily. If the file is removed
// or rotated away underneath it, the next write reopens the path.
type fileSink struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	opened os.FileInfo
}

func newFileSink(path string) *fileSink {
	return &fileSink{path: path}
}

// Write implements io.Writer.
func (s *fileSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, err := s.writer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "envmirror-log: %v\n", err)
		return 0, err
	}
	return w.Write(p)
}

// Close implements io.Closer.
func (s *fileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	s.opened = nil
	return err
}

func (s *fileSink) writer() (io.Writer, error) {
	if s.file != nil {
		current, err := os.Stat(s.path)
		if err == nil && os.SameFile(current, s.opened) {
			return s.file, nil
		}
		s.file.Close()
		s.file = nil
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("stat log file: %w", err)
	}
	s.file = file
	s.opened = info
	return file, nil
}

// fileHook writes every entry to a fileSink with its own formatter, so the
// file can be JSON while stderr stays human readable.
type fileHook struct {
	sink      *fileSink
	formatter logrus.Formatter
}

func (h *fileHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *fileHook) Fire(entry *logrus.Entry) error {
	line, err := h.formatter.Format(entry)
	if err != nil {
		return err
	}
	_, err = h.sink.Write(line)
	return err
}
