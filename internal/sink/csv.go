package sink

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ArchiveFile is the name of the CSV file written under the archive
// directory.
const ArchiveFile = "proofs.csv"

// CSVSink appends completed proofs to a single CSV file. The header row is
// written only when the file is created, so restarts keep appending to the
// same archive.
type CSVSink struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
}

// NewCSVSink opens (or creates) the archive under outputDir, creating the
// directory tree if it doesn't already exist.
func NewCSVSink(outputDir string) (*CSVSink, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}

	fp := filepath.Join(outputDir, ArchiveFile)
	_, err := os.Stat(fp)
	exists := !os.IsNotExist(err)

	f, err := os.OpenFile(fp, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive file %s: %w", fp, err)
	}

	w := csv.NewWriter(f)
	if !exists {
		if err := w.Write(recordHeaders); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to write archive header: %w", err)
		}
		w.Flush()
		if err := w.Error(); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to flush archive header: %w", err)
		}
	}

	return &CSVSink{file: f, writer: w}, nil
}

// Write appends rec as a CSV row and flushes it.
func (s *CSVSink) Write(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writer.Write(rec.row()); err != nil {
		return err
	}
	s.writer.Flush()
	return s.writer.Error()
}

func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		s.file.Close()
		return err
	}
	return s.file.Close()
}
