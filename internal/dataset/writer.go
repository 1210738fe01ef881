package dataset

import (
	"bufio"
	"fmt"
	"io"
	"os"
)

// DefaultFlushBytes is the chunk size above which the writer flushes.
const DefaultFlushBytes = 1024

// Writer writes chunk texts in order, separated like the in-memory join of
// a run, and flushes after every chunk larger than its threshold.
type Writer struct {
	buf        *bufio.Writer
	closer     io.Closer // nil when the destination is not owned
	separator  string
	flushBytes int
	chunks     int
	bytes      int
}

// NewWriter wraps dst. A non-positive flushBytes uses DefaultFlushBytes.
func NewWriter(dst io.Writer, separator string, flushBytes int) *Writer {
	if flushBytes <= 0 {
		flushBytes = DefaultFlushBytes
	}
	return &Writer{
		buf:        bufio.NewWriter(dst),
		separator:  separator,
		flushBytes: flushBytes,
	}
}

// Create truncates or creates the file at path and returns a Writer that
// owns it.
func Create(path, separator string, flushBytes int) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	w := NewWriter(f, separator, flushBytes)
	w.closer = f
	return w, nil
}

// WriteChunk appends one chunk's text.
func (w *Writer) WriteChunk(text string) error {
	if w.chunks > 0 {
		n, err := w.buf.WriteString(w.separator)
		w.bytes += n
		if err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}

	n, err := w.buf.WriteString(text)
	w.bytes += n
	if err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	w.chunks++

	if len(text) > w.flushBytes {
		if err := w.buf.Flush(); err != nil {
			return fmt.Errorf("failed to flush output: %w", err)
		}
	}
	return nil
}

// Bytes returns the number of bytes written so far.
func (w *Writer) Bytes() int {
	return w.bytes
}

// Close flushes buffered output and closes the destination if owned.
func (w *Writer) Close() error {
	if err := w.buf.Flush(); err != nil {
		if w.closer != nil {
			w.closer.Close()
		}
		return fmt.Errorf("failed to flush output: %w", err)
	}
	if w.closer != nil {
		return w.closer.Close()
	}
	return nil
}
