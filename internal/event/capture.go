package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"go.uber.org/multierr"
)

// CaptureWriter persists a raw event stream as NDJSON, gzip-compressed
// when the path ends in .gz. A capture replayed through the pipeline
// yields the same descriptor set as the live run.
type CaptureWriter struct {
	path string
	f    *os.File
	gz   *gzip.Writer
	w    io.Writer
	n    int64
}

func NewCaptureWriter(path string) (*CaptureWriter, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating capture directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating capture file %s: %w", path, err)
	}
	cw := &CaptureWriter{path: path, f: f, w: f}
	if strings.HasSuffix(path, ".gz") {
		cw.gz = gzip.NewWriter(f)
		cw.w = cw.gz
	}
	return cw, nil
}

// Write appends one event line.
func (cw *CaptureWriter) Write(ev AccessEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	data = append(data, '\n')
	if _, err := cw.w.Write(data); err != nil {
		return fmt.Errorf("writing capture %s: %w", cw.path, err)
	}
	cw.n++
	return nil
}

// Events returns the number of events written so far.
func (cw *CaptureWriter) Events() int64 { return cw.n }

func (cw *CaptureWriter) Path() string { return cw.path }

// Close flushes and closes the capture file.
func (cw *CaptureWriter) Close() error {
	var errs error
	if cw.gz != nil {
		errs = multierr.Append(errs, cw.gz.Close())
	}
	errs = multierr.Append(errs, cw.f.Close())
	if errs != nil {
		return fmt.Errorf("closing capture %s: %w", cw.path, errs)
	}
	return nil
}

// CaptureReader replays a persisted event stream.
type CaptureReader struct {
	path string
	f    *os.File
	gz   *gzip.Reader
	dec  *Decoder
}

func OpenCapture(path string) (*CaptureReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening capture: %w", err)
	}
	cr := &CaptureReader{path: path, f: f}
	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("opening capture %s: %w", path, err)
		}
		cr.gz = gz
		r = gz
	}
	cr.dec = NewDecoder(r)
	return cr, nil
}

// Next returns the next recorded event, io.EOF at the end of the capture.
func (cr *CaptureReader) Next() (AccessEvent, error) {
	ev, err := cr.dec.Next()
	if err != nil && !errors.Is(err, io.EOF) {
		return AccessEvent{}, fmt.Errorf("capture %s: %w", cr.path, err)
	}
	return ev, err
}

func (cr *CaptureReader) Close() error {
	var errs error
	if cr.gz != nil {
		errs = multierr.Append(errs, cr.gz.Close())
	}
	return multierr.Append(errs, cr.f.Close())
}
