package archive

import (
	"archive/tar"
	"fmt"
	"io"
	"time"

	"github.com/quillsec/quill/internal/compress"
)

// Writer emits archive entries to an underlying stream. Writes are append
// only; the writer never rolls back bytes that already reached the sink.
type Writer struct {
	cw io.WriteCloser
	tw *tar.Writer
}

func NewWriter(w io.Writer, codec compress.Codec) *Writer {
	cw := codec.Compress(w)
	return &Writer{
		cw: cw,
		tw: tar.NewWriter(cw),
	}
}

// WriteEntry appends one named entry of exactly size bytes read from r.
func (w *Writer) WriteEntry(name string, size int64, r io.Reader) error {
	hdr := &tar.Header{
		Typeflag: tar.TypeReg,
		Name:     NormalizeName(name),
		Size:     size,
		Mode:     0o644,
		ModTime:  time.Now(),
	}
	if err := w.tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("archive: write header %q: %w", name, err)
	}
	if _, err := io.Copy(w.tw, r); err != nil {
		return fmt.Errorf("archive: write entry %q: %w", name, err)
	}
	return nil
}

// Close flushes the tar trailer and the compressor.
func (w *Writer) Close() error {
	if err := w.tw.Close(); err != nil {
		return err
	}
	return w.cw.Close()
}
