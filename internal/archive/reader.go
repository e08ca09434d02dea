package archive

import (
	"archive/tar"
	"fmt"
	"io"

	"github.com/quillsec/quill/internal/compress"
)

// Entry is one named byte entry of an archive. Its reader is only valid until
// the next call to Reader.Next.
type Entry struct {
	Name string
	Size int64
	r    io.Reader
}

func (e *Entry) Read(p []byte) (int, error) {
	n, err := e.r.Read(p)
	if err != nil && err != io.EOF {
		return n, fmt.Errorf("%w: entry %q: %v", ErrFormat, e.Name, err)
	}
	return n, err
}

// Reader produces a lazy, forward-only sequence of entries in archive order.
// Each entry is readable once.
type Reader struct {
	dc io.ReadCloser
	tr *tar.Reader
}

func NewReader(r io.Reader, codec compress.Codec) (*Reader, error) {
	dc, err := codec.Decompress(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	return &Reader{
		dc: dc,
		tr: tar.NewReader(dc),
	}, nil
}

// Next advances to the next regular entry. It returns io.EOF at the end of
// the archive and wraps any malformed or truncated input in ErrFormat.
func (r *Reader) Next() (*Entry, error) {
	for {
		hdr, err := r.tr.Next()
		if err == io.EOF {
			return nil, io.EOF
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFormat, err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		return &Entry{
			Name: NormalizeName(hdr.Name),
			Size: hdr.Size,
			r:    r.tr,
		}, nil
	}
}

func (r *Reader) Close() error {
	return r.dc.Close()
}
