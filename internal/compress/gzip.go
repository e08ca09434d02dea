package compress

import (
	"compress/gzip"
	"io"
)

// GZip is the default codec. Exported archives are plain tar.gz streams.
type GZip struct {
}

func NewGZip() GZip {
	return GZip{}
}

func (g GZip) Name() string {
	return "gzip"
}

func (g GZip) Compress(w io.Writer) io.WriteCloser {
	return gzip.NewWriter(w)
}

func (g GZip) Decompress(r io.Reader) (io.ReadCloser, error) {
	gr, err := gzip.NewReader(r)
	if err != nil {
		return nil, err
	}
	return gr, nil
}
