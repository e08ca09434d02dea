package compress

import (
	"io"

	"github.com/andybalholm/brotli"
)

type Brotli struct {
}

func NewBrotli() Brotli {
	return Brotli{}
}

func (b Brotli) Name() string {
	return "brotli"
}

func (b Brotli) Compress(w io.Writer) io.WriteCloser {
	return brotli.NewWriter(w)
}

func (b Brotli) Decompress(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(brotli.NewReader(r)), nil
}
