package compress

import (
	"io"

	"github.com/pierrec/lz4/v4"
)

type LZ4 struct {
}

func NewLZ4() LZ4 {
	return LZ4{}
}

func (l LZ4) Name() string {
	return "lz4"
}

func (l LZ4) Compress(w io.Writer) io.WriteCloser {
	return lz4.NewWriter(w)
}

func (l LZ4) Decompress(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(lz4.NewReader(r)), nil
}
