package compress

import (
	"fmt"
	"io"
)

// Codec compresses and decompresses byte streams. Archive reading and writing
// is forward-only, so codecs must work without random access.
type Codec interface {
	Name() string
	Compress(w io.Writer) io.WriteCloser
	Decompress(r io.Reader) (io.ReadCloser, error)
}

// ForName returns the codec registered under name.
func ForName(name string) (Codec, error) {
	switch name {
	case "gzip", "":
		return NewGZip(), nil
	case "lz4":
		return NewLZ4(), nil
	case "brotli":
		return NewBrotli(), nil
	case "none":
		return NewNop(), nil
	default:
		return nil, fmt.Errorf("compress: unknown codec %q", name)
	}
}
