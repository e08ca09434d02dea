package compress

import "io"

type Nop struct {
}

func NewNop() Nop {
	return Nop{}
}

func (n Nop) Name() string {
	return "none"
}

func (n Nop) Compress(w io.Writer) io.WriteCloser {
	return nopWriteCloser{w}
}

func (n Nop) Decompress(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(r), nil
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error {
	return nil
}
