// Package codec turns job artifacts into opaque compressed blobs for
// the store and back again.
package codec

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
)

// Kind selects how an artifact file is turned into a blob.
type Kind string

const (
	// Compress reads the file verbatim and compresses it.
	Compress Kind = "compress"
	// Gzip expects a gzip file, inflates it and compresses the
	// contents, so every blob shares one encoding.
	Gzip Kind = "gzip"
	// Raw stores the file bytes untouched.
	Raw Kind = "raw"
)

// ErrUnknownKind is returned for an unsupported artifact kind.
var ErrUnknownKind = errors.New("unknown artifact kind")

var gzipMagic = []byte{0x1f, 0x8b}

// Encode compresses a buffer.
func Encode(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, zlib.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeString compresses a string.
func EncodeString(s string) ([]byte, error) {
	return Encode([]byte(s))
}

// EncodeFile reads an artifact from disk and encodes it per kind.
func EncodeFile(path string, kind Kind) ([]byte, error) {
	switch kind {
	case Raw:
		return os.ReadFile(path)
	case Compress, "":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return Encode(data)
	case Gzip:
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		zr, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		defer zr.Close()

		data, err := io.ReadAll(zr)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return Encode(data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

// Decode reverses Encode.
func Decode(blob []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(blob))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}

// DecodeString reverses EncodeString.
func DecodeString(blob []byte) (string, error) {
	data, err := Decode(blob)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Open opens a file for reading, inflating it on the fly when it
// carries the gzip magic number.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	br := bufio.NewReader(f)
	head, err := br.Peek(len(gzipMagic))
	if err != nil && !errors.Is(err, io.EOF) {
		f.Close()
		return nil, err
	}

	if !bytes.Equal(head, gzipMagic) {
		return &readCloser{Reader: br, close: f.Close}, nil
	}

	zr, err := gzip.NewReader(br)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return &readCloser{
		Reader: zr,
		close: func() error {
			zerr := zr.Close()
			if err := f.Close(); err != nil {
				return err
			}
			return zerr
		},
	}, nil
}

type readCloser struct {
	io.Reader
	close func() error
}

func (r *readCloser) Close() error {
	return r.close()
}
