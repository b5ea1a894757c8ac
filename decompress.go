package pseudobulk

import (
	"bufio"
	"compress/bzip2"
	"compress/gzip"
	"compress/zlib"
	"io"

	"github.com/krolaw/zipstream"
	"github.com/xi2/xz"
)

type DataType byte

const (
	DataTypeNoCompression DataType = iota
	DataTypeGzip
	DataTypeZip
	DataTypeXZ
	DataTypeZ
	DataTypeBZip2
)

// Byte code signatures from https://stackoverflow.com/a/19127748/199475
var byteCodeSigs = map[DataType][]byte{
	DataTypeGzip:  {0x1f, 0x8b, 0x08},
	DataTypeZip:   {0x50, 0x4b, 0x03, 0x04},
	DataTypeXZ:    {0xfd, 0x37, 0x7a, 0x58, 0x5a, 0x00},
	DataTypeZ:     {0x1f, 0x9d},
	DataTypeBZip2: {0x42, 0x5a, 0x68},
}

// DetectDataType matches the leading bytes of a stream against the known
// compression signatures.
func DetectDataType(lead []byte) DataType {
Outer:
	for dt, sig := range byteCodeSigs {
		if len(lead) < len(sig) {
			continue
		}
		for position := range sig {
			if lead[position] != sig[position] {
				continue Outer
			}
		}
		return dt
	}

	return DataTypeNoCompression
}

// MaybeDecompress wraps rc with the appropriate decompressor if its leading
// bytes match a known compression signature, and otherwise passes it through
// unchanged. Closing the returned ReadCloser closes rc.
func MaybeDecompress(rc io.ReadCloser) (io.ReadCloser, error) {
	br := bufio.NewReader(rc)

	lead, err := br.Peek(6)
	if err != nil && err != io.EOF {
		rc.Close()
		return nil, err
	}

	switch DetectDataType(lead) {
	case DataTypeGzip:
		gz, err := gzip.NewReader(br)
		if err != nil {
			rc.Close()
			return nil, err
		}
		return splitReadCloser{gz, rc}, nil
	case DataTypeZip:
		return splitReadCloser{zipstream.NewReader(br), rc}, nil
	case DataTypeBZip2:
		return splitReadCloser{bzip2.NewReader(br), rc}, nil
	case DataTypeXZ:
		xzr, err := xz.NewReader(br, 0)
		if err != nil {
			rc.Close()
			return nil, err
		}
		return splitReadCloser{xzr, rc}, nil
	case DataTypeZ:
		zr, err := zlib.NewReader(br)
		if err != nil {
			rc.Close()
			return nil, err
		}
		return splitReadCloser{zr, rc}, nil
	}

	// No known signature. Assume the content is uncompressed.
	return splitReadCloser{br, rc}, nil
}

// splitReadCloser reads from the (possibly decompressing) reader while
// closing the underlying source.
type splitReadCloser struct {
	io.Reader
	io.Closer
}
