package transport

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
)

// gzipCompress compresses data, used to frame every outbound application
// message per spec §4.1.
func gzipCompress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, fmt.Errorf("gzip write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("gzip close: %w", err)
	}
	return buf.Bytes(), nil
}

// gzipDecompress reverses gzipCompress. Callers must already have confirmed
// the gzip magic bytes before calling this.
func gzipDecompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("gzip reader: %w", err)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("gzip read: %w", err)
	}
	return out, nil
}

// maybeDecompress decompresses data if it looks like a gzip stream (per
// spec §4.1's "0x1f 0x8b magic" rule), otherwise returns it unchanged.
func maybeDecompress(data []byte) ([]byte, error) {
	if len(data) >= 2 && data[0] == gzipMagic[0] && data[1] == gzipMagic[1] {
		return gzipDecompress(data)
	}
	return data, nil
}
