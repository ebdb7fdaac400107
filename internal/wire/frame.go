package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// frameHeaderSize is the width of the length prefix: a single big-endian
// uint32 byte count for the frame body that follows.
const frameHeaderSize = 4

// DefaultMaxFrameBytes bounds a single frame so a misbehaving or malicious
// peer cannot force an unbounded allocation via a crafted length prefix.
const DefaultMaxFrameBytes = 16 << 20

// WriteFrame writes a length-prefixed frame to w: a 4-byte big-endian
// length header followed by body.
func WriteFrame(w io.Writer, body []byte) error {
	var header [frameHeaderSize]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(body)))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("wire: write frame header: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("wire: write frame body: %w", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed frame from r. maxBytes bounds the
// accepted body length; a frame declaring more is a protocol error.
func ReadFrame(r io.Reader, maxBytes uint32) ([]byte, error) {
	var header [frameHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(header[:])
	if n > maxBytes {
		return nil, fmt.Errorf("wire: frame of %d bytes exceeds limit %d", n, maxBytes)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("wire: read frame body: %w", err)
	}
	return body, nil
}
