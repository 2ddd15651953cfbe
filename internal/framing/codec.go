// SPDX-License-Identifier: Apache-2.0

// Package framing implements the native messaging wire format: every frame
// is a 4-byte little-endian payload length followed by that many bytes of
// UTF-8 JSON. The same format is used in both directions.
package framing

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/adiadia/syrphid-receiver/internal/domain"
)

const headerLength = 4

// MaxFrameSize bounds a single inbound payload. Larger frames are skipped
// and reported as framing errors.
const MaxFrameSize = 64 * 1024 * 1024

// ErrEndOfStream is returned by Decode when no header byte was available.
// It is not a failure: the peer has nothing to send right now.
var ErrEndOfStream = errors.New("end of stream")

// Decode reads one frame from r and returns its payload. Invalid UTF-8 in
// the payload is replaced with U+FFFD instead of failing.
//
// Malformed frames return an error wrapping domain.ErrFraming; the caller
// may call Decode again on the same reader. Any other error comes from the
// underlying reader.
func Decode(r io.Reader) ([]byte, error) {
	var header [headerLength]byte
	n, err := io.ReadFull(r, header[:])
	switch {
	case n == 0 && errors.Is(err, io.EOF):
		return nil, ErrEndOfStream
	case errors.Is(err, io.ErrUnexpectedEOF):
		return nil, fmt.Errorf("%w: read %d header bytes, want %d", domain.ErrFraming, n, headerLength)
	case err != nil:
		return nil, fmt.Errorf("read frame header: %w", err)
	}

	length := binary.LittleEndian.Uint32(header[:])
	if length > MaxFrameSize {
		if _, err := io.CopyN(io.Discard, r, int64(length)); err != nil {
			return nil, fmt.Errorf("%w: frame length %d exceeds maximum %d (discard: %v)", domain.ErrFraming, length, MaxFrameSize, err)
		}
		return nil, fmt.Errorf("%w: frame length %d exceeds maximum %d", domain.ErrFraming, length, MaxFrameSize)
	}

	payload := make([]byte, length)
	if length > 0 {
		read, err := io.ReadFull(r, payload)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, fmt.Errorf("%w: read %d payload bytes, want %d", domain.ErrFraming, read, length)
			}
			return nil, fmt.Errorf("read frame payload: %w", err)
		}
	}

	if !utf8.Valid(payload) {
		payload = []byte(strings.ToValidUTF8(string(payload), string(utf8.RuneError)))
	}
	return payload, nil
}

// Encode returns the complete frame for payload.
func Encode(payload []byte) []byte {
	frame := make([]byte, headerLength+len(payload))
	binary.LittleEndian.PutUint32(frame[:headerLength], uint32(len(payload)))
	copy(frame[headerLength:], payload)
	return frame
}

type flusher interface {
	Flush() error
}

// Writer writes whole frames. Concurrent WriteFrame calls never interleave
// their bytes on the underlying writer.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteFrame writes header and payload with a single Write call and flushes
// the underlying writer when it buffers.
func (fw *Writer) WriteFrame(payload []byte) error {
	if uint64(len(payload)) > math.MaxUint32 {
		return fmt.Errorf("%w: payload of %d bytes does not fit a frame", domain.ErrFraming, len(payload))
	}
	frame := Encode(payload)

	fw.mu.Lock()
	defer fw.mu.Unlock()

	if _, err := fw.w.Write(frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	if f, ok := fw.w.(flusher); ok {
		if err := f.Flush(); err != nil {
			return fmt.Errorf("flush frame: %w", err)
		}
	}
	return nil
}
