package protocol

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
)

// DefaultMaxFrameSize is the largest frame a Decoder accepts by default.
// It bounds what the server reads from vehicles.
const DefaultMaxFrameSize = 64 << 10

// DefaultMaxReplySize bounds the frames clients read from the server. A
// status reply lists every queued actor, so it grows with the queues.
const DefaultMaxReplySize = 16 << 20

// Encoder writes newline-terminated JSON frames.
//
// Thread-safety: Encode may be called from several goroutines; each frame
// is written with a single Write under a mutex so frames never interleave.
type Encoder struct {
	mu sync.Mutex
	w  io.Writer
}

// NewEncoder returns an encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode marshals v and writes it as one frame.
func (e *Encoder) Encode(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	b = append(b, '\n')

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.w.Write(b); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// Decoder splits a byte stream into frames. Blank lines are skipped.
//
// Thread-safety: a Decoder must be used by a single goroutine.
type Decoder struct {
	sc *bufio.Scanner
}

// NewDecoder returns a decoder reading from r. maxFrame <= 0 selects
// DefaultMaxFrameSize.
func NewDecoder(r io.Reader, maxFrame int) *Decoder {
	if maxFrame <= 0 {
		maxFrame = DefaultMaxFrameSize
	}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, min(4096, maxFrame)), maxFrame)
	return &Decoder{sc: sc}
}

// Next returns the next non-blank frame. The slice is only valid until the
// following call. It returns io.EOF at a clean end of stream and
// ErrFrameTooLarge when a line exceeds the limit.
func (d *Decoder) Next() ([]byte, error) {
	for d.sc.Scan() {
		line := bytes.TrimSpace(d.sc.Bytes())
		if len(line) == 0 {
			continue
		}
		return line, nil
	}
	if err := d.sc.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return nil, ErrFrameTooLarge
		}
		return nil, err
	}
	return nil, io.EOF
}

// DecodeRequest unmarshals one request frame.
func DecodeRequest(frame []byte) (Request, error) {
	var r Request
	if err := json.Unmarshal(frame, &r); err != nil {
		return Request{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return r, nil
}

// DecodeResponse unmarshals one response frame.
func DecodeResponse(frame []byte) (Response, error) {
	var r Response
	if err := json.Unmarshal(frame, &r); err != nil {
		return Response{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if r.Status == "" {
		return Response{}, fmt.Errorf("%w: missing status", ErrMalformedFrame)
	}
	return r, nil
}
