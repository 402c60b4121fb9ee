// Package reassembler implements the single framing layer (§4.2, §9)
// that all backend adapters read through. It buffers partial bytes from
// an upstream response body and yields complete, self-describing frames,
// never a partial one.
package reassembler

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"sync/atomic"
)

// Format hints the reassembler which delimiter rule to apply.
type Format int

const (
	// FormatSSE splits on blank-line-separated event:/data: blocks
	// (OpenAI, Gemini, Claude all use this framing on the wire).
	FormatSSE Format = iota
	// FormatJSONLines splits on newlines (Ollama).
	FormatJSONLines
	// FormatSingleJSON yields the entire body as one frame
	// (non-streaming responses).
	FormatSingleJSON
)

// maxFrameBytes bounds a single frame; beyond this a malformed stream is
// treated as terminal rather than merely skipped (§4.2 failure
// semantics).
const maxFrameBytes = 4 << 20 // 4 MiB

// Reassembler buffers upstream bytes and yields frames. Safe for the
// single reader/single canceller pattern the dispatcher uses: Next is
// called from the streaming goroutine, Stop from the disconnect
// monitor.
type Reassembler struct {
	r      *bufio.Reader
	format Format
	stop   atomic.Bool

	buf  bytes.Buffer
	done bool // FormatSingleJSON: whether the single frame was already emitted
}

// New wraps body for framing according to format.
func New(body io.Reader, format Format) *Reassembler {
	return &Reassembler{
		r:      bufio.NewReaderSize(body, 64*1024),
		format: format,
	}
}

// Stop sets the cancellation flag. On the next read boundary Next
// returns io.EOF; any in-flight upstream read is allowed to complete and
// is discarded (§4.2 cancellation).
func (re *Reassembler) Stop() {
	re.stop.Store(true)
}

func (re *Reassembler) Stopped() bool {
	return re.stop.Load()
}

// Next returns the next complete frame, io.EOF when the stream (or the
// stop flag) ends it, or a non-nil error on unrecoverable I/O or framing
// failure (§4.2).
func (re *Reassembler) Next(ctx context.Context) ([]byte, error) {
	if re.stop.Load() {
		return nil, io.EOF
	}

	switch re.format {
	case FormatSingleJSON:
		return re.readAll()
	case FormatJSONLines:
		return re.nextLine(ctx)
	default:
		return re.nextSSEFrame(ctx)
	}
}

func (re *Reassembler) readAll() ([]byte, error) {
	if re.done {
		return nil, io.EOF
	}
	b, err := io.ReadAll(re.r)
	if err != nil && err != io.EOF {
		return nil, err
	}
	re.done = true
	return b, nil
}

func (re *Reassembler) nextLine(ctx context.Context) ([]byte, error) {
	for {
		if re.stop.Load() {
			return nil, io.EOF
		}
		if idx := bytes.IndexByte(re.buf.Bytes(), '\n'); idx >= 0 {
			line := make([]byte, idx)
			copy(line, re.buf.Bytes()[:idx])
			re.buf.Next(idx + 1)
			return bytes.TrimRight(line, "\r"), nil
		}
		if err := re.fill(); err != nil {
			if err == io.EOF && re.buf.Len() > 0 {
				line := re.buf.Bytes()
				out := make([]byte, len(line))
				copy(out, line)
				re.buf.Reset()
				return out, nil
			}
			return nil, err
		}
		if re.buf.Len() > maxFrameBytes {
			return nil, errFrameTooLarge
		}
	}
}

func (re *Reassembler) nextSSEFrame(ctx context.Context) ([]byte, error) {
	for {
		if re.stop.Load() {
			return nil, io.EOF
		}
		if idx := bytes.Index(re.buf.Bytes(), []byte("\n\n")); idx >= 0 {
			frame := make([]byte, idx)
			copy(frame, re.buf.Bytes()[:idx])
			re.buf.Next(idx + 2)
			return frame, nil
		}
		if err := re.fill(); err != nil {
			if err == io.EOF {
				if re.buf.Len() > 0 {
					frame := re.buf.Bytes()
					out := make([]byte, len(frame))
					copy(out, frame)
					re.buf.Reset()
					return out, nil
				}
				return nil, io.EOF
			}
			return nil, err
		}
		if re.buf.Len() > maxFrameBytes {
			return nil, errFrameTooLarge
		}
	}
}

// fill performs one upstream read and appends it to the buffer.
func (re *Reassembler) fill() error {
	chunk := make([]byte, 32*1024)
	n, err := re.r.Read(chunk)
	if n > 0 {
		re.buf.Write(chunk[:n])
	}
	if err != nil {
		return err
	}
	return nil
}

var errFrameTooLarge = &frameError{"frame exceeds safety bound"}

type frameError struct{ msg string }

func (e *frameError) Error() string { return e.msg }
