package reassembler

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReassembler_SSEFrames(t *testing.T) {
	body := "event: message_start\ndata: {\"a\":1}\n\nevent: message_stop\ndata: {}\n\n"
	re := New(strings.NewReader(body), FormatSSE)

	frame, err := re.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "event: message_start\ndata: {\"a\":1}", string(frame))

	frame, err = re.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "event: message_stop\ndata: {}", string(frame))

	_, err = re.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestReassembler_SSEFrames_PartialReadsAcrossBoundary(t *testing.T) {
	// simulate a body delivered as multiple small reads by using a pipe-like reader
	r, w := io.Pipe()
	re := New(r, FormatSSE)

	go func() {
		_, _ = w.Write([]byte("data: {\"x\":"))
		_, _ = w.Write([]byte("1}\n\n"))
		_ = w.Close()
	}()

	frame, err := re.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, `data: {"x":1}`, string(frame))

	_, err = re.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestReassembler_JSONLines(t *testing.T) {
	body := "{\"done\":false}\n{\"done\":true}\n"
	re := New(strings.NewReader(body), FormatJSONLines)

	frame, err := re.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, `{"done":false}`, string(frame))

	frame, err = re.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, `{"done":true}`, string(frame))

	_, err = re.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestReassembler_SingleJSON(t *testing.T) {
	body := `{"ok":true}`
	re := New(strings.NewReader(body), FormatSingleJSON)

	frame, err := re.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, body, string(frame))

	_, err = re.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestReassembler_StopFlagHonored(t *testing.T) {
	body := "data: {}\n\ndata: {}\n\ndata: {}\n\n"
	re := New(strings.NewReader(body), FormatSSE)

	_, err := re.Next(context.Background())
	require.NoError(t, err)

	re.Stop()

	// at most one further frame is emitted after the stop flag is set
	// (§8.5); here zero further frames since Stop happened before the
	// next Next call's boundary check.
	_, err = re.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestReassembler_FrameTooLargeIsTerminal(t *testing.T) {
	huge := strings.Repeat("x", maxFrameBytes+1)
	re := New(strings.NewReader(huge), FormatJSONLines)

	_, err := re.Next(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, io.EOF)
}
