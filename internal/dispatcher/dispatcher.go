// Package dispatcher implements the Chat Dispatcher (§4.7): the entry
// point that resolves a request's target model, decides between the
// direct-forward and mediated paths, drives shaping and the adapter
// pipeline, and translates upstream errors into the client's shape.
package dispatcher

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aidyou/ccgateway/internal/backendadapter"
	"github.com/aidyou/ccgateway/internal/chatproto"
	"github.com/aidyou/ccgateway/internal/inputadapter"
	"github.com/aidyou/ccgateway/internal/ir"
	"github.com/aidyou/ccgateway/internal/logsink"
	"github.com/aidyou/ccgateway/internal/outputadapter"
	"github.com/aidyou/ccgateway/internal/reassembler"
	"github.com/aidyou/ccgateway/internal/resolver"
	"github.com/aidyou/ccgateway/internal/shaping"
	"github.com/aidyou/ccgateway/internal/sse"
)

// maxErrorBodyBytes bounds how much of a non-2xx upstream body is
// drained before translating it (§4.7 step 4).
const maxErrorBodyBytes = 64 * 1024

// idleHeartbeat is how often a keepalive comment is written on a
// streaming response with no upstream activity (§5 "Timeouts are
// per-stream").
const idleHeartbeat = 30 * time.Second

// Options carries what the external HTTP layer has already resolved
// from the request before calling into the dispatcher (§6.1).
type Options struct {
	ToolCompatMode bool
	GeminiAction   string
	Debug          bool
	ChatID         string
}

// Dispatcher is the mediated/direct-forward entry point.
type Dispatcher struct {
	Resolver resolver.Resolver
	Logger   *slog.Logger

	// DebugSink, when non-nil, receives a Record for every streaming
	// mediated request run with Options.Debug set. Non-streaming requests
	// and direct-forward requests produce no Record.
	DebugSink *logsink.Sink
}

func New(res resolver.Resolver, logger *slog.Logger, sink *logsink.Sink) *Dispatcher {
	return &Dispatcher{Resolver: res, Logger: logger, DebugSink: sink}
}

// Handle is the Chat Dispatcher entry point for one client request.
func (d *Dispatcher) Handle(w http.ResponseWriter, r *http.Request, clientProto chatproto.Protocol, alias string, opts Options) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		d.writeError(w, clientProto, false, ir.InvalidRequest("failed to read request body: %v", err))
		return
	}

	pm, err := d.Resolver.Resolve(alias)
	if err != nil {
		d.writeError(w, clientProto, false, asIRError(err))
		return
	}

	if clientProto.Wire() == pm.ChatProtocol.Wire() {
		d.forwardDirect(w, r, clientProto, body, pm, opts)
		return
	}
	d.forwardMediated(w, r, clientProto, body, pm, opts)
}

func (d *Dispatcher) forwardMediated(w http.ResponseWriter, r *http.Request, clientProto chatproto.Protocol, body []byte, pm resolver.ProxyModel, opts Options) {
	inAdapter := inputAdapterFor(clientProto)
	req, err := inAdapter.Parse(body, inputadapter.Options{GeminiAction: opts.GeminiAction})
	if err != nil {
		d.writeError(w, clientProto, false, asIRError(err))
		return
	}

	shaping.ApplyRequest(&req, pm)

	backAdapter := backendAdapterFor(pm.ChatProtocol)
	upReq, err := backAdapter.AdaptRequest(req, pm.APIKey, pm.BaseURL, pm.Model)
	if err != nil {
		d.writeError(w, clientProto, req.Stream, asIRError(err))
		return
	}
	upReq = upReq.WithContext(r.Context())
	forwardRequestHeaders(r.Header, upReq.Header)
	for k, v := range shaping.Headers(pm, opts.ChatID) {
		upReq.Header.Set(k, v)
	}

	client := d.Resolver.BuildHTTPClient(pm.Metadata)
	resp, err := client.Do(upReq)
	if err != nil {
		d.writeError(w, clientProto, req.Stream, ir.UpstreamTransport(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		d.forwardUpstreamError(w, clientProto, req.Stream, resp)
		return
	}

	outAdapter := outputAdapterFor(clientProto)

	if !req.Stream {
		bodyReader, err := decompressBody(resp)
		if err != nil {
			d.writeError(w, clientProto, false, ir.UpstreamTransport(err))
			return
		}
		rawBody, err := io.ReadAll(bodyReader)
		if err != nil {
			d.writeError(w, clientProto, false, ir.UpstreamTransport(err))
			return
		}
		unified, err := backAdapter.AdaptResponse(rawBody)
		if err != nil {
			d.writeError(w, clientProto, false, asIRError(err))
			return
		}
		out, err := outAdapter.RenderResponse(unified)
		if err != nil {
			d.writeError(w, clientProto, false, asIRError(err))
			return
		}
		forwardResponseHeaders(resp.Header, w.Header())
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(out)
		return
	}

	d.streamMediated(w, r.Context(), clientProto, backAdapter, outAdapter, resp, opts, pm)
}

func (d *Dispatcher) streamMediated(
	w http.ResponseWriter,
	ctx context.Context,
	clientProto chatproto.Protocol,
	backAdapter backendadapter.Adapter,
	outAdapter outputadapter.Adapter,
	resp *http.Response,
	opts Options,
	pm resolver.ProxyModel,
) {
	setStreamHeaders(w, clientProto)
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)

	bodyReader, err := decompressBody(resp)
	if err != nil {
		d.Logger.Warn("stream decompression error", "error", err)
		return
	}

	streamState := backendadapter.NewStreamState(opts.ToolCompatMode)
	outState := outputadapter.NewState(streamState.Status)
	reasm := reassembler.New(bodyReader, backAdapter.Format())

	var rec *logsink.Recorder
	if opts.Debug && d.DebugSink != nil {
		rec = logsink.NewRecorder(opts.ChatID, pm.Model)
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			reasm.Stop()
			resp.Body.Close()
		case <-stop:
		}
	}()

	// Frames are read on their own goroutine so the main loop can select
	// between a frame arriving and the idle-heartbeat timer, without ever
	// writing to w from more than one goroutine (§5 "client's write rate").
	type frameResult struct {
		frame []byte
		err   error
	}
	frames := make(chan frameResult)
	go func() {
		for {
			frame, err := reasm.Next(ctx)
			select {
			case frames <- frameResult{frame, err}:
			case <-stop:
				return
			}
			if err != nil {
				return
			}
		}
	}()

	heartbeat := time.NewTicker(idleHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-heartbeat.C:
			writeComment(w, "heartbeat")
			if flusher != nil {
				flusher.Flush()
			}

		case fr := <-frames:
			if fr.err != nil {
				if fr.err != io.EOF {
					d.Logger.Warn("stream framing error", "error", fr.err)
				}
				if rec != nil {
					d.DebugSink.Write(rec.Finish(streamState.Usage()))
				}
				return
			}
			heartbeat.Reset(idleHeartbeat)

			chunks, err := backAdapter.AdaptStreamChunk(fr.frame, streamState)
			if err != nil {
				d.Logger.Warn("adapter conversion error", "error", err)
				events, _ := outAdapter.RenderChunk(ir.ErrorChunk(err.Error()), outState)
				writeEvents(w, clientProto, events)
				if flusher != nil {
					flusher.Flush()
				}
				if rec != nil {
					d.DebugSink.Write(rec.Finish(streamState.Usage()))
				}
				return
			}

			for _, chunk := range chunks {
				recordChunk(rec, chunk)
				events, err := outAdapter.RenderChunk(chunk, outState)
				if err != nil {
					d.Logger.Warn("output render error", "error", err)
					continue
				}
				writeEvents(w, clientProto, events)
				if chunk.Kind == ir.ChunkMessageStop {
					for _, ev := range outAdapter.StreamEnd() {
						writeEvent(w, clientProto, ev)
					}
					if flusher != nil {
						flusher.Flush()
					}
					if rec != nil {
						d.DebugSink.Write(rec.Finish(streamState.Usage()))
					}
					return
				}
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
	}
}

func recordChunk(rec *logsink.Recorder, chunk ir.StreamChunk) {
	if rec == nil {
		return
	}
	switch chunk.Kind {
	case ir.ChunkText:
		rec.AppendText(chunk.Delta)
	case ir.ChunkThinking:
		rec.AppendThinking(chunk.Delta)
	case ir.ChunkToolUseStart:
		rec.ToolUseStart(chunk.ToolID, chunk.ToolName)
	case ir.ChunkToolUseDelta:
		rec.ToolUseDelta(chunk.ToolID, chunk.Delta)
	}
}

// forwardDirect implements the direct-forward path (§4.7.1): client and
// upstream speak the same protocol, so bytes are streamed through
// unchanged aside from the model rewrite and shaping policies.
func (d *Dispatcher) forwardDirect(w http.ResponseWriter, r *http.Request, proto chatproto.Protocol, body []byte, pm resolver.ProxyModel, opts Options) {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		d.writeError(w, proto, false, ir.InvalidRequest("invalid JSON body: %v", err))
		return
	}

	raw["model"] = pm.Model
	streaming := proto.Wire() == chatproto.Ollama // Ollama defaults to streaming unless told otherwise
	switch proto.Wire() {
	case chatproto.Gemini:
		streaming = opts.GeminiAction == "streamGenerateContent"
	default:
		if v, ok := raw["stream"].(bool); ok {
			streaming = v
		}
	}
	shaping.RawToolFilter(raw, proto, pm)
	shaping.BodyParams(raw, pm, streaming)

	encoded, err := json.Marshal(raw)
	if err != nil {
		d.writeError(w, proto, streaming, ir.InvalidRequest("failed to re-encode shaped body: %v", err))
		return
	}

	// AdaptRequest also builds the per-protocol URL and auth headers this
	// path needs; its own body encoding is discarded below in favor of
	// the already-shaped raw body (same protocol both sides, so no IR
	// round-trip is needed for the body itself).
	backAdapter := backendAdapterFor(proto)
	upReq, err := backAdapter.AdaptRequest(ir.Request{Stream: streaming}, pm.APIKey, pm.BaseURL, pm.Model)
	if err != nil {
		d.writeError(w, proto, streaming, asIRError(err))
		return
	}
	upReq.Body = io.NopCloser(bytes.NewReader(encoded))
	upReq.ContentLength = int64(len(encoded))
	upReq = upReq.WithContext(r.Context())
	forwardRequestHeaders(r.Header, upReq.Header)
	for k, v := range shaping.Headers(pm, opts.ChatID) {
		upReq.Header.Set(k, v)
	}

	client := d.Resolver.BuildHTTPClient(pm.Metadata)
	resp, err := client.Do(upReq)
	if err != nil {
		d.writeError(w, proto, streaming, ir.UpstreamTransport(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		d.forwardUpstreamError(w, proto, streaming, resp)
		return
	}

	forwardResponseHeaders(resp.Header, w.Header())
	w.WriteHeader(resp.StatusCode)
	flusher, _ := w.(http.Flusher)

	bodyReader, err := decompressBody(resp)
	if err != nil {
		d.Logger.Warn("direct-forward decompression error", "error", err)
		return
	}

	scanner := bufio.NewScanner(bodyReader)
	scanner.Buffer(make([]byte, 64*1024), 4<<20)
	for scanner.Scan() {
		_, _ = w.Write(scanner.Bytes())
		_, _ = w.Write([]byte("\n"))
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func (d *Dispatcher) forwardUpstreamError(w http.ResponseWriter, proto chatproto.Protocol, streaming bool, resp *http.Response) {
	limited := io.LimitReader(resp.Body, maxErrorBodyBytes)
	drained, _ := io.ReadAll(limited)
	forwardResponseHeaders(resp.Header, w.Header())
	d.writeError(w, proto, streaming, ir.UpstreamHTTP(resp.StatusCode, drained))
}

func asIRError(err error) *ir.Error {
	if e, ok := err.(*ir.Error); ok {
		return e
	}
	return ir.UpstreamTransport(err)
}

func statusForKind(e *ir.Error) int {
	switch e.Kind {
	case ir.KindInvalidRequest:
		return http.StatusBadRequest
	case ir.KindModelNotFound:
		return http.StatusNotFound
	case ir.KindUpstreamHTTP:
		if e.Status != 0 {
			return e.Status
		}
		return http.StatusBadGateway
	default:
		return http.StatusBadGateway
	}
}

func (d *Dispatcher) writeError(w http.ResponseWriter, proto chatproto.Protocol, streaming bool, e *ir.Error) {
	message := e.Details
	if len(e.Body) > 0 {
		message = string(e.Body)
	}

	if streaming {
		outAdapter := outputAdapterFor(proto)
		state := outputadapter.NewState(sse.New(false))
		events, _ := outAdapter.RenderChunk(ir.ErrorChunk(message), state)
		setStreamHeaders(w, proto)
		w.WriteHeader(http.StatusOK)
		writeEvents(w, proto, events)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusForKind(e))
	_, _ = w.Write(errorBody(proto, message))
}

func errorBody(proto chatproto.Protocol, message string) []byte {
	var body map[string]any
	switch proto.Wire() {
	case chatproto.Claude:
		body = map[string]any{"type": "error", "error": map[string]string{"type": "upstream_error", "message": message}}
	case chatproto.Gemini:
		body = map[string]any{"error": map[string]any{"code": 500, "message": message, "status": "UPSTREAM_ERROR"}}
	case chatproto.Ollama:
		body = map[string]any{"error": message}
	default:
		body = map[string]any{"error": map[string]string{"message": message, "type": "upstream_error"}}
	}
	out, _ := json.Marshal(body)
	return out
}

func setStreamHeaders(w http.ResponseWriter, proto chatproto.Protocol) {
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	if proto.Wire() == chatproto.Ollama {
		w.Header().Set("Content-Type", "application/x-ndjson")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
}

func writeEvents(w http.ResponseWriter, proto chatproto.Protocol, events []outputadapter.Event) {
	for _, ev := range events {
		writeEvent(w, proto, ev)
	}
}

// writeEvent serializes one Event per the client protocol's SSE framing
// rules (§6.3).
func writeEvent(w http.ResponseWriter, proto chatproto.Protocol, ev outputadapter.Event) {
	switch proto.Wire() {
	case chatproto.Claude:
		if ev.Name != "" {
			fmt.Fprintf(w, "event: %s\n", ev.Name)
		}
		fmt.Fprintf(w, "data: %s\n\n", ev.Data)
	case chatproto.Ollama:
		if ev.Raw != nil {
			w.Write(ev.Raw)
		} else {
			w.Write(ev.Data)
		}
		w.Write([]byte("\n"))
	default: // OpenAI, Gemini
		if ev.Raw != nil {
			fmt.Fprintf(w, "data: %s\n\n", ev.Raw)
		} else {
			fmt.Fprintf(w, "data: %s\n\n", ev.Data)
		}
	}
}

func writeComment(w http.ResponseWriter, text string) {
	fmt.Fprintf(w, ": %s\n\n", text)
}

var requestHeaderAllowlist = []string{"User-Agent", "Accept-Language"}

func forwardRequestHeaders(src, dst http.Header) {
	for _, name := range requestHeaderAllowlist {
		if v := src.Get(name); v != "" {
			dst.Set(name, v)
		}
	}
	for key, values := range src {
		if strings.HasPrefix(strings.ToLower(key), "cs-") {
			for _, v := range values {
				dst.Add(key, v)
			}
		}
	}
}

var responseHeaderAllowlist = []string{"Retry-After", "Content-Type", "Cache-Control", "X-Request-Id"}

func forwardResponseHeaders(src, dst http.Header) {
	for _, name := range responseHeaderAllowlist {
		if v := src.Get(name); v != "" {
			dst.Set(name, v)
		}
	}
	for key, values := range src {
		if strings.HasPrefix(strings.ToLower(key), "x-ratelimit-") {
			for _, v := range values {
				dst.Add(key, v)
			}
		}
	}
}

func inputAdapterFor(proto chatproto.Protocol) inputadapter.Adapter {
	switch proto.Wire() {
	case chatproto.Claude:
		return inputadapter.NewClaude()
	case chatproto.Gemini:
		return inputadapter.NewGemini()
	case chatproto.Ollama:
		return inputadapter.NewOllama()
	default:
		return inputadapter.NewOpenAI()
	}
}

func backendAdapterFor(proto chatproto.Protocol) backendadapter.Adapter {
	switch proto.Wire() {
	case chatproto.Claude:
		return backendadapter.NewClaude()
	case chatproto.Gemini:
		return backendadapter.NewGemini()
	case chatproto.Ollama:
		return backendadapter.NewOllama()
	default:
		return backendadapter.NewOpenAI()
	}
}

func outputAdapterFor(proto chatproto.Protocol) outputadapter.Adapter {
	switch proto.Wire() {
	case chatproto.Claude:
		return outputadapter.NewClaude()
	case chatproto.Gemini:
		return outputadapter.NewGemini()
	case chatproto.Ollama:
		return outputadapter.NewOllama()
	default:
		return outputadapter.NewOpenAI()
	}
}
