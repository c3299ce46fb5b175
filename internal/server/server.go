// Package server exposes the completion pipeline as an OpenAI compatible
// chat completions API.
package server

import (
	"context"
	"encoding/json"
	"io"
	"iter"
	"net/http"
	"strings"
	"time"

	"github.com/dvcrn/cursor-web-proxy/internal/chat"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const maxRequestBodySize = 32 << 20

// sseFlushWriter wraps a ResponseWriter to flush after each write.
type sseFlushWriter struct {
	w http.ResponseWriter
	f http.Flusher
}

func (fw sseFlushWriter) Write(p []byte) (int, error) {
	n, err := fw.w.Write(p)
	if err == nil {
		fw.f.Flush()
	}
	return n, err
}

// Completer resolves one request into a logical event stream.
type Completer interface {
	Complete(ctx context.Context, req *chat.Request) iter.Seq2[chat.Event, error]
}

type Options struct {
	APIKey             string
	Models             []string
	SystemPromptInject string
	UserPromptInject   string
}

type Server struct {
	completer    Completer
	apiKey       string
	models       []string
	systemPrompt string
	userPrompt   string
	mux          *http.ServeMux
	logger       zerolog.Logger
	now          func() time.Time
}

func New(logger zerolog.Logger, completer Completer, opts Options) *Server {
	s := &Server{
		completer:    completer,
		apiKey:       opts.APIKey,
		models:       opts.Models,
		systemPrompt: opts.SystemPromptInject,
		userPrompt:   opts.UserPromptInject,
		mux:          http.NewServeMux(),
		logger:       logger,
		now:          time.Now,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/v1/chat/completions", s.apiKeyMiddleware(s.chatCompletionsHandler))
	s.mux.HandleFunc("/v1/models", s.apiKeyMiddleware(s.modelsHandler))
	s.mux.HandleFunc("/health", s.healthHandler)
	s.mux.HandleFunc("/", s.notFoundHandler)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.loggingMiddleware(corsMiddleware(s.mux)).ServeHTTP(w, r)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		s.logger.Info().
			Str("method", r.Method).
			Str("uri", r.RequestURI).
			Str("remote_addr", r.RemoteAddr).
			Str("user_agent", r.UserAgent()).
			Msg("Incoming request")
		next.ServeHTTP(w, r)
		s.logger.Info().
			Str("method", r.Method).
			Str("uri", r.RequestURI).
			Dur("duration", time.Since(start)).
			Msg("Finished request")
	})
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status": "ok"}`))
}

func (s *Server) modelsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(listModels(s.models, s.now().Unix())); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode models response")
	}
}

func (s *Server) notFoundHandler(w http.ResponseWriter, r *http.Request) {
	s.logger.Warn().
		Str("method", r.Method).
		Str("uri", r.RequestURI).
		Str("remote_addr", r.RemoteAddr).
		Str("user_agent", r.UserAgent()).
		Msg("Unhandled route")
	http.NotFound(w, r)
}

func (s *Server) chatCompletionsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize))
	if err != nil {
		s.logger.Error().Err(err).Msg("Error reading request body")
		s.writeJSONError(w, http.StatusBadRequest, "failed to read request body", errTypeInvalidRequest)
		return
	}
	defer r.Body.Close()

	var incoming chat.Request
	if err := json.Unmarshal(body, &incoming); err != nil {
		s.logger.Error().Err(err).Msg("Error unmarshalling request body")
		s.writeJSONError(w, http.StatusBadRequest, "failed to parse request body: "+err.Error(), errTypeInvalidRequest)
		return
	}
	if strings.TrimSpace(incoming.Model) == "" {
		s.writeJSONError(w, http.StatusBadRequest, "model is required", errTypeInvalidRequest)
		return
	}
	if len(incoming.Messages) == 0 {
		s.writeJSONError(w, http.StatusBadRequest, "messages must not be empty", errTypeInvalidRequest)
		return
	}

	req := &chat.Request{
		Model:    incoming.Model,
		Messages: prepareMessages(incoming.Messages, s.systemPrompt, s.userPrompt),
		Stream:   incoming.Stream,
		Tools:    incoming.Tools,
	}

	s.logger.Info().
		Str("model", req.Model).
		Int("message_count", len(incoming.Messages)).
		Int("tool_count", len(req.Tools)).
		Bool("stream", req.Stream).
		Str("user_agent", r.UserAgent()).
		Msg("Processing chat completion request")

	id := newCompletionID()
	created := s.now().Unix()
	events := s.completer.Complete(r.Context(), req)

	if req.Stream {
		s.streamChatCompletion(w, r, events, id, req.Model, created)
		return
	}

	resp, err := bufferChatCompletion(events, id, req.Model, created)
	if err != nil {
		s.writeCompletionError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode chat completion response")
	}
}

// streamChatCompletion pulls the first event before committing to a 200 so
// that failures before any output are reported as a JSON error. Later
// failures become an SSE error frame followed by [DONE].
func (s *Server) streamChatCompletion(w http.ResponseWriter, r *http.Request, events iter.Seq2[chat.Event, error], id, model string, created int64) {
	next, stop := iter.Pull2(events)
	defer stop()

	ev, err, ok := next()
	if err != nil {
		s.writeCompletionError(w, err)
		return
	}

	flusher, canFlush := w.(http.Flusher)
	if !canFlush {
		s.writeJSONError(w, http.StatusInternalServerError, "streaming unsupported", errTypeInternal)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	out := sseFlushWriter{w: w, f: flusher}

	tr := NewStreamTransformer(id, model, created)
	frames := 0
	write := func(payloads [][]byte) bool {
		for _, p := range payloads {
			if err := writeSSEData(out, p); err != nil {
				s.logger.Warn().Err(err).Msg("Client went away while streaming")
				return false
			}
			frames++
		}
		return true
	}

	for ok {
		payloads, err := tr.Transform(ev)
		if err != nil {
			s.writeStreamError(out, err)
			return
		}
		if !write(payloads) {
			return
		}
		ev, err, ok = next()
		if err != nil {
			if r.Context().Err() != nil {
				s.logger.Warn().Err(err).Msg("Stream cancelled by client")
				return
			}
			s.writeStreamError(out, err)
			return
		}
	}

	payloads, err := tr.Finish()
	if err != nil {
		s.writeStreamError(out, err)
		return
	}
	write(payloads)

	s.logger.Debug().Str("id", id).Int("frames", frames).Msg("Stream completed")
}

func (s *Server) writeStreamError(w io.Writer, err error) {
	status, errType := classifyError(err)
	s.logger.Error().
		Err(err).
		Int("status_code", status).
		Str("error_type", errType).
		Msg("Chat completion failed mid-stream")

	payload, mErr := json.Marshal(newErrorResponse(err.Error(), errType))
	if mErr != nil {
		payload = []byte(`{"error":{"message":"internal error","type":"internal_error","code":"internal_error"}}`)
	}
	if err := writeSSEData(w, payload); err != nil {
		return
	}
	_ = writeSSEData(w, []byte(doneFrame))
}

func writeSSEData(w io.Writer, payload []byte) error {
	buf := make([]byte, 0, len(payload)+8)
	buf = append(buf, "data: "...)
	buf = append(buf, payload...)
	buf = append(buf, "\n\n"...)
	_, err := w.Write(buf)
	return err
}

func newCompletionID() string {
	return "chatcmpl-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:29]
}
