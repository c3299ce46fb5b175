package server

import (
	"bufio"
	"context"
	"encoding/json"
	"iter"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dvcrn/cursor-web-proxy/internal/chat"
	"github.com/dvcrn/cursor-web-proxy/internal/cursor"
	"github.com/dvcrn/cursor-web-proxy/internal/humancheck"
	"github.com/dvcrn/cursor-web-proxy/internal/resilience"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type completerFunc func(ctx context.Context, req *chat.Request) iter.Seq2[chat.Event, error]

func (f completerFunc) Complete(ctx context.Context, req *chat.Request) iter.Seq2[chat.Event, error] {
	return f(ctx, req)
}

const testAPIKey = "test-key"

func newTestServer(c Completer, opts Options) *Server {
	if opts.APIKey == "" {
		opts.APIKey = testAPIKey
	}
	s := New(zerolog.Nop(), c, opts)
	s.now = func() time.Time { return time.Unix(1700000000, 0) }
	return s
}

func scripted(events []chat.Event, tail error) Completer {
	return completerFunc(func(ctx context.Context, req *chat.Request) iter.Seq2[chat.Event, error] {
		return eventSeq(events, tail)
	})
}

func doRequest(s http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

// sseData returns the data payloads of an SSE body in order.
func sseData(t *testing.T, body string) []string {
	t.Helper()
	var out []string
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		if rest, ok := strings.CutPrefix(sc.Text(), "data: "); ok {
			out = append(out, rest)
		}
	}
	require.NoError(t, sc.Err())
	return out
}

var helloEvents = []chat.Event{
	chat.ContentEvent("He"),
	chat.ContentEvent("llo"),
	chat.UsageEvent(chat.Usage{PromptTokens: 3, CompletionTokens: 2, TotalTokens: 5}),
}

func TestChatCompletionsBuffered(t *testing.T) {
	var seen *chat.Request
	c := completerFunc(func(ctx context.Context, req *chat.Request) iter.Seq2[chat.Event, error] {
		seen = req
		return eventSeq(helloEvents, nil)
	})
	s := newTestServer(c, Options{SystemPromptInject: "SYS"})

	rec := doRequest(s, http.MethodPost, "/v1/chat/completions", `{"model":"gpt-4o","messages":[{"role":"user","content":"hi"}]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ChatCompletionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, strings.HasPrefix(resp.ID, "chatcmpl-"))
	assert.Len(t, resp.ID, len("chatcmpl-")+29)
	assert.Equal(t, int64(1700000000), resp.Created)
	assert.Equal(t, "gpt-4o", resp.Model)
	assert.Equal(t, "Hello", resp.Choices[0].Message.Content)
	assert.Equal(t, chat.Usage{PromptTokens: 3, CompletionTokens: 2, TotalTokens: 5}, resp.Usage)

	require.NotNil(t, seen)
	require.Len(t, seen.Messages, 2)
	assert.Equal(t, "SYS", seen.Messages[0].Content.Text())
}

func TestChatCompletionsStreaming(t *testing.T) {
	s := newTestServer(scripted(helloEvents, nil), Options{})

	rec := doRequest(s, http.MethodPost, "/v1/chat/completions", `{"model":"gpt-4o","stream":true,"messages":[{"role":"user","content":"hi"}]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	data := sseData(t, rec.Body.String())
	// role, He, llo, stop, usage, DONE
	require.Len(t, data, 6)
	assert.Contains(t, data[0], `"role":"assistant"`)
	assert.Contains(t, data[1], `"content":"He"`)
	assert.Contains(t, data[2], `"content":"llo"`)
	assert.Contains(t, data[3], `"finish_reason":"stop"`)
	assert.Contains(t, data[4], `"total_tokens":5`)
	assert.Equal(t, "[DONE]", data[5])

	var ids []string
	for _, d := range data[:5] {
		var c streamingChunk
		require.NoError(t, json.Unmarshal([]byte(d), &c))
		ids = append(ids, c.ID)
	}
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

func TestChatCompletionsStreamingErrorBeforeOutput(t *testing.T) {
	err := &cursor.TransportError{StatusCode: http.StatusForbidden, Message: "blocked by Cloudflare challenge"}
	s := newTestServer(scripted(nil, err), Options{})

	rec := doRequest(s, http.MethodPost, "/v1/chat/completions", `{"model":"m","stream":true,"messages":[{"role":"user","content":"hi"}]}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, errTypeUpstream, resp.Error.Type)
	assert.Contains(t, resp.Error.Message, "Cloudflare")
}

func TestChatCompletionsStreamingErrorMidStream(t *testing.T) {
	err := &cursor.UpstreamError{StatusCode: 200, Message: "stream broke"}
	s := newTestServer(scripted([]chat.Event{chat.ContentEvent("partial")}, err), Options{})

	rec := doRequest(s, http.MethodPost, "/v1/chat/completions", `{"model":"m","stream":true,"messages":[{"role":"user","content":"hi"}]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	data := sseData(t, rec.Body.String())
	require.Len(t, data, 4)
	assert.Contains(t, data[1], "partial")
	assert.Contains(t, data[2], `"error"`)
	assert.Contains(t, data[2], "stream broke")
	assert.Equal(t, "[DONE]", data[3])
}

func TestChatCompletionsStreamingEmptySequence(t *testing.T) {
	s := newTestServer(scripted(nil, nil), Options{})

	rec := doRequest(s, http.MethodPost, "/v1/chat/completions", `{"model":"m","stream":true,"messages":[{"role":"user","content":"hi"}]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	data := sseData(t, rec.Body.String())
	require.Len(t, data, 3)
	assert.Contains(t, data[0], `"role":"assistant"`)
	assert.Contains(t, data[1], `"finish_reason":"stop"`)
	assert.Equal(t, "[DONE]", data[2])
}

func TestChatCompletionsBufferedErrors(t *testing.T) {
	testCases := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
	}{
		{"empty", &resilience.EmptyCompletionError{Attempts: 1}, http.StatusBadGateway, errTypeEmpty},
		{"transport", &cursor.TransportError{Message: "refused"}, http.StatusInternalServerError, errTypeHTTP},
		{"upstream", &cursor.UpstreamError{StatusCode: 429, Message: "slow"}, http.StatusTooManyRequests, errTypeUpstream},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestServer(scripted(nil, tc.err), Options{})
			rec := doRequest(s, http.MethodPost, "/v1/chat/completions", `{"model":"m","messages":[{"role":"user","content":"hi"}]}`)
			assert.Equal(t, tc.wantStatus, rec.Code)

			var resp errorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tc.wantType, resp.Error.Type)
			assert.Equal(t, tc.wantType, resp.Error.Code)
		})
	}
}

func TestChatCompletionsBadRequests(t *testing.T) {
	s := newTestServer(scripted(helloEvents, nil), Options{})

	for _, body := range []string{
		`not json`,
		`{"messages":[{"role":"user","content":"hi"}]}`,
		`{"model":"m","messages":[]}`,
		`{"model":"m","messages":[{"role":"user","content":{"text":"x"}}]}`,
	} {
		rec := doRequest(s, http.MethodPost, "/v1/chat/completions", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}

	rec := doRequest(s, http.MethodGet, "/v1/chat/completions", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestAPIKey(t *testing.T) {
	s := newTestServer(scripted(helloEvents, nil), Options{})

	for _, header := range []string{"", "Bearer wrong", "Basic " + testAPIKey, "Bearer"} {
		req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(`{}`))
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, header)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestModelsHandler(t *testing.T) {
	s := newTestServer(scripted(nil, nil), Options{Models: []string{"gpt-4o", "claude-4-sonnet"}})

	rec := doRequest(s, http.MethodGet, "/v1/models", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"object":"list","data":[
		{"id":"gpt-4o","object":"model","created":1700000000,"owned_by":""},
		{"id":"claude-4-sonnet","object":"model","created":1700000000,"owned_by":""}
	]}`, rec.Body.String())
}

func TestHealthAndNotFound(t *testing.T) {
	s := newTestServer(scripted(nil, nil), Options{})

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCORS(t *testing.T) {
	s := newTestServer(scripted(nil, nil), Options{})

	req := httptest.NewRequest(http.MethodOptions, "/v1/chat/completions", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Headers"))

	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

// TestEndToEndThroughPipeline drives the real cursor client and resilience
// pipeline against a fake upstream.
func TestEndToEndThroughPipeline(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("data: {\"type\":\"text-delta\",\"delta\":\"He\"}\n\n"))
		w.Write([]byte("data: {\"type\":\"text-delta\",\"delta\":\"llo\"}\n\n"))
		w.Write([]byte("data: {\"type\":\"finish\",\"messageMetadata\":{\"usage\":{\"inputTokens\":3,\"outputTokens\":2,\"totalTokens\":5}}}\n\n"))
	}))
	defer upstream.Close()

	tokens := humancheck.ProviderFunc(func(context.Context) (string, error) { return "token", nil })
	fp := humancheck.Fingerprint{UserAgent: "Mozilla/5.0 test"}
	client := cursor.NewClient(upstream.Client(), upstream.URL, tokens, fp, zerolog.Nop())
	pipeline := &resilience.Pipeline{
		Exchange:        client.Exchange,
		ContinueRetries: 3,
		Continuation:    resilience.NewContinuation(zerolog.Nop()),
		Logger:          zerolog.Nop(),
	}
	s := newTestServer(pipeline, Options{})

	rec := doRequest(s, http.MethodPost, "/v1/chat/completions", `{"model":"gpt-4o","messages":[{"role":"user","content":"hi"}]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ChatCompletionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Hello", resp.Choices[0].Message.Content)
	assert.Equal(t, chat.Usage{PromptTokens: 3, CompletionTokens: 2, TotalTokens: 5}, resp.Usage)
}

func TestStreamingClientDisconnectReleasesUpstream(t *testing.T) {
	closed := make(chan struct{})
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("data: {\"type\":\"text-delta\",\"delta\":\"a\"}\n\n"))
		w.(http.Flusher).Flush()
		<-r.Context().Done()
		close(closed)
	}))
	defer upstream.Close()

	tokens := humancheck.ProviderFunc(func(context.Context) (string, error) { return "token", nil })
	fp := humancheck.Fingerprint{UserAgent: "Mozilla/5.0 test"}
	client := cursor.NewClient(upstream.Client(), upstream.URL, tokens, fp, zerolog.Nop())
	pipeline := &resilience.Pipeline{
		Exchange:     client.Exchange,
		Continuation: resilience.NewContinuation(zerolog.Nop()),
		Logger:       zerolog.Nop(),
	}
	proxy := httptest.NewServer(newTestServer(pipeline, Options{}))
	defer proxy.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, proxy.URL+"/v1/chat/completions",
		strings.NewReader(`{"model":"m","stream":true,"messages":[{"role":"user","content":"hi"}]}`))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+testAPIKey)

	resp, err := proxy.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	r := bufio.NewReader(resp.Body)
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		if strings.Contains(line, `"content":"a"`) {
			break
		}
	}
	cancel()

	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatal("upstream connection still open after the client disconnected")
	}
}
