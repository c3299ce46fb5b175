package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dvcrn/cursor-web-proxy/internal/cursor"
	"github.com/dvcrn/cursor-web-proxy/internal/resilience"
)

const (
	errTypeHTTP            = "http_error"
	errTypeUpstream        = "upstream_error"
	errTypeEmpty           = "empty_completion"
	errTypeInvalidRequest  = "invalid_request_error"
	errTypeInvalidAPIKey   = "invalid_api_key"
	errTypeInternal        = "internal_error"
	errTypeTimeout         = "timeout"
	statusClientClosed     = 499
	fallbackUpstreamStatus = http.StatusBadGateway
)

// classifyError maps a completion failure onto an HTTP status and error type.
func classifyError(err error) (int, string) {
	var (
		transportErr *cursor.TransportError
		upstreamErr  *cursor.UpstreamError
		emptyErr     *resilience.EmptyCompletionError
	)
	switch {
	case errors.As(err, &emptyErr):
		return http.StatusBadGateway, errTypeEmpty
	case errors.As(err, &upstreamErr):
		return errorStatus(upstreamErr.StatusCode), errTypeUpstream
	case errors.As(err, &transportErr):
		if transportErr.StatusCode == 0 {
			if errors.Is(err, context.DeadlineExceeded) {
				return http.StatusGatewayTimeout, errTypeTimeout
			}
			return http.StatusInternalServerError, errTypeHTTP
		}
		return errorStatus(transportErr.StatusCode), errTypeUpstream
	case errors.Is(err, context.Canceled):
		return statusClientClosed, errTypeHTTP
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, errTypeTimeout
	default:
		return http.StatusInternalServerError, errTypeInternal
	}
}

// errorStatus keeps upstream error statuses and replaces success codes, which
// an error event can arrive with, by 502.
func errorStatus(code int) int {
	if code < http.StatusBadRequest || code > 599 {
		return fallbackUpstreamStatus
	}
	return code
}

func newErrorResponse(message, errType string) errorResponse {
	return errorResponse{Error: errorBody{Message: message, Type: errType, Code: errType}}
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, message, errType string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(newErrorResponse(message, errType)); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode error response")
	}
}

func (s *Server) writeCompletionError(w http.ResponseWriter, err error) {
	status, errType := classifyError(err)
	s.logger.Error().
		Err(err).
		Int("status_code", status).
		Str("error_type", errType).
		Msg("Chat completion failed")
	s.writeJSONError(w, status, err.Error(), errType)
}
