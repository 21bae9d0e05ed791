package errors

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler() *ErrorHandler {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return NewErrorHandler(log)
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestHandleError_AppError(t *testing.T) {
	h := newTestHandler()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/streams/s1", nil)
	req.Header.Set("X-Request-ID", "trace-42")

	h.HandleError(rec, req, NewNotFoundError("stream"))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	resp := decodeResponse(t, rec)
	assert.Equal(t, ErrorTypeNotFound, resp.Error.Type)
	assert.Equal(t, "stream not found", resp.Error.Message)
	assert.Equal(t, "trace-42", resp.TraceID)
}

func TestHandleError_PlainErrorBecomesInternal(t *testing.T) {
	h := newTestHandler()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	h.HandleError(rec, req, fmt.Errorf("disk on fire"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decodeResponse(t, rec)
	assert.Equal(t, ErrorTypeInternal, resp.Error.Type)
	// Internal cause must not leak to the client
	assert.NotContains(t, rec.Body.String(), "disk on fire")
}

func TestHandleNotFound(t *testing.T) {
	h := newTestHandler()
	rec := httptest.NewRecorder()

	h.HandleNotFound(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleMethodNotAllowed(t *testing.T) {
	h := newTestHandler()
	rec := httptest.NewRecorder()

	h.HandleMethodNotAllowed(rec, httptest.NewRequest(http.MethodDelete, "/health", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestMiddleware_RecoversPanic(t *testing.T) {
	h := newTestHandler()
	handler := h.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("unexpected")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decodeResponse(t, rec)
	assert.Equal(t, ErrorTypeInternal, resp.Error.Type)
}

func TestMiddleware_PassThrough(t *testing.T) {
	h := newTestHandler()
	handler := h.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
}
