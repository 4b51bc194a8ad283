package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/platinummonkey/thoughtnest/pkg/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestWriteResponse(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, WriteResponse(rec, http.StatusCreated, "Article created successfully", map[string]int{"id": 4}))

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	body := decodeEnvelope(t, rec)
	assert.Equal(t, "Article created successfully", body["message"])
	assert.Equal(t, float64(201), body["status"])
	assert.Equal(t, map[string]interface{}{"id": float64(4)}, body["data"])
}

func TestWriteErrorMessage_NullData(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteUnauthorized(rec, "Authentication required")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	body := decodeEnvelope(t, rec)
	assert.Contains(t, body, "data")
	assert.Nil(t, body["data"])
	assert.Equal(t, float64(401), body["status"])
}

func TestWriteAppError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		message string
		data    interface{}
	}{
		{"not found", apperr.NotFound("Article not found"), http.StatusNotFound, "Article not found", nil},
		{"unauthorized", apperr.Unauthorized("Authentication required"), http.StatusUnauthorized, "Authentication required", nil},
		{"forbidden", apperr.Forbidden("You are not allowed to modify this article"), http.StatusForbidden, "You are not allowed to modify this article", nil},
		{"conflict", apperr.Conflict("email", "Email already in use"), http.StatusConflict, "Email already in use", map[string]interface{}{"field": "email"}},
		{"reset token", apperr.InvalidOrExpiredToken(), http.StatusBadRequest, "Invalid or expired token", nil},
		{
			"validation",
			apperr.Validation("Validation failed", map[string]string{"username": "must be between 3 and 20 characters"}),
			http.StatusBadRequest,
			"Validation failed",
			map[string]interface{}{"username": "must be between 3 and 20 characters"},
		},
		{"upstream", apperr.Upstream("Failed to send email", errors.New("smtp down")), http.StatusBadGateway, "Failed to send email", nil},
		{"wrapped", fmt.Errorf("handler: %w", apperr.Forbidden("nope")), http.StatusForbidden, "nope", nil},
		{"internal", apperr.Internal("db", errors.New("connection reset")), http.StatusInternalServerError, "Internal server error", nil},
		{"unclassified", errors.New("pq: secret detail"), http.StatusInternalServerError, "Internal server error", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteAppError(rec, httptest.NewRequest(http.MethodGet, "/api/articles/1", nil), tt.err)

			assert.Equal(t, tt.status, rec.Code)
			body := decodeEnvelope(t, rec)
			assert.Equal(t, tt.message, body["message"])
			assert.Equal(t, float64(tt.status), body["status"])
			assert.Equal(t, tt.data, body["data"])
			assert.NotContains(t, rec.Body.String(), "secret detail")
		})
	}
}
