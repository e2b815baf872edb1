package http_test

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	pkghttp "github.com/lmercier/portcullis/pkg/http"
)

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()

	pkghttp.WriteError(w, 400, "test_error", "Test message")

	assert.Equal(t, 400, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err)
	assert.Equal(t, "test_error", resp.Error)
	assert.Equal(t, "Test message", resp.Message)
}

func TestWriteMessage(t *testing.T) {
	w := httptest.NewRecorder()

	pkghttp.WriteMessage(w, 200, "Login successful!")

	assert.Equal(t, 200, w.Code)

	var resp map[string]string
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err)
	assert.Equal(t, "Login successful!", resp["msg"])
}

func TestWriteCSRFErrors_DistinctCodes(t *testing.T) {
	missing := httptest.NewRecorder()
	pkghttp.WriteCSRFMissing(missing, "CSRF token missing")

	invalid := httptest.NewRecorder()
	pkghttp.WriteCSRFInvalid(invalid, "CSRF token invalid")

	assert.Equal(t, 400, missing.Code)
	assert.Equal(t, 400, invalid.Code)

	var missingResp, invalidResp pkghttp.ErrorResponse
	assert.NoError(t, json.Unmarshal(missing.Body.Bytes(), &missingResp))
	assert.NoError(t, json.Unmarshal(invalid.Body.Bytes(), &invalidResp))
	assert.Equal(t, "csrf_missing", missingResp.Error)
	assert.Equal(t, "csrf_invalid", invalidResp.Error)
	assert.NotEqual(t, missingResp.Message, invalidResp.Message)
}

func TestWriteTooManyRequests(t *testing.T) {
	w := httptest.NewRecorder()

	pkghttp.WriteTooManyRequests(w, 540, "Too many attempts, please try again later.")

	assert.Equal(t, 429, w.Code)
	assert.Equal(t, "540", w.Header().Get("Retry-After"))

	var resp pkghttp.ErrorResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "rate_limit_exceeded", resp.Error)
	assert.Equal(t, 540, resp.RetryAfter)
}

func TestWriteTooManyRequests_NoRetryAfter(t *testing.T) {
	w := httptest.NewRecorder()

	pkghttp.WriteTooManyRequests(w, 0, "Too many attempts, please try again later.")

	assert.Equal(t, 429, w.Code)
	assert.Empty(t, w.Header().Get("Retry-After"))
}

func TestWriteNotFound(t *testing.T) {
	w := httptest.NewRecorder()
	pkghttp.WriteNotFound(w, "User not found")

	assert.Equal(t, 404, w.Code)

	var resp pkghttp.ErrorResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	assert.Equal(t, "not_found", resp.Error)
	assert.Equal(t, "User not found", resp.Message)
}
