package response

import (
	"encoding/json/v2"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/dineatlas/dineatlas-client/internal/errors"
)

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) Envelope {
	t.Helper()

	var env Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func TestSuccess(t *testing.T) {
	rec := httptest.NewRecorder()

	Success(rec, map[string]string{"name": "Luigi's"}, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))

	env := decodeEnvelope(t, rec)
	assert.True(t, env.Success)
	assert.Empty(t, env.Error)
}

func TestAccepted(t *testing.T) {
	rec := httptest.NewRecorder()

	Accepted(rec, map[string]bool{"pending": true}, nil)

	require.Equal(t, http.StatusAccepted, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.True(t, env.Success)
}

func TestHandleError_DomainError(t *testing.T) {
	rec := httptest.NewRecorder()

	HandleError(rec, apperrors.NotFound("restaurant does not exist"), nil)

	require.Equal(t, http.StatusNotFound, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.False(t, env.Success)
	assert.Equal(t, "restaurant does not exist", env.Error)
}

func TestHandleError_ValidationDetails(t *testing.T) {
	rec := httptest.NewRecorder()

	err := apperrors.ValidationWithDetails("validation failed", map[string]string{"rating": "must be less than or equal to 5"})
	HandleError(rec, err, nil)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.NotNil(t, env.Details)
}

func TestHandleError_UnknownError(t *testing.T) {
	rec := httptest.NewRecorder()

	HandleError(rec, assert.AnError, nil)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestNoContent(t *testing.T) {
	rec := httptest.NewRecorder()

	NoContent(rec)

	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())
}
