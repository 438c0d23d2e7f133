/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package restapi

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-validatorkit/log"
	"github.com/acronis/go-validatorkit/log/logtest"
)

type responseRecorderReturnedErrorOnWrite struct {
	*httptest.ResponseRecorder
}

func (rw *responseRecorderReturnedErrorOnWrite) Write(_ []byte) (int, error) {
	return 0, errors.New("error on write")
}

func TestRespondJSON(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		resp := httptest.NewRecorder()
		logger := logtest.NewRecorder()
		RespondJSON(resp, map[string]interface{}{"valid": true, "doc": "<a>&</a>"}, logger)
		require.Equal(t, http.StatusOK, resp.Code)
		require.Equal(t, ContentTypeAppJSON, resp.Header().Get("Content-Type"))
		require.JSONEq(t, `{"valid":true,"doc":"<a>&</a>"}`, resp.Body.String())
		require.Contains(t, resp.Body.String(), "<a>&</a>")
		require.Empty(t, logger.Entries())
	})

	t.Run("marshaling error", func(t *testing.T) {
		resp := httptest.NewRecorder()
		logger := logtest.NewRecorder()
		RespondJSON(resp, make(chan bool), logger)
		require.Equal(t, http.StatusInternalServerError, resp.Code)
		require.Empty(t, resp.Body.String())
		require.Len(t, logger.Entries(), 1)
		require.Equal(t, log.LevelError, logger.Entries()[0].Level)

		resp = httptest.NewRecorder()
		RespondJSON(resp, make(chan bool), nil)
		require.Equal(t, http.StatusInternalServerError, resp.Code)
	})

	t.Run("writing error", func(t *testing.T) {
		resp := &responseRecorderReturnedErrorOnWrite{httptest.NewRecorder()}
		logger := logtest.NewRecorder()
		RespondJSON(resp, "foo", logger)
		require.Len(t, logger.Entries(), 1)
		require.Equal(t, log.LevelError, logger.Entries()[0].Level)
	})

	t.Run("content type is kept", func(t *testing.T) {
		resp := httptest.NewRecorder()
		resp.Header().Set("Content-Type", "application/problem+json")
		RespondCodeAndJSON(resp, http.StatusAccepted, []int{1, 2}, nil)
		require.Equal(t, http.StatusAccepted, resp.Code)
		require.Equal(t, "application/problem+json", resp.Header().Get("Content-Type"))
		require.Equal(t, "[1,2]", resp.Body.String())
	})

	t.Run("nil data", func(t *testing.T) {
		resp := httptest.NewRecorder()
		RespondCodeAndJSON(resp, http.StatusNoContent, nil, nil)
		require.Equal(t, http.StatusNoContent, resp.Code)
		require.Empty(t, resp.Header().Get("Content-Type"))
	})
}

func TestRespondError(t *testing.T) {
	resp := httptest.NewRecorder()
	logger := logtest.NewRecorder()
	RespondError(resp, http.StatusNotFound,
		NewError("Validator", ErrCodeNotFound, ErrMessageNotFound).AddContext("path", "/unknown"), logger)

	require.Equal(t, http.StatusNotFound, resp.Code)
	require.JSONEq(t,
		`{"error":{"domain":"Validator","code":"notFound","message":"Not found.","context":{"path":"/unknown"}}}`,
		resp.Body.String())

	logEntry, found := logger.FindEntry("error in response")
	require.True(t, found)
	require.Equal(t, log.LevelError, logEntry.Level)
	errCode, _ := logEntry.StringField("error_code")
	require.Equal(t, ErrCodeNotFound, errCode)
}

func TestRespondInternalError(t *testing.T) {
	resp := httptest.NewRecorder()
	RespondInternalError(resp, "Validator", nil)
	require.Equal(t, http.StatusInternalServerError, resp.Code)
	require.JSONEq(t, `{"error":{"domain":"Validator","code":"internalError","message":"Internal error."}}`,
		resp.Body.String())
}
