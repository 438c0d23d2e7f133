/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package logtest

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-validatorkit/log"
)

func TestRecorder(t *testing.T) {
	logRecorder := NewRecorder()
	logRecorder.Warn("request blocked after exceeding rate limit",
		log.String("rate_limit_key", "127.0.0.1|uiValidate"), log.Int("capacity", 60))
	logRecorder.With(log.String("request_id", "abc")).Info("validation rate limiting is enabled")
	logRecorder.WithLevel(log.LevelError).Info("must be skipped")

	require.Len(t, logRecorder.Entries(), 2)

	_, found := logRecorder.FindEntry("unknown")
	require.False(t, found)

	logEntry, found := logRecorder.FindEntry("request blocked after exceeding rate limit")
	require.True(t, found)
	require.Equal(t, log.LevelWarn, logEntry.Level)

	key, found := logEntry.StringField("rate_limit_key")
	require.True(t, found)
	require.Equal(t, "127.0.0.1|uiValidate", key)

	capacityField, found := logEntry.FindField("capacity")
	require.True(t, found)
	require.Equal(t, 60, int(capacityField.Int))

	_, found = logEntry.StringField("missing")
	require.False(t, found)

	infoEntries := logRecorder.FindAllEntriesByFilter(func(entry RecordedEntry) bool {
		return entry.Level == log.LevelInfo
	})
	require.Len(t, infoEntries, 1)
	requestID, found := infoEntries[0].StringField("request_id")
	require.True(t, found)
	require.Equal(t, "abc", requestID)

	logRecorder.Reset()
	require.Empty(t, logRecorder.Entries())
}
