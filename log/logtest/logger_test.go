/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package logtest

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-validatorkit/log"
)

func TestNewLoggerWithOpts(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithOpts(LoggerOpts{Output: &buf})

	logger.Debug("OK to proceed", log.String("rate_limit_key", "127.0.0.1|restValidate"))
	logger.Error("rate limiting service error")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var j map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &j))
	require.Equal(t, "debug", j["level"])
	require.Equal(t, "OK to proceed", j["msg"])
	require.Equal(t, "127.0.0.1|restValidate", j["rate_limit_key"])

	require.NoError(t, json.Unmarshal([]byte(lines[1]), &j))
	require.Equal(t, "error", j["level"])
}
