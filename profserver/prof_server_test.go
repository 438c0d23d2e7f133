/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package profserver

import (
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-validatorkit/log/logtest"
	"github.com/acronis/go-validatorkit/testutil"
)

func TestProfServer_Start(t *testing.T) {
	addr := testutil.GetLocalAddrWithFreeTCPPort()
	logger := logtest.NewRecorder()

	profServer := New(&Config{Enabled: true, Address: addr}, logger)
	fatalErr := make(chan error, 1)
	go profServer.Start(fatalErr)
	require.NoError(t, testutil.WaitListeningServer(addr, time.Second*3))
	defer func() {
		require.NoError(t, profServer.Stop(false))
		testutil.RequireNoErrorInChannel(t, fatalErr)
		_, found := logger.FindEntry("profiling HTTP server closed")
		require.True(t, found)
	}()

	resp, err := http.Get(profServer.URL() + "/debug/pprof/")
	require.NoError(t, err)
	defer func() { require.NoError(t, resp.Body.Close()) }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	respBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NotEmpty(t, respBody)

	startEntry, found := logger.FindEntry("starting profiling HTTP server...")
	require.True(t, found)
	field, found := startEntry.FindField("mutex_profile_fraction")
	require.True(t, found)
	require.Zero(t, field.Int)
}

func TestProfServer_StartOnBusyAddress(t *testing.T) {
	addr := testutil.GetLocalAddrWithFreeTCPPort()

	first := New(&Config{Enabled: true, Address: addr}, logtest.NewLogger())
	firstFatalErr := make(chan error, 1)
	go first.Start(firstFatalErr)
	require.NoError(t, testutil.WaitListeningServer(addr, time.Second*3))
	defer func() { require.NoError(t, first.Stop(false)) }()

	second := New(&Config{Enabled: true, Address: addr}, logtest.NewLogger())
	secondFatalErr := make(chan error, 1)
	go second.Start(secondFatalErr)
	require.Error(t, testutil.RequireErrorInChannel(t, secondFatalErr, time.Second*3))
}
