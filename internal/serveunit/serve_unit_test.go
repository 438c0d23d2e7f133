/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package serveunit

import (
	"errors"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-validatorkit/log/logtest"
)

func TestRunner(t *testing.T) {
	t.Run("serve until closed", func(t *testing.T) {
		logger := logtest.NewRecorder()
		srv := &http.Server{ReadHeaderTimeout: time.Second, Handler: http.NotFoundHandler()}
		r := New("test server", "127.0.0.1:0", logger, srv.Serve)

		fatalErr := make(chan error, 1)
		go r.Run(fatalErr)
		require.Eventually(t, func() bool { return r.Address() != "127.0.0.1:0" }, time.Second*3, time.Millisecond*10)

		resp, err := http.Get("http://" + r.Address() + "/") //nolint:noctx // test request
		require.NoError(t, err)
		require.NoError(t, resp.Body.Close())
		require.Equal(t, http.StatusNotFound, resp.StatusCode)

		require.NoError(t, srv.Close())
		r.Wait()
		require.Empty(t, fatalErr)

		_, found := logger.FindEntry("starting test server...")
		require.True(t, found)
		_, found = logger.FindEntry("test server closed")
		require.True(t, found)
	})

	t.Run("listen error", func(t *testing.T) {
		logger := logtest.NewRecorder()
		r := New("test server", "invalid-address", logger, func(net.Listener) error { return nil })
		fatalErr := make(chan error, 1)
		r.Run(fatalErr)
		require.Error(t, <-fatalErr)
		_, found := logger.FindEntry("test server error")
		require.True(t, found)
	})

	t.Run("serve error", func(t *testing.T) {
		serveErr := errors.New("accept failed")
		r := New("test server", "127.0.0.1:0", logtest.NewRecorder(), func(ln net.Listener) error {
			_ = ln.Close()
			return serveErr
		})
		fatalErr := make(chan error, 1)
		r.Run(fatalErr)
		require.ErrorIs(t, <-fatalErr, serveErr)
	})

	t.Run("wait without run", func(t *testing.T) {
		r := New("test server", ":0", logtest.NewRecorder(), nil)
		r.Wait()
	})
}
