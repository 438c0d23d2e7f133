/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package testutil

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRequireNoErrorInChannel(t *testing.T) {
	mockT := &MockT{}
	ch := make(chan error, 1)

	RequireNoErrorInChannel(mockT, ch)
	require.False(t, mockT.Failed)

	ch <- nil
	RequireNoErrorInChannel(mockT, ch)
	require.False(t, mockT.Failed)

	ch <- errors.New("listen tcp: address already in use")
	RequireNoErrorInChannel(mockT, ch)
	require.True(t, mockT.Failed)
}

func TestRequireErrorInChannel(t *testing.T) {
	ch := make(chan error, 1)
	wantErr := errors.New("listen tcp: address already in use")
	go func() {
		time.Sleep(time.Millisecond * 20)
		ch <- wantErr
	}()
	mockT := &MockT{}
	require.Equal(t, wantErr, RequireErrorInChannel(mockT, ch, time.Second))
	require.False(t, mockT.Failed)

	mockT = &MockT{}
	require.Nil(t, RequireErrorInChannel(mockT, ch, time.Millisecond*20))
	require.True(t, mockT.Failed)
}
