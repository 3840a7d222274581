// Package api
// Author: momentics
//
// Structured error rendering.

package api_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-async/api"
)

func TestErrorWithoutContext(t *testing.T) {
	err := api.NewError(api.ErrCodeStopped, "loop is stopped")
	require.Equal(t, api.ErrCodeStopped, err.Code)
	require.Equal(t, "loop is stopped", err.Error())
}

func TestErrorContextRendersSorted(t *testing.T) {
	err := api.NewError(api.ErrCodeInvalidArgument, "bad registration").
		WithContext("op", "read").
		WithContext("fd", 7)
	require.Equal(t, "bad registration (fd=7, op=read)", err.Error())
}
