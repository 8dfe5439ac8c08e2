package mcpstdio

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestClientError_MatchesSentinels tests that each kind matches its own sentinel only.
func TestClientError_MatchesSentinels(t *testing.T) {
	sentinels := map[ErrorKind]error{
		KindNotRunning:       ErrNotRunning,
		KindWriteFailure:     ErrWriteFailure,
		KindTimeout:          ErrTimeout,
		KindRemoteError:      ErrRemote,
		KindMalformedInput:   ErrMalformedInput,
		KindConnectionClosed: ErrConnectionClosed,
		KindCancelled:        ErrCancelled,
	}

	for kind, sentinel := range sentinels {
		t.Run(kind.String(), func(t *testing.T) {
			err := fmt.Errorf("wrapped: %w", &ClientError{Kind: kind, Method: "tools/call"})

			require.ErrorIs(t, err, sentinel)

			for other, otherSentinel := range sentinels {
				if other != kind {
					require.NotErrorIs(t, err, otherSentinel)
				}
			}
		})
	}
}

// TestClientError_RemoteMessage tests that the remote message is reported verbatim.
func TestClientError_RemoteMessage(t *testing.T) {
	err := &ClientError{Kind: KindRemoteError, Message: "Unknown tool: nope", Code: -32000}

	require.Equal(t, "Unknown tool: nope", err.Error())
}

// TestConnectionClosed_WrapsProcessError tests that a dead server's details survive wrapping.
func TestConnectionClosed_WrapsProcessError(t *testing.T) {
	procErr := &ProcessError{ExitCode: 3, Stderr: "fatal: boom"}
	err := &ClientError{Kind: KindConnectionClosed, Err: procErr}

	require.ErrorIs(t, err, ErrConnectionClosed)

	var got *ProcessError
	require.ErrorAs(t, err, &got)
	require.Equal(t, 3, got.ExitCode)
	require.Contains(t, err.Error(), "fatal: boom")
}

// TestConnectionError_Creation tests ConnectionError creation and formatting.
func TestConnectionError_Creation(t *testing.T) {
	inner := errors.New("executable file not found in $PATH")
	err := &ConnectionError{Err: inner}

	require.Contains(t, err.Error(), "failed to start MCP server")
	require.ErrorIs(t, err, inner)
}

// TestJSONDecodeError_IsMalformedInput tests the decode error classification.
func TestJSONDecodeError_IsMalformedInput(t *testing.T) {
	err := &JSONDecodeError{RawData: "not json", Err: errors.New("invalid character")}

	require.ErrorIs(t, err, ErrMalformedInput)
	require.Equal(t, "not json", err.RawData)
}

// TestMCPClientError_Interface tests that every error type implements the base interface.
func TestMCPClientError_Interface(t *testing.T) {
	errs := []error{
		&ClientError{Kind: KindTimeout},
		&ConnectionError{Err: errors.New("x")},
		&ProcessError{ExitCode: 1},
		&JSONDecodeError{Err: errors.New("x")},
	}

	for _, err := range errs {
		var base MCPClientError
		require.ErrorAs(t, err, &base)
		require.True(t, base.IsMCPClientError())
	}
}
