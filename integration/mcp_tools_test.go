//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mcpstdio "github.com/wagiedev/mcp-stdio-go"
)

func newFakeNWS(t *testing.T) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		state := strings.TrimPrefix(r.URL.Path, "/alerts/active/area/")
		if state == r.URL.Path {
			http.NotFound(w, r)

			return
		}

		fmt.Fprintf(w, `{"features":[{"properties":{"event":"Test Event %s","areaDesc":"%s","severity":"Minor"}}]}`,
			state, state)
	}))
	t.Cleanup(server.Close)

	return server
}

// TestTools_ListTools tests the weather tool surface over the wire.
func TestTools_ListTools(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	err := mcpstdio.WithClient(ctx, func(c mcpstdio.Client) error {
		tools, err := c.ListTools(ctx)
		require.NoError(t, err)

		names := make([]string, 0, len(tools))
		for _, tool := range tools {
			names = append(names, tool.Name)
		}

		assert.ElementsMatch(t, []string{"get_alerts", "get_forecast", "geocode"}, names)

		return nil
	}, serverOptions(t, nil)...)
	require.NoError(t, err)
}

// TestTools_ConcurrentAlerts tests that concurrent calls each get their own answer.
func TestTools_ConcurrentAlerts(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	nws := newFakeNWS(t)
	states := []string{"CA", "TX", "FL", "NY", "WA", "OR", "NV", "AZ"}

	err := mcpstdio.WithClient(ctx, func(c mcpstdio.Client) error {
		var wg sync.WaitGroup

		for _, state := range states {
			wg.Go(func() {
				out, err := c.CallTool(ctx, "get_alerts", map[string]any{"state": state})
				if !assert.NoError(t, err) {
					return
				}

				assert.Contains(t, out, "Event: Test Event "+state)
				assert.Contains(t, out, "Area: "+state)
			})
		}

		wg.Wait()

		return nil
	}, serverOptions(t, map[string]string{"NWS_API_BASE": nws.URL})...)
	require.NoError(t, err)
}

// TestTools_GeocodeWithoutKey tests the user-facing message for a missing API key.
func TestTools_GeocodeWithoutKey(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	err := mcpstdio.WithClient(ctx, func(c mcpstdio.Client) error {
		out, err := c.CallTool(ctx, "geocode", map[string]any{"location": "Lansing, Michigan"})
		require.NoError(t, err)
		assert.Contains(t, out, "GOOGLE_GEOCODING_API_KEY")

		return nil
	}, serverOptions(t, map[string]string{"GOOGLE_GEOCODING_API_KEY": ""})...)
	require.NoError(t, err)
}

// TestTools_UnknownMethod tests that a remote error is reported with its code.
func TestTools_UnknownMethod(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	err := mcpstdio.WithClient(ctx, func(c mcpstdio.Client) error {
		_, err := c.Request(ctx, "resources/teleport", nil)
		require.ErrorIs(t, err, mcpstdio.ErrRemote)

		var clientErr *mcpstdio.ClientError
		require.ErrorAs(t, err, &clientErr)
		assert.NotZero(t, clientErr.Code)

		return nil
	}, serverOptions(t, nil)...)
	require.NoError(t, err)
}

// TestExportTools tests the -export-tools flag of the server binary.
func TestExportTools(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tools.json")

	cmd := exec.Command(serverBinary, "-export-tools", path)
	cmd.Env = append(os.Environ(), "LOG_DIR="+t.TempDir())

	out, err := cmd.CombinedOutput()
	require.NoError(t, err, string(out))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var specs []map[string]any
	require.NoError(t, json.Unmarshal(data, &specs))
	require.Len(t, specs, 3)

	for _, s := range specs {
		assert.Contains(t, s, "input_schema")
	}
}
