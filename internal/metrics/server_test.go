package metrics

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestServerStartShutdown(t *testing.T) {
	t.Parallel()

	srv, err := Start("127.0.0.1:0", zap.NewNop())
	require.NoError(t, err)

	resp, err := http.Get("http://" + srv.Addr() + "/healthz")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, srv.Shutdown(context.Background()))
}

func TestServerStartBadAddr(t *testing.T) {
	t.Parallel()

	_, err := Start("256.0.0.1:bad", nil)
	require.ErrorContains(t, err, "listen on")
}
