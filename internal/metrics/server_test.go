package metrics

import (
	"context"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServe_ExposesServerSideCollectors(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	shutdown := Serve(lis, "/metrics", zerolog.Nop())

	RecordRPC("ListUsers", "OK", time.Millisecond)
	RecordRPCFailure("GetUser", "USER_NOT_FOUND")
	SetStoreRecords(5)

	resp, err := http.Get("http://" + lis.Addr().String() + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	text := string(body)
	assert.Contains(t, text, `userservice_rpc_requests_total{code="OK",method="ListUsers"}`)
	assert.Contains(t, text, `userservice_rpc_failures_total{error_code="USER_NOT_FOUND",method="GetUser"}`)
	assert.Contains(t, text, "userservice_store_records 5")

	resp, err = http.Get("http://" + lis.Addr().String() + "/other")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, shutdown(ctx))

	_, err = http.Get("http://" + lis.Addr().String() + "/metrics")
	assert.Error(t, err, "listener is closed after shutdown")
}

func TestStart_BadAddress(t *testing.T) {
	_, err := Start("256.0.0.1:bad", "/metrics", zerolog.Nop())
	assert.Error(t, err)
}
