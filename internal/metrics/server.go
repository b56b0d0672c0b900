package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Start listens on addr and serves the Prometheus registry at path. The
// returned function stops the listener, draining scrapes until ctx expires.
func Start(addr, path string, log zerolog.Logger) (func(context.Context) error, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return Serve(lis, path, log), nil
}

// Serve serves the registry on an existing listener.
func Serve(lis net.Listener, path string, log zerolog.Logger) func(context.Context) error {
	mux := http.NewServeMux()
	mux.Handle(path, Handler())

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics serve")
		}
	}()
	return srv.Shutdown
}
