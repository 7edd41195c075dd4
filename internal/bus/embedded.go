package bus

import (
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/rs/zerolog"
)

// EmbeddedServer is an in-process NATS server for single-host deployments
type EmbeddedServer struct {
	ns     *server.Server
	logger zerolog.Logger
}

// StartEmbedded starts a NATS server listening on host:port. Port -1 picks a
// free port.
func StartEmbedded(host string, port int, logger zerolog.Logger) (*EmbeddedServer, error) {
	opts := &server.Options{
		Host:   host,
		Port:   port,
		NoLog:  true,
		NoSigs: true,
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("create embedded NATS server: %w", err)
	}

	go ns.Start()

	if !ns.ReadyForConnections(5 * time.Second) {
		ns.Shutdown()
		return nil, errors.New("embedded NATS server failed to start within 5 seconds")
	}

	e := &EmbeddedServer{ns: ns, logger: logger.With().Str("component", "nats").Logger()}
	e.logger.Info().Str("url", ns.ClientURL()).Msg("Embedded NATS server started")
	return e, nil
}

// ClientURL is the address clients connect to
func (e *EmbeddedServer) ClientURL() string {
	return e.ns.ClientURL()
}

// Shutdown stops the server and waits for it to exit
func (e *EmbeddedServer) Shutdown() {
	if e == nil || e.ns == nil {
		return
	}
	e.logger.Info().Msg("Shutting down embedded NATS server")
	e.ns.Shutdown()
	e.ns.WaitForShutdown()
}
