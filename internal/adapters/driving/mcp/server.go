// Package mcp exposes tender search to MCP clients such as editor agents.
//
// Two tools are offered: search, which ranks ingested fragments against a
// query, and list_collections. Collections are also readable as JSON
// resources under tender://collections.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/custodia-labs/tender-ingest/internal/logger"
)

// Version is reported to clients during the MCP handshake.
const Version = "0.1.0"

const (
	readHeaderTimeout = 10 * time.Second

	// shutdownGrace bounds how long in-flight HTTP sessions may drain.
	shutdownGrace = 5 * time.Second
)

// Server answers tender search requests over stdio or streamable HTTP.
type Server struct {
	ports  *Ports
	server *mcp.Server
	log    *zap.Logger
}

// NewServer validates ports and registers the search tools and collection
// resources. A nil logger discards output.
func NewServer(ports *Ports, log *zap.Logger) (*Server, error) {
	if err := ports.Validate(); err != nil {
		return nil, fmt.Errorf("validating ports: %w", err)
	}

	s := &Server{
		ports:  ports,
		server: mcp.NewServer(&mcp.Implementation{Name: "tender", Version: Version}, nil),
		log:    logger.OrNop(log),
	}
	s.registerTools()
	s.registerResources()
	return s, nil
}

// Run serves one client on stdin/stdout until ctx ends or the client
// disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.log.Debug("mcp serving on stdio")
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// Handler returns the streamable HTTP endpoint. Every request shares the
// same tool set.
func (s *Server) Handler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(_ *http.Request) *mcp.Server {
		return s.server
	}, nil)
}

// RunHTTP listens on addr until ctx ends. Cancellation stops the listener
// and gives open sessions a short grace period; a clean stop returns nil.
func (s *Server) RunHTTP(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Warn("mcp shutdown", zap.Error(err))
		}
	}()

	s.log.Info("mcp server listening", zap.String("addr", addr))
	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		<-stopped
		s.log.Info("mcp server stopped", zap.String("addr", addr))
		return nil
	}
	return fmt.Errorf("mcp http on %s: %w", addr, err)
}
