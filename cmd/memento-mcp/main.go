// cmd/memento-mcp is the entry point for the cognitive memory engine's MCP
// (Model Context Protocol) server. It wires storage, the cognitive encoder,
// and the System Facade together and serves JSON-RPC 2.0 over stdin/stdout.
//
// Startup sequence:
//  1. Load configuration from environment variables.
//  2. Build the guarded embedding provider and cognitive encoder.
//  3. Construct the Connection Manager, which opens per-project stores lazily.
//  4. Construct the System Facade over the encoder, connections, and a
//     go-git-backed commit source.
//  5. Create the MCP server and serve JSON-RPC 2.0 requests from stdin,
//     writing responses to stdout.
//
// CRITICAL: ALL logging MUST go to stderr. Any bytes written to stdout that
// are not valid JSON-RPC 2.0 response frames will corrupt the protocol.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/cogmem/engram/internal/cognitive"
	"github.com/cogmem/engram/internal/config"
	"github.com/cogmem/engram/internal/connections"
	"github.com/cogmem/engram/internal/facade"
	"github.com/cogmem/engram/internal/gitlog"
	"github.com/cogmem/engram/internal/server"
)

func main() {
	// Redirect the default logger to stderr so incidental log calls from
	// imported packages never pollute the stdout JSON-RPC stream.
	log.SetOutput(os.Stderr)
	log.SetPrefix("memento-mcp: ")
	log.SetFlags(log.LstdFlags)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if cfg.Storage.StorageEngine != "postgres" {
		if err := os.MkdirAll(cfg.Storage.DataPath, 0o700); err != nil {
			log.Fatalf("failed to create data directory %q: %v", cfg.Storage.DataPath, err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("received shutdown signal")
		cancel()
	}()

	provider := cognitive.NewGuardedProvider(cognitive.NewLocalProvider(cfg.Embedding.Dimension), cfg.Embedding.RateLimitRPS)
	encoder := cognitive.NewCognitiveEncoder(provider, cognitive.NewDimensionExtractor())

	conns := connections.NewManager(cfg.Storage)
	defer func() {
		if err := conns.Close(); err != nil {
			log.Printf("error closing connection manager: %v", err)
		}
	}()

	f := facade.New(cfg, conns, encoder, gitlog.NewGoGitSource())

	defaultProjectPath := os.Getenv("MEMENTO_DEFAULT_PROJECT_PATH")
	var srvOpts []server.ServerOption
	if defaultProjectPath != "" {
		log.Printf("default project path: %s", defaultProjectPath)
		srvOpts = append(srvOpts, server.WithDefaultProjectPath(defaultProjectPath))
	}
	srv := server.NewServer(f, srvOpts...)

	transport := server.NewStdioTransport(srv, os.Stdin, os.Stdout)

	log.Println("ready - serving JSON-RPC 2.0 on stdin/stdout")

	if err := transport.Serve(ctx); err != nil {
		// A non-nil error here is normal (context cancellation) or indicates a
		// fatal stdin/stdout problem. Either way it is informational only.
		log.Printf("transport stopped: %v", err)
	}
}
