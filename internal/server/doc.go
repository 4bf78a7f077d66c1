// Package server provides the serve-mode HTTP server for the Copilot bridge.
//
// This package wires the handlers to a Gin router:
//   - Middleware stack (recovery, request ids, logging, metrics, CORS, rate limiting)
//   - REST and server-sent event routes under /api
//   - The WebSocket bridge on /stream
//   - Prometheus metrics on /metrics
//
// Server Lifecycle:
//  1. Load configuration from file and environment
//  2. Initialize logger and metrics
//  3. Load credentials and build the client
//  4. Setup HTTP routes and middleware
//  5. Start HTTP server
//  6. Graceful shutdown when the context ends
//
// Example Usage:
//
//	srv := server.NewServer(cfg, copilot, server.Options{Logger: logger, Metrics: metrics})
//	if err := srv.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
package server
