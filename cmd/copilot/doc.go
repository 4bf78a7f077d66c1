// Package main is the copilot command: a terminal client and HTTP bridge for
// Bing Copilot.
//
// Commands:
//   - ask: stream an answer to the terminal
//   - list: list the account's conversations
//   - draw: generate images for a prompt
//   - serve: run the REST, server-sent event and WebSocket bridge
//
// Configuration:
//   - A .env file in the working directory, if present
//   - Environment variables (12-factor)
//   - An optional YAML or TOML file (-config)
//   - CLI flags (override both)
//
// Usage:
//
//	copilot ask -tone precise -plugin Search "what changed in Go 1.23?"
//	copilot ask -conversation 51D|BingProd|... "and in 1.24?"
//	copilot draw -save-images ./out "a lighthouse in a storm"
//	copilot serve -port 8000 -dev
//
// Signals:
//   - SIGINT during ask: ask the service to stop; a second SIGINT aborts
//   - SIGINT, SIGTERM during serve: graceful shutdown
package main
