// Package http provides HTTP handlers for the Copilot bridge REST API.
//
// This package implements all HTTP endpoints using the Gin framework: health
// checks, conversation management, streamed answers and image generation.
//
// Endpoints:
//   - Health: / and /health
//   - Conversations: /api/conversations, /api/conversations/:id, /api/conversations/delete
//   - History: /api/conversations/:id/messages
//   - Answers: /api/ask (server-sent events)
//   - Images: /api/images
//
// Server-Sent Events (/api/ask):
//   - start: conversation and session ids
//   - text, suggested_replies, notice, images, apology, sources, usage_limit: one per event
//   - done: the composed summary
//   - error: the stream failed
//
// Example Usage:
//
//	handlers := http.NewHandlers(copilot, metrics, logger)
//	router.GET("/health", handlers.Health)
//	router.POST("/api/ask", handlers.Ask)
package http
