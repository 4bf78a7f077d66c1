// Package ws provides the WebSocket bridge for streamed answers.
//
// Each connection streams at most one answer at a time. A stop message sets
// the answer's stop token, so the hub is asked to stop and the stream still
// ends with a complete message.
//
// Message Types (Client → Server):
//   - ask: ask a question (text, tone, plugins, conversation_id)
//   - stop: stop the answer that is streaming
//   - ping: keep-alive ping
//
// Message Types (Server → Client):
//   - system: connection accepted
//   - start: answer started
//   - event: one answer event, tagged with its kind
//   - complete: answer finished, with the composed summary
//   - stopping: stop request accepted
//   - pong: reply to ping
//   - error: error occurred
//
// Example Usage:
//
//	handler := ws.NewHandler(copilot, metrics, logger, nil)
//	router.GET("/stream", handler.HandleConnection)
package ws
