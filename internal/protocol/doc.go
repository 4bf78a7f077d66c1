// Package protocol implements the framed JSON sub-protocol spoken on the chat hub.
//
// Every WebSocket text frame carries one or more JSON records, each terminated
// by the ASCII record separator (0x1E). Inbound records are routed by their
// top-level integer "type" field:
//   - 1: intermediate update (cumulative bot text, notices, generation requests)
//   - 2: final update (sources, suggested replies, throttling)
//   - 3: cancellation acknowledgment
//   - 6: heartbeat
//
// Outbound records are the handshake, the heartbeat echo, the stop request
// and the chat request built by NewChatRequest.
//
// Example Usage:
//
//	frame, _ := protocol.Encode(protocol.NewHandshake())
//	conn.WriteMessage(websocket.TextMessage, frame)
//
//	for _, rec := range protocol.Decode(data) {
//	    if t, ok := rec.Type(); ok && t == protocol.TypeHeartbeat {
//	        // reply
//	    }
//	}
package protocol
