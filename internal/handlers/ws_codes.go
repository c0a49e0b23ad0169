// internal/handlers/ws_codes.go
package handlers

// Application close codes for the room websocket.
const (
	BadSubprotocolError  = 3000 // client did not negotiate the dealroom subprotocol
	SessionReplacedError = 3001 // the seat was rejoined from another connection
)
