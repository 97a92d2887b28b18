// Package dispatch runs the request/reply loop on a ZeroMQ REP socket.
//
// The engine owns the socket and drives one cycle per request:
// receive, decode, resolve, invoke, encode, reply. Every received
// message gets exactly one reply, in order:
//   - Undecodable payload → 400, msg_id null
//   - Unknown action → 404 "Unknown action: <name>"
//   - Handler failure → the *registry.Error code, else 500 with the error text
//   - Handler panic → 500 "Internal server error", msg_id echoed
//   - Encode failure → the generic 500 fallback envelope, msg_id null
//
// A slow handler stalls the loop. REQ/REP forbids pipelining, so there is
// nothing to overlap. Shutdown clears the running flag and closes the
// socket, which unblocks a pending receive.
package dispatch
