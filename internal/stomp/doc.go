// Package stomp implements the STOMP 1.2 frame codec used by orderlink.
//
// A frame is a command line, an ordered header block, a blank line and an
// optional body terminated by NUL:
//
//	SEND
//	destination:/app/order/review
//	content-type:application/json
//	content-length:27
//
//	{"orderId":"42","rating":5}^@
//
// Frames travel one per WebSocket text message, so the codec works on whole
// byte slices rather than a stream. A message holding only end-of-line
// characters is a heartbeat.
//
// # Encoding
//
// Encode writes headers in the order given and always derives content-length
// from the body, so bodies may contain NUL. Header keys and values are escaped
// (\\, \n, \r, \c) for every command except CONNECT and CONNECTED.
//
// # Decoding
//
// Decode returns a *DecodeError for malformed input. It matches
// ErrMalformedFrame with errors.Is and carries the byte offset of the fault.
// When a header repeats, the first occurrence wins.
package stomp
