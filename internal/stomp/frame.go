package stomp

// Command is a STOMP frame command.
type Command string

// Client and server commands supported by the codec.
const (
	CmdConnect     Command = "CONNECT"
	CmdStomp       Command = "STOMP"
	CmdConnected   Command = "CONNECTED"
	CmdSend        Command = "SEND"
	CmdSubscribe   Command = "SUBSCRIBE"
	CmdUnsubscribe Command = "UNSUBSCRIBE"
	CmdDisconnect  Command = "DISCONNECT"
	CmdMessage     Command = "MESSAGE"
	CmdReceipt     Command = "RECEIPT"
	CmdError       Command = "ERROR"
)

// Header names used by orderlink.
const (
	HeaderAcceptVersion = "accept-version"
	HeaderVersion       = "version"
	HeaderHost          = "host"
	HeaderLogin         = "login"
	HeaderPasscode      = "passcode"
	HeaderHeartBeat     = "heart-beat"
	HeaderServer        = "server"
	HeaderSession       = "session"
	HeaderDestination   = "destination"
	HeaderID            = "id"
	HeaderAck           = "ack"
	HeaderSubscription  = "subscription"
	HeaderMessageID     = "message-id"
	HeaderContentType   = "content-type"
	HeaderContentLength = "content-length"
	HeaderReceipt       = "receipt"
	HeaderReceiptID     = "receipt-id"
	HeaderMessage       = "message"
)

// Version is the protocol version negotiated in CONNECT.
const Version = "1.2"

// Subprotocol is the WebSocket subprotocol name for STOMP 1.2.
const Subprotocol = "v12.stomp"

// commandSpec lists the headers a command must carry and whether it may have a body.
type commandSpec struct {
	required []string
	body     bool
}

var commands = map[Command]commandSpec{
	CmdConnect:     {required: []string{HeaderAcceptVersion}},
	CmdStomp:       {required: []string{HeaderAcceptVersion}},
	CmdConnected:   {required: []string{HeaderVersion}},
	CmdSend:        {required: []string{HeaderDestination}, body: true},
	CmdSubscribe:   {required: []string{HeaderDestination, HeaderID}},
	CmdUnsubscribe: {required: []string{HeaderID}},
	CmdDisconnect:  {},
	CmdMessage:     {required: []string{HeaderDestination, HeaderSubscription, HeaderMessageID}, body: true},
	CmdReceipt:     {required: []string{HeaderReceiptID}},
	CmdError:       {body: true},
}

// Known reports whether c is a command the codec understands.
func (c Command) Known() bool {
	_, ok := commands[c]
	return ok
}

// escaped reports whether header escaping applies to frames with this command.
func (c Command) escaped() bool {
	return c != CmdConnect && c != CmdConnected && c != CmdStomp
}

// Header is a single key/value pair.
type Header struct {
	Key   string
	Value string
}

// Headers is an ordered header block. Keys may repeat; lookups return the first.
type Headers []Header

// Get returns the first value for key.
func (h Headers) Get(key string) (string, bool) {
	for _, kv := range h {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return "", false
}

// Value returns the first value for key, or "" when absent.
func (h Headers) Value(key string) string {
	v, _ := h.Get(key)
	return v
}

// With returns a copy of h with key set to value. An existing entry keeps its
// position; otherwise the pair is appended. Later duplicates of key are dropped.
func (h Headers) With(key, value string) Headers {
	out := make(Headers, 0, len(h)+1)
	found := false
	for _, kv := range h {
		if kv.Key != key {
			out = append(out, kv)
			continue
		}
		if !found {
			out = append(out, Header{Key: key, Value: value})
			found = true
		}
	}
	if !found {
		out = append(out, Header{Key: key, Value: value})
	}
	return out
}

// Frame is one protocol message. Frames are treated as immutable values:
// helpers that change a frame return a new one.
type Frame struct {
	Command Command
	Headers Headers
	Body    []byte
}

// New builds a frame from alternating key/value strings.
// A trailing key without a value is ignored.
//
// Example:
//
//	f := stomp.New(stomp.CmdSubscribe, "id", "sub-0", "destination", "/topic/order/42")
func New(cmd Command, kv ...string) Frame {
	h := make(Headers, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		h = append(h, Header{Key: kv[i], Value: kv[i+1]})
	}
	return Frame{Command: cmd, Headers: h}
}

// Header returns the first value of key, or "".
func (f Frame) Header(key string) string {
	return f.Headers.Value(key)
}

// WithHeader returns a copy of f with key set to value.
func (f Frame) WithHeader(key, value string) Frame {
	f.Headers = f.Headers.With(key, value)
	return f
}

// WithBody returns a copy of f carrying body.
func (f Frame) WithBody(body []byte) Frame {
	f.Body = body
	return f
}

// IsHeartbeat reports whether f is the empty heartbeat frame.
func (f Frame) IsHeartbeat() bool {
	return f.Command == ""
}

// Heartbeat is the wire form of a heartbeat: a single end-of-line.
var Heartbeat = []byte{'\n'}
