package stomp

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode_Send(t *testing.T) {
	body := []byte(`{"orderId":"42","rating":5}`)
	f := New(CmdSend, HeaderDestination, "/app/order/review", HeaderContentType, "application/json").WithBody(body)

	data, err := Encode(f)
	require.NoError(t, err)

	want := "SEND\n" +
		"destination:/app/order/review\n" +
		"content-type:application/json\n" +
		"content-length:27\n" +
		"\n" +
		`{"orderId":"42","rating":5}` + "\x00"
	assert.Equal(t, want, string(data))
}

func TestEncode_ReplacesCallerContentLength(t *testing.T) {
	f := New(CmdSend, HeaderContentLength, "999", HeaderDestination, "/queue/a").WithBody([]byte("hi"))

	data, err := Encode(f)
	require.NoError(t, err)
	assert.Equal(t, "SEND\ncontent-length:2\ndestination:/queue/a\n\nhi\x00", string(data))
}

func TestEncode_EscapesHeaders(t *testing.T) {
	f := New(CmdSubscribe, HeaderID, "sub-0", HeaderDestination, "/topic/a:b\nc\\d")

	data, err := Encode(f)
	require.NoError(t, err)
	assert.Equal(t, "SUBSCRIBE\nid:sub-0\ndestination:/topic/a\\cb\\nc\\\\d\n\n\x00", string(data))
}

func TestEncode_ConnectIsNotEscaped(t *testing.T) {
	f := New(CmdConnect, HeaderAcceptVersion, Version, HeaderHost, "/", HeaderLogin, "a:b")

	data, err := Encode(f)
	require.NoError(t, err)
	assert.Equal(t, "CONNECT\naccept-version:1.2\nhost:/\nlogin:a:b\n\n\x00", string(data))

	_, err = Encode(New(CmdConnect, HeaderAcceptVersion, Version, HeaderPasscode, "line\nbreak"))
	assert.ErrorIs(t, err, ErrInvalidHeader)
}

func TestEncode_Errors(t *testing.T) {
	tests := []struct {
		name  string
		frame Frame
		want  error
	}{
		{"unknown command", New("PUBLISH"), ErrUnknownCommand},
		{"send without destination", New(CmdSend), ErrMissingHeader},
		{"subscribe without id", New(CmdSubscribe, HeaderDestination, "/topic/x"), ErrMissingHeader},
		{"unsubscribe without id", New(CmdUnsubscribe), ErrMissingHeader},
		{"body on subscribe", New(CmdSubscribe, HeaderID, "1", HeaderDestination, "/t").WithBody([]byte("x")), ErrBodyNotAllowed},
		{"empty header key", New(CmdSend, HeaderDestination, "/t", "", "v"), ErrInvalidHeader},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Encode(tt.frame)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestEncode_Heartbeat(t *testing.T) {
	data, err := Encode(Frame{})
	require.NoError(t, err)
	assert.Equal(t, Heartbeat, data)
}

func TestDecode_MessageWithContentLength(t *testing.T) {
	body := []byte("a\x00b")
	in, err := Encode(New(CmdMessage,
		HeaderDestination, "/topic/order/42",
		HeaderSubscription, "sub-0",
		HeaderMessageID, "m-1",
	).WithBody(body))
	require.NoError(t, err)

	f, err := Decode(in)
	require.NoError(t, err)
	assert.Equal(t, CmdMessage, f.Command)
	assert.Equal(t, "/topic/order/42", f.Header(HeaderDestination))
	assert.Equal(t, "sub-0", f.Header(HeaderSubscription))
	assert.Equal(t, body, f.Body)
}

func TestDecode_BodyWithoutContentLength(t *testing.T) {
	f, err := Decode([]byte("ERROR\nmessage:bad login\n\nAccess refused\x00\n\n"))
	require.NoError(t, err)
	assert.Equal(t, CmdError, f.Command)
	assert.Equal(t, "bad login", f.Header(HeaderMessage))
	assert.Equal(t, "Access refused", string(f.Body))
}

func TestDecode_CRLFAndLeadingHeartbeats(t *testing.T) {
	f, err := Decode([]byte("\r\n\nCONNECTED\r\nversion:1.2\r\nheart-beat:0,5000\r\n\r\n\x00"))
	require.NoError(t, err)
	assert.Equal(t, CmdConnected, f.Command)
	assert.Equal(t, "0,5000", f.Header(HeaderHeartBeat))
	assert.Nil(t, f.Body)
}

func TestDecode_UnescapesAndKeepsFirstRepeatedHeader(t *testing.T) {
	f, err := Decode([]byte("MESSAGE\ndestination:/topic/a\\cb\nsubscription:sub-1\nmessage-id:1\nx:first\nx:second\n\n\x00"))
	require.NoError(t, err)
	assert.Equal(t, "/topic/a:b", f.Header(HeaderDestination))
	assert.Equal(t, "first", f.Header("x"))
	assert.Len(t, f.Headers, 5)
}

func TestDecode_Heartbeat(t *testing.T) {
	for _, in := range []string{"\n", "\r\n", "\n\n"} {
		f, err := Decode([]byte(in))
		require.NoError(t, err)
		assert.True(t, f.IsHeartbeat())
		assert.True(t, IsHeartbeat([]byte(in)))
	}
	assert.False(t, IsHeartbeat([]byte("RECEIPT\nreceipt-id:1\n\n\x00")))
}

func TestDecode_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"unknown command", "HELLO\n\n\x00"},
		{"no newline after command", "SEND"},
		{"unterminated headers", "SEND\ndestination:/a\n"},
		{"header without colon", "SEND\ndestination\n\n\x00"},
		{"header with empty key", "SEND\n:value\n\n\x00"},
		{"undefined escape", "SEND\ndestination:/a\\t\n\n\x00"},
		{"dangling escape", "SEND\ndestination:/a\\\n\n\x00"},
		{"missing NUL", "SEND\ndestination:/a\n\nbody"},
		{"bad content-length", "SEND\ncontent-length:x\n\nbody\x00"},
		{"negative content-length", "SEND\ncontent-length:-1\n\n\x00"},
		{"short body", "SEND\ncontent-length:10\n\nbody\x00"},
		{"no NUL at content-length", "SEND\ncontent-length:2\n\nbody\x00"},
		{"content-length near max int", "MESSAGE\nsubscription:sub-1\ncontent-length:9223372036854775807\n\nx\x00"},
		{"content-length past max int", "MESSAGE\ncontent-length:99999999999999999999\n\nx\x00"},
		{"content-length equals remaining", "SEND\ncontent-length:5\n\nbody\x00"},
		{"trailing garbage", "SEND\ndestination:/a\n\nbody\x00junk"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.input))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformedFrame)

			var de *DecodeError
			require.True(t, errors.As(err, &de))
			assert.GreaterOrEqual(t, de.Offset, 0)
			assert.NotEmpty(t, de.Reason)
		})
	}
}

func TestHeaders_With(t *testing.T) {
	h := Headers{{"a", "1"}, {"b", "2"}, {"a", "3"}}

	got := h.With("a", "9")
	assert.Equal(t, Headers{{"a", "9"}, {"b", "2"}}, got)
	assert.Equal(t, "1", h.Value("a"), "original must be unchanged")

	got = h.With("c", "4")
	assert.Equal(t, "4", got.Value("c"))
	assert.Len(t, got, 3)
}

func TestParseHeartBeat(t *testing.T) {
	tests := []struct {
		in      string
		want    HeartBeat
		wantErr bool
	}{
		{"", HeartBeat{}, false},
		{"0,0", HeartBeat{}, false},
		{"10000,5000", HeartBeat{Send: 10 * time.Second, Receive: 5 * time.Second}, false},
		{"100, 200", HeartBeat{Send: 100 * time.Millisecond, Receive: 200 * time.Millisecond}, false},
		{"10", HeartBeat{}, true},
		{"a,b", HeartBeat{}, true},
		{"-1,0", HeartBeat{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseHeartBeat(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidHeartBeat)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	assert.Equal(t, "10000,5000", HeartBeat{Send: 10 * time.Second, Receive: 5 * time.Second}.String())
}

func TestNegotiate(t *testing.T) {
	tests := []struct {
		name         string
		ours, theirs HeartBeat
		out, in      time.Duration
	}{
		{"both directions", HeartBeat{time.Second, 2 * time.Second}, HeartBeat{3 * time.Second, 500 * time.Millisecond}, time.Second, 3 * time.Second},
		{"server sends nothing", HeartBeat{time.Second, time.Second}, HeartBeat{0, time.Second}, time.Second, 0},
		{"we want nothing", HeartBeat{0, 0}, HeartBeat{time.Second, time.Second}, 0, 0},
		{"server slower", HeartBeat{time.Second, time.Second}, HeartBeat{5 * time.Second, 5 * time.Second}, 5 * time.Second, 5 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, in := Negotiate(tt.ours, tt.theirs)
			assert.Equal(t, tt.out, out)
			assert.Equal(t, tt.in, in)
		})
	}
}
