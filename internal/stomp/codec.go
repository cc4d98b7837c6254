package stomp

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

var (
	escaper   = strings.NewReplacer("\\", `\\`, "\n", `\n`, "\r", `\r`, ":", `\c`)
	unescapes = map[byte]byte{'\\': '\\', 'n': '\n', 'r': '\r', 'c': ':'}
)

// Encode serializes f to its wire representation.
//
// content-length is always derived from the body: it replaces any value the
// caller supplied, or is appended after the other headers. The heartbeat
// frame encodes to a single newline.
//
// Returns:
//   - []byte: Wire bytes ready for one WebSocket text message
//   - error: ErrUnknownCommand, ErrMissingHeader, ErrBodyNotAllowed or ErrInvalidHeader
func Encode(f Frame) ([]byte, error) {
	if f.IsHeartbeat() {
		return []byte{'\n'}, nil
	}

	rule, ok := commands[f.Command]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, f.Command)
	}
	for _, key := range rule.required {
		if _, ok := f.Headers.Get(key); !ok {
			return nil, fmt.Errorf("%w: %s requires %q", ErrMissingHeader, f.Command, key)
		}
	}
	if len(f.Body) > 0 && !rule.body {
		return nil, fmt.Errorf("%w: %s", ErrBodyNotAllowed, f.Command)
	}

	headers := f.Headers
	if len(f.Body) > 0 {
		headers = headers.With(HeaderContentLength, strconv.Itoa(len(f.Body)))
	}

	escape := f.Command.escaped()
	var buf bytes.Buffer
	buf.Grow(64 + len(f.Body))
	buf.WriteString(string(f.Command))
	buf.WriteByte('\n')
	for _, kv := range headers {
		if kv.Key == "" {
			return nil, fmt.Errorf("%w: empty key", ErrInvalidHeader)
		}
		if escape {
			buf.WriteString(escaper.Replace(kv.Key))
			buf.WriteByte(':')
			buf.WriteString(escaper.Replace(kv.Value))
		} else {
			if strings.ContainsAny(kv.Key, ":\r\n") || strings.ContainsAny(kv.Value, "\r\n") {
				return nil, fmt.Errorf("%w: %q cannot be sent unescaped in %s", ErrInvalidHeader, kv.Key, f.Command)
			}
			buf.WriteString(kv.Key)
			buf.WriteByte(':')
			buf.WriteString(kv.Value)
		}
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')
	buf.Write(f.Body)
	buf.WriteByte(0)

	return buf.Bytes(), nil
}

// Decode parses one frame from data.
//
// Leading end-of-line characters are skipped; input made only of them is a
// heartbeat and decodes to the zero Frame. Trailing end-of-line characters
// after the terminating NUL are ignored.
//
// Returns:
//   - Frame: The decoded frame (Body aliases no part of data)
//   - error: *DecodeError on malformed input
func Decode(data []byte) (Frame, error) {
	pos := skipEOL(data, 0)
	if pos == len(data) {
		return Frame{}, nil
	}

	line, next, ok := readLine(data, pos)
	if !ok {
		return Frame{}, decodeErrorf(pos, "unterminated command line")
	}
	cmd := Command(line)
	if !cmd.Known() {
		return Frame{}, decodeErrorf(pos, "unknown command %q", line)
	}
	pos = next

	f := Frame{Command: cmd}
	escaped := cmd.escaped()
	for {
		line, next, ok = readLine(data, pos)
		if !ok {
			return Frame{}, decodeErrorf(pos, "unterminated header block")
		}
		if line == "" {
			pos = next
			break
		}
		colon := strings.IndexByte(line, ':')
		if colon <= 0 {
			return Frame{}, decodeErrorf(pos, "header line without key")
		}
		key, value := line[:colon], line[colon+1:]
		if escaped {
			var err error
			if key, err = unescape(key); err != nil {
				return Frame{}, decodeErrorf(pos, "%v", err)
			}
			if value, err = unescape(value); err != nil {
				return Frame{}, decodeErrorf(pos+colon+1, "%v", err)
			}
		}
		f.Headers = append(f.Headers, Header{Key: key, Value: value})
		pos = next
	}

	var end int
	if cl, ok := f.Headers.Get(HeaderContentLength); ok {
		n, err := strconv.Atoi(cl)
		if err != nil || n < 0 {
			return Frame{}, decodeErrorf(pos, "invalid content-length %q", cl)
		}
		if n >= len(data)-pos {
			return Frame{}, decodeErrorf(len(data), "body shorter than content-length %d", n)
		}
		end = pos + n
		if data[end] != 0 {
			return Frame{}, decodeErrorf(end, "missing NUL after %d byte body", n)
		}
	} else {
		i := bytes.IndexByte(data[pos:], 0)
		if i < 0 {
			return Frame{}, decodeErrorf(len(data), "missing NUL terminator")
		}
		end = pos + i
	}

	if end > pos {
		f.Body = append([]byte(nil), data[pos:end]...)
	}
	if rest := skipEOL(data, end+1); rest != len(data) {
		return Frame{}, decodeErrorf(rest, "unexpected data after frame")
	}

	return f, nil
}

// IsHeartbeat reports whether data is a heartbeat message.
func IsHeartbeat(data []byte) bool {
	return skipEOL(data, 0) == len(data)
}

func skipEOL(data []byte, pos int) int {
	for pos < len(data) && (data[pos] == '\n' || data[pos] == '\r') {
		pos++
	}
	return pos
}

// readLine returns the line starting at pos without its EOL, and the offset
// just past the EOL. A carriage return before the newline is dropped.
func readLine(data []byte, pos int) (string, int, bool) {
	i := bytes.IndexByte(data[pos:], '\n')
	if i < 0 {
		return "", 0, false
	}
	line := data[pos : pos+i]
	line = bytes.TrimSuffix(line, []byte{'\r'})
	return string(line), pos + i + 1, true
}

func unescape(s string) (string, error) {
	if strings.IndexByte(s, '\\') < 0 {
		return s, nil
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' {
			b.WriteByte(c)
			continue
		}
		if i+1 == len(s) {
			return "", fmt.Errorf("dangling escape")
		}
		r, ok := unescapes[s[i+1]]
		if !ok {
			return "", fmt.Errorf("undefined escape \\%c", s[i+1])
		}
		b.WriteByte(r)
		i++
	}
	return b.String(), nil
}
