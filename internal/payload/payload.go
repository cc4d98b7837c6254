// Package payload encodes message bodies for the configured content type.
//
// JSON is the default; CBOR is available for compact bodies. Lookup maps a
// content-type header value (parameters ignored) back to its codec so inbound
// messages decode with whatever the publisher used.
package payload

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

// Supported content types.
const (
	ContentTypeJSON = "application/json"
	ContentTypeCBOR = "application/cbor"
)

// ErrUnsupportedContentType is returned by Lookup for unknown content types.
var ErrUnsupportedContentType = errors.New("payload: unsupported content type")

// Codec marshals values to and from message bodies.
type Codec interface {
	ContentType() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// JSON is the encoding/json codec.
type JSON struct{}

// ContentType returns application/json.
func (JSON) ContentType() string { return ContentTypeJSON }

// Marshal encodes v as JSON.
func (JSON) Marshal(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("payload: encoding json: %w", err)
	}
	return data, nil
}

// Unmarshal decodes a JSON body into v, which must be a non-nil pointer.
func (JSON) Unmarshal(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("payload: decoding json: %w", err)
	}
	return nil
}

// CBOR is the fxamacker/cbor codec.
type CBOR struct{}

// ContentType returns application/cbor.
func (CBOR) ContentType() string { return ContentTypeCBOR }

// Marshal encodes v as CBOR, honouring cbor struct tags.
func (CBOR) Marshal(v any) ([]byte, error) {
	data, err := cbor.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("payload: encoding cbor: %w", err)
	}
	return data, nil
}

// Unmarshal decodes a CBOR body into v, which must be a non-nil pointer.
func (CBOR) Unmarshal(data []byte, v any) error {
	if err := cbor.Unmarshal(data, v); err != nil {
		return fmt.Errorf("payload: decoding cbor: %w", err)
	}
	return nil
}

// Lookup returns the codec for a content-type header value.
// An empty value selects JSON, matching brokers that omit the header.
func Lookup(contentType string) (Codec, error) {
	if strings.TrimSpace(contentType) == "" {
		return JSON{}, nil
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedContentType, contentType)
	}
	switch mediaType {
	case ContentTypeJSON, "text/json":
		return JSON{}, nil
	case ContentTypeCBOR:
		return CBOR{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedContentType, contentType)
	}
}
