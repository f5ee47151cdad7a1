// Package bundle serializes values into a self-describing, versioned
// envelope and back. The envelope is a JSON object
//
//	{"format_version": <int>, "version": <string|null>, "data": ...}
//
// where format_version selects the payload substrate: 1 = JSON, 2 = CBOR,
// 3 = msgpack (binary payloads ride in "data" as base64). Decoding an
// envelope with a format_version this package does not implement fails
// with *FormatError; silent misinterpretation of stored data is never an
// option.
package bundle

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/unkn0wn-root/stagcache/value"
)

// Format selects the payload substrate of an envelope.
type Format int

const (
	FormatJSON    Format = 1
	FormatCBOR    Format = 2
	FormatMsgpack Format = 3
)

// FormatError reports an envelope whose format_version is not implemented
// here. It indicates corruption or data written by a newer codec and must
// not be treated as a cache miss.
type FormatError struct {
	FormatVersion int
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("bundle: unsupported format_version %d", e.FormatVersion)
}

// Codec encodes with one fixed format. The zero value is NOT ready to use;
// construct with New or use the package-level functions (JSON format).
type Codec struct {
	format Format
}

// New constructs a Codec for the given format.
func New(f Format) (Codec, error) {
	switch f {
	case FormatJSON, FormatCBOR, FormatMsgpack:
		return Codec{format: f}, nil
	}
	return Codec{}, fmt.Errorf("bundle: unknown format %d", int(f))
}

// MustNew is like New but panics on error. Handy for package-level
// variables in tests and examples.
func MustNew(f Format) Codec {
	c, err := New(f)
	if err != nil {
		panic(err)
	}
	return c
}

// Format returns the format this codec encodes with.
func (c Codec) Format() Format { return c.format }

var defaultCodec = Codec{format: FormatJSON}

// Encode serializes v with the default (JSON) codec and no entry version.
func Encode(v value.Value) ([]byte, error) { return defaultCodec.Encode(v) }

// EncodeEntry serializes v with the default codec, tagging the envelope
// with an entry version ("" means no version constraint).
func EncodeEntry(v value.Value, version string) ([]byte, error) {
	return defaultCodec.EncodeEntry(v, version)
}

// Decode deserializes an envelope produced by any supported format,
// discarding the entry version.
func Decode(b []byte) (value.Value, error) {
	v, _, err := DecodeEntry(b)
	return v, err
}

// DecodeEntry deserializes an envelope and returns the entry version it
// was tagged with ("" when it carried none).
func DecodeEntry(b []byte) (value.Value, string, error) {
	var env struct {
		FormatVersion int             `json:"format_version"`
		Version       *string         `json:"version"`
		Data          json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(b, &env); err != nil {
		return value.Null(), "", fmt.Errorf("bundle: invalid envelope: %w", err)
	}

	var tree any
	switch Format(env.FormatVersion) {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(env.Data))
		dec.UseNumber()
		if err := dec.Decode(&tree); err != nil {
			return value.Null(), "", fmt.Errorf("bundle: invalid payload: %w", err)
		}
	case FormatCBOR:
		var raw []byte
		if err := json.Unmarshal(env.Data, &raw); err != nil {
			return value.Null(), "", fmt.Errorf("bundle: invalid binary payload: %w", err)
		}
		t, err := decodeCBORTree(raw)
		if err != nil {
			return value.Null(), "", err
		}
		tree = t
	case FormatMsgpack:
		var raw []byte
		if err := json.Unmarshal(env.Data, &raw); err != nil {
			return value.Null(), "", fmt.Errorf("bundle: invalid binary payload: %w", err)
		}
		t, err := decodeMsgpackTree(raw)
		if err != nil {
			return value.Null(), "", err
		}
		tree = t
	default:
		return value.Null(), "", &FormatError{FormatVersion: env.FormatVersion}
	}

	v, err := fromTree(tree)
	if err != nil {
		return value.Null(), "", err
	}
	ver := ""
	if env.Version != nil {
		ver = *env.Version
	}
	return v, ver, nil
}

// Encode serializes v with no entry version.
func (c Codec) Encode(v value.Value) ([]byte, error) { return c.EncodeEntry(v, "") }

// EncodeEntry serializes v, tagging the envelope with an entry version.
func (c Codec) EncodeEntry(v value.Value, version string) ([]byte, error) {
	tree := toTree(v)

	var data []byte
	var err error
	switch c.format {
	case FormatJSON:
		data, err = json.Marshal(tree)
	case FormatCBOR:
		var raw []byte
		raw, err = encodeCBORTree(tree)
		if err == nil {
			data, err = json.Marshal(raw) // base64 inside the JSON envelope
		}
	case FormatMsgpack:
		var raw []byte
		raw, err = encodeMsgpackTree(tree)
		if err == nil {
			data, err = json.Marshal(raw)
		}
	default:
		err = fmt.Errorf("bundle: codec not initialized (use New)")
	}
	if err != nil {
		return nil, err
	}

	var ver *string
	if version != "" {
		ver = &version
	}
	return json.Marshal(struct {
		FormatVersion int             `json:"format_version"`
		Version       *string         `json:"version"`
		Data          json.RawMessage `json:"data"`
	}{int(c.format), ver, data})
}

// Decode deserializes an envelope. The envelope's own format_version is
// authoritative; a Codec can decode envelopes written by any supported
// format, not only its own.
func (c Codec) Decode(b []byte) (value.Value, error) { return Decode(b) }

// DecodeEntry is the entry-version-aware variant of Decode.
func (c Codec) DecodeEntry(b []byte) (value.Value, string, error) { return DecodeEntry(b) }
