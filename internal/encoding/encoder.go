// Package encoding turns raw pipe payloads into broker-friendly text.
// Encoders are tried in a fixed priority order; when none applies the raw
// bytes pass through unchanged.
package encoding

import (
	"bytes"
	"fmt"
	"unicode"
	"unicode/utf8"

	"voxl-mqtt-bridge/internal/logger"
)

// Encoder transforms a pipe payload. Matches gates the attempt by pipe name;
// a failed Encode falls through to the next encoder in the chain.
type Encoder interface {
	Name() string
	Matches(pipeName string) bool
	Encode(data []byte) ([]byte, error)
}

// Chain applies encoders in priority order with raw bytes as the final
// fallback. Encoder failures are never surfaced to the caller.
type Chain struct {
	encoders []Encoder
	log      *logger.Logger
}

// NewChain builds the standard chain: MAVLink to JSON, then printable text
// passthrough, then raw bytes.
func NewChain(log *logger.Logger) *Chain {
	return &Chain{
		encoders: []Encoder{
			NewMavlinkEncoder(),
			NewTextEncoder(),
		},
		log: log,
	}
}

// Encode runs the chain for the given pipe. It always returns a payload.
func (c *Chain) Encode(pipeName string, data []byte) []byte {
	for _, enc := range c.encoders {
		if !enc.Matches(pipeName) {
			continue
		}
		out, err := enc.Encode(data)
		if err != nil {
			c.log.Debug("encoder failed, falling through",
				"encoder", enc.Name(),
				"pipe", pipeName,
				"error", err)
			continue
		}
		return out
	}
	return data
}

// TextEncoder passes printable UTF-8 payloads through, stripping trailing
// NUL padding. Binary payloads fail and fall through to raw.
type TextEncoder struct{}

// NewTextEncoder returns the generic text passthrough encoder.
func NewTextEncoder() *TextEncoder {
	return &TextEncoder{}
}

func (e *TextEncoder) Name() string { return "text" }

// Matches always returns true; text is the generic fallback encoder.
func (e *TextEncoder) Matches(pipeName string) bool { return true }

func (e *TextEncoder) Encode(data []byte) ([]byte, error) {
	trimmed := bytes.TrimRight(data, "\x00")
	if !utf8.Valid(trimmed) {
		return nil, fmt.Errorf("payload is not valid UTF-8")
	}
	for _, r := range string(trimmed) {
		if !unicode.IsPrint(r) && !unicode.IsSpace(r) {
			return nil, fmt.Errorf("payload contains non-printable characters")
		}
	}
	return trimmed, nil
}
