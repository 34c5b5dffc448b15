package nanotdf

import (
	"fmt"
	"strings"
)

// ResourceLocator represents a reference to an external resource.
// Used for the KAS location and for remote policies.
//
// Wire layout:
//
//	protocol (1 byte: bits 0-3 protocol, bits 4-7 identifier type)
//	body length (1 byte)
//	body (ASCII, 1-255 bytes)
//	identifier (0, 2, 8 or 32 bytes)
type ResourceLocator struct {
	// Protocol is the protocol enum (HTTP, HTTPS, etc.)
	Protocol ProtocolEnum

	// Body is the resource location without its scheme, e.g. "kas.example.com/kas".
	Body string

	// Identifier is an optional key identifier; its length selects the identifier type.
	Identifier []byte
}

// NewResourceLocator creates a resource locator from a protocol and body.
func NewResourceLocator(body string, protocol ProtocolEnum) ResourceLocator {
	return ResourceLocator{Protocol: protocol, Body: body}
}

// NewResourceLocatorWithID creates a resource locator with a key identifier.
func NewResourceLocatorWithID(body string, protocol ProtocolEnum, keyID []byte) ResourceLocator {
	return ResourceLocator{Protocol: protocol, Body: body, Identifier: keyID}
}

// ResourceLocatorFromURL builds a locator from an http or https URL.
func ResourceLocatorFromURL(rawURL string) (ResourceLocator, error) {
	var rl ResourceLocator
	switch {
	case strings.HasPrefix(rawURL, "https://"):
		rl = NewResourceLocator(strings.TrimPrefix(rawURL, "https://"), ProtocolHTTPS)
	case strings.HasPrefix(rawURL, "http://"):
		rl = NewResourceLocator(strings.TrimPrefix(rawURL, "http://"), ProtocolHTTP)
	default:
		return ResourceLocator{}, fmt.Errorf("%w: %q has no http or https scheme", ErrInvalidLocator, rawURL)
	}
	rl.Body = strings.TrimSuffix(rl.Body, "/")
	if err := rl.Validate(); err != nil {
		return ResourceLocator{}, err
	}
	return rl, nil
}

// IdentifierType derives the identifier type from the identifier length.
func (rl ResourceLocator) IdentifierType() IdentifierType {
	t, _ := identifierTypeForSize(len(rl.Identifier))
	return t
}

// Validate checks the locator can be serialized.
func (rl ResourceLocator) Validate() error {
	if len(rl.Body) == 0 || len(rl.Body) > MaxLocatorBodySize {
		return fmt.Errorf("%w: body length %d not in 1..%d", ErrInvalidLocator, len(rl.Body), MaxLocatorBodySize)
	}
	if rl.Protocol > ProtocolSharedResourceDirectory {
		return fmt.Errorf("%w: protocol 0x%02x", ErrInvalidLocator, uint8(rl.Protocol))
	}
	if _, ok := identifierTypeForSize(len(rl.Identifier)); !ok {
		return fmt.Errorf("%w: identifier length %d", ErrInvalidLocator, len(rl.Identifier))
	}
	return nil
}

// Length returns the serialized size in bytes.
func (rl ResourceLocator) Length() int {
	return 2 + len(rl.Body) + len(rl.Identifier)
}

// URL returns the full URL for the resource locator. Protocols other than
// http and https have no URL form.
func (rl ResourceLocator) URL() (string, error) {
	switch rl.Protocol {
	case ProtocolHTTP:
		return "http://" + rl.Body, nil
	case ProtocolHTTPS:
		return "https://" + rl.Body, nil
	default:
		return "", fmt.Errorf("%w: protocol 0x%02x has no URL form", ErrInvalidLocator, uint8(rl.Protocol))
	}
}

func (rl ResourceLocator) String() string {
	if u, err := rl.URL(); err == nil {
		return u
	}
	return rl.Body
}

// AppendBinary appends the wire encoding of the locator to b.
func (rl ResourceLocator) AppendBinary(b []byte) ([]byte, error) {
	if err := rl.Validate(); err != nil {
		return b, err
	}
	proto := setField(0, 0, locatorProtoWidth, byte(rl.Protocol))
	proto = setField(proto, locatorIDLow, locatorProtoWidth, byte(rl.IdentifierType()))
	b = append(b, proto, byte(len(rl.Body)))
	b = append(b, rl.Body...)
	return append(b, rl.Identifier...), nil
}

// MarshalBinary returns the wire encoding of the locator.
func (rl ResourceLocator) MarshalBinary() ([]byte, error) {
	return rl.AppendBinary(make([]byte, 0, rl.Length()))
}

// ParseResourceLocator decodes a locator from the start of buf and reports
// how many bytes it consumed.
func ParseResourceLocator(buf []byte) (ResourceLocator, int, error) {
	var rl ResourceLocator
	if len(buf) < 2 {
		return rl, 0, fmt.Errorf("%w: resource locator header", ErrTruncatedInput)
	}

	rl.Protocol = ProtocolEnum(field(buf[0], 0, locatorProtoWidth))
	idType := IdentifierType(field(buf[0], locatorIDLow, locatorProtoWidth))
	if idType > Identifier32Byte {
		return rl, 0, fmt.Errorf("%w: identifier type 0x%x", ErrInvalidLocator, uint8(idType))
	}

	bodyLen := int(buf[1])
	end := 2 + bodyLen + idType.Size()
	if len(buf) < end {
		return rl, 0, fmt.Errorf("%w: resource locator needs %d bytes, have %d", ErrTruncatedInput, end, len(buf))
	}

	rl.Body = string(buf[2 : 2+bodyLen])
	if idType != IdentifierNone {
		rl.Identifier = append([]byte(nil), buf[2+bodyLen:end]...)
	}
	return rl, end, nil
}
