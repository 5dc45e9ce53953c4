// Package model defines data structures used throughout the application.
package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Product is the single record type kept in the catalogue.
//
// ID is supplied by the caller and is neither unique nor generated.
// Typed fields bind only to their exact lower-case member names. Every other
// member is kept in Extra and written back verbatim. Extra also keeps the
// original text of a typed member whose re-encoding would differ from the
// input (explicit zero values, null, number spellings such as 1.50 or
// integers beyond float64 precision), so a record survives a save/load cycle
// unchanged.
type Product struct {
	ID          int
	Name        string
	Description string
	Price       float64

	Extra map[string]json.RawMessage
}

// typedMembers are the JSON member names bound to typed fields, in output order.
var typedMembers = []string{"id", "name", "description", "price"}

// isTypedMember reports whether key names a typed field.
func isTypedMember(key string) bool {
	for _, name := range typedMembers {
		if key == name {
			return true
		}
	}
	return false
}

// field returns a pointer to the typed field bound to key.
func (p *Product) field(key string) any {
	switch key {
	case "id":
		return &p.ID
	case "name":
		return &p.Name
	case "description":
		return &p.Description
	case "price":
		return &p.Price
	}
	return nil
}

// omitted reports whether the typed field for key is left out when no
// original text is kept for it. The id is always written.
func (p *Product) omitted(key string) bool {
	switch key {
	case "name":
		return p.Name == ""
	case "description":
		return p.Description == ""
	case "price":
		return p.Price == 0
	}
	return false
}

// UnmarshalJSON decodes a product object.
// A JSON null leaves the product untouched.
func (p *Product) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		return nil
	}

	var out Product
	for _, key := range typedMembers {
		value, ok := raw[key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(value, out.field(key)); err != nil {
			return fmt.Errorf("product member %q: %w", key, err)
		}

		encoded, err := encodeValue(out.field(key))
		if err != nil {
			return err
		}
		if !out.omitted(key) && bytes.Equal(encoded, value) {
			delete(raw, key)
		}
	}

	if len(raw) > 0 {
		out.Extra = raw
	}
	*p = out

	return nil
}

// MarshalJSON encodes the typed members first, then the remaining Extra
// members in key order. Original text kept in Extra for a typed member is
// used while it still decodes to the field's value.
func (p Product) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	first := true
	writeMember := func(key string, value []byte) error {
		name, err := encodeValue(key)
		if err != nil {
			return err
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(value)
		return nil
	}

	for _, key := range typedMembers {
		encoded, err := encodeValue(p.field(key))
		if err != nil {
			return nil, err
		}

		if original, ok := p.Extra[key]; ok && p.matches(key, original, encoded) {
			if err := writeMember(key, original); err != nil {
				return nil, err
			}
			continue
		}
		if p.omitted(key) {
			continue
		}
		if err := writeMember(key, encoded); err != nil {
			return nil, err
		}
	}

	keys := make([]string, 0, len(p.Extra))
	for k := range p.Extra {
		if !isTypedMember(k) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	for _, k := range keys {
		if err := writeMember(k, p.Extra[k]); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')

	return buf.Bytes(), nil
}

// matches reports whether original decodes to the same value as the typed
// field for key, whose encoding is current.
func (p *Product) matches(key string, original json.RawMessage, current []byte) bool {
	var decoded Product
	if err := json.Unmarshal(original, decoded.field(key)); err != nil {
		return false
	}
	encoded, err := encodeValue(decoded.field(key))
	if err != nil {
		return false
	}
	return bytes.Equal(encoded, current)
}

// encodeValue marshals v without HTML escaping or a trailing newline.
func encodeValue(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// FindByID scans products in order and returns the first one whose ID matches.
func FindByID(products []Product, id int) (Product, bool) {
	for _, p := range products {
		if p.ID == id {
			return p, true
		}
	}
	return Product{}, false
}

// ErrorResponse represents an error response structure.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// ProductEvent is pushed to WebSocket subscribers when the catalogue changes.
type ProductEvent struct {
	Type      string    `json:"type"`
	Product   *Product  `json:"product,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Product event types.
const (
	EventTypeProductCreated = "product_created"
	EventTypeError          = "error"
)

// NewProductCreatedEvent creates an event announcing a newly stored product.
func NewProductCreatedEvent(p Product) ProductEvent {
	return ProductEvent{
		Type:      EventTypeProductCreated,
		Product:   &p,
		Timestamp: time.Now().UTC(),
	}
}
