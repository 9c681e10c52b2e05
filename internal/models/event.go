package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ObjectType identifies what kind of entity an event is about. The set is
// closed: appends with anything else are rejected.
type ObjectType string

const (
	ObjectPost   ObjectType = "post"
	ObjectUser   ObjectType = "user"
	ObjectTheme  ObjectType = "theme"
	ObjectPlugin ObjectType = "plugin"
)

var (
	ErrInvalidObjectType = errors.New("invalid object type")
	ErrMissingObjectID   = errors.New("missing object id")
)

// ParseObjectType validates s against the closed set.
func ParseObjectType(s string) (ObjectType, error) {
	switch ObjectType(s) {
	case ObjectPost, ObjectUser, ObjectTheme, ObjectPlugin:
		return ObjectType(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidObjectType, s)
}

// Valid reports whether the object type is one of the closed set.
func (t ObjectType) Valid() bool {
	_, err := ParseObjectType(string(t))
	return err == nil
}

// Detail is one label/value pair in an event's details.
type Detail struct {
	Label string
	Value string
}

// Details is an order-preserving label → value mapping. Values are opaque
// display strings. It serializes to a JSON object whose keys keep insertion
// order, which a plain map cannot do.
type Details []Detail

// Get returns the value for label and whether it was present.
func (d Details) Get(label string) (string, bool) {
	for _, f := range d {
		if f.Label == label {
			return f.Value, true
		}
	}
	return "", false
}

// Set replaces the value for label in place, or appends it.
func (d *Details) Set(label, value string) {
	for i, f := range *d {
		if f.Label == label {
			(*d)[i].Value = value
			return
		}
	}
	*d = append(*d, Detail{Label: label, Value: value})
}

// MarshalJSON writes a JSON object with keys in insertion order.
func (d Details) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range d {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(f.Label)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(f.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object keeping key order.
func (d *Details) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return errors.New("details: expected JSON object")
	}
	out := Details{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return errors.New("details: expected string key")
		}
		var value string
		if err := dec.Decode(&value); err != nil {
			return err
		}
		out = append(out, Detail{Label: key, Value: value})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*d = out
	return nil
}

// String returns the serialized JSON form, used for the details column and
// for substring search.
func (d Details) String() string {
	data, err := d.MarshalJSON()
	if err != nil {
		return "{}"
	}
	return string(data)
}

// Event is one audit-log row: a single logged lifecycle transition.
// Rows are append-only except session events, whose details are extended
// in place while the session continues.
type Event struct {
	ID          int64      `json:"id"`
	DateTime    time.Time  `json:"date_time"`
	UserID      *int64     `json:"user_id,omitempty"`
	UserRole    string     `json:"user_role"`
	SourceIP    string     `json:"source_ip,omitempty"`
	EventType   string     `json:"event_type"`
	ObjectType  ObjectType `json:"object_type"`
	ObjectID    string     `json:"object_id"`
	ObjectLabel string     `json:"object_label"`
	Details     Details    `json:"details"`
}

// Validate enforces the append invariants: a known object type and a
// non-empty object id.
func (e *Event) Validate() error {
	if !e.ObjectType.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidObjectType, e.ObjectType)
	}
	if e.ObjectID == "" {
		return ErrMissingObjectID
	}
	return nil
}
