// Package pagination implements opaque keyset cursors for the list
// endpoints.  A cursor pins the position after the last row of the
// previous page as (sort value, row id); fetching the next page becomes a
// range predicate instead of an OFFSET scan, so page cost is independent
// of depth.
package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
)

// ErrInvalidCursor is returned when a cursor token cannot be decoded.
// Malformed cursors are a client error; they never silently reset the
// listing to page one.
var ErrInvalidCursor = errors.New("invalid pagination cursor")

// Cursor is the decoded position of a keyset page boundary.  Value holds
// the last seen sort-field value rendered as a string and ID the unique
// tiebreaker of that row.  Sort names the field the cursor was minted
// under so a token cannot be replayed against a differently-sorted
// listing.  Null marks a boundary row whose sort value is SQL NULL; the
// predicate then resumes by position inside the NULL block instead of
// comparing against an empty string.
type Cursor struct {
	Value string `json:"v"`
	ID    uint64 `json:"id"`
	Sort  string `json:"s,omitempty"`
	Null  bool   `json:"n,omitempty"`
}

// Encode renders the cursor as an opaque URL-safe token.
func (c Cursor) Encode() string {
	raw, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(raw)
}

// DecodeCursor parses a token produced by Encode.  Any malformed input
// yields ErrInvalidCursor.
func DecodeCursor(token string) (Cursor, error) {
	if token == "" {
		return Cursor{}, ErrInvalidCursor
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, ErrInvalidCursor
	}
	var c Cursor
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&c); err != nil {
		return Cursor{}, ErrInvalidCursor
	}
	if c.ID == 0 {
		return Cursor{}, ErrInvalidCursor
	}
	if c.Null && c.Value != "" {
		return Cursor{}, ErrInvalidCursor
	}
	return c, nil
}
