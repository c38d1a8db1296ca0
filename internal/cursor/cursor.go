// Package cursor encodes forward-only pagination positions as opaque tokens.
//
// A token is the compact JSON {"t":"2025-01-02T03:04:05Z","i":42} in unpadded
// URL-safe base64. Tokens are not signed. They mark a position and carry no
// authority.
package cursor

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"time"
)

// TimeLayout is the only timestamp form a cursor may carry
const TimeLayout = "2006-01-02T15:04:05Z"

// ErrInvalidCursor is returned for any token the codec did not produce
var ErrInvalidCursor = errors.New("invalid_cursor")

var strictTime = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}Z$`)

// Cursor is the (clicked_at, id) position of the last event on a page
type Cursor struct {
	T string `json:"t"`
	I int64  `json:"i"`
}

// FromEvent builds the cursor that resumes after an event
func FromEvent(clickedAt time.Time, id int64) Cursor {
	return Cursor{T: clickedAt.UTC().Format(TimeLayout), I: id}
}

// Time parses T. Only valid on a decoded or FromEvent cursor.
func (c Cursor) Time() time.Time {
	t, _ := time.Parse(TimeLayout, c.T)
	return t
}

// Encode serializes the position
func Encode(t string, i int64) string {
	raw, _ := json.Marshal(Cursor{T: t, I: i})
	return base64.RawURLEncoding.EncodeToString(raw)
}

// String returns the opaque token for c
func (c Cursor) String() string {
	return Encode(c.T, c.I)
}

// Decode parses a token, rejecting anything malformed with ErrInvalidCursor
func Decode(s string) (Cursor, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Cursor{}, ErrInvalidCursor
	}

	// Accept stray padding so a token re-padded by a client still decodes.
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
	if err != nil {
		return Cursor{}, ErrInvalidCursor
	}

	var payload struct {
		T *string `json:"t"`
		I *int64  `json:"i"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil || payload.T == nil || payload.I == nil {
		return Cursor{}, ErrInvalidCursor
	}

	c := Cursor{T: *payload.T, I: *payload.I}
	if !strictTime.MatchString(c.T) || c.I <= 0 {
		return Cursor{}, ErrInvalidCursor
	}
	if _, err := time.Parse(TimeLayout, c.T); err != nil {
		return Cursor{}, ErrInvalidCursor
	}

	return c, nil
}
