package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 250
)

var ErrInvalidPageToken = errors.New("invalid_page_token")

type Pagination struct {
	PageToken string `form:"page_token"`
	PageSize  int    `form:"page_size,default=50" validate:"gte=1,lte=250"`
}

type PageInfo struct {
	NextPageToken string `json:"next_page_token"`
	HasMore       bool   `json:"has_more"`
}

// Cursor is the keyset position of a row in a newest-first listing. Rows
// sharing a timestamp are ordered by id.
type Cursor struct {
	CreatedAt time.Time
	ID        snowflake.ID
}

type token struct {
	CreatedAt string `json:"created_at"`
	ID        string `json:"id"`
}

func Encode(c Cursor) string {
	b, err := json.Marshal(token{
		CreatedAt: c.CreatedAt.UTC().Format(time.RFC3339Nano),
		ID:        c.ID.String(),
	})
	if err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

// Decode parses a page token. An empty token means the first page and
// yields a nil cursor.
func Decode(raw string) (*Cursor, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	b, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		return nil, ErrInvalidPageToken
	}
	var t token
	if err := json.Unmarshal(b, &t); err != nil {
		return nil, ErrInvalidPageToken
	}
	createdAt, err := time.Parse(time.RFC3339Nano, t.CreatedAt)
	if err != nil {
		return nil, ErrInvalidPageToken
	}
	id, err := snowflake.ParseString(strings.TrimSpace(t.ID))
	if err != nil || id == 0 {
		return nil, ErrInvalidPageToken
	}
	return &Cursor{CreatedAt: createdAt, ID: id}, nil
}

// PageSize clamps a requested size into [1, MaxPageSize], using fallback
// when nothing was requested.
func PageSize(requested, fallback int) int {
	if requested <= 0 {
		requested = fallback
	}
	if requested <= 0 {
		requested = DefaultPageSize
	}
	if requested > MaxPageSize {
		requested = MaxPageSize
	}
	return requested
}

// Page trims a result fetched with limit+1 rows down to limit and reports
// the token of the last row kept when more rows follow.
func Page[T any](items []*T, limit int, cursorOf func(*T) Cursor) ([]*T, PageInfo) {
	if len(items) <= limit {
		return items, PageInfo{}
	}
	items = items[:limit]
	return items, PageInfo{
		HasMore:       true,
		NextPageToken: Encode(cursorOf(items[len(items)-1])),
	}
}
