package pagination

import (
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultLimit = 25
	MaxLimit     = 100
)

// Params carries a keyset page request. Rows are ordered by
// (created_at DESC, id DESC) and Cursor names the last row already seen.
type Params struct {
	Limit  int
	Cursor string
}

type Cursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

func NormalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}

// LimitWithBuffer over-fetches one row so Paginate can tell whether a next page exists.
func LimitWithBuffer(limit int) int {
	return NormalizeLimit(limit) + 1
}

const cursorVersion = "v1"

var ErrInvalidCursor = errors.New("invalid cursor")

// EncodeCursor renders an opaque, URL-safe token for the keyset position.
func EncodeCursor(cursor Cursor) string {
	payload := strings.Join([]string{
		cursorVersion,
		strconv.FormatInt(cursor.CreatedAt.UTC().UnixNano(), 10),
		cursor.ID.String(),
	}, ".")
	return base64.RawURLEncoding.EncodeToString([]byte(payload))
}

// ParseCursor decodes a token from EncodeCursor. A blank value means the
// first page and yields nil. Tokens from the older padded "time|id" form are
// still accepted so links handed out before a deploy keep working.
func ParseCursor(value string) (*Cursor, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}

	if raw, err := base64.RawURLEncoding.DecodeString(value); err == nil {
		if c, ok := parseV1(string(raw)); ok {
			return c, nil
		}
	}
	if raw, err := base64.StdEncoding.DecodeString(value); err == nil {
		if c, ok := parseLegacy(string(raw)); ok {
			return c, nil
		}
	}
	return nil, ErrInvalidCursor
}

func parseV1(raw string) (*Cursor, bool) {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 || parts[0] != cursorVersion {
		return nil, false
	}
	nanos, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return nil, false
	}
	id, err := uuid.Parse(parts[2])
	if err != nil {
		return nil, false
	}
	return &Cursor{CreatedAt: time.Unix(0, nanos).UTC(), ID: id}, true
}

func parseLegacy(raw string) (*Cursor, bool) {
	stamp, rawID, found := strings.Cut(raw, "|")
	if !found {
		return nil, false
	}
	at, err := time.Parse(time.RFC3339Nano, stamp)
	if err != nil {
		return nil, false
	}
	id, err := uuid.Parse(rawID)
	if err != nil {
		return nil, false
	}
	return &Cursor{CreatedAt: at, ID: id}, true
}

// Page is one page of a cursor listing.
type Page[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"next_cursor,omitempty"`
}

// Paginate trims a buffered result (fetched with LimitWithBuffer) to limit and
// derives the cursor of the next page from the last kept row.
func Paginate[T any](rows []T, limit int, cursorOf func(T) Cursor) Page[T] {
	limit = NormalizeLimit(limit)
	page := Page[T]{Items: rows}
	if len(rows) > limit {
		page.Items = rows[:limit]
		page.NextCursor = EncodeCursor(cursorOf(rows[limit-1]))
	}
	if page.Items == nil {
		page.Items = []T{}
	}
	return page
}
