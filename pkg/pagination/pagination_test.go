package pagination

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestCursorRoundTrip(t *testing.T) {
	want := Cursor{CreatedAt: time.Date(2026, 3, 1, 9, 30, 0, 123, time.UTC), ID: uuid.New()}
	got, err := ParseCursor(EncodeCursor(want))
	if err != nil {
		t.Fatalf("parse cursor: %v", err)
	}
	if !got.CreatedAt.Equal(want.CreatedAt) || got.ID != want.ID {
		t.Fatalf("cursor mismatch: %+v vs %+v", got, want)
	}
	if c, err := ParseCursor("  "); err != nil || c != nil {
		t.Fatalf("blank cursor should be nil, got %+v %v", c, err)
	}
	if _, err := ParseCursor("!!"); err == nil {
		t.Fatal("expected error for malformed cursor")
	}
}

func TestPaginateSetsNextCursorOnlyWhenMoreRows(t *testing.T) {
	type row struct{ id uuid.UUID }
	rows := []row{{uuid.New()}, {uuid.New()}, {uuid.New()}}
	cursorOf := func(r row) Cursor { return Cursor{ID: r.id} }

	page := Paginate(rows, 2, cursorOf)
	if len(page.Items) != 2 || page.NextCursor == "" {
		t.Fatalf("expected 2 items and a cursor, got %d %q", len(page.Items), page.NextCursor)
	}
	next, err := ParseCursor(page.NextCursor)
	if err != nil || next.ID != rows[1].id {
		t.Fatalf("cursor should point at the last kept row")
	}

	last := Paginate(rows[:1], 2, cursorOf)
	if last.NextCursor != "" {
		t.Fatalf("unexpected cursor on final page")
	}
	empty := Paginate[row](nil, 0, cursorOf)
	if empty.Items == nil {
		t.Fatal("items should never be nil")
	}
}

func TestEncodeCursorIsURLSafe(t *testing.T) {
	for i := 0; i < 50; i++ {
		token := EncodeCursor(Cursor{CreatedAt: time.Now().Add(time.Duration(i) * time.Hour), ID: uuid.New()})
		if strings.ContainsAny(token, "+/=") {
			t.Fatalf("cursor %q needs escaping in a query string", token)
		}
	}
}

func TestParseCursorAcceptsLegacyTokens(t *testing.T) {
	at := time.Date(2025, 11, 2, 8, 0, 0, 0, time.UTC)
	id := uuid.New()
	legacy := base64.StdEncoding.EncodeToString([]byte(at.Format(time.RFC3339Nano) + "|" + id.String()))

	got, err := ParseCursor(legacy)
	if err != nil {
		t.Fatalf("legacy cursor: %v", err)
	}
	if !got.CreatedAt.Equal(at) || got.ID != id {
		t.Fatalf("unexpected legacy cursor %+v", got)
	}
}

func TestParseCursorRejectsUnknownVersion(t *testing.T) {
	token := base64.RawURLEncoding.EncodeToString([]byte("v9.1700000000.b3f0c7d2-9d7c-4a51-8d8e-1f2a3b4c5d6e"))
	if _, err := ParseCursor(token); !errors.Is(err, ErrInvalidCursor) {
		t.Fatalf("expected ErrInvalidCursor, got %v", err)
	}
}
