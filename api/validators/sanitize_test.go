package validators

import (
	"testing"
	"unicode/utf8"
)

func TestSanitizeString(t *testing.T) {
	cases := []struct {
		name   string
		in     string
		maxLen int
		want   string
	}{
		{"trims", "  Oat milk \n", 0, "Oat milk"},
		{"drops control chars", "Brun\x00ost\x1b", 0, "Brunost"},
		{"keeps newlines inside", "line one\nline two", 0, "line one\nline two"},
		{"ascii cap", "abcdef", 3, "abc"},
		{"does not split runes", "blåbær", 3, "bl"},
		{"exact fit", "blå", 4, "blå"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := SanitizeString(tc.in, tc.maxLen)
			if got != tc.want {
				t.Fatalf("SanitizeString(%q, %d) = %q, want %q", tc.in, tc.maxLen, got, tc.want)
			}
			if !utf8.ValidString(got) {
				t.Fatalf("result is not valid utf-8: %q", got)
			}
		})
	}
}

func TestSanitizeOptional(t *testing.T) {
	if SanitizeOptional(nil, 10) != nil {
		t.Fatal("nil stays nil")
	}
	blank := "   "
	if SanitizeOptional(&blank, 10) != nil {
		t.Fatal("blank collapses to nil")
	}
	value := " gs://bucket/oat.png "
	got := SanitizeOptional(&value, 0)
	if got == nil || *got != "gs://bucket/oat.png" {
		t.Fatalf("unexpected %v", got)
	}
}
