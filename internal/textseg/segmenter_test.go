package textseg

import (
	"strings"
	"testing"
)

func TestSplitRejectsBadLimit(t *testing.T) {
	if _, err := Split("hello", 0); err == nil {
		t.Fatal("expected error for zero limit")
	}
	if _, err := Split("hello", -5); err == nil {
		t.Fatal("expected error for negative limit")
	}
}

func TestSplitEmptyBody(t *testing.T) {
	for _, body := range []string{"", "   ", "\n\t  \n"} {
		segs, err := Split(body, 100)
		if err != nil {
			t.Fatalf("unexpected error for %q: %v", body, err)
		}
		if len(segs) != 0 {
			t.Fatalf("expected no segments for %q, got %d", body, len(segs))
		}
	}
}

func TestSplitSingleSegment(t *testing.T) {
	segs, err := Split("Short sentence one. Short sentence two.", 200)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(segs) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(segs))
	}
	if segs[0].Text != "Short sentence one. Short sentence two." {
		t.Fatalf("unexpected text %q", segs[0].Text)
	}
	if segs[0].Index != 0 || segs[0].CharCount != len(segs[0].Text) {
		t.Fatalf("unexpected segment %+v", segs[0])
	}
}

func TestSplitPacksSentences(t *testing.T) {
	segs, err := Split("One. Two. Three.", 9)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := make([]string, len(segs))
	for i, s := range segs {
		got[i] = s.Text
	}
	want := []string{"One. Two.", "Three."}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("segment %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestSplitKeepsAbbreviationsIntact(t *testing.T) {
	segs, err := Split("Dr. Smith arrived. He sat down.", 18)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(segs) != 2 {
		t.Fatalf("expected 2 segments, got %d: %+v", len(segs), segs)
	}
	if segs[0].Text != "Dr. Smith arrived." {
		t.Fatalf("abbreviation split broke sentence: %q", segs[0].Text)
	}
	if segs[1].Text != "He sat down." {
		t.Fatalf("unexpected second segment %q", segs[1].Text)
	}
}

func TestSplitNeverExceedsLimit(t *testing.T) {
	bodies := []string{
		"The quick brown fox jumps over the lazy dog. " + strings.Repeat("Again and again. ", 40),
		strings.Repeat("x", 250),
		"Supercalifragilisticexpialidocious is a word. So is antidisestablishmentarianism, twice: antidisestablishmentarianism.",
		"Crève cœur. Déjà vu encore une fois, naïveté oblige. Ça recommence.",
	}
	for _, body := range bodies {
		for _, limit := range []int{1, 7, 20, 100} {
			segs, err := Split(body, limit)
			if err != nil {
				t.Fatalf("unexpected error (limit %d): %v", limit, err)
			}
			if len(segs) == 0 {
				t.Fatalf("expected segments for non-empty body (limit %d)", limit)
			}
			for _, s := range segs {
				if s.CharCount > limit {
					t.Fatalf("segment %d has %d chars, limit %d: %q", s.Index, s.CharCount, limit, s.Text)
				}
				if strings.TrimSpace(s.Text) == "" {
					t.Fatalf("segment %d is whitespace-only", s.Index)
				}
			}
		}
	}
}

func TestSplitPreservesContent(t *testing.T) {
	bodies := []string{
		"First sentence here. Second one!  Third,\nwith a newline? Fourth.",
		"   Leading and trailing   whitespace\t\teverywhere.   ",
		strings.Repeat("A fairly long sentence that will need packing. ", 30),
		strings.Repeat("y", 321),
	}
	strip := func(s string) string { return strings.ReplaceAll(s, " ", "") }
	for _, body := range bodies {
		for _, limit := range []int{5, 17, 64, 500} {
			segs, err := Split(body, limit)
			if err != nil {
				t.Fatalf("unexpected error (limit %d): %v", limit, err)
			}
			var joined strings.Builder
			for _, s := range segs {
				joined.WriteString(s.Text)
			}
			if strip(joined.String()) != strip(Normalize(body)) {
				t.Fatalf("content lost at limit %d:\n got %q\nwant %q", limit, joined.String(), Normalize(body))
			}
		}
	}
}

func TestSplitIndexesAreContiguous(t *testing.T) {
	segs, err := Split(strings.Repeat("Count me in. ", 25), 30)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, s := range segs {
		if s.Index != i {
			t.Fatalf("expected index %d, got %d", i, s.Index)
		}
	}
}

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"  a  b  ":        "a b",
		"a\n\nb\tc":       "a b c",
		"":                "",
		"single":          "single",
		"already normal.": "already normal.",
	}
	for in, want := range cases {
		if got := Normalize(in); got != want {
			t.Fatalf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}
