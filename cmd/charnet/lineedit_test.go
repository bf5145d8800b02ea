package main

import (
	"errors"
	"io"
	"strings"
	"testing"
)

func feedAll(t *testing.T, st *editState, input string) (string, error) {
	t.Helper()
	for i := 0; i < len(input); i++ {
		if line, done, err := st.feed(input[i]); done {
			return line, err
		}
	}
	t.Fatalf("input %q did not complete a line", input)
	return "", nil
}

func TestEditStateKeys(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "abc\r", "abc"},
		{"insert after left arrow", "ab\x1b[Dc\r", "acb"},
		{"backspace", "abc\x7f\x7fz\n", "az"},
		{"home then insert", "bc\x01a\r", "abc"},
		{"delete key", "abc\x01\x1b[3~\r", "bc"},
		{"ctrl-w", "foo bar\x17\r", "foo "},
		{"alt-b then insert", "foo bar\x1bbx\r", "foo xbar"},
		{"ctrl-d ignored with text", "a\x04b\r", "ab"},
		{"backspace over multibyte", "aé\x7f\r", "a"},
		{"delete multibyte", "éb\x01\x1b[3~\r", "b"},
		{"arrows step over multibyte", "aéb\x1b[D\x1b[Dx\r", "axéb"},
		{"right arrow over multibyte", "éa\x01\x1b[Cx\r", "éxa"},
	}
	for _, tc := range cases {
		ed := newLineEditor(strings.NewReader(""), io.Discard)
		got, err := feedAll(t, ed.newEditState("> "), tc.input)
		if err != nil || got != tc.want {
			t.Fatalf("%s: got %q, %v; want %q", tc.name, got, err, tc.want)
		}
	}
}

func TestEditStateHistory(t *testing.T) {
	t.Parallel()
	ed := newLineEditor(strings.NewReader(""), io.Discard)
	for _, line := range []string{"first\r", "  \r", "second\r"} {
		if _, err := feedAll(t, ed.newEditState("> "), line); err != nil {
			t.Fatalf("feed: %v", err)
		}
	}
	if len(ed.history) != 2 {
		t.Fatalf("blank lines should not enter history: %q", ed.history)
	}

	got, _ := feedAll(t, ed.newEditState("> "), "\x1b[A\x1b[A\r")
	if got != "first" {
		t.Fatalf("two ups: got %q", got)
	}
	// Walking back down past the newest entry restores the draft.
	got, _ = feedAll(t, ed.newEditState("> "), "dr\x1b[A\x1b[B\r")
	if got != "dr" {
		t.Fatalf("draft: got %q", got)
	}
}

func TestEditStateEOF(t *testing.T) {
	t.Parallel()
	ed := newLineEditor(strings.NewReader(""), io.Discard)
	for _, input := range []string{"\x04", "abc\x03"} {
		if _, err := feedAll(t, ed.newEditState("> "), input); !errors.Is(err, io.EOF) {
			t.Fatalf("%q: expected io.EOF, got %v", input, err)
		}
	}
}

func TestReadPlain(t *testing.T) {
	t.Parallel()
	var out strings.Builder
	ed := newLineEditor(strings.NewReader("one\r\ntwo"), &out)
	for _, want := range []string{"one", "two"} {
		got, err := ed.ReadLine("> ")
		if err != nil || got != want {
			t.Fatalf("got %q, %v; want %q", got, err, want)
		}
	}
	if _, err := ed.ReadLine("> "); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
	if out.String() != "> > > " {
		t.Fatalf("unexpected prompts %q", out.String())
	}
}
