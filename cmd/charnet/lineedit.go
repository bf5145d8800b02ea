package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// lineEditor reads prompt lines for interactive generation. On a terminal
// it switches to raw mode and supports cursor movement and history; any
// other input is read line by line.
type lineEditor struct {
	in      io.Reader
	out     io.Writer
	plain   *bufio.Reader
	history []string
}

func newLineEditor(in io.Reader, out io.Writer) *lineEditor {
	return &lineEditor{in: in, out: out}
}

func (e *lineEditor) readPlain(prompt string) (string, error) {
	if e.plain == nil {
		e.plain = bufio.NewReader(e.in)
	}
	_, _ = fmt.Fprint(e.out, prompt)
	s, err := e.plain.ReadString('\n')
	if err != nil {
		if err != io.EOF || s == "" {
			return "", err
		}
	}
	s = trimTrailingNewline(s)
	e.remember(s)
	return s, nil
}

func (e *lineEditor) remember(s string) {
	if strings.TrimSpace(s) != "" {
		e.history = append(e.history, s)
	}
}

func trimTrailingNewline(s string) string {
	s = strings.TrimSuffix(s, "\n")
	return strings.TrimSuffix(s, "\r")
}

// editState is the key handling state of one raw-mode line.
type editState struct {
	e        *lineEditor
	prompt   string
	line     []byte
	cursor   int
	esc      int
	escBuf   strings.Builder
	histPos  int
	browsing bool
	draft    string
}

func (e *lineEditor) newEditState(prompt string) *editState {
	return &editState{e: e, prompt: prompt, line: make([]byte, 0, 64), histPos: len(e.history)}
}

func (s *editState) redraw() {
	_, _ = fmt.Fprintf(s.e.out, "\r%s%s\x1b[K", s.prompt, s.line)
	if s.cursor < len(s.line) {
		_, _ = fmt.Fprintf(s.e.out, "\r%s%s", s.prompt, s.line[:s.cursor])
	}
}

// runeBefore and runeAfter return the byte width of the character on either
// side of the cursor so edits never split a UTF-8 sequence.
func (s *editState) runeBefore() int {
	_, n := utf8.DecodeLastRune(s.line[:s.cursor])
	return n
}

func (s *editState) runeAfter() int {
	_, n := utf8.DecodeRune(s.line[s.cursor:])
	return n
}

func isSpace(b byte) bool { return b == ' ' || b == '\t' }

func (s *editState) wordLeft() {
	for s.cursor > 0 && isSpace(s.line[s.cursor-1]) {
		s.cursor--
	}
	for s.cursor > 0 && !isSpace(s.line[s.cursor-1]) {
		s.cursor--
	}
	s.redraw()
}

func (s *editState) wordRight() {
	for s.cursor < len(s.line) && isSpace(s.line[s.cursor]) {
		s.cursor++
	}
	for s.cursor < len(s.line) && !isSpace(s.line[s.cursor]) {
		s.cursor++
	}
	s.redraw()
}

func (s *editState) deleteWordBack() {
	start := s.cursor
	for start > 0 && isSpace(s.line[start-1]) {
		start--
	}
	for start > 0 && !isSpace(s.line[start-1]) {
		start--
	}
	s.line = append(s.line[:start], s.line[s.cursor:]...)
	s.cursor = start
	s.redraw()
}

func (s *editState) recall(pos int) {
	s.histPos = pos
	if pos == len(s.e.history) {
		s.line = append(s.line[:0], s.draft...)
		s.browsing = false
	} else {
		s.line = append(s.line[:0], s.e.history[pos]...)
	}
	s.cursor = len(s.line)
	s.redraw()
}

func (s *editState) csi(seq string) {
	switch seq {
	case "A": // up
		if len(s.e.history) == 0 {
			return
		}
		if !s.browsing {
			s.draft = string(s.line)
			s.browsing = true
			s.histPos = len(s.e.history)
		}
		if s.histPos > 0 {
			s.recall(s.histPos - 1)
		}
	case "B": // down
		if s.browsing {
			s.recall(s.histPos + 1)
		}
	case "D":
		if s.cursor > 0 {
			s.cursor -= s.runeBefore()
			s.redraw()
		}
	case "C":
		if s.cursor < len(s.line) {
			s.cursor += s.runeAfter()
			s.redraw()
		}
	case "H":
		s.cursor = 0
		s.redraw()
	case "F":
		s.cursor = len(s.line)
		s.redraw()
	case "3~":
		if s.cursor < len(s.line) {
			s.line = append(s.line[:s.cursor], s.line[s.cursor+s.runeAfter():]...)
			s.redraw()
		}
	case "1;5D", "5D":
		s.wordLeft()
	case "1;5C", "5C":
		s.wordRight()
	}
}

// feed handles one input byte. It returns done once the line is complete;
// Ctrl+C and Ctrl+D on an empty line end input with io.EOF.
func (s *editState) feed(b byte) (line string, done bool, err error) {
	switch s.esc {
	case 1:
		s.esc = 0
		switch b {
		case '[':
			s.esc = 2
			s.escBuf.Reset()
		case 'b', 'B':
			s.wordLeft()
		case 'f', 'F':
			s.wordRight()
		case 127:
			s.deleteWordBack()
		}
		return "", false, nil
	case 2:
		s.escBuf.WriteByte(b)
		if (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z') || b == '~' {
			s.csi(s.escBuf.String())
			s.esc = 0
		}
		return "", false, nil
	}

	switch b {
	case 27: // ESC
		s.esc = 1
	case '\r', '\n':
		_, _ = fmt.Fprint(s.e.out, "\r\n")
		out := string(s.line)
		s.e.remember(out)
		return out, true, nil
	case 3: // Ctrl+C
		_, _ = fmt.Fprint(s.e.out, "^C\r\n")
		return "", true, io.EOF
	case 4: // Ctrl+D
		if len(s.line) == 0 {
			_, _ = fmt.Fprint(s.e.out, "\r\n")
			return "", true, io.EOF
		}
	case 127, 8: // backspace
		if s.cursor > 0 {
			start := s.cursor - s.runeBefore()
			s.line = append(s.line[:start], s.line[s.cursor:]...)
			s.cursor = start
			s.redraw()
		}
	case 1: // Ctrl+A
		s.cursor = 0
		s.redraw()
	case 5: // Ctrl+E
		s.cursor = len(s.line)
		s.redraw()
	case 23: // Ctrl+W
		s.deleteWordBack()
	default:
		if b >= 32 {
			s.line = append(s.line, 0)
			copy(s.line[s.cursor+1:], s.line[s.cursor:])
			s.line[s.cursor] = b
			s.cursor++
			s.redraw()
		}
	}
	return "", false, nil
}
