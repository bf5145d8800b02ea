//go:build !linux

package main

import "os"

func isTerminal(f *os.File) bool {
	st, err := f.Stat()
	return err == nil && st.Mode()&os.ModeCharDevice != 0
}

// ReadLine prints prompt and returns the next line without its newline.
func (e *lineEditor) ReadLine(prompt string) (string, error) {
	return e.readPlain(prompt)
}
