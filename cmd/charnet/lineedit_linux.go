//go:build linux

package main

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

func isTerminal(f *os.File) bool {
	_, err := unix.IoctlGetTermios(int(f.Fd()), unix.TCGETS)
	return err == nil
}

// ReadLine prints prompt and returns the next line without its newline.
func (e *lineEditor) ReadLine(prompt string) (string, error) {
	f, ok := e.in.(*os.File)
	if !ok || !isTerminal(f) {
		return e.readPlain(prompt)
	}

	fd := int(f.Fd())
	oldState, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return "", err
	}
	raw := *oldState
	raw.Lflag &^= unix.ICANON | unix.ECHO
	raw.Cc[unix.VMIN] = 1
	raw.Cc[unix.VTIME] = 0
	if err := unix.IoctlSetTermios(fd, unix.TCSETS, &raw); err != nil {
		return "", err
	}
	defer func() {
		_ = unix.IoctlSetTermios(fd, unix.TCSETS, oldState)
	}()

	_, _ = fmt.Fprint(e.out, prompt)
	st := e.newEditState(prompt)
	var buf [16]byte
	for {
		n, err := f.Read(buf[:])
		if err != nil {
			return "", err
		}
		for _, b := range buf[:n] {
			if line, done, err := st.feed(b); done {
				return line, err
			}
		}
	}
}
