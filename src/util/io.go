package util

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// Writer buffers assembler output in a strings.Builder. Lines use the MMIXAL layout of a label column, an
// opcode column and an operand column.
type Writer struct {
	sb strings.Builder
}

// ---------------------
// ----- Constants -----
// ---------------------

// stdinTimeout is how long ReadSource waits for input on stdin.
const stdinTimeout = 500 * time.Millisecond

// ---------------------
// ----- Functions -----
// ---------------------

// Write writes a format string to the Writer's buffer.
func (w *Writer) Write(format string, args ...interface{}) {
	w.sb.WriteString(fmt.Sprintf(format, args...))
}

// Line writes one labelled instruction. Either label or operands may be empty.
func (w *Writer) Line(label, op, operands string) {
	if len(operands) > 0 {
		w.sb.WriteString(fmt.Sprintf("%s\t%s\t%s\n", label, op, operands))
	} else {
		w.sb.WriteString(fmt.Sprintf("%s\t%s\n", label, op))
	}
}

// Comment writes an MMIXAL comment line.
func (w *Writer) Comment(s string) {
	w.sb.WriteString("% " + s + "\n")
}

// String returns the buffered text.
func (w *Writer) String() string {
	return w.sb.String()
}

// ReadSource reads the syntax tree from file or stdin.
// If the Options structure holds a string for source the file will be opened and read.
// Else the function waits for a short period for input on stdin. If no input on stdin is
// provided the function returns an error.
func ReadSource(opt Options) ([]byte, error) {
	if len(opt.Src) > 0 {
		// Read from file.
		return os.ReadFile(opt.Src)
	}

	// Read stdin.
	c := make(chan []byte, 1)
	cerr := make(chan error, 1)

	// Concurrently wait for input on stdin.
	go func() {
		b, err := io.ReadAll(bufio.NewReader(os.Stdin))
		if err != nil {
			cerr <- err
			return
		}
		c <- b
	}()

	// Select between input from stdin or timer expiry.
	select {
	case <-time.After(stdinTimeout):
		return nil, errors.New("expected input from stdin, got none")
	case err := <-cerr:
		return nil, err
	case b := <-c:
		return b, nil
	}
}

// WriteOutput writes s to the output file named by opt, or to stdout if none is given.
func WriteOutput(opt Options, s string) error {
	if len(opt.Out) == 0 {
		_, err := io.WriteString(os.Stdout, s)
		return err
	}
	f, err := os.OpenFile(opt.Out, os.O_TRUNC|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("could not open output file: %w", err)
	}
	w := bufio.NewWriter(f)
	if _, err := w.WriteString(s); err != nil {
		_ = f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
