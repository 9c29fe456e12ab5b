package runtime

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/go-perl/plvm/values"
)

// IO is the handle table backing print/say/open/readline (spec §4.4's
// "I/O: line read, print, say, open, etc., operate on glob or
// file-handle scalars"). The engine owns one IO per independent
// execution (spec §5: "each execution owns ... shares only the global
// state"), wired to the host's real stdout/stderr/stdin by default so
// an embedding host can redirect them (tests substitute buffers).
type IO struct {
	Stdout io.Writer
	Stderr io.Writer
	Stdin  *bufio.Reader

	scanners map[*values.FileHandle]*bufio.Scanner
}

func NewIO(stdout, stderr io.Writer, stdin io.Reader) *IO {
	return &IO{Stdout: stdout, Stderr: stderr, Stdin: bufio.NewReader(stdin), scanners: make(map[*values.FileHandle]*bufio.Scanner)}
}

// writerFor resolves which io.Writer a PRINT/SAY targets: an explicit
// opened filehandle, or STDOUT/STDERR by glob name, defaulting to
// Stdout for a bareword `print` with no handle.
func (io_ *IO) writerFor(handle *values.Glob) io.Writer {
	if handle == nil {
		return io_.Stdout
	}
	if handle.IO != nil && handle.IO.Writer != nil {
		return handle.IO.Writer
	}
	switch handle.Name {
	case "STDERR":
		return io_.Stderr
	default:
		return io_.Stdout
	}
}

// Print writes args concatenated with no separator (the `$,` list
// separator is left as the empty-string default; a full `$,`/`$\`
// implementation belongs to the stdlib layer this core does not own).
func (io_ *IO) Print(handle *values.Glob, args []*values.Scalar) error {
	w := io_.writerFor(handle)
	for _, a := range args {
		if _, err := fmt.Fprint(w, a.ToStr()); err != nil {
			return err
		}
	}
	return nil
}

// Say is Print with a trailing newline.
func (io_ *IO) Say(handle *values.Glob, args []*values.Scalar) error {
	if err := io_.Print(handle, args); err != nil {
		return err
	}
	_, err := fmt.Fprintln(io_.writerFor(handle))
	return err
}

// Open attaches an *os.File to handle for the given Perl 2-arg-style
// mode ("<" read, ">" write/truncate, ">>" append).
func (io_ *IO) Open(handle *values.Glob, mode, path string) (bool, error) {
	var flag int
	switch mode {
	case "<", "":
		flag = os.O_RDONLY
	case ">":
		flag = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	case ">>":
		flag = os.O_WRONLY | os.O_CREATE | os.O_APPEND
	default:
		return false, fmt.Errorf("unsupported open mode %q", mode)
	}
	f, err := os.OpenFile(path, flag, 0o644)
	if err != nil {
		return false, nil // Perl convention: open() returns false, doesn't die
	}
	handle.IO = &values.FileHandle{Name: handle.Name, Reader: f, Writer: f, Closer: f}
	return true, nil
}

// Readline reads one line (without trailing newline) from handle, or
// from Stdin when handle is nil (the bare `<STDIN>` / `<>` form).
// Returns ("", false) at EOF.
func (io_ *IO) Readline(handle *values.Glob) (string, bool) {
	if handle == nil || handle.IO == nil || handle.IO.Reader == nil {
		line, err := io_.Stdin.ReadString('\n')
		if line == "" && err != nil {
			return "", false
		}
		return trimNewline(line), true
	}
	sc, ok := io_.scanners[handle.IO]
	if !ok {
		sc = bufio.NewScanner(handle.IO.Reader.(io.Reader))
		io_.scanners[handle.IO] = sc
	}
	if !sc.Scan() {
		handle.IO.EOF = true
		return "", false
	}
	return sc.Text(), true
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
