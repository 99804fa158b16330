// Package script holds the ordered list of shell commands produced by the
// generators and renders it as a POSIX shell script.
package script

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const Header = "#!/bin/sh\n"

// Line is one external invocation, or a settle pause when Pause is set.
type Line struct {
	Args []string
	// Redirect stdout and stderr to this path
	Output string
	// Redirect stderr only to this path
	Stderr     string
	Background bool
	Pause      time.Duration
}

func Command(args ...string) Line {
	return Line{Args: args}
}

// Raw wraps a line of shell text that must be written verbatim.
func Raw(text string) Line {
	return Line{Args: []string{text}}
}

func Sleep(d time.Duration) Line {
	return Line{Pause: d}
}

// Kill stops every running instance of name.
func Kill(name string) Line {
	return Command("pkill", name)
}

// Async runs the command in the background with its output sent to path.
func Async(path string, args ...string) Line {
	return Line{Args: args, Output: path, Background: true}
}

// IsPause reports whether the line only waits.
func (l Line) IsPause() bool {
	return l.Pause > 0 && len(l.Args) == 0
}

// String renders the shell text of the line.
func (l Line) String() string {
	if l.IsPause() {
		return "sleep " + strconv.FormatFloat(l.Pause.Seconds(), 'f', -1, 64)
	}

	var b strings.Builder
	b.WriteString(strings.Join(l.Args, " "))
	if l.Stderr != "" {
		b.WriteString(" 2> " + l.Stderr)
	}
	if l.Output != "" {
		b.WriteString(" > " + l.Output + " 2>&1")
	}
	if l.Background {
		b.WriteString(" &")
	}
	return b.String()
}

func (l Line) announce() string {
	if l.Background {
		return "echo " + Quote("Running (async) "+l.String())
	}
	return "echo " + Quote("Running "+l.String())
}

// Quote single-quotes s for the shell.
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// Script is an append-only list of lines.
type Script struct {
	lines []Line
}

func New() *Script {
	return &Script{}
}

func (s *Script) Append(lines ...Line) {
	s.lines = append(s.lines, lines...)
}

// Run appends a synchronous command.
func (s *Script) Run(args ...string) {
	s.Append(Command(args...))
}

// Sleep appends a settle pause. Non-positive durations are dropped.
func (s *Script) Sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	s.Append(Sleep(d))
}

func (s *Script) Lines() []Line {
	return s.lines
}

func (s *Script) Len() int {
	return len(s.lines)
}

// WriteTo writes the script body, one echo and command pair per line. The
// header is not included.
func (s *Script) WriteTo(w io.Writer) (int64, error) {
	var written int64
	for _, l := range s.lines {
		n, err := fmt.Fprintf(w, "%s\n%s\n", l.announce(), l.String())
		written += int64(n)
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

// Bytes renders the full script including the header.
func (s *Script) Bytes() []byte {
	var buf bytes.Buffer
	buf.WriteString(Header)
	// bytes.Buffer writes don't fail
	_, _ = s.WriteTo(&buf)
	return buf.Bytes()
}

// File is an output script opened with its header already written.
type File struct {
	f *os.File
}

// Create truncates path and writes the header.
func Create(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0755)
	if err != nil {
		return nil, errors.Wrapf(err, "Couldn't create %s", path)
	}

	if _, err := io.WriteString(f, Header); err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "Couldn't write %s", path)
	}

	return &File{f: f}, nil
}

func (f *File) Name() string {
	return f.f.Name()
}

// Write appends the body of s.
func (f *File) Write(s *Script) error {
	if _, err := s.WriteTo(f.f); err != nil {
		return errors.Wrapf(err, "Couldn't write %s", f.f.Name())
	}
	return nil
}

func (f *File) Close() error {
	return f.f.Close()
}

// WriteFile writes a complete script to path.
func WriteFile(path string, s *Script) error {
	f, err := Create(path)
	if err != nil {
		return err
	}

	if err := f.Write(s); err != nil {
		f.Close()
		return err
	}

	return f.Close()
}
