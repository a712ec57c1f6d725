// Package output renders query hits to stdout. Highlighting reuses the
// matcher's span so the printed region is exactly what matched.
package output

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/sys/unix"

	"github.com/dl/indexa/internal/index"
	"github.com/dl/indexa/internal/matcher"
)

// Styles holds the lipgloss styles for hit rendering.
type Styles struct {
	Path  lipgloss.Style
	Match lipgloss.Style
	Dir   lipgloss.Style
}

// NewStyles creates the default color styles.
func NewStyles() Styles {
	return Styles{
		Path:  lipgloss.NewStyle(),
		Match: lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true), // bold red
		Dir:   lipgloss.NewStyle().Foreground(lipgloss.Color("4")),            // blue
	}
}

// NoStyles returns styles with no coloring.
func NoStyles() Styles {
	return Styles{
		Path:  lipgloss.NewStyle(),
		Match: lipgloss.NewStyle(),
		Dir:   lipgloss.NewStyle(),
	}
}

// IsTerminal checks if the given file descriptor is a terminal.
func IsTerminal(fd uintptr) bool {
	_, err := unix.IoctlGetTermios(int(fd), unix.TCGETS)
	return err == nil
}

// StdoutIsTerminal returns true if stdout is a terminal.
func StdoutIsTerminal() bool {
	return IsTerminal(os.Stdout.Fd())
}

// Writer writes rendered output to stdout using writev.
type Writer struct {
	fd int
}

// NewWriter creates a Writer over stdout.
func NewWriter() *Writer {
	return &Writer{fd: int(os.Stdout.Fd())}
}

// Write writes data fully.
func (w *Writer) Write(data []byte) error {
	for len(data) > 0 {
		n, err := unix.Writev(w.fd, [][]byte{data})
		if err != nil {
			return err
		}
		data = data[n:]
	}
	return nil
}

// Printer renders hits line by line with the match span highlighted.
type Printer struct {
	w      *Writer
	styles Styles
	color  bool
	buf    []byte
}

// NewPrinter creates a Printer; useColor selects styled or plain output.
func NewPrinter(useColor bool) *Printer {
	p := &Printer{w: NewWriter(), color: useColor}
	if useColor {
		p.styles = NewStyles()
	} else {
		p.styles = NoStyles()
	}
	return p
}

// PrintHit writes one matching entry as its absolute path, highlighting
// the matched span. For basename matches the span is shifted to its
// position within the full path.
func (p *Printer) PrintHit(db *index.Database, m *matcher.Matcher, id index.EntryID) error {
	path, err := db.PathOf(id)
	if err != nil {
		return err
	}

	if !p.color {
		p.buf = append(p.buf[:0], path...)
		p.buf = append(p.buf, '\n')
		return p.w.Write(p.buf)
	}

	start, end := -1, -1
	if m.MatchPath() {
		if s, e, ok := m.FindSpan(path); ok {
			start, end = s, e
		}
	} else {
		name := db.Name(id)
		if s, e, ok := m.FindSpan(name); ok {
			off := len(path) - len(name)
			start, end = off+s, off+e
		}
	}

	p.buf = p.buf[:0]
	if start < 0 {
		p.buf = append(p.buf, p.styles.Path.Render(path)...)
	} else {
		p.buf = append(p.buf, p.styles.Path.Render(path[:start])...)
		p.buf = append(p.buf, p.styles.Match.Render(path[start:end])...)
		p.buf = append(p.buf, p.styles.Path.Render(path[end:])...)
	}
	if db.Entry(id).IsDir {
		p.buf = append(p.buf, p.styles.Dir.Render("/")...)
	}
	p.buf = append(p.buf, '\n')
	return p.w.Write(p.buf)
}
