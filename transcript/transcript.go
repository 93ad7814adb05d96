// Package transcript persists the streamed output of a run as a single
// append-only, human-readable document. The document is organized into
// ordered sections, one per invocation path, followed by a comparison
// summary. Sections buffer incoming fragments and flush only complete lines,
// so the persisted layout is independent of how the backend chunks its
// output; a trailing partial line is flushed when the section closes.
package transcript

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"
)

// ErrPersistence marks failures of the durable output. They are fatal to a
// run: without a persisted transcript there is no artifact of record.
var ErrPersistence = errors.New("transcript persistence")

// Document is the append-only output artifact of one run. It is owned by a
// single writer for the run's duration: opened once, closed once, with at
// most one section open at a time.
type Document struct {
	f       *os.File
	w       *bufio.Writer
	path    string
	section *Section
	closed  bool
}

// Create opens (truncating) the document at path.
func Create(path string) (*Document, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("%w: create %s: %v", ErrPersistence, path, err)
	}
	return &Document{f: f, w: bufio.NewWriter(f), path: path}, nil
}

// Path returns the document's file path.
func (d *Document) Path() string { return d.path }

// WriteHeader writes the run-level preamble. Call once, before any section.
func (d *Document) WriteHeader(question, model string, generated time.Time) error {
	header := fmt.Sprintf(
		"================================================================\n"+
			" skillprobe run\n"+
			" generated: %s\n"+
			" model: %s\n"+
			" question: %s\n"+
			"================================================================\n",
		generated.UTC().Format(time.RFC3339), model, question)
	return d.write(header)
}

// NewSection opens a section for one path, writing its structural header.
// Only one section may be open at a time; the previous one must be closed
// first so sections never interleave.
func (d *Document) NewSection(label, question string, opened time.Time) (*Section, error) {
	if d.section != nil {
		return nil, fmt.Errorf("section %q still open", d.section.label)
	}
	header := fmt.Sprintf("\n--- %s @ %s ---\nquestion: %s\n\n",
		label, opened.UTC().Format(time.RFC3339), question)
	if err := d.write(header); err != nil {
		return nil, err
	}
	s := &Section{doc: d, label: label}
	d.section = s
	return s, nil
}

// WriteBlock appends a titled block of complete lines. Used for the final
// comparison summary, which is assembled after both sections are closed.
func (d *Document) WriteBlock(title string, lines []string) error {
	if d.section != nil {
		return fmt.Errorf("section %q still open", d.section.label)
	}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "\n--- %s ---\n", title)
	for _, line := range lines {
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	return d.write(buf.String())
}

// Close flushes and closes the document. Further writes fail.
func (d *Document) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	if err := d.w.Flush(); err != nil {
		return fmt.Errorf("%w: flush %s: %v", ErrPersistence, d.path, err)
	}
	if err := d.f.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %v", ErrPersistence, d.path, err)
	}
	return nil
}

// write appends raw text and flushes it through to the file, so partial
// documents survive a later crash.
func (d *Document) write(text string) error {
	if d.closed {
		return fmt.Errorf("%w: write to closed document %s", ErrPersistence, d.path)
	}
	if _, err := d.w.WriteString(text); err != nil {
		return fmt.Errorf("%w: write %s: %v", ErrPersistence, d.path, err)
	}
	if err := d.w.Flush(); err != nil {
		return fmt.Errorf("%w: flush %s: %v", ErrPersistence, d.path, err)
	}
	return nil
}

// Section accumulates one path's fragments into complete lines. Fragments
// are appended to a byte buffer; every complete line found is written
// through immediately, and a trailing partial line stays buffered until
// more fragments arrive or the section closes.
type Section struct {
	doc    *Document
	label  string
	buf    []byte
	chunks int
	length int
	closed bool
}

// Append consumes one fragment's text. Line-complete content is flushed to
// the document immediately.
func (s *Section) Append(text string) error {
	if s.closed {
		return fmt.Errorf("append to closed section %q", s.label)
	}
	s.chunks++
	s.length += len(text)
	s.buf = append(s.buf, text...)
	for {
		i := bytes.IndexByte(s.buf, '\n')
		if i < 0 {
			return nil
		}
		if err := s.doc.write(string(s.buf[:i+1])); err != nil {
			return err
		}
		s.buf = s.buf[i+1:]
	}
}

// Close flushes any trailing partial line as a final terminated line and
// writes the section footer. Idempotent.
func (s *Section) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if len(s.buf) > 0 {
		if err := s.doc.write(string(s.buf) + "\n"); err != nil {
			return err
		}
		s.buf = nil
	}
	footer := fmt.Sprintf("--- end %s: chunks=%d length=%d ---\n", s.label, s.chunks, s.length)
	if err := s.doc.write(footer); err != nil {
		return err
	}
	s.doc.section = nil
	return nil
}

// Chunks returns the number of fragments appended so far.
func (s *Section) Chunks() int { return s.chunks }

// Length returns the total appended byte length so far.
func (s *Section) Length() int { return s.length }
