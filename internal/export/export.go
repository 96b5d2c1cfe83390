// Package export renders stored transcripts for download.
package export

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ciricc/court-transcriber/internal/model/transcript"
)

var ErrUnsupportedFormat = errors.New("unsupported export format")

type Format string

const (
	FormatText     Format = "txt"
	FormatMarkdown Format = "md"
	FormatPDF      Format = "pdf"
	FormatDOCX     Format = "docx"
)

// ContentType returns the MIME type served for f.
func (f Format) ContentType() string {
	switch f {
	case FormatMarkdown:
		return "text/markdown; charset=utf-8"
	default:
		return "text/plain; charset=utf-8"
	}
}

// Write renders t in the requested format. PDF and DOCX are not rendered.
func Write(w io.Writer, t *transcript.Transcript, f Format) error {
	switch f {
	case FormatText:
		return Text(w, t)
	case FormatMarkdown:
		return Markdown(w, t)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, f)
	}
}

// Text writes a plain-text transcript. The speaker label is printed only when it
// changes and every segment is followed by its [mm:ss] start time.
func Text(w io.Writer, t *transcript.Transcript) error {
	var b strings.Builder

	fmt.Fprintf(&b, "TRANSCRIPT ID: %s\n", t.ID)
	fmt.Fprintf(&b, "Date: %s\n", createdAt(t))
	if d := t.CaseDetails; d != nil {
		fmt.Fprintf(&b, "Case: %s\n", orUnknown(d.Title))
		fmt.Fprintf(&b, "Court: %s\n", orUnknown(d.Court))
		fmt.Fprintf(&b, "Judge: %s\n", orUnknown(d.Judge))
	}
	b.WriteString("\n" + strings.Repeat("=", 80) + "\n\n")

	current := ""
	for i, s := range t.Segments {
		if i == 0 || s.Speaker != current {
			current = s.Speaker
			fmt.Fprintf(&b, "\n\n%s: ", current)
		}
		fmt.Fprintf(&b, "%s [%s] ", s.Text, clock(s.StartTime))
	}
	b.WriteString("\n")

	_, err := io.WriteString(w, b.String())
	return err
}

// Markdown writes one line per segment with its time range and speaker.
func Markdown(w io.Writer, t *transcript.Transcript) error {
	var b strings.Builder

	if d := t.CaseDetails; d != nil && d.Title != "" {
		fmt.Fprintf(&b, "# %s\n\n", d.Title)
	} else {
		fmt.Fprintf(&b, "# Transcript %s\n\n", t.ID)
	}
	if d := t.CaseDetails; d != nil {
		fmt.Fprintf(&b, "- Court: %s\n", orUnknown(d.Court))
		fmt.Fprintf(&b, "- Judge: %s\n", orUnknown(d.Judge))
	}
	fmt.Fprintf(&b, "- Date: %s\n", createdAt(t))
	if t.Metadata.SourceFile != "" {
		fmt.Fprintf(&b, "- Source: `%s`\n", t.Metadata.SourceFile)
	}
	if t.Metadata.Model != "" {
		fmt.Fprintf(&b, "- Model: `%s`\n", t.Metadata.Model)
	}
	b.WriteString("\n---\n\n")

	for _, s := range t.Segments {
		fmt.Fprintf(&b, "[%s-%s] **%s**: %s\n\n", clock(s.StartTime), clock(s.EndTime), s.Speaker, strings.TrimSpace(s.Text))
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func createdAt(t *transcript.Transcript) string {
	if t.Metadata.CreatedAt.IsZero() {
		return "Unknown"
	}
	return t.Metadata.CreatedAt.Format(time.RFC3339)
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}

// clock formats seconds as mm:ss, minutes growing past 59 as needed.
func clock(sec float64) string {
	total := int(max(sec, 0))
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}
