// Package docx converts the markdown produced by the localization pipeline
// into a Word (.docx) document.
package docx

import (
	"regexp"
	"strings"
)

// Kind is the type of a document paragraph.
type Kind int

const (
	Heading1 Kind = iota + 1
	Heading2
	Bullet
	Numbered
	Text
)

func (k Kind) String() string {
	switch k {
	case Heading1:
		return "heading1"
	case Heading2:
		return "heading2"
	case Bullet:
		return "bullet"
	case Numbered:
		return "numbered"
	case Text:
		return "text"
	}
	return "unknown"
}

// Style is the inline style of a run.
type Style int

const (
	Plain Style = iota
	Bold
	Italic
	Code
)

// Run is a span of uniformly styled text. A Break run carries no text and
// starts a new line inside the paragraph.
type Run struct {
	Text  string
	Style Style
	Break bool
}

// Paragraph is one block of the output document. Headings and list items
// use Text; Text paragraphs use Runs.
type Paragraph struct {
	Kind Kind
	Text string
	Runs []Run
}

var numberedItem = regexp.MustCompile(`^\d+\. `)

type parseState int

const (
	stateNone parseState = iota
	stateAccumulating
)

// machine is the parser state between lines. runs is only non-empty while
// accumulating a text paragraph.
type machine struct {
	state parseState
	runs  []Run
}

// Format parses markdown into paragraphs, one line at a time. Paragraph
// order follows line order. Consecutive text lines form one paragraph.
func Format(markdown string) []Paragraph {
	lines := strings.Split(strings.ReplaceAll(markdown, "\r\n", "\n"), "\n")

	var out []Paragraph
	m := machine{state: stateNone}
	for _, line := range lines {
		var emitted []Paragraph
		m, emitted = step(m, line)
		out = append(out, emitted...)
	}
	return append(out, m.flush()...)
}

// step consumes one line and returns the next state plus any completed
// paragraphs.
func step(m machine, line string) (machine, []Paragraph) {
	var block *Paragraph

	switch {
	case strings.TrimSpace(line) == "":
		return machine{state: stateNone}, m.flush()
	case strings.HasPrefix(line, "### "):
		block = &Paragraph{Kind: Heading1, Text: strings.TrimSpace(line[4:])}
	case strings.HasPrefix(line, "#### "):
		block = &Paragraph{Kind: Heading2, Text: strings.TrimSpace(line[5:])}
	case strings.HasPrefix(line, "- "):
		block = &Paragraph{Kind: Bullet, Text: strings.TrimSpace(line[2:])}
	case numberedItem.MatchString(line):
		block = &Paragraph{Kind: Numbered, Text: strings.TrimSpace(line[strings.Index(line, ".")+1:])}
	}

	if block != nil {
		return machine{state: stateNone}, append(m.flush(), *block)
	}

	runs := make([]Run, 0, len(m.runs)+4)
	runs = append(runs, m.runs...)
	if m.state == stateAccumulating {
		runs = append(runs, Run{Break: true})
	}
	runs = append(runs, ParseInline(line)...)
	return machine{state: stateAccumulating, runs: runs}, nil
}

func (m machine) flush() []Paragraph {
	if m.state != stateAccumulating || len(m.runs) == 0 {
		return nil
	}
	return []Paragraph{{Kind: Text, Runs: m.runs}}
}

// ParseInline splits a line into runs. At each position **bold**, then
// *italic*, then `code` is tried; a marker without a closer on the same
// line is plain text.
func ParseInline(line string) []Run {
	var runs []Run
	plain := func(s string) {
		if n := len(runs); n > 0 && runs[n-1].Style == Plain && !runs[n-1].Break {
			runs[n-1].Text += s
			return
		}
		runs = append(runs, Run{Text: s, Style: Plain})
	}
	styled := func(s string, style Style) {
		if s != "" {
			runs = append(runs, Run{Text: s, Style: style})
		}
	}

	rest := line
	for rest != "" {
		if strings.HasPrefix(rest, "**") {
			if end := strings.Index(rest[2:], "**"); end >= 0 {
				styled(rest[2:2+end], Bold)
				rest = rest[2+end+2:]
				continue
			}
		}
		if rest[0] == '*' || rest[0] == '`' {
			marker := rest[:1]
			if end := strings.Index(rest[1:], marker); end >= 0 {
				style := Italic
				if marker == "`" {
					style = Code
				}
				styled(rest[1:1+end], style)
				rest = rest[1+end+1:]
				continue
			}
		}

		next := strings.IndexAny(rest[1:], "*`")
		if next < 0 {
			plain(rest)
			break
		}
		plain(rest[:next+1])
		rest = rest[next+1:]
	}
	return runs
}
