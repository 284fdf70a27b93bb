// Package markup prepares transcript text for display: normalization and
// marker based paragraph highlighting. Every function here is pure and total.
package markup

import (
	"regexp"
	"strings"
	"unicode"
)

const (
	HighlightOpen  = `<div class="highlight">`
	HighlightClose = `</div>`
)

var paragraphBreak = regexp.MustCompile(`\n[ \t\r\f\v]*\n\s*`)

var runeReplacer = map[rune]rune{
	'‘': '\'', '’': '\'', '‚': '\'', '‛': '\'', '′': '\'',
	'“': '"', '”': '"', '„': '"', '‟': '"', '″': '"',
	'«': '"', '»': '"',
	'‐': '-', '‑': '-', '‒': '-', '–': '-', '—': '-',
	'―': '-', '−': '-', '﹘': '-', '﹣': '-', '－': '-',
}

// Normalize collapses whitespace inside paragraphs, keeps blank-line
// paragraph breaks (as a single "\n\n"), folds quote and dash variants to
// ASCII, drops non-printable characters and trims the result.
// Normalize(Normalize(s)) == Normalize(s).
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if repl, ok := runeReplacer[r]; ok {
			b.WriteRune(repl)
			continue
		}
		switch {
		case r == '\n':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		case unicode.IsPrint(r):
			b.WriteRune(r)
		}
	}

	var paragraphs []string
	var current []string
	flush := func() {
		if len(current) > 0 {
			paragraphs = append(paragraphs, strings.Join(current, " "))
			current = current[:0]
		}
	}
	for _, line := range strings.Split(b.String(), "\n") {
		words := strings.Fields(line)
		if len(words) == 0 {
			flush()
			continue
		}
		current = append(current, strings.Join(words, " "))
	}
	flush()

	return strings.Join(paragraphs, "\n\n")
}

// Paragraph is one blank-line delimited block of a transcript.
type Paragraph struct {
	Text        string
	Highlighted bool
}

// Paragraphs splits text on blank-line boundaries and flags every paragraph
// that contains at least one marker (normalized, case-insensitive substring
// match). Empty markers never match.
func Paragraphs(text string, markers []string) []Paragraph {
	needles := make([]string, 0, len(markers))
	for _, m := range markers {
		if n := strings.ToLower(Normalize(m)); n != "" {
			needles = append(needles, n)
		}
	}

	var out []Paragraph
	for _, p := range paragraphBreak.Split(text, -1) {
		out = append(out, Paragraph{Text: p, Highlighted: containsAny(p, needles)})
	}
	return out
}

// HighlightMarkers wraps every paragraph of text that mentions a marker in a
// highlight container. Paragraphs without a marker and the separators between
// paragraphs are returned byte-for-byte unchanged.
func HighlightMarkers(text string, markers []string) string {
	if len(markers) == 0 || text == "" {
		return text
	}

	seps := paragraphBreak.FindAllString(text, -1)
	paras := Paragraphs(text, markers)

	var b strings.Builder
	for i, p := range paras {
		if p.Highlighted {
			b.WriteString(HighlightOpen)
			b.WriteString(p.Text)
			b.WriteString(HighlightClose)
		} else {
			b.WriteString(p.Text)
		}
		if i < len(seps) {
			b.WriteString(seps[i])
		}
	}
	return b.String()
}

func containsAny(paragraph string, needles []string) bool {
	if len(needles) == 0 {
		return false
	}
	hay := strings.ToLower(Normalize(paragraph))
	for _, n := range needles {
		if strings.Contains(hay, n) {
			return true
		}
	}
	return false
}
