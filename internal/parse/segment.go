package parse

import (
	"strings"

	"github.com/phobologic/perlgraph/internal/lang"
	"github.com/phobologic/perlgraph/internal/model"
)

// RawLine is a source line with its 1-based line number.
type RawLine struct {
	No   int
	Text string
}

// RawBlock is a segment of a file before its content is classified.
type RawBlock struct {
	Kind  model.ScopeKind
	Name  string
	Line  int
	Lines []RawLine
}

// Segment splits the lines of a file into an ordered sequence of blocks: the
// implicit global scope followed by one block per namespace declaration.
//
// A declaration is recognized purely by its line shape, so one that sits
// inside a string literal or a comment still opens a block.
func Segment(l *lang.Language, lines []string) []RawBlock {
	var blocks []RawBlock
	cur := RawBlock{Kind: model.GlobalScope}
	inDoc := false

	closeBlock := func() {
		if cur.Kind == model.NamedScope || hasContent(cur.Lines) {
			blocks = append(blocks, cur)
		}
	}

	for i, text := range lines {
		no := i + 1
		if i == 0 && strings.HasPrefix(strings.TrimSpace(text), "#!") {
			continue
		}
		if inDoc {
			if l.DocEnd.MatchString(text) {
				inDoc = false
			}
			continue
		}
		if l.DocStart.MatchString(text) {
			if !l.DocEnd.MatchString(text) {
				inDoc = true
			}
			continue
		}
		if l.DataMarker.MatchString(text) {
			break
		}

		if loc := l.Namespace.FindStringSubmatchIndex(text); loc != nil {
			closeBlock()
			cur = RawBlock{
				Kind: model.NamedScope,
				Name: text[loc[2]:loc[3]],
				Line: no,
			}
			if rest := text[loc[1]:]; strings.TrimSpace(rest) != "" {
				cur.Lines = append(cur.Lines, RawLine{No: no, Text: rest})
			}
			continue
		}

		cur.Lines = append(cur.Lines, RawLine{No: no, Text: text})
	}
	closeBlock()

	return blocks
}

func hasContent(lines []RawLine) bool {
	for _, ln := range lines {
		if strings.TrimSpace(ln.Text) != "" {
			return true
		}
	}
	return false
}
