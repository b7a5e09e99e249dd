package parse

import (
	"fmt"
	"strings"

	"github.com/phobologic/perlgraph/internal/lang"
	"github.com/phobologic/perlgraph/internal/model"
)

// maxOpenLookahead bounds how many non-blank lines may separate a
// definition header from its opening brace.
const maxOpenLookahead = 3

// Classified is the content of one block split into its three parts.
type Classified struct {
	Imports     []model.Import
	Definitions []model.Definition
	Residual    []RawLine
	Warnings    []model.Warning
}

// Classify splits the lines of a block into imports, definitions and
// residual statements with a single forward scan.
func Classify(l *lang.Language, b RawBlock, file string) Classified {
	var c Classified
	scope := ""
	if b.Kind == model.NamedScope {
		scope = b.Name
	}
	lines := b.Lines

	for i := 0; i < len(lines); {
		text := lines[i].Text
		if strings.TrimSpace(text) == "" {
			i++
			continue
		}

		if imp, ok := matchImport(l, text); ok {
			imp.Scope = scope
			imp.File = file
			imp.Line = lines[i].No
			c.Imports = append(c.Imports, imp)
			i++
			continue
		}

		if m := l.Definition.FindStringSubmatch(text); m != nil {
			if open, ok := findOpening(lines, i); ok {
				sp := scanBalanced(lines, i, open)
				def := buildDefinition(l, m[1], scope, file, lines, sp, open)
				if !sp.balanced {
					c.Warnings = append(c.Warnings, unbalancedWarning(m[1], file, lines, sp))
				}
				c.Definitions = append(c.Definitions, def)
				i = sp.end + 1
				continue
			}
		}

		c.Residual = append(c.Residual, lines[i])
		i++
	}

	return c
}

func unbalancedWarning(name, file string, lines []RawLine, sp span) model.Warning {
	msg := fmt.Sprintf("definition %q: braces never balance before end of block", name)
	if !sp.ranOff {
		msg = fmt.Sprintf("definition %q: unmatched closing brace on line %d", name, lines[sp.end].No)
	}
	return model.Warning{
		Kind:    model.UnbalancedDefinition,
		File:    file,
		Line:    lines[sp.start].No,
		Message: msg,
	}
}

func matchImport(l *lang.Language, text string) (model.Import, bool) {
	if m := l.Import.FindStringSubmatch(text); m != nil {
		return model.Import{Keyword: m[1], Module: strings.TrimSpace(m[2])}, true
	}
	if m := l.Require.FindStringSubmatch(text); m != nil {
		return model.Import{Keyword: "require", Module: m[1]}, true
	}
	return model.Import{}, false
}

// findOpening returns the index of the line holding the opening brace of the
// definition whose header is lines[i]. A statement terminator seen before any
// brace marks a forward declaration.
func findOpening(lines []RawLine, i int) (int, bool) {
	if firstCodeBrace(lines[i].Text) >= 0 {
		return i, true
	}
	if hasCodeTerminator(lines[i].Text) {
		return 0, false
	}
	seen := 0
	for j := i + 1; j < len(lines) && seen < maxOpenLookahead; j++ {
		text := lines[j].Text
		if strings.TrimSpace(text) == "" {
			continue
		}
		seen++
		if firstCodeBrace(text) >= 0 {
			return j, true
		}
		if hasCodeTerminator(text) {
			return 0, false
		}
	}
	return 0, false
}

func buildDefinition(l *lang.Language, name, scope, file string, lines []RawLine, sp span, open int) model.Definition {
	body := bodyText(lines, sp, open)

	return model.Definition{
		Name:       name,
		Scope:      scope,
		Parameters: extractParams(l, body),
		Body:       body,
		File:       file,
		StartLine:  lines[sp.start].No,
		EndLine:    lines[sp.end].No,
		Balanced:   sp.balanced,
	}
}

// bodyText returns the text between the opening code brace on lines[open]
// and the brace that closes it. When the span ran off the end of the block
// the body runs to its last line.
func bodyText(lines []RawLine, sp span, open int) string {
	first := firstCodeBrace(lines[open].Text)
	if first < 0 {
		return ""
	}

	var parts []string
	depth := 1
	for k := open; k <= sp.end; k++ {
		seg := lines[k].Text
		if k == open {
			seg = seg[first+1:]
		}
		cut := -1
		codeBytes(seg, func(i int, c byte) bool {
			switch c {
			case '{':
				depth++
			case '}':
				depth--
				if depth == 0 {
					cut = i
					return false
				}
			}
			return true
		})
		if cut >= 0 {
			parts = append(parts, seg[:cut])
			break
		}
		parts = append(parts, seg)
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

// extractParams is a best-effort guess at the parameter names of a body.
func extractParams(l *lang.Language, body string) []string {
	if m := l.ListParams.FindStringSubmatch(body); m != nil {
		var params []string
		for _, p := range strings.Split(m[1], ",") {
			if p = strings.TrimSpace(p); p != "" {
				params = append(params, p)
			}
		}
		return params
	}

	var params []string
	for _, line := range strings.Split(body, "\n") {
		t := strings.TrimSpace(line)
		if t == "" || strings.HasPrefix(t, "#") {
			continue
		}
		m := l.ShiftParam.FindStringSubmatch(t)
		if m == nil {
			break
		}
		params = append(params, m[1])
	}
	return params
}
