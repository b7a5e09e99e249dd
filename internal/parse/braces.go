package parse

// span is the line range captured for one definition. balanced is true when
// the braces closed exactly. ranOff is true when the input ended before they
// closed; a span that is neither balanced nor ranOff closed more braces than
// it opened.
type span struct {
	start    int
	end      int
	balanced bool
	ranOff   bool
}

// scanBalanced captures the definition that starts at lines[start] and whose
// opening brace sits on lines[open]. The depth counter starts from the net
// brace delta of the opening line and the scan stops as soon as it drops to
// zero or below.
func scanBalanced(lines []RawLine, start, open int) span {
	depth := 0
	for end := open; end < len(lines); end++ {
		depth += netBraces(lines[end].Text)
		if depth <= 0 {
			return span{start: start, end: end, balanced: depth == 0}
		}
	}
	return span{start: start, end: len(lines) - 1, ranOff: true}
}

// codeBytes calls fn for every byte of line that is code: bytes inside
// single- or double-quoted strings, escaped bytes and anything after a
// comment marker are skipped. Strings spanning lines are not tracked. fn
// returning false stops the scan.
func codeBytes(line string, fn func(i int, c byte) bool) {
	var quote byte
	for i := 0; i < len(line); i++ {
		c := line[i]
		if c == '\\' {
			i++
			continue
		}
		if quote != 0 {
			if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"':
			quote = c
			continue
		case '#':
			// $#array is the last index of @array, not a comment.
			if i > 0 && line[i-1] == '$' {
				continue
			}
			return
		}
		if !fn(i, c) {
			return
		}
	}
}

// netBraces returns the number of code '{' minus the number of code '}' on
// a line.
func netBraces(line string) int {
	n := 0
	codeBytes(line, func(_ int, c byte) bool {
		switch c {
		case '{':
			n++
		case '}':
			n--
		}
		return true
	})
	return n
}

// firstCodeBrace returns the index of the first code '{' on a line, or -1.
func firstCodeBrace(line string) int {
	at := -1
	codeBytes(line, func(i int, c byte) bool {
		if c == '{' {
			at = i
			return false
		}
		return true
	})
	return at
}

// lastCodeBrace returns the index of the last code '}' on a line, or -1.
func lastCodeBrace(line string) int {
	at := -1
	codeBytes(line, func(i int, c byte) bool {
		if c == '}' {
			at = i
		}
		return true
	})
	return at
}

// hasCodeTerminator reports whether a line holds a code ';'.
func hasCodeTerminator(line string) bool {
	found := false
	codeBytes(line, func(_ int, c byte) bool {
		found = c == ';'
		return !found
	})
	return found
}
