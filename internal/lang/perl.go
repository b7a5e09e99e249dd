package lang

import "regexp"

func init() {
	Languages["perl"] = &Language{
		Name:       "perl",
		Extensions: []string{".pl", ".pm", ".perl"},
		Namespace:  regexp.MustCompile(`^\s*package\s+([A-Za-z_]\w*(?:(?:::|')\w+)*)(?:\s+v?[\d._]+)?\s*;`),
		Import:     regexp.MustCompile(`^\s*(use|no)\s+([^;]+);?`),
		Require:    regexp.MustCompile(`^\s*require\s+([A-Za-z_][\w:]*)\s*;`),
		Definition: regexp.MustCompile(`^\s*sub\s+([A-Za-z_][\w:']*)`),
		ListParams: regexp.MustCompile(`my\s*\(([^)]+)\)\s*=\s*@_`),
		ShiftParam: regexp.MustCompile(`^\s*my\s+([$@%]\w+)\s*=\s*shift\b`),
		DocStart:   regexp.MustCompile(`^=[A-Za-z]\w*`),
		DocEnd:     regexp.MustCompile(`^=cut\b`),
		DataMarker: regexp.MustCompile(`^__(?:END|DATA)__\s*$`),
	}
}
