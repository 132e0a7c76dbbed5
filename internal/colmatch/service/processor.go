package service

import (
	"regexp"
	"strings"

	"golang.org/x/text/width"
)

// Processor normalizes both sides before they reach the scorer.
// The zero Processor leaves strings untouched.
type Processor struct {
	FoldWidth  bool // полноширинные ＡＢＣ１２３ → ABC123
	Lowercase  bool
	StripPunct bool // пунктуация → пробел, пробелы схлопываются
	Unify      bool // ё→е, латинские двойники → кириллица; включается явно
}

// DefaultProcessor is what the API enables with "process": true.
var DefaultProcessor = Processor{FoldWidth: true, Lowercase: true, StripPunct: true}

var punct = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)

// Латиница→кириллица (визуальные двойники)
var lookalikes = map[rune]rune{
	'A': 'А', 'B': 'В', 'C': 'С', 'E': 'Е', 'H': 'Н', 'K': 'К', 'M': 'М', 'O': 'О', 'P': 'Р', 'T': 'Т', 'X': 'Х', 'Y': 'У',
	'a': 'а', 'c': 'с', 'e': 'е', 'o': 'о', 'p': 'р', 'x': 'х',
	'ё': 'е', 'Ё': 'Е',
}

// Apply runs the enabled steps in a fixed order: width, unify, case, punctuation.
func (p Processor) Apply(s string) string {
	if s == "" {
		return s
	}
	if p.FoldWidth {
		s = width.Fold.String(s)
	}
	if p.Unify {
		s = strings.Map(func(r rune) rune {
			if rr, ok := lookalikes[r]; ok {
				return rr
			}
			return r
		}, s)
	}
	if p.Lowercase {
		s = strings.ToLower(s)
	}
	if p.StripPunct {
		s = collapseSpaces(punct.ReplaceAllString(s, " "))
	}
	return s
}

// Схлопывание пробелов
func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
