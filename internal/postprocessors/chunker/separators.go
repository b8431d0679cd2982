package chunker

import (
	"regexp"
	"strings"
)

// separator is one level of the recursive split.
// keepEnd attaches the match to the preceding piece instead of the next one.
type separator struct {
	name    string
	re      *regexp.Regexp
	keepEnd bool
}

// section is a known tender heading and its canonical tag. line matches
// the heading in any case at the start of a line, after optional clause
// numbering; upper matches the upper-case form anywhere.
type section struct {
	tag   string
	line  *regexp.Regexp
	upper *regexp.Regexp
}

// headingLead is the optional numbering before a heading, e.g. "5.2 " or "IV. ".
const headingLead = `(?:(?:\d{1,2}\.)+\d{0,2}|[IVXLCDM]+[.)])?[ \t]*`

// headingVocabulary lists known tender headings in canonical form with
// their match patterns. Accents are optional in the patterns.
var headingVocabulary = []struct {
	tag     string
	pattern string
}{
	{"OBJETO DEL CONTRATO", `OBJETO\s+DEL\s+CONTRATO`},
	{"CONDICIONES GENERALES", `CONDICIONES\s+GENERALES`},
	{"CONDICIONES PARTICULARES", `CONDICIONES\s+PARTICULARES`},
	{"REQUISITOS TÉCNICOS", `REQUISITOS\s+T[ÉE]CNICOS`},
	{"ESPECIFICACIONES TÉCNICAS", `ESPECIFICACIONES\s+T[ÉE]CNICAS`},
	{"CONDICIONES ECONÓMICAS", `CONDICIONES\s+ECON[ÓO]MICAS`},
	{"GARANTÍAS", `GARANT[ÍI]AS`},
	{"PLAZOS", `PLAZOS`},
	{"CRONOGRAMA", `CRONOGRAMA`},
	{"FORMULARIO ÚNICO DE OFERTA", `FORMULARIO\s+[ÚU]NICO\s+DE\s+(?:LA\s+)?OFERTA`},
}

// buildSeparators returns the split levels in priority order.
func buildSeparators() []separator {
	vocab := make([]string, len(headingVocabulary))
	for i, h := range headingVocabulary {
		vocab[i] = h.pattern
	}

	return []separator{
		{name: "section", re: regexp.MustCompile(`(?m)^[ \t]*(?:SECCI[ÓO]N|CAP[ÍI]TULO)[ \t]+[IVXLCDM]+\b`)},
		{name: "clause", re: regexp.MustCompile(`(?m)^[ \t]*\d{1,2}\.(?:\d{1,2}\.?)*[ \t]`)},
		{name: "caps", re: regexp.MustCompile(`(?m)^[\p{Lu}\d][\p{Lu}\d \t,.;:()/-]{9,}$`)},
		{name: "heading", re: regexp.MustCompile(`(?mi)^[ \t]*(?:` + strings.Join(vocab, "|") + `)`)},
		{name: "paragraph", re: regexp.MustCompile(`\n\n`)},
		{name: "line", re: regexp.MustCompile(`\n`)},
		{name: "sentence", re: regexp.MustCompile(`\. `), keepEnd: true},
		{name: "word", re: regexp.MustCompile(` `), keepEnd: true},
	}
}

// buildSections compiles the tagging patterns. Lower-case mentions inside
// running prose, such as "los plazos", are not headings.
func buildSections() []section {
	sections := make([]section, len(headingVocabulary))
	for i, h := range headingVocabulary {
		sections[i] = section{
			tag:   h.tag,
			line:  regexp.MustCompile(`(?mi)^[ \t]*` + headingLead + `(?:` + h.pattern + `)`),
			upper: regexp.MustCompile(h.pattern),
		}
	}
	return sections
}

// splitKeep cuts s at every match of sep, keeping the separator text at
// the start of the following piece (or the end of the preceding piece when
// keepEnd is set). Empty pieces are dropped.
func splitKeep(s string, sep separator) []string {
	matches := sep.re.FindAllStringIndex(s, -1)
	pieces := make([]string, 0, len(matches)+1)
	prev := 0
	for _, m := range matches {
		cut := m[0]
		if sep.keepEnd {
			cut = m[1]
		}
		if cut > prev {
			pieces = append(pieces, s[prev:cut])
			prev = cut
		}
	}
	if prev < len(s) {
		pieces = append(pieces, s[prev:])
	}
	return pieces
}
