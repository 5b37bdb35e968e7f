// Package extract implements the obfuscation-resistant invite code detection
// pipeline: text normalization followed by a fixed set of extraction
// strategies whose results are unioned. Everything here is a pure function of
// the input text so each stage can be tested in isolation.
package extract

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// markdownUnwraps collapses delim(content)delim to content. Double-character
// delimiters must run before their single-character counterparts.
var markdownUnwraps = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile(`\|\|([^|]+)\|\|`), "$1"},
	{regexp.MustCompile("`([^`]+)`"), "$1"},
	{regexp.MustCompile(`\*\*([^*]+)\*\*`), "$1"},
	{regexp.MustCompile(`\*([^*]+)\*`), "$1"},
	{regexp.MustCompile(`__([^_]+)__`), "$1"},
	{regexp.MustCompile(`_([^_]+)_`), "$1"},
	{regexp.MustCompile(`~~([^~]+)~~`), "$1"},
}

// removalInstruction matches phrases like "remove the X", "delete -", "take
// out the _", "without the #". The captured token is either a run of symbol
// characters or a single standalone alphanumeric; longer words are never
// treated as removal targets so prose like "remove the code" stays harmless.
// Symbol targets are stripped by Normalize; single letter/digit targets are
// only honored non-destructively by Candidates, because prose like "without a
// doubt" would otherwise delete that character out of a real code.
var removalInstruction = regexp.MustCompile(`(?i)(?:remove|delete|take\s+out|without)\s+(?:the\s+)?([^\s\w]+|\w\b)`)

// stripMarks decomposes, drops combining marks, and recomposes.
var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize canonicalizes raw message text so the extraction strategies see
// through common obfuscation tricks: invisible characters, markdown wrapping,
// stacked diacritics, explicit "remove this symbol" instructions, and
// homoglyph substitution. It is total (empty in, empty out) and idempotent.
// Letter/digit removal instructions are handled by Candidates, not here.
func Normalize(text string) string {
	if text == "" {
		return ""
	}

	s := strings.ToLower(text)
	s = stripInvisible(s)
	// Markdown unwrapping must precede removal-set stripping so instructions
	// hidden inside spoilers or code spans are still honored.
	for _, u := range markdownUnwraps {
		s = u.re.ReplaceAllString(s, u.repl)
	}
	if out, _, err := transform.String(stripMarks, s); err == nil {
		s = out
	}

	// Removal instructions are harvested from the original text: an attacker
	// may write the instruction in a form the normalizer would mangle. Only
	// symbol targets are stripped here; a symbol can never be part of a code,
	// so removing it everywhere is always safe.
	if removeSet := symbolRemovalSet(text); len(removeSet) > 0 {
		s = stripRunes(s, removeSet)
	}

	return mapHomoglyphs(s)
}

// stripInvisible removes zero-width, bidi-control, and other invisible code
// points used to break up codes without changing their rendering.
func stripInvisible(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 0x200B && r <= 0x200F:
			return -1
		case r >= 0x202A && r <= 0x202E:
			return -1
		case r >= 0x2060 && r <= 0x206F:
			return -1
		case r == 0xFEFF:
			return -1
		}
		return r
	}, s)
}

// symbolRemovalSet returns the removal-instruction targets that are symbol
// characters.
func symbolRemovalSet(text string) map[rune]struct{} { return removalSet(text, false) }

// alnumRemovalSet returns the single letter/digit removal targets. Stripping
// these from the whole message can destroy a real code, so Candidates applies
// them as an additional extraction pass rather than in place.
func alnumRemovalSet(text string) map[rune]struct{} { return removalSet(text, true) }

// removalSet scans text case-insensitively for removal-instruction phrases
// and returns the named characters, lowercased, keeping either the word-class
// or the symbol-class targets.
func removalSet(text string, wantAlnum bool) map[rune]struct{} {
	var set map[rune]struct{}
	for _, m := range removalInstruction.FindAllStringSubmatch(text, -1) {
		target := m[1]
		first, _ := utf8.DecodeRuneInString(target)
		isAlnum := first == '_' || unicode.IsLetter(first) || unicode.IsDigit(first)
		if isAlnum != wantAlnum {
			continue
		}
		if set == nil {
			set = make(map[rune]struct{})
		}
		for _, r := range target {
			set[unicode.ToLower(r)] = struct{}{}
		}
	}
	return set
}

// stripRunes removes every occurrence of the set's characters from s,
// matching case-insensitively.
func stripRunes(s string, set map[rune]struct{}) string {
	return strings.Map(func(r rune) rune {
		if _, ok := set[unicode.ToLower(r)]; ok {
			return -1
		}
		return r
	}, s)
}
