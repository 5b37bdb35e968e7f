package extract

import "strings"

// homoglyphs maps common look-alike characters to their ASCII equivalents.
// Keys are the lowercase forms (normalization lowercases first). Roman
// numeral code points expand to multiple characters.
var homoglyphs = map[rune]string{
	// Cyrillic
	'а': "a", 'е': "e", 'о': "o", 'р': "p", 'с': "c", 'х': "x", 'у': "y", 'і': "i",
	// Greek
	'α': "a", 'β': "b", 'ε': "e", 'ν': "v", 'ο': "o", 'ρ': "p", 'τ': "t", 'υ': "y", 'ι': "i",
	// Fullwidth digits
	'０': "0", '１': "1", '２': "2", '３': "3", '４': "4",
	'５': "5", '６': "6", '７': "7", '８': "8", '９': "9",
	// Roman numerals
	'ⅰ': "i", 'ⅱ': "ii", 'ⅲ': "iii", 'ⅳ': "iv", 'ⅴ': "v",
	// Assorted l look-alikes
	'ℓ': "l", 'ｌ': "l",
}

// mapHomoglyphs replaces every known look-alike with its ASCII equivalent.
func mapHomoglyphs(s string) string {
	// Fast path: pure ASCII text has nothing to map.
	ascii := true
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			ascii = false
			break
		}
	}
	if ascii {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if repl, ok := homoglyphs[r]; ok {
			b.WriteString(repl)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
