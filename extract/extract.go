package extract

import (
	"regexp"
	"strings"
)

// CodeLength is the exact length of a redeemable invite code.
const CodeLength = 12

var (
	alnumRun  = regexp.MustCompile(`[a-z0-9]+`)
	spacedRun = regexp.MustCompile(`[a-z0-9][a-z0-9\s]{10,39}`)
	nonAlnum  = regexp.MustCompile(`[^a-z0-9]+`)
)

// IsValidCode reports whether s is structurally eligible to be an invite
// code: exactly 12 characters of [a-z0-9] with at least one letter and at
// least one digit. The mixed-content requirement deliberately rejects
// all-letter prose fragments and all-digit IDs.
func IsValidCode(s string) bool {
	if len(s) != CodeLength {
		return false
	}
	letters, digits := 0, 0
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c >= 'a' && c <= 'z':
			letters++
		case c >= '0' && c <= '9':
			digits++
		default:
			return false
		}
	}
	return letters > 0 && digits > 0
}

// strategy is a pure candidate producer over normalized text. All strategies
// run unconditionally; the caller unions their output.
type strategy func(string, *candidateSet)

// strategies in fixed precedence order. The whole-text window scan is the
// broadest and most expensive catch-all and runs last.
var strategies = []strategy{
	extractDirect,
	extractSpacedGroups,
	extractLines,
	extractTokenMerge,
	extractWindowScan,
}

// Extract runs every strategy over already-normalized text and returns the
// deduplicated candidates in first-seen order. Returns nil when nothing
// matches.
func Extract(normalized string) []string {
	if normalized == "" {
		return nil
	}
	set := newCandidateSet()
	for _, s := range strategies {
		s(normalized, set)
	}
	return set.ordered
}

// Candidates runs the full detection pipeline over raw message text:
// normalization followed by every extraction strategy. Removal instructions
// naming a single letter or digit are honored non-destructively: the
// strategies additionally run over a copy with those characters stripped, and
// the results are unioned. A prose phrase like "without a doubt" therefore
// cannot delete a character out of a real code, while a genuine
// "remove the X" instruction still yields the intended candidate.
func Candidates(text string) []string {
	normalized := Normalize(text)
	if normalized == "" {
		return nil
	}
	set := newCandidateSet()
	for _, s := range strategies {
		s(normalized, set)
	}
	if rm := alnumRemovalSet(text); len(rm) > 0 {
		stripped := stripRunes(normalized, rm)
		for _, s := range strategies {
			s(stripped, set)
		}
	}
	return set.ordered
}

// candidateSet is an insertion-ordered string set so extraction order is
// deterministic within a run.
type candidateSet struct {
	seen    map[string]struct{}
	ordered []string
}

func newCandidateSet() *candidateSet { return &candidateSet{seen: make(map[string]struct{})} }

func (c *candidateSet) add(code string) {
	if !IsValidCode(code) {
		return
	}
	if _, ok := c.seen[code]; ok {
		return
	}
	c.seen[code] = struct{}{}
	c.ordered = append(c.ordered, code)
}

// extractDirect accepts maximal [a-z0-9] runs of exactly the code length.
func extractDirect(text string, set *candidateSet) {
	for _, run := range alnumRun.FindAllString(text, -1) {
		if len(run) == CodeLength {
			set.add(run)
		}
	}
}

// extractSpacedGroups collapses runs of alphanumerics and whitespace
// (11-40 characters long) and tests the compacted result. Defeats
// "a1b2 c3d4 e5f6" style spacing.
func extractSpacedGroups(text string, set *candidateSet) {
	for _, seg := range spacedRun.FindAllString(text, -1) {
		compact := strings.Join(strings.Fields(seg), "")
		set.add(compact)
	}
}

// extractLines strips all non-alphanumerics from each line and tests the
// remainder. Defeats per-line decoration like "a-1-b-2-c-3-d-4-e-5-f-6".
func extractLines(text string, set *candidateSet) {
	for _, line := range strings.Split(text, "\n") {
		set.add(nonAlnum.ReplaceAllString(line, ""))
	}
}

// extractTokenMerge splits on non-alphanumeric separators and greedily
// concatenates adjacent tokens until the code length is reached, testing an
// exact-length accumulation at each step.
func extractTokenMerge(text string, set *candidateSet) {
	tokens := nonAlnum.Split(text, -1)
	// Split can yield empty leading/trailing tokens.
	compact := tokens[:0]
	for _, t := range tokens {
		if t != "" {
			compact = append(compact, t)
		}
	}
	tokens = compact
	for i := 0; i < len(tokens); i++ {
		acc := tokens[i]
		if len(acc) == CodeLength {
			set.add(acc)
			continue
		}
		for j := i + 1; j < len(tokens) && len(acc) < CodeLength; j++ {
			acc += tokens[j]
			if len(acc) == CodeLength {
				set.add(acc)
			}
		}
	}
}

// extractWindowScan strips every non-alphanumeric from the whole text and
// slides a code-length window across the result. O(n) substring tests; the
// catch-all for obfuscation combinations the other strategies miss.
func extractWindowScan(text string, set *candidateSet) {
	stripped := nonAlnum.ReplaceAllString(text, "")
	for i := 0; i+CodeLength <= len(stripped); i++ {
		set.add(stripped[i : i+CodeLength])
	}
}
