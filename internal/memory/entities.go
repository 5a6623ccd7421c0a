package memory

import "strings"

// extractEntities pulls capitalized, multi-character tokens out of a
// fact as a lightweight entity-linking heuristic: proper nouns and
// acronyms (file names, package names, component names) tend to be the
// useful cross-reference points for get_by_category-adjacent entity
// queries, without needing an NER model (out of scope per spec.md §1).
func extractEntities(fact string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, raw := range strings.Fields(fact) {
		tok := strings.Trim(raw, ".,;:!?()[]{}\"'")
		if len(tok) < 2 {
			continue
		}
		if !isUpperInitial(tok) {
			continue
		}
		if seen[tok] {
			continue
		}
		seen[tok] = true
		out = append(out, tok)
	}
	return out
}

func isUpperInitial(s string) bool {
	r := rune(s[0])
	return r >= 'A' && r <= 'Z'
}
