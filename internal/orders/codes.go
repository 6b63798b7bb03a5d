package orders

import (
	"regexp"
	"strings"
)

var codePattern = regexp.MustCompile(`(?i)C\d+`)

// ExtractCodes returns every product code in text, in order of appearance
// and uppercased. Repeats are kept: each one adds a unit.
func ExtractCodes(text string) []string {
	matches := codePattern.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil
	}
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = strings.ToUpper(m)
	}
	return out
}
