package cars

import "strings"

// SplitTags turns "a, b ,c" into [a b c]. Blank entries are dropped and
// the result is never nil.
func SplitTags(raw string) []string {
	return CleanTags(strings.Split(raw, ","))
}

// CleanTags trims every tag and drops the blank ones.
func CleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
