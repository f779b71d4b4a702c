package domain

import "strings"

// CategoryUnknown is the sentinel category for records whose testId does
// not match any known content category.
const CategoryUnknown = "unknown"

// categoryTokens are the content categories a testId prefix can resolve
// to. Order matters: longer tokens are listed before their prefixes.
var categoryTokens = []string{
	"sentences",
	"quotes",
	"words",
	"code",
	"numbers",
	"lyrics",
}

// InferCategory resolves a category from a testId prefix. It is a
// display-time convenience for records that predate the categorization
// scheme; stored data is never rewritten with the inferred value.
func InferCategory(testID string) string {
	for _, token := range categoryTokens {
		if strings.HasPrefix(testID, token) {
			return token
		}
	}
	return CategoryUnknown
}

// DisplayCategory returns the record's own category, or the inferred one
// when the record predates categorization.
func (r *Result) DisplayCategory() string {
	if r.Category != "" {
		return r.Category
	}
	return InferCategory(r.TestID)
}
