package chat

import "strings"

type Intent int

const (
	IntentGeneric Intent = iota
	IntentInsert
	IntentDelete
	IntentUpdate
)

var (
	insertKeywords = []string{"insert", "add", "create", "new record", "new row", "save", "store"}
	deleteKeywords = []string{"delete", "remove", "drop"}
	updateKeywords = []string{"update", "modify", "change", "set"}
)

// ClassifyIntent routes a query to a mutation handler by keyword. Insertion
// wins over deletion, deletion over update; everything else is generic.
func ClassifyIntent(query string) Intent {
	lower := strings.ToLower(query)
	if containsAny(lower, insertKeywords) {
		return IntentInsert
	}
	if containsAny(lower, deleteKeywords) {
		return IntentDelete
	}
	if containsAny(lower, updateKeywords) {
		return IntentUpdate
	}
	return IntentGeneric
}

func containsAny(s string, keywords []string) bool {
	for _, keyword := range keywords {
		if strings.Contains(s, keyword) {
			return true
		}
	}
	return false
}
