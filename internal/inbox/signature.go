package inbox

import (
	"sort"
	"strings"

	"workinbox/internal/domain"
)

// Signature derives the deduplication key of a work unit. Case and runs of
// whitespace in category, id and title are ignored; the order of the action
// kinds is ignored.
func Signature(category domain.Category, sourceID, title string, kinds []domain.ActionKind) string {
	head := strings.Join(strings.Fields(strings.ToLower(string(category)+"|"+sourceID+"|"+title)), " ")
	sorted := make([]string, 0, len(kinds))
	for _, k := range kinds {
		sorted = append(sorted, string(k))
	}
	sort.Strings(sorted)
	return head + "#" + strings.Join(sorted, ",")
}

// SignatureOf returns the deduplication key of item.
func SignatureOf(item domain.WorkItem) string {
	return Signature(item.Category, item.SourceID, item.Title, item.ActionKinds())
}
