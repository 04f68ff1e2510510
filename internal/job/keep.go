package job

import (
	"encoding/json"
	"regexp"
	"strings"
)

var hexID = regexp.MustCompile(`^[0-9a-f]{6}$`)

// ParseKeepIDs extracts the ids listed under "keep" in the JSON object the
// reply ends with. Ids may carry a leading '#'; anything that is not six
// hex digits is dropped. Unparsable replies yield no ids.
func ParseKeepIDs(reply string) []string {
	end := strings.LastIndex(reply, "}")
	if end < 0 {
		return nil
	}
	for start := strings.Index(reply, "{"); start >= 0 && start < end; {
		var doc struct {
			Keep []any `json:"keep"`
		}
		if err := json.Unmarshal([]byte(reply[start:end+1]), &doc); err == nil {
			return validIDs(doc.Keep)
		}
		next := strings.Index(reply[start+1:], "{")
		if next < 0 {
			break
		}
		start += next + 1
	}
	return nil
}

func validIDs(raw []any) []string {
	var ids []string
	seen := make(map[string]struct{})
	for _, v := range raw {
		s, ok := v.(string)
		if !ok {
			continue
		}
		id := strings.ToLower(strings.TrimLeft(strings.TrimSpace(s), "#"))
		if !hexID.MatchString(id) {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}
