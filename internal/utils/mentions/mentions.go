// Package mentions resolves @username tokens in free text into tagged users.
package mentions

import (
	"encoding/json"
	"regexp"
	"strings"

	"gorm.io/datatypes"
)

var tokenRe = regexp.MustCompile(`(?:^|[^\w@])@([A-Za-z0-9_.]+)`)

// TaggedUser is one resolved mention.
type TaggedUser struct {
	Tag    string `json:"tag"`
	UserID string `json:"userId"`
}

// Parse returns the distinct usernames mentioned in text, in order of first
// appearance, without the leading @.
func Parse(text string) []string {
	var out []string
	seen := map[string]bool{}
	for _, m := range tokenRe.FindAllStringSubmatch(text, -1) {
		name := strings.TrimRight(m[1], ".")
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

// Lookup maps usernames to user ids; unknown names are simply absent.
type Lookup func(usernames []string) (map[string]string, error)

// Resolve tokenizes text and keeps the mentions lookup can resolve.
func Resolve(text string, lookup Lookup) ([]TaggedUser, error) {
	names := Parse(text)
	if len(names) == 0 {
		return []TaggedUser{}, nil
	}
	ids, err := lookup(names)
	if err != nil {
		return nil, err
	}
	tags := make([]TaggedUser, 0, len(names))
	for _, n := range names {
		if id, ok := ids[n]; ok {
			tags = append(tags, TaggedUser{Tag: "@" + n, UserID: id})
		}
	}
	return tags, nil
}

// JSON encodes tags for a datatypes.JSON column.
func JSON(tags []TaggedUser) datatypes.JSON {
	if tags == nil {
		tags = []TaggedUser{}
	}
	b, _ := json.Marshal(tags)
	return datatypes.JSON(b)
}

// FromJSON decodes a tagged-users column; malformed input yields no tags.
func FromJSON(raw datatypes.JSON) []TaggedUser {
	var tags []TaggedUser
	if len(raw) == 0 || json.Unmarshal(raw, &tags) != nil {
		return []TaggedUser{}
	}
	return tags
}

// UserIDs returns the ids of the tagged users.
func UserIDs(tags []TaggedUser) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		out = append(out, t.UserID)
	}
	return out
}
