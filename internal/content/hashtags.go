package content

import (
	"regexp"
	"strings"
)

// Hashtags start a word: "#go" and "start #go" match, "c#" and "a#b" do not.
var hashtagPattern = regexp.MustCompile(`(?:^|\s)#([A-Za-z0-9_]+)`)

// ExtractHashtags returns the distinct lowercased hashtags in content, in
// first-seen order. Topic names are case-folded so #Go and #go collide.
func ExtractHashtags(content string) []string {
	matches := hashtagPattern.FindAllStringSubmatch(content, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(matches))
	tags := make([]string, 0, len(matches))
	for _, m := range matches {
		tag := strings.ToLower(m[1])
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}
	return tags
}
