package mutations

import (
	"regexp"
	"strings"
)

var linkPattern = regexp.MustCompile(`\[\[([^\[\]]+)\]\]`)

// parseLinks returns the set of [[wiki-link]] titles in content, in order
// of first occurrence.
func parseLinks(content string) []string {
	seen := map[string]bool{}
	var out []string
	for _, match := range linkPattern.FindAllStringSubmatch(content, -1) {
		name := strings.TrimSpace(match[1])
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

// parseTitle extracts a markdown heading from the first line of content.
func parseTitle(content string) (string, bool) {
	line := content
	if i := strings.IndexByte(content, '\n'); i >= 0 {
		line = content[:i]
	}
	if !strings.HasPrefix(line, "# ") {
		return "", false
	}
	title := strings.TrimSpace(line[2:])
	return title, title != ""
}
