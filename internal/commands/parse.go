package commands

import "strings"

// Invocation is a parsed command line.
type Invocation struct {
	Name string
	Args []string
}

// Parse extracts a command invocation from message content. It reports
// false when the content is blank, does not start with prefix, or holds
// nothing but whitespace after the prefix. Tokens are split on any run of
// whitespace.
func Parse(prefix, content string) (Invocation, bool) {
	if prefix == "" || strings.TrimSpace(content) == "" {
		return Invocation{}, false
	}
	rest, ok := strings.CutPrefix(content, prefix)
	if !ok {
		return Invocation{}, false
	}
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return Invocation{}, false
	}
	return Invocation{Name: fields[0], Args: fields[1:]}, true
}
