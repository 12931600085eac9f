package classify

import (
	"strings"

	"github.com/matthock/snipsync/pkg/types"
)

// fragments is the ordered match list. Order matters for URLs containing more
// than one recognized fragment: email wins over chat, chat wins over jira.
var fragments = []struct {
	fragment string
	source   types.Source
}{
	{"mail.google", types.SourceEmail},
	{"outlook", types.SourceEmail},
	{"mail.yahoo", types.SourceEmail},
	{"proton.me", types.SourceEmail},
	{"slack.com", types.SourceChat},
	{"teams.microsoft", types.SourceChat},
	{"discord.com", types.SourceChat},
	{"web.telegram", types.SourceChat},
	{"atlassian.net", types.SourceJira},
	{"jira", types.SourceJira},
}

// Source maps a page URL to a capture source. Case-insensitive substring match,
// first fragment wins, web when the URL is empty or unrecognized.
func Source(url string) types.Source {
	if url == "" {
		return types.SourceWeb
	}
	lower := strings.ToLower(url)
	for _, f := range fragments {
		if strings.Contains(lower, f.fragment) {
			return f.source
		}
	}
	return types.SourceWeb
}
