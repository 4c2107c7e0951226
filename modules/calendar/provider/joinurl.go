package provider

import "regexp"

var conferenceURLPattern = regexp.MustCompile(
	`https://(?:[\w-]+\.)*(?:zoom\.us|meet\.google\.com|teams\.microsoft\.com|teams\.live\.com|webex\.com|whereby\.com|gotomeeting\.com|chime\.aws)/[^\s<>"')\]]+`,
)

// findJoinURL returns the first conferencing link found in texts, in order.
func findJoinURL(texts ...string) string {
	for _, t := range texts {
		if t == "" {
			continue
		}
		if m := conferenceURLPattern.FindString(t); m != "" {
			return m
		}
	}
	return ""
}
