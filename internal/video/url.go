package video

import "regexp"

// youtubeURL matches watch, embed, /v/ and short links. Only the start of
// the string is anchored, trailing query parameters are allowed.
var youtubeURL = regexp.MustCompile(
	`^(https?://)?(www\.)?(youtube|youtu|youtube-nocookie)\.(com|be)/` +
		`(watch\?v=|embed/|v/|.+\?v=)?([^&=%\?]{11})`)

// IsValidURL reports whether s starts with a YouTube video URL. Input is
// matched as given, so leading whitespace fails.
func IsValidURL(s string) bool {
	return youtubeURL.MatchString(s)
}

// VideoID returns the 11 character video id of a valid URL
func VideoID(s string) (string, bool) {
	m := youtubeURL.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	return m[len(m)-1], true
}

// WatchURL builds the canonical watch URL for a video id
func WatchURL(id string) string {
	return "https://www.youtube.com/watch?v=" + id
}
