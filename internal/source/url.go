package source

import (
	"net/url"
	"regexp"
	"strings"
)

var videoIDRe = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// pathIDRe matches the path forms that carry the video ID in the path.
var pathIDRe = regexp.MustCompile(`^/(?:shorts|embed|live|v)/([A-Za-z0-9_-]{11})(?:[/?].*)?$`)

// NormalizeURL rewrites the YouTube URL variants (youtu.be, shorts, embed,
// music and mobile hosts) to https://www.youtube.com/watch?v=<id> and drops
// playlist and tracking parameters. Anything else is an UnsupportedInputError.
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", &UnsupportedInputError{Input: raw, Reason: "empty url"}
	}
	if videoIDRe.MatchString(raw) {
		return watchURL(raw), nil
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", &UnsupportedInputError{Input: raw, Reason: err.Error()}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", &UnsupportedInputError{Input: raw, Reason: "scheme must be http or https"}
	}

	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	var id string
	switch host {
	case "youtu.be":
		id = strings.Trim(u.Path, "/")
	case "youtube.com", "m.youtube.com", "music.youtube.com", "youtube-nocookie.com":
		if u.Path == "/watch" {
			id = u.Query().Get("v")
		} else if m := pathIDRe.FindStringSubmatch(u.Path); m != nil {
			id = m[1]
		}
	default:
		return "", &UnsupportedInputError{Input: raw, Reason: "only YouTube links are supported; upload the audio file instead"}
	}

	if !videoIDRe.MatchString(id) {
		return "", &UnsupportedInputError{Input: raw, Reason: "no video id in url"}
	}
	return watchURL(id), nil
}

func watchURL(id string) string {
	return "https://www.youtube.com/watch?v=" + id
}
