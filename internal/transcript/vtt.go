package transcript

import (
	"html"
	"regexp"
	"strings"
)

var (
	vttTagRE      = regexp.MustCompile(`<[^>]+>`)
	vttCueIndexRE = regexp.MustCompile(`^\d+$`)
)

// CleanVTT converts a WebVTT caption file into plain text: header, timing and
// cue index lines are dropped, inline tags stripped, and the remaining lines
// joined with single spaces.
func CleanVTT(vtt string) string {
	lines := strings.Split(strings.ReplaceAll(vtt, "\r\n", "\n"), "\n")
	kept := make([]string, 0, len(lines))

	for _, line := range lines {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, "WEBVTT"),
			strings.HasPrefix(line, "Kind:"),
			strings.HasPrefix(line, "Language:"),
			strings.HasPrefix(line, "NOTE"),
			strings.HasPrefix(line, "STYLE"),
			strings.Contains(line, "-->"),
			vttCueIndexRE.MatchString(line):
			continue
		}

		text := strings.TrimSpace(html.UnescapeString(vttTagRE.ReplaceAllString(line, "")))
		if text != "" {
			kept = append(kept, text)
		}
	}

	return strings.Join(strings.Fields(strings.Join(kept, " ")), " ")
}
