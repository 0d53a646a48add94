package matcher

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"

	"github.com/codebuildervaibhav/podcast-summarizer/internal/types"
)

// Scoring weights
const (
	titleWeight       = 0.6
	channelWeight     = 0.1
	durationBonus     = 0.3
	durationTolerance = 0.05
	maxViewScore      = 0.1

	// MatchThreshold is the minimum score of a valid match
	MatchThreshold = 0.5
)

// Similarity returns the normalized Levenshtein similarity of a and b,
// ignoring case: (maxLen - distance) / maxLen. Two empty strings score 1.
func Similarity(a, b string) float64 {
	a, b = strings.ToLower(a), strings.ToLower(b)
	if a == b {
		return 1
	}
	maxLen := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > maxLen {
		maxLen = n
	}
	distance := levenshtein.ComputeDistance(a, b)
	return float64(maxLen-distance) / float64(maxLen)
}

// DurationScore awards the fixed bonus when the video is within 5% of the
// episode length. Unknown episode durations earn nothing.
func DurationScore(videoSeconds, episodeSeconds int) float64 {
	if episodeSeconds <= 0 {
		return 0
	}
	diff := math.Abs(float64(videoSeconds - episodeSeconds))
	if diff < durationTolerance*float64(episodeSeconds) {
		return durationBonus
	}
	return 0
}

// ViewScore is a small popularity bonus: 0.1*log10(views+1)/3, capped at 0.1
func ViewScore(views uint64) float64 {
	if views == 0 {
		return 0
	}
	return math.Min(maxViewScore, maxViewScore*math.Log10(float64(views)+1)/3)
}

// Score rates how likely video is the YouTube upload of episode
func Score(episode, video types.Metadata) float64 {
	return titleWeight*Similarity(episode.Title, video.Title) +
		channelWeight*Similarity(episode.ShowName, video.ShowName) +
		DurationScore(video.Duration, episode.Duration) +
		ViewScore(video.ViewCount)
}
