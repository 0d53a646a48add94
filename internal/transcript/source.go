// Package transcript resolves transcript text for a video or episode by racing
// several providers and keeping the first non-empty result.
package transcript

import (
	"context"
	"errors"
	"strings"

	"github.com/codebuildervaibhav/podcast-summarizer/internal/types"
)

// ErrUnavailable is recorded for a source that answered without a transcript
var ErrUnavailable = errors.New("no transcript available")

// Source produces transcript text for a platform ID. A nil result with a nil
// error means the source has no transcript for that ID.
type Source interface {
	Name() types.TranscriptSource
	GetTranscript(ctx context.Context, id string) (*types.TranscriptResult, error)
}

// Environments recognized by Order
const (
	EnvProduction  = "production"
	EnvDevelopment = "development"
)

// Order returns the source priority for an environment. Production leads with
// the aggregator service; everything else leads with direct scraping.
func Order(env string) []types.TranscriptSource {
	if strings.EqualFold(env, EnvProduction) {
		return []types.TranscriptSource{
			types.SourceAggregator,
			types.SourceOfficial,
			types.SourceScrape,
			types.SourceBrowser,
		}
	}
	return []types.TranscriptSource{
		types.SourceScrape,
		types.SourceBrowser,
		types.SourceAggregator,
		types.SourceOfficial,
	}
}

// ordered arranges sources by the environment's priority. Sources the order
// does not name are dropped.
func ordered(env string, sources []Source) []Source {
	byName := make(map[types.TranscriptSource]Source, len(sources))
	for _, src := range sources {
		if src != nil {
			byName[src.Name()] = src
		}
	}

	result := make([]Source, 0, len(byName))
	for _, name := range Order(env) {
		if src, ok := byName[name]; ok {
			result = append(result, src)
		}
	}
	return result
}

// isEnglish reports whether a caption language code is English
func isEnglish(lang string) bool {
	lang = strings.ToLower(lang)
	return lang == "en" || strings.HasPrefix(lang, "en-")
}

// preferredTrack returns the index of the auto-generated English track, else
// the first English track, else -1.
func preferredTrack(n int, language func(int) string, autoGenerated func(int) bool) int {
	fallback := -1
	for i := 0; i < n; i++ {
		if !isEnglish(language(i)) {
			continue
		}
		if autoGenerated(i) {
			return i
		}
		if fallback < 0 {
			fallback = i
		}
	}
	return fallback
}
