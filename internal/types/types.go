package types

import "time"

// Platform identifies where a submitted URL is hosted
type Platform string

// Supported platforms
const (
	PlatformYouTube Platform = "youtube"
	PlatformSpotify Platform = "spotify"
)

// TranscriptSource identifies the provider that produced a transcript
type TranscriptSource string

// Transcript source constants
const (
	SourceAggregator TranscriptSource = "supadata"
	SourceScrape     TranscriptSource = "youtube_scrape"
	SourceBrowser    TranscriptSource = "youtube_browser"
	SourceOfficial   TranscriptSource = "youtube_api"
	SourceSpotify    TranscriptSource = "spotify"
)

// StatusEntry is one row of a summary's audit trail
type StatusEntry struct {
	Status    Status    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message,omitempty"`
}

// Summary is the persisted state of one summarization request
type Summary struct {
	ID            string        `json:"id"`
	PodcastID     string        `json:"podcast_id"`
	UserID        string        `json:"user_id,omitempty"`
	Status        Status        `json:"status"`
	SummaryText   string        `json:"summary_text"`
	ErrorMessage  string        `json:"error_message,omitempty"`
	StatusHistory []StatusEntry `json:"status_history"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
	CompletedAt   *time.Time    `json:"completed_at,omitempty"`
	FailedAt      *time.Time    `json:"failed_at,omitempty"`
}

// Podcast is an episode or video resolved from a submitted URL
type Podcast struct {
	ID            string    `json:"id"`
	URL           string    `json:"url"`
	Platform      Platform  `json:"platform"`
	YouTubeURL    string    `json:"youtube_url,omitempty"`
	Title         string    `json:"title"`
	ShowName      string    `json:"show_name"`
	Transcript    string    `json:"transcript,omitempty"`
	HasTranscript bool      `json:"has_transcript"`
	ThumbnailURL  string    `json:"thumbnail_url"`
	Duration      int       `json:"duration"`
	CreatedAt     time.Time `json:"created_at"`
}

// PodcastUpdate carries the mutable podcast fields; nil fields are left untouched
type PodcastUpdate struct {
	YouTubeURL    *string
	Transcript    *string
	HasTranscript *bool
}

// StatusChange is a conditional status write: it only applies while the
// summary is still in From.
type StatusChange struct {
	From    Status
	To      Status
	Message string
}

// SummaryChunk carries the accumulated summary text after a streamed chunk.
// Status is the status the summary must be in for the write to apply.
type SummaryChunk struct {
	Text   string
	Status Status
}

// Metadata describes a YouTube video or Spotify episode
type Metadata struct {
	ID           string   `json:"id"`
	Platform     Platform `json:"platform"`
	Title        string   `json:"title"`
	ShowName     string   `json:"show_name"`
	Duration     int      `json:"duration"`
	ThumbnailURL string   `json:"thumbnail_url"`
	ViewCount    uint64   `json:"view_count,omitempty"`
	Description  string   `json:"description,omitempty"`
}

// TranscriptResult is the output of a transcript source
type TranscriptResult struct {
	Text      string
	Available bool
	Source    TranscriptSource
}

// MatchCandidate is a scored YouTube search result
type MatchCandidate struct {
	Video Metadata
	Score float64
	Query string
}

// FailedSearch records a Spotify episode for which no YouTube match was found
type FailedSearch struct {
	ID               string    `json:"id"`
	SpotifyEpisodeID string    `json:"spotify_episode_id"`
	SpotifyURL       string    `json:"spotify_url"`
	Title            string    `json:"title"`
	ShowName         string    `json:"show_name"`
	Duration         int       `json:"duration"`
	Queries          []string  `json:"queries"`
	BestScore        float64   `json:"best_score"`
	BestVideoID      string    `json:"best_video_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}
