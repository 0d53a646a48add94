package platform

import (
	"testing"

	"github.com/codebuildervaibhav/podcast-summarizer/internal/types"
)

func TestExtractYouTubeVideoID(t *testing.T) {
	const id = "dQw4w9WgXcQ"
	tests := []struct {
		name string
		url  string
		want string
	}{
		{"standard", "https://www.youtube.com/watch?v=" + id, id},
		{"standard with timestamp", "https://www.youtube.com/watch?v=" + id + "&t=42s", id},
		{"v not first param", "https://www.youtube.com/watch?feature=share&v=" + id, id},
		{"mobile host", "https://m.youtube.com/watch?v=" + id, id},
		{"no scheme", "youtube.com/watch?v=" + id, id},
		{"short", "https://youtu.be/" + id, id},
		{"short with query", "https://youtu.be/" + id + "?si=abc123&t=10", id},
		{"embed", "https://www.youtube.com/embed/" + id, id},
		{"embed nocookie", "https://www.youtube-nocookie.com/embed/" + id + "?rel=0", id},
		{"shorts", "https://www.youtube.com/shorts/" + id, id},
		{"legacy v", "http://www.youtube.com/v/" + id + "?version=3", id},
		{"legacy e", "http://www.youtube.com/e/" + id, id},
		{"live", "https://www.youtube.com/live/" + id + "?feature=share", id},
		{"screening room", "http://www.youtube.com/ytscreeningroom?v=" + id, id},
		{"id with dash and underscore", "https://youtu.be/a-b_c-d_e-f", "a-b_c-d_e-f"},
		{"empty shorts", "https://www.youtube.com/shorts/", ""},
		{"empty short link", "https://youtu.be/", ""},
		{"truncated id", "https://www.youtube.com/watch?v=dQw4w9", ""},
		{"too long id", "https://www.youtube.com/watch?v=" + id + "X", ""},
		{"channel page", "https://www.youtube.com/@somechannel", ""},
		{"not youtube", "https://vimeo.com/123456789", ""},
		{"empty", "", ""},
		{"garbage", "%%%::not a url", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractYouTubeVideoID(tt.url); got != tt.want {
				t.Errorf("ExtractYouTubeVideoID(%q) = %q, want %q", tt.url, got, tt.want)
			}
		})
	}
}

func TestExtractSpotifyEpisodeID(t *testing.T) {
	const id = "4rOoJ6Egrf8K2IrywzwOMk"
	tests := []struct {
		name string
		url  string
		want string
	}{
		{"standard", "https://open.spotify.com/episode/" + id, id},
		{"with query", "https://open.spotify.com/episode/" + id + "?si=a1b2c3", id},
		{"intl path", "https://open.spotify.com/intl-de/episode/" + id, id},
		{"embed", "https://open.spotify.com/embed/episode/" + id, id},
		{"uri", "spotify:episode:" + id, id},
		{"show link", "https://open.spotify.com/show/" + id, ""},
		{"missing id", "https://open.spotify.com/episode/", ""},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractSpotifyEpisodeID(tt.url); got != tt.want {
				t.Errorf("ExtractSpotifyEpisodeID(%q) = %q, want %q", tt.url, got, tt.want)
			}
		})
	}
}

func TestDetectPlatform(t *testing.T) {
	tests := []struct {
		url     string
		want    types.Platform
		wantErr bool
	}{
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", types.PlatformYouTube, false},
		{"https://youtu.be/dQw4w9WgXcQ", types.PlatformYouTube, false},
		{"https://music.youtube.com/watch?v=dQw4w9WgXcQ", types.PlatformYouTube, false},
		{"https://open.spotify.com/episode/4rOoJ6Egrf8K2IrywzwOMk", types.PlatformSpotify, false},
		{"spotify:episode:4rOoJ6Egrf8K2IrywzwOMk", types.PlatformSpotify, false},
		{"https://example.com/watch?v=dQw4w9WgXcQ", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			got, err := DetectPlatform(tt.url)
			if (err != nil) != tt.wantErr {
				t.Fatalf("DetectPlatform(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("DetectPlatform(%q) = %q, want %q", tt.url, got, tt.want)
			}
		})
	}
}

func TestIsSpotifyURL(t *testing.T) {
	if !IsSpotifyURL("https://open.spotify.com/episode/4rOoJ6Egrf8K2IrywzwOMk") {
		t.Error("expected spotify URL to be detected")
	}
	if IsSpotifyURL("https://youtu.be/dQw4w9WgXcQ") {
		t.Error("youtube URL reported as spotify")
	}
}
