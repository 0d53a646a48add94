package transcript

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"google.golang.org/api/option"

	"github.com/codebuildervaibhav/podcast-summarizer/internal/types"
)

func init() {
	retryInitialInterval = time.Millisecond
}

const sampleVTT = "WEBVTT\nKind: captions\nLanguage: en\n\n00:00:00.000 --> 00:00:02.000\nwelcome to the show\n\n00:00:02.000 --> 00:00:04.000\ntoday we talk &gt; about Go\n"

func TestSupadataSource(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Query().Get("videoId") {
		case "flakyflaky1":
			if atomic.AddInt32(&attempts, 1) == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			fmt.Fprint(w, `{"content":"recovered transcript","lang":"en"}`)
		case "dQw4w9WgXcQ":
			if r.URL.Query().Get("text") != "true" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			fmt.Fprint(w, `{"content":"  full transcript text  ","lang":"en"}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	src := NewSupadataSource("secret", srv.URL+"/v1", srv.Client())
	if src.Name() != types.SourceAggregator {
		t.Errorf("Name() = %s", src.Name())
	}

	res, err := src.GetTranscript(context.Background(), "dQw4w9WgXcQ")
	if err != nil {
		t.Fatalf("GetTranscript: %v", err)
	}
	if res.Text != "full transcript text" || res.Source != types.SourceAggregator {
		t.Errorf("unexpected result: %+v", res)
	}

	res, err = src.GetTranscript(context.Background(), "flakyflaky1")
	if err != nil || res == nil || res.Text != "recovered transcript" {
		t.Fatalf("expected retry to recover, got %+v, %v", res, err)
	}

	res, err = src.GetTranscript(context.Background(), "missing0000")
	if err != nil || res != nil {
		t.Fatalf("404 should be unavailable, got %+v, %v", res, err)
	}

	bad := NewSupadataSource("wrong", srv.URL+"/v1", srv.Client())
	if _, err := bad.GetTranscript(context.Background(), "dQw4w9WgXcQ"); err == nil {
		t.Fatal("expected error for unauthorized request")
	}
}

func watchPage(playerJSON string) string {
	return `<!DOCTYPE html><html><head><title>video</title></head><body>
<script>var ytcfg = {"a": 1};</script>
<script nonce="x">var ytInitialPlayerResponse = ` + playerJSON + `;var meta = {"b": 2};</script>
</body></html>`
}

func TestScrapeSource(t *testing.T) {
	var srvURL string
	var gotFmt string
	mux := http.NewServeMux()
	mux.HandleFunc("/watch", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("v") {
		case "dQw4w9WgXcQ":
			fmt.Fprint(w, watchPage(`{"captions":{"playerCaptionsTracklistRenderer":{"captionTracks":[
				{"baseUrl":"`+srvURL+`/api/timedtext?v=dQw4w9WgXcQ&lang=de","languageCode":"de","kind":"asr"},
				{"baseUrl":"`+srvURL+`/api/timedtext?v=dQw4w9WgXcQ&lang=en","languageCode":"en","kind":"asr"}
			]}},"videoDetails":{"title":"a } tricky { title"}}`))
		case "nocaptions0":
			fmt.Fprint(w, watchPage(`{"playabilityStatus":{"status":"OK"}}`))
		case "frenchonly0":
			fmt.Fprint(w, watchPage(`{"captions":{"playerCaptionsTracklistRenderer":{"captionTracks":[
				{"baseUrl":"`+srvURL+`/api/timedtext?lang=fr","languageCode":"fr"}]}}}`))
		default:
			fmt.Fprint(w, `<html><body>consent required</body></html>`)
		}
	})
	mux.HandleFunc("/api/timedtext", func(w http.ResponseWriter, r *http.Request) {
		gotFmt = r.URL.Query().Get("fmt")
		if r.URL.Query().Get("lang") != "en" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprint(w, sampleVTT)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	srvURL = srv.URL

	src := NewScrapeSource(srv.URL, srv.Client())

	res, err := src.GetTranscript(context.Background(), "dQw4w9WgXcQ")
	if err != nil {
		t.Fatalf("GetTranscript: %v", err)
	}
	if want := "welcome to the show today we talk > about Go"; res.Text != want {
		t.Errorf("Text = %q, want %q", res.Text, want)
	}
	if gotFmt != "vtt" {
		t.Errorf("caption track requested with fmt=%q", gotFmt)
	}

	for _, id := range []string{"nocaptions0", "frenchonly0"} {
		res, err := src.GetTranscript(context.Background(), id)
		if err != nil || res != nil {
			t.Errorf("%s: expected unavailable, got %+v, %v", id, res, err)
		}
	}

	if _, err := src.GetTranscript(context.Background(), "consentpage"); err == nil ||
		!strings.Contains(err.Error(), "ytInitialPlayerResponse") {
		t.Errorf("expected missing player response error, got %v", err)
	}
}

func TestOfficialAPISource(t *testing.T) {
	var downloaded string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/youtube/v3/captions"):
			switch r.URL.Query().Get("videoId") {
			case "dQw4w9WgXcQ":
				fmt.Fprint(w, `{"items":[
					{"id":"cap-en","snippet":{"language":"en","trackKind":"standard"}},
					{"id":"cap-asr","snippet":{"language":"en","trackKind":"asr"}},
					{"id":"cap-es","snippet":{"language":"es","trackKind":"asr"}}
				]}`)
			default:
				fmt.Fprint(w, `{"items":[{"id":"cap-es","snippet":{"language":"es","trackKind":"asr"}}]}`)
			}
		case strings.Contains(r.URL.Path, "/youtube/v3/captions/"):
			downloaded = r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
			if r.URL.Query().Get("tfmt") != "vtt" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			fmt.Fprint(w, sampleVTT)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	src, err := NewOfficialAPISource(context.Background(),
		option.WithEndpoint(srv.URL+"/"), option.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("NewOfficialAPISource: %v", err)
	}

	res, err := src.GetTranscript(context.Background(), "dQw4w9WgXcQ")
	if err != nil {
		t.Fatalf("GetTranscript: %v", err)
	}
	if downloaded != "cap-asr" {
		t.Errorf("downloaded track %q, want auto-generated English", downloaded)
	}
	if res.Source != types.SourceOfficial || !strings.HasPrefix(res.Text, "welcome to the show") {
		t.Errorf("unexpected result: %+v", res)
	}

	res, err = src.GetTranscript(context.Background(), "spanishonly")
	if err != nil || res != nil {
		t.Errorf("expected unavailable without English captions, got %+v, %v", res, err)
	}
}

type stubEpisodes struct {
	description string
	err         error
}

func (s stubEpisodes) GetInfo(_ context.Context, id string) (*types.Metadata, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &types.Metadata{ID: id, Platform: types.PlatformSpotify, Description: s.description}, nil
}

func TestSpotifySource(t *testing.T) {
	res, err := NewSpotifySource(stubEpisodes{description: "Episode notes"}).GetTranscript(context.Background(), "ep")
	if err != nil || res == nil || res.Text != "Episode notes" || res.Source != types.SourceSpotify {
		t.Fatalf("unexpected result %+v, %v", res, err)
	}

	res, err = NewSpotifySource(stubEpisodes{description: "  "}).GetTranscript(context.Background(), "ep")
	if err != nil || res != nil {
		t.Fatalf("expected unavailable, got %+v, %v", res, err)
	}

	boom := errors.New("api down")
	if _, err := NewSpotifySource(stubEpisodes{err: boom}).GetTranscript(context.Background(), "ep"); !errors.Is(err, boom) {
		t.Fatalf("expected api error, got %v", err)
	}
}
