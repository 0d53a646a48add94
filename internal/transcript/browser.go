package transcript

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/codebuildervaibhav/podcast-summarizer/internal/types"
)

const captionTracksJS = `JSON.stringify(
	(window.ytInitialPlayerResponse &&
	 window.ytInitialPlayerResponse.captions &&
	 window.ytInitialPlayerResponse.captions.playerCaptionsTracklistRenderer.captionTracks) || [])`

// BrowserSource loads the watch page in headless Chrome and fetches the caption
// track from inside the page, for videos whose tracks need a browser session.
type BrowserSource struct {
	baseURL   string
	timeout   time.Duration
	allocOpts []chromedp.ExecAllocatorOption
}

// NewBrowserSource creates a headless-browser source
func NewBrowserSource(baseURL string, timeout time.Duration, allocOpts ...chromedp.ExecAllocatorOption) *BrowserSource {
	if baseURL == "" {
		baseURL = defaultWatchBaseURL
	}
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	if len(allocOpts) == 0 {
		allocOpts = append(chromedp.DefaultExecAllocatorOptions[:], chromedp.Flag("mute-audio", true))
	}
	return &BrowserSource{baseURL: baseURL, timeout: timeout, allocOpts: allocOpts}
}

func (s *BrowserSource) Name() types.TranscriptSource {
	return types.SourceBrowser
}

func (s *BrowserSource) GetTranscript(ctx context.Context, videoID string) (*types.TranscriptResult, error) {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, s.allocOpts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	browserCtx, cancel := context.WithTimeout(browserCtx, s.timeout)
	defer cancel()

	var tracksJSON string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(s.baseURL+"/watch?v="+videoID),
		chromedp.WaitReady("body"),
		chromedp.Evaluate(captionTracksJS, &tracksJSON),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load watch page: %w", err)
	}

	var tracks []captionTrack
	if err := json.Unmarshal([]byte(tracksJSON), &tracks); err != nil {
		return nil, fmt.Errorf("decode caption tracks: %w", err)
	}
	track, ok := pickCaptionTrack(tracks)
	if !ok {
		return nil, nil
	}

	captionsURL, err := vttURL(track.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid caption track URL: %w", err)
	}

	var vtt string
	err = chromedp.Run(browserCtx,
		chromedp.Evaluate(fmt.Sprintf(`fetch(%q, {credentials: "include"}).then(r => r.text())`, captionsURL),
			&vtt, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
				return p.WithAwaitPromise(true)
			}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch captions in page: %w", err)
	}

	text := CleanVTT(vtt)
	if text == "" {
		return nil, nil
	}
	return &types.TranscriptResult{Text: text, Available: true, Source: types.SourceBrowser}, nil
}
