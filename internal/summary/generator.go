package summary

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultMaxTranscriptChars bounds the transcript sent to the model
const DefaultMaxTranscriptChars = 100_000

const systemPrompt = `You summarize podcast episodes from their transcripts.
Write in Markdown with these sections:
## Overview
A short paragraph on what the episode is about and who is speaking.
## Key Points
Bullet points covering the main ideas, arguments and facts, in the order discussed.
## Takeaways
Concrete advice, conclusions or recommendations from the episode.
Do not invent details that are not in the transcript.`

// Streamer is the streaming completion capability the generator needs
type Streamer interface {
	StreamCompletion(ctx context.Context, system, user string, onChunk func(string) error) error
}

// Input describes the episode being summarized
type Input struct {
	Title      string
	ShowName   string
	Transcript string
}

// Generator builds the summary prompt and streams the model's answer
type Generator struct {
	client             Streamer
	maxTranscriptChars int
	logger             *zap.Logger
}

// NewGenerator creates a generator. maxTranscriptChars <= 0 uses the default.
func NewGenerator(client Streamer, maxTranscriptChars int, logger *zap.Logger) *Generator {
	if maxTranscriptChars <= 0 {
		maxTranscriptChars = DefaultMaxTranscriptChars
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{
		client:             client,
		maxTranscriptChars: maxTranscriptChars,
		logger:             logger.With(zap.String("component", "summary")),
	}
}

// Generate streams a summary of in.Transcript, calling onChunk with each piece
// of text in emission order. An onChunk error stops the stream and is returned.
func (g *Generator) Generate(ctx context.Context, in Input, onChunk func(string) error) error {
	transcript := strings.TrimSpace(in.Transcript)
	if transcript == "" {
		return errors.New("empty transcript")
	}

	transcript, truncated := truncateRunes(transcript, g.maxTranscriptChars)
	if truncated {
		g.logger.Info("transcript truncated for summary", zap.String("title", in.Title), zap.Int("max_chars", g.maxTranscriptChars))
	}

	start := time.Now()
	chunks := 0
	err := g.client.StreamCompletion(ctx, systemPrompt, buildUserPrompt(in, transcript, truncated), func(text string) error {
		chunks++
		return onChunk(text)
	})
	if err != nil {
		return fmt.Errorf("summary stream: %w", err)
	}

	g.logger.Debug("summary stream finished", zap.Int("chunks", chunks), zap.Duration("elapsed", time.Since(start)))
	return nil
}

func buildUserPrompt(in Input, transcript string, truncated bool) string {
	var b strings.Builder
	if in.Title != "" {
		fmt.Fprintf(&b, "Episode: %s\n", in.Title)
	}
	if in.ShowName != "" {
		fmt.Fprintf(&b, "Show: %s\n", in.ShowName)
	}
	if truncated {
		b.WriteString("Note: the transcript below was cut short.\n")
	}
	b.WriteString("\nTranscript:\n")
	b.WriteString(transcript)
	return b.String()
}

// truncateRunes cuts s to at most max runes
func truncateRunes(s string, max int) (string, bool) {
	count := 0
	for i := range s {
		if count == max {
			return s[:i], true
		}
		count++
	}
	return s, false
}
