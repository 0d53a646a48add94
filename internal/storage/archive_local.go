package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/codebuildervaibhav/podcast-summarizer/internal/types"
)

// LocalArchive writes completed summaries to the local filesystem
type LocalArchive struct {
	outputDir string
	now       func() time.Time
}

// NewLocalArchive creates an archive rooted at outputDir
func NewLocalArchive(outputDir string) *LocalArchive {
	return &LocalArchive{
		outputDir: outputDir,
		now:       time.Now,
	}
}

// Name identifies the archive in logs
func (la *LocalArchive) Name() string {
	return "local"
}

// Archive saves the summary as Markdown plus a metadata sidecar and returns
// the Markdown path.
func (la *LocalArchive) Archive(_ context.Context, podcast *types.Podcast, summary *types.Summary) (string, error) {
	// outputs/2025/01/23/
	now := la.now()
	dateDir := filepath.Join(la.outputDir,
		fmt.Sprintf("%d", now.Year()),
		fmt.Sprintf("%02d", now.Month()),
		fmt.Sprintf("%02d", now.Day()))

	if err := os.MkdirAll(dateDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create date directory: %w", err)
	}

	// 20250123_143022_episode_title
	baseFilename := archiveBaseName(now, podcast)
	mdPath := filepath.Join(dateDir, baseFilename+".md")
	metaPath := filepath.Join(dateDir, baseFilename+"_meta.json")

	if err := os.WriteFile(mdPath, []byte(renderMarkdown(podcast, summary)), 0o644); err != nil {
		return "", fmt.Errorf("failed to save summary: %w", err)
	}

	meta := archiveMetadata(podcast, summary)
	meta["local_path"] = mdPath
	metaJSON, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(metaPath, metaJSON, 0o644); err != nil {
		return "", fmt.Errorf("failed to save metadata: %w", err)
	}

	return mdPath, nil
}

func archiveBaseName(now time.Time, podcast *types.Podcast) string {
	name := podcast.Title
	if strings.TrimSpace(name) == "" {
		name = podcast.ID
	}
	return fmt.Sprintf("%s_%s", now.Format("20060102_150405"), sanitizeFilename(name))
}

func renderMarkdown(podcast *types.Podcast, summary *types.Summary) string {
	var b strings.Builder
	title := podcast.Title
	if title == "" {
		title = podcast.URL
	}
	fmt.Fprintf(&b, "# %s\n\n", title)
	if podcast.ShowName != "" {
		fmt.Fprintf(&b, "*%s*\n\n", podcast.ShowName)
	}
	fmt.Fprintf(&b, "Source: %s\n\n", podcast.URL)
	b.WriteString(strings.TrimSpace(summary.SummaryText))
	b.WriteString("\n")
	return b.String()
}

func archiveMetadata(podcast *types.Podcast, summary *types.Summary) map[string]any {
	meta := map[string]any{
		"summary_id":  summary.ID,
		"podcast_id":  podcast.ID,
		"url":         podcast.URL,
		"platform":    podcast.Platform,
		"youtube_url": podcast.YouTubeURL,
		"title":       podcast.Title,
		"show_name":   podcast.ShowName,
		"duration":    podcast.Duration,
		"created_at":  summary.CreatedAt,
	}
	if summary.CompletedAt != nil {
		meta["completed_at"] = *summary.CompletedAt
	}
	return meta
}

var filenameReplacer = strings.NewReplacer(
	"/", "_", "\\", "_", ":", "_", "*", "_", "?", "_",
	"\"", "_", "<", "_", ">", "_", "|", "_", " ", "_",
)

// sanitizeFilename replaces characters that are invalid in file names
func sanitizeFilename(name string) string {
	result := filenameReplacer.Replace(strings.TrimSpace(name))
	runes := []rune(result)
	if len(runes) > 100 {
		result = string(runes[:100])
	}
	return result
}
