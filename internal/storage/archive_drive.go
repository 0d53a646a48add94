package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/codebuildervaibhav/podcast-summarizer/internal/types"
)

const folderMimeType = "application/vnd.google-apps.folder"

// DriveArchive uploads completed summaries to Google Drive
type DriveArchive struct {
	service    *drive.Service
	folderName string
	folderID   string
	now        func() time.Time
}

// NewDriveArchive creates a Drive archive using an authorized client (see
// googleauth.Client) and finds or creates the root folder.
func NewDriveArchive(ctx context.Context, client *http.Client, folderName string, opts ...option.ClientOption) (*DriveArchive, error) {
	opts = append([]option.ClientOption{option.WithHTTPClient(client)}, opts...)
	srv, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create Drive service: %w", err)
	}

	da := &DriveArchive{
		service:    srv,
		folderName: folderName,
		now:        time.Now,
	}

	folderID, err := da.findOrCreateFolder(ctx, folderName, "")
	if err != nil {
		return nil, fmt.Errorf("unable to find root folder: %w", err)
	}
	da.folderID = folderID

	return da, nil
}

// Name identifies the archive in logs
func (da *DriveArchive) Name() string {
	return "gdrive"
}

// Archive uploads the summary Markdown and metadata and returns the Markdown
// file's view link.
func (da *DriveArchive) Archive(ctx context.Context, podcast *types.Podcast, summary *types.Summary) (string, error) {
	now := da.now()
	folderID, err := da.ensureDateFolder(ctx, now)
	if err != nil {
		return "", err
	}

	baseFilename := archiveBaseName(now, podcast)

	mdFile := &drive.File{
		Name:     baseFilename + ".md",
		MimeType: "text/markdown",
		Parents:  []string{folderID},
	}
	created, err := da.service.Files.Create(mdFile).
		Media(strings.NewReader(renderMarkdown(podcast, summary))).
		Fields("id").
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("failed to upload summary: %w", err)
	}
	fileURL := fmt.Sprintf("https://drive.google.com/file/d/%s/view", created.Id)

	meta := archiveMetadata(podcast, summary)
	meta["gdrive_url"] = fileURL
	metaJSON, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal metadata: %w", err)
	}

	metaFile := &drive.File{
		Name:     baseFilename + "_meta.json",
		MimeType: "application/json",
		Parents:  []string{folderID},
	}
	if _, err := da.service.Files.Create(metaFile).Media(bytes.NewReader(metaJSON)).Context(ctx).Do(); err != nil {
		return "", fmt.Errorf("failed to upload metadata: %w", err)
	}

	return fileURL, nil
}

// ensureDateFolder creates nested year/month/day folders
func (da *DriveArchive) ensureDateFolder(ctx context.Context, t time.Time) (string, error) {
	parent := da.folderID
	for _, name := range []string{
		fmt.Sprintf("%d", t.Year()),
		fmt.Sprintf("%02d", t.Month()),
		fmt.Sprintf("%02d", t.Day()),
	} {
		id, err := da.findOrCreateFolder(ctx, name, parent)
		if err != nil {
			return "", err
		}
		parent = id
	}
	return parent, nil
}

// findOrCreateFolder finds or creates a folder; an empty parentID searches
// the whole drive.
func (da *DriveArchive) findOrCreateFolder(ctx context.Context, name, parentID string) (string, error) {
	query := fmt.Sprintf("name='%s' and mimeType='%s' and trashed=false", escapeQuery(name), folderMimeType)
	if parentID != "" {
		query += fmt.Sprintf(" and '%s' in parents", parentID)
	}

	r, err := da.service.Files.List().Q(query).Spaces("drive").Fields("files(id, name)").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("unable to search for folder %q: %w", name, err)
	}
	if len(r.Files) > 0 {
		return r.Files[0].Id, nil
	}

	folder := &drive.File{
		Name:     name,
		MimeType: folderMimeType,
	}
	if parentID != "" {
		folder.Parents = []string{parentID}
	}

	file, err := da.service.Files.Create(folder).Fields("id").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("unable to create folder %q: %w", name, err)
	}
	return file.Id, nil
}

func escapeQuery(s string) string {
	return strings.ReplaceAll(s, "'", "\\'")
}
