package platform

import (
	"context"

	"github.com/codebuildervaibhav/podcast-summarizer/internal/types"
)

// InfoGetter fetches metadata for one platform
type InfoGetter interface {
	GetInfo(ctx context.Context, urlOrID string) (*types.Metadata, error)
}

// MetadataService dispatches metadata lookups to the client for the URL's platform
type MetadataService struct {
	clients map[types.Platform]InfoGetter
}

// NewMetadataService creates a metadata service. A nil client leaves its
// platform unsupported.
func NewMetadataService(youtube, spotify InfoGetter) *MetadataService {
	clients := make(map[types.Platform]InfoGetter, 2)
	if youtube != nil {
		clients[types.PlatformYouTube] = youtube
	}
	if spotify != nil {
		clients[types.PlatformSpotify] = spotify
	}
	return &MetadataService{clients: clients}
}

// Lookup detects the platform of rawURL and fetches its metadata
func (s *MetadataService) Lookup(ctx context.Context, rawURL string) (*types.Metadata, error) {
	platform, err := DetectPlatform(rawURL)
	if err != nil {
		return nil, err
	}

	client, ok := s.clients[platform]
	if !ok {
		return nil, types.NewPlatformError(platform, types.ErrCodeAPIError, "platform client not configured", nil)
	}
	return client.GetInfo(ctx, rawURL)
}
