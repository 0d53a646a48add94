package queue

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/codebuildervaibhav/podcast-summarizer/internal/platform"
	"github.com/codebuildervaibhav/podcast-summarizer/internal/types"
)

// JobTypeProcessPodcast is the only job type the workers handle
const JobTypeProcessPodcast = "PROCESS_PODCAST"

// JobData identifies the summary to produce
type JobData struct {
	PodcastID string         `json:"podcastId"`
	SummaryID string         `json:"summaryId"`
	URL       string         `json:"url"`
	Platform  types.Platform `json:"type,omitempty"`
	UserID    string         `json:"userId,omitempty"`
}

// Job is the queue payload. Jobs are immutable; a retry enqueues a new job
// for the same summary.
type Job struct {
	Type string  `json:"type"`
	Data JobData `json:"data"`
}

// NewJob creates a PROCESS_PODCAST job
func NewJob(summary *types.Summary, podcast *types.Podcast) *Job {
	return &Job{
		Type: JobTypeProcessPodcast,
		Data: JobData{
			PodcastID: podcast.ID,
			SummaryID: summary.ID,
			URL:       podcast.URL,
			Platform:  podcast.Platform,
			UserID:    summary.UserID,
		},
	}
}

// Validate reports every problem with the payload as a ValidationError
func (j *Job) Validate() error {
	var problems []string

	if j.Type != JobTypeProcessPodcast {
		problems = append(problems, fmt.Sprintf("unknown job type %q", j.Type))
	}
	if _, err := uuid.Parse(j.Data.SummaryID); err != nil {
		problems = append(problems, "summaryId must be a UUID")
	}
	if _, err := uuid.Parse(j.Data.PodcastID); err != nil {
		problems = append(problems, "podcastId must be a UUID")
	}
	if j.Data.UserID != "" {
		if _, err := uuid.Parse(j.Data.UserID); err != nil {
			problems = append(problems, "userId must be a UUID")
		}
	}

	if u, err := url.Parse(strings.TrimSpace(j.Data.URL)); err != nil || u.Scheme == "" || u.Host == "" {
		problems = append(problems, "url must be an absolute URL")
	} else if detected, err := platform.DetectPlatform(j.Data.URL); err != nil {
		problems = append(problems, "url is not a YouTube or Spotify link")
	} else if j.Data.Platform != "" && j.Data.Platform != detected {
		problems = append(problems, fmt.Sprintf("type %q does not match url platform %q", j.Data.Platform, detected))
	}

	if len(problems) > 0 {
		return &types.ValidationError{Errors: problems}
	}
	return nil
}

// Encode serializes the job for a broker
func (j *Job) Encode() ([]byte, error) {
	return json.Marshal(j)
}

// ParseJob decodes and validates a payload
func ParseJob(payload []byte) (*Job, error) {
	var job Job
	if err := json.Unmarshal(payload, &job); err != nil {
		return nil, &types.ValidationError{Errors: []string{"payload is not valid JSON: " + err.Error()}}
	}
	if err := job.Validate(); err != nil {
		return nil, err
	}
	return &job, nil
}
