package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/codebuildervaibhav/podcast-summarizer/internal/types"
)

// Supported drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

// Fixed-width UTC timestamps keep TEXT columns sortable
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const schemaSQL = `
CREATE TABLE IF NOT EXISTS podcasts (
	id TEXT PRIMARY KEY,
	url TEXT NOT NULL UNIQUE,
	platform TEXT NOT NULL,
	youtube_url TEXT NOT NULL DEFAULT '',
	title TEXT NOT NULL DEFAULT '',
	show_name TEXT NOT NULL DEFAULT '',
	transcript TEXT NOT NULL DEFAULT '',
	has_transcript INTEGER NOT NULL DEFAULT 0,
	thumbnail_url TEXT NOT NULL DEFAULT '',
	duration INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS summaries (
	id TEXT PRIMARY KEY,
	podcast_id TEXT NOT NULL REFERENCES podcasts(id),
	user_id TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	summary_text TEXT NOT NULL DEFAULT '',
	error_message TEXT NOT NULL DEFAULT '',
	status_history TEXT NOT NULL DEFAULT '[]',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	completed_at TEXT,
	failed_at TEXT
);

CREATE INDEX IF NOT EXISTS idx_summaries_status ON summaries(status);
CREATE INDEX IF NOT EXISTS idx_summaries_created_at ON summaries(created_at);

CREATE TABLE IF NOT EXISTS failed_youtube_searches (
	id TEXT PRIMARY KEY,
	spotify_episode_id TEXT NOT NULL,
	spotify_url TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	show_name TEXT NOT NULL DEFAULT '',
	duration INTEGER NOT NULL DEFAULT 0,
	queries TEXT NOT NULL DEFAULT '[]',
	best_score DOUBLE PRECISION NOT NULL DEFAULT 0,
	best_video_id TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);
`

const summaryColumns = `id, podcast_id, user_id, status, summary_text, error_message, status_history,
	created_at, updated_at, completed_at, failed_at`

const podcastColumns = `id, url, platform, youtube_url, title, show_name, transcript, has_transcript,
	thumbnail_url, duration, created_at`

// DB stores podcasts, summaries and failed searches in SQLite or Postgres
type DB struct {
	db     *sql.DB
	driver string
	now    func() time.Time
}

// NewDB opens the database and creates the schema if needed. driver is
// DriverSQLite (dsn is a file path) or DriverPostgres (dsn is a connection URL).
func NewDB(driver, dsn string) (*DB, error) {
	if driver == "" || driver == "sqlite3" {
		driver = DriverSQLite
	}
	if driver == "postgres" {
		driver = DriverPostgres
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	switch driver {
	case DriverSQLite:
		// One connection keeps transactions serialized.
		db.SetMaxOpenConns(1)
		for _, pragma := range []string{
			"PRAGMA journal_mode=WAL",
			"PRAGMA foreign_keys = ON",
			"PRAGMA busy_timeout = 5000",
		} {
			if _, err := db.Exec(pragma); err != nil {
				db.Close()
				return nil, fmt.Errorf("apply pragma %q: %w", pragma, err)
			}
		}
	case DriverPostgres:
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(30 * time.Minute)
	default:
		db.Close()
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	for _, stmt := range strings.Split(schemaSQL, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return &DB{db: db, driver: driver, now: time.Now}, nil
}

// Close closes the database connection
func (d *DB) Close() error {
	return d.db.Close()
}

// Ping checks the connection
func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// rebind converts ? placeholders to $n for Postgres
func (d *DB) rebind(query string) string {
	if d.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (d *DB) timestamp() time.Time {
	return d.now().UTC()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func dbError(code, operation string, err error, fields map[string]any) *types.DatabaseError {
	return &types.DatabaseError{Code: code, Operation: operation, Context: fields, Err: err}
}

func notFound(operation, id string) *types.DatabaseError {
	return dbError(types.ErrCodeNotFound, operation, nil, map[string]any{"id": id})
}

// CreatePodcast inserts a podcast, assigning an ID and creation time if unset
func (d *DB) CreatePodcast(ctx context.Context, p *types.Podcast) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = d.timestamp()
	}

	_, err := d.db.ExecContext(ctx, d.rebind(`
		INSERT INTO podcasts (`+podcastColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		p.ID, p.URL, string(p.Platform), p.YouTubeURL, p.Title, p.ShowName, p.Transcript,
		boolToInt(p.HasTranscript), p.ThumbnailURL, p.Duration, formatTime(p.CreatedAt),
	)
	if err != nil {
		return dbError(types.ErrCodeQueryFailed, "createPodcast", err, map[string]any{"url": p.URL})
	}
	return nil
}

// GetPodcast loads a podcast by ID
func (d *DB) GetPodcast(ctx context.Context, id string) (*types.Podcast, error) {
	row := d.db.QueryRowContext(ctx, d.rebind(`SELECT `+podcastColumns+` FROM podcasts WHERE id = ?`), id)
	p, err := scanPodcast(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("getPodcast", id)
	}
	if err != nil {
		return nil, dbError(types.ErrCodeQueryFailed, "getPodcast", err, map[string]any{"id": id})
	}
	return p, nil
}

// FindPodcastByURL returns the podcast submitted with url, or nil
func (d *DB) FindPodcastByURL(ctx context.Context, url string) (*types.Podcast, error) {
	row := d.db.QueryRowContext(ctx, d.rebind(`SELECT `+podcastColumns+` FROM podcasts WHERE url = ?`), url)
	p, err := scanPodcast(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, dbError(types.ErrCodeQueryFailed, "findPodcastByUrl", err, map[string]any{"url": url})
	}
	return p, nil
}

// UpdatePodcast applies the non-nil fields of update. youtube_url is only
// written while it is still empty.
func (d *DB) UpdatePodcast(ctx context.Context, id string, update types.PodcastUpdate) error {
	var (
		sets []string
		args []any
	)
	if update.YouTubeURL != nil {
		sets = append(sets, "youtube_url = CASE WHEN youtube_url = '' THEN ? ELSE youtube_url END")
		args = append(args, *update.YouTubeURL)
	}
	if update.Transcript != nil {
		sets = append(sets, "transcript = ?")
		args = append(args, *update.Transcript)
	}
	if update.HasTranscript != nil {
		sets = append(sets, "has_transcript = ?")
		args = append(args, boolToInt(*update.HasTranscript))
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)

	res, err := d.db.ExecContext(ctx, d.rebind(`UPDATE podcasts SET `+strings.Join(sets, ", ")+` WHERE id = ?`), args...)
	if err != nil {
		return dbError(types.ErrCodeQueryFailed, "updatePodcast", err, map[string]any{"id": id})
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return notFound("updatePodcast", id)
	}
	return nil
}

// CreateSummary inserts a summary in IN_QUEUE with its first history entry
func (d *DB) CreateSummary(ctx context.Context, s *types.Summary) error {
	now := d.timestamp()
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	s.Status = types.StatusInQueue
	s.CreatedAt = now
	s.UpdatedAt = now
	s.StatusHistory = []types.StatusEntry{{Status: types.StatusInQueue, Timestamp: now}}

	history, err := json.Marshal(s.StatusHistory)
	if err != nil {
		return dbError(types.ErrCodeQueryFailed, "createSummary", err, nil)
	}

	_, err = d.db.ExecContext(ctx, d.rebind(`
		INSERT INTO summaries (id, podcast_id, user_id, status, summary_text, error_message, status_history, created_at, updated_at)
		VALUES (?, ?, ?, ?, '', '', ?, ?, ?)`),
		s.ID, s.PodcastID, s.UserID, string(s.Status), string(history), formatTime(now), formatTime(now),
	)
	if err != nil {
		return dbError(types.ErrCodeQueryFailed, "createSummary", err, map[string]any{"podcast_id": s.PodcastID})
	}
	return nil
}

// GetSummary loads a summary by ID
func (d *DB) GetSummary(ctx context.Context, id string) (*types.Summary, error) {
	row := d.db.QueryRowContext(ctx, d.rebind(`SELECT `+summaryColumns+` FROM summaries WHERE id = ?`), id)
	s, err := scanSummary(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("getSummary", id)
	}
	if err != nil {
		return nil, dbError(types.ErrCodeQueryFailed, "getSummary", err, map[string]any{"id": id})
	}
	return s, nil
}

// ListSummaries returns the most recent summaries
func (d *DB) ListSummaries(ctx context.Context, limit int) ([]types.Summary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := d.db.QueryContext(ctx, d.rebind(`SELECT `+summaryColumns+` FROM summaries ORDER BY created_at DESC LIMIT ?`), limit)
	if err != nil {
		return nil, dbError(types.ErrCodeQueryFailed, "listSummaries", err, nil)
	}
	return collectSummaries(rows, "listSummaries")
}

// ListSummariesByStatus returns every summary in one of the given statuses,
// oldest update first.
func (d *DB) ListSummariesByStatus(ctx context.Context, statuses ...types.Status) ([]types.Summary, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(statuses))
	args := make([]any, len(statuses))
	for i, st := range statuses {
		placeholders[i] = "?"
		args[i] = string(st)
	}

	rows, err := d.db.QueryContext(ctx, d.rebind(`SELECT `+summaryColumns+` FROM summaries
		WHERE status IN (`+strings.Join(placeholders, ", ")+`) ORDER BY updated_at`), args...)
	if err != nil {
		return nil, dbError(types.ErrCodeQueryFailed, "listSummariesByStatus", err, nil)
	}
	return collectSummaries(rows, "listSummariesByStatus")
}

// CountSummariesByStatus returns the number of summaries in each status
func (d *DB) CountSummariesByStatus(ctx context.Context) (map[types.Status]int, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM summaries GROUP BY status`)
	if err != nil {
		return nil, dbError(types.ErrCodeQueryFailed, "countSummariesByStatus", err, nil)
	}
	defer rows.Close()

	counts := make(map[types.Status]int, len(types.AllStatuses))
	for _, st := range types.AllStatuses {
		counts[st] = 0
	}
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, dbError(types.ErrCodeQueryFailed, "countSummariesByStatus", err, nil)
		}
		counts[types.Status(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, dbError(types.ErrCodeQueryFailed, "countSummariesByStatus", err, nil)
	}
	return counts, nil
}

// UpdateSummaryStatus moves a summary from change.From to change.To and appends
// a history entry. It reports false without writing when the summary is no
// longer in change.From, so replaying a transition is a no-op. Transitions the
// lifecycle does not allow fail with CONFLICT.
func (d *DB) UpdateSummaryStatus(ctx context.Context, id string, change types.StatusChange) (bool, error) {
	retry := change.To == types.StatusInQueue && types.CanRetry(change.From)
	if !retry && !types.CanTransition(change.From, change.To) {
		return false, dbError(types.ErrCodeConflict, "updateSummaryStatus",
			fmt.Errorf("transition %s -> %s not allowed", change.From, change.To),
			map[string]any{"id": id})
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return false, dbError(types.ErrCodeQueryFailed, "updateSummaryStatus", err, map[string]any{"id": id})
	}
	defer tx.Rollback()

	var current, historyJSON string
	err = tx.QueryRowContext(ctx, d.rebind(`SELECT status, status_history FROM summaries WHERE id = ?`), id).
		Scan(&current, &historyJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return false, notFound("updateSummaryStatus", id)
	}
	if err != nil {
		return false, dbError(types.ErrCodeQueryFailed, "updateSummaryStatus", err, map[string]any{"id": id})
	}
	if types.Status(current) != change.From {
		return false, nil
	}

	var history []types.StatusEntry
	if err := json.Unmarshal([]byte(historyJSON), &history); err != nil {
		return false, dbError(types.ErrCodeQueryFailed, "updateSummaryStatus", fmt.Errorf("decode status history: %w", err), map[string]any{"id": id})
	}

	now := d.timestamp()
	if n := len(history); n > 0 && now.Before(history[n-1].Timestamp) {
		now = history[n-1].Timestamp
	}
	history = append(history, types.StatusEntry{Status: change.To, Timestamp: now, Message: change.Message})
	encoded, err := json.Marshal(history)
	if err != nil {
		return false, dbError(types.ErrCodeQueryFailed, "updateSummaryStatus", err, map[string]any{"id": id})
	}

	sets := "status = ?, status_history = ?, updated_at = ?"
	args := []any{string(change.To), string(encoded), formatTime(now)}
	switch {
	case change.To == types.StatusFailed:
		sets += ", failed_at = ?, error_message = ?"
		args = append(args, formatTime(now), change.Message)
	case change.To == types.StatusCompleted:
		sets += ", completed_at = ?"
		args = append(args, formatTime(now))
	case retry:
		sets += ", failed_at = NULL, error_message = '', summary_text = ''"
	}
	args = append(args, id, string(change.From))

	res, err := tx.ExecContext(ctx, d.rebind(`UPDATE summaries SET `+sets+` WHERE id = ? AND status = ?`), args...)
	if err != nil {
		return false, dbError(types.ErrCodeQueryFailed, "updateSummaryStatus", err, map[string]any{"id": id})
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return false, nil
	}

	if err := tx.Commit(); err != nil {
		return false, dbError(types.ErrCodeQueryFailed, "updateSummaryStatus", err, map[string]any{"id": id})
	}
	return true, nil
}

// AppendSummary stores the accumulated summary text. The write only applies
// while the summary is in chunk.Status; otherwise it fails with CONFLICT.
func (d *DB) AppendSummary(ctx context.Context, id string, chunk types.SummaryChunk) error {
	res, err := d.db.ExecContext(ctx, d.rebind(`
		UPDATE summaries SET summary_text = ?, updated_at = ?
		WHERE id = ? AND status = ?`),
		chunk.Text, formatTime(d.timestamp()), id, string(chunk.Status),
	)
	if err != nil {
		return dbError(types.ErrCodeQueryFailed, "appendSummary", err, map[string]any{"id": id})
	}
	n, err := res.RowsAffected()
	if err != nil || n > 0 {
		return nil
	}

	current, err := d.GetSummary(ctx, id)
	if err != nil {
		return err
	}
	return dbError(types.ErrCodeConflict, "appendSummary",
		fmt.Errorf("summary is %s, expected %s", current.Status, chunk.Status),
		map[string]any{"id": id})
}

// LogFailedYouTubeSearch records a Spotify episode with no YouTube match
func (d *DB) LogFailedYouTubeSearch(ctx context.Context, rec *types.FailedSearch) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = d.timestamp()
	}
	queries, err := json.Marshal(rec.Queries)
	if err != nil {
		return dbError(types.ErrCodeQueryFailed, "logFailedYouTubeSearch", err, nil)
	}

	_, err = d.db.ExecContext(ctx, d.rebind(`
		INSERT INTO failed_youtube_searches
			(id, spotify_episode_id, spotify_url, title, show_name, duration, queries, best_score, best_video_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		rec.ID, rec.SpotifyEpisodeID, rec.SpotifyURL, rec.Title, rec.ShowName, rec.Duration,
		string(queries), rec.BestScore, rec.BestVideoID, formatTime(rec.CreatedAt),
	)
	if err != nil {
		return dbError(types.ErrCodeQueryFailed, "logFailedYouTubeSearch", err, map[string]any{"spotify_url": rec.SpotifyURL})
	}
	return nil
}

// ListFailedYouTubeSearches returns the most recent failed searches
func (d *DB) ListFailedYouTubeSearches(ctx context.Context, limit int) ([]types.FailedSearch, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := d.db.QueryContext(ctx, d.rebind(`
		SELECT id, spotify_episode_id, spotify_url, title, show_name, duration, queries, best_score, best_video_id, created_at
		FROM failed_youtube_searches ORDER BY created_at DESC LIMIT ?`), limit)
	if err != nil {
		return nil, dbError(types.ErrCodeQueryFailed, "listFailedYouTubeSearches", err, nil)
	}
	defer rows.Close()

	var out []types.FailedSearch
	for rows.Next() {
		var (
			rec              types.FailedSearch
			queries, created string
		)
		if err := rows.Scan(&rec.ID, &rec.SpotifyEpisodeID, &rec.SpotifyURL, &rec.Title, &rec.ShowName,
			&rec.Duration, &queries, &rec.BestScore, &rec.BestVideoID, &created); err != nil {
			return nil, dbError(types.ErrCodeQueryFailed, "listFailedYouTubeSearches", err, nil)
		}
		if err := json.Unmarshal([]byte(queries), &rec.Queries); err != nil {
			return nil, dbError(types.ErrCodeQueryFailed, "listFailedYouTubeSearches", err, nil)
		}
		if rec.CreatedAt, err = parseTime(created); err != nil {
			return nil, dbError(types.ErrCodeQueryFailed, "listFailedYouTubeSearches", err, nil)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError(types.ErrCodeQueryFailed, "listFailedYouTubeSearches", err, nil)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPodcast(row rowScanner) (*types.Podcast, error) {
	var (
		p             types.Podcast
		platform      string
		hasTranscript int
		created       string
	)
	if err := row.Scan(&p.ID, &p.URL, &platform, &p.YouTubeURL, &p.Title, &p.ShowName, &p.Transcript,
		&hasTranscript, &p.ThumbnailURL, &p.Duration, &created); err != nil {
		return nil, err
	}
	p.Platform = types.Platform(platform)
	p.HasTranscript = hasTranscript != 0

	var err error
	if p.CreatedAt, err = parseTime(created); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	return &p, nil
}

func scanSummary(row rowScanner) (*types.Summary, error) {
	var (
		s                 types.Summary
		status, history   string
		created, updated  string
		completed, failed sql.NullString
	)
	if err := row.Scan(&s.ID, &s.PodcastID, &s.UserID, &status, &s.SummaryText, &s.ErrorMessage, &history,
		&created, &updated, &completed, &failed); err != nil {
		return nil, err
	}
	s.Status = types.Status(status)

	if err := json.Unmarshal([]byte(history), &s.StatusHistory); err != nil {
		return nil, fmt.Errorf("decode status history: %w", err)
	}

	var err error
	if s.CreatedAt, err = parseTime(created); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if s.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	if completed.Valid && completed.String != "" {
		t, err := parseTime(completed.String)
		if err != nil {
			return nil, fmt.Errorf("parse completed_at: %w", err)
		}
		s.CompletedAt = &t
	}
	if failed.Valid && failed.String != "" {
		t, err := parseTime(failed.String)
		if err != nil {
			return nil, fmt.Errorf("parse failed_at: %w", err)
		}
		s.FailedAt = &t
	}
	return &s, nil
}

func collectSummaries(rows *sql.Rows, operation string) ([]types.Summary, error) {
	defer rows.Close()

	var out []types.Summary
	for rows.Next() {
		s, err := scanSummary(rows)
		if err != nil {
			return nil, dbError(types.ErrCodeQueryFailed, operation, err, nil)
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError(types.ErrCodeQueryFailed, operation, err, nil)
	}
	return out, nil
}
