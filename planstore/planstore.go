// CLAUDE:SUMMARY SQLite plan repository: test scenarios keyed by normalized URL or content hash, newest-first listing.
// Package planstore persists test plans — scenario bundles produced outside
// the host — keyed by the page they target. A plan is retrieved either by
// its normalized URL (scheme+host+path, no query or fragment) or by the
// content hash of the snapshot it was authored against.
package planstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/hazyhaar/gaia/idgen"
)

// Schema is the plan table DDL. Applied through dbopen.WithSchema.
const Schema = `
CREATE TABLE IF NOT EXISTS plans (
	id           TEXT PRIMARY KEY,
	url_key      TEXT NOT NULL,
	content_hash TEXT NOT NULL DEFAULT '',
	name         TEXT NOT NULL DEFAULT '',
	payload      TEXT NOT NULL,
	created_at   INTEGER NOT NULL,
	updated_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_plans_url_key ON plans(url_key);
CREATE INDEX IF NOT EXISTS idx_plans_content_hash ON plans(content_hash);
`

// ErrNotFound is returned when no plan matches the requested key.
var ErrNotFound = errors.New("planstore: plan not found")

// Plan is one stored scenario bundle. Payload is opaque to the store.
type Plan struct {
	ID          string          `json:"id"`
	URL         string          `json:"url"`
	ContentHash string          `json:"content_hash,omitempty"`
	Name        string          `json:"name,omitempty"`
	Payload     json.RawMessage `json:"payload"`
	CreatedAt   int64           `json:"created_at"`
	UpdatedAt   int64           `json:"updated_at"`
}

// Store is the plan repository.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	newID  idgen.Generator
	now    func() time.Time
}

// Option customizes a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithIDGenerator sets the plan id generator.
func WithIDGenerator(g idgen.Generator) Option {
	return func(s *Store) { s.newID = g }
}

// New creates a Store and applies the schema.
func New(db *sql.DB, opts ...Option) (*Store, error) {
	s := &Store{
		db:     db,
		logger: slog.Default(),
		newID:  idgen.Prefixed("plan_", idgen.UUIDv7()),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if _, err := db.Exec(Schema); err != nil {
		return nil, fmt.Errorf("planstore: apply schema: %w", err)
	}
	return s, nil
}

// Save upserts a plan. A plan with the same url key and name is replaced;
// otherwise a new row is created. Returns the stored plan with its id.
func (s *Store) Save(ctx context.Context, p Plan) (*Plan, error) {
	if p.URL == "" {
		return nil, fmt.Errorf("planstore: save requires url")
	}
	if len(p.Payload) == 0 {
		return nil, fmt.Errorf("planstore: save requires payload")
	}
	key := URLKey(p.URL)
	now := s.now().UnixMilli()

	var existing string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM plans WHERE url_key = ? AND name = ?`, key, p.Name,
	).Scan(&existing)
	switch {
	case err == nil:
		_, err = s.db.ExecContext(ctx,
			`UPDATE plans SET content_hash = ?, payload = ?, updated_at = ? WHERE id = ?`,
			p.ContentHash, string(p.Payload), now, existing)
		if err != nil {
			return nil, fmt.Errorf("planstore: update plan: %w", err)
		}
		p.ID = existing
		p.UpdatedAt = now
		s.logger.Debug("planstore: plan updated", "id", existing, "url_key", key)
		return &p, nil

	case errors.Is(err, sql.ErrNoRows):
		p.ID = s.newID()
		p.CreatedAt = now
		p.UpdatedAt = now
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO plans (id, url_key, content_hash, name, payload, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			p.ID, key, p.ContentHash, p.Name, string(p.Payload), now, now)
		if err != nil {
			return nil, fmt.Errorf("planstore: insert plan: %w", err)
		}
		s.logger.Debug("planstore: plan saved", "id", p.ID, "url_key", key)
		return &p, nil

	default:
		return nil, fmt.Errorf("planstore: lookup plan: %w", err)
	}
}

// Load retrieves plans for a url or content hash; id wins when set.
// Results are newest-first.
func (s *Store) Load(ctx context.Context, id, rawURL, contentHash string) ([]Plan, error) {
	var (
		rows *sql.Rows
		err  error
	)
	switch {
	case id != "":
		rows, err = s.db.QueryContext(ctx, selectPlans+` WHERE id = ?`, id)
	case rawURL != "":
		rows, err = s.db.QueryContext(ctx,
			selectPlans+` WHERE url_key = ? ORDER BY updated_at DESC`, URLKey(rawURL))
	case contentHash != "":
		rows, err = s.db.QueryContext(ctx,
			selectPlans+` WHERE content_hash = ? ORDER BY updated_at DESC`, contentHash)
	default:
		return nil, fmt.Errorf("planstore: load requires id, url, or content_hash")
	}
	if err != nil {
		return nil, fmt.Errorf("planstore: query plans: %w", err)
	}
	defer rows.Close()

	plans, err := scanPlans(rows)
	if err != nil {
		return nil, err
	}
	if len(plans) == 0 {
		return nil, ErrNotFound
	}
	return plans, nil
}

// List returns the newest plans, most recently updated first.
func (s *Store) List(ctx context.Context, limit int) ([]Plan, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		selectPlans+` ORDER BY updated_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("planstore: list plans: %w", err)
	}
	defer rows.Close()
	return scanPlans(rows)
}

const selectPlans = `SELECT id, url_key, content_hash, name, payload, created_at, updated_at FROM plans`

func scanPlans(rows *sql.Rows) ([]Plan, error) {
	var out []Plan
	for rows.Next() {
		var p Plan
		var payload string
		if err := rows.Scan(&p.ID, &p.URL, &p.ContentHash, &p.Name,
			&payload, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("planstore: scan plan: %w", err)
		}
		p.Payload = json.RawMessage(payload)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("planstore: iterate plans: %w", err)
	}
	return out, nil
}

// URLKey normalizes a URL to its retrieval key: lowercased scheme and host,
// path without trailing slash, no query or fragment. Unparsable input is
// keyed as-is.
func URLKey(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	path := strings.TrimSuffix(u.Path, "/")
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host) + path
}
