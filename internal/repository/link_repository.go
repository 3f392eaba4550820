package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/snipapp/snip-server/internal/model"
)

var (
	ErrLinkNotFound  = errors.New("link not found")
	ErrCodeTaken     = errors.New("short code already taken")
	ErrDatabaseError = errors.New("database error")
)

const (
	cacheTimeout = 10 * time.Minute
	dbTimeout    = 5 * time.Second

	uniqueViolation = "23505"
)

// LinkFilter restricts List results. Zero values mean "no restriction".
type LinkFilter struct {
	Folder string
	Tag    string
	Search string
}

// LinkRepository defines the interface for link data operations
type LinkRepository interface {
	Create(ctx context.Context, link *model.Link) error
	FindByCode(ctx context.Context, code string) (*model.Link, error)
	FindByID(ctx context.Context, id, userID string) (*model.Link, error)
	List(ctx context.Context, userID string, filter LinkFilter) ([]model.Link, error)
	Folders(ctx context.Context, userID string) ([]string, error)
	Tags(ctx context.Context, userID string) ([]string, error)
	Update(ctx context.Context, link *model.Link, prevCode string) error
	Delete(ctx context.Context, id, userID string) error
	RecordClick(ctx context.Context, linkID string, meta model.ClickMeta) error
	ClickEvents(ctx context.Context, linkID string, limit int) ([]model.ClickEvent, error)
	CrossedThreshold(ctx context.Context, userID string, threshold int64) ([]model.Link, error)
	SetLastNotified(ctx context.Context, linkID string, clicks int64) error
}

// PostgresLinkRepository implements LinkRepository using PostgreSQL with a
// Redis cache-aside on code lookups.
type PostgresLinkRepository struct {
	db          *pgxpool.Pool
	redisClient *redis.Client
	logger      *zap.Logger
}

// NewPostgresLinkRepository creates a new PostgresLinkRepository
func NewPostgresLinkRepository(db *pgxpool.Pool, redisClient *redis.Client) *PostgresLinkRepository {
	return &PostgresLinkRepository{
		db:          db,
		redisClient: redisClient,
		logger:      zap.L().With(zap.String("component", "PostgresLinkRepository")),
	}
}

const linkColumns = `id, user_id, original_url, code, clicks, expires_at, is_active,
	password_hash, is_password_protected, require_preview, tags, folder,
	last_notified_clicks, created_at, updated_at`

func scanLink(row pgx.Row) (*model.Link, error) {
	link := &model.Link{}
	err := row.Scan(
		&link.ID, &link.UserID, &link.OriginalURL, &link.Code, &link.Clicks,
		&link.ExpiresAt, &link.IsActive, &link.PasswordHash,
		&link.IsPasswordProtected, &link.RequirePreview, &link.Tags,
		&link.Folder, &link.LastNotifiedClicks, &link.CreatedAt, &link.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return link, nil
}

// Create inserts a new link. A unique violation on the code column is
// reported as ErrCodeTaken so the caller can decide between regenerating
// and surfacing the error.
func (r *PostgresLinkRepository) Create(ctx context.Context, link *model.Link) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	query := `
		INSERT INTO links (user_id, original_url, code, expires_at, is_active,
			password_hash, is_password_protected, require_preview, tags, folder)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, clicks, last_notified_clicks, created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		link.UserID, link.OriginalURL, link.Code, link.ExpiresAt, link.IsActive,
		link.PasswordHash, link.IsPasswordProtected, link.RequirePreview,
		link.Tags, link.Folder,
	).Scan(&link.ID, &link.Clicks, &link.LastNotifiedClicks, &link.CreatedAt, &link.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			r.logger.Info("Code collision on insert", zap.String("code", link.Code))
			return ErrCodeTaken
		}
		r.logger.Error("Failed to insert link", zap.Error(err), zap.String("code", link.Code))
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}

	return nil
}

// cachedLink mirrors model.Link for cache storage. The model hides
// PasswordHash and UserID from JSON, but the cache needs the full row.
type cachedLink struct {
	ID                  string     `json:"id"`
	UserID              string     `json:"user_id"`
	OriginalURL         string     `json:"original_url"`
	Code                string     `json:"code"`
	Clicks              int64      `json:"clicks"`
	ExpiresAt           *time.Time `json:"expires_at"`
	IsActive            bool       `json:"is_active"`
	PasswordHash        *string    `json:"password_hash"`
	IsPasswordProtected bool       `json:"is_password_protected"`
	RequirePreview      bool       `json:"require_preview"`
	Tags                []string   `json:"tags"`
	Folder              string     `json:"folder"`
	LastNotifiedClicks  int64      `json:"last_notified_clicks"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

func toCached(link *model.Link) *cachedLink {
	return (*cachedLink)(link)
}

func fromCached(c *cachedLink) *model.Link {
	return (*model.Link)(c)
}

func cacheKey(code string) string {
	return "link:" + code
}

// FindByCode retrieves a link by its short code, checking cache first.
func (r *PostgresLinkRepository) FindByCode(ctx context.Context, code string) (*model.Link, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if r.redisClient != nil {
		val, err := r.redisClient.Get(ctx, cacheKey(code)).Bytes()
		if err == nil {
			cached := &cachedLink{}
			if err := json.Unmarshal(val, cached); err == nil {
				r.logger.Debug("Link found in cache", zap.String("code", code))
				return fromCached(cached), nil
			}
		} else if err != redis.Nil {
			r.logger.Warn("Cache error", zap.Error(err), zap.String("code", code))
		}
	}

	query := fmt.Sprintf(`SELECT %s FROM links WHERE code = $1`, linkColumns)
	link, err := scanLink(r.db.QueryRow(ctx, query, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.Debug("Link not found", zap.String("code", code))
			return nil, ErrLinkNotFound
		}
		r.logger.Error("Database query error", zap.Error(err), zap.String("code", code))
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}

	r.cacheLink(ctx, link)
	return link, nil
}

func (r *PostgresLinkRepository) cacheLink(ctx context.Context, link *model.Link) {
	if r.redisClient == nil {
		return
	}
	data, err := json.Marshal(toCached(link))
	if err != nil {
		return
	}
	if err := r.redisClient.Set(ctx, cacheKey(link.Code), data, cacheTimeout).Err(); err != nil {
		r.logger.Warn("Failed to cache link", zap.Error(err), zap.String("code", link.Code))
	}
}

func (r *PostgresLinkRepository) invalidate(ctx context.Context, codes ...string) {
	if r.redisClient == nil {
		return
	}
	for _, code := range codes {
		if code == "" {
			continue
		}
		if err := r.redisClient.Del(ctx, cacheKey(code)).Err(); err != nil {
			r.logger.Warn("Failed to invalidate cached link", zap.Error(err), zap.String("code", code))
		}
	}
}

// FindByID retrieves a link by id scoped to its owner. A foreign owner's
// link is indistinguishable from a missing one.
func (r *PostgresLinkRepository) FindByID(ctx context.Context, id, userID string) (*model.Link, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	query := fmt.Sprintf(`SELECT %s FROM links WHERE id = $1 AND user_id = $2`, linkColumns)
	link, err := scanLink(r.db.QueryRow(ctx, query, id, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLinkNotFound
		}
		r.logger.Error("Database query error", zap.Error(err), zap.String("id", id))
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return link, nil
}

// List returns the owner's links, newest first, restricted by filter.
// Search is a case-insensitive substring match over URL, code, and tags.
func (r *PostgresLinkRepository) List(ctx context.Context, userID string, filter LinkFilter) ([]model.Link, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	query := fmt.Sprintf(`SELECT %s FROM links WHERE user_id = $1`, linkColumns)
	args := []interface{}{userID}

	if filter.Folder != "" {
		args = append(args, filter.Folder)
		query += fmt.Sprintf(" AND folder = $%d", len(args))
	}
	if filter.Tag != "" {
		args = append(args, filter.Tag)
		query += fmt.Sprintf(" AND $%d = ANY(tags)", len(args))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		n := len(args)
		query += fmt.Sprintf(` AND (original_url ILIKE $%d OR code ILIKE $%d
			OR EXISTS (SELECT 1 FROM unnest(tags) AS t WHERE t ILIKE $%d))`, n, n, n)
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list links", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	var links []model.Link
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
		}
		links = append(links, *link)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return links, nil
}

// Folders returns the distinct folder labels used by the owner's links.
func (r *PostgresLinkRepository) Folders(ctx context.Context, userID string) ([]string, error) {
	return r.distinct(ctx, `SELECT DISTINCT folder FROM links WHERE user_id = $1 ORDER BY folder`, userID)
}

// Tags returns the distinct tags used by the owner's links.
func (r *PostgresLinkRepository) Tags(ctx context.Context, userID string) ([]string, error) {
	return r.distinct(ctx, `SELECT DISTINCT unnest(tags) AS tag FROM links WHERE user_id = $1 ORDER BY tag`, userID)
}

func (r *PostgresLinkRepository) distinct(ctx context.Context, query, userID string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

// Update persists the mutable fields of link. prevCode is the code before
// the update so a renamed link's stale cache entry is dropped too.
func (r *PostgresLinkRepository) Update(ctx context.Context, link *model.Link, prevCode string) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	query := `
		UPDATE links
		SET original_url = $1, code = $2, expires_at = $3, is_active = $4,
			password_hash = $5, is_password_protected = $6, require_preview = $7,
			tags = $8, folder = $9, updated_at = NOW()
		WHERE id = $10 AND user_id = $11`

	result, err := r.db.Exec(ctx, query,
		link.OriginalURL, link.Code, link.ExpiresAt, link.IsActive,
		link.PasswordHash, link.IsPasswordProtected, link.RequirePreview,
		link.Tags, link.Folder, link.ID, link.UserID,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrCodeTaken
		}
		r.logger.Error("Failed to update link", zap.Error(err), zap.String("id", link.ID))
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	if result.RowsAffected() == 0 {
		return ErrLinkNotFound
	}

	r.invalidate(ctx, prevCode, link.Code)
	return nil
}

// Delete removes the owner's link. Click events cascade.
func (r *PostgresLinkRepository) Delete(ctx context.Context, id, userID string) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var code string
	err := r.db.QueryRow(ctx,
		`DELETE FROM links WHERE id = $1 AND user_id = $2 RETURNING code`, id, userID).Scan(&code)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrLinkNotFound
		}
		r.logger.Error("Failed to delete link", zap.Error(err), zap.String("id", id))
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}

	r.invalidate(ctx, code)
	return nil
}

// RecordClick applies the whole click mutation in one transaction:
// increment the counter, append the event, trim history to the newest
// MaxClickHistory rows. The increment is a single UPDATE expression, so
// concurrent clicks on the same link never lose counts.
func (r *PostgresLinkRepository) RecordClick(ctx context.Context, linkID string, meta model.ClickMeta) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tx, err := r.db.Begin(ctx)
	if err != nil {
		r.logger.Error("Failed to start transaction", zap.Error(err))
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	defer tx.Rollback(ctx)

	result, err := tx.Exec(ctx,
		`UPDATE links SET clicks = clicks + 1, updated_at = NOW() WHERE id = $1`, linkID)
	if err != nil {
		r.logger.Error("Failed to increment clicks", zap.Error(err), zap.String("link_id", linkID))
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	if result.RowsAffected() == 0 {
		return ErrLinkNotFound
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO link_clicks (link_id, ip, user_agent, referrer) VALUES ($1, $2, $3, $4)`,
		linkID, meta.IP, meta.UserAgent, meta.Referrer)
	if err != nil {
		r.logger.Error("Failed to insert click event", zap.Error(err), zap.String("link_id", linkID))
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}

	_, err = tx.Exec(ctx, `
		DELETE FROM link_clicks
		WHERE link_id = $1 AND id NOT IN (
			SELECT id FROM link_clicks WHERE link_id = $1 ORDER BY id DESC LIMIT $2
		)`, linkID, model.MaxClickHistory)
	if err != nil {
		r.logger.Error("Failed to trim click history", zap.Error(err), zap.String("link_id", linkID))
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}

	if err := tx.Commit(ctx); err != nil {
		r.logger.Error("Failed to commit click", zap.Error(err), zap.String("link_id", linkID))
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return nil
}

// ClickEvents returns the newest limit click events, oldest first.
func (r *PostgresLinkRepository) ClickEvents(ctx context.Context, linkID string, limit int) ([]model.ClickEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := r.db.Query(ctx, `
		SELECT id, link_id, clicked_at, ip, user_agent, referrer
		FROM (
			SELECT id, link_id, clicked_at, ip, user_agent, referrer
			FROM link_clicks WHERE link_id = $1 ORDER BY id DESC LIMIT $2
		) newest
		ORDER BY id ASC`, linkID, limit)
	if err != nil {
		r.logger.Error("Failed to get click events", zap.Error(err), zap.String("link_id", linkID))
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	var events []model.ClickEvent
	for rows.Next() {
		var e model.ClickEvent
		if err := rows.Scan(&e.ID, &e.LinkID, &e.ClickedAt, &e.IP, &e.UserAgent, &e.Referrer); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// CrossedThreshold returns the owner's links whose click counter has moved
// at least threshold past the last notified snapshot.
func (r *PostgresLinkRepository) CrossedThreshold(ctx context.Context, userID string, threshold int64) ([]model.Link, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	query := fmt.Sprintf(`
		SELECT %s FROM links
		WHERE user_id = $1 AND clicks >= $2 AND clicks >= last_notified_clicks + $2`,
		linkColumns)

	rows, err := r.db.Query(ctx, query, userID, threshold)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	var links []model.Link
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
		}
		links = append(links, *link)
	}
	return links, rows.Err()
}

// SetLastNotified snapshots the click counter after a digest notification.
// Owned by the digest scanner; the redirect path never writes this column.
func (r *PostgresLinkRepository) SetLastNotified(ctx context.Context, linkID string, clicks int64) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err := r.db.Exec(ctx,
		`UPDATE links SET last_notified_clicks = $1 WHERE id = $2`, clicks, linkID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return nil
}
