package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/snipapp/snip-server/internal/model"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrEmailTaken   = errors.New("email already registered")
)

// PreferencesPatch names each preference field individually so updates are
// applied field-by-field instead of merging an arbitrary key map.
type PreferencesPatch struct {
	DarkMode        *bool
	EmailDigest     *bool
	DigestThreshold *int64
}

type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByID(ctx context.Context, id string) (*model.User, error)
	ListDigestUsers(ctx context.Context) ([]model.User, error)
	UpdatePreferences(ctx context.Context, id string, patch PreferencesPatch) (*model.User, error)
	SetLastDigestSent(ctx context.Context, id string, at time.Time) error
}

type userRepository struct {
	db *pgxpool.Pool
}

func NewUserRepository(db *pgxpool.Pool) UserRepository {
	return &userRepository{db: db}
}

const userColumns = `id, name, email, password_hash, dark_mode, email_digest,
	digest_threshold, last_digest_sent_at, created_at`

func scanUser(row pgx.Row) (*model.User, error) {
	user := &model.User{}
	err := row.Scan(
		&user.ID, &user.Name, &user.Email, &user.PasswordHash,
		&user.Preferences.DarkMode, &user.Preferences.EmailDigest,
		&user.Preferences.DigestThreshold, &user.LastDigestSentAt, &user.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (r *userRepository) Create(ctx context.Context, user *model.User) error {
	query := `
		INSERT INTO users (name, email, password_hash, dark_mode, email_digest, digest_threshold)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`

	err := r.db.QueryRow(ctx, query,
		user.Name, user.Email, user.PasswordHash,
		user.Preferences.DarkMode, user.Preferences.EmailDigest, user.Preferences.DigestThreshold,
	).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrEmailTaken
		}
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE email = $1`, userColumns)
	user, err := scanUser(r.db.QueryRow(ctx, query, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return user, nil
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*model.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE id = $1`, userColumns)
	user, err := scanUser(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return user, nil
}

// ListDigestUsers returns users who opted into the click digest.
func (r *userRepository) ListDigestUsers(ctx context.Context) ([]model.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE email_digest = TRUE`, userColumns)

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
		}
		users = append(users, *user)
	}
	return users, rows.Err()
}

// UpdatePreferences applies only the fields present in patch and returns
// the updated user.
func (r *userRepository) UpdatePreferences(ctx context.Context, id string, patch PreferencesPatch) (*model.User, error) {
	query := fmt.Sprintf(`
		UPDATE users SET
			dark_mode = COALESCE($1, dark_mode),
			email_digest = COALESCE($2, email_digest),
			digest_threshold = COALESCE($3, digest_threshold)
		WHERE id = $4
		RETURNING %s`, userColumns)

	user, err := scanUser(r.db.QueryRow(ctx, query,
		patch.DarkMode, patch.EmailDigest, patch.DigestThreshold, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return user, nil
}

func (r *userRepository) SetLastDigestSent(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.Exec(ctx, `UPDATE users SET last_digest_sent_at = $1 WHERE id = $2`, at, id)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return nil
}
