package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/snipapp/snip-server/internal/metrics"
	"github.com/snipapp/snip-server/internal/model"
	"github.com/snipapp/snip-server/internal/repository"
	"github.com/snipapp/snip-server/internal/shortcode"
)

var (
	ErrInvalidURL        = errors.New("invalid URL format")
	ErrCodeGenerationMax = errors.New("failed to generate unique code after max attempts")
)

const (
	maxCodeGenerationAttempts = 5
	bulkCreateLimit           = 50
	historyPageSize           = 50
	trendDays                 = 7
)

var schemePattern = regexp.MustCompile(`(?i)^https?://`)

// CreateLinkInput carries the owner-supplied configuration for a new link.
type CreateLinkInput struct {
	OriginalURL    string
	CustomCode     string
	ExpiresAt      *time.Time
	Password       string
	RequirePreview bool
	Tags           []string
	Folder         string
}

// LinkPatch is an explicit optional-field update: nil means "leave
// unchanged". Password semantics follow the owner API: empty string clears
// the password (and the protected flag with it), non-empty sets a new one.
type LinkPatch struct {
	IsActive       *bool
	RequirePreview *bool
	Tags           []string
	Folder         *string
	ExpiresAt      *time.Time
	ClearExpiresAt bool
	Password       *string
	CustomCode     *string
}

// LinkView is a link enriched with its short URL and recent click trend.
type LinkView struct {
	model.Link
	ShortURL string  `json:"shortUrl"`
	Trend    []int64 `json:"trend"`
}

// LinkDetail adds the retained click history tail for the stats page.
type LinkDetail struct {
	LinkView
	ClickHistory []model.ClickEvent `json:"clickHistory"`
}

// ListResult aggregates a filtered listing with the owner's folder and tag
// vocabulary for the dashboard sidebar.
type ListResult struct {
	Links       []LinkView `json:"links"`
	TotalClicks int64      `json:"totalClicks"`
	TotalLinks  int        `json:"totalLinks"`
	Folders     []string   `json:"folders"`
	Tags        []string   `json:"tags"`
}

// BulkResult is the per-URL outcome of a bulk create.
type BulkResult struct {
	Success     bool      `json:"success"`
	OriginalURL string    `json:"originalUrl"`
	Link        *LinkView `json:"link,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// LinkService handles owner-scoped link management.
type LinkService struct {
	repo    repository.LinkRepository
	baseURL string
	logger  *zap.Logger
}

func NewLinkService(repo repository.LinkRepository, baseURL string) *LinkService {
	return &LinkService{
		repo:    repo,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  zap.L().With(zap.String("component", "LinkService")),
	}
}

// Create validates and persists a new link. Custom aliases fail fast on a
// taken code; generated codes are regenerated on collision, bounded.
func (s *LinkService) Create(ctx context.Context, userID string, input CreateLinkInput) (*LinkView, error) {
	originalURL, err := normalizeURL(input.OriginalURL)
	if err != nil {
		return nil, err
	}

	link := &model.Link{
		UserID:         userID,
		OriginalURL:    originalURL,
		ExpiresAt:      input.ExpiresAt,
		IsActive:       true,
		RequirePreview: input.RequirePreview,
		Tags:           normalizeTags(input.Tags),
		Folder:         normalizeFolder(input.Folder),
	}

	if password := strings.TrimSpace(input.Password); password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password: %w", err)
		}
		hashStr := string(hash)
		link.PasswordHash = &hashStr
		link.IsPasswordProtected = true
	}

	if custom := strings.TrimSpace(input.CustomCode); custom != "" {
		if err := shortcode.Validate(custom); err != nil {
			return nil, err
		}
		link.Code = custom
		if err := s.repo.Create(ctx, link); err != nil {
			return nil, err
		}
	} else if err := s.createWithGeneratedCode(ctx, link); err != nil {
		return nil, err
	}

	s.logger.Info("Link created",
		zap.String("code", link.Code),
		zap.String("user_id", userID),
	)
	metrics.LinkCreationTotal.WithLabelValues("success").Inc()
	return s.view(ctx, link), nil
}

// createWithGeneratedCode retries on collision. Uniqueness is enforced by
// the store; a taken generated code is retryable, up to the bound.
func (s *LinkService) createWithGeneratedCode(ctx context.Context, link *model.Link) error {
	for attempt := 0; attempt < maxCodeGenerationAttempts; attempt++ {
		code, err := shortcode.Generate()
		if err != nil {
			return err
		}
		link.Code = code

		err = s.repo.Create(ctx, link)
		if err == nil {
			return nil
		}
		if !errors.Is(err, repository.ErrCodeTaken) {
			return err
		}
		s.logger.Warn("Generated code collided, retrying",
			zap.String("code", code),
			zap.Int("attempt", attempt+1),
		)
	}
	metrics.LinkCreationTotal.WithLabelValues("exhausted").Inc()
	return ErrCodeGenerationMax
}

// BulkCreate shortens up to bulkCreateLimit URLs, reporting per-URL
// results instead of failing the batch.
func (s *LinkService) BulkCreate(ctx context.Context, userID string, urls []string, folder string, tags []string) ([]BulkResult, error) {
	if len(urls) > bulkCreateLimit {
		return nil, fmt.Errorf("%w: maximum %d URLs per bulk request", ErrInvalidURL, bulkCreateLimit)
	}

	results := make([]BulkResult, 0, len(urls))
	for _, rawURL := range urls {
		rawURL = strings.TrimSpace(rawURL)
		if rawURL == "" {
			continue
		}
		view, err := s.Create(ctx, userID, CreateLinkInput{
			OriginalURL: rawURL,
			Folder:      folder,
			Tags:        tags,
		})
		if err != nil {
			results = append(results, BulkResult{Success: false, OriginalURL: rawURL, Error: "Invalid URL"})
			continue
		}
		results = append(results, BulkResult{Success: true, OriginalURL: rawURL, Link: view})
	}
	return results, nil
}

// List returns the owner's links matching filter plus aggregate totals and
// the owner's full folder/tag vocabulary.
func (s *LinkService) List(ctx context.Context, userID string, filter repository.LinkFilter) (*ListResult, error) {
	links, err := s.repo.List(ctx, userID, filter)
	if err != nil {
		return nil, err
	}

	result := &ListResult{
		Links:      make([]LinkView, 0, len(links)),
		TotalLinks: len(links),
	}
	for i := range links {
		result.TotalClicks += links[i].Clicks
		result.Links = append(result.Links, *s.view(ctx, &links[i]))
	}

	if result.Folders, err = s.repo.Folders(ctx, userID); err != nil {
		return nil, err
	}
	if result.Tags, err = s.repo.Tags(ctx, userID); err != nil {
		return nil, err
	}
	return result, nil
}

// Get returns one link with its trend and recent click history.
func (s *LinkService) Get(ctx context.Context, id, userID string) (*LinkDetail, error) {
	link, err := s.repo.FindByID(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	events, err := s.repo.ClickEvents(ctx, link.ID, model.MaxClickHistory)
	if err != nil {
		return nil, err
	}

	history := events
	if len(history) > historyPageSize {
		history = history[len(history)-historyPageSize:]
	}

	return &LinkDetail{
		LinkView: LinkView{
			Link:     *link,
			ShortURL: s.shortURL(link.Code),
			Trend:    model.ClickTrend(events, trendDays),
		},
		ClickHistory: history,
	}, nil
}

// Update applies patch field-by-field and persists the result. Clearing
// the password flips both the hash and the protected flag together.
func (s *LinkService) Update(ctx context.Context, id, userID string, patch LinkPatch) (*LinkView, error) {
	link, err := s.repo.FindByID(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	prevCode := link.Code

	if patch.IsActive != nil {
		link.IsActive = *patch.IsActive
	}
	if patch.RequirePreview != nil {
		link.RequirePreview = *patch.RequirePreview
	}
	if patch.Tags != nil {
		link.Tags = normalizeTags(patch.Tags)
	}
	if patch.Folder != nil {
		link.Folder = normalizeFolder(*patch.Folder)
	}
	if patch.ClearExpiresAt {
		link.ExpiresAt = nil
	} else if patch.ExpiresAt != nil {
		link.ExpiresAt = patch.ExpiresAt
	}

	if patch.Password != nil {
		if strings.TrimSpace(*patch.Password) == "" {
			link.PasswordHash = nil
			link.IsPasswordProtected = false
		} else {
			hash, err := bcrypt.GenerateFromPassword([]byte(*patch.Password), bcrypt.DefaultCost)
			if err != nil {
				return nil, fmt.Errorf("failed to hash password: %w", err)
			}
			hashStr := string(hash)
			link.PasswordHash = &hashStr
			link.IsPasswordProtected = true
		}
	}

	if patch.CustomCode != nil && *patch.CustomCode != link.Code {
		if err := shortcode.Validate(*patch.CustomCode); err != nil {
			return nil, err
		}
		link.Code = *patch.CustomCode
	}

	if err := s.repo.Update(ctx, link, prevCode); err != nil {
		return nil, err
	}
	return s.view(ctx, link), nil
}

// Delete removes the owner's link and its click history.
func (s *LinkService) Delete(ctx context.Context, id, userID string) error {
	return s.repo.Delete(ctx, id, userID)
}

func (s *LinkService) shortURL(code string) string {
	return s.baseURL + "/" + code
}

// view decorates a link with its short URL and 7-day trend. A trend read
// failure degrades to a zero trend rather than failing the request.
func (s *LinkService) view(ctx context.Context, link *model.Link) *LinkView {
	events, err := s.repo.ClickEvents(ctx, link.ID, model.MaxClickHistory)
	if err != nil {
		s.logger.Warn("Failed to load click events for trend", zap.Error(err), zap.String("code", link.Code))
		events = nil
	}
	return &LinkView{
		Link:     *link,
		ShortURL: s.shortURL(link.Code),
		Trend:    model.ClickTrend(events, trendDays),
	}
}

// normalizeURL forces a scheme onto bare host URLs and validates the
// result.
func normalizeURL(rawURL string) (string, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return "", ErrInvalidURL
	}
	if !schemePattern.MatchString(rawURL) {
		rawURL = "https://" + rawURL
	}

	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", ErrInvalidURL
	}
	return rawURL, nil
}

// normalizeTags lowercases and trims tags, dropping empties while
// preserving order.
func normalizeTags(tags []string) []string {
	normalized := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag != "" {
			normalized = append(normalized, tag)
		}
	}
	return normalized
}

func normalizeFolder(folder string) string {
	folder = strings.TrimSpace(folder)
	if folder == "" {
		return "default"
	}
	return folder
}
