package service

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/snipapp/snip-server/internal/metrics"
	"github.com/snipapp/snip-server/internal/model"
	"github.com/snipapp/snip-server/internal/repository"
)

var (
	ErrLinkInactive     = errors.New("link is inactive")
	ErrLinkExpired      = errors.New("link has expired")
	ErrNotProtected     = errors.New("link is not password protected")
	ErrWrongPassword    = errors.New("incorrect password")
	ErrPasswordRequired = errors.New("link requires a password")
)

// Outcome is the terminal decision of a resolution.
type Outcome string

const (
	OutcomeRedirect      Outcome = "redirect"
	OutcomeNeedsPassword Outcome = "needs_password"
	OutcomeNeedsPreview  Outcome = "needs_preview"
)

// Resolution is the result of resolving a code. OriginalURL is populated
// only for OutcomeRedirect; interactive outcomes must not disclose it.
type Resolution struct {
	Outcome     Outcome
	Code        string
	OriginalURL string
}

// PublicInfo is the unauthenticated view of a link. It deliberately
// excludes the destination URL.
type PublicInfo struct {
	Code                string `json:"code"`
	IsPasswordProtected bool   `json:"isPasswordProtected"`
	RequirePreview      bool   `json:"requirePreview"`
	IsActive            bool   `json:"isActive"`
	IsExpired           bool   `json:"isExpired"`
}

// ResolveService applies the redirect state machine: not found, inactive,
// expired, password protected, preview required, direct redirect — in that
// order, first match wins.
type ResolveService struct {
	repo   repository.LinkRepository
	logger *zap.Logger
}

func NewResolveService(repo repository.LinkRepository) *ResolveService {
	return &ResolveService{
		repo:   repo,
		logger: zap.L().With(zap.String("component", "ResolveService")),
	}
}

// gate applies the non-interactive terminal states shared by every
// resolution path.
func (s *ResolveService) gate(link *model.Link) error {
	if !link.IsActive {
		return ErrLinkInactive
	}
	if link.IsExpired() {
		return ErrLinkExpired
	}
	return nil
}

// PublicInfo returns the flags a preview or password page needs. The link
// state is reported as-is; gating happens on the action endpoints.
func (s *ResolveService) PublicInfo(ctx context.Context, code string) (*PublicInfo, error) {
	link, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	return &PublicInfo{
		Code:                link.Code,
		IsPasswordProtected: link.IsPasswordProtected,
		RequirePreview:      link.RequirePreview,
		IsActive:            link.IsActive,
		IsExpired:           link.IsExpired(),
	}, nil
}

// Resolve handles the direct GET path. Protected and preview links yield
// an interactive outcome without recording a click; only the direct
// redirect records one.
func (s *ResolveService) Resolve(ctx context.Context, code string, meta model.ClickMeta) (*Resolution, error) {
	link, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		s.countOutcome(err)
		return nil, err
	}
	if err := s.gate(link); err != nil {
		s.countOutcome(err)
		return nil, err
	}

	if link.IsPasswordProtected {
		metrics.RedirectsTotal.WithLabelValues("needs_password").Inc()
		return &Resolution{Outcome: OutcomeNeedsPassword, Code: link.Code}, nil
	}
	if link.RequirePreview {
		metrics.RedirectsTotal.WithLabelValues("needs_preview").Inc()
		return &Resolution{Outcome: OutcomeNeedsPreview, Code: link.Code}, nil
	}

	if err := s.repo.RecordClick(ctx, link.ID, meta); err != nil {
		s.logger.Error("Failed to record click", zap.Error(err), zap.String("code", code))
		return nil, err
	}
	metrics.RedirectsTotal.WithLabelValues("redirect").Inc()
	metrics.ClicksRecordedTotal.Inc()
	return &Resolution{Outcome: OutcomeRedirect, Code: link.Code, OriginalURL: link.OriginalURL}, nil
}

// VerifyPassword checks the submitted password for a protected link. A
// mismatch records nothing and discloses nothing; a match records exactly
// one click and returns the destination.
func (s *ResolveService) VerifyPassword(ctx context.Context, code, password string, meta model.ClickMeta) (*Resolution, error) {
	link, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if err := s.gate(link); err != nil {
		return nil, err
	}
	if !link.IsPasswordProtected || link.PasswordHash == nil {
		return nil, ErrNotProtected
	}

	if err := bcrypt.CompareHashAndPassword([]byte(*link.PasswordHash), []byte(password)); err != nil {
		s.logger.Info("Password verification failed", zap.String("code", code))
		metrics.RedirectsTotal.WithLabelValues("wrong_password").Inc()
		return nil, ErrWrongPassword
	}

	if err := s.repo.RecordClick(ctx, link.ID, meta); err != nil {
		s.logger.Error("Failed to record click", zap.Error(err), zap.String("code", code))
		return nil, err
	}
	metrics.RedirectsTotal.WithLabelValues("redirect").Inc()
	metrics.ClicksRecordedTotal.Inc()
	return &Resolution{Outcome: OutcomeRedirect, Code: link.Code, OriginalURL: link.OriginalURL}, nil
}

// ConfirmPreview is the explicit confirmation for preview links. No secret
// is involved, so a successful confirmation always records one click.
// Password-protected links must go through VerifyPassword instead — the
// destination is never released without the password.
func (s *ResolveService) ConfirmPreview(ctx context.Context, code string, meta model.ClickMeta) (*Resolution, error) {
	link, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if err := s.gate(link); err != nil {
		return nil, err
	}
	if link.IsPasswordProtected {
		return nil, ErrPasswordRequired
	}

	if err := s.repo.RecordClick(ctx, link.ID, meta); err != nil {
		s.logger.Error("Failed to record click", zap.Error(err), zap.String("code", code))
		return nil, err
	}
	metrics.RedirectsTotal.WithLabelValues("redirect").Inc()
	metrics.ClicksRecordedTotal.Inc()
	return &Resolution{Outcome: OutcomeRedirect, Code: link.Code, OriginalURL: link.OriginalURL}, nil
}

func (s *ResolveService) countOutcome(err error) {
	switch {
	case errors.Is(err, repository.ErrLinkNotFound):
		metrics.RedirectsTotal.WithLabelValues("not_found").Inc()
	case errors.Is(err, ErrLinkInactive):
		metrics.RedirectsTotal.WithLabelValues("inactive").Inc()
	case errors.Is(err, ErrLinkExpired):
		metrics.RedirectsTotal.WithLabelValues("expired").Inc()
	}
}
