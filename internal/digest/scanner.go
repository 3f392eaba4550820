// Package digest runs the periodic click-digest scan: it reads click
// counters, decides which links crossed their owner's notification
// threshold, and snapshots the notified count. It only ever reads the
// counters the redirect path writes; the redirect path never touches the
// notification snapshot.
package digest

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/snipapp/snip-server/internal/metrics"
	"github.com/snipapp/snip-server/internal/model"
	"github.com/snipapp/snip-server/internal/repository"
)

const defaultThreshold = 100

// Notifier delivers a digest to a user. Email delivery lives outside this
// service; LogNotifier is the in-process implementation.
type Notifier interface {
	NotifyDigest(ctx context.Context, user *model.User, links []model.Link) error
}

// LogNotifier records digests in the application log.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{logger: zap.L().Named("DigestNotifier")}
}

func (n *LogNotifier) NotifyDigest(ctx context.Context, user *model.User, links []model.Link) error {
	codes := make([]string, 0, len(links))
	for _, link := range links {
		codes = append(codes, link.Code)
	}
	n.logger.Info("Click digest",
		zap.String("email", user.Email),
		zap.Strings("codes", codes),
	)
	return nil
}

// Scanner is the periodic digest job.
type Scanner struct {
	linkRepo repository.LinkRepository
	userRepo repository.UserRepository
	notifier Notifier
	interval time.Duration
	logger   *zap.Logger
}

func NewScanner(linkRepo repository.LinkRepository, userRepo repository.UserRepository, notifier Notifier, interval time.Duration) *Scanner {
	return &Scanner{
		linkRepo: linkRepo,
		userRepo: userRepo,
		notifier: notifier,
		interval: interval,
		logger:   zap.L().Named("DigestScanner"),
	}
}

// Start runs the scan loop until ctx is cancelled.
func (s *Scanner) Start(ctx context.Context) {
	s.logger.Info("Click digest scanner started", zap.Duration("interval", s.interval))
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Click digest scanner stopped")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single scan over all digest-enabled users.
func (s *Scanner) RunOnce(ctx context.Context) {
	users, err := s.userRepo.ListDigestUsers(ctx)
	if err != nil {
		s.logger.Error("Failed to list digest users", zap.Error(err))
		return
	}

	for i := range users {
		if err := s.scanUser(ctx, &users[i]); err != nil {
			s.logger.Error("Digest scan failed for user",
				zap.Error(err),
				zap.String("email", users[i].Email),
			)
		}
	}
}

func (s *Scanner) scanUser(ctx context.Context, user *model.User) error {
	threshold := user.Preferences.DigestThreshold
	if threshold <= 0 {
		threshold = defaultThreshold
	}

	links, err := s.linkRepo.CrossedThreshold(ctx, user.ID, threshold)
	if err != nil {
		return err
	}
	if len(links) == 0 {
		return nil
	}

	if err := s.notifier.NotifyDigest(ctx, user, links); err != nil {
		// Snapshots stay untouched so the next run retries.
		return err
	}
	metrics.DigestNotificationsTotal.Inc()

	for _, link := range links {
		if err := s.linkRepo.SetLastNotified(ctx, link.ID, link.Clicks); err != nil {
			s.logger.Error("Failed to snapshot notified clicks",
				zap.Error(err),
				zap.String("code", link.Code),
			)
		}
	}
	return s.userRepo.SetLastDigestSent(ctx, user.ID, time.Now())
}
