package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/snipapp/snip-server/internal/model"
	"github.com/snipapp/snip-server/internal/repository"
	"github.com/snipapp/snip-server/internal/shortcode"
)

const testUserID = "22222222-2222-2222-2222-222222222222"

func setupLinkService(t *testing.T) (*LinkService, *MockLinkRepository) {
	logger, _ := zap.NewDevelopment()
	zap.ReplaceGlobals(logger)

	mockRepo := new(MockLinkRepository)
	return NewLinkService(mockRepo, "https://snip.sh"), mockRepo
}

func expectEmptyTrend(mockRepo *MockLinkRepository) {
	mockRepo.On("ClickEvents", mock.Anything, mock.Anything, model.MaxClickHistory).
		Return([]model.ClickEvent{}, nil).Maybe()
}

func TestCreate_GeneratedCode(t *testing.T) {
	svc, mockRepo := setupLinkService(t)
	ctx := context.Background()

	mockRepo.On("Create", ctx, mock.AnythingOfType("*model.Link")).Return(nil).Once()
	expectEmptyTrend(mockRepo)

	view, err := svc.Create(ctx, testUserID, CreateLinkInput{OriginalURL: "https://example.com/page"})

	assert.NoError(t, err)
	assert.NoError(t, shortcode.Validate(view.Code))
	assert.Len(t, view.Code, shortcode.DefaultLength)
	assert.Equal(t, "https://snip.sh/"+view.Code, view.ShortURL)
	assert.True(t, view.IsActive)
	assert.Equal(t, "default", view.Folder)
	mockRepo.AssertExpectations(t)
}

func TestCreate_NormalizesBareURL(t *testing.T) {
	svc, mockRepo := setupLinkService(t)
	ctx := context.Background()

	mockRepo.On("Create", ctx, mock.AnythingOfType("*model.Link")).Return(nil)
	expectEmptyTrend(mockRepo)

	view, err := svc.Create(ctx, testUserID, CreateLinkInput{OriginalURL: "example.com/path"})

	assert.NoError(t, err)
	assert.Equal(t, "https://example.com/path", view.OriginalURL)
}

func TestCreate_InvalidURL(t *testing.T) {
	svc, mockRepo := setupLinkService(t)
	ctx := context.Background()

	for _, rawURL := range []string{"", "   ", "https://", "not a url"} {
		_, err := svc.Create(ctx, testUserID, CreateLinkInput{OriginalURL: rawURL})
		assert.ErrorIs(t, err, ErrInvalidURL, "url: %q", rawURL)
	}
	mockRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestCreate_CustomAlias(t *testing.T) {
	svc, mockRepo := setupLinkService(t)
	ctx := context.Background()

	mockRepo.On("Create", ctx, mock.MatchedBy(func(l *model.Link) bool {
		return l.Code == "my-link"
	})).Return(nil).Once()
	expectEmptyTrend(mockRepo)

	view, err := svc.Create(ctx, testUserID, CreateLinkInput{
		OriginalURL: "https://example.com",
		CustomCode:  "my-link",
	})

	assert.NoError(t, err)
	assert.Equal(t, "my-link", view.Code)
	mockRepo.AssertExpectations(t)
}

func TestCreate_CustomAliasTaken_NoRetry(t *testing.T) {
	svc, mockRepo := setupLinkService(t)
	ctx := context.Background()

	mockRepo.On("Create", ctx, mock.AnythingOfType("*model.Link")).
		Return(repository.ErrCodeTaken)

	_, err := svc.Create(ctx, testUserID, CreateLinkInput{
		OriginalURL: "https://example.com",
		CustomCode:  "taken",
	})

	assert.ErrorIs(t, err, repository.ErrCodeTaken)
	mockRepo.AssertNumberOfCalls(t, "Create", 1)
}

func TestCreate_InvalidAliasRejectedBeforeStore(t *testing.T) {
	svc, mockRepo := setupLinkService(t)
	ctx := context.Background()

	cases := []struct {
		alias   string
		wantErr error
	}{
		{"ab", shortcode.ErrInvalidLength},
		{"this-alias-is-way-too-long-to-pass", shortcode.ErrInvalidLength},
		{"bad code", shortcode.ErrInvalidCharset},
		{"héllo", shortcode.ErrInvalidCharset},
	}
	for _, tc := range cases {
		_, err := svc.Create(ctx, testUserID, CreateLinkInput{
			OriginalURL: "https://example.com",
			CustomCode:  tc.alias,
		})
		assert.ErrorIs(t, err, tc.wantErr, "alias: %q", tc.alias)
	}
	mockRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestCreate_GeneratedCollisionRetries(t *testing.T) {
	svc, mockRepo := setupLinkService(t)
	ctx := context.Background()

	mockRepo.On("Create", ctx, mock.AnythingOfType("*model.Link")).
		Return(repository.ErrCodeTaken).Twice()
	mockRepo.On("Create", ctx, mock.AnythingOfType("*model.Link")).
		Return(nil).Once()
	expectEmptyTrend(mockRepo)

	view, err := svc.Create(ctx, testUserID, CreateLinkInput{OriginalURL: "https://example.com"})

	assert.NoError(t, err)
	assert.NotEmpty(t, view.Code)
	mockRepo.AssertNumberOfCalls(t, "Create", 3)
}

func TestCreate_GeneratedCollisionExhausted(t *testing.T) {
	svc, mockRepo := setupLinkService(t)
	ctx := context.Background()

	mockRepo.On("Create", ctx, mock.AnythingOfType("*model.Link")).
		Return(repository.ErrCodeTaken)

	_, err := svc.Create(ctx, testUserID, CreateLinkInput{OriginalURL: "https://example.com"})

	assert.ErrorIs(t, err, ErrCodeGenerationMax)
	mockRepo.AssertNumberOfCalls(t, "Create", maxCodeGenerationAttempts)
}

func TestCreate_WithPassword(t *testing.T) {
	svc, mockRepo := setupLinkService(t)
	ctx := context.Background()

	var created *model.Link
	mockRepo.On("Create", ctx, mock.AnythingOfType("*model.Link")).
		Run(func(args mock.Arguments) {
			created = args.Get(1).(*model.Link)
		}).Return(nil)
	expectEmptyTrend(mockRepo)

	_, err := svc.Create(ctx, testUserID, CreateLinkInput{
		OriginalURL: "https://example.com",
		Password:    "hunter2",
	})

	assert.NoError(t, err)
	assert.True(t, created.IsPasswordProtected)
	assert.NotNil(t, created.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(*created.PasswordHash), []byte("hunter2")))
}

func TestCreate_NormalizesTagsAndFolder(t *testing.T) {
	svc, mockRepo := setupLinkService(t)
	ctx := context.Background()

	var created *model.Link
	mockRepo.On("Create", ctx, mock.AnythingOfType("*model.Link")).
		Run(func(args mock.Arguments) {
			created = args.Get(1).(*model.Link)
		}).Return(nil)
	expectEmptyTrend(mockRepo)

	_, err := svc.Create(ctx, testUserID, CreateLinkInput{
		OriginalURL: "https://example.com",
		Tags:        []string{" Work ", "NEWS", "", "dev"},
		Folder:      "  ",
	})

	assert.NoError(t, err)
	assert.Equal(t, []string{"work", "news", "dev"}, created.Tags)
	assert.Equal(t, "default", created.Folder)
}

func TestBulkCreate_PerURLResults(t *testing.T) {
	svc, mockRepo := setupLinkService(t)
	ctx := context.Background()

	mockRepo.On("Create", ctx, mock.AnythingOfType("*model.Link")).Return(nil)
	expectEmptyTrend(mockRepo)

	results, err := svc.BulkCreate(ctx, testUserID, []string{
		"https://example.com/a",
		"https://",
		"https://example.com/b",
	}, "imports", nil)

	assert.NoError(t, err)
	assert.Len(t, results, 3)
	assert.True(t, results[0].Success)
	assert.False(t, results[1].Success)
	assert.Equal(t, "Invalid URL", results[1].Error)
	assert.True(t, results[2].Success)
}

func TestBulkCreate_RejectsOversizeBatch(t *testing.T) {
	svc, mockRepo := setupLinkService(t)
	ctx := context.Background()

	urls := make([]string, bulkCreateLimit+1)
	for i := range urls {
		urls[i] = "https://example.com"
	}

	_, err := svc.BulkCreate(ctx, testUserID, urls, "", nil)

	assert.ErrorIs(t, err, ErrInvalidURL)
	mockRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestGet_TrendAndHistoryTail(t *testing.T) {
	svc, mockRepo := setupLinkService(t)
	ctx := context.Background()

	link := activeLink()
	now := time.Now()
	events := make([]model.ClickEvent, 60)
	for i := range events {
		events[i] = model.ClickEvent{LinkID: link.ID, ClickedAt: now.Add(time.Duration(i-60) * time.Minute)}
	}

	mockRepo.On("FindByID", ctx, link.ID, testUserID).Return(link, nil)
	mockRepo.On("ClickEvents", ctx, link.ID, model.MaxClickHistory).Return(events, nil)

	detail, err := svc.Get(ctx, link.ID, testUserID)

	assert.NoError(t, err)
	assert.Len(t, detail.ClickHistory, historyPageSize)
	assert.Equal(t, events[len(events)-1].ClickedAt, detail.ClickHistory[len(detail.ClickHistory)-1].ClickedAt)
	assert.Len(t, detail.Trend, trendDays)
}

func TestGet_ForeignOwnerNotFound(t *testing.T) {
	svc, mockRepo := setupLinkService(t)
	ctx := context.Background()

	mockRepo.On("FindByID", ctx, "some-id", "other-user").Return(nil, repository.ErrLinkNotFound)

	_, err := svc.Get(ctx, "some-id", "other-user")

	assert.ErrorIs(t, err, repository.ErrLinkNotFound)
}

func TestList_Aggregates(t *testing.T) {
	svc, mockRepo := setupLinkService(t)
	ctx := context.Background()

	links := []model.Link{
		{ID: "l1", Code: "aaa111", Clicks: 5},
		{ID: "l2", Code: "bbb222", Clicks: 7},
	}
	mockRepo.On("List", ctx, testUserID, repository.LinkFilter{}).Return(links, nil)
	mockRepo.On("Folders", ctx, testUserID).Return([]string{"default", "work"}, nil)
	mockRepo.On("Tags", ctx, testUserID).Return([]string{"dev"}, nil)
	expectEmptyTrend(mockRepo)

	result, err := svc.List(ctx, testUserID, repository.LinkFilter{})

	assert.NoError(t, err)
	assert.Equal(t, 2, result.TotalLinks)
	assert.Equal(t, int64(12), result.TotalClicks)
	assert.Equal(t, []string{"default", "work"}, result.Folders)
	assert.Equal(t, []string{"dev"}, result.Tags)
}

func TestUpdate_ClearPasswordFlipsBothFields(t *testing.T) {
	svc, mockRepo := setupLinkService(t)
	ctx := context.Background()

	link := protectedLink(t, "secret")
	mockRepo.On("FindByID", ctx, link.ID, testUserID).Return(link, nil)

	var updated *model.Link
	mockRepo.On("Update", ctx, mock.AnythingOfType("*model.Link"), link.Code).
		Run(func(args mock.Arguments) {
			updated = args.Get(1).(*model.Link)
		}).Return(nil)
	expectEmptyTrend(mockRepo)

	empty := ""
	_, err := svc.Update(ctx, link.ID, testUserID, LinkPatch{Password: &empty})

	assert.NoError(t, err)
	assert.Nil(t, updated.PasswordHash)
	assert.False(t, updated.IsPasswordProtected)
}

func TestUpdate_SetPassword(t *testing.T) {
	svc, mockRepo := setupLinkService(t)
	ctx := context.Background()

	link := activeLink()
	mockRepo.On("FindByID", ctx, link.ID, testUserID).Return(link, nil)

	var updated *model.Link
	mockRepo.On("Update", ctx, mock.AnythingOfType("*model.Link"), link.Code).
		Run(func(args mock.Arguments) {
			updated = args.Get(1).(*model.Link)
		}).Return(nil)
	expectEmptyTrend(mockRepo)

	password := "new-secret"
	_, err := svc.Update(ctx, link.ID, testUserID, LinkPatch{Password: &password})

	assert.NoError(t, err)
	assert.True(t, updated.IsPasswordProtected)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(*updated.PasswordHash), []byte(password)))
}

func TestUpdate_NilFieldsLeaveLinkUnchanged(t *testing.T) {
	svc, mockRepo := setupLinkService(t)
	ctx := context.Background()

	link := activeLink()
	link.Tags = []string{"keep"}
	link.Folder = "work"
	future := time.Now().Add(time.Hour)
	link.ExpiresAt = &future

	mockRepo.On("FindByID", ctx, link.ID, testUserID).Return(link, nil)

	var updated *model.Link
	mockRepo.On("Update", ctx, mock.AnythingOfType("*model.Link"), link.Code).
		Run(func(args mock.Arguments) {
			updated = args.Get(1).(*model.Link)
		}).Return(nil)
	expectEmptyTrend(mockRepo)

	_, err := svc.Update(ctx, link.ID, testUserID, LinkPatch{})

	assert.NoError(t, err)
	assert.True(t, updated.IsActive)
	assert.Equal(t, []string{"keep"}, updated.Tags)
	assert.Equal(t, "work", updated.Folder)
	assert.Equal(t, &future, updated.ExpiresAt)
	assert.Nil(t, updated.PasswordHash)
}

func TestUpdate_ClearExpiresAt(t *testing.T) {
	svc, mockRepo := setupLinkService(t)
	ctx := context.Background()

	link := activeLink()
	future := time.Now().Add(time.Hour)
	link.ExpiresAt = &future

	mockRepo.On("FindByID", ctx, link.ID, testUserID).Return(link, nil)

	var updated *model.Link
	mockRepo.On("Update", ctx, mock.AnythingOfType("*model.Link"), link.Code).
		Run(func(args mock.Arguments) {
			updated = args.Get(1).(*model.Link)
		}).Return(nil)
	expectEmptyTrend(mockRepo)

	_, err := svc.Update(ctx, link.ID, testUserID, LinkPatch{ClearExpiresAt: true})

	assert.NoError(t, err)
	assert.Nil(t, updated.ExpiresAt)
}

func TestUpdate_PastExpiryAccepted(t *testing.T) {
	svc, mockRepo := setupLinkService(t)
	ctx := context.Background()

	link := activeLink()
	mockRepo.On("FindByID", ctx, link.ID, testUserID).Return(link, nil)
	mockRepo.On("Update", ctx, mock.AnythingOfType("*model.Link"), link.Code).Return(nil)
	expectEmptyTrend(mockRepo)

	past := time.Now().Add(-time.Hour)
	view, err := svc.Update(ctx, link.ID, testUserID, LinkPatch{ExpiresAt: &past})

	assert.NoError(t, err)
	assert.True(t, view.IsExpired())
}

func TestUpdate_RenamePassesPreviousCode(t *testing.T) {
	svc, mockRepo := setupLinkService(t)
	ctx := context.Background()

	link := activeLink()
	mockRepo.On("FindByID", ctx, link.ID, testUserID).Return(link, nil)
	mockRepo.On("Update", ctx, mock.MatchedBy(func(l *model.Link) bool {
		return l.Code == "renamed"
	}), "abc123").Return(nil)
	expectEmptyTrend(mockRepo)

	newCode := "renamed"
	view, err := svc.Update(ctx, link.ID, testUserID, LinkPatch{CustomCode: &newCode})

	assert.NoError(t, err)
	assert.Equal(t, "renamed", view.Code)
	mockRepo.AssertExpectations(t)
}

func TestUpdate_RenameToTakenCode(t *testing.T) {
	svc, mockRepo := setupLinkService(t)
	ctx := context.Background()

	link := activeLink()
	mockRepo.On("FindByID", ctx, link.ID, testUserID).Return(link, nil)
	mockRepo.On("Update", ctx, mock.AnythingOfType("*model.Link"), link.Code).
		Return(repository.ErrCodeTaken)

	newCode := "wanted"
	_, err := svc.Update(ctx, link.ID, testUserID, LinkPatch{CustomCode: &newCode})

	assert.ErrorIs(t, err, repository.ErrCodeTaken)
}

func TestDelete_ForeignOwnerNotFound(t *testing.T) {
	svc, mockRepo := setupLinkService(t)
	ctx := context.Background()

	mockRepo.On("Delete", ctx, "some-id", "other-user").Return(repository.ErrLinkNotFound)

	err := svc.Delete(ctx, "some-id", "other-user")

	assert.ErrorIs(t, err, repository.ErrLinkNotFound)
}
