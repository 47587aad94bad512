package fulfillment

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/georgemunganga/fanbase-backend/internal/apperror"
	"github.com/georgemunganga/fanbase-backend/internal/modules/benefit"
	"github.com/georgemunganga/fanbase-backend/internal/modules/subscription"
	"github.com/georgemunganga/fanbase-backend/internal/modules/user"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryLookup(t *testing.T) {
	services := map[benefit.Type]Service{benefit.TypeCustom: NewCustomService()}
	r := NewRegistry(services)
	services[benefit.TypeAds] = NewAdsService()

	_, err := r.Lookup(benefit.TypeCustom)
	assert.NoError(t, err)

	_, err = r.Lookup(benefit.TypeAds)
	assert.ErrorIs(t, err, apperror.ErrValidation, "registry is a copy")
}

func TestRegistryRequiresUpdate(t *testing.T) {
	r := NewRegistry(map[benefit.Type]Service{
		benefit.TypeCustom:  NewCustomService(),
		benefit.TypeDiscord: NewDiscordService(newStubDiscord()),
	})
	ctx := context.Background()
	note := "new note"

	custom := &benefit.Benefit{Type: benefit.TypeCustom, Properties: benefit.CustomProperties{Note: &note}}
	changed, err := r.RequiresUpdate(ctx, custom, benefit.CustomProperties{})
	require.NoError(t, err)
	assert.False(t, changed)

	d := &benefit.Benefit{Type: benefit.TypeDiscord, Properties: benefit.DiscordProperties{GuildID: "G2", RoleID: "R1"}}
	changed, err = r.RequiresUpdate(ctx, d, benefit.DiscordProperties{GuildID: "G1", RoleID: "R1"})
	require.NoError(t, err)
	assert.True(t, changed)
}

func TestPassthroughEchoesProperties(t *testing.T) {
	svc := NewCustomService()
	in := Properties{"kept": "yes"}

	out, err := svc.Grant(context.Background(), &benefit.Benefit{}, &subscription.Subscription{}, &user.User{}, in, GrantOptions{Attempt: 1})
	require.NoError(t, err)
	assert.Equal(t, in, out)

	out["extra"] = 1
	assert.NotContains(t, in, "extra")
}

func TestBackoff(t *testing.T) {
	assert.Equal(t, 5*time.Second, Backoff(0))
	assert.Equal(t, 5*time.Second, Backoff(1))
	assert.Equal(t, 10*time.Second, Backoff(2))
	assert.Equal(t, 40*time.Second, Backoff(4))
	assert.Equal(t, 15*time.Minute, Backoff(30))
}

func TestRetryRoundsUp(t *testing.T) {
	assert.Equal(t, 1, Retry(0, nil).DeferSeconds)
	assert.Equal(t, 2, Retry(1500*time.Millisecond, nil).DeferSeconds)
	assert.Equal(t, 2*time.Second, Retry(1500*time.Millisecond, nil).Defer())
}

func articlesFixture(paid bool) (*benefit.Benefit, *subscription.Subscription, *user.User) {
	b := &benefit.Benefit{
		ID:         uuid.New(),
		Type:       benefit.TypeArticles,
		Properties: benefit.ArticlesProperties{PaidArticles: paid},
		Scope:      benefit.OrganizationScope(uuid.New()),
	}
	return b, &subscription.Subscription{ID: uuid.New()}, &user.User{ID: uuid.New()}
}

func TestArticlesGrantUpsertsAccess(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	b, sub, u := articlesFixture(true)
	mock.ExpectExec("INSERT INTO article_subscriptions").
		WithArgs(u.ID, b.Scope.ID(), true, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO article_subscriptions").
		WithArgs(u.ID, b.Scope.ID(), true, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	svc := NewArticlesService(NewArticleAccessStore(db))
	first, err := svc.Grant(context.Background(), b, sub, u, Properties{}, GrantOptions{Attempt: 1})
	require.NoError(t, err)
	second, err := svc.Grant(context.Background(), b, sub, u, first, GrantOptions{Attempt: 2})
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestArticlesRevokeKeepsAccessFromOtherGrants(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	b, sub, u := articlesFixture(true)
	mock.ExpectQuery("SELECT COUNT(.+) FROM subscription_benefit_grants").
		WithArgs(u.ID, b.Scope.ID(), sub.ID, b.ID).
		WillReturnRows(sqlmock.NewRows([]string{"count", "bool_or"}).AddRow(1, false))
	mock.ExpectExec("INSERT INTO article_subscriptions").
		WithArgs(u.ID, b.Scope.ID(), false, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, err = NewArticlesService(NewArticleAccessStore(db)).Revoke(context.Background(), b, sub, u, Properties{}, 1)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestArticlesRevokeRemovesLastAccess(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	b, sub, u := articlesFixture(false)
	mock.ExpectQuery("SELECT COUNT(.+) FROM subscription_benefit_grants").
		WillReturnRows(sqlmock.NewRows([]string{"count", "bool_or"}).AddRow(0, nil))
	mock.ExpectExec("DELETE FROM article_subscriptions").
		WithArgs(u.ID, b.Scope.ID()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, err = NewArticlesService(NewArticleAccessStore(db)).Revoke(context.Background(), b, sub, u, Properties{}, 1)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestArticlesRequiresUpdate(t *testing.T) {
	svc := NewArticlesService(nil)
	b, _, _ := articlesFixture(true)

	changed, err := svc.RequiresUpdate(context.Background(), b, benefit.ArticlesProperties{PaidArticles: false})
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = svc.RequiresUpdate(context.Background(), b, benefit.ArticlesProperties{PaidArticles: true})
	require.NoError(t, err)
	assert.False(t, changed)
}
