package grant

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/georgemunganga/fanbase-backend/internal/apperror"
	"github.com/georgemunganga/fanbase-backend/internal/identity"
	"github.com/georgemunganga/fanbase-backend/internal/modules/fulfillment"
	"github.com/georgemunganga/fanbase-backend/internal/modules/user"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var grantRowColumns = []string{"id", "subscription_id", "subscription_benefit_id", "user_id", "state",
	"properties", "granted_at", "revoked_at", "created_at", "updated_at"}

func TestGetGrant(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	id, subID, benefitID, userID := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	now := time.Now()
	mock.ExpectQuery("SELECT (.+) FROM subscription_benefit_grants WHERE subscription_id").
		WithArgs(subID, benefitID).
		WillReturnRows(sqlmock.NewRows(grantRowColumns).
			AddRow(id.String(), subID.String(), benefitID.String(), userID.String(), "granted",
				[]byte(`{"guild_id":"G1","role_id":"R1"}`), now, nil, now, now))

	g, err := NewPostgresRepository(db).GetGrant(context.Background(), subID, benefitID)
	require.NoError(t, err)
	assert.Equal(t, StateGranted, g.State)
	assert.Equal(t, "R1", g.Properties.String("role_id"))
	assert.NotNil(t, g.GrantedAt)
	assert.Nil(t, g.RevokedAt)
}

func TestGetGrantMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT (.+) FROM subscription_benefit_grants").WillReturnError(sql.ErrNoRows)
	_, err = NewPostgresRepository(db).GetGrant(context.Background(), uuid.New(), uuid.New())
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestUpsertGrant(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	g := &Grant{
		ID: uuid.New(), SubscriptionID: uuid.New(), BenefitID: uuid.New(), UserID: uuid.New(),
		State: StateGranted, Properties: fulfillment.Properties{"account_id": "D1"}, GrantedAt: &now,
	}
	mock.ExpectQuery("INSERT INTO subscription_benefit_grants (.+) ON CONFLICT").
		WithArgs(g.ID, g.SubscriptionID, g.BenefitID, g.UserID, StateGranted, `{"account_id":"D1"}`,
			sqlmock.AnyArg(), nil).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).
			AddRow(g.ID.String(), now, now))

	require.NoError(t, NewPostgresRepository(db).UpsertGrant(context.Background(), g))
	assert.Equal(t, now, g.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListGrantedByBenefit(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	benefitID := uuid.New()
	now := time.Now()
	mock.ExpectQuery("SELECT (.+) FROM subscription_benefit_grants WHERE subscription_benefit_id").
		WithArgs(benefitID, StateGranted).
		WillReturnRows(sqlmock.NewRows(grantRowColumns).
			AddRow(uuid.NewString(), uuid.NewString(), benefitID.String(), uuid.NewString(), "granted",
				[]byte(`{}`), now, nil, now, now).
			AddRow(uuid.NewString(), uuid.NewString(), benefitID.String(), uuid.NewString(), "granted",
				[]byte(`{}`), now, nil, now, now))

	grants, err := NewPostgresRepository(db).ListGrantedByBenefit(context.Background(), benefitID)
	require.NoError(t, err)
	assert.Len(t, grants, 2)
}

type stubService struct {
	grants []*Grant
	result *ReconcileResult
	err    error
}

func (s *stubService) ListGrants(ctx context.Context, subject *user.User, subscriptionID uuid.UUID) ([]*Grant, error) {
	return s.grants, s.err
}

func (s *stubService) ReconcileSubscription(ctx context.Context, subject *user.User, subscriptionID uuid.UUID) (*ReconcileResult, error) {
	return s.result, s.err
}

type stubUsers struct {
	user.Service
	users map[uuid.UUID]*user.User
}

func (s *stubUsers) GetUser(ctx context.Context, id uuid.UUID) (*user.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, apperror.NotFound("user")
	}
	return u, nil
}

func TestHandlerRoutes(t *testing.T) {
	svc := &stubService{
		grants: []*Grant{{ID: uuid.New(), State: StateGranted}},
		result: &ReconcileResult{Grants: 2},
	}
	caller := &user.User{ID: uuid.New()}
	r := chi.NewRouter()
	NewHandler(svc, &stubUsers{users: map[uuid.UUID]*user.User{caller.ID: caller}}).RegisterRoutes(r)
	subID := uuid.NewString()
	request := func(method, target string) *http.Request {
		req := httptest.NewRequest(method, target, strings.NewReader(""))
		return req.WithContext(identity.WithUserID(req.Context(), caller.ID))
	}

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, request(http.MethodGet, "/api/v1/subscriptions/"+subID+"/grants"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"state":"granted"`)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, request(http.MethodPost, "/api/v1/subscriptions/"+subID+"/reconcile"))
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"grants":2,"revokes":0}`, rec.Body.String())

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, request(http.MethodGet, "/api/v1/subscriptions/nope/grants"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/subscriptions/"+subID+"/grants", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	svc.err = apperror.NotFound("subscription")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, request(http.MethodPost, "/api/v1/subscriptions/"+subID+"/reconcile"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
