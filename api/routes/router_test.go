package routes

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/clubpay-backend/internal/dbtest"
	"github.com/angelmondragon/clubpay-backend/internal/ledger"
	"github.com/angelmondragon/clubpay-backend/internal/members"
	"github.com/angelmondragon/clubpay-backend/internal/memberships"
	"github.com/angelmondragon/clubpay-backend/internal/reconcile"
	stripewebhook "github.com/angelmondragon/clubpay-backend/internal/webhooks/stripe"
	pkgAuth "github.com/angelmondragon/clubpay-backend/pkg/auth"
	"github.com/angelmondragon/clubpay-backend/pkg/config"
	"github.com/angelmondragon/clubpay-backend/pkg/enums"
	"github.com/angelmondragon/clubpay-backend/pkg/logger"
	"github.com/angelmondragon/clubpay-backend/pkg/metrics"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error { return nil }

type stubReconciler struct{ runs int }

func (s *stubReconciler) Run(context.Context) (reconcile.SyncResult, error) {
	s.runs++
	return reconcile.SyncResult{MembersScanned: 1}, nil
}

type stubWebhookService struct{}

func (stubWebhookService) HandleEvent(context.Context, *stripe.Event) (stripewebhook.Outcome, error) {
	return stripewebhook.OutcomeIgnored, nil
}

type rejectingVerifier struct{}

func (rejectingVerifier) ConstructEvent([]byte, string) (stripe.Event, error) {
	return stripe.Event{}, io.ErrUnexpectedEOF
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test"},
		JWT: config.JWTConfig{Secret: "secret", Issuer: "clubpay", ExpirationMinutes: 60},
	}
}

func buildToken(t *testing.T, cfg *config.Config, role enums.StaffRole) string {
	t.Helper()
	token, err := pkgAuth.NewKeys(cfg.JWT).Mint(time.Now(), pkgAuth.AccessTokenPayload{
		UserID: uuid.New(),
		Email:  string(role) + "@club.org",
		Role:   role,
	})
	require.NoError(t, err)
	return token
}

type testRouter struct {
	handler    http.Handler
	reconciler *stubReconciler
	cfg        *config.Config
}

func newTestRouter(t *testing.T) *testRouter {
	t.Helper()
	conn := dbtest.Open(t)
	memberRepo := members.NewRepository(conn)
	ledgerSvc, err := ledger.NewService(ledger.ServiceParams{Repo: ledger.NewRepository(conn), Members: memberRepo})
	require.NoError(t, err)
	msSvc, err := memberships.NewService(memberships.ServiceParams{Repo: memberships.NewRepository(conn), Members: memberRepo})
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	webhookMetrics := metrics.NewWebhookMetrics(reg)
	webhookMetrics.Observe("invoice.paid", metrics.OutcomeProcessed, time.Millisecond)

	cfg := testConfig()
	reconciler := &stubReconciler{}
	handler := NewRouter(Params{
		Config:         cfg,
		Logger:         logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		DB:             stubPinger{},
		Redis:          stubPinger{},
		Gatherer:       reg,
		Ledger:         ledgerSvc,
		Members:        memberRepo,
		Memberships:    msSvc,
		Reconciler:     reconciler,
		StripeVerifier: rejectingVerifier{},
		StripeWebhooks: stubWebhookService{},
		WebhookMetrics: webhookMetrics,
	})
	return &testRouter{handler: handler, reconciler: reconciler, cfg: cfg}
}

func (tr *testRouter) serve(t *testing.T, method, target string, role enums.StaffRole, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if role != "" {
		req.Header.Set("Authorization", "Bearer "+buildToken(t, tr.cfg, role))
	}
	rec := httptest.NewRecorder()
	tr.handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthAndMetrics(t *testing.T) {
	tr := newTestRouter(t)

	require.Equal(t, http.StatusOK, tr.serve(t, http.MethodGet, "/health/live", "", "").Code)
	require.Equal(t, http.StatusOK, tr.serve(t, http.MethodGet, "/health/ready", "", "").Code)

	rec := tr.serve(t, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "clubpay_stripe_webhook_events_total")
}

func TestAdminRoutesRequireToken(t *testing.T) {
	tr := newTestRouter(t)
	rec := tr.serve(t, http.MethodGet, "/api/admin/v1/charges", "", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestCommitteeReadsButCannotMutate(t *testing.T) {
	tr := newTestRouter(t)

	require.Equal(t, http.StatusOK, tr.serve(t, http.MethodGet, "/api/admin/v1/charges", enums.StaffRoleCommittee, "").Code)
	require.Equal(t, http.StatusOK, tr.serve(t, http.MethodGet, "/api/admin/v1/charges/aggregates", enums.StaffRoleCommittee, "").Code)
	require.Equal(t, http.StatusForbidden, tr.serve(t, http.MethodPost, "/api/admin/v1/reconcile", enums.StaffRoleCommittee, "").Code)
	require.Equal(t, http.StatusForbidden, tr.serve(t, http.MethodPost, "/api/admin/v1/charges", enums.StaffRoleCommittee, `{}`).Code)
	require.Zero(t, tr.reconciler.runs)
}

func TestTreasurerTriggersReconcile(t *testing.T) {
	tr := newTestRouter(t)
	rec := tr.serve(t, http.MethodPost, "/api/admin/v1/reconcile", enums.StaffRoleTreasurer, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Contains(t, rec.Body.String(), `"members_scanned":1`)
	require.Equal(t, 1, tr.reconciler.runs)
}

func TestStripeWebhookRouteIsPublicAndVerifies(t *testing.T) {
	tr := newTestRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", strings.NewReader(`{}`))
	req.Header.Set("Stripe-Signature", "t=1,v1=bad")
	rec := httptest.NewRecorder()
	tr.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
