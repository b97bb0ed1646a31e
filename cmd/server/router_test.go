package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"verigate/internal/admission"
	"verigate/internal/ledger"
	ledgerstore "verigate/internal/ledger/store"
	"verigate/internal/platform/config"
	jwttoken "verigate/internal/platform/jwt"
	ratelimitmw "verigate/internal/ratelimit/middleware"
	"verigate/internal/ratelimit/store/bucket"
	"verigate/internal/reward"
	"verigate/internal/verification/service"
	id "verigate/pkg/domain"
	"verigate/pkg/platform/audit/publisher"
	auditmemory "verigate/pkg/platform/audit/store/memory"
	"verigate/pkg/testutil"
)

const (
	testAdminToken   = "operator-secret"
	testAttemptLimit = 3
)

type pendingFetcher struct{}

func (pendingFetcher) FetchStatus(context.Context, string) (*reward.Status, error) {
	return &reward.Status{CurrentStep: "pending"}, nil
}

type testServer struct {
	handler http.Handler
	jwt     *jwttoken.JWTService
}

func newTestServer(t *testing.T, health func(context.Context) error) *testServer {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	auditPublisher := publisher.NewPublisher(auditmemory.NewInMemoryStore())
	gateway, err := ledger.New(ledgerstore.NewInMemory(), ledger.WithLogger(log), ledger.WithAuditor(auditPublisher))
	require.NoError(t, err)

	controller := admission.New(20, admission.WithLogger(log))
	poller, err := reward.NewPoller(pendingFetcher{},
		reward.WithLogger(log),
		reward.WithInterval(time.Millisecond),
		reward.WithMaxWait(5*time.Millisecond),
	)
	require.NoError(t, err)

	runner, err := service.New(gateway,
		buildVerifiers(config.VerificationConfig{}, log),
		service.AdmissionGate(controller),
		service.WithLogger(log),
		service.WithAuditPublisher(auditPublisher),
		service.WithRewardPoller(poller),
	)
	require.NoError(t, err)

	jwt := jwttoken.NewJWTService("test-key", "verigate", "verigate")
	return &testServer{
		jwt: jwt,
		handler: newRouter(routerDeps{
			logger:     log,
			adminToken: testAdminToken,
			jwt:        jwt,
			runner:     runner,
			throttle:   ratelimitmw.New(bucket.NewInMemoryBucketStore(), testAttemptLimit, time.Minute, log),
			ledger:     gateway,
			audit:      auditPublisher,
			controller: controller,
			health:     health,
		}),
	}
}

func (s *testServer) asUser(t *testing.T, req *http.Request, userID id.UserID) *http.Request {
	t.Helper()
	token, err := s.jwt.GenerateAccessToken(userID, time.Hour)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func asAdmin(req *http.Request) *http.Request {
	return testutil.AsAdmin(req, testAdminToken)
}

func TestRouter_VerificationLifecycle(t *testing.T) {
	srv := newTestServer(t, nil)

	rr := testutil.DoRequest(srv.handler, asAdmin(testutil.NewJSONRequest(t, http.MethodPut, "/admin/users/501",
		map[string]any{"username": "grace", "initial_balance": 5})))
	testutil.AssertStatusOK(t, rr)

	rr = testutil.DoRequest(srv.handler, srv.asUser(t, testutil.NewJSONRequest(t, http.MethodPost, "/v1/verifications",
		map[string]string{
			"category": "gemini_one_pro",
			"url":      "https://services.sheerid.com/verify/x/?verificationId=aaaaaaaaaaaaaaaaaaaaaaaa",
		}), 501))
	testutil.AssertStatusOK(t, rr)
	testutil.AssertJSONContains(t, rr, "outcome", "success")
	testutil.AssertJSONContains(t, rr, "balance", float64(0))

	rr = testutil.DoRequest(srv.handler, srv.asUser(t, testutil.NewJSONRequest(t, http.MethodPost, "/v1/verifications",
		map[string]string{
			"category": "gemini_one_pro",
			"url":      "https://services.sheerid.com/verify/x/?verificationId=bbbbbbbbbbbbbbbbbbbbbbbb",
		}), 501))
	testutil.AssertStatusAndError(t, rr, http.StatusPaymentRequired, "insufficient_balance")

	rr = testutil.DoRequest(srv.handler, srv.asUser(t, testutil.NewRequest(t, http.MethodGet, "/v1/me/verifications"), 501))
	testutil.AssertStatusOK(t, rr)
	assert.Contains(t, rr.Body.String(), `"status":"success"`)

	rr = testutil.DoRequest(srv.handler, asAdmin(testutil.NewRequest(t, http.MethodGet, "/admin/users/501/audit")))
	testutil.AssertStatusOK(t, rr)
	assert.Contains(t, rr.Body.String(), "verification_settled")
	assert.Contains(t, rr.Body.String(), "reservation_declined")
}

func TestRouter_DelayedCodeStaysPending(t *testing.T) {
	srv := newTestServer(t, nil)
	testutil.DoRequest(srv.handler, asAdmin(testutil.NewJSONRequest(t, http.MethodPut, "/admin/users/502",
		map[string]any{"initial_balance": 10})))

	rr := testutil.DoRequest(srv.handler, srv.asUser(t, testutil.NewJSONRequest(t, http.MethodPost, "/v1/verifications",
		map[string]string{
			"category": "bolt_teacher",
			"url":      "https://services.sheerid.com/verify/x/?verificationId=cccccccccccccccccccccccc",
		}), 502))
	testutil.AssertStatusOK(t, rr)
	testutil.AssertJSONContains(t, rr, "reward_pending", true)
	testutil.AssertJSONContains(t, rr, "refunded", false)

	rr = testutil.DoRequest(srv.handler, srv.asUser(t,
		testutil.NewRequest(t, http.MethodGet, "/v1/verifications/cccccccccccccccccccccccc/reward"), 502))
	testutil.AssertStatusOK(t, rr)
	testutil.AssertJSONContains(t, rr, "status", "pending")
}

func TestRouter_ThrottlesAttempts(t *testing.T) {
	srv := newTestServer(t, nil)
	testutil.DoRequest(srv.handler, asAdmin(testutil.NewJSONRequest(t, http.MethodPut, "/admin/users/503",
		map[string]any{"initial_balance": 0})))

	attempt := func() *http.Request {
		return srv.asUser(t, testutil.NewJSONRequest(t, http.MethodPost, "/v1/verifications",
			map[string]string{
				"category": "gemini_one_pro",
				"url":      "https://services.sheerid.com/verify/x/?verificationId=dddddddddddddddddddddddd",
			}), 503)
	}
	for range testAttemptLimit {
		rr := testutil.DoRequest(srv.handler, attempt())
		testutil.AssertStatusAndError(t, rr, http.StatusPaymentRequired, "insufficient_balance")
	}

	rr := testutil.DoRequest(srv.handler, attempt())
	testutil.AssertStatusAndError(t, rr, http.StatusTooManyRequests, "rate_limited")
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))

	rr = testutil.DoRequest(srv.handler, srv.asUser(t, testutil.NewRequest(t, http.MethodGet, "/v1/me/verifications"), 503))
	testutil.AssertStatusOK(t, rr)
}

func TestRouter_Guards(t *testing.T) {
	srv := newTestServer(t, nil)

	rr := testutil.DoRequest(srv.handler, testutil.NewRequest(t, http.MethodGet, "/v1/me/balance"))
	testutil.AssertStatus(t, rr, http.StatusUnauthorized)

	rr = testutil.DoRequest(srv.handler, testutil.NewRequest(t, http.MethodGet, "/admin/concurrency"))
	testutil.AssertStatus(t, rr, http.StatusUnauthorized)

	rr = testutil.DoRequest(srv.handler, asAdmin(testutil.NewRequest(t, http.MethodGet, "/admin/concurrency")))
	testutil.AssertStatusOK(t, rr)
	testutil.AssertJSONContains(t, rr, "budget", float64(20))
}

func TestRouter_Health(t *testing.T) {
	rr := testutil.DoRequest(newTestServer(t, nil).handler, testutil.NewRequest(t, http.MethodGet, "/healthz"))
	testutil.AssertStatusOK(t, rr)

	failing := func(context.Context) error { return errors.New("redis down") }
	rr = testutil.DoRequest(newTestServer(t, failing).handler, testutil.NewRequest(t, http.MethodGet, "/healthz"))
	testutil.AssertStatus(t, rr, http.StatusServiceUnavailable)
}

func TestRouter_CheckInAndBlockedList(t *testing.T) {
	srv := newTestServer(t, nil)
	testutil.DoRequest(srv.handler, asAdmin(testutil.NewJSONRequest(t, http.MethodPut, "/admin/users/503",
		map[string]any{"username": "linus"})))

	rr := testutil.DoRequest(srv.handler, srv.asUser(t, testutil.NewRequest(t, http.MethodPost, "/v1/me/checkin"), 503))
	testutil.AssertStatusOK(t, rr)
	testutil.AssertJSONContains(t, rr, "balance", float64(1))

	rr = testutil.DoRequest(srv.handler, srv.asUser(t, testutil.NewRequest(t, http.MethodPost, "/v1/me/checkin"), 503))
	testutil.AssertStatusAndError(t, rr, http.StatusConflict, "conflict")

	rr = testutil.DoRequest(srv.handler, asAdmin(testutil.NewRequest(t, http.MethodPost, "/admin/users/503/block")))
	testutil.AssertStatusOK(t, rr)

	rr = testutil.DoRequest(srv.handler, asAdmin(testutil.NewRequest(t, http.MethodGet, "/admin/users/blocked")))
	testutil.AssertStatusOK(t, rr)
	assert.Contains(t, rr.Body.String(), `"user_id":"503"`)
	assert.Contains(t, rr.Body.String(), `"username":"linus"`)
}
