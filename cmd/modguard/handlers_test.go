package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sbnz-social/modguard/moderation"
	"github.com/sbnz-social/modguard/moderation/cachestore"
	"github.com/sbnz-social/modguard/moderation/eventstore"
	"github.com/sbnz-social/modguard/moderation/suspendstore"
	"github.com/sbnz-social/modguard/moderation/userdir"
)

var testNow = time.Date(2024, 3, 14, 12, 0, 0, 0, time.UTC)

const testAdminToken = "test-admin-token"

func testServer(t *testing.T) *Server {
	stores := &Stores{
		Users: userdir.NewMemDirectory(
			userdir.User{ID: "alice", FirstName: "Alice", LastName: "Anić", Email: "alice@example.com"},
			userdir.User{ID: "bob", FirstName: "Bob", LastName: "Babić", Email: "bob@example.com"},
		),
		Events:      eventstore.NewMemEventStore(),
		Suspensions: suspendstore.NewMemSuspendStore(),
		Cache:       cachestore.NewMemCacheStore(100, time.Minute),
	}
	svc, err := moderation.NewService(moderation.ServiceConfig{
		Users:           stores.Users,
		Events:          stores.Events,
		Suspensions:     stores.Suspensions,
		TriggerInterval: time.Hour,
		Now:             func() time.Time { return testNow },
	})
	require.NoError(t, err)
	t.Cleanup(svc.Close)

	return newServer(svc, stores, Config{
		AdminToken:        testAdminToken,
		MetricsRegisterer: prometheus.NewRegistry(),
	}, slog.Default())
}

func doRequest(srv *Server, method, path, body, token string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestHealthCheck(t *testing.T) {
	srv := testServer(t)
	rec := doRequest(srv, http.MethodGet, "/_health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReportEndpoint(t *testing.T) {
	assert := assert.New(t)
	srv := testServer(t)

	rec := doRequest(srv, http.MethodPost, "/api/moderation/reports", `{"authorId":"alice","reporterId":"bob","postId":"p1"}`, "")
	assert.Equal(http.StatusCreated, rec.Code)
	n, err := srv.svc.Events.ReportsAgainst(context.Background(), "alice", time.Time{})
	assert.NoError(err)
	assert.Equal(1, n)

	rec = doRequest(srv, http.MethodPost, "/api/moderation/reports", `{"authorId":"alice","reporterId":"mallory","postId":"p1"}`, "")
	assert.Equal(http.StatusNotFound, rec.Code)

	rec = doRequest(srv, http.MethodPost, "/api/moderation/reports", `{"authorId":"alice"}`, "")
	assert.Equal(http.StatusBadRequest, rec.Code)

	rec = doRequest(srv, http.MethodPost, "/api/moderation/reports", `{"authorId":`, "")
	assert.Equal(http.StatusBadRequest, rec.Code)
}

func TestBlockEndpoint(t *testing.T) {
	assert := assert.New(t)
	srv := testServer(t)

	rec := doRequest(srv, http.MethodPost, "/api/moderation/blocks", `{"blockerId":"bob","targetId":"alice"}`, "")
	assert.Equal(http.StatusCreated, rec.Code)

	rec = doRequest(srv, http.MethodPost, "/api/moderation/blocks", `{"blockerId":"bob","targetId":"bob"}`, "")
	assert.Equal(http.StatusBadRequest, rec.Code)

	var body GenericError
	assert.NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(body.Message, "block themselves")
}

func TestSuspensionStatus(t *testing.T) {
	assert := assert.New(t)
	srv := testServer(t)
	until := testNow.Add(24 * time.Hour)
	_, err := suspendstore.SuspendPosting(context.Background(), srv.svc.Suspensions, "alice", until)
	require.NoError(t, err)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/api/moderation/suspensions/:userId")
	c.SetParamNames("userId")
	c.SetParamValues("alice")

	assert.NoError(srv.HandleSuspensionStatus(c))
	assert.Equal(http.StatusOK, rec.Code)

	var resp SuspensionResponse
	assert.NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal("alice", resp.UserID)
	assert.True(resp.PostingSuspended)
	assert.Equal(until.UnixMilli(), resp.PostingBanUntilMs)
	assert.False(resp.LoginSuspended)
	assert.Equal(int64(0), resp.LoginBanUntilMs)
}

func TestAdminAuth(t *testing.T) {
	assert := assert.New(t)
	srv := testServer(t)

	rec := doRequest(srv, http.MethodPost, "/api/admin/detect", "", "wrong-token")
	assert.Equal(http.StatusUnauthorized, rec.Code)

	rec = doRequest(srv, http.MethodPost, "/api/admin/detect", "", "")
	assert.NotEqual(http.StatusOK, rec.Code)

	srv.adminToken = ""
	rec = doRequest(srv, http.MethodPost, "/api/admin/detect", "", testAdminToken)
	assert.Equal(http.StatusUnauthorized, rec.Code)
}

func TestDetectAndFlagsEndpoints(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	srv := testServer(t)

	for i := 1; i <= 6; i++ {
		require.NoError(t, srv.svc.RecordReportAt(ctx, "alice", "bob", "p1", testNow.Add(-time.Duration(i)*time.Hour)))
	}

	rec := doRequest(srv, http.MethodPost, "/api/admin/detect", "", testAdminToken)
	assert.Equal(http.StatusOK, rec.Code)
	var flags []flagOut
	assert.NoError(json.Unmarshal(rec.Body.Bytes(), &flags))
	require.Len(t, flags, 1)
	assert.Equal("alice", flags[0].UserID)
	assert.Equal("5+ prijava u 24h", flags[0].Reason)
	assert.Equal(testNow.Add(24*time.Hour).UnixMilli(), flags[0].UntilMs)

	// a second forced pass with no new events finds nothing
	rec = doRequest(srv, http.MethodPost, "/api/admin/detect", "", testAdminToken)
	assert.Equal(http.StatusOK, rec.Code)
	assert.JSONEq(`[]`, rec.Body.String())

	rec = doRequest(srv, http.MethodGet, "/api/admin/mod/flags?sinceHours=168&limit=10", "", testAdminToken)
	assert.Equal(http.StatusOK, rec.Code)
	var hist []flagOut
	assert.NoError(json.Unmarshal(rec.Body.Bytes(), &hist))
	require.Len(t, hist, 1)
	assert.Equal("Alice", hist[0].FirstName)
	assert.Equal("alice@example.com", hist[0].Email)

	// far past the duration range; clamped rather than wrapping to a negative window
	rec = doRequest(srv, http.MethodGet, "/api/admin/mod/flags?sinceHours=5000000", "", testAdminToken)
	assert.Equal(http.StatusOK, rec.Code)
	hist = nil
	assert.NoError(json.Unmarshal(rec.Body.Bytes(), &hist))
	assert.Len(hist, 1)

	rec = doRequest(srv, http.MethodGet, "/api/admin/mod/flags?limit=nope", "", testAdminToken)
	assert.Equal(http.StatusBadRequest, rec.Code)

	rec = doRequest(srv, http.MethodGet, "/api/moderation/suspensions/alice", "", "")
	assert.Equal(http.StatusOK, rec.Code)
	assert.Contains(rec.Body.String(), `"postingSuspended":true`)
}

func TestRequestValidator(t *testing.T) {
	assert := assert.New(t)
	rv := newRequestValidator()

	assert.NoError(rv.Validate(&BlockRequest{BlockerID: "bob", TargetID: "alice"}))

	err := rv.Validate(&BlockRequest{BlockerID: "bob"})
	var he *echo.HTTPError
	assert.ErrorAs(err, &he)
	assert.Equal(http.StatusBadRequest, he.Code)

	long := make([]byte, 200)
	for i := range long {
		long[i] = 'x'
	}
	assert.Error(rv.Validate(&ReportRequest{AuthorID: string(long), ReporterID: "bob", PostID: "p1"}))
}
