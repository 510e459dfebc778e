package spray

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/HenshawIII/Galafy/internal/auth"
	"github.com/HenshawIII/Galafy/internal/middleware"
)

const testSecret = "test-secret"

func newTestApp(t *testing.T, f *fixture) *fiber.App {
	t.Helper()
	app := fiber.New()
	h := NewHandler(f.svc)
	api := app.Group("/api/v1", middleware.JWTAuth(testSecret))
	api.Post("/events/:eventId/sprays", h.Create)
	api.Get("/events/:eventId/sprays/totals", h.Totals)
	return app
}

func bearerToken(t *testing.T, userID string) string {
	t.Helper()
	token, err := auth.SignHS256(map[string]any{"sub": userID, "type": "access"}, []byte(testSecret))
	require.NoError(t, err)
	return "Bearer " + token
}

func sprayRequest(t *testing.T, userID, key string, body map[string]any) *http.Request {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/events/ev1/sprays", bytes.NewReader(payload))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	req.Header.Set(fiber.HeaderAuthorization, bearerToken(t, userID))
	if key != "" {
		req.Header.Set(idempotencyKeyHeader, key)
	}
	return req
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestHandlerCreateSpray(t *testing.T) {
	f := newFixture(t)
	app := newTestApp(t, f)

	resp, err := app.Test(sprayRequest(t, "user-1", "http-key-1", map[string]any{
		"receiverUserId": "user-2",
		"amount":         "25.50",
		"note":           "encore",
	}))
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	body := decodeBody(t, resp)
	require.Equal(t, "74.5", body["sprayerBalance"])
	require.Equal(t, "30.5", body["receiverBalance"])

	spray := body["spray"].(map[string]any)
	require.Equal(t, "ev1", spray["eventId"])
	require.Equal(t, "25.5", spray["totalAmount"])
	require.Equal(t, "encore", spray["note"])

	totals := body["eventTotals"].(map[string]any)
	require.Equal(t, "25.5", totals["totalAmount"])
	require.Equal(t, float64(1), totals["totalCount"])
}

func TestHandlerReplaySameKey(t *testing.T) {
	f := newFixture(t)
	app := newTestApp(t, f)
	body := map[string]any{"receiverUserId": "user-2", "amount": "10.00"}

	first, err := app.Test(sprayRequest(t, "user-1", "same-key", body))
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, first.StatusCode)
	firstBody := decodeBody(t, first)

	second, err := app.Test(sprayRequest(t, "user-1", "same-key", body))
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, second.StatusCode)
	secondBody := decodeBody(t, second)

	require.Equal(t,
		firstBody["spray"].(map[string]any)["id"],
		secondBody["spray"].(map[string]any)["id"])
	require.Equal(t, firstBody["sprayerBalance"], secondBody["sprayerBalance"])
}

func TestHandlerErrorMapping(t *testing.T) {
	f := newFixture(t)
	app := newTestApp(t, f)

	cases := []struct {
		name string
		req  func() *http.Request
		want int
	}{
		{
			"no token",
			func() *http.Request {
				req := sprayRequest(t, "user-1", "k1", map[string]any{"receiverUserId": "user-2", "amount": "1.00"})
				req.Header.Del(fiber.HeaderAuthorization)
				return req
			},
			http.StatusUnauthorized,
		},
		{
			"missing idempotency key",
			func() *http.Request {
				return sprayRequest(t, "user-1", "", map[string]any{"receiverUserId": "user-2", "amount": "1.00"})
			},
			http.StatusBadRequest,
		},
		{
			"bad amount",
			func() *http.Request {
				return sprayRequest(t, "user-1", "k2", map[string]any{"receiverUserId": "user-2", "amount": "-3"})
			},
			http.StatusBadRequest,
		},
		{
			"not a participant",
			func() *http.Request {
				return sprayRequest(t, "user-outsider", "k3", map[string]any{"receiverUserId": "user-2", "amount": "1.00"})
			},
			http.StatusForbidden,
		},
		{
			"insufficient balance",
			func() *http.Request {
				return sprayRequest(t, "user-1", "k4", map[string]any{"receiverUserId": "user-2", "amount": "500.00"})
			},
			http.StatusBadRequest,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := app.Test(tc.req())
			require.NoError(t, err)
			require.Equal(t, tc.want, resp.StatusCode)
		})
	}
}

func TestHandlerTotalsEndpoint(t *testing.T) {
	f := newFixture(t)
	app := newTestApp(t, f)

	resp, err := app.Test(sprayRequest(t, "user-1", "t1", map[string]any{"receiverUserId": "user-2", "amount": "12.00"}))
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/events/ev1/sprays/totals", nil)
	req.Header.Set(fiber.HeaderAuthorization, bearerToken(t, "user-2"))
	totalsResp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, totalsResp.StatusCode)

	body := decodeBody(t, totalsResp)
	totals := body["eventTotals"].(map[string]any)
	require.Equal(t, "12", totals["totalAmount"])
	require.Equal(t, float64(1), totals["totalCount"])

	missing := httptest.NewRequest(http.MethodGet, "/api/v1/events/nope/sprays/totals", nil)
	missing.Header.Set(fiber.HeaderAuthorization, bearerToken(t, "user-2"))
	missingResp, err := app.Test(missing)
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, missingResp.StatusCode)
}
