package ginee

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/onchainyaotoshi/sync-ginee-orders-server/internal/config"
	"github.com/onchainyaotoshi/sync-ginee-orders-server/internal/failure"
	"github.com/onchainyaotoshi/sync-ginee-orders-server/internal/projection"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGinee struct {
	t        *testing.T
	mu       sync.Mutex
	requests []map[string]interface{}
	handle   func(path string, body map[string]interface{}) (int, interface{})
}

func (f *fakeGinee) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	mac := hmac.New(sha256.New, []byte("secret"))
	mac.Write([]byte(r.Method + "$" + r.URL.Path + "$"))
	want := "access:" + base64.StdEncoding.EncodeToString(mac.Sum(nil))
	assert.Equal(f.t, want, r.Header.Get("Authorization"))
	assert.Equal(f.t, "ID", r.Header.Get("X-Advai-Country"))

	var body map[string]interface{}
	assert.NoError(f.t, json.NewDecoder(r.Body).Decode(&body))

	f.mu.Lock()
	f.requests = append(f.requests, body)
	f.mu.Unlock()

	status, resp := f.handle(r.URL.Path, body)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

func success(data interface{}) map[string]interface{} {
	return map[string]interface{}{"code": "SUCCESS", "message": "OK", "data": data}
}

func newTestClient(t *testing.T, handle func(string, map[string]interface{}) (int, interface{})) (*Client, *fakeGinee) {
	t.Helper()
	fake := &fakeGinee{t: t, handle: handle}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	loc, err := time.LoadLocation("Asia/Jakarta")
	require.NoError(t, err)

	c, err := NewClient(&config.GineeConfig{
		BaseURL:   srv.URL,
		AccessKey: "access",
		SecretKey: "secret",
		Country:   "ID",
		PageSize:  2,
		Timeout:   5 * time.Second,
	}, loc)
	require.NoError(t, err)
	return c, fake
}

func TestNewClientRequiresCredentials(t *testing.T) {
	_, err := NewClient(&config.GineeConfig{AccessKey: "a"}, nil)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
	assert.ErrorIs(t, err, ErrMissingCredentials)
}

func TestFetchByDatePaginates(t *testing.T) {
	c, fake := newTestClient(t, func(path string, body map[string]interface{}) (int, interface{}) {
		assert.Equal(t, listOrderPath, path)
		switch body["nextCursor"] {
		case nil:
			return http.StatusOK, success(map[string]interface{}{
				"content":    []map[string]interface{}{{"orderId": "A"}, {"orderId": "B"}},
				"nextCursor": "c1",
			})
		case "c1":
			return http.StatusOK, success(map[string]interface{}{
				"content":    []map[string]interface{}{{"orderId": "C"}},
				"nextCursor": nil,
			})
		}
		return http.StatusBadRequest, map[string]interface{}{"code": "BAD_CURSOR"}
	})

	day := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	records, err := c.FetchByDate(context.Background(), day)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "C", records[2]["orderId"])

	require.Len(t, fake.requests, 2)
	first := fake.requests[0]
	assert.Equal(t, "2024-01-01T17:00:00.000Z", first["createSince"])
	assert.Equal(t, "2024-01-02T16:59:59.999Z", first["createTo"])
	assert.EqualValues(t, 2, first["size"])
	assert.NotContains(t, first, "lastUpdateSince")
}

func TestFetchByWindowUsesUpdateFilters(t *testing.T) {
	c, fake := newTestClient(t, func(string, map[string]interface{}) (int, interface{}) {
		return http.StatusOK, success(map[string]interface{}{"content": []interface{}{}})
	})

	since := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	records, err := c.FetchByWindow(context.Background(), since, since.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, records)
	require.Len(t, fake.requests, 1)
	assert.Equal(t, "2024-01-01T10:00:00.000Z", fake.requests[0]["lastUpdateSince"])
	assert.Equal(t, "2024-01-01T11:00:00.000Z", fake.requests[0]["lastUpdateTo"])
	assert.NotContains(t, fake.requests[0], "createSince")
}

func TestFetchRejectsNonArrayContent(t *testing.T) {
	c, _ := newTestClient(t, func(string, map[string]interface{}) (int, interface{}) {
		return http.StatusOK, success(map[string]interface{}{"content": map[string]interface{}{"orderId": "A"}})
	})
	_, err := c.FetchByDate(context.Background(), time.Now())
	assert.ErrorIs(t, err, projection.ErrShape)
}

func TestFetchReportsAPIErrors(t *testing.T) {
	testCases := []struct {
		name   string
		status int
		body   interface{}
		code   string
	}{
		{name: "error code", status: http.StatusOK, body: map[string]interface{}{"code": "INVALID_SIGN", "message": "bad sign"}, code: "INVALID_SIGN"},
		{name: "http error", status: http.StatusTooManyRequests, body: map[string]interface{}{"code": "RATE_LIMIT"}, code: "RATE_LIMIT"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c, _ := newTestClient(t, func(string, map[string]interface{}) (int, interface{}) {
				return tc.status, tc.body
			})
			_, err := c.FetchByDate(context.Background(), time.Now())

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tc.code, apiErr.Code)
			assert.Equal(t, tc.status, apiErr.StatusCode)

			payload := failure.Decode(failure.Serialize(err))
			require.NotNil(t, payload)
			assert.Equal(t, "UpstreamError", payload.Kind)
		})
	}
}

func TestFetchDetailsChunks(t *testing.T) {
	c, fake := newTestClient(t, func(path string, body map[string]interface{}) (int, interface{}) {
		assert.Equal(t, batchGetPath, path)
		ids := body["orderIds"].([]interface{})
		out := make([]map[string]interface{}, 0, len(ids))
		for _, id := range ids {
			out = append(out, map[string]interface{}{"orderId": id, "items": []interface{}{}})
		}
		return http.StatusOK, success(out)
	})

	ids := make([]string, 250)
	for i := range ids {
		ids[i] = fmt.Sprintf("O-%03d", i)
	}
	records, err := c.FetchDetails(context.Background(), ids)
	require.NoError(t, err)
	assert.Len(t, records, 250)

	require.Len(t, fake.requests, 3)
	assert.Len(t, fake.requests[0]["orderIds"], 100)
	assert.Len(t, fake.requests[2]["orderIds"], 50)
}
