package remote

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"task-sync/internal/domain"
	"task-sync/internal/errors"
)

func newHTTPPair(t *testing.T, opts ...MemoryOption) (*Client, *MemoryServer) {
	t.Helper()
	server := NewMemoryServer(opts...)
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)

	client, err := NewClient(ts.URL, StaticToken("secret"), WithHTTPClient(ts.Client()))
	require.NoError(t, err)
	return client, server
}

// statusServer answers every request with status.
func statusServer(t *testing.T, status int) *Client {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte("nope"))
	}))
	t.Cleanup(ts.Close)
	client, err := NewClient(ts.URL, nil, WithHTTPClient(ts.Client()))
	require.NoError(t, err)
	return client
}

func TestNewClient_RejectsBadURL(t *testing.T) {
	for _, raw := range []string{"", "tasks.local", "ftp://tasks.local", "http://"} {
		_, err := NewClient(raw, nil)
		assert.True(t, errors.IsErrorType(err, errors.ErrorTypeInvalidInput), raw)
	}
}

func TestClient_RoundTrip(t *testing.T) {
	client, server := newHTTPPair(t, WithBearerToken("secret"))
	ctx := context.Background()

	created, err := client.Create(ctx, CreateRequest{
		EncryptedText: "enc",
		Category:      "home",
		Priority:      "high",
		Tags:          []string{"a"},
	}, "key-1")
	require.NoError(t, err)
	assert.Equal(t, "srv-1", created.ID)
	assert.Equal(t, []string{"a"}, created.Tags)

	done := true
	updated, err := client.Update(ctx, created.ID, UpdateRequest{Completed: &done}, "key-2")
	require.NoError(t, err)
	assert.True(t, updated.Completed)

	second, err := client.Create(ctx, CreateRequest{EncryptedText: "enc-2"}, "key-3")
	require.NoError(t, err)

	list, err := client.Reorder(ctx, []domain.PositionUpdate{
		{ID: second.ID, Position: 0},
		{ID: created.ID, Position: 1},
	}, "key-4")
	require.NoError(t, err)
	assert.Equal(t, []string{second.ID, created.ID}, listIDs(list))

	require.NoError(t, client.Delete(ctx, second.ID, "key-5"))

	list, err = client.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, created.ID, list[0].ID)
	assert.True(t, list[0].UpdatedAt.Equal(server.Snapshot()[0].UpdatedAt))
}

func TestClient_IdempotencyKeyHeader(t *testing.T) {
	client, server := newHTTPPair(t)
	ctx := context.Background()

	first, err := client.Create(ctx, CreateRequest{EncryptedText: "enc"}, "replayed")
	require.NoError(t, err)
	second, err := client.Create(ctx, CreateRequest{EncryptedText: "enc"}, "replayed")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, server.Snapshot(), 1)
}

func TestClient_BearerToken(t *testing.T) {
	server := NewMemoryServer(WithBearerToken("right"))
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	client, err := NewClient(ts.URL, StaticToken("wrong"))
	require.NoError(t, err)

	_, err = client.List(context.Background())
	assert.True(t, errors.IsErrorType(err, errors.ErrorTypeAuth))
}

func TestClient_StatusMapping(t *testing.T) {
	tests := []struct {
		status int
		want   errors.ErrorType
	}{
		{http.StatusUnauthorized, errors.ErrorTypeAuth},
		{http.StatusForbidden, errors.ErrorTypeAuth},
		{http.StatusNotFound, errors.ErrorTypeConflict},
		{http.StatusGone, errors.ErrorTypeConflict},
		{http.StatusRequestTimeout, errors.ErrorTypeRemoteUnavailable},
		{http.StatusTooManyRequests, errors.ErrorTypeRemoteUnavailable},
		{http.StatusInternalServerError, errors.ErrorTypeRemoteUnavailable},
		{http.StatusBadGateway, errors.ErrorTypeRemoteUnavailable},
		{http.StatusBadRequest, errors.ErrorTypeValidation},
		{http.StatusUnprocessableEntity, errors.ErrorTypeValidation},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			client := statusServer(t, tt.status)

			err := client.Delete(context.Background(), "srv-1", "k")
			require.Error(t, err)
			assert.True(t, errors.IsErrorType(err, tt.want), "got %v", err)
		})
	}
}

func TestClient_NotFoundWithoutTargetIsRetryable(t *testing.T) {
	ctx := context.Background()

	for _, status := range []int{http.StatusNotFound, http.StatusGone} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			client := statusServer(t, status)

			_, err := client.Create(ctx, CreateRequest{EncryptedText: "enc"}, "k")
			require.Error(t, err)
			assert.True(t, errors.IsErrorType(err, errors.ErrorTypeRemoteUnavailable), "got %v", err)
			assert.True(t, errors.IsRetryable(err))

			_, err = client.Reorder(ctx, []domain.PositionUpdate{{ID: "srv-1", Position: 0}}, "k")
			require.Error(t, err)
			assert.True(t, errors.IsErrorType(err, errors.ErrorTypeRemoteUnavailable), "got %v", err)

			_, err = client.Update(ctx, "srv-1", UpdateRequest{}, "k")
			assert.True(t, errors.IsErrorType(err, errors.ErrorTypeConflict), "got %v", err)
		})
	}
}

func TestClient_ValidationKeepsServerMessage(t *testing.T) {
	client, _ := newHTTPPair(t)

	_, err := client.Create(context.Background(), CreateRequest{}, "")
	require.Error(t, err)
	assert.Contains(t, errors.GetUserMessage(err), "encryptedText is required")
}

func TestClient_UnavailableServerIsRetryable(t *testing.T) {
	client, server := newHTTPPair(t)
	server.SetAvailable(false)

	_, err := client.List(context.Background())
	assert.True(t, errors.IsRetryable(err))
}

func TestClient_Timeout(t *testing.T) {
	e := echo.New()
	e.GET("/tasks", func(c echo.Context) error {
		select {
		case <-time.After(2 * time.Second):
		case <-c.Request().Context().Done():
		}
		return c.JSON(http.StatusOK, []Task{})
	})
	ts := httptest.NewServer(e)
	defer ts.Close()

	client, err := NewClient(ts.URL, nil, WithRequestTimeout(50*time.Millisecond))
	require.NoError(t, err)

	_, err = client.List(context.Background())
	assert.True(t, errors.IsErrorType(err, errors.ErrorTypeTimeout))
	assert.True(t, errors.IsRetryable(err))
}

func TestClient_ConnectionRefused(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	client, err := NewClient(url, nil)
	require.NoError(t, err)

	_, err = client.List(context.Background())
	assert.True(t, errors.IsErrorType(err, errors.ErrorTypeRemoteUnavailable))
}

func TestClient_CanceledContext(t *testing.T) {
	client, _ := newHTTPPair(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.List(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, errors.IsRetryable(err))
}
