package scheduler

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ifiokjr/verily/internal/platform/database"
	"github.com/ifiokjr/verily/internal/platform/metrics"
	"github.com/ifiokjr/verily/internal/store"
)

func newHandle(t *testing.T) database.Handle {
	t.Helper()
	h, err := database.SetupMemory(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func scrape(t *testing.T, m *metrics.Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	return rec.Body.String()
}

func TestHealthCheck(t *testing.T) {
	h := newHandle(t)
	m := metrics.New()
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))

	job := HealthCheck(h, m, log, time.Second)
	require.NoError(t, job(context.Background()))
	assert.Contains(t, scrape(t, m), "verily_db_up 1")

	require.NoError(t, h.Close())
	err := job(context.Background())
	require.Error(t, err)

	out := buf.String()
	assert.Contains(t, out, "database unhealthy")
	assert.Contains(t, out, "retryable=true")
	assert.Contains(t, out, "error.type=db")
	assert.Contains(t, out, "error.db=connection")

	body := scrape(t, m)
	assert.Contains(t, body, "verily_db_up 0")
	assert.Contains(t, body, `verily_errors_total{source="health",type="db"} 1`)
}

func TestPurgeRefreshTokens(t *testing.T) {
	ctx := context.Background()
	h := newHandle(t)
	u, err := store.NewUsers(h).Create(ctx, "ada", "hash")
	require.NoError(t, err)

	tokens := store.NewRefreshTokens(h)
	now := time.Now()
	old, err := tokens.Create(ctx, u.ID, now.Add(-30*24*time.Hour), "")
	require.NoError(t, err)
	fresh, err := tokens.Create(ctx, u.ID, now.Add(time.Hour), "")
	require.NoError(t, err)

	var buf bytes.Buffer
	job := PurgeRefreshTokens(tokens, slog.New(slog.NewTextHandler(&buf, nil)), purgeGrace, func() time.Time { return now })
	require.NoError(t, job(ctx))
	assert.Contains(t, buf.String(), "count=1")

	_, err = tokens.Get(ctx, old.ID)
	assert.Error(t, err)
	_, err = tokens.Get(ctx, fresh.ID)
	assert.NoError(t, err)
}

func TestStart(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := newHandle(t)
	m := metrics.New()

	_, _, err := Start(context.Background(), log, Jobs{DB: h, Metrics: m, HealthSchedule: "whenever"})
	require.Error(t, err)

	s, stop, err := Start(context.Background(), log, Jobs{DB: h, Metrics: m, HealthSchedule: "@every 1s", HealthTimeout: time.Second})
	require.NoError(t, err)
	assert.Len(t, s.cron.Entries(), 2)

	require.Eventually(t, func() bool {
		return strings.Contains(scrape(t, m), "verily_db_up 1")
	}, 3*time.Second, 50*time.Millisecond)

	stop(time.Second)
	assert.False(t, s.IsRunning())
}
