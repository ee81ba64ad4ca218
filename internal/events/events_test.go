package events

import (
	"bytes"
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/pdf2cbz/internal/domain"
	"github.com/spherical/pdf2cbz/internal/observability"
)

type recorder struct {
	mu     sync.Mutex
	events []domain.StageEvent
}

func (r *recorder) Emit(_ context.Context, e domain.StageEvent) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func event(stage domain.Stage, reason domain.Reason) domain.StageEvent {
	return domain.StageEvent{JobID: uuid.New(), Source: "book.pdf", Stage: stage, Reason: reason, Timestamp: time.Now()}
}

func TestMulti_FansOutInOrder(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	m := NewMulti(a, nil, b)

	m.Emit(context.Background(), event(domain.StageExtracting, ""))
	m.Emit(context.Background(), event(domain.StageDone, ""))

	for _, r := range []*recorder{a, b} {
		require.Len(t, r.events, 2)
		assert.Equal(t, domain.StageExtracting, r.events[0].Stage)
		assert.Equal(t, domain.StageDone, r.events[1].Stage)
	}
}

func TestFunc(t *testing.T) {
	var got string
	Func(func(_ context.Context, e domain.StageEvent) { got = e.String() }).
		Emit(context.Background(), event(domain.StageFailed, domain.ReasonFilesMissing))
	assert.Equal(t, "failed:files missing", got)

	Discard{}.Emit(context.Background(), event(domain.StageDone, ""))
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	logger := observability.NewLogger(observability.LogConfig{Level: "info", Format: "json", Output: &buf})

	NewLogSink(logger).Emit(context.Background(), event(domain.StageFailed, domain.ReasonInsufficientSpace))

	out := buf.String()
	assert.Contains(t, out, `"stage":"failed"`)
	assert.Contains(t, out, `"reason":"insufficient space"`)
	assert.Contains(t, out, "failed:insufficient space")
	assert.True(t, strings.Contains(out, `"level":"warn"`))
}

func TestRedisSink_PublishSubscribe(t *testing.T) {
	addr := os.Getenv("REDIS_URL")
	if addr == "" {
		t.Skip("REDIS_URL not set")
	}

	sink, err := NewRedisSink(RedisConfig{
		Addr:    strings.TrimPrefix(addr, "redis://"),
		Channel: "pdf2cbz:test:" + uuid.NewString(),
	}, nil)
	require.NoError(t, err)
	defer sink.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ch, stop, err := sink.Subscribe(ctx)
	require.NoError(t, err)
	defer stop()

	sent := event(domain.StageRecompressing, "")
	sink.Emit(ctx, sent)

	select {
	case got := <-ch:
		assert.Equal(t, sent.JobID, got.JobID)
		assert.Equal(t, domain.StageRecompressing, got.Stage)
	case <-ctx.Done():
		t.Fatal("no event received")
	}
}

func TestNewRedisSink_Unreachable(t *testing.T) {
	_, err := NewRedisSink(RedisConfig{
		Addr:  "127.0.0.1:1",
		Retry: RetryConfig{MaxRetries: 1, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond},
	}, nil)
	assert.ErrorContains(t, err, "after 1 retries")
}
