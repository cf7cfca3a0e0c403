package audit

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"buddiesfinder/internal/bucketing"
	"buddiesfinder/internal/models"
)

type captureSink struct {
	name string
	err  error

	mu     sync.Mutex
	events []models.SecurityEvent
}

func (s *captureSink) Name() string { return s.name }

func (s *captureSink) Write(_ context.Context, e *models.SecurityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, *e)
	return s.err
}

type blockingSink struct{}

func (blockingSink) Name() string { return "blocking" }

func (blockingSink) Write(ctx context.Context, _ *models.SecurityEvent) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestRecorderStampsAndFansOut(t *testing.T) {
	ok := &captureSink{name: "ok"}
	failing := &captureSink{name: "failing", err: errors.New("down")}
	rec := NewRecorder(bucketing.New(8), nil, ok, failing)
	at := time.Date(2026, 3, 14, 23, 30, 0, 0, time.FixedZone("UTC+8", 8*3600))
	rec.now = func() time.Time { return at }

	ctx := WithRequestMeta(context.Background(), RequestMeta{IPAddress: "10.0.0.1", UserAgent: "curl", RequestID: "req-1"})
	rec.Record(ctx, models.SecurityEvent{EventType: models.EventLoginFailed, UserID: 7, Reason: "bad_password"})

	require.Len(t, ok.events, 1)
	require.Len(t, failing.events, 1)
	e := ok.events[0]
	assert.NotEmpty(t, e.EventID)
	assert.Equal(t, "2026-03-14", e.EventDate)
	assert.Equal(t, time.UTC, e.EventTime.Location())
	assert.GreaterOrEqual(t, e.EventBucket, 0)
	assert.Less(t, e.EventBucket, 8)
	assert.Equal(t, "10.0.0.1", e.IPAddress)
	assert.Equal(t, "curl", e.UserAgent)
	assert.Equal(t, "req-1", e.RequestID)
	assert.Equal(t, []string{"ok", "failing"}, rec.Sinks())
}

func TestRecorderBoundsSlowSinks(t *testing.T) {
	fast := &captureSink{name: "fast"}
	rec := NewRecorder(nil, nil, blockingSink{}, fast)
	rec.timeout = 20 * time.Millisecond

	start := time.Now()
	rec.Record(context.Background(), models.SecurityEvent{EventType: models.EventAccountLocked, Email: "a@example.com"})
	assert.Less(t, time.Since(start), time.Second)
	assert.Len(t, fast.events, 1)
}

func TestRecorderIgnoresCanceledRequestContext(t *testing.T) {
	sink := &captureSink{name: "s"}
	rec := NewRecorder(nil, nil, sink)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec.Record(ctx, models.SecurityEvent{EventType: models.EventSessionRevoked, UserID: 1})
	assert.Len(t, sink.events, 1)
}

type fakeProducer struct {
	topic   string
	key     []byte
	value   []byte
	headers map[string]string
}

func (p *fakeProducer) ProduceMessage(_ context.Context, topic string, key, value []byte, headers map[string]string) error {
	p.topic, p.key, p.value, p.headers = topic, key, value, headers
	return nil
}

func TestKafkaSinkKeysByAccount(t *testing.T) {
	p := &fakeProducer{}
	sink := NewKafkaSink(p, "security-events")

	err := sink.Write(context.Background(), &models.SecurityEvent{EventID: "e1", EventType: models.EventOTPEnabled, UserID: 42})
	require.NoError(t, err)
	assert.Equal(t, "security-events", p.topic)
	assert.Equal(t, "42", string(p.key))
	assert.Equal(t, "otp_enabled", p.headers["event_type"])

	var decoded models.SecurityEvent
	require.NoError(t, json.Unmarshal(p.value, &decoded))
	assert.Equal(t, "e1", decoded.EventID)
}

type fakeExec struct {
	queries []string
	args    [][]any
}

func (f *fakeExec) Exec(_ context.Context, query string, args ...any) error {
	f.queries = append(f.queries, query)
	f.args = append(f.args, args)
	return nil
}

func TestClickHouseSinkCreatesTableAndInserts(t *testing.T) {
	db := &fakeExec{}
	sink, err := NewClickHouseSink(context.Background(), db)
	require.NoError(t, err)
	require.Len(t, db.queries, 1)
	assert.Contains(t, db.queries[0], "CREATE TABLE IF NOT EXISTS auth_events")

	require.NoError(t, sink.Write(context.Background(), &models.SecurityEvent{EventID: "e1", EventType: models.EventLoginSucceeded, UserID: 3}))
	require.Len(t, db.queries, 2)
	assert.Contains(t, db.queries[1], "INSERT INTO auth_events")
	assert.Equal(t, "login_succeeded", db.args[1][2])
}
