package audit

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"buddiesfinder/internal/bucketing"
	"buddiesfinder/internal/models"
)

const defaultSinkTimeout = 3 * time.Second

// Sink stores security events. Implementations must be safe for concurrent
// use.
type Sink interface {
	Name() string
	Write(ctx context.Context, event *models.SecurityEvent) error
}

// Recorder stamps security events and fans them out to every sink. Sink
// failures are logged and never reach the caller.
type Recorder struct {
	sinks   []Sink
	buckets *bucketing.BucketingManager
	timeout time.Duration
	now     func() time.Time
	logger  *zap.Logger
}

func NewRecorder(buckets *bucketing.BucketingManager, logger *zap.Logger, sinks ...Sink) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if buckets == nil {
		buckets = bucketing.New(1)
	}
	return &Recorder{
		sinks:   sinks,
		buckets: buckets,
		timeout: defaultSinkTimeout,
		now:     time.Now,
		logger:  logger,
	}
}

func (r *Recorder) Sinks() []string {
	names := make([]string, 0, len(r.sinks))
	for _, s := range r.sinks {
		names = append(names, s.Name())
	}
	return names
}

// Record fills in identity, partition and request metadata, then writes the
// event to all sinks concurrently. It returns once every sink has finished
// or the sink timeout has passed.
func (r *Recorder) Record(ctx context.Context, event models.SecurityEvent) {
	r.stamp(ctx, &event)

	r.logger.Info("security event",
		zap.String("event_id", event.EventID),
		zap.String("event_type", string(event.EventType)),
		zap.Int64("user_id", event.UserID),
		zap.String("reason", event.Reason),
		zap.String("ip_address", event.IPAddress),
	)

	if len(r.sinks) == 0 {
		return
	}

	sinkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	var g errgroup.Group
	for _, sink := range r.sinks {
		sink := sink
		g.Go(func() error {
			if err := sink.Write(sinkCtx, &event); err != nil {
				r.logger.Error("audit sink write failed",
					zap.String("sink", sink.Name()),
					zap.String("event_id", event.EventID),
					zap.Error(err),
				)
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (r *Recorder) stamp(ctx context.Context, event *models.SecurityEvent) {
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	if event.EventTime.IsZero() {
		event.EventTime = r.now()
	}
	event.EventTime = event.EventTime.UTC()
	event.EventDate = r.buckets.GetDateBucket(event.EventTime)

	key := event.Email
	if event.UserID != 0 {
		key = strconv.FormatInt(event.UserID, 10)
	}
	event.EventBucket = r.buckets.GetEventBucket(key)

	if meta, ok := RequestMetaFrom(ctx); ok {
		if event.IPAddress == "" {
			event.IPAddress = meta.IPAddress
		}
		if event.UserAgent == "" {
			event.UserAgent = meta.UserAgent
		}
		if event.RequestID == "" {
			event.RequestID = meta.RequestID
		}
	}
}
