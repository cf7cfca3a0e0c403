package bucketing

import (
	"hash"
	"sync"
	"time"

	"github.com/spaolacci/murmur3"

	"buddiesfinder/internal/config"
)

// BucketingManager spreads partition keys over a fixed number of buckets with
// murmur3 so wide rows in the event store stay bounded.
type BucketingManager struct {
	eventBuckets int
	hasherPool   sync.Pool
}

func NewBucketingManager(cfg *config.Config) *BucketingManager {
	return New(cfg.Bucketing.EventBuckets)
}

func New(eventBuckets int) *BucketingManager {
	if eventBuckets < 1 {
		eventBuckets = 1
	}
	return &BucketingManager{
		eventBuckets: eventBuckets,
		hasherPool: sync.Pool{
			New: func() any { return murmur3.New64() },
		},
	}
}

// GetEventBucket buckets an event by its identifier (account id or email).
func (bm *BucketingManager) GetEventBucket(identifier string) int {
	return bm.getBucket(identifier, bm.eventBuckets)
}

// GetDateBucket is the UTC calendar day partition of t.
func (bm *BucketingManager) GetDateBucket(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func (bm *BucketingManager) EventBuckets() int { return bm.eventBuckets }

func (bm *BucketingManager) getBucket(key string, numBuckets int) int {
	hasher := bm.hasherPool.Get().(hash.Hash64)
	defer bm.hasherPool.Put(hasher)

	hasher.Reset()
	_, _ = hasher.Write([]byte(key))
	return int(hasher.Sum64() % uint64(numBuckets))
}
