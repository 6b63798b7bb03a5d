package kafka

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

// Handler returns nil only when the message is fully processed and its
// offset may be committed.
type Handler func(ctx context.Context, m kafka.Message) error

// Reader is the part of *kafka.Reader the consumer drives.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

const (
	retryMin = 200 * time.Millisecond
	retryMax = 10 * time.Second
)

type Consumer struct {
	r       Reader
	topic   string
	workers int
	sleep   func(ctx context.Context, d time.Duration) error

	commitMu sync.Mutex
	offsets  *offsetTracker
}

func NewConsumer(brokers []string, group, topic string, workers int) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit
	})
	return newConsumer(r, topic, workers)
}

func newConsumer(r Reader, topic string, workers int) *Consumer {
	if workers <= 0 {
		workers = 1
	}
	return &Consumer{r: r, topic: topic, workers: workers, sleep: sleepCtx, offsets: newOffsetTracker()}
}

// Start reads until ctx ends. Messages are routed to workers by key so
// messages sharing a key are handled in order. A partition's offset is only
// committed once every earlier offset of that partition has been handled.
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()

	lanes := make([]chan kafka.Message, c.workers)
	var wg sync.WaitGroup
	for i := range lanes {
		lanes[i] = make(chan kafka.Message, 128)
		wg.Add(1)
		go func(jobs <-chan kafka.Message) {
			defer wg.Done()
			for m := range jobs {
				c.handle(ctx, h, m)
			}
		}(lanes[i])
	}
	stop := func() {
		for _, l := range lanes {
			close(l)
		}
		wg.Wait()
	}

	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			stop()
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		c.offsets.fetched(m)
		select {
		case lanes[lane(m.Key, c.workers)] <- m:
		case <-ctx.Done():
			stop()
			return nil
		}
	}
}

// handle retries m in place until it succeeds or ctx ends. The lane stays
// blocked meanwhile, so later messages with the same key wait behind it.
func (c *Consumer) handle(ctx context.Context, h Handler, m kafka.Message) {
	logger := log.With().Str("topic", c.topic).Int("partition", m.Partition).Int64("offset", m.Offset).Logger()
	wait := retryMin
	for attempt := 1; ; attempt++ {
		err := h(ctx, m)
		if err == nil {
			break
		}
		logger.Error().Err(err).Int("attempt", attempt).Dur("retry_in", wait).Msg("kafka: handler failed")
		if c.sleep(ctx, wait) != nil {
			return
		}
		wait = min(wait*2, retryMax)
	}
	c.commit(ctx, m)
}

func (c *Consumer) commit(ctx context.Context, m kafka.Message) {
	c.commitMu.Lock()
	defer c.commitMu.Unlock()

	upTo, ok := c.offsets.handled(m)
	if !ok {
		return
	}
	if err := c.r.CommitMessages(ctx, upTo); err != nil && ctx.Err() == nil {
		// The next commit on this partition covers it.
		log.Error().Err(err).Str("topic", c.topic).Int("partition", upTo.Partition).Int64("offset", upTo.Offset).Msg("kafka: commit failed")
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func lane(key []byte, n int) int {
	return int(xxhash.Sum64(key) % uint64(n))
}

// offsetTracker remembers which fetched offsets of each partition are still
// in flight.
type offsetTracker struct {
	mu    sync.Mutex
	parts map[int]*partitionOffsets
}

type partitionOffsets struct {
	pending []int64 // fetch order, ascending
	done    map[int64]kafka.Message
}

func newOffsetTracker() *offsetTracker {
	return &offsetTracker{parts: map[int]*partitionOffsets{}}
}

func (t *offsetTracker) fetched(m kafka.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.parts[m.Partition]
	if !ok || (len(p.pending) > 0 && m.Offset <= p.pending[len(p.pending)-1]) {
		// New partition, or the group rewound it after a rebalance.
		p = &partitionOffsets{done: map[int64]kafka.Message{}}
		t.parts[m.Partition] = p
	}
	p.pending = append(p.pending, m.Offset)
}

// handled marks m done and returns the highest message of its partition
// whose offset and all earlier ones are done. ok is false when nothing new
// may be committed.
func (t *offsetTracker) handled(m kafka.Message) (upTo kafka.Message, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, found := t.parts[m.Partition]
	if !found {
		return kafka.Message{}, false
	}
	if _, tracked := slices.BinarySearch(p.pending, m.Offset); !tracked {
		return kafka.Message{}, false
	}
	p.done[m.Offset] = m

	n := 0
	for n < len(p.pending) {
		next, isDone := p.done[p.pending[n]]
		if !isDone {
			break
		}
		delete(p.done, p.pending[n])
		upTo, ok = next, true
		n++
	}
	p.pending = p.pending[n:]
	return upTo, ok
}
