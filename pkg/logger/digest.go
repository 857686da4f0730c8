package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"os"
	"sort"
	"sync"
	"time"
)

// Publisher ships a digest batch. kafka.Producer satisfies it.
type Publisher interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
}

type DigestConfig struct {
	Interval    time.Duration // flush period, default 30s
	MaxDistinct int           // flush once this many distinct lines are held, default 100
	Topic       string
	Source      string // message key, usually the service name
	Publisher   Publisher
}

// DigestEntry is one distinct error line and how often it repeated.
type DigestEntry struct {
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields"`
	Caller    string                 `json:"caller"`
	Count     int                    `json:"count"`
	FirstSeen time.Time              `json:"first_seen"`
	LastSeen  time.Time              `json:"last_seen"`
}

// Digest folds repeated error lines and publishes them as one batch. A task
// retrying against a throttled exchange logs the same line many times; the
// digest carries it once with a count.
type Digest struct {
	cfg DigestConfig

	mu      sync.Mutex
	entries map[uint64]*DigestEntry

	done     chan struct{}
	loop     sync.WaitGroup
	inflight sync.WaitGroup
}

func NewDigest(cfg *DigestConfig) *Digest {
	c := *cfg
	if c.Interval <= 0 {
		c.Interval = 30 * time.Second
	}
	if c.MaxDistinct <= 0 {
		c.MaxDistinct = 100
	}
	d := &Digest{
		cfg:     c,
		entries: make(map[uint64]*DigestEntry),
		done:    make(chan struct{}),
	}
	d.loop.Add(1)
	go d.run()
	return d
}

// Record counts one occurrence of a log line.
func (d *Digest) Record(level, msg string, fields map[string]interface{}, caller string) {
	now := time.Now()
	key := entryKey(level, msg, fields, caller)

	d.mu.Lock()
	defer d.mu.Unlock()
	if e, ok := d.entries[key]; ok {
		e.Count++
		e.LastSeen = now
	} else {
		d.entries[key] = &DigestEntry{
			Level: level, Message: msg, Fields: fields, Caller: caller,
			Count: 1, FirstSeen: now, LastSeen: now,
		}
	}
	if len(d.entries) >= d.cfg.MaxDistinct {
		d.publish(d.takeLocked())
	}
}

// Flush publishes whatever has been recorded so far.
func (d *Digest) Flush() {
	d.mu.Lock()
	batch := d.takeLocked()
	d.mu.Unlock()
	d.publish(batch)
}

// Close flushes the remaining entries and waits for in-flight publishes.
func (d *Digest) Close() {
	close(d.done)
	d.loop.Wait()
	d.inflight.Wait()
}

func (d *Digest) run() {
	defer d.loop.Done()
	t := time.NewTicker(d.cfg.Interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			d.Flush()
		case <-d.done:
			d.Flush()
			return
		}
	}
}

func (d *Digest) takeLocked() []DigestEntry {
	if len(d.entries) == 0 {
		return nil
	}
	batch := make([]DigestEntry, 0, len(d.entries))
	for _, e := range d.entries {
		batch = append(batch, *e)
	}
	d.entries = make(map[uint64]*DigestEntry)
	sort.Slice(batch, func(i, j int) bool { return batch[i].FirstSeen.Before(batch[j].FirstSeen) })
	return batch
}

func (d *Digest) publish(batch []DigestEntry) {
	if len(batch) == 0 || d.cfg.Publisher == nil {
		return
	}
	d.inflight.Add(1)
	go func() {
		defer d.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := d.cfg.Publisher.Publish(ctx, d.cfg.Topic, []byte(d.cfg.Source), batch); err != nil {
			// the logger is the caller, report out of band
			fmt.Fprintf(os.Stderr, "log digest publish failed: %v\n", err)
		}
	}()
}

// entryKey hashes the line identity. json.Marshal sorts map keys so equal
// field sets hash equally.
func entryKey(level, msg string, fields map[string]interface{}, caller string) uint64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s\x00%s\x00%s\x00", level, msg, caller)
	_ = json.NewEncoder(h).Encode(fields)
	return h.Sum64()
}
