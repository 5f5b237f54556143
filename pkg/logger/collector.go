package logger

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Publisher ships a batch of aggregated entries. *kafka.Producer satisfies it.
type Publisher interface {
	PublishMessage(ctx context.Context, topic string, payload interface{}) error
}

// DefaultKeyFields are the fields that identify a repeated error. Per-request values such as
// request_id or user_id are left out so identical failures fold into one entry.
var DefaultKeyFields = []string{"stage", "kind", "service", "route", "method", "status"}

// CollectionConfig controls how repeated error lines are folded and shipped.
type CollectionConfig struct {
	TimeInterval   time.Duration // flush interval
	CountThreshold int           // distinct entries that force an early flush
	Topic          string
	Publisher      Publisher
	KeyFields      []string      // defaults to DefaultKeyFields
	PublishTimeout time.Duration // per batch, defaults to 10s
}

// AggregatedLogEntry is one folded group. Fields holds the key fields; Sample is the full field
// set of the latest occurrence.
type AggregatedLogEntry struct {
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Caller    string                 `json:"caller"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	Sample    map[string]interface{} `json:"sample,omitempty"`
	Count     int                    `json:"count"`
	FirstSeen time.Time              `json:"first_seen"`
	LastSeen  time.Time              `json:"last_seen"`
}

type LogCollector struct {
	config  CollectionConfig
	mu      sync.Mutex
	entries map[string]*AggregatedLogEntry
	closed  bool
	batches chan []AggregatedLogEntry
	done    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
	now     func() time.Time
}

func NewLogCollector(config *CollectionConfig) *LogCollector {
	cfg := *config
	if cfg.TimeInterval <= 0 {
		cfg.TimeInterval = 30 * time.Second
	}
	if cfg.CountThreshold <= 0 {
		cfg.CountThreshold = 100
	}
	if cfg.KeyFields == nil {
		cfg.KeyFields = DefaultKeyFields
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 10 * time.Second
	}
	d := &LogCollector{
		config:  cfg,
		entries: make(map[string]*AggregatedLogEntry),
		batches: make(chan []AggregatedLogEntry, 4),
		done:    make(chan struct{}),
		now:     time.Now,
	}
	d.wg.Add(1)
	go d.run()
	return d
}

// AddLog folds one line into its group. It never blocks on the publisher; a threshold batch
// that finds the send queue full is dropped and reported on stderr.
func (d *LogCollector) AddLog(level, message string, fields map[string]interface{}, caller string) {
	keyFields := d.keyFields(fields)
	key := groupKey(level, message, caller, keyFields)
	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	if e, ok := d.entries[key]; ok {
		e.Count++
		e.LastSeen = now
		e.Sample = fields
	} else {
		d.entries[key] = &AggregatedLogEntry{
			Level:     level,
			Message:   message,
			Caller:    caller,
			Fields:    keyFields,
			Sample:    fields,
			Count:     1,
			FirstSeen: now,
			LastSeen:  now,
		}
	}
	if len(d.entries) < d.config.CountThreshold {
		return
	}
	batch := d.takeLocked()
	select {
	case d.batches <- batch:
	default:
		fmt.Fprintf(os.Stderr, "log collector: queue full, dropped %d entries\n", len(batch))
	}
}

func (d *LogCollector) keyFields(fields map[string]interface{}) map[string]interface{} {
	var out map[string]interface{}
	for _, k := range d.config.KeyFields {
		v, ok := fields[k]
		if !ok {
			continue
		}
		if out == nil {
			out = make(map[string]interface{}, len(d.config.KeyFields))
		}
		out[k] = v
	}
	return out
}

func groupKey(level, message, caller string, keyFields map[string]interface{}) string {
	names := make([]string, 0, len(keyFields))
	for k := range keyFields {
		names = append(names, k)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(level)
	b.WriteByte('|')
	b.WriteString(message)
	b.WriteByte('|')
	b.WriteString(caller)
	for _, k := range names {
		fmt.Fprintf(&b, "|%s=%v", k, keyFields[k])
	}
	return b.String()
}

// takeLocked empties the current window. Callers hold d.mu.
func (d *LogCollector) takeLocked() []AggregatedLogEntry {
	if len(d.entries) == 0 {
		return nil
	}
	batch := make([]AggregatedLogEntry, 0, len(d.entries))
	for _, e := range d.entries {
		batch = append(batch, *e)
	}
	sort.Slice(batch, func(i, j int) bool { return batch[i].FirstSeen.Before(batch[j].FirstSeen) })
	d.entries = make(map[string]*AggregatedLogEntry)
	return batch
}

func (d *LogCollector) take() []AggregatedLogEntry {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.takeLocked()
}

// run is the only goroutine that publishes, so batches leave in order.
func (d *LogCollector) run() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.TimeInterval)
	defer ticker.Stop()

	for {
		select {
		case batch := <-d.batches:
			d.publish(batch)
		case <-ticker.C:
			d.publish(d.take())
		case <-d.done:
			// AddLog stops queueing once closed is set, so the queue can be drained.
			for {
				select {
				case batch := <-d.batches:
					d.publish(batch)
				default:
					d.publish(d.take())
					return
				}
			}
		}
	}
}

func (d *LogCollector) publish(batch []AggregatedLogEntry) {
	if len(batch) == 0 || d.config.Publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), d.config.PublishTimeout)
	defer cancel()
	if err := d.config.Publisher.PublishMessage(ctx, d.config.Topic, batch); err != nil {
		fmt.Fprintf(os.Stderr, "log collector: publish to %s failed: %v\n", d.config.Topic, err)
	}
}

// Close flushes what is pending and returns once the final publish has finished.
func (d *LogCollector) Close() {
	d.once.Do(func() {
		d.mu.Lock()
		d.closed = true
		d.mu.Unlock()
		close(d.done)
		d.wg.Wait()
	})
}
