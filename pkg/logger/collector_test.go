package logger

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	mu      sync.Mutex
	delay   time.Duration
	err     error
	topics  []string
	batches [][]AggregatedLogEntry
}

func (p *capturePublisher) PublishMessage(_ context.Context, topic string, payload interface{}) error {
	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.batches = append(p.batches, payload.([]AggregatedLogEntry))
	return p.err
}

func (p *capturePublisher) published() [][]AggregatedLogEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]AggregatedLogEntry(nil), p.batches...)
}

func failure(requestID, kind string) map[string]interface{} {
	return map[string]interface{}{
		"request_id": requestID,
		"user_id":    "user-" + requestID,
		"stage":      "scoring",
		"kind":       kind,
		"service":    "recommender",
	}
}

func TestCollectorFoldsPerRequestValues(t *testing.T) {
	pub := &capturePublisher{}
	c := NewLogCollector(&CollectionConfig{TimeInterval: time.Hour, Topic: "gateway-logs", Publisher: pub})

	c.AddLog("error", "recommendation failed", failure("r1", "downstream_timeout"), "handler.go:135")
	c.AddLog("error", "recommendation failed", failure("r2", "downstream_timeout"), "handler.go:135")
	c.AddLog("error", "recommendation failed", failure("r3", "downstream_timeout"), "handler.go:135")
	c.AddLog("error", "recommendation failed", failure("r4", "downstream_shape_error"), "handler.go:135")
	c.Close()

	batches := pub.published()
	require.Len(t, batches, 1)
	assert.Equal(t, []string{"gateway-logs"}, pub.topics)

	byKind := map[interface{}]AggregatedLogEntry{}
	for _, e := range batches[0] {
		byKind[e.Fields["kind"]] = e
	}
	require.Len(t, byKind, 2)

	timeouts := byKind["downstream_timeout"]
	assert.Equal(t, 3, timeouts.Count)
	assert.Equal(t, map[string]interface{}{"stage": "scoring", "kind": "downstream_timeout", "service": "recommender"}, timeouts.Fields)
	assert.Equal(t, "r3", timeouts.Sample["request_id"])
	assert.False(t, timeouts.LastSeen.Before(timeouts.FirstSeen))
	assert.Equal(t, 1, byKind["downstream_shape_error"].Count)
}

func TestCollectorSeparatesCallers(t *testing.T) {
	pub := &capturePublisher{}
	c := NewLogCollector(&CollectionConfig{TimeInterval: time.Hour, Publisher: pub})

	c.AddLog("error", "boom", nil, "a.go:1")
	c.AddLog("error", "boom", nil, "b.go:2")
	c.Close()

	batches := pub.published()
	require.Len(t, batches, 1)
	assert.Len(t, batches[0], 2)
}

func TestCollectorFlushesAtThreshold(t *testing.T) {
	pub := &capturePublisher{}
	c := NewLogCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 2, Publisher: pub})
	defer c.Close()

	c.AddLog("error", "recommendation failed", failure("r1", "downstream_timeout"), "x.go:1")
	c.AddLog("error", "recommendation failed", failure("r2", "downstream_unavailable"), "x.go:1")

	require.Eventually(t, func() bool { return len(pub.published()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Len(t, pub.published()[0], 2)
}

func TestCollectorFlushesOnInterval(t *testing.T) {
	pub := &capturePublisher{}
	c := NewLogCollector(&CollectionConfig{TimeInterval: 20 * time.Millisecond, Publisher: pub})
	defer c.Close()

	c.AddLog("error", "panic recovered", nil, "recovery.go:23")

	require.Eventually(t, func() bool { return len(pub.published()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestCollectorCloseWaitsForFinalPublish(t *testing.T) {
	pub := &capturePublisher{delay: 50 * time.Millisecond}
	c := NewLogCollector(&CollectionConfig{TimeInterval: time.Hour, Publisher: pub})

	c.AddLog("error", "recommendation failed", failure("r1", "request_timeout"), "x.go:1")
	c.Close()

	// No waiting here: the batch must already be out when Close returns.
	require.Len(t, pub.published(), 1)

	c.AddLog("error", "recommendation failed", failure("r2", "request_timeout"), "x.go:1")
	c.Close()
	assert.Len(t, pub.published(), 1)
}

func TestCollectorPublishErrorDoesNotStopCollector(t *testing.T) {
	pub := &capturePublisher{err: errors.New("broker down")}
	c := NewLogCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 1, Publisher: pub})

	c.AddLog("error", "first", nil, "x.go:1")
	require.Eventually(t, func() bool { return len(pub.published()) == 1 }, time.Second, 5*time.Millisecond)
	c.AddLog("error", "second", nil, "x.go:1")
	c.Close()

	assert.Len(t, pub.published(), 2)
}

func TestLoggerErrorsReachCollector(t *testing.T) {
	pub := &capturePublisher{}
	l := NewWithWriter(io.Discard)
	l.AddCollector(&CollectionConfig{TimeInterval: time.Hour, Publisher: pub})

	child := l.With(String("component", "router"))
	for _, id := range []string{"r1", "r2"} {
		child.Error("recommendation failed", String("request_id", id), String("kind", "downstream_timeout"))
	}
	l.Warn("not collected")
	l.RemoveCollector()

	batches := pub.published()
	require.Len(t, batches, 1)
	require.Len(t, batches[0], 1)
	e := batches[0][0]
	assert.Equal(t, "error", e.Level)
	assert.Equal(t, 2, e.Count)
	assert.Contains(t, e.Caller, "collector_test.go:")
	assert.Equal(t, "r2", e.Sample["request_id"])
}
