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

// Publisher ships aggregated diagnostics somewhere durable (Kafka in production).
type Publisher interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
}

type CollectorConfig struct {
	FlushInterval  time.Duration // periodic flush (e.g. 30s)
	CountThreshold int           // flush once this many distinct entries are buffered
	Topic          string
	Publisher      Publisher
	// GroupBy lists field keys that take part in the aggregation key, e.g.
	// "source" so that skips are counted per source instead of per instrument.
	GroupBy []string
}

// DiagnosticEntry is one aggregated warn/error line.
type DiagnosticEntry struct {
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Group     map[string]interface{} `json:"group,omitempty"`
	Sample    map[string]interface{} `json:"sample,omitempty"`
	Caller    string                 `json:"caller"`
	Count     int                    `json:"count"`
	FirstSeen time.Time              `json:"first_seen"`
	LastSeen  time.Time              `json:"last_seen"`
}

// DiagnosticCollector folds repeated warnings (one per skipped instrument,
// typically) into counted entries and publishes them in batches.
type DiagnosticCollector struct {
	cfg     CollectorConfig
	entries map[string]*DiagnosticEntry
	mu      sync.Mutex
	stop    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

func NewDiagnosticCollector(cfg CollectorConfig) *DiagnosticCollector {
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 30 * time.Second
	}
	if cfg.CountThreshold <= 0 {
		cfg.CountThreshold = 100
	}

	c := &DiagnosticCollector{
		cfg:     cfg,
		entries: make(map[string]*DiagnosticEntry),
		stop:    make(chan struct{}),
	}

	c.wg.Add(1)
	go c.loop()

	return c
}

func (c *DiagnosticCollector) Add(level, message string, fields map[string]interface{}, caller string) {
	now := time.Now()
	group := c.group(fields)
	key := c.key(level, message, caller, group)

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.Count++
		e.LastSeen = now
		return
	}

	c.entries[key] = &DiagnosticEntry{
		Level:     level,
		Message:   message,
		Group:     group,
		Sample:    fields,
		Caller:    caller,
		Count:     1,
		FirstSeen: now,
		LastSeen:  now,
	}

	if len(c.entries) >= c.cfg.CountThreshold {
		c.flushLocked(false)
	}
}

// Snapshot returns the currently buffered entries sorted by message.
func (c *DiagnosticCollector) Snapshot() []DiagnosticEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]DiagnosticEntry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Message < out[j].Message })
	return out
}

func (c *DiagnosticCollector) group(fields map[string]interface{}) map[string]interface{} {
	if len(c.cfg.GroupBy) == 0 {
		return nil
	}
	g := make(map[string]interface{}, len(c.cfg.GroupBy))
	for _, k := range c.cfg.GroupBy {
		if v, ok := fields[k]; ok {
			g[k] = v
		}
	}
	return g
}

func (c *DiagnosticCollector) key(level, message, caller string, group map[string]interface{}) string {
	var b strings.Builder
	b.WriteString(level)
	b.WriteByte('|')
	b.WriteString(message)
	b.WriteByte('|')
	b.WriteString(caller)
	for _, k := range c.cfg.GroupBy {
		if v, ok := group[k]; ok {
			fmt.Fprintf(&b, "|%s=%v", k, v)
		}
	}
	return b.String()
}

func (c *DiagnosticCollector) loop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			c.flushLocked(false)
			c.mu.Unlock()
		case <-c.stop:
			c.mu.Lock()
			c.flushLocked(true)
			c.mu.Unlock()
			return
		}
	}
}

func (c *DiagnosticCollector) flushLocked(sync bool) {
	if len(c.entries) == 0 || c.cfg.Publisher == nil {
		return
	}

	batch := make([]DiagnosticEntry, 0, len(c.entries))
	for _, e := range c.entries {
		batch = append(batch, *e)
	}
	c.entries = make(map[string]*DiagnosticEntry)

	send := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := c.cfg.Publisher.Publish(ctx, c.cfg.Topic, []byte("diagnostics"), batch); err != nil {
			fmt.Fprintf(os.Stderr, "diagnostics: publish failed: %v\n", err)
		}
	}
	if sync {
		send()
		return
	}
	go send()
}

// Close stops the flush loop after a final synchronous flush.
func (c *DiagnosticCollector) Close() {
	c.once.Do(func() {
		close(c.stop)
		c.wg.Wait()
	})
}
