package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Push defaults.
const (
	DefaultPushBatchSize = 100
	DefaultPushInterval  = 5 * time.Second
	DefaultPushJob       = "gqlgate"
)

// PushHandler is a slog.Handler that batches records as JSON lines and
// pushes them to a Loki compatible endpoint. Handlers derived through
// WithAttrs or WithGroup share the batch of their parent.
type PushHandler struct {
	sink   *pushSink
	level  slog.Leveler
	attrs  []slog.Attr
	prefix string
}

type pushSink struct {
	url       string
	labels    map[string]string
	client    *http.Client
	batchSize int
	interval  time.Duration

	mu      sync.Mutex
	pending [][2]string
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
}

type pushStream struct {
	Stream map[string]string `json:"stream"`
	Values [][2]string       `json:"values"`
}

type pushRequest struct {
	Streams []pushStream `json:"streams"`
}

// PushOption configures a PushHandler.
type PushOption func(*PushHandler)

// WithPushLabels adds stream labels.
func WithPushLabels(labels map[string]string) PushOption {
	return func(h *PushHandler) {
		maps.Copy(h.sink.labels, labels)
	}
}

// WithPushLevel sets the minimum pushed level.
func WithPushLevel(level slog.Leveler) PushOption {
	return func(h *PushHandler) {
		h.level = level
	}
}

// WithPushBatchSize sets how many records trigger an early flush.
func WithPushBatchSize(size int) PushOption {
	return func(h *PushHandler) {
		if size > 0 {
			h.sink.batchSize = size
		}
	}
}

// WithPushInterval sets the periodic flush interval.
func WithPushInterval(d time.Duration) PushOption {
	return func(h *PushHandler) {
		if d > 0 {
			h.sink.interval = d
		}
	}
}

// WithPushClient replaces the HTTP client used for pushes.
func WithPushClient(c *http.Client) PushOption {
	return func(h *PushHandler) {
		h.sink.client = c
	}
}

// NewPushHandler creates a handler pushing to url, for example
// "http://localhost:3100/loki/api/v1/push". Close stops the periodic flush.
func NewPushHandler(url string, opts ...PushOption) *PushHandler {
	h := &PushHandler{
		sink: &pushSink{
			url:       url,
			labels:    map[string]string{"job": DefaultPushJob},
			client:    &http.Client{Timeout: 5 * time.Second},
			batchSize: DefaultPushBatchSize,
			interval:  DefaultPushInterval,
			stop:      make(chan struct{}),
			done:      make(chan struct{}),
		},
		level: LevelInfo,
	}
	for _, opt := range opts {
		opt(h)
	}
	go h.sink.run()
	return h
}

func (s *pushSink) run() {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			_ = s.flush()
		case <-s.stop:
			return
		}
	}
}

func (h *PushHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *PushHandler) Handle(_ context.Context, r slog.Record) error {
	line := map[string]any{
		slog.LevelKey:   r.Level.String(),
		slog.MessageKey: r.Message,
	}
	for _, a := range h.attrs {
		addAttr(line, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		addAttr(line, h.prefix, a)
		return true
	})
	b, err := json.Marshal(line)
	if err != nil {
		return fmt.Errorf("encode log record: %w", err)
	}
	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	s := h.sink
	s.mu.Lock()
	s.pending = append(s.pending, [2]string{strconv.FormatInt(ts.UnixNano(), 10), string(b)})
	full := len(s.pending) >= s.batchSize
	s.mu.Unlock()

	if full {
		go func() { _ = s.flush() }()
	}
	return nil
}

func addAttr(line map[string]any, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		if a.Key != "" {
			prefix += a.Key + "."
		}
		for _, ga := range a.Value.Group() {
			addAttr(line, prefix, ga)
		}
		return
	}
	line[prefix+a.Key] = a.Value.Any()
}

func (h *PushHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	c.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	c.attrs = append(c.attrs, h.attrs...)
	for _, a := range attrs {
		if h.prefix != "" {
			a.Key = h.prefix + a.Key
		}
		c.attrs = append(c.attrs, a)
	}
	return &c
}

func (h *PushHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := *h
	c.prefix = h.prefix + name + "."
	return &c
}

// Flush pushes all pending records.
func (h *PushHandler) Flush() error {
	return h.sink.flush()
}

// Close stops the periodic flush and pushes what is left.
func (h *PushHandler) Close() error {
	s := h.sink
	s.once.Do(func() { close(s.stop) })
	<-s.done
	return s.flush()
}

func (s *pushSink) flush() error {
	s.mu.Lock()
	values := s.pending
	s.pending = nil
	s.mu.Unlock()
	if len(values) == 0 {
		return nil
	}

	body, err := json.Marshal(pushRequest{Streams: []pushStream{{Stream: s.labels, Values: values}}})
	if err != nil {
		return fmt.Errorf("encode push request: %w", err)
	}
	req, err := http.NewRequest(http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("push logs: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("push logs: %s returned %s", s.url, strings.TrimSpace(resp.Status))
	}
	return nil
}
