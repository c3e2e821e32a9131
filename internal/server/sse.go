package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/alfredjeanlab/refguard/internal/events"
)

const (
	// replayWindow is how many recent document events a reconnecting client
	// can catch up on with Last-Event-ID.
	replayWindow = 1000

	keepaliveEvery = 15 * time.Second
	clientBacklog  = 64
)

// streamEvent is a published document event as kept for replay. Model and
// Reason are copied out of the payload so filters never decode it.
type streamEvent struct {
	Seq    uint64
	Topic  string
	Model  string
	Reason string // rejections only
	Data   []byte
}

// streamFilter selects the events a client receives. An empty list matches
// everything; a reasons filter only ever matches rejections.
type streamFilter struct {
	topics  []string
	models  []string
	reasons []string
}

func parseStreamFilter(q url.Values) streamFilter {
	return streamFilter{
		topics:  splitList(q.Get("topics")),
		models:  splitList(q.Get("models")),
		reasons: splitList(q.Get("reasons")),
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (f streamFilter) matches(e *streamEvent) bool {
	if len(f.models) > 0 && !slices.Contains(f.models, e.Model) {
		return false
	}
	if len(f.reasons) > 0 && !slices.Contains(f.reasons, e.Reason) {
		return false
	}
	if len(f.topics) == 0 {
		return true
	}
	return slices.ContainsFunc(f.topics, func(p string) bool { return matchTopicPattern(p, e.Topic) })
}

// matchTopicPattern matches a dot-separated topic the way NATS matches
// subjects: "*" is one segment and a trailing ">" is one or more.
func matchTopicPattern(pattern, topic string) bool {
	if pattern == topic {
		return true
	}
	pat := strings.Split(pattern, ".")
	top := strings.Split(topic, ".")
	for i, p := range pat {
		if p == ">" {
			return i < len(top)
		}
		if i >= len(top) || (p != "*" && p != top[i]) {
			return false
		}
	}
	return len(pat) == len(top)
}

// eventStream fans document events out to connected clients and remembers
// the last replayWindow of them.
type eventStream struct {
	mu      sync.Mutex
	seq     uint64
	recent  []*streamEvent // oldest first
	clients map[*streamClient]struct{}
}

type streamClient struct {
	filter streamFilter
	ch     chan *streamEvent
}

func newEventStream() *eventStream {
	return &eventStream{clients: make(map[*streamClient]struct{})}
}

// add records an event and hands it to every matching client. A client whose
// backlog is full misses the event rather than stalling the write path.
func (s *eventStream) add(topic, modelName, reason string, data []byte) *streamEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	e := &streamEvent{Seq: s.seq, Topic: topic, Model: modelName, Reason: reason, Data: data}
	if len(s.recent) == replayWindow {
		s.recent = s.recent[1:]
	}
	s.recent = append(s.recent, e)

	for c := range s.clients {
		if !c.filter.matches(e) {
			continue
		}
		select {
		case c.ch <- e:
		default:
		}
	}
	return e
}

// join registers a client. When replay is set it also returns the matching
// events after seq; registering and collecting happen under one lock so
// nothing falls between the backlog and the live feed.
func (s *eventStream) join(f streamFilter, after uint64, replay bool) (*streamClient, []*streamEvent) {
	c := &streamClient{filter: f, ch: make(chan *streamEvent, clientBacklog)}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c] = struct{}{}
	if !replay {
		return c, nil
	}
	var backlog []*streamEvent
	for _, e := range s.recent {
		if e.Seq > after && f.matches(e) {
			backlog = append(backlog, e)
		}
	}
	return c, backlog
}

func (s *eventStream) leave(c *streamClient) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
}

// handleEventStream serves GET /v1/events/stream.
//
// Query parameters topics, models and reasons take comma-separated lists.
// Last-Event-ID (or ?since=) replays remembered events after that sequence.
func (s *DocumentServer) handleEventStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	q := r.URL.Query()
	lastID := r.Header.Get("Last-Event-ID")
	if lastID == "" {
		lastID = q.Get("since")
	}
	var after uint64
	replay := false
	if lastID != "" {
		n, err := strconv.ParseUint(lastID, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid event id %q", lastID))
			return
		}
		after, replay = n, true
	}

	client, backlog := s.stream.join(parseStreamFilter(q), after, replay)
	defer s.stream.leave(client)

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	for _, e := range backlog {
		writeStreamEvent(w, e)
	}
	flusher.Flush()

	keepalive := time.NewTicker(keepaliveEvery)
	defer keepalive.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case e := <-client.ch:
			writeStreamEvent(w, e)
			flusher.Flush()
		case <-keepalive.C:
			fmt.Fprint(w, ":keepalive\n\n")
			flusher.Flush()
		}
	}
}

func writeStreamEvent(w http.ResponseWriter, e *streamEvent) {
	fmt.Fprintf(w, "id:%d\nevent:%s\ndata:%s\n\n", e.Seq, e.Topic, e.Data)
}

// broadcastEvent hands a published event to stream clients.
func (s *DocumentServer) broadcastEvent(topic, modelName string, event any) {
	if s.stream == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		s.logger.Warn("failed to encode stream event", "topic", topic, "model", modelName, "error", err)
		return
	}
	var reason string
	if rej, ok := event.(events.DocumentRejected); ok {
		reason = rej.Reason
	}
	s.stream.add(topic, modelName, reason, data)
}
