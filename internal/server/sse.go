package server

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nextmonth/smartsite/internal/auth"
	"github.com/nextmonth/smartsite/internal/model"
)

const (
	// replayDepth is how many recent events a reconnecting stream can
	// catch up on through Last-Event-ID.
	replayDepth = 1000

	streamKeepalive = 15 * time.Second

	// streamBuffer is the per-subscriber backlog. A subscriber that falls
	// further behind misses events instead of stalling publishers.
	streamBuffer = 64
)

// streamEvent is one published domain event as delivered on the stream.
// Tenant is empty for platform events.
type streamEvent struct {
	ID     uint64
	Topic  string
	Tenant string
	Data   []byte
}

// streamFilter decides which events a subscriber sees.
type streamFilter struct {
	topics     []string // NATS-style patterns; empty means every topic
	tenant     string
	allTenants bool
}

// filterFor scopes a stream to the caller. Super admins see everything;
// other admins see only events of their own tenant.
func filterFor(u *model.User, topics []string) streamFilter {
	if u == nil {
		return streamFilter{topics: topics}
	}
	return streamFilter{topics: topics, tenant: u.TenantID, allTenants: u.IsSuperAdmin}
}

func (f streamFilter) allows(evt *streamEvent) bool {
	if !f.allTenants && (evt.Tenant == "" || evt.Tenant != f.tenant) {
		return false
	}
	if len(f.topics) == 0 {
		return true
	}
	for _, p := range f.topics {
		if matchTopicPattern(p, evt.Topic) {
			return true
		}
	}
	return false
}

// eventLog keeps the last replayDepth events in publish order.
type eventLog struct {
	buf  [replayDepth]streamEvent
	head int // next slot to write
	size int
}

func (l *eventLog) add(evt streamEvent) {
	l.buf[l.head] = evt
	l.head = (l.head + 1) % replayDepth
	l.size = min(l.size+1, replayDepth)
}

func (l *eventLog) after(id uint64) []*streamEvent {
	var out []*streamEvent
	first := (l.head - l.size + replayDepth) % replayDepth
	for i := range l.size {
		evt := &l.buf[(first+i)%replayDepth]
		if evt.ID > id {
			out = append(out, evt)
		}
	}
	return out
}

// sseHub delivers published domain events to the admin event streams.
type sseHub struct {
	mu     sync.Mutex
	lastID uint64
	log    eventLog
	subs   map[*streamSub]struct{}
}

type streamSub struct {
	filter streamFilter
	ch     chan *streamEvent
}

func newSSEHub() *sseHub {
	return &sseHub{subs: make(map[*streamSub]struct{})}
}

func (h *sseHub) broadcast(topic, tenant string, payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastID++
	evt := streamEvent{ID: h.lastID, Topic: topic, Tenant: tenant, Data: payload}
	h.log.add(evt)
	for sub := range h.subs {
		if !sub.filter.allows(&evt) {
			continue
		}
		select {
		case sub.ch <- &evt:
		default:
		}
	}
}

// subscribe registers a stream and returns the events after lastID it
// should replay first. Registration and replay happen under one lock so no
// event is lost or sent twice.
func (h *sseHub) subscribe(f streamFilter, lastID uint64, replay bool) (*streamSub, []*streamEvent) {
	sub := &streamSub{filter: f, ch: make(chan *streamEvent, streamBuffer)}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs[sub] = struct{}{}
	if !replay {
		return sub, nil
	}
	var missed []*streamEvent
	for _, evt := range h.log.after(lastID) {
		if f.allows(evt) {
			cp := *evt
			missed = append(missed, &cp)
		}
	}
	return sub, missed
}

func (h *sseHub) unsubscribe(sub *streamSub) {
	h.mu.Lock()
	delete(h.subs, sub)
	h.mu.Unlock()
}

// matchTopicPattern matches dot-separated topics. "*" matches one segment
// and a trailing ">" matches one or more.
func matchTopicPattern(pattern, topic string) bool {
	if pattern == topic {
		return true
	}
	pat := strings.Split(pattern, ".")
	seg := strings.Split(topic, ".")
	for i, p := range pat {
		if p == ">" {
			return i < len(seg)
		}
		if i >= len(seg) || (p != "*" && p != seg[i]) {
			return false
		}
	}
	return len(pat) == len(seg)
}

func splitTopics(q string) []string {
	var out []string
	for _, t := range strings.Split(q, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// handleEventStream serves GET /api/events/stream.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	filter := filterFor(auth.UserFromContext(r.Context()), splitTopics(r.URL.Query().Get("topics")))
	lastID, err := strconv.ParseUint(r.Header.Get("Last-Event-ID"), 10, 64)
	sub, missed := s.sseHub.subscribe(filter, lastID, err == nil)
	defer s.sseHub.unsubscribe(sub)

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	for _, evt := range missed {
		writeSSEEvent(w, evt)
	}
	flusher.Flush()

	keepalive := time.NewTicker(streamKeepalive)
	defer keepalive.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case evt := <-sub.ch:
			writeSSEEvent(w, evt)
		case <-keepalive.C:
			fmt.Fprint(w, ":keepalive\n\n")
		}
		flusher.Flush()
	}
}

func writeSSEEvent(w http.ResponseWriter, evt *streamEvent) {
	fmt.Fprintf(w, "id:%d\nevent:%s\ndata:%s\n\n", evt.ID, evt.Topic, evt.Data)
}
