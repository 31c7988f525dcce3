package consumer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"StreamMin-Cli/pkg/messaging"
)

type memPending struct {
	consumer  string
	delivered time.Time
	count     int64
}

type memGroup struct {
	next    int
	pending map[string]*memPending
}

// memStream is an in-memory messaging.Stream with consumer-group semantics close enough to
// Redis for driving the consumer loops deterministically. One instance may back both the main
// and the secondary side of a consumer.
type memStream struct {
	mu      sync.Mutex
	seq     int
	entries []messaging.Message
	groups  map[string]*memGroup
	notify  chan struct{}

	createErr  error
	pendingErr error
	claimErr   error
	ackErr     error

	acked      []string
	claimCalls int
	closed     int
}

var _ messaging.Stream = (*memStream)(nil)

func newMemStream() *memStream {
	return &memStream{groups: map[string]*memGroup{}, notify: make(chan struct{})}
}

func (s *memStream) EnsureGroup(ctx context.Context, group, start string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	if _, ok := s.groups[group]; !ok {
		s.groups[group] = &memGroup{pending: map[string]*memPending{}}
	}
	return nil
}

func (s *memStream) Append(ctx context.Context, payload []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	id := fmt.Sprintf("%d-0", s.seq)
	s.entries = append(s.entries, messaging.Message{ID: id, Payload: payload})
	close(s.notify)
	s.notify = make(chan struct{})
	return id, nil
}

func (s *memStream) ReadGroup(ctx context.Context, group, consumer string, count int, block time.Duration, from string) ([]messaging.Message, error) {
	if from != messaging.ReadNew {
		return s.readHistory(group, consumer, count, from)
	}
	var deadline <-chan time.Time
	if block > 0 {
		timer := time.NewTimer(block)
		defer timer.Stop()
		deadline = timer.C
	}
	for {
		s.mu.Lock()
		g, ok := s.groups[group]
		if !ok {
			s.mu.Unlock()
			return nil, errors.New("NOGROUP no such consumer group")
		}
		if g.next < len(s.entries) {
			end := g.next + count
			if end > len(s.entries) {
				end = len(s.entries)
			}
			out := append([]messaging.Message(nil), s.entries[g.next:end]...)
			for _, m := range out {
				g.pending[m.ID] = &memPending{consumer: consumer, delivered: time.Now(), count: 1}
			}
			g.next = end
			s.mu.Unlock()
			return out, nil
		}
		notify := s.notify
		s.mu.Unlock()
		if deadline == nil {
			return nil, nil
		}
		select {
		case <-notify:
		case <-deadline:
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (s *memStream) readHistory(group, consumer string, count int, from string) ([]messaging.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[group]
	if !ok {
		return nil, errors.New("NOGROUP no such consumer group")
	}
	var out []messaging.Message
	for _, m := range s.entries {
		if len(out) == count {
			break
		}
		p, ok := g.pending[m.ID]
		if !ok || p.consumer != consumer || messaging.CompareIDs(m.ID, from) <= 0 {
			continue
		}
		p.count++
		p.delivered = time.Now()
		out = append(out, m)
	}
	return out, nil
}

func (s *memStream) Pending(ctx context.Context, group, start, end string, count int) ([]messaging.PendingMessageMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pendingErr != nil {
		return nil, s.pendingErr
	}
	g, ok := s.groups[group]
	if !ok {
		return nil, errors.New("NOGROUP no such consumer group")
	}
	var out []messaging.PendingMessageMetadata
	for _, m := range s.entries {
		if len(out) == count {
			break
		}
		p, ok := g.pending[m.ID]
		if !ok || messaging.CompareIDs(m.ID, start) < 0 || messaging.CompareIDs(m.ID, end) > 0 {
			continue
		}
		out = append(out, messaging.PendingMessageMetadata{
			ID:            m.ID,
			Consumer:      p.consumer,
			Idle:          time.Since(p.delivered),
			DeliveryCount: p.count,
		})
	}
	return out, nil
}

func (s *memStream) Claim(ctx context.Context, group, consumer string, minIdle time.Duration, ids ...string) ([]messaging.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.claimCalls++
	if s.claimErr != nil {
		return nil, s.claimErr
	}
	g := s.groups[group]
	var out []messaging.Message
	for _, id := range ids {
		p, ok := g.pending[id]
		if !ok || time.Since(p.delivered) < minIdle {
			continue
		}
		p.consumer = consumer
		p.delivered = time.Now()
		p.count++
		for _, m := range s.entries {
			if m.ID == id {
				out = append(out, m)
			}
		}
	}
	return out, nil
}

func (s *memStream) Ack(ctx context.Context, group string, ids ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ackErr != nil {
		return s.ackErr
	}
	for _, id := range ids {
		delete(s.groups[group].pending, id)
		s.acked = append(s.acked, id)
	}
	return nil
}

func (s *memStream) Stats(ctx context.Context, group string) (int64, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var pending int64
	if g, ok := s.groups[group]; ok {
		pending = int64(len(g.pending))
	}
	return int64(len(s.entries)), pending, nil
}

func (s *memStream) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

func (s *memStream) hasGroup(group string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.groups[group]
	return ok
}

func (s *memStream) ackedIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.acked...)
}

func (s *memStream) pendingOwner(group, id string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.groups[group].pending[id]
	if !ok {
		return "", false
	}
	return p.consumer, true
}

func (s *memStream) claims() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.claimCalls
}

// fakeMetrics counts what the consumer reports.
type fakeMetrics struct {
	mu sync.Mutex
	metricCounts
}

type metricCounts struct {
	processed      map[string]int
	payloadInvalid int
	ackFailed      int
	claimed        int
	claimFailed    int
	maxRunning     int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{metricCounts: metricCounts{processed: map[string]int{}}}
}

func (m *fakeMetrics) MessageProcessed(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.processed[outcome]++
}

func (m *fakeMetrics) PayloadInvalid() { m.mu.Lock(); m.payloadInvalid++; m.mu.Unlock() }
func (m *fakeMetrics) AckFailed()      { m.mu.Lock(); m.ackFailed++; m.mu.Unlock() }
func (m *fakeMetrics) MessageClaimed() { m.mu.Lock(); m.claimed++; m.mu.Unlock() }
func (m *fakeMetrics) ClaimFailed()    { m.mu.Lock(); m.claimFailed++; m.mu.Unlock() }

func (m *fakeMetrics) PoolState(running, queued int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if running > m.maxRunning {
		m.maxRunning = running
	}
}

func (m *fakeMetrics) snapshot() metricCounts {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.metricCounts
	out.processed = map[string]int{}
	for k, v := range m.processed {
		out.processed[k] = v
	}
	return out
}
