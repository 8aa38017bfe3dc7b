package llm

import (
	"context"
	"sync"
	"time"
)

// MockReply is one scripted response.
type MockReply struct {
	Content string
	Err     error
}

// MockService is a scripted Service for tests. Without a handler it plays
// its replies in order and then repeats the last one.
type MockService struct {
	mu      sync.Mutex
	replies []MockReply
	next    int
	handler func(Request) (string, error)
	calls   []Request
}

// NewMockService creates a mock that returns contents in order.
func NewMockService(contents ...string) *MockService {
	m := &MockService{}
	for _, c := range contents {
		m.replies = append(m.replies, MockReply{Content: c})
	}
	return m
}

// WithReplies replaces the script.
func (m *MockService) WithReplies(replies ...MockReply) *MockService {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies = replies
	m.next = 0
	return m
}

// WithError makes every call fail with err.
func (m *MockService) WithError(err error) *MockService {
	return m.WithReplies(MockReply{Err: err})
}

// WithHandler answers each request with fn. It takes precedence over
// scripted replies and is useful when calls run concurrently.
func (m *MockService) WithHandler(fn func(Request) (string, error)) *MockService {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = fn
	return m
}

// Infer implements Service.
func (m *MockService) Infer(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return nil, NewError("mock", KindTransient, err)
	}

	m.mu.Lock()
	m.calls = append(m.calls, req)
	handler := m.handler
	var reply MockReply
	if handler == nil && len(m.replies) > 0 {
		reply = m.replies[m.next]
		if m.next < len(m.replies)-1 {
			m.next++
		}
	}
	m.mu.Unlock()

	if handler != nil {
		reply.Content, reply.Err = handler(req)
	}
	if reply.Err != nil {
		return nil, reply.Err
	}
	return finish("mock", req, reply.Content, "mock", start)
}

// Calls returns a copy of every request received.
func (m *MockService) Calls() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.calls...)
}

// CallCount returns the number of requests received.
func (m *MockService) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}
