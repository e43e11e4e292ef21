package llm

import (
	"context"
	"io"
	"sync"
)

// Fake is an in-memory Provider for tests. It records every request and
// replays Chunks. SubmitErr fails Stream itself; StreamErr is returned after
// the chunks are exhausted.
type Fake struct {
	Chunks    []string
	SubmitErr error
	StreamErr error

	mu       sync.Mutex
	requests []*Request
	streams  []*FakeStream
}

// NewFake creates a fake that replies with the given chunks.
func NewFake(chunks ...string) *Fake {
	return &Fake{Chunks: chunks}
}

func (f *Fake) Name() string { return "fake" }

func (f *Fake) Stream(ctx context.Context, req *Request) (Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	cp := &Request{Model: req.Model, Messages: append([]Message(nil), req.Messages...)}
	f.requests = append(f.requests, cp)
	if f.SubmitErr != nil {
		return nil, f.SubmitErr
	}
	s := &FakeStream{ctx: ctx, chunks: append([]string(nil), f.Chunks...), err: f.StreamErr}
	f.streams = append(f.streams, s)
	return s, nil
}

// Requests returns the requests received so far.
func (f *Fake) Requests() []*Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Request(nil), f.requests...)
}

// Streams returns the streams handed out so far.
func (f *Fake) Streams() []*FakeStream {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*FakeStream(nil), f.streams...)
}

// FakeStream replays fixed chunks and honours context cancellation.
type FakeStream struct {
	ctx    context.Context
	chunks []string
	err    error

	mu     sync.Mutex
	closed bool
}

func (s *FakeStream) Next() ([]byte, error) {
	if err := s.ctx.Err(); err != nil {
		return nil, err
	}
	if len(s.chunks) == 0 {
		if s.err != nil {
			return nil, s.err
		}
		return nil, io.EOF
	}
	c := s.chunks[0]
	s.chunks = s.chunks[1:]
	return []byte(c), nil
}

func (s *FakeStream) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (s *FakeStream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *FakeStream) ContentType() string { return TextContentType }
