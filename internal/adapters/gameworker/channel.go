package gameworker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

const DefaultTimeout = 2 * time.Minute

type Logger interface {
	JustLog(msg string)
}

type Option func(*Channel)

// WithTimeout bounds every call. Zero disables the bound and leaves only the
// caller's context.
func WithTimeout(d time.Duration) Option {
	return func(c *Channel) { c.timeout = d }
}

func WithLogger(l Logger) Option {
	return func(c *Channel) { c.log = l }
}

// Channel correlates requests sent to a worker with the replies it sends
// back. It is safe for concurrent use.
type Channel struct {
	requests chan<- Request
	timeout  time.Duration
	log      Logger
	stop     func()

	mu      sync.Mutex
	pending map[string]chan Response

	done      chan struct{}
	closeOnce sync.Once
}

// NewChannel wires a Channel onto an existing worker transport and starts the
// reply dispatcher.
func NewChannel(requests chan<- Request, responses <-chan Response, opts ...Option) *Channel {
	c := &Channel{
		requests: requests,
		timeout:  DefaultTimeout,
		pending:  make(map[string]chan Response),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.dispatch(responses)
	return c
}

// Start launches a worker goroutine around solver and returns a Channel to
// it. Close stops both.
func Start(ctx context.Context, solver Solver, opts ...Option) *Channel {
	ctx, cancel := context.WithCancel(ctx)
	requests := make(chan Request, 8)
	responses := make(chan Response, 8)
	go Serve(ctx, requests, responses, solver)

	c := NewChannel(requests, responses, opts...)
	c.stop = cancel
	return c
}

func (c *Channel) dispatch(responses <-chan Response) {
	for {
		select {
		case <-c.done:
			return
		case resp, ok := <-responses:
			if !ok {
				c.Close()
				return
			}
			c.resolve(resp)
		}
	}
}

func (c *Channel) resolve(resp Response) {
	c.mu.Lock()
	ch, ok := c.pending[resp.ID]
	if ok {
		delete(c.pending, resp.ID)
	}
	c.mu.Unlock()

	if !ok {
		c.logf("discarding worker reply with unknown id %q", resp.ID)
		return
	}
	ch <- resp
}

func (c *Channel) register(id string) (chan Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.done:
		return nil, ErrClosed
	default:
	}
	ch := make(chan Response, 1)
	c.pending[id] = ch
	return ch, nil
}

func (c *Channel) forget(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// Pending reports how many calls are waiting for a reply.
func (c *Channel) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Call sends one request and waits for the reply carrying the same id. On
// timeout, cancellation or close the pending entry is dropped, so a late
// reply is discarded like any unknown one. The request carries the earlier of
// the call timeout and the ctx deadline, after which the worker gives up too.
func (c *Channel) Call(ctx context.Context, method Method, payload, out interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("gameworker: encode %s payload: %w", method, err)
	}
	req := Request{ID: uuid.NewString(), Method: method, Payload: raw}

	ch, err := c.register(req.ID)
	if err != nil {
		return err
	}

	var expired <-chan time.Time
	if c.timeout > 0 {
		timer := time.NewTimer(c.timeout)
		defer timer.Stop()
		expired = timer.C
		req.Deadline = time.Now().Add(c.timeout)
	}
	if d, ok := ctx.Deadline(); ok && (req.Deadline.IsZero() || d.Before(req.Deadline)) {
		req.Deadline = d
	}

	select {
	case c.requests <- req:
	case <-ctx.Done():
		c.forget(req.ID)
		return ctx.Err()
	case <-expired:
		c.forget(req.ID)
		return fmt.Errorf("%w: %s %s", ErrTimeout, method, req.ID)
	case <-c.done:
		c.forget(req.ID)
		return ErrClosed
	}

	var resp Response
	select {
	case resp = <-ch:
	case <-ctx.Done():
		c.forget(req.ID)
		return ctx.Err()
	case <-expired:
		c.forget(req.ID)
		return fmt.Errorf("%w: %s %s", ErrTimeout, method, req.ID)
	case <-c.done:
		c.forget(req.ID)
		return ErrClosed
	}

	if resp.Error != "" {
		return &ProtocolError{ID: resp.ID, Method: method, Message: resp.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Result, out); err != nil {
		return fmt.Errorf("gameworker: decode %s result: %w", method, err)
	}
	return nil
}

// Proof asks the worker for the proof-of-work of a game round.
func (c *Channel) Proof(ctx context.Context, gameID string) (Proof, error) {
	var p Proof
	err := c.Call(ctx, MethodProof, gameID, &p)
	return p, err
}

// Pack asks the worker for the claim payload of a finished round.
func (c *Channel) Pack(ctx context.Context, req PackRequest) (Packed, error) {
	var p Packed
	err := c.Call(ctx, MethodPack, req, &p)
	return p, err
}

// Close fails every pending call with ErrClosed and stops the worker when
// the channel was created by Start.
func (c *Channel) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		close(c.done)
		c.pending = make(map[string]chan Response)
		c.mu.Unlock()
		if c.stop != nil {
			c.stop()
		}
	})
}

func (c *Channel) logf(format string, args ...interface{}) {
	if c.log != nil {
		c.log.JustLog(fmt.Sprintf(format, args...))
	}
}
