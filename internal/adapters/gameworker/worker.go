package gameworker

import (
	"context"
	"encoding/json"
	"fmt"
)

// Solver does the actual work behind the two protocol methods. Both must
// return once ctx is done.
type Solver interface {
	Proof(ctx context.Context, gameID string) (Proof, error)
	Pack(ctx context.Context, req PackRequest) (Packed, error)
}

// Serve is the isolated worker. It owns solver, handles one request at a time
// and only talks to the rest of the process through the two channels. It
// returns when ctx ends or requests is closed.
func Serve(ctx context.Context, requests <-chan Request, responses chan<- Response, solver Solver) {
	for {
		select {
		case <-ctx.Done():
			return
		case req, ok := <-requests:
			if !ok {
				return
			}
			resp := serveOne(ctx, req, solver)
			select {
			case responses <- resp:
			case <-ctx.Done():
				return
			}
		}
	}
}

func serveOne(ctx context.Context, req Request, solver Solver) Response {
	if !req.Deadline.IsZero() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, req.Deadline)
		defer cancel()
	}
	return handle(ctx, req, solver)
}

func handle(ctx context.Context, req Request, solver Solver) Response {
	result, err := dispatch(ctx, req, solver)
	if err != nil {
		return Response{ID: req.ID, Error: err.Error()}
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return Response{ID: req.ID, Error: err.Error()}
	}
	return Response{ID: req.ID, Result: raw}
}

func dispatch(ctx context.Context, req Request, solver Solver) (interface{}, error) {
	switch req.Method {
	case MethodProof:
		var gameID string
		if err := json.Unmarshal(req.Payload, &gameID); err != nil {
			return nil, fmt.Errorf("invalid proof payload: %w", err)
		}
		if gameID == "" {
			return nil, fmt.Errorf("empty game id")
		}
		return solver.Proof(ctx, gameID)
	case MethodPack:
		var pr PackRequest
		if err := json.Unmarshal(req.Payload, &pr); err != nil {
			return nil, fmt.Errorf("invalid pack payload: %w", err)
		}
		return solver.Pack(ctx, pr)
	default:
		return nil, fmt.Errorf("unknown method %q", req.Method)
	}
}
