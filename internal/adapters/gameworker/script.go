package gameworker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/robertkrimen/otto"
)

var errInterrupted = errors.New("gameworker: script interrupted")

// ScriptSolver delegates both methods to JavaScript functions proof(gameId)
// and pack(payload), typically lifted from the game client.
type ScriptSolver struct {
	mu     sync.Mutex
	vm     *otto.Otto
	source string
}

func NewScriptSolver(source string) (*ScriptSolver, error) {
	vm, err := loadVM(source)
	if err != nil {
		return nil, err
	}
	return &ScriptSolver{vm: vm, source: source}, nil
}

func loadVM(source string) (*otto.Otto, error) {
	vm := otto.New()
	if _, err := vm.Run(source); err != nil {
		return nil, fmt.Errorf("gameworker: load script: %w", err)
	}
	for _, name := range []string{string(MethodProof), string(MethodPack)} {
		fn, err := vm.Get(name)
		if err != nil {
			return nil, fmt.Errorf("gameworker: lookup %s: %w", name, err)
		}
		if !fn.IsFunction() {
			return nil, fmt.Errorf("gameworker: script does not define function %s", name)
		}
	}
	return vm, nil
}

func LoadScriptSolver(path string) (*ScriptSolver, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("gameworker: read script: %w", err)
	}
	return NewScriptSolver(string(data))
}

func (s *ScriptSolver) Proof(ctx context.Context, gameID string) (Proof, error) {
	var p Proof
	if err := s.call(ctx, string(MethodProof), &p, gameID); err != nil {
		return Proof{}, err
	}
	if p.Hash == "" {
		return Proof{}, fmt.Errorf("script proof returned no hash")
	}
	return p, nil
}

func (s *ScriptSolver) Pack(ctx context.Context, req PackRequest) (Packed, error) {
	raw, err := json.Marshal(req)
	if err != nil {
		return Packed{}, err
	}

	s.mu.Lock()
	arg, err := s.vm.Object("(" + string(raw) + ")")
	s.mu.Unlock()
	if err != nil {
		return Packed{}, fmt.Errorf("gameworker: build pack argument: %w", err)
	}

	var p Packed
	if err := s.call(ctx, string(MethodPack), &p, arg); err != nil {
		return Packed{}, err
	}
	if p.Hash == "" {
		return Packed{}, fmt.Errorf("script pack returned no hash")
	}
	return p, nil
}

// call runs fn and round-trips its exported result through JSON into out.
// The VM is interrupted when ctx ends, so a runaway script cannot pin the
// worker. An interrupted VM is replaced by a fresh one.
func (s *ScriptSolver) call(ctx context.Context, fn string, out interface{}, args ...interface{}) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	interrupt := make(chan func(), 1)
	s.vm.Interrupt = interrupt
	finished := make(chan struct{})
	defer func() {
		close(finished)
		s.vm.Interrupt = nil
		if caught := recover(); caught != nil {
			if caught != errInterrupted {
				panic(caught)
			}
			err = fmt.Errorf("gameworker: %s: %w", fn, context.Cause(ctx))
			if vm, lerr := loadVM(s.source); lerr == nil {
				s.vm = vm
			}
		}
	}()
	go func() {
		select {
		case <-ctx.Done():
			interrupt <- func() { panic(errInterrupted) }
		case <-finished:
		}
	}()

	val, err := s.vm.Call(fn, nil, args...)
	if err != nil {
		return fmt.Errorf("gameworker: %s: %w", fn, err)
	}
	exported, err := val.Export()
	if err != nil {
		return fmt.Errorf("gameworker: export %s result: %w", fn, err)
	}
	raw, err := json.Marshal(exported)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
