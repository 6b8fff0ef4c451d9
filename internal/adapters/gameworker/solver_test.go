package gameworker

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testScript = `
function proof(gameId) {
  return { nonce: gameId.length, hash: "h-" + gameId };
}
function pack(payload) {
  return { hash: payload.gameId + ":" + payload.challenge.nonce + ":" + payload.earnedAssets.CLOVER.amount };
}
`

func TestNativeSolverDifficulty(t *testing.T) {
	solver := NewNativeSolver(12)
	p, err := solver.Proof(context.Background(), "round-1")
	require.NoError(t, err)
	assert.True(t, solver.Verify("round-1", p))
	assert.False(t, solver.Verify("round-2", p))

	digest := proofDigest("round-1", p.Nonce)
	assert.GreaterOrEqual(t, leadingZeroBits(digest), 12)
}

func TestNativeSolverGivesUp(t *testing.T) {
	solver := NativeSolver{Difficulty: 256, MaxIterations: 10}
	_, err := solver.Proof(context.Background(), "round")
	assert.Error(t, err)
}

func TestNativeSolverStopsWhenContextEnds(t *testing.T) {
	solver := NativeSolver{Difficulty: 256}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := solver.Proof(ctx, "round")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewNativeSolverIsBounded(t *testing.T) {
	assert.Equal(t, uint64(DefaultMaxIterations), NewNativeSolver(300).MaxIterations)
	assert.Equal(t, 256, NewNativeSolver(300).Difficulty)
}

func TestNativePackIsDeterministic(t *testing.T) {
	solver := NewNativeSolver(4)
	p, err := solver.Proof(context.Background(), "g")
	require.NoError(t, err)

	req := PackRequest{GameID: "g", Challenge: p, EarnedAssets: EarnedAssets(map[string]int{"bp": 3, "dogs": 1})}
	a, err := solver.Pack(context.Background(), req)
	require.NoError(t, err)
	b, err := solver.Pack(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	_, err = solver.Pack(context.Background(), PackRequest{GameID: "g", Challenge: p})
	assert.Error(t, err)
}

func TestLeadingZeroBits(t *testing.T) {
	assert.Equal(t, 0, leadingZeroBits([]byte{0x80}))
	assert.Equal(t, 7, leadingZeroBits([]byte{0x01}))
	assert.Equal(t, 12, leadingZeroBits([]byte{0x00, 0x0f}))
	assert.Equal(t, 16, leadingZeroBits([]byte{0x00, 0x00}))
}

func TestScriptSolver(t *testing.T) {
	path := filepath.Join(t.TempDir(), "game.js")
	require.NoError(t, os.WriteFile(path, []byte(testScript), 0o644))

	solver, err := LoadScriptSolver(path)
	require.NoError(t, err)

	p, err := solver.Proof(context.Background(), "abcd")
	require.NoError(t, err)
	assert.Equal(t, Proof{Nonce: 4, Hash: "h-abcd"}, p)

	packed, err := solver.Pack(context.Background(), PackRequest{GameID: "abcd", Challenge: p, EarnedAssets: Points(190)})
	require.NoError(t, err)
	assert.Equal(t, "abcd:4:190", packed.Hash)
}

func TestScriptSolverInterruptsRunawayScript(t *testing.T) {
	solver, err := NewScriptSolver(`
function proof(gameId) { while (true) {} }
function pack(payload) { return { hash: "ok-" + payload.gameId }; }
`)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err = solver.Proof(ctx, "g")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)

	packed, err := solver.Pack(context.Background(), PackRequest{GameID: "g"})
	require.NoError(t, err)
	assert.Equal(t, "ok-g", packed.Hash)
}

func TestScriptSolverRequiresBothFunctions(t *testing.T) {
	_, err := NewScriptSolver(`function proof(id) { return {}; }`)
	assert.Error(t, err)

	_, err = NewScriptSolver(`function (`)
	assert.Error(t, err)
}
