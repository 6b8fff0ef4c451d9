package gameworker

import (
	"context"
	"encoding/json"
	"fmt"
	"math/bits"
	"strconv"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	DefaultDifficulty    = 16
	DefaultMaxIterations = 1 << 32

	// nonces tried between context checks
	ctxCheckEvery = 4096
)

// NativeSolver searches for a nonce whose Keccak-256 digest over
// "<gameID>:<nonce>" starts with Difficulty zero bits.
type NativeSolver struct {
	Difficulty    int
	MaxIterations uint64
}

func NewNativeSolver(difficulty int) NativeSolver {
	if difficulty < 0 {
		difficulty = 0
	}
	if difficulty > 256 {
		difficulty = 256
	}
	return NativeSolver{Difficulty: difficulty, MaxIterations: DefaultMaxIterations}
}

func proofDigest(gameID string, nonce uint64) []byte {
	return crypto.Keccak256([]byte(gameID + ":" + strconv.FormatUint(nonce, 10)))
}

func leadingZeroBits(b []byte) int {
	n := 0
	for _, v := range b {
		if v != 0 {
			return n + bits.LeadingZeros8(v)
		}
		n += 8
	}
	return n
}

// Proof stops early with ctx.Err() when ctx ends. A zero MaxIterations
// leaves ctx as the only bound.
func (s NativeSolver) Proof(ctx context.Context, gameID string) (Proof, error) {
	for nonce := uint64(0); s.MaxIterations == 0 || nonce < s.MaxIterations; nonce++ {
		if nonce%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return Proof{}, fmt.Errorf("proof for %s abandoned: %w", gameID, err)
			}
		}
		digest := proofDigest(gameID, nonce)
		if leadingZeroBits(digest) >= s.Difficulty {
			return Proof{Nonce: nonce, Hash: hexutil.Encode(digest)}, nil
		}
	}
	return Proof{}, fmt.Errorf("no proof for %s within %d iterations", gameID, s.MaxIterations)
}

// Verify reports whether p is a valid proof for gameID at this difficulty.
func (s NativeSolver) Verify(gameID string, p Proof) bool {
	digest := proofDigest(gameID, p.Nonce)
	return hexutil.Encode(digest) == p.Hash && leadingZeroBits(digest) >= s.Difficulty
}

// Pack hashes the canonical JSON of the round. Map keys are marshalled in
// sorted order so the result is deterministic.
func (s NativeSolver) Pack(ctx context.Context, req PackRequest) (Packed, error) {
	if err := ctx.Err(); err != nil {
		return Packed{}, err
	}
	if !s.Verify(req.GameID, req.Challenge) {
		return Packed{}, fmt.Errorf("challenge does not match game %s", req.GameID)
	}
	if len(req.EarnedAssets) == 0 {
		return Packed{}, fmt.Errorf("no earned assets for game %s", req.GameID)
	}
	raw, err := json.Marshal(req)
	if err != nil {
		return Packed{}, err
	}
	return Packed{Hash: hexutil.Encode(crypto.Keccak256(raw))}, nil
}
