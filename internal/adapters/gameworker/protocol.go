// Package gameworker runs the game's proof-of-work off the account loop.
//
// Requests and responses travel over a pair of Go channels between the
// caller-facing Channel and an isolated worker goroutine started by Serve.
// They are matched solely by correlation id.
package gameworker

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

type Method string

const (
	MethodProof Method = "proof"
	MethodPack  Method = "pack"
)

var (
	ErrTimeout = errors.New("gameworker: timed out waiting for worker reply")
	ErrClosed  = errors.New("gameworker: channel closed")
)

// Request is one unit of work. Deadline, when set, is the moment the caller
// stops waiting; the worker abandons the request at that point.
type Request struct {
	ID       string          `json:"id"`
	Method   Method          `json:"method"`
	Payload  json.RawMessage `json:"payload"`
	Deadline time.Time       `json:"deadline,omitzero"`
}

type Response struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Proof is the worker's answer to a proof request.
type Proof struct {
	Nonce uint64 `json:"nonce"`
	Hash  string `json:"hash"`
}

type Asset struct {
	Amount string `json:"amount"`
}

// PackRequest combines a round id, its proof and the claimed rewards.
type PackRequest struct {
	GameID       string           `json:"gameId"`
	Challenge    Proof            `json:"challenge"`
	EarnedAssets map[string]Asset `json:"earnedAssets"`
}

// Packed holds the payload submitted verbatim to the game claim call.
type Packed struct {
	Hash string `json:"hash"`
}

// ProtocolError is a reply that carried an error instead of a result.
type ProtocolError struct {
	ID      string
	Method  Method
	Message string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("gameworker: %s %s failed: %s", e.Method, e.ID, e.Message)
}

var assetNames = map[string]string{
	"bp":   "CLOVER",
	"dogs": "DOGS",
}

// EarnedAssets converts in-game reward counters into the asset map the claim
// expects. Zero and unknown rewards are dropped.
func EarnedAssets(rewards map[string]int) map[string]Asset {
	out := make(map[string]Asset, len(rewards))
	for key, value := range rewards {
		name, ok := assetNames[key]
		if !ok || value <= 0 {
			continue
		}
		out[name] = Asset{Amount: strconv.Itoa(value)}
	}
	return out
}

// Points is the asset map for a round that only earned Blum points.
func Points(points int) map[string]Asset {
	return EarnedAssets(map[string]int{"bp": points})
}
