// Package protocol defines the push/pull wire shapes shared by the server
// handlers and the client replica. The wire is JSON end to end.
package protocol

import (
	"encoding/base64"
	"encoding/json"

	"github.com/pkg/errors"
)

const PushVersion = 1

// Mutation is one queued client mutation. IDs are per-client, strictly
// increasing; the server deduplicates replays by its stored watermark.
type Mutation struct {
	ID        uint64          `json:"id"`
	Name      string          `json:"name"`
	Args      json.RawMessage `json:"args"`
	Timestamp int64           `json:"timestamp"`
}

type PushRequest struct {
	Token         string     `json:"token"`
	ClientID      string     `json:"clientID"`
	Mutations     []Mutation `json:"mutations"`
	PushVersion   int        `json:"pushVersion"`
	SchemaVersion string     `json:"schemaVersion"`
}

type PushResponse struct {
	Success bool     `json:"success"`
	Errors  []string `json:"errors"`
}

type PullRequest struct {
	Token    string `json:"token"`
	ClientID string `json:"clientID"`
	Cookie   string `json:"cookie"`
}

const (
	OpPut = "put"
	OpDel = "del"
)

// PatchOp is one entry of a pull diff. Put values carry the denormalized
// index keys so the replica's mirror needs no recomputation.
type PatchOp struct {
	Op    string          `json:"op"`
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value,omitempty"`
}

type PullResponse struct {
	LastMutationID uint64    `json:"lastMutationID"`
	Cookie         string    `json:"cookie"`
	Patch          []PatchOp `json:"patch"`
}

// Poke is the best-effort liveness hint sent over the space socket.
type Poke struct {
	Type string `json:"type"`
}

// Cookie is the pull watermark pair: raw time-index keys for facts and
// messages. Opaque to clients.
type Cookie struct {
	Facts    []byte `json:"f,omitempty"`
	Messages []byte `json:"m,omitempty"`
}

func (c Cookie) Encode() string {
	raw, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(raw)
}

func DecodeCookie(s string) (Cookie, error) {
	var c Cookie
	if s == "" {
		return c, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return c, errors.Wrap(err, "decode cookie")
	}
	if err := json.Unmarshal(raw, &c); err != nil {
		return c, errors.Wrap(err, "decode cookie")
	}
	return c, nil
}
