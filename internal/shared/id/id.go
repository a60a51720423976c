// Package id provides identifier generation and validation for the server.
//
// Two families of identifiers are in use:
//   - Server-minted ids: prefixed ULIDs (rpc_*, remote_*, conn_*), sortable
//     by creation time and readable in logs
//   - Client-supplied ids: client, session and screen ids are UUIDs chosen by
//     the front-end and only validated here
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// RequestID correlates an RPC request with its response.
type RequestID string

// RemoteID identifies a remote shell.
type RemoteID string

// ConnID identifies one websocket connection for logging.
type ConnID string

const (
	RequestPrefix = "rpc"
	RemotePrefix  = "remote"
	ConnPrefix    = "conn"
)

// Generator generates ULIDs with optional prefixes
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the process-wide generator
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a generator whose ids are strictly increasing, even
// within the same millisecond.
func NewGenerator() *Generator {
	return &Generator{
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateString creates a new ULID as a string
func (g *Generator) GenerateString() string {
	return g.Generate().String()
}

// GenerateWithPrefix creates a prefixed ULID string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.GenerateString())
}

// NewRequestID generates a fresh RPC correlation id
func NewRequestID() RequestID {
	return RequestID(Default().GenerateWithPrefix(RequestPrefix))
}

// NewRemoteID generates a new remote id
func NewRemoteID() RemoteID {
	return RemoteID(Default().GenerateWithPrefix(RemotePrefix))
}

// NewConnID generates a new connection id
func NewConnID() ConnID {
	return ConnID(Default().GenerateWithPrefix(ConnPrefix))
}

func (id RequestID) String() string { return string(id) }
func (id RemoteID) String() string  { return string(id) }
func (id ConnID) String() string    { return string(id) }

// IsValid checks if an ID string is a valid ULID
func IsValid(id string) bool {
	_, err := ulid.Parse(id)
	return err == nil
}

// HasPrefix reports whether id is a well-formed prefix_ULID string for prefix.
func HasPrefix(id string, prefix string) bool {
	rest, ok := strings.CutPrefix(id, prefix+"_")
	return ok && IsValid(rest)
}

// IsUUID reports whether s parses as a UUID. Client, session and screen ids
// must pass this check.
func IsUUID(s string) bool {
	if s == "" {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}

// NewUUID returns a random UUID string.
func NewUUID() string {
	return uuid.NewString()
}
