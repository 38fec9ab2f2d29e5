// Package agentidentity holds the process-wide agent identity: a UUID
// generated once on first boot and cached for the lifetime of the
// process, per SPEC_FULL.md §3's AgentIdentity expansion.
package agentidentity

import (
	"sync"

	"github.com/google/uuid"
)

// AgentIdentity wraps the UUID a process uses to identify itself to the
// remote config server and in logs.
type AgentIdentity struct {
	id uuid.UUID
}

var (
	once    sync.Once
	current AgentIdentity
)

// Current returns the process's agent identity, generating it via
// uuid.New() on the first call and returning the same value on every
// subsequent call. There is no persistence: a process restart gets a new
// identity, per spec.md's Non-goals.
func Current() AgentIdentity {
	once.Do(func() {
		current = AgentIdentity{id: uuid.New()}
	})
	return current
}

// String renders the identity as its canonical UUID string, the form
// transmitted in HeartBeatRequest.agent_id.
func (a AgentIdentity) String() string {
	return a.id.String()
}

// UUID returns the underlying uuid.UUID.
func (a AgentIdentity) UUID() uuid.UUID {
	return a.id
}
