package models

// BackendKind identifies a vector store backend.
type BackendKind string

const (
	BackendManagedCloud      BackendKind = "managed_cloud"
	BackendSelfHostedRemote  BackendKind = "self_hosted_remote"
	BackendLocalPersistent   BackendKind = "local_persistent"
	BackendInMemoryEphemeral BackendKind = "in_memory_ephemeral"
)

// DefaultPriority returns the default fallback priority of a backend kind. Lower is tried first.
func (k BackendKind) DefaultPriority() int {
	switch k {
	case BackendManagedCloud:
		return 10
	case BackendSelfHostedRemote:
		return 20
	case BackendLocalPersistent:
		return 30
	case BackendInMemoryEphemeral:
		return 40
	default:
		return 100
	}
}

// Valid reports whether k is one of the known kinds.
func (k BackendKind) Valid() bool {
	switch k {
	case BackendManagedCloud, BackendSelfHostedRemote, BackendLocalPersistent, BackendInMemoryEphemeral:
		return true
	}
	return false
}

// BackendDescriptor describes a configured backend. Healthy reflects the last
// operation of the current call only; nothing polls it in the background.
type BackendDescriptor struct {
	Kind     BackendKind `json:"kind"`
	Priority int         `json:"priority"`
	Healthy  bool        `json:"healthy"`
	Size     int         `json:"size"`
	Error    string      `json:"error,omitempty"`
}
