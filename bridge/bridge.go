// Package bridge provides a uniform, stateful remote-filesystem abstraction
// (the "host bridge") and its protocol backends: SCP over SSH, SFTP, FTP/FTPS
// and the local filesystem. The transfer engine and diff module are written
// once against the Bridge interface and never branch on protocol.
package bridge

import (
	"context"
	"io"
	"sync"

	"github.com/m-manu/portage/entity"
)

// State is the lifecycle of a bridge session.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Listing is the result of listing one directory. Skipped counts entries the
// backend could not parse into a RemoteEntry (SCP listings are synthesized
// from ls output, which is not always parseable); callers doing sync logic
// must not treat a listing with Skipped > 0 as complete.
type Listing struct {
	Entries []entity.RemoteEntry
	Skipped int
}

// Bridge is the capability contract every protocol backend implements.
//
// Every operation fails with a *Error: KindConnection if the session is not
// connected, KindNotFound for missing paths, KindPermission on server-side
// denial, KindProtocol for malformed exchanges. Streaming handles returned by
// OpenRead/OpenWrite can fail mid-transfer; a partially consumed stream is a
// failed transfer, not a truncated success, and is only confirmed good once
// Close returns nil.
//
// A session supports one operation at a time. Concurrent calls queue on the
// session; a streaming handle holds the session until closed, so a goroutine
// holding an open handle must not issue further calls on the same bridge
// before Close (they would wait on the handle it is holding). In particular,
// copying within one host needs two bridge instances, one per stream. This
// is a protocol-safety invariant (SSH channels and FTP control connections
// are not multiplexed here), not a performance choice.
type Bridge interface {
	Protocol() Protocol
	State() State

	Connect(ctx context.Context) error
	Disconnect() error

	// Pwd returns the session's working-directory cursor.
	Pwd() (string, error)
	// ChangeDirectory moves the working-directory cursor. Relative paths
	// resolve against the current cursor.
	ChangeDirectory(path string) error

	List(path string) (Listing, error)
	Stat(path string) (entity.RemoteEntry, error)
	IsDirectory(path string) (bool, error)

	CreateDirectory(path string) error
	Remove(path string, recursive bool) error
	Rename(from, to string) error

	OpenRead(path string) (io.ReadCloser, error)
	// OpenWrite opens path for writing, truncating unless appendMode is set.
	// Backends without a native append form fail appendMode with KindProtocol.
	OpenWrite(path string, appendMode bool) (io.WriteCloser, error)

	// ResolveSymlink returns the target of a symlink.
	ResolveSymlink(path string) (string, error)
}

// session holds the state machine and the serialization guard shared by the
// remote backends.
type session struct {
	mu    sync.Mutex
	state State
}

// acquire serializes one operation on the session, failing if it is not
// connected. The returned release must be called when the operation's
// protocol exchange is over (for streams, on handle close).
func (s *session) acquire() (release func(), err error) {
	s.mu.Lock()
	if s.state != StateConnected {
		s.mu.Unlock()
		return nil, notConnectedError()
	}
	return func() { s.mu.Unlock() }, nil
}

func (s *session) setState(state State) {
	s.state = state
}

// fail marks the session failed; used when the transport is known broken.
func (s *session) fail() {
	s.state = StateFailed
}
