package bridge

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Protocol identifies a wire protocol a bridge can speak.
type Protocol int

const (
	ProtocolSCP Protocol = iota
	ProtocolSFTP
	ProtocolFTP
	ProtocolFTPS
	// ProtocolLocal is the local filesystem pseudo-protocol. It has no URL
	// scheme and no dialable endpoint; ParseProtocol never returns it.
	ProtocolLocal
)

func (p Protocol) String() string {
	switch p {
	case ProtocolSCP:
		return "scp"
	case ProtocolSFTP:
		return "sftp"
	case ProtocolFTP:
		return "ftp"
	case ProtocolFTPS:
		return "ftps"
	case ProtocolLocal:
		return "local"
	default:
		return "unknown"
	}
}

// ParseProtocol parses the textual protocol name (as used in profiles and
// URL schemes).
func ParseProtocol(s string) (Protocol, error) {
	switch s {
	case "scp":
		return ProtocolSCP, nil
	case "sftp":
		return ProtocolSFTP, nil
	case "ftp":
		return ProtocolFTP, nil
	case "ftps":
		return ProtocolFTPS, nil
	default:
		return 0, fmt.Errorf("unknown protocol %q", s)
	}
}

// DefaultPort returns the conventional port for the protocol.
func (p Protocol) DefaultPort() int {
	switch p {
	case ProtocolFTP, ProtocolFTPS:
		return 21
	default:
		return 22
	}
}

const (
	defaultConnectTimeout = 30 * time.Second
	defaultStallTimeout   = 60 * time.Second
)

// Config describes one remote endpoint. It is consumed from the
// profile/bookmark collaborator; the bridge does not care where the
// credential came from.
type Config struct {
	Protocol Protocol
	Address  string
	Port     int // 0 = protocol default
	Username string

	// Credential material. Password doubles as the key passphrase prompt
	// fallback for SSH protocols. An empty PrivateKeyPath means
	// password/agent auth.
	Password       string
	PrivateKeyPath string
	Passphrase     string

	// RemoteRoot, when set, is the working directory right after connect.
	RemoteRoot string

	// ConnectTimeout bounds the TCP+handshake phase; StallTimeout bounds
	// each protocol exchange once connected. Zero values pick defaults.
	ConnectTimeout time.Duration
	StallTimeout   time.Duration

	// Host key verification for SSH protocols. KnownHostsPath points at an
	// OpenSSH known_hosts file. HostKeyPrompt, when set, is asked to accept
	// keys not covered by that file. InsecureHostKey disables verification.
	KnownHostsPath  string
	InsecureHostKey bool
	HostKeyPrompt   func(hostname, keyType, fingerprint string) bool

	// InsecureTLS skips certificate verification on FTPS.
	InsecureTLS bool
}

// Addr returns the host:port dial address, applying the protocol default port.
func (c Config) Addr() string {
	port := c.Port
	if port == 0 {
		port = c.Protocol.DefaultPort()
	}
	return net.JoinHostPort(c.Address, strconv.Itoa(port))
}

func (c Config) connectTimeout() time.Duration {
	if c.ConnectTimeout > 0 {
		return c.ConnectTimeout
	}
	return defaultConnectTimeout
}

func (c Config) stallTimeout() time.Duration {
	if c.StallTimeout > 0 {
		return c.StallTimeout
	}
	return defaultStallTimeout
}

// New builds the bridge implementation for the configured protocol.
// The returned bridge is disconnected; call Connect before use.
func New(cfg Config) (Bridge, error) {
	switch cfg.Protocol {
	case ProtocolSCP:
		return NewSCP(cfg), nil
	case ProtocolSFTP:
		return NewSFTP(cfg), nil
	case ProtocolFTP, ProtocolFTPS:
		return NewFTP(cfg), nil
	default:
		return nil, fmt.Errorf("no bridge for protocol %v", cfg.Protocol)
	}
}
