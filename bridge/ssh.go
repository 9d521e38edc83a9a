package bridge

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

// acceptedHostKeys remembers fingerprints the user approved interactively,
// so a prompt-accept survives reconnects within the same run.
var (
	acceptedHostKeys   = make(map[string]string)
	acceptedHostKeysMu sync.Mutex
)

// dialSSH establishes the SSH transport shared by the SCP and SFTP backends:
// TCP connect with timeout, key exchange, authentication. Authentication
// failures surface as KindAuth, transport failures as KindConnection.
func dialSSH(ctx context.Context, cfg Config) (*ssh.Client, error) {
	auth, err := sshAuthMethods(cfg)
	if err != nil {
		return nil, err
	}

	hostKeyCallback, err := hostKeyCallback(cfg)
	if err != nil {
		return nil, err
	}

	clientConfig := &ssh.ClientConfig{
		User:            cfg.Username,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         cfg.connectTimeout(),
	}

	dialer := net.Dialer{Timeout: cfg.connectTimeout()}
	conn, err := dialer.DialContext(ctx, "tcp", cfg.Addr())
	if err != nil {
		return nil, connectionError("", err)
	}

	sc, chans, reqs, err := ssh.NewClientConn(
		newStallConn(conn, cfg.stallTimeout()), cfg.Addr(), clientConfig)
	if err != nil {
		conn.Close()
		return nil, classifySSHError(err)
	}
	return ssh.NewClient(sc, chans, reqs), nil
}

func sshAuthMethods(cfg Config) ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod

	if cfg.PrivateKeyPath != "" {
		keyBytes, err := os.ReadFile(cfg.PrivateKeyPath)
		if err != nil {
			return nil, NewError(KindAuth, cfg.PrivateKeyPath,
				fmt.Errorf("couldn't read private key: %w", err))
		}
		signer, err := ssh.ParsePrivateKey(keyBytes)
		if err != nil {
			var missing *ssh.PassphraseMissingError
			if !errors.As(err, &missing) {
				return nil, NewError(KindAuth, cfg.PrivateKeyPath,
					fmt.Errorf("couldn't parse private key: %w", err))
			}
			passphrase := cfg.Passphrase
			if passphrase == "" {
				passphrase = cfg.Password
			}
			signer, err = ssh.ParsePrivateKeyWithPassphrase(keyBytes, []byte(passphrase))
			if err != nil {
				return nil, NewError(KindAuth, cfg.PrivateKeyPath,
					fmt.Errorf("couldn't decrypt private key: %w", err))
			}
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}

	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
		if agentConn, err := net.Dial("unix", sock); err == nil {
			methods = append(methods, ssh.PublicKeysCallback(agent.NewClient(agentConn).Signers))
		}
	}

	if cfg.Password != "" {
		password := cfg.Password
		methods = append(methods, ssh.Password(password))
		methods = append(methods, ssh.KeyboardInteractive(
			func(name, instruction string, questions []string, echos []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range questions {
					answers[i] = password
				}
				return answers, nil
			}))
	}

	if len(methods) == 0 {
		return nil, NewError(KindAuth, "",
			errors.New("no credential available: need a password, key file or ssh-agent"))
	}
	return methods, nil
}

func hostKeyCallback(cfg Config) (ssh.HostKeyCallback, error) {
	if cfg.InsecureHostKey {
		return ssh.InsecureIgnoreHostKey(), nil
	}

	var fromFile ssh.HostKeyCallback
	if cfg.KnownHostsPath != "" {
		var err error
		fromFile, err = knownhosts.New(cfg.KnownHostsPath)
		if err != nil {
			return nil, NewError(KindConnection, cfg.KnownHostsPath,
				fmt.Errorf("couldn't load known_hosts: %w", err))
		}
	}

	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		if fromFile != nil {
			if err := fromFile(hostname, remote, key); err == nil {
				return nil
			}
		}
		fingerprint := ssh.FingerprintSHA256(key)

		acceptedHostKeysMu.Lock()
		known, seen := acceptedHostKeys[hostname]
		acceptedHostKeysMu.Unlock()
		if seen && known == fingerprint {
			return nil
		}

		if cfg.HostKeyPrompt != nil && cfg.HostKeyPrompt(hostname, key.Type(), fingerprint) {
			acceptedHostKeysMu.Lock()
			acceptedHostKeys[hostname] = fingerprint
			acceptedHostKeysMu.Unlock()
			return nil
		}
		return fmt.Errorf("host key for %s not trusted (%s)", hostname, fingerprint)
	}, nil
}

// classifySSHError splits handshake failures into auth vs transport faults.
func classifySSHError(err error) error {
	msg := err.Error()
	if strings.Contains(msg, "unable to authenticate") ||
		strings.Contains(msg, "permission denied") ||
		strings.Contains(msg, "no supported methods remain") {
		return NewError(KindAuth, "", err)
	}
	if strings.Contains(msg, "host key") || strings.Contains(msg, "not trusted") {
		return NewError(KindProtocol, "", err)
	}
	return connectionError("", err)
}

// stallConn pushes the deadline forward on every read/write, so a stalled
// protocol exchange surfaces as a timeout instead of hanging forever.
type stallConn struct {
	net.Conn
	timeout time.Duration
}

func newStallConn(conn net.Conn, timeout time.Duration) *stallConn {
	return &stallConn{Conn: conn, timeout: timeout}
}

func (c *stallConn) Read(b []byte) (int, error) {
	if err := c.Conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return c.Conn.Read(b)
}

func (c *stallConn) Write(b []byte) (int, error) {
	if err := c.Conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return c.Conn.Write(b)
}
