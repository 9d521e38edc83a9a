package cmd

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/m-manu/portage/bridge"
	"github.com/m-manu/portage/profile"
)

// endpoint is one side of a command invocation: either a local path or a
// remote path reached through a configured bridge.
type endpoint struct {
	local bool
	cfg   bridge.Config
	path  string
}

// parseEndpoint understands three argument forms:
//
//	sftp://user@host:2222/var/log    explicit URL
//	backups:/var/log                 profile reference
//	./logs                           local path
func parseEndpoint(cmd *cobra.Command, arg string) (endpoint, error) {
	if strings.Contains(arg, "://") {
		return parseURLEndpoint(cmd, arg)
	}
	if name, rest, found := strings.Cut(arg, ":"); found && name != "" && !strings.ContainsAny(name, "/\\") {
		profilesPath, _ := cmd.Flags().GetString("profiles")
		profiles, err := profile.Load(profilesPath)
		if err != nil {
			return endpoint{}, err
		}
		if p, ok := profiles.Lookup(name); ok {
			cfg, err := p.Config()
			if err != nil {
				return endpoint{}, err
			}
			applyCommonFlags(cmd, &cfg)
			if rest == "" {
				rest = "."
			}
			return endpoint{cfg: cfg, path: rest}, nil
		}
	}
	return endpoint{local: true, path: arg}, nil
}

func parseURLEndpoint(cmd *cobra.Command, arg string) (endpoint, error) {
	u, err := url.Parse(arg)
	if err != nil {
		return endpoint{}, fmt.Errorf("bad endpoint %q: %w", arg, err)
	}
	protocol, err := bridge.ParseProtocol(u.Scheme)
	if err != nil {
		return endpoint{}, fmt.Errorf("bad endpoint %q: %w", arg, err)
	}
	cfg := bridge.Config{
		Protocol: protocol,
		Address:  u.Hostname(),
		Password: os.Getenv(profile.EnvPassword),
	}
	if u.User != nil {
		cfg.Username = u.User.Username()
		if password, set := u.User.Password(); set {
			cfg.Password = password
		}
	}
	if portStr := u.Port(); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return endpoint{}, fmt.Errorf("bad endpoint %q: %w", arg, err)
		}
		cfg.Port = port
	}
	applyCommonFlags(cmd, &cfg)
	remotePath := u.Path
	if remotePath == "" {
		remotePath = "."
	}
	return endpoint{cfg: cfg, path: remotePath}, nil
}

func applyCommonFlags(cmd *cobra.Command, cfg *bridge.Config) {
	if d, err := cmd.Flags().GetDuration("connect-timeout"); err == nil && d > 0 {
		cfg.ConnectTimeout = d
	}
	if d, err := cmd.Flags().GetDuration("stall-timeout"); err == nil && d > 0 {
		cfg.StallTimeout = d
	}
	if insecure, _ := cmd.Flags().GetBool("insecure-host-key"); insecure {
		cfg.InsecureHostKey = true
	}
	if insecure, _ := cmd.Flags().GetBool("insecure-tls"); insecure {
		cfg.InsecureTLS = true
	}
	if cfg.HostKeyPrompt == nil {
		cfg.HostKeyPrompt = promptHostKey
	}
}

// connect builds and connects the bridge for an endpoint. Remote endpoints
// without credential material get an interactive password prompt when stdin
// is a terminal.
func connect(ctx context.Context, ep endpoint) (bridge.Bridge, error) {
	if ep.local {
		local := bridge.NewLocal("")
		if err := local.Connect(ctx); err != nil {
			return nil, err
		}
		return local, nil
	}
	cfg := ep.cfg
	if cfg.Password == "" && cfg.PrivateKeyPath == "" && isInteractive() {
		password, err := askPassword(fmt.Sprintf("Password for %s@%s", cfg.Username, cfg.Address))
		if err != nil {
			return nil, err
		}
		cfg.Password = password
	}
	b, err := bridge.New(cfg)
	if err != nil {
		return nil, err
	}
	if err := b.Connect(ctx); err != nil {
		return nil, err
	}
	return b, nil
}

// askPassword reads a password from the terminal without echoing it.
func askPassword(prompt string) (string, error) {
	fmt.Fprintf(os.Stderr, "%s: ", prompt)
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("password read error: %w", err)
	}
	return string(password), nil
}

func promptHostKey(hostname, keyType, fingerprint string) bool {
	if !isInteractive() {
		return false
	}
	pterm.Warning.Printfln("Unknown host key for %s", hostname)
	pterm.Printfln("  %s %s", keyType, fingerprint)
	accepted, err := pterm.DefaultInteractiveConfirm.
		WithDefaultValue(false).
		Show("Trust this host key for the session?")
	return err == nil && accepted
}

func isInteractive() bool {
	info, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
