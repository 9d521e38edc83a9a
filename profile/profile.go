// Package profile loads named host profiles from a YAML file so that
// frequently used endpoints don't have to be retyped on every invocation.
// Credentials are never stored in the profiles file; they come from the
// environment (optionally seeded from a .env file next to the profiles
// file) or from an interactive prompt.
package profile

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/m-manu/portage/bridge"
)

// Env variables consulted for credentials, so they stay out of YAML files
// and shell history.
const (
	EnvPassword   = "PORTAGE_PASSWORD"
	EnvPassphrase = "PORTAGE_PASSPHRASE"
)

// File is the root structure of profiles.yaml.
type File struct {
	Profiles []Profile `yaml:"profiles"`
}

// Profile holds connection information for one remote endpoint.
type Profile struct {
	Name            string `yaml:"name"`
	Protocol        string `yaml:"protocol"`
	Address         string `yaml:"address"`
	Port            int    `yaml:"port"`
	Username        string `yaml:"username"`
	PrivateKeyPath  string `yaml:"ssh_key_path"`
	RemoteRoot      string `yaml:"remote_root"`
	KnownHostsPath  string `yaml:"known_hosts_path"`
	InsecureHostKey bool   `yaml:"insecure_host_key"`
	InsecureTLS     bool   `yaml:"insecure_tls"`
}

// DefaultPath returns the profiles file location under the user's config
// directory.
func DefaultPath() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(configDir, "portage", "profiles.yaml")
}

// Load reads the profiles file at path. A missing file is not an error:
// it yields an empty profile set. A .env file next to the profiles file
// is loaded into the environment first.
func Load(path string) (*File, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	envPath := filepath.Join(filepath.Dir(absPath), ".env")
	if _, statErr := os.Stat(envPath); statErr == nil {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return &File{}, nil
		}
		return nil, fmt.Errorf("profiles file read error (%s): %w", path, err)
	}
	if len(data) == 0 {
		return &File{}, nil
	}

	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("profiles file parse error (%s): %w", path, err)
	}

	for i := range file.Profiles {
		expandProfile(&file.Profiles[i])
	}
	if err := validate(&file); err != nil {
		return nil, err
	}
	return &file, nil
}

// Lookup returns the profile with the given name.
func (f *File) Lookup(name string) (Profile, bool) {
	for _, p := range f.Profiles {
		if p.Name == name {
			return p, true
		}
	}
	return Profile{}, false
}

// Config converts a profile into a connection configuration, pulling
// credentials from the environment.
func (p Profile) Config() (bridge.Config, error) {
	protocol, err := bridge.ParseProtocol(p.Protocol)
	if err != nil {
		return bridge.Config{}, fmt.Errorf("profile %q: %w", p.Name, err)
	}
	port := p.Port
	if port == 0 {
		port = protocol.DefaultPort()
	}
	return bridge.Config{
		Protocol:        protocol,
		Address:         p.Address,
		Port:            port,
		Username:        p.Username,
		Password:        os.Getenv(EnvPassword),
		PrivateKeyPath:  p.PrivateKeyPath,
		Passphrase:      os.Getenv(EnvPassphrase),
		RemoteRoot:      p.RemoteRoot,
		KnownHostsPath:  p.KnownHostsPath,
		InsecureHostKey: p.InsecureHostKey,
		InsecureTLS:     p.InsecureTLS,
	}, nil
}

func expandProfile(p *Profile) {
	p.Address = os.ExpandEnv(p.Address)
	p.Username = os.ExpandEnv(p.Username)
	p.PrivateKeyPath = os.ExpandEnv(p.PrivateKeyPath)
	p.RemoteRoot = os.ExpandEnv(p.RemoteRoot)
	p.KnownHostsPath = os.ExpandEnv(p.KnownHostsPath)
}

func validate(f *File) error {
	seen := make(map[string]bool, len(f.Profiles))
	for _, p := range f.Profiles {
		if p.Name == "" {
			return fmt.Errorf("profile without a name (address %q)", p.Address)
		}
		if seen[p.Name] {
			return fmt.Errorf("duplicate profile name %q", p.Name)
		}
		seen[p.Name] = true
		if p.Address == "" {
			return fmt.Errorf("profile %q: address is required", p.Name)
		}
		if _, err := bridge.ParseProtocol(p.Protocol); err != nil {
			return fmt.Errorf("profile %q: %w", p.Name, err)
		}
	}
	return nil
}
