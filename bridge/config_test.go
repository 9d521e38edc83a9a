package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProtocol(t *testing.T) {
	for name, want := range map[string]Protocol{
		"scp":  ProtocolSCP,
		"sftp": ProtocolSFTP,
		"ftp":  ProtocolFTP,
		"ftps": ProtocolFTPS,
	} {
		got, err := ParseProtocol(name)
		require.NoError(t, err)
		assert.Equal(t, want, got)
		assert.Equal(t, name, got.String())
	}
	_, err := ParseProtocol("gopher")
	assert.Error(t, err)
}

func TestDefaultPort(t *testing.T) {
	assert.Equal(t, 22, ProtocolSCP.DefaultPort())
	assert.Equal(t, 22, ProtocolSFTP.DefaultPort())
	assert.Equal(t, 21, ProtocolFTP.DefaultPort())
	assert.Equal(t, 21, ProtocolFTPS.DefaultPort())
}

func TestConfigAddr(t *testing.T) {
	cfg := Config{Protocol: ProtocolSFTP, Address: "files.example.com"}
	assert.Equal(t, "files.example.com:22", cfg.Addr())

	cfg.Port = 2222
	assert.Equal(t, "files.example.com:2222", cfg.Addr())

	ftpCfg := Config{Protocol: ProtocolFTP, Address: "::1"}
	assert.Equal(t, "[::1]:21", ftpCfg.Addr())
}

func TestNewBridgePerProtocol(t *testing.T) {
	scp, err := New(Config{Protocol: ProtocolSCP})
	require.NoError(t, err)
	assert.Equal(t, ProtocolSCP, scp.Protocol())

	sftp, err := New(Config{Protocol: ProtocolSFTP})
	require.NoError(t, err)
	assert.Equal(t, ProtocolSFTP, sftp.Protocol())

	ftps, err := New(Config{Protocol: ProtocolFTPS})
	require.NoError(t, err)
	assert.Equal(t, ProtocolFTPS, ftps.Protocol())

	_, err = New(Config{Protocol: Protocol(99)})
	assert.Error(t, err)
}

func TestProtocolLocal(t *testing.T) {
	assert.Equal(t, "local", ProtocolLocal.String())
	assert.Equal(t, ProtocolLocal, NewLocal("").Protocol())

	// Not a dialable endpoint: no URL scheme, no New() case.
	_, err := ParseProtocol("local")
	assert.Error(t, err)
	_, err = New(Config{Protocol: ProtocolLocal})
	assert.Error(t, err)
}

func TestTimeoutDefaults(t *testing.T) {
	var cfg Config
	assert.Equal(t, defaultConnectTimeout, cfg.connectTimeout())
	assert.Equal(t, defaultStallTimeout, cfg.stallTimeout())
}
