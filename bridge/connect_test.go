package bridge

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Dialing a port nothing listens on must surface KindConnection and leave
// the session in StateFailed, within the configured timeout bound rather
// than the protocol's own patience.
func TestConnectUnreachable(t *testing.T) {
	for _, protocol := range []Protocol{ProtocolSCP, ProtocolSFTP, ProtocolFTP} {
		t.Run(protocol.String(), func(t *testing.T) {
			b, err := New(Config{
				Protocol:        protocol,
				Address:         "127.0.0.1",
				Port:            1,
				Username:        "nobody",
				Password:        "nope",
				InsecureHostKey: true,
				ConnectTimeout:  2 * time.Second,
				StallTimeout:    2 * time.Second,
			})
			require.NoError(t, err)

			start := time.Now()
			err = b.Connect(context.Background())
			elapsed := time.Since(start)

			require.Error(t, err)
			assert.True(t, IsKind(err, KindConnection), "got %v", err)
			assert.Equal(t, StateFailed, b.State())
			assert.Less(t, elapsed, 5*time.Second)
		})
	}
}
