package bridge

import (
	"errors"
	"io"
	"net/textproto"
	"testing"

	"github.com/jlaffaye/ftp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapFTPError(t *testing.T) {
	cases := []struct {
		code int
		want Kind
	}{
		{ftp.StatusFileUnavailable, KindNotFound},
		{ftp.StatusNotLoggedIn, KindAuth},
		{ftp.StatusInvalidCredentials, KindAuth},
		{ftp.StatusBadFileName, KindPermission},
		{ftp.StatusExceededStorage, KindPermission},
		{ftp.StatusNotAvailable, KindConnection},
		{ftp.StatusCanNotOpenDataConnection, KindConnection},
		{ftp.StatusTransfertAborted, KindConnection},
		{ftp.StatusFileActionIgnored, KindIO},
		{ftp.StatusBadCommand, KindProtocol},
	}
	for _, c := range cases {
		err := mapFTPError(&textproto.Error{Code: c.code, Msg: "reply"}, "/srv/x")
		assert.Equal(t, c.want, KindOf(err), "status code %d", c.code)
	}
}

func TestMapFTPErrorTransport(t *testing.T) {
	err := mapFTPError(fakeTimeoutError{}, "/srv/x")
	require.True(t, IsKind(err, KindConnection))
	var be *Error
	require.True(t, errors.As(err, &be))
	assert.True(t, be.TimedOut)

	assert.True(t, IsKind(mapFTPError(io.EOF, "/srv/x"), KindConnection))
	assert.True(t, IsKind(mapFTPError(io.ErrClosedPipe, "/srv/x"), KindConnection))
	assert.True(t, IsKind(mapFTPError(errors.New("weird reply"), "/srv/x"), KindProtocol))
	assert.NoError(t, mapFTPError(nil, "/srv/x"))
}

func TestFTPEntryConversion(t *testing.T) {
	e := &ftp.Entry{Name: "report.pdf", Type: ftp.EntryTypeFile, Size: 2048}
	entry := ftpEntry("/pub", e)
	assert.Equal(t, "/pub/report.pdf", entry.Path)
	assert.Equal(t, int64(2048), entry.Size)
	assert.False(t, entry.IsDir)
	assert.False(t, entry.ModeKnown)
	assert.True(t, entry.ModTime.IsZero())

	d := &ftp.Entry{Name: "incoming", Type: ftp.EntryTypeFolder}
	assert.True(t, ftpEntry("/pub", d).IsDir)

	l := &ftp.Entry{Name: "latest", Type: ftp.EntryTypeLink, Target: "v3"}
	link := ftpEntry("/pub", l)
	assert.True(t, link.IsSymlink)
	assert.Equal(t, "v3", link.SymlinkTarget)
}
