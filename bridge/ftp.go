package bridge

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"path"
	"time"

	"github.com/jlaffaye/ftp"

	"github.com/m-manu/portage/entity"
)

// FTP implements Bridge over an FTP control connection, with passive-mode
// data channels opened per operation. The FTPS variant upgrades the control
// channel to TLS before authentication. A transfer only counts as successful
// when both the data-channel close and the completion response agree; the
// ftp client tears the control connection down on unrecoverable parse
// failures rather than leaving it ambiguous.
type FTP struct {
	session
	cfg  Config
	conn *ftp.ServerConn
}

// NewFTP returns a disconnected FTP(S) bridge for the given endpoint.
func NewFTP(cfg Config) *FTP {
	return &FTP{cfg: cfg}
}

func (f *FTP) Protocol() Protocol { return f.cfg.Protocol }

func (f *FTP) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *FTP) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == StateConnected {
		return nil
	}
	f.setState(StateConnecting)

	stall := f.cfg.stallTimeout()
	opts := []ftp.DialOption{
		ftp.DialWithContext(ctx),
		ftp.DialWithTimeout(f.cfg.connectTimeout()),
		ftp.DialWithDialFunc(func(network, address string) (net.Conn, error) {
			conn, err := net.DialTimeout(network, address, f.cfg.connectTimeout())
			if err != nil {
				return nil, err
			}
			return newStallConn(conn, stall), nil
		}),
	}
	if f.cfg.Protocol == ProtocolFTPS {
		opts = append(opts, ftp.DialWithExplicitTLS(&tls.Config{
			ServerName:         f.cfg.Address,
			InsecureSkipVerify: f.cfg.InsecureTLS,
			MinVersion:         tls.VersionTLS12,
		}))
	}

	conn, err := ftp.Dial(f.cfg.Addr(), opts...)
	if err != nil {
		f.setState(StateFailed)
		return connectionError("", err)
	}
	if err := conn.Login(f.cfg.Username, f.cfg.Password); err != nil {
		conn.Quit()
		f.setState(StateFailed)
		// A reply during login is a credential problem, not a transport one.
		var protoErr *textproto.Error
		if errors.As(err, &protoErr) {
			return NewError(KindAuth, "", err)
		}
		return connectionError("", err)
	}
	f.conn = conn
	f.setState(StateConnected)

	if f.cfg.RemoteRoot != "" {
		if err := f.conn.ChangeDir(f.cfg.RemoteRoot); err != nil {
			f.conn.Quit()
			f.conn = nil
			f.setState(StateFailed)
			return mapFTPError(err, f.cfg.RemoteRoot)
		}
	}
	return nil
}

func (f *FTP) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn == nil {
		f.setState(StateDisconnected)
		return nil
	}
	err := f.conn.Quit()
	f.conn = nil
	f.setState(StateDisconnected)
	if err != nil {
		return NewError(KindConnection, "", err)
	}
	return nil
}

func (f *FTP) Pwd() (string, error) {
	release, err := f.acquire()
	if err != nil {
		return "", err
	}
	defer release()
	wd, err := f.conn.CurrentDir()
	if err != nil {
		return "", mapFTPError(err, "")
	}
	return wd, nil
}

func (f *FTP) ChangeDirectory(p string) error {
	release, err := f.acquire()
	if err != nil {
		return err
	}
	defer release()
	if err := f.conn.ChangeDir(p); err != nil {
		return mapFTPError(err, p)
	}
	return nil
}

func (f *FTP) List(p string) (Listing, error) {
	release, err := f.acquire()
	if err != nil {
		return Listing{}, err
	}
	defer release()
	dir, err := f.absLocked(p)
	if err != nil {
		return Listing{}, err
	}
	entries, err := f.conn.List(dir)
	if err != nil {
		return Listing{}, mapFTPError(err, dir)
	}
	listing := Listing{Entries: make([]entity.RemoteEntry, 0, len(entries))}
	for _, e := range entries {
		if e.Name == "." || e.Name == ".." {
			continue
		}
		listing.Entries = append(listing.Entries, ftpEntry(dir, e))
	}
	return listing, nil
}

func (f *FTP) Stat(p string) (entity.RemoteEntry, error) {
	release, err := f.acquire()
	if err != nil {
		return entity.RemoteEntry{}, err
	}
	defer release()
	return f.statLocked(p)
}

// statLocked lists the parent directory and matches the base name: FTP has no
// portable per-entry stat, and MLST support is spotty across servers.
func (f *FTP) statLocked(p string) (entity.RemoteEntry, error) {
	target, err := f.absLocked(p)
	if err != nil {
		return entity.RemoteEntry{}, err
	}
	if target == "/" {
		return entity.RemoteEntry{Name: "/", Path: "/", IsDir: true}, nil
	}
	parent, base := path.Dir(target), path.Base(target)
	entries, err := f.conn.List(parent)
	if err != nil {
		return entity.RemoteEntry{}, mapFTPError(err, target)
	}
	for _, e := range entries {
		if e.Name == base {
			return ftpEntry(parent, e), nil
		}
	}
	return entity.RemoteEntry{}, NewError(KindNotFound, target, errors.New("no such entry"))
}

func (f *FTP) IsDirectory(p string) (bool, error) {
	entry, err := f.Stat(p)
	if err != nil {
		return false, err
	}
	return entry.IsDir, nil
}

func (f *FTP) CreateDirectory(p string) error {
	release, err := f.acquire()
	if err != nil {
		return err
	}
	defer release()
	if err := f.conn.MakeDir(p); err != nil {
		// Tolerate a directory that already exists.
		if entry, statErr := f.statLocked(p); statErr == nil && entry.IsDir {
			return nil
		}
		return mapFTPError(err, p)
	}
	return nil
}

func (f *FTP) Remove(p string, recursive bool) error {
	release, err := f.acquire()
	if err != nil {
		return err
	}
	defer release()
	entry, err := f.statLocked(p)
	if err != nil {
		return err
	}
	switch {
	case entry.IsDir && recursive:
		err = f.conn.RemoveDirRecur(p)
	case entry.IsDir:
		err = f.conn.RemoveDir(p)
	default:
		err = f.conn.Delete(p)
	}
	if err != nil {
		return mapFTPError(err, p)
	}
	return nil
}

func (f *FTP) Rename(from, to string) error {
	release, err := f.acquire()
	if err != nil {
		return err
	}
	defer release()
	if err := f.conn.Rename(from, to); err != nil {
		return mapFTPError(err, from)
	}
	return nil
}

func (f *FTP) OpenRead(p string) (io.ReadCloser, error) {
	release, err := f.acquire()
	if err != nil {
		return nil, err
	}
	resp, err := f.conn.Retr(p)
	if err != nil {
		release()
		return nil, mapFTPError(err, p)
	}
	return &ftpReadHandle{resp: resp, path: p, release: release}, nil
}

func (f *FTP) OpenWrite(p string, appendMode bool) (io.WriteCloser, error) {
	release, err := f.acquire()
	if err != nil {
		return nil, err
	}
	// STOR/APPE consume a reader, so the handle feeds it through a pipe from
	// a dedicated goroutine; Close joins that goroutine and returns the
	// completion status.
	pr, pw := io.Pipe()
	done := make(chan error, 1)
	go func() {
		var storErr error
		if appendMode {
			storErr = f.conn.Append(p, pr)
		} else {
			storErr = f.conn.Stor(p, pr)
		}
		// Unblock the writer if the server aborted mid-stream.
		pr.CloseWithError(storErr)
		done <- storErr
	}()
	return &ftpWriteHandle{pw: pw, done: done, path: p, release: release}, nil
}

func (f *FTP) ResolveSymlink(p string) (string, error) {
	entry, err := f.Stat(p)
	if err != nil {
		return "", err
	}
	if !entry.IsSymlink || entry.SymlinkTarget == "" {
		return "", NewError(KindNotFound, p, errors.New("not a symlink"))
	}
	return entry.SymlinkTarget, nil
}

// absLocked resolves p against the server-side working directory.
func (f *FTP) absLocked(p string) (string, error) {
	if path.IsAbs(p) {
		return path.Clean(p), nil
	}
	wd, err := f.conn.CurrentDir()
	if err != nil {
		return "", mapFTPError(err, p)
	}
	if p == "" {
		return wd, nil
	}
	return path.Join(wd, p), nil
}

func ftpEntry(dir string, e *ftp.Entry) entity.RemoteEntry {
	entry := entity.RemoteEntry{
		Name:      e.Name,
		Path:      path.Join(dir, e.Name),
		IsDir:     e.Type == ftp.EntryTypeFolder,
		IsSymlink: e.Type == ftp.EntryTypeLink,
		Size:      int64(e.Size),
		// Permission bits from FTP LIST output are unreliable across
		// servers; left unknown rather than guessed.
		ModeKnown:     false,
		SymlinkTarget: e.Target,
	}
	if !e.Time.IsZero() {
		entry.ModTime = e.Time
	}
	return entry
}

type ftpReadHandle struct {
	resp    *ftp.Response
	path    string
	release func()
	done    bool
}

func (h *ftpReadHandle) Read(b []byte) (int, error) {
	n, err := h.resp.Read(b)
	if err != nil && err != io.EOF {
		return n, mapFTPError(err, h.path)
	}
	return n, err
}

// Close waits for the completion reply on the control channel; data-channel
// EOF alone does not make the transfer a success.
func (h *ftpReadHandle) Close() error {
	if h.done {
		return nil
	}
	h.done = true
	defer h.release()
	if err := h.resp.Close(); err != nil {
		return mapFTPError(err, h.path)
	}
	return nil
}

type ftpWriteHandle struct {
	pw      *io.PipeWriter
	done    chan error
	path    string
	release func()
	closed  bool
}

func (h *ftpWriteHandle) Write(b []byte) (int, error) {
	n, err := h.pw.Write(b)
	if err != nil {
		return n, mapFTPError(err, h.path)
	}
	return n, nil
}

func (h *ftpWriteHandle) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true
	defer h.release()
	h.pw.Close()
	select {
	case err := <-h.done:
		if err != nil {
			return mapFTPError(err, h.path)
		}
		return nil
	case <-time.After(5 * time.Minute):
		return NewError(KindProtocol, h.path, errors.New("no completion response from server"))
	}
}

// mapFTPError maps three-digit control-channel codes onto the taxonomy.
func mapFTPError(err error, path string) error {
	if err == nil {
		return nil
	}
	var protoErr *textproto.Error
	if errors.As(err, &protoErr) {
		switch protoErr.Code {
		case ftp.StatusFileUnavailable:
			return NewError(KindNotFound, path, err)
		case ftp.StatusNotLoggedIn, ftp.StatusInvalidCredentials:
			return NewError(KindAuth, path, err)
		case ftp.StatusBadFileName, ftp.StatusStorNeedAccount, ftp.StatusExceededStorage:
			return NewError(KindPermission, path, err)
		case ftp.StatusNotAvailable, ftp.StatusCanNotOpenDataConnection, ftp.StatusTransfertAborted:
			return NewError(KindConnection, path, err)
		case ftp.StatusFileActionIgnored, ftp.StatusActionAborted:
			return NewError(KindIO, path, err)
		default:
			return NewError(KindProtocol, path, err)
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return connectionError(path, err)
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
		return connectionError(path, err)
	}
	return NewError(KindProtocol, path, fmt.Errorf("unexpected reply: %w", err))
}
