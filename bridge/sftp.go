package bridge

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"net"
	"os"
	"path"

	"github.com/m-manu/portage/entity"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// SFTP implements Bridge over the SSH "sftp" subsystem. Every operation is a
// typed request/response on the subsystem channel; pkg/sftp keeps requesting
// listing pages until the server signals end-of-list, so List never assumes a
// single response enumerates everything.
type SFTP struct {
	session
	cfg    Config
	ssh    *ssh.Client
	client *sftp.Client
	wd     string
}

// NewSFTP returns a disconnected SFTP bridge for the given endpoint.
func NewSFTP(cfg Config) *SFTP {
	return &SFTP{cfg: cfg}
}

func (s *SFTP) Protocol() Protocol { return ProtocolSFTP }

func (s *SFTP) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *SFTP) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateConnected {
		return nil
	}
	s.setState(StateConnecting)

	sshClient, err := dialSSH(ctx, s.cfg)
	if err != nil {
		s.setState(StateFailed)
		return err
	}
	client, err := sftp.NewClient(sshClient)
	if err != nil {
		sshClient.Close()
		s.setState(StateFailed)
		return NewError(KindProtocol, "", err)
	}

	wd := s.cfg.RemoteRoot
	if wd == "" {
		wd, err = client.Getwd()
		if err != nil {
			client.Close()
			sshClient.Close()
			s.setState(StateFailed)
			return mapSFTPError(err, "")
		}
	}

	s.ssh = sshClient
	s.client = client
	s.wd = wd
	s.setState(StateConnected)
	return nil
}

func (s *SFTP) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		s.setState(StateDisconnected)
		return nil
	}
	clientErr := s.client.Close()
	sshErr := s.ssh.Close()
	s.client = nil
	s.ssh = nil
	s.setState(StateDisconnected)
	if clientErr != nil {
		return NewError(KindConnection, "", clientErr)
	}
	if sshErr != nil {
		return NewError(KindConnection, "", sshErr)
	}
	return nil
}

func (s *SFTP) Pwd() (string, error) {
	release, err := s.acquire()
	if err != nil {
		return "", err
	}
	defer release()
	return s.wd, nil
}

func (s *SFTP) ChangeDirectory(p string) error {
	release, err := s.acquire()
	if err != nil {
		return err
	}
	defer release()
	target := s.abs(p)
	info, err := s.client.Stat(target)
	if err != nil {
		return mapSFTPError(err, target)
	}
	if !info.IsDir() {
		return NewError(KindNotFound, target, errors.New("not a directory"))
	}
	s.wd = target
	return nil
}

func (s *SFTP) List(p string) (Listing, error) {
	release, err := s.acquire()
	if err != nil {
		return Listing{}, err
	}
	defer release()
	dir := s.abs(p)
	infos, err := s.client.ReadDir(dir)
	if err != nil {
		return Listing{}, mapSFTPError(err, dir)
	}
	listing := Listing{Entries: make([]entity.RemoteEntry, 0, len(infos))}
	for _, info := range infos {
		listing.Entries = append(listing.Entries, s.entryFromInfo(path.Join(dir, info.Name()), info))
	}
	return listing, nil
}

func (s *SFTP) Stat(p string) (entity.RemoteEntry, error) {
	release, err := s.acquire()
	if err != nil {
		return entity.RemoteEntry{}, err
	}
	defer release()
	target := s.abs(p)
	info, err := s.client.Lstat(target)
	if err != nil {
		return entity.RemoteEntry{}, mapSFTPError(err, target)
	}
	return s.entryFromInfo(target, info), nil
}

func (s *SFTP) IsDirectory(p string) (bool, error) {
	entry, err := s.Stat(p)
	if err != nil {
		return false, err
	}
	return entry.IsDir, nil
}

func (s *SFTP) CreateDirectory(p string) error {
	release, err := s.acquire()
	if err != nil {
		return err
	}
	defer release()
	target := s.abs(p)
	if err := s.client.Mkdir(target); err != nil {
		// Tolerate a directory that already exists.
		if info, statErr := s.client.Stat(target); statErr == nil && info.IsDir() {
			return nil
		}
		return mapSFTPError(err, target)
	}
	return nil
}

func (s *SFTP) Remove(p string, recursive bool) error {
	release, err := s.acquire()
	if err != nil {
		return err
	}
	defer release()
	return s.remove(s.abs(p), recursive)
}

func (s *SFTP) remove(target string, recursive bool) error {
	info, err := s.client.Lstat(target)
	if err != nil {
		return mapSFTPError(err, target)
	}
	if info.IsDir() {
		if recursive {
			infos, err := s.client.ReadDir(target)
			if err != nil {
				return mapSFTPError(err, target)
			}
			for _, child := range infos {
				if err := s.remove(path.Join(target, child.Name()), true); err != nil {
					return err
				}
			}
		}
		if err := s.client.RemoveDirectory(target); err != nil {
			return mapSFTPError(err, target)
		}
		return nil
	}
	if err := s.client.Remove(target); err != nil {
		return mapSFTPError(err, target)
	}
	return nil
}

func (s *SFTP) Rename(from, to string) error {
	release, err := s.acquire()
	if err != nil {
		return err
	}
	defer release()
	if err := s.client.Rename(s.abs(from), s.abs(to)); err != nil {
		return mapSFTPError(err, from)
	}
	return nil
}

func (s *SFTP) OpenRead(p string) (io.ReadCloser, error) {
	release, err := s.acquire()
	if err != nil {
		return nil, err
	}
	target := s.abs(p)
	f, err := s.client.Open(target)
	if err != nil {
		release()
		return nil, mapSFTPError(err, target)
	}
	return &sftpReadHandle{f: f, path: target, release: release}, nil
}

func (s *SFTP) OpenWrite(p string, appendMode bool) (io.WriteCloser, error) {
	release, err := s.acquire()
	if err != nil {
		return nil, err
	}
	target := s.abs(p)
	flags := os.O_WRONLY | os.O_CREATE
	if appendMode {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := s.client.OpenFile(target, flags)
	if err != nil {
		release()
		return nil, mapSFTPError(err, target)
	}
	return &sftpWriteHandle{f: f, path: target, release: release}, nil
}

func (s *SFTP) ResolveSymlink(p string) (string, error) {
	release, err := s.acquire()
	if err != nil {
		return "", err
	}
	defer release()
	target := s.abs(p)
	resolved, err := s.client.ReadLink(target)
	if err != nil {
		return "", mapSFTPError(err, target)
	}
	return resolved, nil
}

func (s *SFTP) abs(p string) string {
	if p == "" {
		return s.wd
	}
	if path.IsAbs(p) {
		return path.Clean(p)
	}
	return path.Join(s.wd, p)
}

func (s *SFTP) entryFromInfo(absPath string, info fs.FileInfo) entity.RemoteEntry {
	entry := entity.RemoteEntry{
		Name:      info.Name(),
		Path:      absPath,
		IsDir:     info.IsDir(),
		IsSymlink: info.Mode()&fs.ModeSymlink != 0,
		Size:      info.Size(),
		Mode:      info.Mode(),
		ModeKnown: true,
		ModTime:   info.ModTime(),
	}
	if stat, ok := info.Sys().(*sftp.FileStat); ok {
		uid, gid := stat.UID, stat.GID
		entry.UID = &uid
		entry.GID = &gid
	}
	if entry.IsSymlink {
		if target, err := s.client.ReadLink(absPath); err == nil {
			entry.SymlinkTarget = target
		}
	}
	return entry
}

// sftpReadHandle keeps the session guard held until the stream is closed.
type sftpReadHandle struct {
	f       *sftp.File
	path    string
	release func()
	done    bool
}

func (h *sftpReadHandle) Read(b []byte) (int, error) {
	n, err := h.f.Read(b)
	if err != nil && err != io.EOF {
		return n, mapSFTPError(err, h.path)
	}
	return n, err
}

func (h *sftpReadHandle) Close() error {
	if h.done {
		return nil
	}
	h.done = true
	err := h.f.Close()
	h.release()
	if err != nil {
		return mapSFTPError(err, h.path)
	}
	return nil
}

type sftpWriteHandle struct {
	f       *sftp.File
	path    string
	release func()
	done    bool
}

func (h *sftpWriteHandle) Write(b []byte) (int, error) {
	n, err := h.f.Write(b)
	if err != nil {
		return n, mapSFTPError(err, h.path)
	}
	return n, nil
}

func (h *sftpWriteHandle) Close() error {
	if h.done {
		return nil
	}
	h.done = true
	err := h.f.Close()
	h.release()
	if err != nil {
		return mapSFTPError(err, h.path)
	}
	return nil
}

// mapSFTPError maps the subsystem's status codes onto the bridge taxonomy
// instead of collapsing them into one generic error.
func mapSFTPError(err error, path string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, os.ErrNotExist), errors.Is(err, sftp.ErrSSHFxNoSuchFile):
		return NewError(KindNotFound, path, err)
	case errors.Is(err, os.ErrPermission), errors.Is(err, sftp.ErrSSHFxPermissionDenied):
		return NewError(KindPermission, path, err)
	case errors.Is(err, sftp.ErrSSHFxOpUnsupported), errors.Is(err, sftp.ErrSSHFxBadMessage):
		return NewError(KindProtocol, path, err)
	case errors.Is(err, io.ErrUnexpectedEOF):
		return NewError(KindProtocol, path, err)
	default:
		var statusErr *sftp.StatusError
		if errors.As(err, &statusErr) {
			return NewError(KindProtocol, path, err)
		}
		var netErr net.Error
		if errors.As(err, &netErr) {
			return connectionError(path, err)
		}
		if errors.Is(err, sftp.ErrSSHFxConnectionLost) || errors.Is(err, io.EOF) {
			return connectionError(path, err)
		}
		return NewError(KindIO, path, err)
	}
}
