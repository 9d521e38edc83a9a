package bridge

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/m-manu/portage/entity"
)

// Local exposes the local filesystem through the Bridge contract, so the
// transfer engine can treat "this machine" as just another endpoint.
// Unlike the network backends it allows concurrent streams: os file handles
// are independent and there is no protocol session to protect.
type Local struct {
	state State
	wd    string
}

// NewLocal returns a Local rooted at root ("" = process working directory).
func NewLocal(root string) *Local {
	return &Local{wd: root}
}

func (l *Local) Protocol() Protocol { return ProtocolLocal }

func (l *Local) State() State { return l.state }

func (l *Local) Connect(ctx context.Context) error {
	if l.wd == "" {
		wd, err := os.Getwd()
		if err != nil {
			return NewError(KindIO, "", err)
		}
		l.wd = wd
	}
	abs, err := filepath.Abs(l.wd)
	if err != nil {
		return NewError(KindIO, l.wd, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return mapOSError(err, abs)
	}
	if !info.IsDir() {
		return NewError(KindNotFound, abs, fs.ErrInvalid)
	}
	l.wd = abs
	l.state = StateConnected
	return nil
}

func (l *Local) Disconnect() error {
	l.state = StateDisconnected
	return nil
}

func (l *Local) Pwd() (string, error) {
	if l.state != StateConnected {
		return "", notConnectedError()
	}
	return l.wd, nil
}

func (l *Local) ChangeDirectory(path string) error {
	if l.state != StateConnected {
		return notConnectedError()
	}
	target := l.abs(path)
	info, err := os.Stat(target)
	if err != nil {
		return mapOSError(err, target)
	}
	if !info.IsDir() {
		return NewError(KindNotFound, target, fs.ErrInvalid)
	}
	l.wd = target
	return nil
}

func (l *Local) List(path string) (Listing, error) {
	if l.state != StateConnected {
		return Listing{}, notConnectedError()
	}
	dir := l.abs(path)
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return Listing{}, mapOSError(err, dir)
	}
	listing := Listing{Entries: make([]entity.RemoteEntry, 0, len(dirEntries))}
	for _, de := range dirEntries {
		info, infoErr := de.Info()
		if infoErr != nil {
			listing.Skipped++
			continue
		}
		listing.Entries = append(listing.Entries, l.entryFromInfo(filepath.Join(dir, de.Name()), info))
	}
	return listing, nil
}

func (l *Local) Stat(path string) (entity.RemoteEntry, error) {
	if l.state != StateConnected {
		return entity.RemoteEntry{}, notConnectedError()
	}
	target := l.abs(path)
	info, err := os.Lstat(target)
	if err != nil {
		return entity.RemoteEntry{}, mapOSError(err, target)
	}
	return l.entryFromInfo(target, info), nil
}

func (l *Local) IsDirectory(path string) (bool, error) {
	entry, err := l.Stat(path)
	if err != nil {
		return false, err
	}
	return entry.IsDir, nil
}

func (l *Local) CreateDirectory(path string) error {
	if l.state != StateConnected {
		return notConnectedError()
	}
	target := l.abs(path)
	if err := os.Mkdir(target, 0o755); err != nil {
		// An existing directory is fine; an existing file is not.
		if os.IsExist(err) {
			if info, statErr := os.Stat(target); statErr == nil && info.IsDir() {
				return nil
			}
		}
		return mapOSError(err, target)
	}
	return nil
}

func (l *Local) Remove(path string, recursive bool) error {
	if l.state != StateConnected {
		return notConnectedError()
	}
	target := l.abs(path)
	if _, err := os.Lstat(target); err != nil {
		return mapOSError(err, target)
	}
	var err error
	if recursive {
		err = os.RemoveAll(target)
	} else {
		err = os.Remove(target)
	}
	if err != nil {
		return mapOSError(err, target)
	}
	return nil
}

func (l *Local) Rename(from, to string) error {
	if l.state != StateConnected {
		return notConnectedError()
	}
	if err := os.Rename(l.abs(from), l.abs(to)); err != nil {
		return mapOSError(err, from)
	}
	return nil
}

func (l *Local) OpenRead(path string) (io.ReadCloser, error) {
	if l.state != StateConnected {
		return nil, notConnectedError()
	}
	target := l.abs(path)
	f, err := os.Open(target)
	if err != nil {
		return nil, mapOSError(err, target)
	}
	return f, nil
}

func (l *Local) OpenWrite(path string, appendMode bool) (io.WriteCloser, error) {
	if l.state != StateConnected {
		return nil, notConnectedError()
	}
	target := l.abs(path)
	flags := os.O_WRONLY | os.O_CREATE
	if appendMode {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(target, flags, 0o644)
	if err != nil {
		return nil, mapOSError(err, target)
	}
	return f, nil
}

func (l *Local) ResolveSymlink(path string) (string, error) {
	if l.state != StateConnected {
		return "", notConnectedError()
	}
	target := l.abs(path)
	resolved, err := os.Readlink(target)
	if err != nil {
		return "", mapOSError(err, target)
	}
	return resolved, nil
}

func (l *Local) abs(path string) string {
	if path == "" {
		return l.wd
	}
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(l.wd, path)
}

func (l *Local) entryFromInfo(absPath string, info fs.FileInfo) entity.RemoteEntry {
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
	if entry.IsSymlink {
		if target, err := os.Readlink(absPath); err == nil {
			entry.SymlinkTarget = target
		}
	}
	return entry
}

func mapOSError(err error, path string) error {
	switch {
	case err == nil:
		return nil
	case os.IsNotExist(err):
		return NewError(KindNotFound, path, err)
	case os.IsPermission(err):
		return NewError(KindPermission, path, err)
	default:
		return NewError(KindIO, path, err)
	}
}
