// Package localfs is the reference pagefile.Directory/pagefile.PageFile
// implementation used by this repository's tests, cmd/demo and
// cmd/benchmark. It is not part of the engine's required surface — any host
// satisfying pagefile.Directory works — but gives the engine somewhere to
// run outside an embedded target.
//
// Backed by afero.Fs, it works identically over a real OS directory
// (afero.NewOsFs) or an in-memory one (afero.NewMemMapFs, handy for
// WAL-crash-recovery tests that need to snapshot and restore file bytes
// without touching disk). When the underlying afero.File is backed by a
// real *os.File, an exclusive advisory golang.org/x/sys/unix.Flock is taken
// on every file it opens (the engine's DB and DB_WAL) to enforce exactly
// one writer per engine instance, and
// unix.Fdatasync backs Flush instead of afero's best-effort Sync.
package localfs

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/afero"
	"golang.org/x/sys/unix"

	"github.com/stufffdb/stufffdb/pagefile"
)

// Directory adapts an afero.Fs rooted at dirPath into a pagefile.Directory.
type Directory struct {
	fs      afero.Fs
	dirPath string
}

// New returns a Directory rooted at dirPath on fs. Callers typically pass
// afero.NewOsFs() for real use or afero.NewMemMapFs() for tests.
func New(fs afero.Fs, dirPath string) (*Directory, error) {
	if err := fs.MkdirAll(dirPath, 0o755); err != nil {
		return nil, fmt.Errorf("localfs: create dir %s: %w", dirPath, err)
	}
	return &Directory{fs: fs, dirPath: dirPath}, nil
}

func (d *Directory) path(name string) string {
	return d.dirPath + "/" + name
}

func openFlags(mode pagefile.Mode) int {
	switch mode {
	case pagefile.ModeReadOnly:
		return os.O_RDONLY
	case pagefile.ModeReadWriteAppend:
		return os.O_RDWR | os.O_APPEND
	case pagefile.ModeReadWriteTruncate:
		return os.O_RDWR | os.O_TRUNC
	case pagefile.ModeReadWriteCreate:
		return os.O_RDWR | os.O_CREATE | os.O_EXCL
	case pagefile.ModeReadWriteCreateOrTruncate:
		return os.O_RDWR | os.O_CREATE | os.O_TRUNC
	case pagefile.ModeReadWriteCreateOrAppend:
		return os.O_RDWR | os.O_CREATE
	default:
		return os.O_RDWR | os.O_CREATE
	}
}

// OpenFileInDir implements pagefile.Directory.
func (d *Directory) OpenFileInDir(name string, mode pagefile.Mode) (pagefile.PageFile, error) {
	f, err := d.fs.OpenFile(d.path(name), openFlags(mode), 0o644)
	if err != nil {
		return nil, fmt.Errorf("localfs: open %s: %w", name, err)
	}

	pf := &File{f: f}
	if osFile, ok := f.(*os.File); ok {
		if err := unix.Flock(int(osFile.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
			f.Close()
			return nil, fmt.Errorf("localfs: flock %s: %w", name, err)
		}
		pf.osFile = osFile
	}
	return pf, nil
}

// DeleteFileInDir implements pagefile.Directory.
func (d *Directory) DeleteFileInDir(name string) error {
	if err := d.fs.Remove(d.path(name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("localfs: delete %s: %w", name, err)
	}
	return nil
}

// File adapts an afero.File into a pagefile.PageFile.
type File struct {
	f      afero.File
	osFile *os.File // non-nil only when f is backed by a real OS file
}

func (pf *File) SeekFromStart(offset uint32) error {
	_, err := pf.f.Seek(int64(offset), io.SeekStart)
	return err
}

func (pf *File) SeekFromEnd(offset uint32) error {
	_, err := pf.f.Seek(-int64(offset), io.SeekEnd)
	return err
}

func (pf *File) Read(buf []byte) (int, error) {
	n, err := io.ReadFull(pf.f, buf)
	if err == io.ErrUnexpectedEOF {
		return n, io.EOF
	}
	return n, err
}

func (pf *File) Write(buf []byte) error {
	_, err := pf.f.Write(buf)
	return err
}

func (pf *File) Length() uint32 {
	info, err := pf.f.Stat()
	if err != nil {
		return 0
	}
	return uint32(info.Size())
}

func (pf *File) Flush() error {
	if pf.osFile != nil {
		return unix.Fdatasync(int(pf.osFile.Fd()))
	}
	return pf.f.Sync()
}

func (pf *File) Close() error {
	if pf.osFile != nil {
		_ = unix.Flock(int(pf.osFile.Fd()), unix.LOCK_UN)
	}
	return pf.f.Close()
}
