package store

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/google/renameio"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
	"k8s.io/klog/v2"
)

// File names under a state directory.
const (
	LedgerFile   = "ledger.json"
	RequestsFile = "requests.json"
	TotalsFile   = "totals.json"
	lockFile     = ".lock"
)

const formatVersion = "v1"

// Dir is an opened state directory. Holding it open excludes every other
// process opening the same directory until Close.
type Dir struct {
	path string
	lock *os.File
}

// Open creates path if needed and takes its exclusive lock, blocking until
// any other holder closes it.
func Open(path string) (*Dir, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, errors.Wrapf(err, "creating state dir %s", path)
	}
	f, err := os.OpenFile(filepath.Join(path, lockFile), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "opening lock file")
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		_ = f.Close()
		return nil, errors.Wrapf(err, "locking state dir %s", path)
	}
	klog.V(4).InfoS("State dir locked", "path", path)
	return &Dir{path: path, lock: f}, nil
}

// Path returns the directory path.
func (d *Dir) Path() string {
	return d.path
}

// Close releases the lock.
func (d *Dir) Close() error {
	if d.lock == nil {
		return nil
	}
	err := unix.Flock(int(d.lock.Fd()), unix.LOCK_UN)
	if cerr := d.lock.Close(); err == nil {
		err = cerr
	}
	d.lock = nil
	return err
}

// Ledger returns the ledger store backed by this directory.
func (d *Dir) Ledger() *LedgerStore {
	return &LedgerStore{path: filepath.Join(d.path, LedgerFile)}
}

// Requests returns the request store backed by this directory, loaded from
// disk.
func (d *Dir) Requests() (*RequestStore, error) {
	return newRequestStore(filepath.Join(d.path, RequestsFile))
}

// Totals returns the admission totals store backed by this directory.
func (d *Dir) Totals() *TotalsStore {
	return &TotalsStore{path: filepath.Join(d.path, TotalsFile)}
}

// writeJSON replaces path atomically with v encoded as JSON.
func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "encoding %s", filepath.Base(path))
	}
	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "writing %s", path)
	}
	klog.V(4).InfoS("State file written", "path", path, "bytes", len(data))
	return nil
}

// readJSON decodes path into v. A missing file leaves v untouched and reports
// false.
func readJSON(path string, v interface{}) (bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "reading %s", path)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, errors.Wrapf(err, "decoding %s", path)
	}
	return true, nil
}

func checkVersion(path, version string) error {
	if version != formatVersion {
		return errors.Errorf("%s: unsupported format version %q", path, version)
	}
	return nil
}
