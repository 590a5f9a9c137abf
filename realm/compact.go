package realm

import (
	"context"
	"runtime"

	"github.com/fulldump/realmdb/failure"
)

// compactionSupported is false where a file cannot be replaced while
// another process may have it open.
var compactionSupported = runtime.GOOS != "windows"

func (r *Realm) compactOnLaunch(ctx context.Context) error {
	f := r.config.ShouldCompactOnLaunch
	if f == nil || !compactionSupported || r.store.References() > 1 {
		return nil
	}

	total, used, err := r.store.Stats()
	if err != nil {
		return err
	}
	if !f(uint64(total), uint64(used)) {
		return nil
	}

	r.logger.Info("compacting on launch", "path", r.config.Path, "total", total, "used", used)
	return r.store.Compact(ctx)
}

// Compact rewrites the file keeping only the latest version. It reports
// false when other realms hold the same file.
func (r *Realm) Compact(ctx context.Context) (bool, error) {
	if err := r.verifyOpen(); err != nil {
		return false, err
	}
	if !compactionSupported {
		return false, failure.New(failure.UnsupportedOperation, "compaction is not supported on this platform")
	}
	if r.state == Writing || r.view {
		return false, failure.New(failure.InvalidTransactionState, "cannot compact a realm within a write transaction")
	}
	if r.store.References() > 1 {
		return false, nil
	}
	err := r.store.Compact(ctx)
	if err != nil {
		return false, err
	}
	r.read = r.store.Current()
	return true, nil
}

// WriteCopy writes the latest committed data to a new file, optionally
// encrypted with a different key.
func (r *Realm) WriteCopy(path string, key []byte) error {
	if err := r.verifyOpen(); err != nil {
		return err
	}
	if path == "" {
		return failure.New(failure.InvalidArgument, "path is required")
	}
	err := r.store.WriteCopy(path, key)
	if err != nil && failure.KindOf(err) == failure.Unknown {
		return failure.Wrap(failure.IOFailure, err, "write copy to '%s'", path)
	}
	return err
}

// Stats returns the bytes used by the file and the bytes its data would
// take once compacted.
func (r *Realm) Stats() (total, used int64, err error) {
	if err := r.verifyOpen(); err != nil {
		return 0, 0, err
	}
	return r.store.Stats()
}
