//go:build !unix

package memory

import "os"

// lockExclusive/lockShared/unlock are no-ops outside unix: the
// in-process mutex in Journal already serializes writers within one
// process, and cross-process coordination on these platforms is left
// to the caller.
func lockExclusive(f *os.File) error { return nil }
func lockShared(f *os.File) error    { return nil }
func unlock(f *os.File) error        { return nil }
