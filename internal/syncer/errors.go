package syncer

import "errors"

// ErrConsistency marks a read-back verification failure: the stores
// answered with different metadata for the same image after a sync. The
// metadata file write is authoritative and is never rolled back; callers
// surface this as a warning.
var ErrConsistency = errors.New("stores disagree after synchronization")
