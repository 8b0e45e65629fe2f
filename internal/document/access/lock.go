package access

import (
	"time"

	"docshare/internal/document/model"
	"docshare/pkg/apperror"
)

// DefaultLockTTL is how long an unrenewed lock stays active.
const DefaultLockTTL = 10 * time.Minute

// LockState is the lock as readers should see it: a stale holder is
// reported as unlocked.
type LockState struct {
	Locked   bool
	HolderID string
	Since    time.Time
}

// IsLockActive reports whether doc carries a holder whose lock has not
// outlived ttl. The boundary itself is still active.
func IsLockActive(doc *model.Document, now time.Time, ttl time.Duration) bool {
	if doc.LockedBy == nil || *doc.LockedBy == "" || doc.LockedAt == nil {
		return false
	}
	return now.Sub(*doc.LockedAt) <= ttl
}

func State(doc *model.Document, now time.Time, ttl time.Duration) LockState {
	if !IsLockActive(doc, now, ttl) {
		return LockState{}
	}
	return LockState{Locked: true, HolderID: *doc.LockedBy, Since: *doc.LockedAt}
}

// CheckWrite fails with a LockConflictError when someone other than
// principal holds an active lock. It never changes the lock.
func CheckWrite(doc *model.Document, principal string, now time.Time, ttl time.Duration) error {
	st := State(doc, now, ttl)
	if st.Locked && st.HolderID != principal {
		return &apperror.LockConflictError{HolderID: st.HolderID, Since: st.Since}
	}
	return nil
}

// Acquire makes principal the holder as of now. It succeeds on an unlocked
// or expired lock and on re-acquire by the current holder, which refreshes
// the timestamp.
func Acquire(doc *model.Document, principal string, now time.Time, ttl time.Duration) error {
	if err := CheckWrite(doc, principal, now, ttl); err != nil {
		return err
	}
	holder, since := principal, now
	doc.LockedBy = &holder
	doc.LockedAt = &since
	return nil
}

// Release clears the lock for the owner or the stored holder, whether or not
// the lock is still active. Membership is not required of the holder, so an
// editor removed while holding the lock can still let go of it. Everyone else
// gets Forbidden. It reports whether doc changed.
func Release(doc *model.Document, principal string, role Role) (bool, error) {
	isHolder := doc.LockedBy != nil && *doc.LockedBy == principal
	if role != RoleOwner && !isHolder {
		return false, apperror.Forbidden(forbiddenMessages[ActionUnlock])
	}
	changed := doc.LockedBy != nil || doc.LockedAt != nil
	doc.LockedBy = nil
	doc.LockedAt = nil
	return changed, nil
}
