// Package access decides who may do what to a document and runs the
// advisory single-writer lock.
package access

import (
	"docshare/internal/document/model"
	"docshare/pkg/apperror"
)

// Role is the relation between a principal and one document.
type Role int

const (
	RoleNone Role = iota
	RoleEditor
	RoleOwner
)

func (r Role) String() string {
	switch r {
	case RoleOwner:
		return "owner"
	case RoleEditor:
		return "editor"
	default:
		return "none"
	}
}

// Resolve returns the principal's role on doc. Ownership wins over a
// (never expected) editor entry for the owner.
func Resolve(principal string, doc *model.Document) Role {
	switch {
	case principal == "" || doc == nil:
		return RoleNone
	case doc.OwnerID == principal:
		return RoleOwner
	case doc.HasEditor(principal):
		return RoleEditor
	default:
		return RoleNone
	}
}

// Action is a document-scoped operation that needs a role.
type Action int

const (
	ActionRead Action = iota
	ActionWrite
	ActionDelete
	ActionShare
	ActionManageEditors
	ActionLock
	ActionUnlock
)

// Allows reports whether r may perform a. Unlock additionally depends on
// who holds the lock; see Release.
func (r Role) Allows(a Action) bool {
	switch r {
	case RoleOwner:
		return true
	case RoleEditor:
		switch a {
		case ActionRead, ActionWrite, ActionLock, ActionUnlock:
			return true
		}
		return false
	default:
		return false
	}
}

var forbiddenMessages = map[Action]string{
	ActionRead:          "No access",
	ActionWrite:         "No access",
	ActionDelete:        "Only owner can delete",
	ActionShare:         "Only owner can share",
	ActionManageEditors: "Only owner can manage editors",
	ActionLock:          "No access",
	ActionUnlock:        "No permission to unlock",
}

// Authorize resolves the principal's role and returns a Forbidden error when
// it does not cover a.
func Authorize(principal string, doc *model.Document, a Action) (Role, error) {
	role := Resolve(principal, doc)
	if !role.Allows(a) {
		return role, apperror.Forbidden(forbiddenMessages[a])
	}
	return role, nil
}
