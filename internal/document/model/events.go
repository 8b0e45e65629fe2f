package model

import "time"

// Event types pushed to viewers of a document.
const (
	EventDocumentUpdated = "DOCUMENT_UPDATED"
	EventLockChanged     = "LOCK_CHANGED"
	EventShareChanged    = "SHARE_CHANGED"
	EventEditorsChanged  = "EDITORS_CHANGED"
	EventDeleted         = "DELETED"
)

type DocumentUpdatedPayload struct {
	Title     string    `json:"title"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type LockChangedPayload struct {
	Locked   bool       `json:"locked"`
	LockedBy *string    `json:"lockedBy,omitempty"`
	LockedAt *time.Time `json:"lockedAt,omitempty"`
}

type ShareChangedPayload struct {
	IsPublic bool `json:"isPublic"`
}

type EditorsChangedPayload struct {
	EditorIDs []string `json:"editorIds"`
}
