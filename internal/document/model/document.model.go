package model

import (
	"strings"
	"time"
)

const (
	MaxTitleLen   = 120
	snippetLength = 100
)

// Document is the stored aggregate. LockedBy and LockedAt may hold a stale
// lock; callers decide liveness against the clock.
type Document struct {
	ID          string
	OwnerID     string
	Title       string
	Content     string
	EditorIDs   []string
	IsPublic    bool
	PublicToken *string
	LockedBy    *string
	LockedAt    *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// HasEditor reports whether userID is in the editor set.
func (d *Document) HasEditor(userID string) bool {
	for _, id := range d.EditorIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so in-memory stores never share slices or pointers.
func (d *Document) Clone() *Document {
	c := *d
	c.EditorIDs = append([]string(nil), d.EditorIDs...)
	if d.PublicToken != nil {
		t := *d.PublicToken
		c.PublicToken = &t
	}
	if d.LockedBy != nil {
		b := *d.LockedBy
		c.LockedBy = &b
	}
	if d.LockedAt != nil {
		a := *d.LockedAt
		c.LockedAt = &a
	}
	return &c
}

type DocumentResponse struct {
	ID          string     `json:"id"`
	OwnerID     string     `json:"ownerId"`
	Title       string     `json:"title"`
	Content     string     `json:"content"`
	EditorIDs   []string   `json:"editorIds"`
	IsPublic    bool       `json:"isPublic"`
	PublicToken *string    `json:"publicToken"`
	Locked      bool       `json:"locked"`
	LockedBy    *string    `json:"lockedBy,omitempty"`
	LockedAt    *time.Time `json:"lockedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

type DocumentSummary struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	OwnerID     string    `json:"ownerId"`
	Role        string    `json:"role"`
	Snippet     string    `json:"snippet"`
	IsPublic    bool      `json:"isPublic"`
	PublicToken *string   `json:"publicToken,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// PublicDocument is everything an anonymous reader may see.
type PublicDocument struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type CreateDocRequest struct {
	Title   string  `json:"title"`
	Content *string `json:"content"`
}

// UpdateDocRequest uses pointers so absent fields are left untouched.
type UpdateDocRequest struct {
	Title   *string `json:"title"`
	Content *string `json:"content"`
}

type ShareRequest struct {
	IsPublic *bool `json:"isPublic"`
}

type ShareResponse struct {
	IsPublic    bool    `json:"isPublic"`
	PublicToken *string `json:"publicToken"`
}

type AddEditorRequest struct {
	Email string `json:"email"`
}

type EditorsResponse struct {
	OK        bool     `json:"ok"`
	EditorIDs []string `json:"editorIds"`
}

type LockResponse struct {
	OK       bool       `json:"ok"`
	Locked   bool       `json:"locked"`
	LockedBy *string    `json:"lockedBy,omitempty"`
	LockedAt *time.Time `json:"lockedAt,omitempty"`
}

type OKResponse struct {
	OK bool `json:"ok"`
}

var newlines = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

// Snippet returns the first characters of content on a single line.
func Snippet(content string) string {
	r := []rune(content)
	truncated := len(r) > snippetLength
	if truncated {
		r = r[:snippetLength]
	}
	s := strings.TrimSpace(newlines.Replace(string(r)))
	if truncated {
		return s + "..."
	}
	return s
}
