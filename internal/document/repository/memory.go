package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"docshare/internal/document/model"
	"docshare/pkg/apperror"
)

// MemoryRepository keeps documents in process memory. A single mutex
// serializes Update and Delete the way the row lock does in postgres.
type MemoryRepository struct {
	mu   sync.Mutex
	docs map[string]*model.Document
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{docs: make(map[string]*model.Document)}
}

func (r *MemoryRepository) Create(ctx context.Context, doc *model.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.docs[doc.ID]; ok {
		return fmt.Errorf("documents_pkey: %w", apperror.ErrDuplicate)
	}
	r.docs[doc.ID] = doc.Clone()
	return nil
}

func (r *MemoryRepository) FindByID(ctx context.Context, id string) (*model.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, ok := r.docs[id]
	if !ok {
		return nil, apperror.NotFound("Not found")
	}
	return doc.Clone(), nil
}

func (r *MemoryRepository) ListByMember(ctx context.Context, userID string) ([]*model.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	docs := []*model.Document{}
	for _, doc := range r.docs {
		if doc.OwnerID == userID || doc.HasEditor(userID) {
			c := doc.Clone()
			c.EditorIDs = nil
			docs = append(docs, c)
		}
	}
	sort.Slice(docs, func(i, j int) bool {
		if !docs[i].UpdatedAt.Equal(docs[j].UpdatedAt) {
			return docs[i].UpdatedAt.After(docs[j].UpdatedAt)
		}
		return docs[i].ID < docs[j].ID
	})
	return docs, nil
}

func (r *MemoryRepository) FindPublic(ctx context.Context, token string) (*model.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, doc := range r.docs {
		if doc.IsPublic && doc.PublicToken != nil && *doc.PublicToken == token {
			return doc.Clone(), nil
		}
	}
	return nil, apperror.NotFound("Not found")
}

func (r *MemoryRepository) Update(ctx context.Context, id string, fn func(doc *model.Document) error) (*model.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.docs[id]
	if !ok {
		return nil, apperror.NotFound("Not found")
	}
	work := stored.Clone()
	if err := fn(work); err != nil {
		return nil, err
	}
	if work.PublicToken != nil {
		for otherID, other := range r.docs {
			if otherID != id && other.PublicToken != nil && *other.PublicToken == *work.PublicToken {
				return nil, fmt.Errorf("documents_public_token_key: %w", apperror.ErrDuplicate)
			}
		}
	}
	r.docs[id] = work.Clone()
	return work, nil
}

func (r *MemoryRepository) Delete(ctx context.Context, id string, check func(doc *model.Document) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.docs[id]
	if !ok {
		return apperror.NotFound("Not found")
	}
	if err := check(stored.Clone()); err != nil {
		return err
	}
	delete(r.docs, id)
	return nil
}
