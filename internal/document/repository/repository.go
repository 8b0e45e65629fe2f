package repository

import (
	"context"

	"docshare/internal/document/model"
)

// Repository stores documents and their editor sets.
type Repository interface {
	Create(ctx context.Context, doc *model.Document) error
	FindByID(ctx context.Context, id string) (*model.Document, error)
	// ListByMember returns documents owned or edited by userID, most recently
	// updated first. Editor sets are not loaded.
	ListByMember(ctx context.Context, userID string) ([]*model.Document, error)
	// FindPublic returns the document carrying token only while it is public.
	FindPublic(ctx context.Context, token string) (*model.Document, error)
	// Update loads the document under a row lock, lets fn mutate it and
	// persists the result in one transaction. An error from fn rolls back.
	Update(ctx context.Context, id string, fn func(doc *model.Document) error) (*model.Document, error)
	// Delete removes the document when check passes, in one transaction.
	Delete(ctx context.Context, id string, check func(doc *model.Document) error) error
}
