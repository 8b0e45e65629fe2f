package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"docshare/internal/document/access"
	"docshare/internal/document/model"
	"docshare/internal/document/repository"
	userModel "docshare/internal/user/model"
	userService "docshare/internal/user/service"
	"docshare/pkg/apperror"
	"docshare/pkg/clock"
	"docshare/pkg/logger"
	"docshare/pkg/metrics"

	"github.com/google/uuid"
)

// UserFinder resolves an email to an account for editor management.
type UserFinder interface {
	FindByEmail(ctx context.Context, email string) (*userModel.User, error)
}

// Notifier pushes document events to connected viewers.
type Notifier interface {
	Publish(docID, eventType, userID string, payload any)
	CloseRoom(docID string)
	Kick(docID, userID string)
}

type nopNotifier struct{}

func (nopNotifier) Publish(string, string, string, any) {}
func (nopNotifier) CloseRoom(string)                    {}
func (nopNotifier) Kick(string, string)                 {}

type DocumentService struct {
	Repo    repository.Repository
	Users   UserFinder
	Hub     Notifier
	Clock   clock.Clock
	LockTTL time.Duration
	Metrics *metrics.Registry
}

func NewDocumentService(repo repository.Repository, users UserFinder, hub Notifier, c clock.Clock, lockTTL time.Duration, m *metrics.Registry) *DocumentService {
	if hub == nil {
		hub = nopNotifier{}
	}
	if c == nil {
		c = clock.Real{}
	}
	if lockTTL <= 0 {
		lockTTL = access.DefaultLockTTL
	}
	return &DocumentService{Repo: repo, Users: users, Hub: hub, Clock: c, LockTTL: lockTTL, Metrics: m}
}

func (s *DocumentService) Create(ctx context.Context, userID string, req model.CreateDocRequest) (*model.DocumentResponse, error) {
	title, err := validTitle(req.Title)
	if err != nil {
		return nil, err
	}
	content := ""
	if req.Content != nil {
		content = *req.Content
	}

	now := s.Clock.Now()
	doc := &model.Document{
		ID:        uuid.NewString(),
		OwnerID:   userID,
		Title:     title,
		Content:   content,
		EditorIDs: []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.Repo.Create(ctx, doc); err != nil {
		return nil, err
	}
	logger.Sugar.Infow("Document created", "docId", doc.ID, "ownerId", userID)
	return s.toResponse(doc, now), nil
}

func (s *DocumentService) List(ctx context.Context, userID string) ([]model.DocumentSummary, error) {
	docs, err := s.Repo.ListByMember(ctx, userID)
	if err != nil {
		return nil, err
	}

	summaries := make([]model.DocumentSummary, 0, len(docs))
	for _, doc := range docs {
		role := access.RoleEditor
		if doc.OwnerID == userID {
			role = access.RoleOwner
		}
		sum := model.DocumentSummary{
			ID:        doc.ID,
			Title:     doc.Title,
			OwnerID:   doc.OwnerID,
			Role:      role.String(),
			Snippet:   model.Snippet(doc.Content),
			IsPublic:  doc.IsPublic,
			CreatedAt: doc.CreatedAt,
			UpdatedAt: doc.UpdatedAt,
		}
		if role == access.RoleOwner {
			sum.PublicToken = doc.PublicToken
		}
		summaries = append(summaries, sum)
	}
	return summaries, nil
}

func (s *DocumentService) Get(ctx context.Context, userID, docID string) (*model.DocumentResponse, error) {
	doc, err := s.Repo.FindByID(ctx, docID)
	if err != nil {
		return nil, err
	}
	if _, err := access.Authorize(userID, doc, access.ActionRead); err != nil {
		return nil, err
	}
	return s.toResponse(doc, s.Clock.Now()), nil
}

// Update applies a partial title/content change. It is refused while another
// principal holds an active lock and never takes the lock itself.
func (s *DocumentService) Update(ctx context.Context, userID, docID string, req model.UpdateDocRequest) (*model.DocumentResponse, error) {
	var title string
	if req.Title != nil {
		t, err := validTitle(*req.Title)
		if err != nil {
			return nil, err
		}
		title = t
	}

	now := s.Clock.Now()
	doc, err := s.Repo.Update(ctx, docID, func(doc *model.Document) error {
		if _, err := access.Authorize(userID, doc, access.ActionWrite); err != nil {
			return err
		}
		if err := access.CheckWrite(doc, userID, now, s.LockTTL); err != nil {
			s.Metrics.ObserveLock(metrics.OpWriteCheck, metrics.OutcomeConflict)
			return err
		}
		s.Metrics.ObserveLock(metrics.OpWriteCheck, metrics.OutcomeOK)

		if req.Title != nil {
			doc.Title = title
		}
		if req.Content != nil {
			doc.Content = *req.Content
		}
		doc.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Hub.Publish(doc.ID, model.EventDocumentUpdated, userID, model.DocumentUpdatedPayload{
		Title: doc.Title, UpdatedAt: doc.UpdatedAt,
	})
	return s.toResponse(doc, now), nil
}

func (s *DocumentService) Delete(ctx context.Context, userID, docID string) error {
	err := s.Repo.Delete(ctx, docID, func(doc *model.Document) error {
		_, err := access.Authorize(userID, doc, access.ActionDelete)
		return err
	})
	if err != nil {
		return err
	}

	logger.Sugar.Infow("Document deleted", "docId", docID, "userId", userID)
	s.Hub.Publish(docID, model.EventDeleted, userID, nil)
	s.Hub.CloseRoom(docID)
	return nil
}

func (s *DocumentService) SetPublic(ctx context.Context, userID, docID string, isPublic bool) (*model.ShareResponse, error) {
	now := s.Clock.Now()
	doc, err := s.Repo.Update(ctx, docID, func(doc *model.Document) error {
		if _, err := access.Authorize(userID, doc, access.ActionShare); err != nil {
			return err
		}
		if doc.IsPublic != isPublic || (isPublic && doc.PublicToken == nil) {
			doc.UpdatedAt = now
		}
		return access.SetPublic(doc, isPublic)
	})
	if err != nil {
		return nil, err
	}

	s.Hub.Publish(doc.ID, model.EventShareChanged, userID, model.ShareChangedPayload{IsPublic: doc.IsPublic})
	return &model.ShareResponse{IsPublic: doc.IsPublic, PublicToken: doc.PublicToken}, nil
}

// AddEditor grants edit access to the account registered under email.
// Adding an existing editor is a no-op.
func (s *DocumentService) AddEditor(ctx context.Context, userID, docID, email string) (*model.EditorsResponse, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !userService.ValidEmail(email) {
		return nil, apperror.Validation("Invalid input: email must be a valid address")
	}

	// Authorize before resolving the email so non-owners cannot probe accounts.
	current, err := s.Repo.FindByID(ctx, docID)
	if err != nil {
		return nil, err
	}
	if _, err := access.Authorize(userID, current, access.ActionManageEditors); err != nil {
		return nil, err
	}

	target, err := s.Users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.NotFound("User not found")
		}
		return nil, err
	}

	now := s.Clock.Now()
	changed := false
	doc, err := s.Repo.Update(ctx, docID, func(doc *model.Document) error {
		if _, err := access.Authorize(userID, doc, access.ActionManageEditors); err != nil {
			return err
		}
		if target.ID == doc.OwnerID {
			return apperror.Validation("Owner already has access")
		}
		if !doc.HasEditor(target.ID) {
			doc.EditorIDs = append(doc.EditorIDs, target.ID)
			doc.UpdatedAt = now
			changed = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.Hub.Publish(doc.ID, model.EventEditorsChanged, userID, model.EditorsChangedPayload{EditorIDs: doc.EditorIDs})
	}
	return &model.EditorsResponse{OK: true, EditorIDs: doc.EditorIDs}, nil
}

// RemoveEditor revokes edit access. A lock held by the removed editor is
// left to expire or to be released by the owner.
func (s *DocumentService) RemoveEditor(ctx context.Context, userID, docID, editorID string) (*model.EditorsResponse, error) {
	now := s.Clock.Now()
	changed := false
	doc, err := s.Repo.Update(ctx, docID, func(doc *model.Document) error {
		if _, err := access.Authorize(userID, doc, access.ActionManageEditors); err != nil {
			return err
		}
		kept := make([]string, 0, len(doc.EditorIDs))
		for _, id := range doc.EditorIDs {
			if id != editorID {
				kept = append(kept, id)
			}
		}
		if len(kept) != len(doc.EditorIDs) {
			doc.EditorIDs = kept
			doc.UpdatedAt = now
			changed = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.Hub.Publish(doc.ID, model.EventEditorsChanged, userID, model.EditorsChangedPayload{EditorIDs: doc.EditorIDs})
		s.Hub.Kick(doc.ID, editorID)
	}
	return &model.EditorsResponse{OK: true, EditorIDs: doc.EditorIDs}, nil
}

func (s *DocumentService) AcquireLock(ctx context.Context, userID, docID string) (*model.LockResponse, error) {
	now := s.Clock.Now()
	doc, err := s.Repo.Update(ctx, docID, func(doc *model.Document) error {
		if _, err := access.Authorize(userID, doc, access.ActionLock); err != nil {
			s.Metrics.ObserveLock(metrics.OpAcquire, metrics.OutcomeForbidden)
			return err
		}
		if err := access.Acquire(doc, userID, now, s.LockTTL); err != nil {
			s.Metrics.ObserveLock(metrics.OpAcquire, metrics.OutcomeConflict)
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.Metrics.ObserveLock(metrics.OpAcquire, metrics.OutcomeOK)

	resp := s.lockResponse(doc, now)
	s.Hub.Publish(doc.ID, model.EventLockChanged, userID, lockPayload(resp))
	return resp, nil
}

func (s *DocumentService) ReleaseLock(ctx context.Context, userID, docID string) (*model.LockResponse, error) {
	now := s.Clock.Now()
	changed := false
	doc, err := s.Repo.Update(ctx, docID, func(doc *model.Document) error {
		role := access.Resolve(userID, doc)
		c, err := access.Release(doc, userID, role)
		if err != nil {
			s.Metrics.ObserveLock(metrics.OpRelease, metrics.OutcomeForbidden)
			return err
		}
		changed = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.Metrics.ObserveLock(metrics.OpRelease, metrics.OutcomeOK)

	resp := s.lockResponse(doc, now)
	if changed {
		s.Hub.Publish(doc.ID, model.EventLockChanged, userID, lockPayload(resp))
	}
	return resp, nil
}

// GetPublic serves the anonymous read-only view behind a share link.
func (s *DocumentService) GetPublic(ctx context.Context, token string) (*model.PublicDocument, error) {
	if token == "" {
		return nil, apperror.NotFound("Not found")
	}
	doc, err := s.Repo.FindPublic(ctx, token)
	if err != nil {
		return nil, err
	}
	if !access.VisibleByToken(doc, token) {
		return nil, apperror.NotFound("Not found")
	}
	return &model.PublicDocument{
		ID:        doc.ID,
		Title:     doc.Title,
		Content:   doc.Content,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}, nil
}

// CanView reports whether userID may watch docID's event stream, returning
// the document title for the welcome message.
func (s *DocumentService) CanView(ctx context.Context, userID, docID string) (string, error) {
	doc, err := s.Repo.FindByID(ctx, docID)
	if err != nil {
		return "", err
	}
	if _, err := access.Authorize(userID, doc, access.ActionRead); err != nil {
		return "", err
	}
	return doc.Title, nil
}

func (s *DocumentService) toResponse(doc *model.Document, now time.Time) *model.DocumentResponse {
	editors := doc.EditorIDs
	if editors == nil {
		editors = []string{}
	}
	resp := &model.DocumentResponse{
		ID:          doc.ID,
		OwnerID:     doc.OwnerID,
		Title:       doc.Title,
		Content:     doc.Content,
		EditorIDs:   editors,
		IsPublic:    doc.IsPublic,
		PublicToken: doc.PublicToken,
		CreatedAt:   doc.CreatedAt,
		UpdatedAt:   doc.UpdatedAt,
	}
	if st := access.State(doc, now, s.LockTTL); st.Locked {
		resp.Locked = true
		resp.LockedBy = &st.HolderID
		resp.LockedAt = &st.Since
	}
	return resp
}

func (s *DocumentService) lockResponse(doc *model.Document, now time.Time) *model.LockResponse {
	resp := &model.LockResponse{OK: true}
	if st := access.State(doc, now, s.LockTTL); st.Locked {
		resp.Locked = true
		resp.LockedBy = &st.HolderID
		resp.LockedAt = &st.Since
	}
	return resp
}

func lockPayload(r *model.LockResponse) model.LockChangedPayload {
	return model.LockChangedPayload{Locked: r.Locked, LockedBy: r.LockedBy, LockedAt: r.LockedAt}
}

func validTitle(raw string) (string, error) {
	title := strings.TrimSpace(raw)
	if n := utf8.RuneCountInString(title); n < 1 || n > model.MaxTitleLen {
		return "", apperror.Validation(fmt.Sprintf("Invalid input: title must be 1-%d characters", model.MaxTitleLen))
	}
	return title, nil
}
