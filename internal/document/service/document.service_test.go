package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"docshare/internal/auth/token"
	"docshare/internal/document/access"
	"docshare/internal/document/model"
	"docshare/internal/document/repository"
	userModel "docshare/internal/user/model"
	userRepo "docshare/internal/user/repository"
	userService "docshare/internal/user/service"
	"docshare/pkg/apperror"
	"docshare/pkg/clock"
	"docshare/pkg/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type published struct {
	DocID, Type, UserID string
	Payload             any
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []published
	closed []string
	kicked [][2]string
}

func (n *recordingNotifier) Publish(docID, eventType, userID string, payload any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, published{docID, eventType, userID, payload})
}

func (n *recordingNotifier) CloseRoom(docID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closed = append(n.closed, docID)
}

func (n *recordingNotifier) Kick(docID, userID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.kicked = append(n.kicked, [2]string{docID, userID})
}

func (n *recordingNotifier) types() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, e := range n.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	svc   *DocumentService
	users *userService.UserService
	clock *clock.Fake
	hub   *recordingNotifier
	m     *metrics.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	c := clock.NewFake(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))
	users := userService.NewUserService(userRepo.NewMemoryRepository(), token.NewManager("s", time.Hour, c), bcrypt.MinCost, c)
	hub := &recordingNotifier{}
	m := metrics.New()
	svc := NewDocumentService(repository.NewMemoryRepository(), users, hub, c, 0, m)
	return &fixture{svc: svc, users: users, clock: c, hub: hub, m: m}
}

func (f *fixture) register(t *testing.T, name string) userModel.PublicUser {
	t.Helper()
	resp, err := f.users.Register(context.Background(), userModel.RegisterRequest{
		Email: name + "@example.com", Username: name, Password: "secret1",
	})
	require.NoError(t, err)
	return resp.User
}

func strPtr(s string) *string { return &s }

func TestCreate(t *testing.T) {
	f := newFixture(t)
	a := f.register(t, "alice")

	doc, err := f.svc.Create(context.Background(), a.ID, model.CreateDocRequest{Title: "  Notes  "})
	require.NoError(t, err)
	assert.Equal(t, "Notes", doc.Title)
	assert.Equal(t, "", doc.Content)
	assert.Equal(t, a.ID, doc.OwnerID)
	assert.Equal(t, []string{}, doc.EditorIDs)
	assert.False(t, doc.IsPublic)
	assert.Nil(t, doc.PublicToken)
	assert.False(t, doc.Locked)

	_, err = f.svc.Create(context.Background(), a.ID, model.CreateDocRequest{Title: "   "})
	assert.ErrorIs(t, err, apperror.ErrValidation)

	long := make([]rune, model.MaxTitleLen+1)
	for i := range long {
		long[i] = 'x'
	}
	_, err = f.svc.Create(context.Background(), a.ID, model.CreateDocRequest{Title: string(long)})
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

// Owner locks out nobody until an editor takes the lock; release reopens writes.
func TestLockScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "alice")
	b := f.register(t, "bob")

	doc, err := f.svc.Create(ctx, a.ID, model.CreateDocRequest{Title: "Notes"})
	require.NoError(t, err)

	eds, err := f.svc.AddEditor(ctx, a.ID, doc.ID, "Bob@Example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{b.ID}, eds.EditorIDs)

	lock, err := f.svc.AcquireLock(ctx, b.ID, doc.ID)
	require.NoError(t, err)
	assert.True(t, lock.Locked)
	assert.Equal(t, b.ID, *lock.LockedBy)

	f.clock.Advance(time.Minute)
	_, err = f.svc.Update(ctx, a.ID, doc.ID, model.UpdateDocRequest{Title: strPtr("Notes2")})
	var lc *apperror.LockConflictError
	require.ErrorAs(t, err, &lc)
	assert.Equal(t, b.ID, lc.HolderID)

	got, err := f.svc.Get(ctx, a.ID, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "Notes", got.Title, "rejected write leaves nothing behind")
	assert.True(t, got.Locked)

	rel, err := f.svc.ReleaseLock(ctx, b.ID, doc.ID)
	require.NoError(t, err)
	assert.False(t, rel.Locked)

	updated, err := f.svc.Update(ctx, a.ID, doc.ID, model.UpdateDocRequest{Title: strPtr("Notes2")})
	require.NoError(t, err)
	assert.Equal(t, "Notes2", updated.Title)
	assert.Equal(t, f.clock.Now(), updated.UpdatedAt)
	assert.False(t, updated.Locked, "writes do not take the lock")

	rec := httptest.NewRecorder()
	f.m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), `docshare_lock_operations_total{op="write_check",outcome="conflict"} 1`)
	assert.Contains(t, rec.Body.String(), `docshare_lock_operations_total{op="acquire",outcome="ok"} 1`)
	assert.Equal(t, []string{
		model.EventEditorsChanged, model.EventLockChanged, model.EventLockChanged, model.EventDocumentUpdated,
	}, f.hub.types())
}

func TestLockExpiryAndSteal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "alice")
	b := f.register(t, "bob")
	doc, err := f.svc.Create(ctx, a.ID, model.CreateDocRequest{Title: "Notes"})
	require.NoError(t, err)
	_, err = f.svc.AddEditor(ctx, a.ID, doc.ID, "bob@example.com")
	require.NoError(t, err)

	_, err = f.svc.AcquireLock(ctx, a.ID, doc.ID)
	require.NoError(t, err)

	_, err = f.svc.AcquireLock(ctx, b.ID, doc.ID)
	assert.ErrorIs(t, err, apperror.ErrConflict)

	f.clock.Advance(access.DefaultLockTTL)
	_, err = f.svc.AcquireLock(ctx, b.ID, doc.ID)
	assert.ErrorIs(t, err, apperror.ErrConflict, "exactly TTL old is still held")

	f.clock.Advance(time.Millisecond)
	got, err := f.svc.Get(ctx, b.ID, doc.ID)
	require.NoError(t, err)
	assert.False(t, got.Locked, "stale holder is not reported")
	assert.Nil(t, got.LockedBy)

	lock, err := f.svc.AcquireLock(ctx, b.ID, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, b.ID, *lock.LockedBy)
	assert.Equal(t, f.clock.Now(), *lock.LockedAt)
}

func TestReleasePermissions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "alice")
	b := f.register(t, "bob")
	c := f.register(t, "carol")
	x := f.register(t, "xavier")
	doc, err := f.svc.Create(ctx, a.ID, model.CreateDocRequest{Title: "Notes"})
	require.NoError(t, err)
	for _, email := range []string{"bob@example.com", "carol@example.com"} {
		_, err = f.svc.AddEditor(ctx, a.ID, doc.ID, email)
		require.NoError(t, err)
	}

	_, err = f.svc.ReleaseLock(ctx, c.ID, doc.ID)
	assert.ErrorIs(t, err, apperror.ErrForbidden, "only the owner or holder may unlock")

	_, err = f.svc.AcquireLock(ctx, b.ID, doc.ID)
	require.NoError(t, err)

	_, err = f.svc.ReleaseLock(ctx, c.ID, doc.ID)
	assert.ErrorIs(t, err, apperror.ErrForbidden)
	_, err = f.svc.ReleaseLock(ctx, x.ID, doc.ID)
	assert.ErrorIs(t, err, apperror.ErrForbidden)

	rel, err := f.svc.ReleaseLock(ctx, a.ID, doc.ID)
	require.NoError(t, err, "owner clears any holder")
	assert.False(t, rel.Locked)

	_, err = f.svc.ReleaseLock(ctx, a.ID, doc.ID)
	require.NoError(t, err, "idempotent")
}

func TestRemovedEditorCanReleaseOwnLock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "alice")
	b := f.register(t, "bob")
	doc, err := f.svc.Create(ctx, a.ID, model.CreateDocRequest{Title: "Notes"})
	require.NoError(t, err)
	_, err = f.svc.AddEditor(ctx, a.ID, doc.ID, "bob@example.com")
	require.NoError(t, err)

	_, err = f.svc.AcquireLock(ctx, b.ID, doc.ID)
	require.NoError(t, err)
	_, err = f.svc.RemoveEditor(ctx, a.ID, doc.ID, b.ID)
	require.NoError(t, err)

	rel, err := f.svc.ReleaseLock(ctx, b.ID, doc.ID)
	require.NoError(t, err)
	assert.False(t, rel.Locked)

	got, err := f.svc.Get(ctx, a.ID, doc.ID)
	require.NoError(t, err)
	assert.False(t, got.Locked)
	assert.Nil(t, got.LockedBy)
}

func TestRoleGates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "alice")
	b := f.register(t, "bob")
	x := f.register(t, "xavier")
	doc, err := f.svc.Create(ctx, a.ID, model.CreateDocRequest{Title: "Notes"})
	require.NoError(t, err)
	_, err = f.svc.AddEditor(ctx, a.ID, doc.ID, "bob@example.com")
	require.NoError(t, err)

	_, err = f.svc.Get(ctx, x.ID, doc.ID)
	assert.ErrorIs(t, err, apperror.ErrForbidden)
	_, err = f.svc.Update(ctx, x.ID, doc.ID, model.UpdateDocRequest{Content: strPtr("hi")})
	assert.ErrorIs(t, err, apperror.ErrForbidden)
	_, err = f.svc.AcquireLock(ctx, x.ID, doc.ID)
	assert.ErrorIs(t, err, apperror.ErrForbidden)

	_, err = f.svc.Update(ctx, b.ID, doc.ID, model.UpdateDocRequest{Content: strPtr("hi")})
	assert.NoError(t, err)

	assert.ErrorIs(t, f.svc.Delete(ctx, b.ID, doc.ID), apperror.ErrForbidden)
	_, err = f.svc.SetPublic(ctx, b.ID, doc.ID, true)
	assert.ErrorIs(t, err, apperror.ErrForbidden)
	_, err = f.svc.AddEditor(ctx, b.ID, doc.ID, "xavier@example.com")
	assert.ErrorIs(t, err, apperror.ErrForbidden)
	_, err = f.svc.RemoveEditor(ctx, b.ID, doc.ID, b.ID)
	assert.ErrorIs(t, err, apperror.ErrForbidden)

	_, err = f.svc.Get(ctx, a.ID, "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	_, err = f.svc.SetPublic(ctx, a.ID, doc.ID, true)
	require.NoError(t, err)
	_, err = f.svc.Get(ctx, x.ID, doc.ID)
	assert.ErrorIs(t, err, apperror.ErrForbidden, "public flag does not open authenticated reads")
}

func TestEditorManagement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "alice")
	b := f.register(t, "bob")
	c := f.register(t, "carol")
	doc, err := f.svc.Create(ctx, a.ID, model.CreateDocRequest{Title: "Notes"})
	require.NoError(t, err)

	_, err = f.svc.AddEditor(ctx, a.ID, doc.ID, "alice@example.com")
	assert.ErrorIs(t, err, apperror.ErrValidation)
	assert.Equal(t, "Owner already has access", apperror.Message(err))

	_, err = f.svc.AddEditor(ctx, a.ID, doc.ID, "nobody@example.com")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	assert.Equal(t, "User not found", apperror.Message(err))

	_, err = f.svc.AddEditor(ctx, a.ID, doc.ID, "not-an-email")
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, err = f.svc.AddEditor(ctx, a.ID, doc.ID, "bob@example.com")
	require.NoError(t, err)
	eds, err := f.svc.AddEditor(ctx, a.ID, doc.ID, "carol@example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{b.ID, c.ID}, eds.EditorIDs)

	eds, err = f.svc.AddEditor(ctx, a.ID, doc.ID, "bob@example.com")
	require.NoError(t, err, "idempotent")
	assert.Equal(t, []string{b.ID, c.ID}, eds.EditorIDs)

	// Bob takes the lock, then loses access; the lock stays until it expires.
	_, err = f.svc.AcquireLock(ctx, b.ID, doc.ID)
	require.NoError(t, err)

	eds, err = f.svc.RemoveEditor(ctx, a.ID, doc.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{c.ID}, eds.EditorIDs)
	assert.Equal(t, [][2]string{{doc.ID, b.ID}}, f.hub.kicked)

	got, err := f.svc.Get(ctx, a.ID, doc.ID)
	require.NoError(t, err)
	assert.True(t, got.Locked)
	assert.Equal(t, b.ID, *got.LockedBy)

	_, err = f.svc.Get(ctx, b.ID, doc.ID)
	assert.ErrorIs(t, err, apperror.ErrForbidden)

	eds, err = f.svc.RemoveEditor(ctx, a.ID, doc.ID, b.ID)
	require.NoError(t, err, "idempotent")
	assert.Equal(t, []string{c.ID}, eds.EditorIDs)
	assert.Len(t, f.hub.kicked, 1)
}

// Sharing mints one token, keeps it across toggles, and the flag alone gates reads.
func TestShareScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "alice")
	doc, err := f.svc.Create(ctx, a.ID, model.CreateDocRequest{Title: "Notes", Content: strPtr("hello")})
	require.NoError(t, err)

	share, err := f.svc.SetPublic(ctx, a.ID, doc.ID, false)
	require.NoError(t, err)
	assert.Nil(t, share.PublicToken)

	share, err = f.svc.SetPublic(ctx, a.ID, doc.ID, true)
	require.NoError(t, err)
	require.NotNil(t, share.PublicToken)
	tok := *share.PublicToken

	again, err := f.svc.SetPublic(ctx, a.ID, doc.ID, true)
	require.NoError(t, err)
	assert.Equal(t, tok, *again.PublicToken)

	pub, err := f.svc.GetPublic(ctx, tok)
	require.NoError(t, err)
	assert.Equal(t, model.PublicDocument{
		ID: doc.ID, Title: "Notes", Content: "hello", CreatedAt: doc.CreatedAt, UpdatedAt: pub.UpdatedAt,
	}, *pub)

	off, err := f.svc.SetPublic(ctx, a.ID, doc.ID, false)
	require.NoError(t, err)
	assert.False(t, off.IsPublic)
	assert.Equal(t, tok, *off.PublicToken)

	_, err = f.svc.GetPublic(ctx, tok)
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	on, err := f.svc.SetPublic(ctx, a.ID, doc.ID, true)
	require.NoError(t, err)
	assert.Equal(t, tok, *on.PublicToken)

	_, err = f.svc.GetPublic(ctx, "unknown")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	_, err = f.svc.GetPublic(ctx, "")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestListAndDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "alice")
	b := f.register(t, "bob")

	first, err := f.svc.Create(ctx, a.ID, model.CreateDocRequest{Title: "First"})
	require.NoError(t, err)
	f.clock.Advance(time.Second)
	second, err := f.svc.Create(ctx, b.ID, model.CreateDocRequest{Title: "Second"})
	require.NoError(t, err)
	_, err = f.svc.AddEditor(ctx, b.ID, second.ID, "alice@example.com")
	require.NoError(t, err)
	_, err = f.svc.SetPublic(ctx, b.ID, second.ID, true)
	require.NoError(t, err)

	list, err := f.svc.List(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, "editor", list[0].Role)
	assert.Nil(t, list[0].PublicToken, "token only shown to the owner")
	assert.Equal(t, first.ID, list[1].ID)
	assert.Equal(t, "owner", list[1].Role)

	require.NoError(t, f.svc.Delete(ctx, b.ID, second.ID))
	assert.Equal(t, []string{second.ID}, f.hub.closed)

	list, err = f.svc.List(ctx, a.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	assert.ErrorIs(t, f.svc.Delete(ctx, b.ID, second.ID), apperror.ErrNotFound)
}

func TestUpdate_PartialFields(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "alice")
	doc, err := f.svc.Create(ctx, a.ID, model.CreateDocRequest{Title: "Notes", Content: strPtr("v1")})
	require.NoError(t, err)

	got, err := f.svc.Update(ctx, a.ID, doc.ID, model.UpdateDocRequest{Content: strPtr("v2")})
	require.NoError(t, err)
	assert.Equal(t, "Notes", got.Title)
	assert.Equal(t, "v2", got.Content)

	_, err = f.svc.Update(ctx, a.ID, doc.ID, model.UpdateDocRequest{Title: strPtr("")})
	assert.ErrorIs(t, err, apperror.ErrValidation)
}
