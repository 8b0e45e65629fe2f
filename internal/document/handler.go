package handler

import (
	"net/http"

	"docshare/internal/document/model"
	"docshare/internal/document/service"
	"docshare/middleware"
	"docshare/pkg/apperror"
	"docshare/pkg/respond"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

type DocumentHandler struct {
	Service *service.DocumentService
}

func NewDocumentHandler(service *service.DocumentService) *DocumentHandler {
	return &DocumentHandler{Service: service}
}

var errInvalidID = apperror.Validation("Invalid id")

// pathID returns the named route variable if it is a well-formed id.
func pathID(r *http.Request, name string) (string, error) {
	raw := mux.Vars(r)[name]
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", errInvalidID
	}
	return id.String(), nil
}

// principal returns the authenticated user and the document id from the path.
func principal(w http.ResponseWriter, r *http.Request) (userID, docID string, ok bool) {
	userID, ok = middleware.UserID(r.Context())
	if !ok {
		respond.Error(w, http.StatusUnauthorized, "Unauthorized")
		return "", "", false
	}
	docID, err := pathID(r, "id")
	if err != nil {
		respond.FromError(w, r, err)
		return "", "", false
	}
	return userID, docID, true
}

func (h *DocumentHandler) CreateDocument(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		respond.Error(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req model.CreateDocRequest
	if err := respond.Decode(w, r, &req); err != nil {
		respond.FromError(w, r, err)
		return
	}

	doc, err := h.Service.Create(r.Context(), userID, req)
	if err != nil {
		respond.FromError(w, r, err)
		return
	}
	respond.JSON(w, http.StatusCreated, doc)
}

func (h *DocumentHandler) GetDocuments(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		respond.Error(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	docs, err := h.Service.List(r.Context(), userID)
	if err != nil {
		respond.FromError(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, docs)
}

func (h *DocumentHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	userID, docID, ok := principal(w, r)
	if !ok {
		return
	}

	doc, err := h.Service.Get(r.Context(), userID, docID)
	if err != nil {
		respond.FromError(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, doc)
}

func (h *DocumentHandler) UpdateDocument(w http.ResponseWriter, r *http.Request) {
	userID, docID, ok := principal(w, r)
	if !ok {
		return
	}

	var req model.UpdateDocRequest
	if err := respond.Decode(w, r, &req); err != nil {
		respond.FromError(w, r, err)
		return
	}

	doc, err := h.Service.Update(r.Context(), userID, docID, req)
	if err != nil {
		respond.FromError(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, doc)
}

func (h *DocumentHandler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	userID, docID, ok := principal(w, r)
	if !ok {
		return
	}

	if err := h.Service.Delete(r.Context(), userID, docID); err != nil {
		respond.FromError(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, model.OKResponse{OK: true})
}

func (h *DocumentHandler) ShareDocument(w http.ResponseWriter, r *http.Request) {
	userID, docID, ok := principal(w, r)
	if !ok {
		return
	}

	var req model.ShareRequest
	if err := respond.Decode(w, r, &req); err != nil {
		respond.FromError(w, r, err)
		return
	}
	if req.IsPublic == nil {
		respond.FromError(w, r, apperror.Validation("Invalid input: isPublic is required"))
		return
	}

	resp, err := h.Service.SetPublic(r.Context(), userID, docID, *req.IsPublic)
	if err != nil {
		respond.FromError(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, resp)
}

func (h *DocumentHandler) AddEditor(w http.ResponseWriter, r *http.Request) {
	userID, docID, ok := principal(w, r)
	if !ok {
		return
	}

	var req model.AddEditorRequest
	if err := respond.Decode(w, r, &req); err != nil {
		respond.FromError(w, r, err)
		return
	}

	resp, err := h.Service.AddEditor(r.Context(), userID, docID, req.Email)
	if err != nil {
		respond.FromError(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, resp)
}

func (h *DocumentHandler) RemoveEditor(w http.ResponseWriter, r *http.Request) {
	userID, docID, ok := principal(w, r)
	if !ok {
		return
	}
	editorID, err := pathID(r, "editorId")
	if err != nil {
		respond.FromError(w, r, err)
		return
	}

	resp, err := h.Service.RemoveEditor(r.Context(), userID, docID, editorID)
	if err != nil {
		respond.FromError(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, resp)
}

func (h *DocumentHandler) LockDocument(w http.ResponseWriter, r *http.Request) {
	userID, docID, ok := principal(w, r)
	if !ok {
		return
	}

	resp, err := h.Service.AcquireLock(r.Context(), userID, docID)
	if err != nil {
		respond.FromError(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, resp)
}

func (h *DocumentHandler) UnlockDocument(w http.ResponseWriter, r *http.Request) {
	userID, docID, ok := principal(w, r)
	if !ok {
		return
	}

	resp, err := h.Service.ReleaseLock(r.Context(), userID, docID)
	if err != nil {
		respond.FromError(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, resp)
}

// GetPublicDocument serves a share link without authentication.
func (h *DocumentHandler) GetPublicDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := h.Service.GetPublic(r.Context(), mux.Vars(r)["token"])
	if err != nil {
		respond.FromError(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, doc)
}
