package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/opawatch/tracker/pkg/common/logger"
	"github.com/opawatch/tracker/pkg/validate"
)

// UpdateStore is the read side the HTTP boundary needs.
type UpdateStore interface {
	ListUpdates(ctx context.Context, limit, offset int) ([]Update, error)
	GetUpdate(ctx context.Context, id uint) (*Update, error)
	ListRefreshes(ctx context.Context, limit, offset int) ([]Refresh, error)
}

type HTTPHandler struct {
	service  *Service
	store    UpdateStore
	finder   CaseFinder
	pageSize int
}

func NewHTTPHandler(service *Service, store UpdateStore, finder CaseFinder, pageSize int) *HTTPHandler {
	if pageSize <= 0 {
		pageSize = 25
	}
	return &HTTPHandler{service: service, store: store, finder: finder, pageSize: pageSize}
}

func (h *HTTPHandler) Register(router *mux.Router) {
	router.HandleFunc("/updates", h.handleListUpdates).Methods(http.MethodGet)
	router.HandleFunc("/updates/{id}", h.handleGetUpdate).Methods(http.MethodGet)
	router.HandleFunc("/refreshes", h.handleListRefreshes).Methods(http.MethodGet)
	router.HandleFunc("/case", h.handleCase).Methods(http.MethodGet)
}

func (h *HTTPHandler) handleListUpdates(w http.ResponseWriter, r *http.Request) {
	// Requests double as refresh triggers; a no-op when nothing is due.
	if h.service != nil {
		h.service.Update(r.Context(), time.Now())
	}

	page := parsePage(r)
	updates, err := h.store.ListUpdates(r.Context(), h.pageSize, (page-1)*h.pageSize)
	if err != nil {
		logger.Log.WithError(err).Error("failed to list updates")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"items": updates, "page": page})
}

func (h *HTTPHandler) handleGetUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		http.Error(w, "invalid update id", http.StatusBadRequest)
		return
	}

	update, err := h.store.GetUpdate(r.Context(), uint(id))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "update not found", http.StatusNotFound)
			return
		}
		logger.Log.WithError(err).Error("failed to get update")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, update)
}

func (h *HTTPHandler) handleListRefreshes(w http.ResponseWriter, r *http.Request) {
	page := parsePage(r)
	refreshes, err := h.store.ListRefreshes(r.Context(), h.pageSize, (page-1)*h.pageSize)
	if err != nil {
		logger.Log.WithError(err).Error("failed to list refreshes")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"items": refreshes, "page": page})
}

func (h *HTTPHandler) handleCase(w http.ResponseWriter, r *http.Request) {
	caseNum := r.URL.Query().Get("id")
	if caseNum == "" || validate.Field(caseNum, validate.CaseNum, "") == "" {
		http.Error(w, "invalid case number", http.StatusBadRequest)
		return
	}

	result, err := h.finder.FindCase(r.Context(), caseNum)
	if err != nil {
		logger.Log.WithError(err).Error("failed to look up case")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if result == nil {
		http.Error(w, "case not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func parsePage(r *http.Request) int {
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		return 1
	}
	return page
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
