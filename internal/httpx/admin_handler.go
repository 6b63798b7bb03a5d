package httpx

import (
	"context"
	"net/http"

	"github.com/ariefcatur/go-live-orders/internal/outbound"
	"github.com/ariefcatur/go-live-orders/internal/session"
	"github.com/go-chi/chi/v5"
)

type QueueAdmin interface {
	Stats(tenantID string) outbound.Stats
	Size(tenantID string) int
	Draining(tenantID string) bool
	Peek(tenantID string) (outbound.Job, bool)
	Clear(tenantID string)
}

type SessionDiagnoser interface {
	Diagnose(ctx context.Context, tenantID string) session.Diagnosis
}

// AdminHandler exposes the worker's delivery queue to operators.
type AdminHandler struct {
	Queue    QueueAdmin
	Sessions SessionDiagnoser
}

type QueueResp struct {
	TenantID string         `json:"tenant_id"`
	Size     int            `json:"size"`
	Draining bool           `json:"draining"`
	Stats    outbound.Stats `json:"stats"`
	Head     *HeadJob       `json:"head,omitempty"`
}

// HeadJob is the job a paused or halted queue is waiting on.
type HeadJob struct {
	ID        string `json:"id"`
	Recipient string `json:"recipient"`
	Attempts  int    `json:"attempts"`
	LastError string `json:"last_error,omitempty"`
}

func (h *AdminHandler) Register(r chi.Router) {
	r.Get("/tenants/{tenantID}/queue", h.queueStats)
	r.Delete("/tenants/{tenantID}/queue", h.clearQueue)
	r.Get("/tenants/{tenantID}/session", h.sessionStatus)
}

func (h *AdminHandler) queueStats(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "tenantID")
	resp := QueueResp{
		TenantID: id,
		Size:     h.Queue.Size(id),
		Draining: h.Queue.Draining(id),
		Stats:    h.Queue.Stats(id),
	}
	if j, ok := h.Queue.Peek(id); ok {
		resp.Head = &HeadJob{ID: j.ID, Recipient: j.Recipient, Attempts: j.Attempts, LastError: j.LastError}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *AdminHandler) clearQueue(w http.ResponseWriter, r *http.Request) {
	h.Queue.Clear(chi.URLParam(r, "tenantID"))
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) sessionStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Sessions.Diagnose(r.Context(), chi.URLParam(r, "tenantID")))
}
