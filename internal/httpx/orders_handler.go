package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/ariefcatur/go-live-orders/internal/orders"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

type OrdersRepo interface {
	GetOrder(ctx context.Context, tenantID, orderID string) (*orders.Order, error)
	ListProducts(ctx context.Context, tenantID string) ([]orders.Product, error)
	CreateProduct(ctx context.Context, p *orders.Product) error
}

type OrdersHandler struct {
	Repo OrdersRepo
}

type CreateProductReq struct {
	Code       string           `json:"code" validate:"required,alphanum,startswith=C"`
	Name       string           `json:"name" validate:"required"`
	PriceCents int64            `json:"price_cents" validate:"gte=0"`
	Stock      int              `json:"stock" validate:"gte=0"`
	SaleType   orders.EventType `json:"sale_type" validate:"required,oneof=LIVE BAZAR"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Get("/tenants/{tenantID}/orders/{id}", h.getOrder)
	r.Get("/tenants/{tenantID}/products", h.listProducts)
	r.Post("/tenants/{tenantID}/products", h.createProduct)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	tenantID, orderID := chi.URLParam(r, "tenantID"), chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.Repo.GetOrder(ctx, tenantID, orderID)
	if err != nil {
		if errors.Is(err, orders.ErrOrderNotFound) {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		log.Error().Err(err).Str("tenant_id", tenantID).Str("order_id", orderID).Msg("http: get order")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ps, err := h.Repo.ListProducts(ctx, chi.URLParam(r, "tenantID"))
	if err != nil {
		log.Error().Err(err).Msg("http: list products")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

func (h *OrdersHandler) createProduct(w http.ResponseWriter, r *http.Request) {
	var req CreateProductReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if errs := validateStruct(req); errs != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": "validation failed", "fields": errs})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	p := &orders.Product{
		TenantID:   chi.URLParam(r, "tenantID"),
		Code:       req.Code,
		Name:       req.Name,
		PriceCents: orders.Cents(req.PriceCents),
		Stock:      req.Stock,
		IsActive:   true,
		SaleType:   req.SaleType,
	}
	if err := h.Repo.CreateProduct(ctx, p); err != nil {
		if errors.Is(err, orders.ErrDuplicateCode) {
			writeError(w, http.StatusConflict, "product code already exists")
			return
		}
		log.Error().Err(err).Str("tenant_id", p.TenantID).Msg("http: create product")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusCreated, p)
}
