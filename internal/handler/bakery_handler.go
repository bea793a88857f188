package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"badger/bakery-api/internal/model"
	"badger/bakery-api/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	maxBodyBytes = 100 << 10
	itemsTTL     = time.Hour
	imagesTTL    = 24 * time.Hour
)

type orderCreatedResponse struct {
	Msg      string    `json:"msg"`
	ID       int64     `json:"id"`
	PlacedOn time.Time `json:"placedOn"`
}

type ordersResponse struct {
	Msg    string        `json:"msg"`
	Orders []model.Order `json:"orders"`
}

func (h *Handler) GetItems(w http.ResponseWriter, r *http.Request) {
	setExpiry(w, h.now(), itemsTTL)
	writeJSON(w, http.StatusOK, h.catalog)
}

func (h *Handler) GetImage(w http.ResponseWriter, r *http.Request) {
	name := strings.ToLower(chi.URLParam(r, "name"))
	if !h.catalog.IsValidName(name) {
		h.notFound(w, r)
		return
	}
	setExpiry(w, h.now(), imagesTTL)
	http.ServeFile(w, r, filepath.Join(h.imagesDir, name+".png"))
}

func (h *Handler) GetOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.RecentOrders(r.Context())
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ordersResponse{Msg: msgOrdersListed, Orders: orders})
}

func (h *Handler) PostOrder(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(r.Context())
	if !ok {
		writeMsg(w, http.StatusUnauthorized, msgMissingIdentity)
		return
	}

	raw, err := decodeOrderRequest(w, r)
	if err != nil {
		h.logger.Warn("failed to decode order", "error", err, "request_id", middleware.GetReqID(r.Context()))
		h.writeUnhandled(w, r)
		return
	}

	receipt, err := h.orders.PlaceOrder(r.Context(), identity, raw)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, orderCreatedResponse{Msg: msgOrderCreated, ID: receipt.ID, PlacedOn: receipt.PlacedOn})
	case errors.Is(err, service.ErrUnknownItem):
		writeMsg(w, http.StatusBadRequest, msgUnknownItem)
	case errors.Is(err, service.ErrMalformedQuantity):
		writeMsg(w, http.StatusBadRequest, msgMalformed)
	case errors.Is(err, service.ErrQuantityTooHigh):
		writeMsg(w, http.StatusRequestEntityTooLarge, msgTooMuch)
	case errors.Is(err, service.ErrEmptyOrder):
		writeMsg(w, http.StatusTeapot, msgEmptyOrder)
	default:
		h.writeStoreError(w, r, err)
	}
}

func (h *Handler) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	var storeErr *service.StoreError
	if !errors.As(err, &storeErr) {
		h.logger.Error("unexpected order error", "error", err, "request_id", middleware.GetReqID(r.Context()))
		h.writeUnhandled(w, r)
		return
	}
	h.logger.Error("order store failed", "op", storeErr.Op, "error", storeErr.Err, "request_id", middleware.GetReqID(r.Context()))
	writeJSON(w, http.StatusInternalServerError, storeErrorResponse{Msg: msgStoreFailed, Error: storeErr.Err.Error()})
}

// decodeOrderRequest reads a JSON or form-encoded order body. Any other
// content type yields an empty order.
func decodeOrderRequest(w http.ResponseWriter, r *http.Request) (service.OrderRequest, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/json":
		return decodeJSONOrder(r, data)
	case "application/x-www-form-urlencoded":
		return decodeFormOrder(r, data)
	default:
		return service.OrderRequest{}, nil
	}
}

// decodeJSONOrder accepts an object or an array at the top level. Array
// elements are keyed by their index, which never names a catalog item.
func decodeJSONOrder(r *http.Request, data []byte) (service.OrderRequest, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return service.OrderRequest{}, nil
	}

	var fields map[string]json.RawMessage
	switch trimmed[0] {
	case '{':
		if err := json.Unmarshal(trimmed, &fields); err != nil {
			return nil, fmt.Errorf("invalid json body: %w", err)
		}
	case '[':
		var elems []json.RawMessage
		if err := json.Unmarshal(trimmed, &elems); err != nil {
			return nil, fmt.Errorf("invalid json body: %w", err)
		}
		fields = make(map[string]json.RawMessage, len(elems))
		for i, elem := range elems {
			fields[strconv.Itoa(i)] = elem
		}
	default:
		return nil, fmt.Errorf("json body must be an object or an array")
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, data); err == nil {
		captureBody(r.Context(), compact.String())
	}

	raw := make(service.OrderRequest, len(fields))
	for name, value := range fields {
		raw[name] = classifyJSON(value)
	}
	return raw, nil
}

func classifyJSON(value json.RawMessage) service.RawValue {
	text := strings.TrimSpace(string(value))
	if text == "" {
		return service.OtherValue(text)
	}
	switch c := text[0]; {
	case c == '"':
		var s string
		if err := json.Unmarshal(value, &s); err != nil {
			return service.OtherValue(text)
		}
		return service.StringValue(s)
	case c == '-' || (c >= '0' && c <= '9'):
		return service.NumberValue(text)
	default:
		return service.OtherValue(text)
	}
}

func decodeFormOrder(r *http.Request, data []byte) (service.OrderRequest, error) {
	values, err := url.ParseQuery(string(data))
	if err != nil {
		return nil, fmt.Errorf("invalid form body: %w", err)
	}

	if echo, err := json.Marshal(values); err == nil {
		captureBody(r.Context(), string(echo))
	}

	raw := make(service.OrderRequest, len(values))
	for name, vs := range values {
		if len(vs) == 1 {
			raw[name] = service.StringValue(vs[0])
		} else {
			raw[name] = service.OtherValue(strings.Join(vs, ","))
		}
	}
	return raw, nil
}
