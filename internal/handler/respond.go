package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

const (
	msgMissingIdentity = "You must specify a header X-CS571-ID!"
	msgInvalidIdentity = "You specified an invalid X-CS571-ID!"
	msgTooManyRequests = "Too many requests, please try again later."
	msgUnknownItem     = "A request may only be made for muffin, donut, pie, cupcake, croissant. Baked goods are case-sensitive (and heat-sensitive!)."
	msgMalformed       = "You may only request positive whole numbers of baked goods!"
	msgTooMuch         = "You request too much of us! This is a small town bakery."
	msgEmptyOrder      = "You must order something!"
	msgStoreFailed     = "The operation failed. The error is provided below. This may be server malfunction; check that your request is valid, otherwise contact CS571 staff."
	msgOrdersListed    = "Successfully got the latest orders!"
	msgOrderCreated    = "Successfully made order!"
	msgUnhandled       = "Oops! Something went wrong. Check to make sure that you are sending a valid request. Your recieved request is provided below. If it is empty, then it was most likely not provided or malformed. If you have verified that your request is valid, please contact the CS571 staff."
)

const unhandledTimeLayout = "1/2/2006 3:04:05 PM"

type msgResponse struct {
	Msg string `json:"msg"`
}

type storeErrorResponse struct {
	Msg   string `json:"msg"`
	Error string `json:"error"`
}

type unhandledResponse struct {
	ErrorMsg string `json:"error-msg"`
	ErrorReq string `json:"error-req"`
	DateTime string `json:"date-time"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeMsg(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, msgResponse{Msg: msg})
}

func (h *Handler) writeUnhandled(w http.ResponseWriter, r *http.Request) {
	body := capturedBodyFrom(r.Context())
	stamp := h.now().Format(unhandledTimeLayout)
	h.logger.Error(stamp+": Encountered an error processing "+body, "request_id", middleware.GetReqID(r.Context()))

	writeJSON(w, http.StatusInternalServerError, unhandledResponse{
		ErrorMsg: msgUnhandled,
		ErrorReq: body,
		DateTime: stamp,
	})
}

func setExpiry(w http.ResponseWriter, now time.Time, ttl time.Duration) {
	w.Header().Set("Cache-Control", "public, max-age="+strconv.Itoa(int(ttl.Seconds())))
	w.Header().Set("Expires", now.Add(ttl).UTC().Format(http.TimeFormat))
}
