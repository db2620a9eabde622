package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/Sternrassler/marketplace-gateway/pkg/client"
	"github.com/Sternrassler/marketplace-gateway/pkg/guard"
	"github.com/Sternrassler/marketplace-gateway/pkg/logging"
	"github.com/Sternrassler/marketplace-gateway/pkg/metrics"
	"github.com/Sternrassler/marketplace-gateway/pkg/orders"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// maxBodyBytes bounds request bodies accepted by mutation routes.
const maxBodyBytes = 64 << 10

// newServer builds the proxy routes. redisClient may be nil.
func newServer(svc *orders.Service, redisClient *redis.Client, logger zerolog.Logger) http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("GET /vendors/{vendorID}", getVendorHandler(svc))
	api.HandleFunc("GET /vendors/{vendorID}/orders", listOrdersHandler(svc))
	api.HandleFunc("GET /vendors/{vendorID}/orders/{orderID}", getOrderHandler(svc))
	api.HandleFunc("PUT /vendors/{vendorID}/orders/{orderID}/status", updateStatusHandler(svc))
	api.HandleFunc("POST /vendors/{vendorID}/orders/{orderID}/notes", addNoteHandler(svc))
	api.HandleFunc("PUT /vendors/{vendorID}/products/{productID}/stock", updateStockHandler(svc))
	api.HandleFunc("DELETE /vendors/{vendorID}/products/{productID}", deleteProductHandler(svc))
	api.HandleFunc("GET /orders", listAllOrdersHandler(svc))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler)
	mux.HandleFunc("GET /ready", readyHandler(redisClient))
	mux.Handle("GET /metrics", metrics.Handler())
	mux.Handle("/", guard.Middleware(api))

	return logging.AccessLog(logger)(mux)
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

// readyHandler reports 503 when the configured Redis is unreachable.
func readyHandler(redisClient *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if redisClient != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := redisClient.Ping(ctx).Err(); err != nil {
				http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "OK")
	}
}

func getVendorHandler(svc *orders.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := svc.GetVendor(r.Context(), r.PathValue("vendorID"))
		writeResult(w, res, err)
	}
}

func listOrdersHandler(svc *orders.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		opts := orders.ListOptions{Status: q.Get("status")}
		opts.Page, _ = strconv.Atoi(q.Get("page"))
		opts.PerPage, _ = strconv.Atoi(q.Get("per_page"))

		res, err := svc.ListOrders(r.Context(), r.PathValue("vendorID"), opts)
		writeResult(w, res, err)
	}
}

func getOrderHandler(svc *orders.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := svc.GetOrder(r.Context(), r.PathValue("vendorID"), r.PathValue("orderID"))
		writeResult(w, res, err)
	}
}

func updateStatusHandler(svc *orders.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Status string `json:"status"`
		}
		if !decodeBody(w, r, &body) {
			return
		}
		res, err := svc.UpdateOrderStatus(r.Context(), r.PathValue("vendorID"), r.PathValue("orderID"), body.Status)
		writeResult(w, res, err)
	}
}

func addNoteHandler(svc *orders.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Note string `json:"note"`
		}
		if !decodeBody(w, r, &body) {
			return
		}
		res, err := svc.AddOrderNote(r.Context(), r.PathValue("vendorID"), r.PathValue("orderID"), body.Note)
		writeResult(w, res, err)
	}
}

func updateStockHandler(svc *orders.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Quantity *int `json:"stock_quantity"`
		}
		if !decodeBody(w, r, &body) {
			return
		}
		if body.Quantity == nil {
			writeFailure(w, &client.Failure{
				Code:        client.CodeValidation,
				Message:     "stock_quantity is required",
				FieldErrors: map[string][]string{"stock_quantity": {"stock_quantity is required"}},
			})
			return
		}
		res, err := svc.UpdateProductStock(r.Context(), r.PathValue("vendorID"), r.PathValue("productID"), *body.Quantity)
		writeResult(w, res, err)
	}
}

func deleteProductHandler(svc *orders.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := svc.DeleteProduct(r.Context(), r.PathValue("vendorID"), r.PathValue("productID"))
		writeResult(w, res, err)
	}
}

func listAllOrdersHandler(svc *orders.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := svc.ListAllOrders(r.Context(), r.URL.Query().Get("status"))
		writeResult(w, res, err)
	}
}

// decodeBody decodes a JSON request body, answering 422 on malformed input.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeFailure(w, &client.Failure{
			Code:    client.CodeValidation,
			Message: "invalid request body: " + err.Error(),
		})
		return false
	}
	return true
}

type successEnvelope struct {
	Data     any        `json:"data"`
	Cached   bool       `json:"cached"`
	CachedAt *time.Time `json:"cached_at,omitempty"`
}

type errorBody struct {
	Code        client.Code         `json:"code"`
	Message     string              `json:"message"`
	Reason      client.Reason       `json:"reason,omitempty"`
	FieldErrors map[string][]string `json:"field_errors,omitempty"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

// writeResult renders a Result as a JSON envelope. A session expired error
// is rendered as a 401 with reason session_expired.
func writeResult[T any](w http.ResponseWriter, res client.Result[T], err error) {
	var sessionErr *client.SessionExpiredError
	if errors.As(err, &sessionErr) {
		writeFailure(w, sessionErr.Failure)
		return
	}
	if err != nil {
		writeFailure(w, &client.Failure{Code: client.CodeServerError, Message: err.Error()})
		return
	}
	if res.Failure != nil {
		writeFailure(w, res.Failure)
		return
	}

	env := successEnvelope{Data: res.Success.Data, Cached: res.Success.Cached}
	if res.Success.Cached {
		at := res.Success.CachedAt
		env.CachedAt = &at
	}
	writeJSON(w, http.StatusOK, env)
}

func writeFailure(w http.ResponseWriter, f *client.Failure) {
	writeJSON(w, f.HTTPStatus(), errorEnvelope{Error: errorBody{
		Code:        f.Code,
		Message:     f.Message,
		Reason:      f.Reason,
		FieldErrors: f.FieldErrors,
	}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
