// Package orders implements the marketplace operations exposed by the
// gateway. Every operation checks the caller through the guard before any
// backend call and announces successful mutations to the invalidation
// coupler.
package orders

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/Sternrassler/marketplace-gateway/pkg/client"
	"github.com/Sternrassler/marketplace-gateway/pkg/guard"
	"github.com/Sternrassler/marketplace-gateway/pkg/invalidation"
	"github.com/Sternrassler/marketplace-gateway/pkg/pagination"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Service runs marketplace operations against the backend.
type Service struct {
	client  *client.Client
	coupler *invalidation.Coupler
	pages   *pagination.BatchFetcher
	logger  zerolog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithPagination sets the fetcher used by ListAllOrders.
func WithPagination(cfg pagination.Config) Option {
	return func(s *Service) {
		s.pages = pagination.NewBatchFetcher(pagination.NewClientFetcher(s.client), cfg)
	}
}

// WithLogger sets the service logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService creates a service. A nil coupler disables invalidation.
func NewService(c *client.Client, coupler *invalidation.Coupler, opts ...Option) *Service {
	s := &Service{
		client:  c,
		coupler: coupler,
		logger:  log.With().Str("component", "orders").Logger(),
	}
	s.pages = pagination.NewBatchFetcher(pagination.NewClientFetcher(c), pagination.DefaultConfig())
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// denied converts a guard error into a failed Result.
func denied[T any](err error) (client.Result[T], error) {
	return client.Fail[T](guard.FailureFrom(err)), nil
}

func invalid[T any](field, msg string) (client.Result[T], error) {
	return client.Fail[T](&client.Failure{
		Code:        client.CodeValidation,
		Message:     msg,
		FieldErrors: map[string][]string{field: {msg}},
	}), nil
}

// GetOrder returns an order owned by vendorID.
func (s *Service) GetOrder(ctx context.Context, vendorID, orderID string) (client.Result[Order], error) {
	decision, err := guard.ValidateOwnership(ctx, vendorID)
	if err != nil {
		return denied[Order](err)
	}

	res, err := client.Get[Order](ctx, s.client, "/wc/v3/orders/"+url.PathEscape(orderID), nil,
		client.WithTags(invalidation.OrderTag(orderID)))
	if err != nil || !res.IsOk() {
		return res, err
	}

	// The caller owns vendorID; the order must belong to it too.
	if owner := res.Success.Data.VendorID(); !decision.IsAdmin && owner != vendorID {
		s.logger.Warn().
			Str("order_id", orderID).
			Str("vendor_id", vendorID).
			Str("order_vendor_id", owner).
			Msg("Order belongs to another vendor")
		return client.Fail[Order](&client.Failure{
			Code:    client.CodeForbidden,
			Message: "order belongs to another vendor",
		}), nil
	}

	return res, nil
}

// ListOrders returns one page of vendorID's orders.
func (s *Service) ListOrders(ctx context.Context, vendorID string, opts ListOptions) (client.Result[OrderPage], error) {
	if _, err := guard.ValidateOwnership(ctx, vendorID); err != nil {
		return denied[OrderPage](err)
	}
	if opts.Status != "" && !ValidStatus(opts.Status) {
		return invalid[OrderPage]("status", fmt.Sprintf("unknown order status %q", opts.Status))
	}

	page := opts.Page
	if page <= 0 {
		page = 1
	}
	perPage := opts.PerPage
	if perPage <= 0 || perPage > 100 {
		perPage = 20
	}

	query := url.Values{}
	query.Set("seller_id", vendorID)
	query.Set("page", strconv.Itoa(page))
	query.Set("per_page", strconv.Itoa(perPage))
	if opts.Status != "" {
		query.Set("status", opts.Status)
	}

	res, err := client.Get[[]Order](ctx, s.client, "/dokan/v1/orders", query,
		client.WithTags(invalidation.SellerOrdersTag(vendorID)))
	if err != nil || !res.IsOk() {
		return client.Result[OrderPage]{Failure: res.Failure}, err
	}

	total, totalPages := client.PageInfo(res.Success.Header)
	if res.Success.Cached {
		total, totalPages = len(res.Success.Data), 1
	}

	return client.Ok(client.Success[OrderPage]{
		Data: OrderPage{
			Orders:     res.Success.Data,
			Page:       page,
			Total:      total,
			TotalPages: totalPages,
		},
		Status:   res.Success.Status,
		Cached:   res.Success.Cached,
		CachedAt: res.Success.CachedAt,
		Header:   res.Success.Header,
		Tags:     res.Success.Tags,
	}), nil
}

// ListAllOrders fetches every order matching status across all vendors.
// Restricted to admins and operators.
func (s *Service) ListAllOrders(ctx context.Context, status string) (client.Result[[]Order], error) {
	if _, err := guard.RequireRole(ctx, guard.RoleAdmin, guard.RoleOperator); err != nil {
		return denied[[]Order](err)
	}
	if status != "" && !ValidStatus(status) {
		return invalid[[]Order]("status", fmt.Sprintf("unknown order status %q", status))
	}

	query := url.Values{}
	if status != "" {
		query.Set("status", status)
	}

	pages, err := s.pages.FetchAllPages(ctx, "/wc/v3/orders", query)
	if err != nil {
		var sessionErr *client.SessionExpiredError
		if errors.As(err, &sessionErr) {
			return client.Fail[[]Order](sessionErr.Failure), err
		}
		var failure *client.Failure
		if errors.As(err, &failure) {
			return client.Fail[[]Order](failure), nil
		}
		if errors.Is(err, pagination.ErrPagingUnknown) {
			return client.Fail[[]Order](&client.Failure{Code: client.CodeTimeout, Message: err.Error()}), nil
		}
		return client.Fail[[]Order](&client.Failure{Code: client.CodeNetworkError, Message: err.Error()}), nil
	}

	all, err := pagination.Flatten[Order](pages.Data)
	if err != nil {
		return client.Fail[[]Order](&client.Failure{
			Code:    client.CodeServerError,
			Reason:  client.ReasonDecode,
			Message: err.Error(),
		}), nil
	}

	return client.Ok(client.Success[[]Order]{
		Data:     all,
		Status:   200,
		Cached:   pages.Cached,
		CachedAt: pages.CachedAt,
	}), nil
}

// mutators are the roles allowed to change orders and products. Operators
// only read, through ListAllOrders.
var mutators = []guard.Role{guard.RoleAdmin, guard.RoleSeller}

// UpdateOrderStatus sets the status of an order owned by vendorID and
// invalidates the order and the vendor's order views.
func (s *Service) UpdateOrderStatus(ctx context.Context, vendorID, orderID, status string) (client.Result[Order], error) {
	if _, err := guard.RequireRole(ctx, mutators...); err != nil {
		return denied[Order](err)
	}
	if !ValidStatus(status) {
		return invalid[Order]("status", fmt.Sprintf("unknown order status %q", status))
	}

	current, err := s.GetOrder(ctx, vendorID, orderID)
	if err != nil || !current.IsOk() {
		return current, err
	}

	tags := []string{
		invalidation.OrderTag(orderID),
		invalidation.SellerOrdersTag(vendorID),
		invalidation.SellerDashboardTag(vendorID),
	}

	res, err := client.Put[Order](ctx, s.client, "/wc/v3/orders/"+url.PathEscape(orderID),
		map[string]string{"status": status}, client.WithTags(tags...))
	if err != nil || !res.IsOk() {
		return res, err
	}

	s.invalidate(ctx, "update_order_status", res.Success.Tags)

	s.logger.Info().
		Str("order_id", orderID).
		Str("vendor_id", vendorID).
		Str("status", status).
		Msg("Order status updated")

	return res, nil
}

// AddOrderNote attaches a private note to an order owned by vendorID.
func (s *Service) AddOrderNote(ctx context.Context, vendorID, orderID, note string) (client.Result[OrderNote], error) {
	if _, err := guard.RequireRole(ctx, mutators...); err != nil {
		return denied[OrderNote](err)
	}
	if note == "" {
		return invalid[OrderNote]("note", "note must not be empty")
	}

	current, err := s.GetOrder(ctx, vendorID, orderID)
	if err != nil || !current.IsOk() {
		return client.Result[OrderNote]{Failure: current.Failure}, err
	}

	res, err := client.Post[OrderNote](ctx, s.client, "/wc/v3/orders/"+url.PathEscape(orderID)+"/notes",
		map[string]any{"note": note, "customer_note": false},
		client.WithTags(invalidation.OrderTag(orderID)))
	if err != nil || !res.IsOk() {
		return res, err
	}

	s.invalidate(ctx, "add_order_note", res.Success.Tags)
	return res, nil
}

// GetVendor returns the store of vendorID.
func (s *Service) GetVendor(ctx context.Context, vendorID string) (client.Result[Store], error) {
	if _, err := guard.ValidateOwnership(ctx, vendorID); err != nil {
		return denied[Store](err)
	}
	return client.Get[Store](ctx, s.client, "/dokan/v1/stores/"+url.PathEscape(vendorID), nil,
		client.WithTags(invalidation.SellerDashboardTag(vendorID)))
}

// getOwnedProduct loads a product and checks that it belongs to vendorID's
// store. The caller must already own vendorID. Admins may touch any product.
func (s *Service) getOwnedProduct(ctx context.Context, vendorID, productID string) (client.Result[Product], error) {
	decision, err := guard.ValidateOwnership(ctx, vendorID)
	if err != nil {
		return denied[Product](err)
	}

	res, err := client.Get[Product](ctx, s.client, "/wc/v3/products/"+url.PathEscape(productID), nil,
		client.WithTags(invalidation.ProductTag(productID)))
	if err != nil || !res.IsOk() {
		return res, err
	}

	if owner := res.Success.Data.VendorID(); !decision.IsAdmin && owner != vendorID {
		s.logger.Warn().
			Str("product_id", productID).
			Str("vendor_id", vendorID).
			Str("product_vendor_id", owner).
			Msg("Product belongs to another vendor")
		return client.Fail[Product](&client.Failure{
			Code:    client.CodeForbidden,
			Message: "product belongs to another vendor",
		}), nil
	}

	return res, nil
}

// UpdateProductStock sets the managed stock quantity of a product owned by
// vendorID.
func (s *Service) UpdateProductStock(ctx context.Context, vendorID, productID string, quantity int) (client.Result[Product], error) {
	if _, err := guard.RequireRole(ctx, mutators...); err != nil {
		return denied[Product](err)
	}
	if quantity < 0 {
		return invalid[Product]("stock_quantity", "stock quantity must not be negative")
	}

	current, err := s.getOwnedProduct(ctx, vendorID, productID)
	if err != nil || !current.IsOk() {
		return current, err
	}

	res, err := client.Put[Product](ctx, s.client, "/wc/v3/products/"+url.PathEscape(productID),
		map[string]any{"manage_stock": true, "stock_quantity": quantity},
		client.WithTags(invalidation.ProductTag(productID), invalidation.SellerProductsTag(vendorID)))
	if err != nil || !res.IsOk() {
		return res, err
	}

	s.invalidate(ctx, "update_product_stock", res.Success.Tags)
	return res, nil
}

// DeleteProduct permanently deletes a product owned by vendorID.
func (s *Service) DeleteProduct(ctx context.Context, vendorID, productID string) (client.Result[Product], error) {
	if _, err := guard.RequireRole(ctx, mutators...); err != nil {
		return denied[Product](err)
	}

	current, err := s.getOwnedProduct(ctx, vendorID, productID)
	if err != nil || !current.IsOk() {
		return current, err
	}

	res, err := client.Delete[Product](ctx, s.client, "/wc/v3/products/"+url.PathEscape(productID),
		url.Values{"force": {"true"}},
		client.WithTags(invalidation.ProductTag(productID), invalidation.SellerProductsTag(vendorID)))
	if err != nil || !res.IsOk() {
		return res, err
	}

	s.invalidate(ctx, "delete_product", res.Success.Tags)
	return res, nil
}

// invalidate announces tags after a successful mutation. Failures are
// logged by the coupler and never undo the mutation.
func (s *Service) invalidate(ctx context.Context, op string, tags []string) {
	if s.coupler == nil {
		return
	}
	if report := s.coupler.Invalidate(ctx, tags...); !report.OK() {
		s.logger.Warn().
			Str("operation", op).
			Strs("tags", report.Tags).
			Int("failed_sinks", len(report.Failed)).
			Msg("Mutation succeeded but invalidation was incomplete")
	}
}
