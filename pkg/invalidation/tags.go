package invalidation

// Tag helpers for marketplace resources. Readers and writers must build tags
// through these so both sides agree on the names.

// OrderTag tags a single order.
func OrderTag(orderID string) string {
	return "order-" + orderID
}

// SellerOrdersTag tags a vendor's order list.
func SellerOrdersTag(vendorID string) string {
	return "seller-orders-" + vendorID
}

// SellerDashboardTag tags a vendor's dashboard aggregates.
func SellerDashboardTag(vendorID string) string {
	return "seller-dashboard-" + vendorID
}

// ProductTag tags a single product.
func ProductTag(productID string) string {
	return "product-" + productID
}

// SellerProductsTag tags a vendor's product list.
func SellerProductsTag(vendorID string) string {
	return "seller-products-" + vendorID
}

// normalize drops empty tags and duplicates, keeping first-seen order.
func normalize(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}
