package backend

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

// pagination mirrors the upstream's paginationSettings block.
type pagination struct {
	Descending bool    `json:"Descending"`
	Offset     int     `json:"Offset"`
	OrderBy    *string `json:"OrderBy"`
	SearchText string  `json:"SearchText"`
	Take       int     `json:"Take"`
}

func newPagination(offset, take int, descending bool) pagination {
	if take <= 0 {
		take = 25
	}
	if take > 100 {
		take = 100
	}
	return pagination{Descending: descending, Offset: offset, Take: take}
}

// SearchCustomers looks up customers by name, address, phone or account
// number.
func (c *Client) SearchCustomers(ctx context.Context, lookup string, offset, take int) (*Response, error) {
	return c.post(ctx, "customerSearch", "/customers/search", map[string]any{
		"lookup":             lookup,
		"paginationSettings": newPagination(offset, take, false),
	})
}

// GetCustomerDetails fetches one customer record by account number.
func (c *Client) GetCustomerDetails(ctx context.Context, customerID string, includeInactive bool) (*Response, error) {
	return c.post(ctx, "customerDetails", "/customers/"+url.PathEscape(customerID), map[string]any{
		"includeInactive": includeInactive,
	})
}

// GetDeliveryStops lists a customer's delivery stops. Most customers have
// one; campus accounts can have several.
func (c *Client) GetDeliveryStops(ctx context.Context, customerID string, offset, take int) (*Response, error) {
	if take <= 0 {
		take = 25
	}
	if take > 100 {
		take = 100
	}
	return c.post(ctx, "deliveryStops", "/customers/"+url.PathEscape(customerID)+"/deliveries", map[string]any{
		"offset": offset,
		"take":   take,
	})
}

// GetFinanceInfo returns the combined balance and next-delivery summary for
// a delivery stop.
func (c *Client) GetFinanceInfo(ctx context.Context, customerID, deliveryID string) (*Response, error) {
	return c.post(ctx, "financeInfo", "/customers/"+url.PathEscape(customerID)+"/finance-info", map[string]any{
		"deliveryId": deliveryID,
	})
}

// GetInvoiceHistory returns invoices and payments for a delivery stop.
func (c *Client) GetInvoiceHistory(ctx context.Context, customerID, deliveryID string, months, offset, take int, descending bool) (*Response, error) {
	if months <= 0 {
		months = 12
	}
	if months > 24 {
		months = 24
	}
	return c.post(ctx, "invoiceHistory", "/customers/"+url.PathEscape(customerID)+"/invoices", map[string]any{
		"deliveryId":         deliveryID,
		"numberOfMonths":     months,
		"paginationSettings": newPagination(offset, take, descending),
	})
}

// GetInvoiceDetail returns line items for one invoice.
func (c *Client) GetInvoiceDetail(ctx context.Context, customerID, invoiceKey, invoiceDate string, includeSignature, includePayments bool) (*Response, error) {
	path := "/customers/" + url.PathEscape(customerID) + "/invoices/" + url.PathEscape(invoiceKey)
	return c.post(ctx, "invoiceDetail", path, map[string]any{
		"invoiceDate":      invoiceDate,
		"includeSignature": includeSignature,
		"includePayments":  includePayments,
	})
}

// GetAccountBalances returns the top-level balance summary.
func (c *Client) GetAccountBalances(ctx context.Context, customerID string, includeInactive bool) (*Response, error) {
	return c.post(ctx, "accountBalance", "/customers/"+url.PathEscape(customerID)+"/balances", map[string]any{
		"includeInactive": includeInactive,
	})
}

// GetNextScheduledDelivery returns the next route delivery for a stop.
func (c *Client) GetNextScheduledDelivery(ctx context.Context, customerID, deliveryID string, daysAhead int) (*Response, error) {
	if daysAhead <= 0 {
		daysAhead = 45
	}
	if daysAhead > 90 {
		daysAhead = 90
	}
	path := fmt.Sprintf("/deliveries/next/%s/%s", url.PathEscape(customerID), url.PathEscape(deliveryID))
	return c.post(ctx, "nextDelivery", path, map[string]any{
		"daysAhead": daysAhead,
	})
}

// GetDeliverySchedule returns regular route deliveries in a date range.
func (c *Client) GetDeliverySchedule(ctx context.Context, customerID, deliveryID, fromDate, toDate string) (*Response, error) {
	query := url.Values{}
	query.Set("customerId", customerID)
	query.Set("deliveryId", deliveryID)
	query.Set("from", fromDate)
	query.Set("to", toDate)
	return c.get(ctx, "deliverySchedule", "/customers/deliveryschedule", query)
}

// GetDefaultProducts returns the standing order / swap defaults for a stop.
func (c *Client) GetDefaultProducts(ctx context.Context, customerID, deliveryID string) (*Response, error) {
	return c.post(ctx, "defaultProducts", "/deliveries/"+url.PathEscape(deliveryID)+"/defaults", map[string]any{
		"customerId": customerID,
	})
}

// GetLastDeliveryOrders returns recent off-route service tickets.
func (c *Client) GetLastDeliveryOrders(ctx context.Context, customerID, deliveryID string, numberOfOrders int) (*Response, error) {
	if numberOfOrders <= 0 {
		numberOfOrders = 5
	}
	if numberOfOrders > 50 {
		numberOfOrders = 50
	}
	return c.post(ctx, "lastDeliveryOrders", "/customers/"+url.PathEscape(customerID)+"/orders", map[string]any{
		"deliveryId":     deliveryID,
		"numberOfOrders": numberOfOrders,
	})
}

// ProductsQuery filters the product catalog lookup.
type ProductsQuery struct {
	CustomerID      string
	DeliveryID      string
	PostalCode      string
	InternetOnly    bool
	Categories      []string
	DefaultProducts bool
	Offset          int
	Take            int
}

// GetProducts returns the product catalog for a customer or postal code.
func (c *Client) GetProducts(ctx context.Context, q ProductsQuery) (*Response, error) {
	categories := q.Categories
	if categories == nil {
		categories = []string{}
	}
	orderBy := "description"
	page := newPagination(q.Offset, q.Take, false)
	page.OrderBy = &orderBy
	return c.post(ctx, "productsCatalog", "/customers/"+url.PathEscape(q.CustomerID)+"/products", map[string]any{
		"paginationSettings": page,
		"deliveryId":         q.DeliveryID,
		"internetOnly":       q.InternetOnly,
		"includeInactive":    false,
		"categories":         categories,
		"postalCode":         q.PostalCode,
		"defaultProducts":    q.DefaultProducts,
		"inventoryOnly":      false,
	})
}

// GetContracts returns contract records for a delivery stop.
func (c *Client) GetContracts(ctx context.Context, customerID, deliveryID string) (*Response, error) {
	return c.post(ctx, "customerContracts", "/customers/"+url.PathEscape(customerID)+"/contracts", map[string]any{
		"deliveryId": deliveryID,
	})
}

// GetBillingMethods returns the customer's stored payment methods. Vault and
// pay ids in the response must never be surfaced to the caller.
func (c *Client) GetBillingMethods(ctx context.Context, customerID string, includeInactive bool) (*Response, error) {
	return c.post(ctx, "paymentMethods", "/customers/"+url.PathEscape(customerID)+"/billing-methods", map[string]any{
		"includeInactive": includeInactive,
	})
}

// CreditCard carries tokenized card data for vaulting. Raw card numbers are
// never logged.
type CreditCard struct {
	FirstName      string `json:"firstName"`
	LastName       string `json:"lastName"`
	CardNonce      string `json:"cardNonce"`
	CardExpiration string `json:"cardExpiration"`
	Address        string `json:"address"`
	City           string `json:"city"`
	State          string `json:"state"`
	PostalCode     string `json:"postalCode"`
	Email          string `json:"email"`
	Description    string `json:"description"`
	SetAutopay     bool   `json:"setAutopay"`
}

// VaultCreditCard stores a payment method. This write is not idempotent, so
// it is issued exactly once: a transient failure surfaces to the caller
// instead of risking a duplicate vault entry.
func (c *Client) VaultCreditCard(ctx context.Context, customerID string, card CreditCard) (*Response, error) {
	return c.postNoRetry(ctx, "vaultCreditCard", "/customers/"+url.PathEscape(customerID)+"/credit-cards", card)
}

// GetDeliveryFrequencies returns the configured delivery frequency codes.
func (c *Client) GetDeliveryFrequencies(ctx context.Context) (*Response, error) {
	return c.get(ctx, "deliveryFrequencies", "/deliveries/frequencies", nil)
}

// OrdersQuery filters the order search.
type OrdersQuery struct {
	TicketNumber   string
	CustomerID     string
	DeliveryID     string
	OnlyOpenOrders bool
}

// SearchOrders finds delivery orders by ticket number or customer.
func (c *Client) SearchOrders(ctx context.Context, q OrdersQuery) (*Response, error) {
	return c.post(ctx, "ordersSearch", "/orders/search", map[string]any{
		"ticketNumber":   q.TicketNumber,
		"customerId":     q.CustomerID,
		"deliveryId":     q.DeliveryID,
		"onlyOpenOrders": q.OnlyOpenOrders,
	})
}

// GetRouteStops returns all stops for a route on a date, optionally
// filtered to one account.
func (c *Client) GetRouteStops(ctx context.Context, route, routeDate, accountNumber string) (*Response, error) {
	payload := map[string]any{
		"routeDate": routeDate,
		"route":     route,
	}
	if accountNumber != "" {
		payload["accountNumber"] = accountNumber
	}
	return c.post(ctx, "routeStops", "/routes/stops", payload)
}

// searchCacheKey builds the cache key for a customer search.
func searchCacheKey(lookup string, offset, take int) string {
	return lookup + "|" + strconv.Itoa(offset) + "|" + strconv.Itoa(take)
}
