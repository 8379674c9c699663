package tools

import (
	"context"
	"fmt"

	"github.com/haasonsaas/voicegate/internal/backend"
)

// Catalog builds the descriptors for every tool the voice engine may call.
// All of them are thin validate-and-forward wrappers over the backend
// client; the identifying-context plumbing lives in the descriptor fields,
// not in the handler bodies.
func Catalog(client *backend.Client, cache *backend.SearchCache) []*Descriptor {
	descriptors := []*Descriptor{
		{
			Name:     "customerSearch",
			Required: []string{"lookup"},
			ContextWrites: map[string]string{
				"customerId": "customerId",
				"deliveryId": "deliveryId",
				"name":       "customerName",
			},
			Schema: mustSchema(`{
				"type": "object",
				"properties": {
					"lookup": {"type": "string", "minLength": 1},
					"offset": {"type": "integer", "minimum": 0},
					"take": {"type": "integer", "minimum": 1, "maximum": 100}
				},
				"required": ["lookup"]
			}`),
			Invoke: func(ctx context.Context, params map[string]any) (any, string, error) {
				resp, err := cache.SearchCustomers(ctx, client,
					StringParam(params, "lookup"),
					IntParam(params, "offset", 0),
					IntParam(params, "take", 25))
				if err != nil {
					return nil, "", err
				}
				return resp.Data, searchSummary(resp), nil
			},
		},
		{
			Name:         "customerDetails",
			Required:     []string{"customerId"},
			ContextReads: []string{"customerId"},
			ContextWrites: map[string]string{
				"customerId": "customerId",
				"deliveryId": "deliveryId",
				"name":       "customerName",
			},
			Schema: customerSchema,
			Invoke: func(ctx context.Context, params map[string]any) (any, string, error) {
				resp, err := client.GetCustomerDetails(ctx,
					StringParam(params, "customerId"),
					BoolParam(params, "includeInactive", false))
				return forward(resp, err, "Here are the account details.")
			},
		},
		{
			Name:         "financeInfo",
			Required:     []string{"customerId", "deliveryId"},
			ContextReads: []string{"customerId", "deliveryId"},
			Schema:       customerDeliverySchema,
			Invoke: func(ctx context.Context, params map[string]any) (any, string, error) {
				resp, err := client.GetFinanceInfo(ctx,
					StringParam(params, "customerId"),
					StringParam(params, "deliveryId"))
				return forward(resp, err, "Here is the account and delivery summary.")
			},
		},
		{
			Name:         "deliveryStops",
			Required:     []string{"customerId"},
			ContextReads: []string{"customerId"},
			ContextWrites: map[string]string{
				"deliveryId": "deliveryId",
			},
			Schema: customerSchema,
			Invoke: func(ctx context.Context, params map[string]any) (any, string, error) {
				resp, err := client.GetDeliveryStops(ctx,
					StringParam(params, "customerId"),
					IntParam(params, "offset", 0),
					IntParam(params, "take", 25))
				return forward(resp, err, "Here are the delivery locations on the account.")
			},
		},
		{
			Name:         "nextDelivery",
			Required:     []string{"customerId", "deliveryId"},
			ContextReads: []string{"customerId", "deliveryId"},
			Schema: mustSchema(`{
				"type": "object",
				"properties": {
					"customerId": {"type": "string", "minLength": 1},
					"deliveryId": {"type": "string", "minLength": 1},
					"daysAhead": {"type": "integer", "minimum": 1, "maximum": 90}
				},
				"required": ["customerId", "deliveryId"]
			}`),
			Invoke: func(ctx context.Context, params map[string]any) (any, string, error) {
				resp, err := client.GetNextScheduledDelivery(ctx,
					StringParam(params, "customerId"),
					StringParam(params, "deliveryId"),
					IntParam(params, "daysAhead", 45))
				return forward(resp, err, "Here is the next scheduled delivery.")
			},
		},
		{
			Name:         "defaultProducts",
			Required:     []string{"customerId", "deliveryId"},
			ContextReads: []string{"customerId", "deliveryId"},
			Schema:       customerDeliverySchema,
			Invoke: func(ctx context.Context, params map[string]any) (any, string, error) {
				resp, err := client.GetDefaultProducts(ctx,
					StringParam(params, "customerId"),
					StringParam(params, "deliveryId"))
				return forward(resp, err, "Here are the standing order products for the stop.")
			},
		},
		{
			Name:         "deliverySchedule",
			Required:     []string{"customerId", "deliveryId", "fromDate", "toDate"},
			ContextReads: []string{"customerId", "deliveryId"},
			Schema: mustSchema(`{
				"type": "object",
				"properties": {
					"customerId": {"type": "string", "minLength": 1},
					"deliveryId": {"type": "string", "minLength": 1},
					"fromDate": {"type": "string", "minLength": 1},
					"toDate": {"type": "string", "minLength": 1}
				},
				"required": ["customerId", "deliveryId", "fromDate", "toDate"]
			}`),
			Invoke: func(ctx context.Context, params map[string]any) (any, string, error) {
				resp, err := client.GetDeliverySchedule(ctx,
					StringParam(params, "customerId"),
					StringParam(params, "deliveryId"),
					StringParam(params, "fromDate"),
					StringParam(params, "toDate"))
				return forward(resp, err, "Here are the scheduled route deliveries in that range.")
			},
		},
		{
			Name:         "lastDeliveryOrders",
			Required:     []string{"customerId", "deliveryId"},
			ContextReads: []string{"customerId", "deliveryId"},
			Schema:       customerDeliverySchema,
			Invoke: func(ctx context.Context, params map[string]any) (any, string, error) {
				resp, err := client.GetLastDeliveryOrders(ctx,
					StringParam(params, "customerId"),
					StringParam(params, "deliveryId"),
					IntParam(params, "numberOfOrders", 5))
				return forward(resp, err, "Here are the recent off-route orders.")
			},
		},
		{
			Name:         "ordersSearch",
			ContextReads: []string{"customerId", "deliveryId"},
			Schema: mustSchema(`{
				"type": "object",
				"properties": {
					"ticketNumber": {"type": "string"},
					"customerId": {"type": "string"},
					"deliveryId": {"type": "string"},
					"onlyOpenOrders": {"type": "boolean"}
				}
			}`),
			Invoke: func(ctx context.Context, params map[string]any) (any, string, error) {
				resp, err := client.SearchOrders(ctx, backend.OrdersQuery{
					TicketNumber:   StringParam(params, "ticketNumber"),
					CustomerID:     StringParam(params, "customerId"),
					DeliveryID:     StringParam(params, "deliveryId"),
					OnlyOpenOrders: BoolParam(params, "onlyOpenOrders", false),
				})
				return forward(resp, err, "Here are the matching orders.")
			},
		},
		{
			Name:         "accountBalance",
			Required:     []string{"customerId"},
			ContextReads: []string{"customerId"},
			Schema:       customerSchema,
			Invoke: func(ctx context.Context, params map[string]any) (any, string, error) {
				resp, err := client.GetAccountBalances(ctx,
					StringParam(params, "customerId"),
					BoolParam(params, "includeInactive", false))
				return forward(resp, err, "Here is the current account balance.")
			},
		},
		{
			Name:         "invoiceHistory",
			Required:     []string{"customerId", "deliveryId"},
			ContextReads: []string{"customerId", "deliveryId"},
			Schema: mustSchema(`{
				"type": "object",
				"properties": {
					"customerId": {"type": "string", "minLength": 1},
					"deliveryId": {"type": "string", "minLength": 1},
					"numberOfMonths": {"type": "integer", "minimum": 1, "maximum": 24},
					"offset": {"type": "integer", "minimum": 0},
					"take": {"type": "integer", "minimum": 1, "maximum": 100}
				},
				"required": ["customerId", "deliveryId"]
			}`),
			Invoke: func(ctx context.Context, params map[string]any) (any, string, error) {
				resp, err := client.GetInvoiceHistory(ctx,
					StringParam(params, "customerId"),
					StringParam(params, "deliveryId"),
					IntParam(params, "numberOfMonths", 12),
					IntParam(params, "offset", 0),
					IntParam(params, "take", 25),
					BoolParam(params, "descending", true))
				return forward(resp, err, "Here is the invoice and payment history.")
			},
		},
		{
			Name:         "invoiceDetail",
			Required:     []string{"customerId", "invoiceKey", "invoiceDate"},
			ContextReads: []string{"customerId"},
			Schema: mustSchema(`{
				"type": "object",
				"properties": {
					"customerId": {"type": "string", "minLength": 1},
					"invoiceKey": {"type": "string", "minLength": 1},
					"invoiceDate": {"type": "string", "minLength": 1},
					"includePayments": {"type": "boolean"}
				},
				"required": ["customerId", "invoiceKey", "invoiceDate"]
			}`),
			Invoke: func(ctx context.Context, params map[string]any) (any, string, error) {
				resp, err := client.GetInvoiceDetail(ctx,
					StringParam(params, "customerId"),
					StringParam(params, "invoiceKey"),
					StringParam(params, "invoiceDate"),
					false, // signatures are never surfaced on a call
					BoolParam(params, "includePayments", false))
				return forward(resp, err, "Here are the invoice line items.")
			},
		},
		{
			Name:         "paymentMethods",
			Required:     []string{"customerId"},
			ContextReads: []string{"customerId"},
			Schema:       customerSchema,
			Invoke: func(ctx context.Context, params map[string]any) (any, string, error) {
				resp, err := client.GetBillingMethods(ctx,
					StringParam(params, "customerId"),
					BoolParam(params, "includeInactive", false))
				return forward(resp, err, "Here are the payment methods on file.")
			},
		},
		{
			Name:         "productsCatalog",
			ContextReads: []string{"customerId", "deliveryId"},
			Schema: mustSchema(`{
				"type": "object",
				"properties": {
					"customerId": {"type": "string"},
					"deliveryId": {"type": "string"},
					"postalCode": {"type": "string"},
					"internetOnly": {"type": "boolean"},
					"categories": {"type": "array", "items": {"type": "string"}},
					"defaultProducts": {"type": "boolean"},
					"offset": {"type": "integer", "minimum": 0},
					"take": {"type": "integer", "minimum": 1, "maximum": 100}
				}
			}`),
			Invoke: func(ctx context.Context, params map[string]any) (any, string, error) {
				resp, err := client.GetProducts(ctx, backend.ProductsQuery{
					CustomerID:      StringParam(params, "customerId"),
					DeliveryID:      StringParam(params, "deliveryId"),
					PostalCode:      StringParam(params, "postalCode"),
					InternetOnly:    BoolParam(params, "internetOnly", false),
					Categories:      StringSliceParam(params, "categories"),
					DefaultProducts: BoolParam(params, "defaultProducts", false),
					Offset:          IntParam(params, "offset", 0),
					Take:            IntParam(params, "take", 25),
				})
				return forward(resp, err, "Here are the available products.")
			},
		},
		{
			Name:         "customerContracts",
			Required:     []string{"customerId", "deliveryId"},
			ContextReads: []string{"customerId", "deliveryId"},
			Schema:       customerDeliverySchema,
			Invoke: func(ctx context.Context, params map[string]any) (any, string, error) {
				resp, err := client.GetContracts(ctx,
					StringParam(params, "customerId"),
					StringParam(params, "deliveryId"))
				return forward(resp, err, "Here are the contracts on the account.")
			},
		},
		{
			Name:     "routeStops",
			Required: []string{"route", "routeDate"},
			Schema: mustSchema(`{
				"type": "object",
				"properties": {
					"route": {"type": "string", "minLength": 1},
					"routeDate": {"type": "string", "minLength": 1},
					"accountNumber": {"type": "string"}
				},
				"required": ["route", "routeDate"]
			}`),
			Invoke: func(ctx context.Context, params map[string]any) (any, string, error) {
				resp, err := client.GetRouteStops(ctx,
					StringParam(params, "route"),
					StringParam(params, "routeDate"),
					StringParam(params, "accountNumber"))
				return forward(resp, err, "Here are the stops for that route and date.")
			},
		},
		{
			Name: "deliveryFrequencies",
			Invoke: func(ctx context.Context, params map[string]any) (any, string, error) {
				resp, err := client.GetDeliveryFrequencies(ctx)
				return forward(resp, err, "Here are the available delivery frequencies.")
			},
		},
	}
	return append(descriptors, aggregateCatalog(client)...)
}

var customerSchema = mustSchema(`{
	"type": "object",
	"properties": {
		"customerId": {"type": "string", "minLength": 1},
		"includeInactive": {"type": "boolean"}
	},
	"required": ["customerId"]
}`)

var customerDeliverySchema = mustSchema(`{
	"type": "object",
	"properties": {
		"customerId": {"type": "string", "minLength": 1},
		"deliveryId": {"type": "string", "minLength": 1}
	},
	"required": ["customerId", "deliveryId"]
}`)

// forward passes the upstream envelope through, preferring the upstream's
// own message when it has one.
func forward(resp *backend.Response, err error, fallback string) (any, string, error) {
	if err != nil {
		return nil, "", err
	}
	message := resp.Message
	if message == "" {
		message = fallback
	}
	return resp.Data, message, nil
}

// searchSummary phrases the search result count the way the assistant
// speaks it.
func searchSummary(resp *backend.Response) string {
	if n, ok := resultCount(resp.Data); ok {
		if n == 0 {
			return "No customers found matching your search."
		}
		return fmt.Sprintf("Found %d customer(s)", n)
	}
	if resp.Message != "" {
		return resp.Message
	}
	return "Search complete."
}

// resultCount digs the row count out of the upstream's nested data wrapper.
func resultCount(data any) (int, bool) {
	m, ok := data.(map[string]any)
	if !ok {
		return 0, false
	}
	rows, ok := m["data"].([]any)
	if !ok {
		return 0, false
	}
	return len(rows), true
}
