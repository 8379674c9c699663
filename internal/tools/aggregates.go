package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/haasonsaas/voicegate/internal/backend"
)

// aggregateCatalog builds the composite tools: each one combines or reshapes
// several backend lookups into a single answer the assistant can speak,
// instead of forwarding one upstream payload verbatim.
func aggregateCatalog(client *backend.Client) []*Descriptor {
	return []*Descriptor{
		{
			Name:         "deliverySummary",
			Required:     []string{"customerId"},
			ContextReads: []string{"customerId", "deliveryId"},
			ContextWrites: map[string]string{
				"deliveryId": "deliveryId",
			},
			Schema: mustSchema(`{
				"type": "object",
				"properties": {
					"customerId": {"type": "string", "minLength": 1},
					"deliveryId": {"type": "string"},
					"includeNextDelivery": {"type": "boolean"},
					"includeDefaults": {"type": "boolean"}
				},
				"required": ["customerId"]
			}`),
			Invoke: func(ctx context.Context, params map[string]any) (any, string, error) {
				customerID := StringParam(params, "customerId")
				deliveryID, err := resolveDeliveryID(ctx, client, customerID, StringParam(params, "deliveryId"))
				if err != nil {
					return nil, "", err
				}

				finance, err := client.GetFinanceInfo(ctx, customerID, deliveryID)
				if err != nil {
					return nil, "", err
				}
				financeData, _ := finance.Data.(map[string]any)
				deliveryInfo, _ := financeData["deliveryInfo"].(map[string]any)

				summary := map[string]any{
					"customerId":   customerID,
					"deliveryId":   deliveryID,
					"customerInfo": financeData["customerInfo"],
					"deliveryInfo": deliveryInfo,
					"alerts":       deliveryAlerts(deliveryInfo),
				}

				// The companion lookups enrich the summary; their failures
				// degrade to an absent section, not a failed turn.
				if BoolParam(params, "includeNextDelivery", true) {
					if next, err := client.GetNextScheduledDelivery(ctx, customerID, deliveryID, 45); err == nil && next.Success {
						summary["nextDelivery"] = next.Data
					}
				}
				if BoolParam(params, "includeDefaults", true) {
					if defaults, err := client.GetDefaultProducts(ctx, customerID, deliveryID); err == nil && defaults.Success {
						summary["standingOrder"] = standingOrderItems(rowsOf(defaults.Data), nil)
					}
				}

				return summary, "Here is the delivery summary for the account.", nil
			},
		},
		{
			Name:         "workOrderStatus",
			Required:     []string{"customerId"},
			ContextReads: []string{"customerId", "deliveryId"},
			Schema: mustSchema(`{
				"type": "object",
				"properties": {
					"customerId": {"type": "string", "minLength": 1},
					"deliveryId": {"type": "string"},
					"limit": {"type": "integer", "minimum": 1, "maximum": 25}
				},
				"required": ["customerId"]
			}`),
			Invoke: func(ctx context.Context, params map[string]any) (any, string, error) {
				customerID := StringParam(params, "customerId")
				deliveryID, err := resolveDeliveryID(ctx, client, customerID, StringParam(params, "deliveryId"))
				if err != nil {
					return nil, "", err
				}

				resp, err := client.GetLastDeliveryOrders(ctx, customerID, deliveryID,
					IntParam(params, "limit", 5))
				if err != nil {
					return nil, "", err
				}

				orders := rowsOf(resp.Data)
				open := 0
				for _, order := range orders {
					if orderIsOpen(order) {
						open++
					}
				}
				data := map[string]any{
					"orders": resp.Data,
					"summary": map[string]any{
						"total":  len(orders),
						"open":   open,
						"closed": len(orders) - open,
					},
				}
				return data, fmt.Sprintf("Found %d recent work orders or off-route deliveries.", len(orders)), nil
			},
		},
		{
			Name:         "pricingBreakdown",
			Required:     []string{"customerId"},
			ContextReads: []string{"customerId", "deliveryId"},
			Schema: mustSchema(`{
				"type": "object",
				"properties": {
					"customerId": {"type": "string", "minLength": 1},
					"deliveryId": {"type": "string"},
					"postalCode": {"type": "string"},
					"internetOnly": {"type": "boolean"},
					"includeCatalogExcerpt": {"type": "boolean"}
				},
				"required": ["customerId"]
			}`),
			Invoke: func(ctx context.Context, params map[string]any) (any, string, error) {
				customerID := StringParam(params, "customerId")
				deliveryID, err := resolveDeliveryID(ctx, client, customerID, StringParam(params, "deliveryId"))
				if err != nil {
					return nil, "", err
				}

				defaults, err := client.GetDefaultProducts(ctx, customerID, deliveryID)
				if err != nil {
					return nil, "", err
				}

				// The catalog call only backfills prices; losing it still
				// yields a usable breakdown.
				catalog := map[string]map[string]any{}
				var excerpt []map[string]any
				if products, err := client.GetProducts(ctx, backend.ProductsQuery{
					CustomerID:   customerID,
					DeliveryID:   deliveryID,
					PostalCode:   StringParam(params, "postalCode"),
					InternetOnly: BoolParam(params, "internetOnly", false),
					Take:         100,
				}); err == nil && products.Success {
					records := catalogRecords(products.Data)
					for _, record := range records {
						if code := StringParam(record, "code"); code != "" {
							catalog[code] = record
						}
					}
					if BoolParam(params, "includeCatalogExcerpt", false) {
						excerpt = catalogExcerpt(records, 10)
					}
				}

				items := standingOrderItems(rowsOf(defaults.Data), catalog)
				var subtotal float64
				lines := 0
				for _, item := range items {
					if total, ok := item["lineTotal"].(float64); ok {
						subtotal += total
						lines++
					}
				}
				data := map[string]any{
					"standingOrder":  items,
					"catalogExcerpt": excerpt,
					"summary": map[string]any{
						"items":    len(items),
						"subtotal": subtotal,
					},
				}
				return data, "Here is the pricing breakdown for the standing order.", nil
			},
		},
		{
			Name:         "orderChangeStatus",
			Required:     []string{"customerId"},
			ContextReads: []string{"customerId", "deliveryId"},
			Schema: mustSchema(`{
				"type": "object",
				"properties": {
					"customerId": {"type": "string", "minLength": 1},
					"deliveryId": {"type": "string"},
					"ticketNumber": {"type": "string"},
					"onlyOpenOrders": {"type": "boolean"}
				},
				"required": ["customerId"]
			}`),
			Invoke: func(ctx context.Context, params map[string]any) (any, string, error) {
				customerID := StringParam(params, "customerId")
				deliveryID, err := resolveDeliveryID(ctx, client, customerID, StringParam(params, "deliveryId"))
				if err != nil {
					return nil, "", err
				}

				resp, err := client.SearchOrders(ctx, backend.OrdersQuery{
					TicketNumber:   StringParam(params, "ticketNumber"),
					CustomerID:     customerID,
					DeliveryID:     deliveryID,
					OnlyOpenOrders: BoolParam(params, "onlyOpenOrders", true),
				})
				if err != nil {
					return nil, "", err
				}

				orders := rowsOf(resp.Data)
				normalized := make([]map[string]any, 0, len(orders))
				open := 0
				for _, order := range orders {
					if orderIsOpen(order) {
						open++
					}
					normalized = append(normalized, map[string]any{
						"ticketNumber":  order["ticketNumber"],
						"status":        order["status"],
						"scheduledDate": firstNonNil(order["scheduledDate"], order["deliveryDate"]),
						"invoiceTotal":  order["invoiceTotal"],
						"posted":        order["posted"],
					})
				}

				message := "No pending orders were located for the account."
				if open > 0 {
					message = fmt.Sprintf("Found %d open order(s) for the account.", open)
				}
				data := map[string]any{
					"orders": normalized,
					"summary": map[string]any{
						"total":         len(orders),
						"open":          open,
						"ticketQueried": StringParam(params, "ticketNumber"),
					},
				}
				return data, message, nil
			},
		},
		{
			Name:         "paymentExpiryAlerts",
			Required:     []string{"customerId"},
			ContextReads: []string{"customerId"},
			Schema: mustSchema(`{
				"type": "object",
				"properties": {
					"customerId": {"type": "string", "minLength": 1},
					"monthsAhead": {"type": "integer", "minimum": 1, "maximum": 12}
				},
				"required": ["customerId"]
			}`),
			Invoke: func(ctx context.Context, params map[string]any) (any, string, error) {
				resp, err := client.GetBillingMethods(ctx,
					StringParam(params, "customerId"), false)
				if err != nil {
					return nil, "", err
				}

				monthsAhead := IntParam(params, "monthsAhead", 2)
				alerts := expiryAlerts(rowsOf(resp.Data), time.Now(), monthsAhead)

				message := "No payment methods on file are expired or expiring soon."
				if len(alerts) > 0 {
					message = fmt.Sprintf("%d payment method(s) need attention.", len(alerts))
				}
				data := map[string]any{
					"alerts": alerts,
					"summary": map[string]any{
						"methods":     len(rowsOf(resp.Data)),
						"alerts":      len(alerts),
						"monthsAhead": monthsAhead,
					},
				}
				return data, message, nil
			},
		},
	}
}

// resolveDeliveryID picks a delivery stop when none was supplied: most
// accounts have exactly one, so the first active stop is the right answer.
func resolveDeliveryID(ctx context.Context, client *backend.Client, customerID, deliveryID string) (string, error) {
	if deliveryID != "" {
		return deliveryID, nil
	}
	resp, err := client.GetDeliveryStops(ctx, customerID, 0, 10)
	if err != nil {
		return "", err
	}
	for _, stop := range rowsOf(resp.Data) {
		if id := firstString(stop, "deliveryId", "id"); id != "" {
			return id, nil
		}
	}
	return "", &backend.APIError{
		Kind:      backend.FailureNotFound,
		Operation: "deliveryStops",
		Message:   "no active delivery stop for customer",
	}
}

// rowsOf normalizes the upstream's row-set shapes: a bare list, or a list
// under one of its wrapper keys.
func rowsOf(data any) []map[string]any {
	var raw []any
	switch v := data.(type) {
	case []any:
		raw = v
	case map[string]any:
		for _, key := range []string{"deliveryStops", "stops", "records", "data"} {
			if list, ok := v[key].([]any); ok {
				raw = list
				break
			}
		}
	}
	rows := make([]map[string]any, 0, len(raw))
	for _, item := range raw {
		if row, ok := item.(map[string]any); ok {
			rows = append(rows, row)
		}
	}
	return rows
}

// orderIsOpen mirrors the upstream's loose order-state encoding: status
// strings, posted/isClosed flags, and unposted zero-total tickets.
func orderIsOpen(order map[string]any) bool {
	status := strings.ToLower(StringParam(order, "status"))
	switch status {
	case "completed", "complete", "closed", "cancelled", "canceled":
		return false
	}
	if order["posted"] == true || order["isClosed"] == true {
		return false
	}
	switch status {
	case "open", "pending", "scheduled", "in progress":
		return true
	}
	if order["posted"] == false || order["isClosed"] == false {
		return true
	}
	total, hasTotal := numberValue(order["invoiceTotal"])
	if (!hasTotal || total == 0) && order["completed"] != true {
		return true
	}
	return false
}

// standingOrderItems reshapes default-product rows, backfilling unit prices
// from the catalog index when the defaults omit them.
func standingOrderItems(rows []map[string]any, catalog map[string]map[string]any) []map[string]any {
	items := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		code := firstString(row, "productCode", "code")
		quantity, _ := numberValue(row["quantity"])

		unitPrice, priced := firstNumber(row, "unitPrice", "price", "defaultPrice")
		if !priced && code != "" && catalog != nil {
			if record, ok := catalog[code]; ok {
				unitPrice, priced = numberValue(record["defaultPrice"])
			}
		}

		item := map[string]any{
			"code":         code,
			"description":  firstString(row, "productDescription", "description"),
			"quantity":     quantity,
			"deliveryMode": firstString(row, "deliveryMode", "defaultType"),
		}
		if priced {
			item["unitPrice"] = unitPrice
			item["lineTotal"] = unitPrice * quantity
		}
		items = append(items, item)
	}
	return items
}

func catalogRecords(data any) []map[string]any {
	return rowsOf(data)
}

func catalogExcerpt(records []map[string]any, limit int) []map[string]any {
	if len(records) > limit {
		records = records[:limit]
	}
	excerpt := make([]map[string]any, 0, len(records))
	for _, record := range records {
		excerpt = append(excerpt, map[string]any{
			"code":            record["code"],
			"description":     record["description"],
			"formattedPrice":  record["formattedPrice"],
			"unitDescription": record["unitDescription"],
			"category":        record["productClass"],
		})
	}
	return excerpt
}

// expiryAlerts flags stored cards that are expired or expire within
// monthsAhead of now.
func expiryAlerts(methods []map[string]any, now time.Time, monthsAhead int) []map[string]any {
	var alerts []map[string]any
	for _, method := range methods {
		raw := firstString(method, "cardExpiration", "expiration", "expirationDate")
		expiry, ok := parseCardExpiration(raw)
		if !ok {
			continue
		}
		status := ""
		switch {
		case expiry.Before(now):
			status = "expired"
		case expiry.Before(now.AddDate(0, monthsAhead, 0)):
			status = "expiring"
		default:
			continue
		}
		alerts = append(alerts, map[string]any{
			"description": firstString(method, "description", "cardDescription"),
			"expiration":  raw,
			"status":      status,
		})
	}
	return alerts
}

// parseCardExpiration accepts the upstream's MMYY and MM/YY encodings. The
// returned time is the first day after the card's last valid month.
func parseCardExpiration(raw string) (time.Time, bool) {
	digits := strings.ReplaceAll(strings.TrimSpace(raw), "/", "")
	if len(digits) != 4 {
		return time.Time{}, false
	}
	parsed, err := time.Parse("0106", digits)
	if err != nil {
		return time.Time{}, false
	}
	return parsed.AddDate(0, 1, 0), true
}

func deliveryAlerts(deliveryInfo map[string]any) []string {
	var alerts []string
	for _, key := range []string{"alertMessage", "serviceAlert", "deliveryAlert"} {
		if alert := StringParam(deliveryInfo, key); alert != "" {
			alerts = append(alerts, alert)
		}
	}
	return alerts
}

func firstString(row map[string]any, keys ...string) string {
	for _, key := range keys {
		if s := StringParam(row, key); s != "" {
			return s
		}
	}
	return ""
}

func firstNumber(row map[string]any, keys ...string) (float64, bool) {
	for _, key := range keys {
		if n, ok := numberValue(row[key]); ok {
			return n, true
		}
	}
	return 0, false
}

func numberValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}

func firstNonNil(values ...any) any {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}
