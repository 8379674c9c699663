package tools

import (
	"context"
	"testing"
	"time"

	"github.com/haasonsaas/voicegate/internal/backend"
	"github.com/haasonsaas/voicegate/internal/observability"
)

func testCatalog(t *testing.T) []*Descriptor {
	t.Helper()
	client, err := backend.NewClient(backend.Config{
		BaseURL: "https://backend.invalid/api/v1",
		APIKey:  "test-key",
		Timeout: time.Second,
	}, observability.NewNopLogger(), nil)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return Catalog(client, backend.NewSearchCache(0))
}

func TestNewRegistry_ResolvesEveryCatalogTool(t *testing.T) {
	registry, err := NewRegistry(testCatalog(t)...)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	for _, name := range []string{
		"customerSearch", "customerDetails", "financeInfo", "deliveryStops",
		"nextDelivery", "defaultProducts", "deliverySchedule", "lastDeliveryOrders",
		"ordersSearch", "accountBalance", "invoiceHistory", "invoiceDetail",
		"paymentMethods", "productsCatalog", "customerContracts", "routeStops",
		"deliveryFrequencies", "deliverySummary", "workOrderStatus",
		"pricingBreakdown", "orderChangeStatus", "paymentExpiryAlerts",
	} {
		if _, ok := registry.Resolve(name); !ok {
			t.Errorf("Resolve(%q) not found", name)
		}
	}
	if registry.Len() != 22 {
		t.Errorf("registry has %d tools, want 22", registry.Len())
	}
}

func TestNewRegistry_UnknownNameNotResolved(t *testing.T) {
	registry, err := NewRegistry(testCatalog(t)...)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := registry.Resolve("launchMissiles"); ok {
		t.Error("unregistered tool resolved")
	}
}

func TestNewRegistry_RejectsDuplicates(t *testing.T) {
	dup := &Descriptor{Name: "x", Invoke: func(ctx context.Context, p map[string]any) (any, string, error) { return nil, "", nil }}
	if _, err := NewRegistry(dup, dup); err == nil {
		t.Error("expected duplicate error")
	}
}

func TestNewRegistry_RejectsMissingInvoke(t *testing.T) {
	if _, err := NewRegistry(&Descriptor{Name: "x"}); err == nil {
		t.Error("expected missing invoke error")
	}
}

func TestDescriptor_ValidateParams(t *testing.T) {
	registry, err := NewRegistry(testCatalog(t)...)
	if err != nil {
		t.Fatal(err)
	}
	search, _ := registry.Resolve("customerSearch")

	if err := search.ValidateParams(map[string]any{"lookup": "Jamie Carroll"}); err != nil {
		t.Errorf("valid params rejected: %v", err)
	}
	if err := search.ValidateParams(map[string]any{"lookup": ""}); err == nil {
		t.Error("empty lookup accepted")
	}
	if err := search.ValidateParams(map[string]any{"lookup": "x", "take": float64(500)}); err == nil {
		t.Error("oversized take accepted")
	}
}

func TestCatalog_ContextKeysDeclared(t *testing.T) {
	registry, err := NewRegistry(testCatalog(t)...)
	if err != nil {
		t.Fatal(err)
	}

	balance, _ := registry.Resolve("accountBalance")
	if len(balance.ContextReads) == 0 || balance.ContextReads[0] != "customerId" {
		t.Errorf("accountBalance context reads = %v, want customerId", balance.ContextReads)
	}

	search, _ := registry.Resolve("customerSearch")
	if search.ContextWrites["customerId"] != "customerId" {
		t.Errorf("customerSearch should contribute customerId, got %v", search.ContextWrites)
	}
	if search.ContextWrites["name"] != "customerName" {
		t.Errorf("customerSearch should map name to customerName, got %v", search.ContextWrites)
	}
}

func TestStringParam_Coercion(t *testing.T) {
	params := map[string]any{
		"s": "002864",
		"n": float64(2864),
		"f": 2.5,
		"b": true,
	}
	if got := StringParam(params, "s"); got != "002864" {
		t.Errorf("string: %q", got)
	}
	if got := StringParam(params, "n"); got != "2864" {
		t.Errorf("integer number: %q", got)
	}
	if got := StringParam(params, "f"); got != "2.5" {
		t.Errorf("float number: %q", got)
	}
	if got := StringParam(params, "missing"); got != "" {
		t.Errorf("missing: %q", got)
	}
}

func TestIntBoolParam_Coercion(t *testing.T) {
	params := map[string]any{"take": float64(50), "takeStr": "10", "flag": true, "flagStr": "true"}
	if got := IntParam(params, "take", 25); got != 50 {
		t.Errorf("IntParam number = %d", got)
	}
	if got := IntParam(params, "takeStr", 25); got != 10 {
		t.Errorf("IntParam string = %d", got)
	}
	if got := IntParam(params, "missing", 25); got != 25 {
		t.Errorf("IntParam fallback = %d", got)
	}
	if !BoolParam(params, "flag", false) || !BoolParam(params, "flagStr", false) {
		t.Error("BoolParam coercion failed")
	}
	if BoolParam(params, "missing", false) {
		t.Error("BoolParam fallback failed")
	}
}
