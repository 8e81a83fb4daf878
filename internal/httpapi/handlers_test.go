package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"retailpos/backend/internal/cache"
	"retailpos/backend/internal/catalog"
	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/events"
	"retailpos/backend/internal/ledger"
	"retailpos/backend/internal/service"
	"retailpos/backend/internal/store/memory"
)

// newTestAPI wires a real Service over the seeded in-memory store so handler
// tests exercise the complete request path.
func newTestAPI(t *testing.T) http.Handler {
	t.Helper()

	repo := memory.NewSeeded()
	cat := catalog.New(repo, cache.NewLRUProductCache(32, time.Minute), time.Minute)
	svc := service.New(repo, cat, ledger.New(repo, ledger.DefaultMinimum), events.NoopPublisher{}, "S01")
	return New(svc, "*").Handler()
}

func do(t *testing.T, handler http.Handler, method string, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]json.RawMessage {
	t.Helper()
	var body map[string]json.RawMessage
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return body
}

func openTransaction(t *testing.T, handler http.Handler, branchID string) domain.Cart {
	t.Helper()
	rec := do(t, handler, http.MethodPost, "/api/v1/transactions", domain.OpenTransactionRequest{BranchID: branchID})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var cart domain.Cart
	if err := json.Unmarshal(decodeBody(t, rec)["transaction"], &cart); err != nil {
		t.Fatalf("decode transaction: %v", err)
	}
	return cart
}

func TestHandleHealth(t *testing.T) {
	handler := newTestAPI(t)

	rec := do(t, handler, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if string(decodeBody(t, rec)["ok"]) != "true" {
		t.Fatalf("expected ok:true")
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("expected security headers to be set")
	}
}

func TestHandleHealthRejectsPost(t *testing.T) {
	rec := do(t, newTestAPI(t), http.MethodPost, "/healthz", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestSaleFlowOverHTTP(t *testing.T) {
	handler := newTestAPI(t)
	cart := openTransaction(t, handler, "S01")
	base := "/api/v1/transactions/" + cart.TransactionID

	rec := do(t, handler, http.MethodPost, base+"/items", domain.AddItemRequest{ProductCode: "leche001", Quantity: 2})
	if rec.Code != http.StatusOK {
		t.Fatalf("add item: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(t, handler, http.MethodPost, base+"/promotions", domain.ApplyPromotionRequest{PromotionCode: "DESC10"})
	if rec.Code != http.StatusOK {
		t.Fatalf("apply promotion: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	tendered := int64(10000)
	rec = do(t, handler, http.MethodPost, base+"/finalize", domain.FinalizeRequest{PaymentMethod: "cash", AmountTendered: &tendered})
	if rec.Code != http.StatusOK {
		t.Fatalf("finalize: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var receipt domain.Receipt
	if err := json.Unmarshal(decodeBody(t, rec)["receipt"], &receipt); err != nil {
		t.Fatalf("decode receipt: %v", err)
	}
	if receipt.Subtotal != 8000 || receipt.DiscountTotal != 800 || receipt.Total != 7200 || receipt.Change != 2800 {
		t.Fatalf("unexpected receipt totals %+v", receipt)
	}

	rec = do(t, handler, http.MethodGet, base, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", rec.Code)
	}
	var settled domain.Cart
	if err := json.Unmarshal(decodeBody(t, rec)["transaction"], &settled); err != nil {
		t.Fatalf("decode transaction: %v", err)
	}
	if settled.State != domain.CartStateSettled {
		t.Fatalf("expected SETTLED, got %s", settled.State)
	}

	rec = do(t, handler, http.MethodPost, base+"/finalize", domain.FinalizeRequest{PaymentMethod: "card"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("second finalize: expected 409, got %d", rec.Code)
	}
}

func TestAddItemInsufficientStockReportsAvailable(t *testing.T) {
	handler := newTestAPI(t)
	cart := openTransaction(t, handler, "S01")

	rec := do(t, handler, http.MethodPost, "/api/v1/transactions/"+cart.TransactionID+"/items", domain.AddItemRequest{ProductCode: "PAN001", Quantity: 100})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}
	if string(decodeBody(t, rec)["available"]) != "45" {
		t.Fatalf("expected available 45")
	}
}

func TestErrorStatusMapping(t *testing.T) {
	handler := newTestAPI(t)
	cart := openTransaction(t, handler, "S01")
	base := "/api/v1/transactions/" + cart.TransactionID

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		status int
	}{
		{"unknown product", http.MethodPost, base + "/items", domain.AddItemRequest{ProductCode: "NOPE", Quantity: 1}, http.StatusNotFound},
		{"zero quantity", http.MethodPost, base + "/items", domain.AddItemRequest{ProductCode: "LECHE001", Quantity: 0}, http.StatusBadRequest},
		{"unknown promotion", http.MethodPost, base + "/promotions", domain.ApplyPromotionRequest{PromotionCode: "BOGUS"}, http.StatusBadRequest},
		{"empty cart finalize", http.MethodPost, base + "/finalize", domain.FinalizeRequest{PaymentMethod: "cash"}, http.StatusBadRequest},
		{"unknown transaction", http.MethodGet, "/api/v1/transactions/TNOPE", nil, http.StatusNotFound},
		{"unknown action", http.MethodPost, base + "/refund", map[string]any{}, http.StatusNotFound},
		{"unknown field", http.MethodPost, base + "/items", map[string]any{"sku": "LECHE001"}, http.StatusBadRequest},
		{"get on action", http.MethodGet, base + "/items", nil, http.StatusMethodNotAllowed},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, handler, tc.method, tc.path, tc.body)
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestCancelAcceptsEmptyBody(t *testing.T) {
	handler := newTestAPI(t)
	cart := openTransaction(t, handler, "S02")

	rec := do(t, handler, http.MethodPost, "/api/v1/transactions/"+cart.TransactionID+"/cancel", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(t, handler, http.MethodPost, "/api/v1/transactions/"+cart.TransactionID+"/items", domain.AddItemRequest{ProductCode: "LECHE001", Quantity: 1})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 on cancelled cart, got %d", rec.Code)
	}
}

func TestInventoryEndpoints(t *testing.T) {
	handler := newTestAPI(t)

	rec := do(t, handler, http.MethodPost, "/api/v1/inventory/adjust", domain.StockAdjustRequest{
		ProductCode: "LECHE001", BranchID: "S01", Delta: -5, Reason: "damaged", Kind: "loss", Actor: "ana",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("adjust: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var adjusted domain.StockRecord
	if err := json.Unmarshal(decodeBody(t, rec)["stock"], &adjusted); err != nil {
		t.Fatalf("decode stock: %v", err)
	}
	if adjusted.QuantityOnHand != 115 {
		t.Fatalf("expected 115 on hand, got %d", adjusted.QuantityOnHand)
	}

	rec = do(t, handler, http.MethodPost, "/api/v1/inventory/transfer", domain.StockTransferRequest{
		ProductCode: "LECHE001", FromBranchID: "S01", ToBranchID: "S03", Quantity: 15,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("transfer: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var result domain.TransferResult
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("decode transfer: %v", err)
	}
	if result.Source.QuantityOnHand != 100 || result.Destination.QuantityOnHand != 15 {
		t.Fatalf("unexpected transfer result %d/%d", result.Source.QuantityOnHand, result.Destination.QuantityOnHand)
	}

	rec = do(t, handler, http.MethodPost, "/api/v1/inventory/transfer", domain.StockTransferRequest{
		ProductCode: "LECHE001", FromBranchID: "S01", ToBranchID: "S02", Quantity: 1000,
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("oversized transfer: expected 409, got %d", rec.Code)
	}

	rec = do(t, handler, http.MethodGet, "/api/v1/inventory?branch_id=S03", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", rec.Code)
	}
	var records []domain.StockRecord
	if err := json.Unmarshal(decodeBody(t, rec)["stock"], &records); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records at S03, got %d", len(records))
	}

	rec = do(t, handler, http.MethodGet, "/api/v1/inventory/availability/leche001", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("availability: expected 200, got %d", rec.Code)
	}
	var availability domain.AvailabilityResponse
	if err := json.NewDecoder(rec.Body).Decode(&availability); err != nil {
		t.Fatalf("decode availability: %v", err)
	}
	if availability.TotalStock != 195 || !availability.Available {
		t.Fatalf("unexpected availability %+v", availability)
	}

	rec = do(t, handler, http.MethodGet, "/api/v1/inventory/expiring?days=3", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expiring: expected 200, got %d", rec.Code)
	}
	var expiring []domain.ExpiringProduct
	if err := json.Unmarshal(decodeBody(t, rec)["products"], &expiring); err != nil {
		t.Fatalf("decode expiring: %v", err)
	}
	if len(expiring) != 2 || expiring[0].ProductCode != "PAN001" {
		t.Fatalf("unexpected expiring products %+v", expiring)
	}
}

func TestCreateAndGetProduct(t *testing.T) {
	handler := newTestAPI(t)

	rec := do(t, handler, http.MethodPost, "/api/v1/products", domain.ProductCreateRequest{Code: "cafe001", Name: "Cafe", UnitPrice: 9000})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(t, handler, http.MethodGet, "/api/v1/products/CAFE001", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", rec.Code)
	}
	var product domain.Product
	if err := json.Unmarshal(decodeBody(t, rec)["product"], &product); err != nil {
		t.Fatalf("decode product: %v", err)
	}
	if product.Currency != "COP" || product.UnitPrice != 9000 {
		t.Fatalf("unexpected product %+v", product)
	}

	rec = do(t, handler, http.MethodPost, "/api/v1/products", domain.ProductCreateRequest{Code: "CAFE001", Name: "Dup", UnitPrice: 1})
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate: expected 409, got %d", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	handler := newTestAPI(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/transactions", nil)
	req.Header.Set("Origin", "http://till.local")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 preflight, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Fatalf("expected Access-Control-Allow-Origin header")
	}
}

func TestRetriedFinalizeWithEmptyBodyIsConflict(t *testing.T) {
	handler := newTestAPI(t)
	cart := openTransaction(t, handler, "S01")
	base := "/api/v1/transactions/" + cart.TransactionID

	rec := do(t, handler, http.MethodPost, base+"/items", domain.AddItemRequest{ProductCode: "ARROZ001", Quantity: 1})
	if rec.Code != http.StatusOK {
		t.Fatalf("add item: expected 200, got %d", rec.Code)
	}
	rec = do(t, handler, http.MethodPost, base+"/finalize", domain.FinalizeRequest{PaymentMethod: "card"})
	if rec.Code != http.StatusOK {
		t.Fatalf("finalize: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(t, handler, http.MethodPost, base+"/finalize", map[string]any{})
	if rec.Code != http.StatusConflict {
		t.Fatalf("retried finalize: expected 409, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestProductUpdateAndWithdrawal(t *testing.T) {
	handler := newTestAPI(t)

	rec := do(t, handler, http.MethodPut, "/api/v1/products/pan001", map[string]any{"unit_price": 3700})
	if rec.Code != http.StatusOK {
		t.Fatalf("update: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var product domain.Product
	if err := json.Unmarshal(decodeBody(t, rec)["product"], &product); err != nil {
		t.Fatalf("decode product: %v", err)
	}
	if product.UnitPrice != 3700 || product.Name != "Pan Integral" {
		t.Fatalf("unexpected updated product %+v", product)
	}

	rec = do(t, handler, http.MethodPatch, "/api/v1/products/PAN001", map[string]any{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty update: expected 400, got %d", rec.Code)
	}

	rec = do(t, handler, http.MethodPut, "/api/v1/products/NOPE", map[string]any{"unit_price": 1})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown product: expected 404, got %d", rec.Code)
	}

	rec = do(t, handler, http.MethodDelete, "/api/v1/products/PAN001", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d", rec.Code)
	}

	cart := openTransaction(t, handler, "S01")
	rec = do(t, handler, http.MethodPost, "/api/v1/transactions/"+cart.TransactionID+"/items", domain.AddItemRequest{ProductCode: "PAN001", Quantity: 1})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("withdrawn product: expected 404, got %d", rec.Code)
	}
}

func TestListProductsByCategory(t *testing.T) {
	rec := do(t, newTestAPI(t), http.MethodGet, "/api/v1/products?category=Lacteos", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var products []domain.Product
	if err := json.Unmarshal(decodeBody(t, rec)["products"], &products); err != nil {
		t.Fatalf("decode products: %v", err)
	}
	if len(products) != 2 {
		t.Fatalf("expected 2 dairy products, got %d", len(products))
	}
	for _, p := range products {
		if p.Category != "Lacteos" {
			t.Fatalf("unexpected category %q", p.Category)
		}
	}
}

func TestListTransactionsFilters(t *testing.T) {
	handler := newTestAPI(t)

	rec := do(t, handler, http.MethodPost, "/api/v1/transactions", domain.OpenTransactionRequest{CustomerID: "C7", BranchID: "S02"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("open: expected 201, got %d", rec.Code)
	}
	openTransaction(t, handler, "S01")

	rec = do(t, handler, http.MethodGet, "/api/v1/transactions?customer_id=C7", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", rec.Code)
	}
	var carts []domain.Cart
	if err := json.Unmarshal(decodeBody(t, rec)["transactions"], &carts); err != nil {
		t.Fatalf("decode transactions: %v", err)
	}
	if len(carts) != 1 || carts[0].CustomerID != "C7" || carts[0].BranchID != "S02" {
		t.Fatalf("unexpected customer transactions %+v", carts)
	}

	rec = do(t, handler, http.MethodGet, "/api/v1/transactions?branch_id=S01&state=open", nil)
	if err := json.Unmarshal(decodeBody(t, rec)["transactions"], &carts); err != nil {
		t.Fatalf("decode transactions: %v", err)
	}
	if len(carts) != 1 || carts[0].BranchID != "S01" {
		t.Fatalf("unexpected branch transactions %+v", carts)
	}

	rec = do(t, handler, http.MethodGet, "/api/v1/transactions?state=lost", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad state: expected 400, got %d", rec.Code)
	}
}
