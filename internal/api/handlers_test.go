package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"

	"github.com/openclearing/settlement-service/internal/app"
	"github.com/openclearing/settlement-service/internal/domain"
	"github.com/openclearing/settlement-service/internal/ledger"
)

const (
	testSecret   = "test-secret"
	testOperator = "bo-agri"
)

type apiFixture struct {
	router  http.Handler
	service *app.Service
	bank    domain.Address
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	l := ledger.New(nil, nil)
	bank, err := l.RegisterBank(ledger.BankSpec{
		BIC:        "AGRIFRPPXXX",
		BankCode:   "30002",
		BranchCode: "05728",
		Currency:   "EUR",
		Decimals:   2,
		Operator:   testOperator,
	})
	if err != nil {
		t.Fatalf("RegisterBank: %v", err)
	}
	service := app.NewService(l, nil)
	handlers := NewSettlementHandlers(service)
	return &apiFixture{
		router:  SettlementRoutes(handlers, testSecret, nil, 0),
		service: service,
		bank:    bank,
	}
}

func signToken(t *testing.T, subject string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": subject})
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}
	return signed
}

func (f *apiFixture) do(t *testing.T, method, path, subject string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if subject != "" {
		req.Header.Set("Authorization", "Bearer "+signToken(t, subject))
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *apiFixture) registerAccount(t *testing.T, name, owner string) domain.Address {
	t.Helper()
	acct, err := f.service.RegisterAccount(testOperator, f.bank, name, domain.Identity(owner))
	if err != nil {
		t.Fatalf("RegisterAccount: %v", err)
	}
	return acct.Address
}

func TestHealthEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestMissingTokenIsRejected(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, http.MethodPost, "/credit", "", map[string]interface{}{})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestCreditEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	acct := f.registerAccount(t, "Alice", "alice")

	rec := f.do(t, http.MethodPost, "/credit", testOperator, map[string]interface{}{
		"account": string(acct),
		"amount":  700000,
		"details": "initial funding",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp transferResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.TransferID != 1 || resp.Amount != 700000 || resp.Status != "Completed" {
		t.Fatalf("response = %+v", resp)
	}
}

func TestTransferInsufficientFunds(t *testing.T) {
	f := newAPIFixture(t)
	alice := f.registerAccount(t, "Alice", "alice")
	bob := f.registerAccount(t, "Bob", "bob")

	rec := f.do(t, http.MethodPost, "/transfer", testOperator, map[string]interface{}{
		"sender":    string(alice),
		"recipient": map[string]string{"account": string(bob)},
		"amount":    100,
	})
	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("status = %d, want 402", rec.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp["error"] != "Insufficient funds" {
		t.Fatalf("error = %q", resp["error"])
	}
}

func TestUnauthorizedCallerCannotMoveFunds(t *testing.T) {
	f := newAPIFixture(t)
	alice := f.registerAccount(t, "Alice", "alice")

	rec := f.do(t, http.MethodPost, "/credit", "mallory", map[string]interface{}{
		"account": string(alice),
		"amount":  100,
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestRegisterAccountEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/admin/accounts", testOperator, map[string]string{
		"bank":  string(f.bank),
		"name":  "Alice",
		"owner": "alice",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp accountRegistrationResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.AccountNumber != "EUR00000001" {
		t.Fatalf("account number = %q", resp.AccountNumber)
	}
	if len(resp.IBAN) != 27 || resp.IBAN[:2] != "FR" {
		t.Fatalf("iban = %q", resp.IBAN)
	}
}

func TestAccountInfoEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	alice := f.registerAccount(t, "Alice", "alice")

	rec := f.do(t, http.MethodGet, "/accounts/"+string(alice), "alice", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var view ledger.AccountView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if view.Currency != "EUR" || view.BIC != "AGRIFRPPXXX" {
		t.Fatalf("view = %+v", view)
	}

	rec = f.do(t, http.MethodGet, "/accounts/nonexistent", "alice", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestDecodeIBANEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/iban/FR29200410100500013M0260005", "alice", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp["bankCode"] != "20041" || resp["branchCode"] != "01005" || resp["accountNumber"] != "00013M02600" {
		t.Fatalf("decoded = %v", resp)
	}

	rec = f.do(t, http.MethodGet, "/iban/DE00123", "alice", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestDecisionEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	alice := f.registerAccount(t, "Alice", "alice")
	bob := f.registerAccount(t, "Bob", "bob")

	if rec := f.do(t, http.MethodPost, "/credit", testOperator, map[string]interface{}{
		"account": string(alice), "amount": 500000,
	}); rec.Code != http.StatusCreated {
		t.Fatalf("credit status = %d", rec.Code)
	}
	if rec := f.do(t, http.MethodPost, fmt.Sprintf("/admin/accounts/%s/toggle-active", bob), testOperator, nil); rec.Code != http.StatusOK {
		t.Fatalf("toggle status = %d", rec.Code)
	}

	rec := f.do(t, http.MethodPost, "/transfer", testOperator, map[string]interface{}{
		"sender":    string(alice),
		"recipient": map[string]string{"account": string(bob)},
		"amount":    100000,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("transfer status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var tr transferResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &tr); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if tr.Status != "Pending" {
		t.Fatalf("status = %q, want Pending", tr.Status)
	}

	rec = f.do(t, http.MethodGet, fmt.Sprintf("/admin/banks/%s/pending", f.bank), testOperator, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("pending status = %d", rec.Code)
	}
	var pending []transferResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &pending); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(pending) != 1 || pending[0].TransferID != tr.TransferID {
		t.Fatalf("pending = %+v", pending)
	}

	if rec := f.do(t, http.MethodPost, fmt.Sprintf("/admin/banks/%s/decisions", f.bank), testOperator, map[string]interface{}{
		"transfer_id": tr.TransferID, "decision": 7,
	}); rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid decision status = %d, want 400", rec.Code)
	}

	rec = f.do(t, http.MethodPost, fmt.Sprintf("/admin/banks/%s/decisions", f.bank), testOperator, map[string]interface{}{
		"transfer_id": tr.TransferID, "decision": 4, "reason": "reviewed",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("decision status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var decided transferResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &decided); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decided.Status != "Completed" {
		t.Fatalf("decided status = %q", decided.Status)
	}
}

func TestHTLCEndpoints(t *testing.T) {
	f := newAPIFixture(t)
	alice := f.registerAccount(t, "Alice", "alice")
	bob := f.registerAccount(t, "Bob", "bob")

	if rec := f.do(t, http.MethodPost, "/credit", testOperator, map[string]interface{}{
		"account": string(alice), "amount": 500000,
	}); rec.Code != http.StatusCreated {
		t.Fatalf("credit status = %d", rec.Code)
	}

	rec := f.do(t, http.MethodPost, "/htlc", testOperator, map[string]interface{}{
		"account":         string(alice),
		"recipient":       map[string]string{"account": string(bob)},
		"amount":          300000,
		"deadline":        "2026-12-31T00:00:00Z",
		"hashlock_paid":   ledger.HashSecret("secret1"),
		"hashlock_cancel": ledger.HashSecret("cancel1"),
		"opaque":          "deal-42",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("htlc create status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var created htlcResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if created.PaymentID != 1 {
		t.Fatalf("payment id = %d", created.PaymentID)
	}

	rec = f.do(t, http.MethodGet, fmt.Sprintf("/accounts/%s/htlc/1", alice), "alice", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("htlc info status = %d", rec.Code)
	}

	// Wrong secret is refused, funds stay locked.
	rec = f.do(t, http.MethodPost, "/htlc/transfer", "", map[string]interface{}{
		"account": string(alice), "payment_id": 1, "secret": "wrong",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("wrong secret status = %d, want 403", rec.Code)
	}

	rec = f.do(t, http.MethodPost, "/htlc/transfer", "", map[string]interface{}{
		"account": string(alice), "payment_id": 1, "secret": "secret1",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("redeem status = %d, body = %s", rec.Code, rec.Body.String())
	}

	view, err := f.service.AccountInfo(bob)
	if err != nil {
		t.Fatalf("AccountInfo: %v", err)
	}
	if view.Balance != 300000 {
		t.Fatalf("bob balance = %d, want 300000", view.Balance)
	}
}
