package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"saldopos/backend/internal/cache"
	"saldopos/backend/internal/domain"
	"saldopos/backend/internal/store"
	"saldopos/backend/internal/store/memory"
)

func newTestService() *Service {
	return New(memory.New(), cache.NoopStatsCache{}, false)
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "admin", Role: "admin"})
}

func mustCreateCustomer(t *testing.T, svc *Service, id string, initial int64) domain.Customer {
	t.Helper()
	customer, err := svc.CreateCustomer(adminCtx(), domain.CustomerCreateRequest{
		CustomerID:          id,
		Name:                "Customer " + id,
		InitialBalanceCents: initial,
	})
	if err != nil {
		t.Fatalf("create customer %s failed: %v", id, err)
	}
	return customer
}

func mustCreateProduct(t *testing.T, svc *Service, req domain.ProductCreateRequest) domain.Product {
	t.Helper()
	product, err := svc.CreateProduct(adminCtx(), req)
	if err != nil {
		t.Fatalf("create product failed: %v", err)
	}
	return product
}

func TestResolveOverdrawPolicyPersistsFirstBoot(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()

	if !ResolveOverdrawPolicy(ctx, repo, true) {
		t.Fatalf("expected fallback true on first resolve")
	}

	// The first resolve seeded the setting; a later boot with a different
	// environment fallback keeps the stored value.
	if !ResolveOverdrawPolicy(ctx, repo, false) {
		t.Fatalf("stored policy must win over a changed fallback")
	}

	value, err := repo.GetSetting(ctx, "allow_purchase_overdraw")
	if err != nil || value != "true" {
		t.Fatalf("expected persisted policy setting, got %q (%v)", value, err)
	}
}

func TestResolveOverdrawPolicyIgnoresGarbageSetting(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()
	if err := repo.SetSetting(ctx, "allow_purchase_overdraw", "maybe"); err != nil {
		t.Fatalf("set setting failed: %v", err)
	}

	if ResolveOverdrawPolicy(ctx, repo, false) {
		t.Fatalf("unparseable setting must fall back, got true")
	}
}

func TestCreateCustomerValidatesID(t *testing.T) {
	svc := newTestService()

	for _, id := range []string{"", "12", "12345", "12a4", "١٢٣٤"} {
		_, err := svc.CreateCustomer(adminCtx(), domain.CustomerCreateRequest{CustomerID: id})
		if !errors.Is(err, store.ErrValidation) {
			t.Fatalf("expected validation error for id %q, got %v", id, err)
		}
	}
}

// appendDownRepo simulates a ledger append outage while the rest of the
// store keeps working.
type appendDownRepo struct {
	*memory.Store
}

func (r appendDownRepo) AppendTransaction(context.Context, domain.Transaction, bool) (*domain.Transaction, error) {
	return nil, errors.New("ledger append unavailable")
}

func TestCreateCustomerSurvivesInitialDepositFailure(t *testing.T) {
	repo := appendDownRepo{memory.New()}
	svc := New(repo, cache.NoopStatsCache{}, false)

	_, err := svc.CreateCustomer(adminCtx(), domain.CustomerCreateRequest{
		CustomerID:          "1001",
		InitialBalanceCents: 500,
	})
	if err == nil {
		t.Fatalf("expected error when the opening deposit cannot be appended")
	}

	// The create and the opening deposit are separate units: the customer
	// exists with a zero balance so the deposit can be retried.
	customer, err := repo.GetCustomer(context.Background(), "1001")
	if err != nil {
		t.Fatalf("customer must exist after failed opening deposit: %v", err)
	}
	if customer.BalanceCents != 0 {
		t.Fatalf("expected zero balance, got %d", customer.BalanceCents)
	}
}

func TestCreateCustomerDuplicateConflicts(t *testing.T) {
	svc := newTestService()
	mustCreateCustomer(t, svc, "1001", 0)

	_, err := svc.CreateCustomer(adminCtx(), domain.CustomerCreateRequest{CustomerID: "1001"})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestCreateCustomerInitialBalanceIsALedgerEntry(t *testing.T) {
	svc := newTestService()
	customer := mustCreateCustomer(t, svc, "1001", 5000)

	if customer.BalanceCents != 5000 {
		t.Fatalf("expected balance 5000, got %d", customer.BalanceCents)
	}

	history, err := svc.ListCustomerTransactions(adminCtx(), "1001")
	if err != nil {
		t.Fatalf("list history failed: %v", err)
	}
	if len(history) != 1 || history[0].Type != domain.TxTypeDeposit || history[0].AmountCents != 5000 {
		t.Fatalf("initial balance must be backed by a deposit entry: %+v", history)
	}
}

func TestDepositRejectsNonPositiveAmount(t *testing.T) {
	svc := newTestService()
	mustCreateCustomer(t, svc, "1001", 0)

	for _, amount := range []int64{0, -100} {
		_, err := svc.Deposit(adminCtx(), domain.DepositRequest{CustomerID: "1001", AmountCents: amount})
		if !errors.Is(err, store.ErrValidation) {
			t.Fatalf("expected validation error for amount %d, got %v", amount, err)
		}
	}
}

func TestAdjustmentMayOverdraw(t *testing.T) {
	svc := newTestService()
	mustCreateCustomer(t, svc, "1001", 200)

	result, err := svc.Adjustment(adminCtx(), domain.AdjustmentRequest{CustomerID: "1001", AmountCents: -500, Note: "breakage"})
	if err != nil {
		t.Fatalf("adjustment failed: %v", err)
	}
	if result.NewBalance != -300 {
		t.Fatalf("expected balance -300, got %d", result.NewBalance)
	}

	_, err = svc.Adjustment(adminCtx(), domain.AdjustmentRequest{CustomerID: "1001", AmountCents: 0})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error for zero adjustment, got %v", err)
	}
}

func TestPurchaseGuardsBalanceFloor(t *testing.T) {
	svc := newTestService()
	mustCreateCustomer(t, svc, "1001", 300)
	product := mustCreateProduct(t, svc, domain.ProductCreateRequest{Name: "Nasi Goreng", PriceCents: 500})

	_, err := svc.Purchase(adminCtx(), domain.PurchaseRequest{CustomerID: "1001", ProductID: product.ProductID})
	if !errors.Is(err, store.ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}

	customer, _ := svc.GetCustomer(adminCtx(), "1001")
	if customer.BalanceCents != 300 {
		t.Fatalf("balance must be unchanged after rejected purchase, got %d", customer.BalanceCents)
	}
}

func TestPurchaseByBarcodeWithOptions(t *testing.T) {
	svc := newTestService()
	mustCreateCustomer(t, svc, "1001", 5000)
	mustCreateProduct(t, svc, domain.ProductCreateRequest{
		Name:       "Kopi Susu",
		PriceCents: 1800,
		Barcode:    "8991002501234",
		OptionGroups: []domain.OptionGroup{
			{
				ID: "size", Name: "Size", Required: true,
				Choices: []domain.OptionChoice{
					{ID: "small", Label: "Small"},
					{ID: "large", Label: "Large", PriceDeltaCents: 500},
				},
			},
		},
	})

	result, err := svc.Purchase(adminCtx(), domain.PurchaseRequest{
		CustomerID:      "1001",
		Barcode:         "8991002501234",
		SelectedOptions: []domain.SelectedOptionInput{{GroupID: "size", ChoiceIDs: []string{"large"}}},
	})
	if err != nil {
		t.Fatalf("purchase failed: %v", err)
	}
	if result.Transaction.AmountCents != -2300 {
		t.Fatalf("expected amount -2300, got %d", result.Transaction.AmountCents)
	}
	if result.NewBalance != 2700 {
		t.Fatalf("expected balance 2700, got %d", result.NewBalance)
	}
	if len(result.Transaction.SelectedOptions) != 1 || result.Transaction.SelectedOptions[0].Choices[0].Label != "Large" {
		t.Fatalf("purchase must snapshot the selected options: %+v", result.Transaction.SelectedOptions)
	}
}

func TestPurchaseInactiveProductNotFound(t *testing.T) {
	svc := newTestService()
	mustCreateCustomer(t, svc, "1001", 5000)
	product := mustCreateProduct(t, svc, domain.ProductCreateRequest{Name: "Discontinued", PriceCents: 100})

	inactive := false
	if _, err := svc.UpdateProduct(adminCtx(), product.ProductID, domain.ProductUpdateRequest{Active: &inactive}); err != nil {
		t.Fatalf("deactivate failed: %v", err)
	}

	_, err := svc.Purchase(adminCtx(), domain.PurchaseRequest{CustomerID: "1001", ProductID: product.ProductID})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found for inactive product, got %v", err)
	}
}

func TestEditTransactionCascadesDownstream(t *testing.T) {
	svc := newTestService()
	mustCreateCustomer(t, svc, "1001", 0)

	first, err := svc.Deposit(adminCtx(), domain.DepositRequest{CustomerID: "1001", AmountCents: 1000})
	if err != nil {
		t.Fatalf("first deposit failed: %v", err)
	}
	second, err := svc.Deposit(adminCtx(), domain.DepositRequest{CustomerID: "1001", AmountCents: 500})
	if err != nil {
		t.Fatalf("second deposit failed: %v", err)
	}

	result, err := svc.EditTransaction(adminCtx(), first.Transaction.ID, domain.EditTransactionRequest{NewAmountCents: 2000, Note: "typo"})
	if err != nil {
		t.Fatalf("edit failed: %v", err)
	}
	if result.NewBalance != 2500 {
		t.Fatalf("expected balance 2500 after edit, got %d", result.NewBalance)
	}

	downstream, err := svc.GetTransaction(adminCtx(), second.Transaction.ID)
	if err != nil {
		t.Fatalf("get downstream failed: %v", err)
	}
	if downstream.BalanceAfter != 2500 {
		t.Fatalf("expected downstream balance_after 2500, got %d", downstream.BalanceAfter)
	}
}

func TestEditTransactionRejectsPurchase(t *testing.T) {
	svc := newTestService()
	mustCreateCustomer(t, svc, "1001", 1000)
	product := mustCreateProduct(t, svc, domain.ProductCreateRequest{Name: "Teh", PriceCents: 300})

	result, err := svc.Purchase(adminCtx(), domain.PurchaseRequest{CustomerID: "1001", ProductID: product.ProductID})
	if err != nil {
		t.Fatalf("purchase failed: %v", err)
	}

	_, err = svc.EditTransaction(adminCtx(), result.Transaction.ID, domain.EditTransactionRequest{NewAmountCents: -100})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestBulkCreateCustomersPartialFailure(t *testing.T) {
	svc := newTestService()
	mustCreateCustomer(t, svc, "1002", 0)

	result, err := svc.BulkCreateCustomers(adminCtx(), []domain.CustomerCreateRequest{
		{CustomerID: "1001", Name: "Budi"},
		{CustomerID: "12x4", Name: "Bad ID"},
		{CustomerID: "1002", Name: "Duplicate"},
		{CustomerID: "1003", Name: "Sari", InitialBalanceCents: 700},
	})
	if err != nil {
		t.Fatalf("bulk create failed: %v", err)
	}
	if len(result.Created) != 2 {
		t.Fatalf("expected 2 created, got %d", len(result.Created))
	}
	if len(result.Failed) != 2 {
		t.Fatalf("expected 2 failed, got %d", len(result.Failed))
	}
	for _, failure := range result.Failed {
		if failure.Error == "" {
			t.Fatalf("failure rows must carry an error message: %+v", failure)
		}
	}

	// Good rows landed despite the bad ones.
	customer, err := svc.GetCustomer(adminCtx(), "1003")
	if err != nil {
		t.Fatalf("customer 1003 missing: %v", err)
	}
	if customer.BalanceCents != 700 {
		t.Fatalf("expected balance 700, got %d", customer.BalanceCents)
	}
}

func TestBulkCreateProductsDoesNotOverwrite(t *testing.T) {
	svc := newTestService()
	mustCreateProduct(t, svc, domain.ProductCreateRequest{ProductID: "prod-1", Name: "Original", PriceCents: 100})

	result, err := svc.BulkCreateProducts(adminCtx(), []domain.ProductCreateRequest{
		{ProductID: "prod-1", Name: "Imposter", PriceCents: 999},
		{Name: "Fresh", PriceCents: 250},
	})
	if err != nil {
		t.Fatalf("bulk create failed: %v", err)
	}
	if len(result.Created) != 1 || len(result.Failed) != 1 {
		t.Fatalf("expected 1 created / 1 failed, got %d/%d", len(result.Created), len(result.Failed))
	}

	existing, _ := svc.GetProduct(adminCtx(), "prod-1")
	if existing.Name != "Original" {
		t.Fatalf("bulk import must never mutate existing entities: %+v", existing)
	}
}

func TestProductMutationsRequireAdmin(t *testing.T) {
	svc := newTestService()
	cashier := WithActor(context.Background(), domain.Actor{Username: "staff", Role: "cashier"})

	_, err := svc.CreateProduct(cashier, domain.ProductCreateRequest{Name: "Teh", PriceCents: 100})
	if err == nil || !strings.Contains(err.Error(), "admin role required") {
		t.Fatalf("expected admin role error, got %v", err)
	}
}

func TestExportTransactionsCSV(t *testing.T) {
	svc := newTestService()
	mustCreateCustomer(t, svc, "1001", 0)
	product := mustCreateProduct(t, svc, domain.ProductCreateRequest{
		Name:       `Kopi "Premium"`,
		PriceCents: 1800,
		OptionGroups: []domain.OptionGroup{
			{
				ID: "size", Name: "Size", Required: true,
				Choices: []domain.OptionChoice{{ID: "large", Label: "Large", PriceDeltaCents: 150}},
			},
		},
	})

	if _, err := svc.Deposit(adminCtx(), domain.DepositRequest{CustomerID: "1001", AmountCents: 5000}); err != nil {
		t.Fatalf("deposit failed: %v", err)
	}
	if _, err := svc.Purchase(adminCtx(), domain.PurchaseRequest{
		CustomerID:      "1001",
		ProductID:       product.ProductID,
		SelectedOptions: []domain.SelectedOptionInput{{GroupID: "size", ChoiceIDs: []string{"large"}}},
	}); err != nil {
		t.Fatalf("purchase failed: %v", err)
	}

	data, err := svc.ExportTransactionsCSV(adminCtx())
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header + 2 rows, got %d lines", len(lines))
	}

	wantHeader := `"Timestamp","Transaction ID","Customer ID","Customer Name","Type","Product ID","Product Name","Product Price","Amount","Balance After","Note","Voided","Voided Note","Staff ID","Options"`
	if lines[0] != wantHeader {
		t.Fatalf("header mismatch:\n got %s\nwant %s", lines[0], wantHeader)
	}

	depositRow := lines[1]
	if !strings.Contains(depositRow, `"50.00"`) {
		t.Fatalf("currency must render with 2 decimals: %s", depositRow)
	}

	purchaseRow := lines[2]
	if !strings.Contains(purchaseRow, `"Kopi ""Premium"""`) {
		t.Fatalf("embedded quotes must be doubled: %s", purchaseRow)
	}
	if !strings.Contains(purchaseRow, `"Size: Large (+1.50)"`) {
		t.Fatalf("option summary format mismatch: %s", purchaseRow)
	}
	if !strings.Contains(purchaseRow, `"-19.50"`) {
		t.Fatalf("expected amount -19.50 in row: %s", purchaseRow)
	}
}

func TestStatsTotals(t *testing.T) {
	svc := newTestService()
	mustCreateCustomer(t, svc, "1001", 0)
	product := mustCreateProduct(t, svc, domain.ProductCreateRequest{Name: "Teh", PriceCents: 400})

	if _, err := svc.Deposit(adminCtx(), domain.DepositRequest{CustomerID: "1001", AmountCents: 1000}); err != nil {
		t.Fatalf("deposit failed: %v", err)
	}
	if _, err := svc.Purchase(adminCtx(), domain.PurchaseRequest{CustomerID: "1001", ProductID: product.ProductID}); err != nil {
		t.Fatalf("purchase failed: %v", err)
	}

	stats, err := svc.Stats(adminCtx())
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.Customers != 1 || stats.Products != 1 || stats.Transactions != 2 {
		t.Fatalf("unexpected counts: %+v", stats)
	}
	if stats.TotalDepositedCents != 1000 || stats.TotalSpentCents != 400 || stats.OutstandingCents != 600 {
		t.Fatalf("unexpected totals: %+v", stats)
	}
}

func TestAuditLogsRecordMutations(t *testing.T) {
	svc := newTestService()
	mustCreateCustomer(t, svc, "1001", 0)
	if _, err := svc.Deposit(adminCtx(), domain.DepositRequest{CustomerID: "1001", AmountCents: 100}); err != nil {
		t.Fatalf("deposit failed: %v", err)
	}

	logs, err := svc.ListAuditLogs(adminCtx(), "", 50)
	if err != nil {
		t.Fatalf("list audit logs failed: %v", err)
	}
	if len(logs) < 2 {
		t.Fatalf("expected audit entries for create and deposit, got %d", len(logs))
	}
	for _, entry := range logs {
		if entry.ActorUsername != "admin" {
			t.Fatalf("audit log must attribute the actor: %+v", entry)
		}
	}
}
