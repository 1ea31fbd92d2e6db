package service

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"
	"time"

	"saldopos/backend/internal/cache"
	"saldopos/backend/internal/domain"
	"saldopos/backend/internal/pricing"
	"saldopos/backend/internal/store"
	"saldopos/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

const (
	statsCacheKey      = "saldopos:stats"
	overdrawSettingKey = "allow_purchase_overdraw"
)

type Service struct {
	repo                  store.Repository
	stats                 cache.StatsCache
	allowPurchaseOverdraw bool
}

func New(repo store.Repository, stats cache.StatsCache, allowPurchaseOverdraw bool) *Service {
	if stats == nil {
		stats = cache.NoopStatsCache{}
	}
	return &Service{
		repo:                  repo,
		stats:                 stats,
		allowPurchaseOverdraw: allowPurchaseOverdraw,
	}
}

// ResolveOverdrawPolicy returns the purchase overdraw policy from the settings
// store, seeding it from fallback on first boot. Persisting the flag with the
// store means it travels with snapshots and survives restarts regardless of
// the environment the process comes back up with.
func ResolveOverdrawPolicy(ctx context.Context, repo store.Repository, fallback bool) bool {
	if value, err := repo.GetSetting(ctx, overdrawSettingKey); err == nil {
		if parsed, perr := strconv.ParseBool(value); perr == nil {
			return parsed
		}
	}
	if err := repo.SetSetting(ctx, overdrawSettingKey, strconv.FormatBool(fallback)); err != nil {
		log.Printf("[service] WARN: persist overdraw policy: %v", err)
	}
	return fallback
}

func isCustomerID(id string) bool {
	if len(id) != 4 {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < '0' || id[i] > '9' {
			return false
		}
	}
	return true
}

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (domain.Customer, error) {
	req.CustomerID = strings.TrimSpace(req.CustomerID)
	req.Name = strings.TrimSpace(req.Name)

	if !isCustomerID(req.CustomerID) {
		return domain.Customer{}, fmt.Errorf("%w: customer_id must be exactly 4 digits", store.ErrValidation)
	}
	if req.InitialBalanceCents < 0 {
		return domain.Customer{}, fmt.Errorf("%w: initial_balance_cents must not be negative", store.ErrValidation)
	}

	created, err := s.repo.CreateCustomer(ctx, domain.Customer{
		CustomerID: req.CustomerID,
		Name:       req.Name,
	})
	if err != nil {
		return domain.Customer{}, err
	}

	// The balance invariant requires every cent to be backed by a ledger
	// entry, so an opening balance is recorded as the first deposit. The
	// create and the deposit are separate atomic units: if the deposit
	// fails, the customer stays created with a zero balance and the error
	// is returned so the opening deposit can be retried on its own.
	if req.InitialBalanceCents > 0 {
		actor, _ := ActorFromContext(ctx)
		tx, err := s.repo.AppendTransaction(ctx, domain.Transaction{
			CustomerID:  created.CustomerID,
			Type:        domain.TxTypeDeposit,
			AmountCents: req.InitialBalanceCents,
			Note:        "initial balance",
			StaffID:     actor.Username,
		}, false)
		if err != nil {
			return domain.Customer{}, err
		}
		created.BalanceCents = tx.BalanceAfter
	}

	s.logAudit(ctx, "customer_create", "customer", created.CustomerID, fmt.Sprintf("name=%s,initial=%d", created.Name, req.InitialBalanceCents))
	s.invalidateStats(ctx)

	return *created, nil
}

func (s *Service) GetCustomer(ctx context.Context, customerID string) (domain.Customer, error) {
	customer, err := s.repo.GetCustomer(ctx, strings.TrimSpace(customerID))
	if err != nil {
		return domain.Customer{}, err
	}
	return *customer, nil
}

func (s *Service) UpdateCustomer(ctx context.Context, customerID string, req domain.CustomerUpdateRequest) (domain.Customer, error) {
	customerID = strings.TrimSpace(customerID)
	if !isCustomerID(customerID) {
		return domain.Customer{}, fmt.Errorf("%w: customer_id must be exactly 4 digits", store.ErrValidation)
	}

	updated, err := s.repo.UpdateCustomerName(ctx, customerID, strings.TrimSpace(req.Name))
	if err != nil {
		return domain.Customer{}, err
	}

	s.logAudit(ctx, "customer_update", "customer", customerID, fmt.Sprintf("name=%s", updated.Name))
	return *updated, nil
}

func (s *Service) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	return s.repo.ListCustomers(ctx)
}

func (s *Service) BulkCreateCustomers(ctx context.Context, entries []domain.CustomerCreateRequest) (domain.BulkCustomerResult, error) {
	result := domain.BulkCustomerResult{
		Created: make([]domain.Customer, 0, len(entries)),
		Failed:  make([]domain.BulkFailure, 0),
	}

	// Each row commits on its own; a bad row is reported, never fatal.
	for _, entry := range entries {
		created, err := s.CreateCustomer(ctx, entry)
		if err != nil {
			result.Failed = append(result.Failed, domain.BulkFailure{Input: entry, Error: err.Error()})
			continue
		}
		result.Created = append(result.Created, created)
	}

	s.logAudit(ctx, "customer_bulk_import", "customer", "", fmt.Sprintf("created=%d,failed=%d", len(result.Created), len(result.Failed)))
	return result, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Product{}, fmt.Errorf("admin role required")
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Barcode = strings.TrimSpace(req.Barcode)
	req.Category = strings.TrimSpace(req.Category)

	if req.Name == "" {
		return domain.Product{}, fmt.Errorf("%w: name is required", store.ErrValidation)
	}
	if req.PriceCents < 1 {
		return domain.Product{}, fmt.Errorf("%w: price_cents must be positive", store.ErrValidation)
	}
	if req.DiscountPercent < 0 || req.DiscountPercent > 100 {
		return domain.Product{}, fmt.Errorf("%w: discount_percent must be between 0 and 100", store.ErrValidation)
	}
	if req.DiscountFlatCents < 0 {
		return domain.Product{}, fmt.Errorf("%w: discount_flat_cents must not be negative", store.ErrValidation)
	}
	if err := validateOptionGroups(req.OptionGroups); err != nil {
		return domain.Product{}, err
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{
		ProductID:         strings.TrimSpace(req.ProductID),
		Name:              req.Name,
		PriceCents:        req.PriceCents,
		Barcode:           req.Barcode,
		Category:          req.Category,
		DiscountPercent:   req.DiscountPercent,
		DiscountFlatCents: req.DiscountFlatCents,
		OptionGroups:      req.OptionGroups,
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_create", "product", created.ProductID, fmt.Sprintf("name=%s,price=%d", created.Name, created.PriceCents))
	s.invalidateStats(ctx)

	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, productID string, req domain.ProductUpdateRequest) (domain.Product, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Product{}, fmt.Errorf("admin role required")
	}

	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.Product{}, fmt.Errorf("%w: product_id is required", store.ErrValidation)
	}

	existing, err := s.repo.GetProductByID(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, fmt.Errorf("%w: name is required", store.ErrValidation)
		}
		updated.Name = name
	}
	if req.PriceCents != nil {
		if *req.PriceCents < 1 {
			return domain.Product{}, fmt.Errorf("%w: price_cents must be positive", store.ErrValidation)
		}
		updated.PriceCents = *req.PriceCents
	}
	if req.Barcode != nil {
		updated.Barcode = strings.TrimSpace(*req.Barcode)
	}
	if req.Category != nil {
		updated.Category = strings.TrimSpace(*req.Category)
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}
	if req.DiscountPercent != nil {
		if *req.DiscountPercent < 0 || *req.DiscountPercent > 100 {
			return domain.Product{}, fmt.Errorf("%w: discount_percent must be between 0 and 100", store.ErrValidation)
		}
		updated.DiscountPercent = *req.DiscountPercent
	}
	if req.DiscountFlatCents != nil {
		if *req.DiscountFlatCents < 0 {
			return domain.Product{}, fmt.Errorf("%w: discount_flat_cents must not be negative", store.ErrValidation)
		}
		updated.DiscountFlatCents = *req.DiscountFlatCents
	}
	if req.OptionGroups != nil {
		if err := validateOptionGroups(*req.OptionGroups); err != nil {
			return domain.Product{}, err
		}
		updated.OptionGroups = *req.OptionGroups
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_update", "product", saved.ProductID, fmt.Sprintf("active=%t,price=%d", saved.Active, saved.PriceCents))
	return *saved, nil
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) GetProduct(ctx context.Context, productID string) (domain.Product, error) {
	product, err := s.repo.GetProductByID(ctx, strings.TrimSpace(productID))
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) BulkCreateProducts(ctx context.Context, entries []domain.ProductCreateRequest) (domain.BulkProductResult, error) {
	result := domain.BulkProductResult{
		Created: make([]domain.Product, 0, len(entries)),
		Failed:  make([]domain.BulkFailure, 0),
	}

	for _, entry := range entries {
		created, err := s.CreateProduct(ctx, entry)
		if err != nil {
			result.Failed = append(result.Failed, domain.BulkFailure{Input: entry, Error: err.Error()})
			continue
		}
		result.Created = append(result.Created, created)
	}

	s.logAudit(ctx, "product_bulk_import", "product", "", fmt.Sprintf("created=%d,failed=%d", len(result.Created), len(result.Failed)))
	return result, nil
}

func (s *Service) Deposit(ctx context.Context, req domain.DepositRequest) (domain.TransactionResult, error) {
	req.CustomerID = strings.TrimSpace(req.CustomerID)
	if req.AmountCents <= 0 {
		return domain.TransactionResult{}, fmt.Errorf("%w: deposit amount must be positive", store.ErrValidation)
	}

	actor, _ := ActorFromContext(ctx)
	tx, err := s.repo.AppendTransaction(ctx, domain.Transaction{
		CustomerID:  req.CustomerID,
		Type:        domain.TxTypeDeposit,
		AmountCents: req.AmountCents,
		Note:        strings.TrimSpace(req.Note),
		StaffID:     actor.Username,
	}, false)
	if err != nil {
		return domain.TransactionResult{}, err
	}

	s.logAudit(ctx, "deposit", "transaction", tx.ID, fmt.Sprintf("customer=%s,amount=%d", tx.CustomerID, tx.AmountCents))
	s.invalidateStats(ctx)

	return domain.TransactionResult{Transaction: *tx, NewBalance: tx.BalanceAfter}, nil
}

func (s *Service) Adjustment(ctx context.Context, req domain.AdjustmentRequest) (domain.TransactionResult, error) {
	req.CustomerID = strings.TrimSpace(req.CustomerID)
	if req.AmountCents == 0 {
		return domain.TransactionResult{}, fmt.Errorf("%w: adjustment amount must not be zero", store.ErrValidation)
	}

	// Adjustments are the manager override path: no overdraw floor.
	actor, _ := ActorFromContext(ctx)
	tx, err := s.repo.AppendTransaction(ctx, domain.Transaction{
		CustomerID:  req.CustomerID,
		Type:        domain.TxTypeAdjustment,
		AmountCents: req.AmountCents,
		Note:        strings.TrimSpace(req.Note),
		StaffID:     actor.Username,
	}, true)
	if err != nil {
		return domain.TransactionResult{}, err
	}

	s.logAudit(ctx, "adjustment", "transaction", tx.ID, fmt.Sprintf("customer=%s,amount=%d", tx.CustomerID, tx.AmountCents))
	s.invalidateStats(ctx)

	return domain.TransactionResult{Transaction: *tx, NewBalance: tx.BalanceAfter}, nil
}

func (s *Service) Purchase(ctx context.Context, req domain.PurchaseRequest) (domain.TransactionResult, error) {
	req.CustomerID = strings.TrimSpace(req.CustomerID)
	req.Barcode = strings.TrimSpace(req.Barcode)
	req.ProductID = strings.TrimSpace(req.ProductID)
	if req.Barcode == "" && req.ProductID == "" {
		return domain.TransactionResult{}, fmt.Errorf("%w: barcode or product_id is required", store.ErrValidation)
	}

	var product *domain.Product
	var err error
	if req.Barcode != "" {
		product, err = s.repo.GetProductByBarcode(ctx, req.Barcode)
	} else {
		product, err = s.repo.GetProductByID(ctx, req.ProductID)
	}
	if err != nil {
		return domain.TransactionResult{}, err
	}
	if !product.Active {
		return domain.TransactionResult{}, fmt.Errorf("%w: product is inactive", store.ErrNotFound)
	}

	priced, err := pricing.ComputeFinalPrice(*product, req.SelectedOptions)
	if err != nil {
		return domain.TransactionResult{}, err
	}

	actor, _ := ActorFromContext(ctx)
	tx, err := s.repo.AppendTransaction(ctx, domain.Transaction{
		CustomerID:      req.CustomerID,
		Type:            domain.TxTypePurchase,
		ProductID:       product.ProductID,
		AmountCents:     -priced.PriceCents,
		Note:            strings.TrimSpace(req.Note),
		StaffID:         actor.Username,
		SelectedOptions: priced.SelectedOptions,
	}, s.allowPurchaseOverdraw)
	if err != nil {
		return domain.TransactionResult{}, err
	}

	s.logAudit(ctx, "purchase", "transaction", tx.ID, fmt.Sprintf("customer=%s,product=%s,price=%d", tx.CustomerID, product.ProductID, priced.PriceCents))
	s.invalidateStats(ctx)

	return domain.TransactionResult{Transaction: *tx, NewBalance: tx.BalanceAfter}, nil
}

func (s *Service) EditTransaction(ctx context.Context, transactionID string, req domain.EditTransactionRequest) (domain.TransactionResult, error) {
	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" {
		return domain.TransactionResult{}, fmt.Errorf("%w: transaction_id is required", store.ErrValidation)
	}

	original, err := s.repo.GetTransaction(ctx, transactionID)
	if err != nil {
		return domain.TransactionResult{}, err
	}
	switch original.Type {
	case domain.TxTypeDeposit:
		if req.NewAmountCents <= 0 {
			return domain.TransactionResult{}, fmt.Errorf("%w: deposit amount must be positive", store.ErrValidation)
		}
	case domain.TxTypeAdjustment:
		if req.NewAmountCents == 0 {
			return domain.TransactionResult{}, fmt.Errorf("%w: adjustment amount must not be zero", store.ErrValidation)
		}
	default:
		return domain.TransactionResult{}, fmt.Errorf("%w: only deposit and adjustment entries can be edited", store.ErrValidation)
	}

	actor, _ := ActorFromContext(ctx)
	replacement, err := s.repo.EditTransaction(ctx, transactionID, req.NewAmountCents, strings.TrimSpace(req.Note), actor.Username)
	if err != nil {
		return domain.TransactionResult{}, err
	}

	customer, err := s.repo.GetCustomer(ctx, replacement.CustomerID)
	if err != nil {
		return domain.TransactionResult{}, err
	}

	s.logAudit(ctx, "transaction_edit", "transaction", transactionID, fmt.Sprintf("replacement=%s,amount=%d", replacement.ID, replacement.AmountCents))
	s.invalidateStats(ctx)

	return domain.TransactionResult{Transaction: *replacement, NewBalance: customer.BalanceCents}, nil
}

func (s *Service) VoidTransaction(ctx context.Context, transactionID string, req domain.VoidTransactionRequest) (domain.TransactionResult, error) {
	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" {
		return domain.TransactionResult{}, fmt.Errorf("%w: transaction_id is required", store.ErrValidation)
	}

	voided, err := s.repo.VoidTransaction(ctx, transactionID, strings.TrimSpace(req.Note))
	if err != nil {
		return domain.TransactionResult{}, err
	}

	customer, err := s.repo.GetCustomer(ctx, voided.CustomerID)
	if err != nil {
		return domain.TransactionResult{}, err
	}

	s.logAudit(ctx, "transaction_void", "transaction", transactionID, voided.VoidNote)
	s.invalidateStats(ctx)

	return domain.TransactionResult{Transaction: *voided, NewBalance: customer.BalanceCents}, nil
}

func (s *Service) GetTransaction(ctx context.Context, transactionID string) (domain.Transaction, error) {
	tx, err := s.repo.GetTransaction(ctx, strings.TrimSpace(transactionID))
	if err != nil {
		return domain.Transaction{}, err
	}
	return *tx, nil
}

func (s *Service) ListTransactions(ctx context.Context, limit int, offset int) (domain.TransactionListResponse, error) {
	if limit < 1 {
		limit = 100
	}
	if limit > 500 {
		limit = 500
	}
	if offset < 0 {
		offset = 0
	}

	rows, total, err := s.repo.ListTransactions(ctx, limit, offset)
	if err != nil {
		return domain.TransactionListResponse{}, err
	}
	return domain.TransactionListResponse{Transactions: rows, Total: total}, nil
}

func (s *Service) ListCustomerTransactions(ctx context.Context, customerID string) ([]domain.Transaction, error) {
	customerID = strings.TrimSpace(customerID)
	if _, err := s.repo.GetCustomer(ctx, customerID); err != nil {
		return nil, err
	}
	return s.repo.ListCustomerTransactions(ctx, customerID)
}

// ExportTransactionsCSV renders the full ledger, oldest first. The column
// order is a compatibility contract with downstream spreadsheets; every field
// is quote-wrapped with embedded quotes doubled.
func (s *Service) ExportTransactionsCSV(ctx context.Context) ([]byte, error) {
	_, total, err := s.repo.ListTransactions(ctx, 1, 0)
	if err != nil {
		return nil, err
	}

	var transactions []domain.Transaction
	if total > 0 {
		transactions, _, err = s.repo.ListTransactions(ctx, total, 0)
		if err != nil {
			return nil, err
		}
	}
	sort.SliceStable(transactions, func(i, j int) bool {
		if !transactions[i].Timestamp.Equal(transactions[j].Timestamp) {
			return transactions[i].Timestamp.Before(transactions[j].Timestamp)
		}
		return transactions[i].Seq < transactions[j].Seq
	})

	customers, err := s.repo.ListCustomers(ctx)
	if err != nil {
		return nil, err
	}
	customerNames := make(map[string]string, len(customers))
	for _, c := range customers {
		customerNames[c.CustomerID] = c.Name
	}

	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	productsByID := make(map[string]domain.Product, len(products))
	for _, p := range products {
		productsByID[p.ProductID] = p
	}

	var sb strings.Builder
	writeCSVRow(&sb,
		"Timestamp", "Transaction ID", "Customer ID", "Customer Name", "Type",
		"Product ID", "Product Name", "Product Price", "Amount", "Balance After",
		"Note", "Voided", "Voided Note", "Staff ID", "Options")

	for _, tx := range transactions {
		productName := ""
		productPrice := ""
		if tx.ProductID != "" {
			if p, ok := productsByID[tx.ProductID]; ok {
				productName = p.Name
				productPrice = formatCents(p.PriceCents)
			}
		}
		writeCSVRow(&sb,
			tx.Timestamp.UTC().Format(time.RFC3339),
			tx.ID,
			tx.CustomerID,
			customerNames[tx.CustomerID],
			tx.Type,
			tx.ProductID,
			productName,
			productPrice,
			formatCents(tx.AmountCents),
			formatCents(tx.BalanceAfter),
			tx.Note,
			fmt.Sprintf("%t", tx.Voided),
			tx.VoidNote,
			tx.StaffID,
			formatOptionSummary(tx.SelectedOptions),
		)
	}

	return []byte(sb.String()), nil
}

func writeCSVRow(sb *strings.Builder, fields ...string) {
	for i, field := range fields {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteByte('"')
		sb.WriteString(strings.ReplaceAll(field, `"`, `""`))
		sb.WriteByte('"')
	}
	sb.WriteByte('\n')
}

func formatCents(cents int64) string {
	return fmt.Sprintf("%.2f", float64(cents)/100)
}

func formatOptionSummary(groups []domain.SelectedOptionGroup) string {
	if len(groups) == 0 {
		return ""
	}
	parts := make([]string, 0, len(groups))
	for _, group := range groups {
		choices := make([]string, 0, len(group.Choices))
		for _, choice := range group.Choices {
			label := choice.Label
			if choice.PriceDeltaCents != 0 {
				label += fmt.Sprintf(" (%+.2f)", float64(choice.PriceDeltaCents)/100)
			}
			choices = append(choices, label)
		}
		parts = append(parts, group.Name+": "+strings.Join(choices, ", "))
	}
	return strings.Join(parts, "; ")
}

func (s *Service) Stats(ctx context.Context) (domain.Stats, error) {
	if cached, ok, err := s.stats.Get(ctx, statsCacheKey); err == nil && ok {
		return *cached, nil
	} else if err != nil {
		log.Printf("[service] WARN: stats cache read failed: %v", err)
	}

	customers, err := s.repo.ListCustomers(ctx)
	if err != nil {
		return domain.Stats{}, err
	}
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return domain.Stats{}, err
	}
	_, total, err := s.repo.ListTransactions(ctx, 1, 0)
	if err != nil {
		return domain.Stats{}, err
	}
	var transactions []domain.Transaction
	if total > 0 {
		transactions, _, err = s.repo.ListTransactions(ctx, total, 0)
		if err != nil {
			return domain.Stats{}, err
		}
	}

	stats := domain.Stats{
		Customers:    len(customers),
		Products:     len(products),
		Transactions: total,
	}
	for _, c := range customers {
		stats.OutstandingCents += c.BalanceCents
	}
	for _, tx := range transactions {
		if tx.Voided {
			continue
		}
		switch tx.Type {
		case domain.TxTypeDeposit:
			stats.TotalDepositedCents += tx.AmountCents
		case domain.TxTypePurchase:
			stats.TotalSpentCents += -tx.AmountCents
		}
	}

	if err := s.stats.Set(ctx, statsCacheKey, &stats, 10*time.Minute); err != nil {
		log.Printf("[service] WARN: stats cache write failed: %v", err)
	}
	return stats, nil
}

func (s *Service) ListAuditLogs(ctx context.Context, date string, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	var from time.Time
	if strings.TrimSpace(date) == "" {
		from = time.Now().UTC().Add(-24 * time.Hour)
	} else {
		parsed, err := time.Parse("2006-01-02", date)
		if err != nil {
			return nil, fmt.Errorf("%w: date must be YYYY-MM-DD", store.ErrValidation)
		}
		from = parsed.UTC()
	}
	to := from.Add(24 * time.Hour)

	return s.repo.ListAuditLogs(ctx, from, to, limit)
}

func validateOptionGroups(groups []domain.OptionGroup) error {
	seenGroups := make(map[string]struct{}, len(groups))
	for _, group := range groups {
		if group.ID == "" || group.Name == "" {
			return fmt.Errorf("%w: option group id and name are required", store.ErrValidation)
		}
		if _, dup := seenGroups[group.ID]; dup {
			return fmt.Errorf("%w: duplicate option group id %s", store.ErrValidation, group.ID)
		}
		seenGroups[group.ID] = struct{}{}
		if len(group.Choices) == 0 {
			return fmt.Errorf("%w: option group %s has no choices", store.ErrValidation, group.ID)
		}
		seenChoices := make(map[string]struct{}, len(group.Choices))
		for _, choice := range group.Choices {
			if choice.ID == "" {
				return fmt.Errorf("%w: option choice id is required", store.ErrValidation)
			}
			if _, dup := seenChoices[choice.ID]; dup {
				return fmt.Errorf("%w: duplicate option choice id %s", store.ErrValidation, choice.ID)
			}
			seenChoices[choice.ID] = struct{}{}
		}
	}
	return nil
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     time.Now().UTC(),
	}); err != nil {
		log.Printf("[audit] WARN: failed to write audit log action=%s entity=%s/%s: %v", action, entityType, entityID, err)
	}
}

func (s *Service) invalidateStats(ctx context.Context) {
	if err := s.stats.Invalidate(ctx, statsCacheKey); err != nil {
		log.Printf("[service] WARN: stats cache invalidation failed: %v", err)
	}
}
