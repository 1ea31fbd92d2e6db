package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"saldopos/backend/internal/domain"
	"saldopos/backend/internal/store"
	"saldopos/backend/internal/xid"
)

// Store is the in-memory ledger store. The write lock is the global
// write-serialization point: one mutation is in flight at a time, and every
// mutating method applies all of its derived writes before unlocking.
type Store struct {
	mu               sync.RWMutex
	customers        map[string]domain.Customer
	products         map[string]domain.Product
	productByBarcode map[string]string
	transactionsByID map[string]*domain.Transaction
	settings         map[string]string
	auditLogs        []domain.AuditLog
	staffByUsername  map[string]domain.StaffAccount
	nextSeq          int64
}

func New() *Store {
	return &Store{
		customers:        make(map[string]domain.Customer),
		products:         make(map[string]domain.Product),
		productByBarcode: make(map[string]string),
		transactionsByID: make(map[string]*domain.Transaction),
		settings:         make(map[string]string),
		auditLogs:        make([]domain.AuditLog, 0, 128),
		staffByUsername:  make(map[string]domain.StaffAccount),
		nextSeq:          1,
	}
}

// SeedStaffAccounts builds the initial staff accounts for a fresh store.
// Credentials come from SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD; unset
// variables fall back to hardcoded dev defaults with a warning.
func SeedStaffAccounts() []domain.StaffAccount {
	byName := seedStaff()
	accounts := make([]domain.StaffAccount, 0, len(byName))
	for _, acct := range byName {
		accounts = append(accounts, acct)
	}
	slices.SortFunc(accounts, func(a, b domain.StaffAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return accounts
}

func seedStaff() map[string]domain.StaffAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	staffPwd := envOr("SEED_STAFF_PASSWORD", "staff123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_STAFF_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD to override.")
	}

	now := time.Now().UTC()
	accounts := map[string]domain.StaffAccount{}
	for _, acct := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"staff", staffPwd, "cashier"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(acct.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", acct.username, err)
		}
		accounts[acct.username] = domain.StaffAccount{
			Username:  acct.username,
			Password:  string(hash),
			Role:      acct.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return accounts
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// NewSeeded returns a store preloaded with demo catalog data and dev staff
// accounts, for running without persistence configured.
func NewSeeded() *Store {
	s := New()
	s.staffByUsername = seedStaff()

	now := time.Now().UTC()
	products := []domain.Product{
		{
			ProductID:  "prod-kopi-susu",
			Name:       "Kopi Susu",
			PriceCents: 1800,
			Barcode:    "8991002501234",
			Category:   "beverage",
			Active:     true,
			OptionGroups: []domain.OptionGroup{
				{
					ID:       "size",
					Name:     "Size",
					Required: true,
					Multiple: false,
					Choices: []domain.OptionChoice{
						{ID: "small", Label: "Small", PriceDeltaCents: 0},
						{ID: "large", Label: "Large", PriceDeltaCents: 500},
					},
				},
				{
					ID:       "extras",
					Name:     "Extras",
					Required: false,
					Multiple: true,
					Choices: []domain.OptionChoice{
						{ID: "extra-shot", Label: "Extra Shot", PriceDeltaCents: 400},
						{ID: "oat-milk", Label: "Oat Milk", PriceDeltaCents: 300},
					},
				},
			},
		},
		{ProductID: "prod-roti-bakar", Name: "Roti Bakar", PriceCents: 1500, Barcode: "8991002505678", Category: "bakery", Active: true},
		{ProductID: "prod-air-mineral", Name: "Air Mineral 600ml", PriceCents: 400, Barcode: "8991002509012", Category: "beverage", Active: true},
		{ProductID: "prod-keripik", Name: "Keripik Singkong", PriceCents: 1200, Category: "snack", Active: true, DiscountPercent: 10},
	}
	for _, p := range products {
		p.CreatedAt = now
		p.UpdatedAt = now
		s.products[p.ProductID] = p
		if p.Barcode != "" {
			s.productByBarcode[p.Barcode] = p.ProductID
		}
	}

	for _, c := range []domain.Customer{
		{CustomerID: "1001", Name: "Budi"},
		{CustomerID: "1002", Name: "Sari"},
	} {
		c.CreatedAt = now
		c.UpdatedAt = now
		s.customers[c.CustomerID] = c
	}

	return s
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if customer.CustomerID == "" {
		return nil, store.ErrValidation
	}
	if _, exists := s.customers[customer.CustomerID]; exists {
		return nil, store.ErrConflict
	}

	now := time.Now().UTC()
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = now
	}
	customer.UpdatedAt = now
	s.customers[customer.CustomerID] = customer
	created := customer
	return &created, nil
}

func (s *Store) GetCustomer(_ context.Context, customerID string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, exists := s.customers[customerID]
	if !exists {
		return nil, store.ErrNotFound
	}
	found := customer
	return &found, nil
}

func (s *Store) UpdateCustomerName(_ context.Context, customerID string, name string) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	customer, exists := s.customers[customerID]
	if !exists {
		return nil, store.ErrNotFound
	}
	customer.Name = name
	customer.UpdatedAt = time.Now().UTC()
	s.customers[customerID] = customer
	updated := customer
	return &updated, nil
}

func (s *Store) ListCustomers(_ context.Context) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customers := make([]domain.Customer, 0, len(s.customers))
	for _, c := range s.customers {
		customers = append(customers, c)
	}
	slices.SortFunc(customers, func(a, b domain.Customer) int {
		return strings.Compare(a.CustomerID, b.CustomerID)
	})
	return customers, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.Name == "" || product.PriceCents < 1 {
		return nil, store.ErrValidation
	}
	if product.ProductID == "" {
		product.ProductID = xid.New("prod")
	}
	if _, exists := s.products[product.ProductID]; exists {
		return nil, store.ErrConflict
	}
	if product.Barcode != "" {
		if _, exists := s.productByBarcode[product.Barcode]; exists {
			return nil, store.ErrConflict
		}
	}

	now := time.Now().UTC()
	product.Active = true
	product.CreatedAt = now
	product.UpdatedAt = now
	s.products[product.ProductID] = cloneProduct(product)
	if product.Barcode != "" {
		s.productByBarcode[product.Barcode] = product.ProductID
	}
	created := cloneProduct(product)
	return &created, nil
}

func (s *Store) GetProductByID(_ context.Context, productID string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[productID]
	if !exists {
		return nil, store.ErrNotFound
	}
	found := cloneProduct(product)
	return &found, nil
}

func (s *Store) GetProductByBarcode(_ context.Context, barcode string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	productID, exists := s.productByBarcode[barcode]
	if !exists {
		return nil, store.ErrNotFound
	}
	found := cloneProduct(s.products[productID])
	return &found, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.products[product.ProductID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if product.Name == "" || product.PriceCents < 1 {
		return nil, store.ErrValidation
	}
	if product.Barcode != "" && product.Barcode != existing.Barcode {
		if _, taken := s.productByBarcode[product.Barcode]; taken {
			return nil, store.ErrConflict
		}
	}

	if existing.Barcode != "" && existing.Barcode != product.Barcode {
		delete(s.productByBarcode, existing.Barcode)
	}
	if product.Barcode != "" {
		s.productByBarcode[product.Barcode] = product.ProductID
	}
	product.CreatedAt = existing.CreatedAt
	product.UpdatedAt = time.Now().UTC()
	s.products[product.ProductID] = cloneProduct(product)
	updated := cloneProduct(product)
	return &updated, nil
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		products = append(products, cloneProduct(p))
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Category == b.Category {
			return strings.Compare(a.Name, b.Name)
		}
		return strings.Compare(a.Category, b.Category)
	})
	return products, nil
}

func (s *Store) AppendTransaction(_ context.Context, tx domain.Transaction, allowOverdraw bool) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	customer, exists := s.customers[tx.CustomerID]
	if !exists {
		return nil, store.ErrNotFound
	}

	newBalance := customer.BalanceCents + tx.AmountCents
	if !allowOverdraw && tx.AmountCents < 0 && newBalance < 0 {
		return nil, store.ErrInsufficientBalance
	}

	if tx.ID == "" {
		tx.ID = xid.New("tx")
	}
	if _, dup := s.transactionsByID[tx.ID]; dup {
		return nil, store.ErrConflict
	}
	if tx.Timestamp.IsZero() {
		tx.Timestamp = time.Now().UTC()
	}
	tx.Seq = s.nextSeq
	s.nextSeq++
	tx.BalanceAfter = newBalance

	stored := cloneTransaction(&tx)
	s.transactionsByID[tx.ID] = stored

	customer.BalanceCents = newBalance
	customer.UpdatedAt = time.Now().UTC()
	s.customers[customer.CustomerID] = customer

	return cloneTransaction(stored), nil
}

func (s *Store) EditTransaction(_ context.Context, transactionID string, newAmountCents int64, note string, staffID string) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, exists := s.transactionsByID[transactionID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if original.Type != domain.TxTypeDeposit && original.Type != domain.TxTypeAdjustment {
		return nil, fmt.Errorf("%w: only deposit and adjustment entries can be edited", store.ErrValidation)
	}
	if original.Voided {
		return nil, fmt.Errorf("%w: entry is already voided", store.ErrValidation)
	}

	// The replacement inherits the original's Timestamp and Seq so it takes
	// over the exact chronological slot, then the original is voided in place.
	replacement := &domain.Transaction{
		ID:           xid.New("tx"),
		CustomerID:   original.CustomerID,
		Type:         original.Type,
		AmountCents:  newAmountCents,
		Note:         note,
		Timestamp:    original.Timestamp,
		Seq:          original.Seq,
		StaffID:      staffID,
		EditParentID: original.ID,
	}

	original.Voided = true
	original.VoidNote = "superseded by edit " + replacement.ID
	s.transactionsByID[replacement.ID] = replacement

	s.recomputeCustomerLocked(original.CustomerID)

	return cloneTransaction(replacement), nil
}

func (s *Store) VoidTransaction(_ context.Context, transactionID string, note string) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, exists := s.transactionsByID[transactionID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if tx.Voided {
		return nil, fmt.Errorf("%w: entry is already voided", store.ErrValidation)
	}

	tx.Voided = true
	if note == "" {
		note = "voided"
	}
	tx.VoidNote = note

	s.recomputeCustomerLocked(tx.CustomerID)

	return cloneTransaction(tx), nil
}

// recomputeCustomerLocked rewrites BalanceAfter for every non-voided entry of
// the customer in (Timestamp, Seq) order and sets the customer balance to the
// final running total. Callers hold the write lock.
func (s *Store) recomputeCustomerLocked(customerID string) {
	entries := make([]*domain.Transaction, 0, 16)
	for _, tx := range s.transactionsByID {
		if tx.CustomerID == customerID && !tx.Voided {
			entries = append(entries, tx)
		}
	}
	sortChronological(entries)

	running := int64(0)
	for _, tx := range entries {
		running += tx.AmountCents
		tx.BalanceAfter = running
	}

	customer, exists := s.customers[customerID]
	if !exists {
		return
	}
	customer.BalanceCents = running
	customer.UpdatedAt = time.Now().UTC()
	s.customers[customerID] = customer
}

func sortChronological(entries []*domain.Transaction) {
	slices.SortFunc(entries, func(a, b *domain.Transaction) int {
		if a.Timestamp.Equal(b.Timestamp) {
			switch {
			case a.Seq < b.Seq:
				return -1
			case a.Seq > b.Seq:
				return 1
			default:
				return strings.Compare(a.ID, b.ID)
			}
		}
		if a.Timestamp.Before(b.Timestamp) {
			return -1
		}
		return 1
	})
}

func (s *Store) GetTransaction(_ context.Context, transactionID string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, exists := s.transactionsByID[transactionID]
	if !exists {
		return nil, store.ErrNotFound
	}
	return cloneTransaction(tx), nil
}

func (s *Store) ListTransactions(_ context.Context, limit int, offset int) ([]domain.Transaction, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]*domain.Transaction, 0, len(s.transactionsByID))
	for _, tx := range s.transactionsByID {
		all = append(all, tx)
	}
	sortChronological(all)
	slices.Reverse(all)

	total := len(all)
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	end := total
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}

	page := make([]domain.Transaction, 0, end-offset)
	for _, tx := range all[offset:end] {
		page = append(page, *cloneTransaction(tx))
	}
	return page, total, nil
}

func (s *Store) ListCustomerTransactions(_ context.Context, customerID string) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]*domain.Transaction, 0, 16)
	for _, tx := range s.transactionsByID {
		if tx.CustomerID == customerID {
			entries = append(entries, tx)
		}
	}
	sortChronological(entries)

	result := make([]domain.Transaction, 0, len(entries))
	for _, tx := range entries {
		result = append(result, *cloneTransaction(tx))
	}
	return result, nil
}

func (s *Store) GetSetting(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, exists := s.settings[key]
	if !exists {
		return "", store.ErrNotFound
	}
	return value, nil
}

func (s *Store) SetSetting(_ context.Context, key string, value string) error {
	if key == "" {
		return store.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.settings[key] = value
	return nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 100
	}
	result := make([]domain.AuditLog, 0, limit)
	for _, entry := range s.auditLogs {
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
	}
	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateStaff(_ context.Context, staff domain.StaffAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if staff.Username == "" || staff.Password == "" {
		return store.ErrValidation
	}
	if _, exists := s.staffByUsername[staff.Username]; exists {
		return store.ErrConflict
	}
	if staff.CreatedAt.IsZero() {
		staff.CreatedAt = time.Now().UTC()
	}
	s.staffByUsername[staff.Username] = staff
	return nil
}

func (s *Store) ListStaff(_ context.Context) ([]domain.StaffAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	accounts := make([]domain.StaffAccount, 0, len(s.staffByUsername))
	for _, acct := range s.staffByUsername {
		accounts = append(accounts, acct)
	}
	slices.SortFunc(accounts, func(a, b domain.StaffAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return accounts, nil
}

func (s *Store) UpdateStaffPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, exists := s.staffByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	acct.Password = password
	s.staffByUsername[username] = acct
	return nil
}

func (s *Store) Snapshot(_ context.Context) (*domain.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.snapshotLocked(), nil
}

// snapshotLocked deep-copies the whole store state. Callers hold at least the
// read lock.
func (s *Store) snapshotLocked() *domain.Snapshot {
	snap := &domain.Snapshot{
		Version:      domain.SnapshotVersion,
		CreatedAt:    time.Now().UTC(),
		NextSeq:      s.nextSeq,
		Customers:    make([]domain.Customer, 0, len(s.customers)),
		Products:     make([]domain.Product, 0, len(s.products)),
		Transactions: make([]domain.Transaction, 0, len(s.transactionsByID)),
		Settings:     make(map[string]string, len(s.settings)),
		Staff:        make([]domain.StaffAccount, 0, len(s.staffByUsername)),
	}

	for _, c := range s.customers {
		snap.Customers = append(snap.Customers, c)
	}
	slices.SortFunc(snap.Customers, func(a, b domain.Customer) int {
		return strings.Compare(a.CustomerID, b.CustomerID)
	})

	for _, p := range s.products {
		snap.Products = append(snap.Products, cloneProduct(p))
	}
	slices.SortFunc(snap.Products, func(a, b domain.Product) int {
		return strings.Compare(a.ProductID, b.ProductID)
	})

	entries := make([]*domain.Transaction, 0, len(s.transactionsByID))
	for _, tx := range s.transactionsByID {
		entries = append(entries, tx)
	}
	sortChronological(entries)
	for _, tx := range entries {
		snap.Transactions = append(snap.Transactions, *cloneTransaction(tx))
	}

	for k, v := range s.settings {
		snap.Settings[k] = v
	}
	for _, acct := range s.staffByUsername {
		snap.Staff = append(snap.Staff, acct)
	}
	slices.SortFunc(snap.Staff, func(a, b domain.StaffAccount) int {
		return strings.Compare(a.Username, b.Username)
	})

	return snap
}

func (s *Store) Restore(_ context.Context, snap *domain.Snapshot) error {
	if snap == nil {
		return store.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	customers := make(map[string]domain.Customer, len(snap.Customers))
	for _, c := range snap.Customers {
		customers[c.CustomerID] = c
	}
	products := make(map[string]domain.Product, len(snap.Products))
	byBarcode := make(map[string]string, len(snap.Products))
	for _, p := range snap.Products {
		products[p.ProductID] = cloneProduct(p)
		if p.Barcode != "" {
			byBarcode[p.Barcode] = p.ProductID
		}
	}
	transactions := make(map[string]*domain.Transaction, len(snap.Transactions))
	maxSeq := int64(0)
	for i := range snap.Transactions {
		tx := snap.Transactions[i]
		transactions[tx.ID] = cloneTransaction(&tx)
		if tx.Seq > maxSeq {
			maxSeq = tx.Seq
		}
	}
	settings := make(map[string]string, len(snap.Settings))
	for k, v := range snap.Settings {
		settings[k] = v
	}
	staff := make(map[string]domain.StaffAccount, len(snap.Staff))
	for _, acct := range snap.Staff {
		staff[acct.Username] = acct
	}

	// Whole-store swap: nothing above touched live state, so a failure before
	// this point leaves the store exactly as it was.
	s.customers = customers
	s.products = products
	s.productByBarcode = byBarcode
	s.transactionsByID = transactions
	s.settings = settings
	if len(staff) > 0 {
		s.staffByUsername = staff
	}
	s.nextSeq = snap.NextSeq
	if s.nextSeq <= maxSeq {
		s.nextSeq = maxSeq + 1
	}

	return nil
}

func cloneProduct(p domain.Product) domain.Product {
	copied := p
	if len(p.OptionGroups) > 0 {
		copied.OptionGroups = make([]domain.OptionGroup, len(p.OptionGroups))
		for i, group := range p.OptionGroups {
			groupCopy := group
			groupCopy.Choices = slices.Clone(group.Choices)
			copied.OptionGroups[i] = groupCopy
		}
	}
	return copied
}

func cloneTransaction(tx *domain.Transaction) *domain.Transaction {
	copied := *tx
	if len(tx.SelectedOptions) > 0 {
		copied.SelectedOptions = make([]domain.SelectedOptionGroup, len(tx.SelectedOptions))
		for i, group := range tx.SelectedOptions {
			groupCopy := group
			groupCopy.Choices = slices.Clone(group.Choices)
			copied.SelectedOptions[i] = groupCopy
		}
	}
	return &copied
}
