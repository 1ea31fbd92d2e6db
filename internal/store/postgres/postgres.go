package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"saldopos/backend/internal/domain"
	"saldopos/backend/internal/store"
	"saldopos/backend/internal/xid"
)

// Store is the postgres-backed ledger store. Every mutating operation runs
// inside a single SQL transaction; row locks on the customer row serialize
// concurrent mutations of the same balance.
type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if customer.CustomerID == "" {
		return nil, store.ErrValidation
	}

	now := time.Now().UTC()
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = now
	}
	customer.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (customer_id, name, balance_cents, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5)
	`, customer.CustomerID, customer.Name, customer.BalanceCents, customer.CreatedAt, customer.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	created := customer
	return &created, nil
}

func (s *Store) GetCustomer(ctx context.Context, customerID string) (*domain.Customer, error) {
	var c domain.Customer
	err := s.db.QueryRowContext(ctx, `
		SELECT customer_id, name, balance_cents, created_at, updated_at
		FROM customers
		WHERE customer_id = $1
	`, customerID).Scan(&c.CustomerID, &c.Name, &c.BalanceCents, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (s *Store) UpdateCustomerName(ctx context.Context, customerID string, name string) (*domain.Customer, error) {
	var c domain.Customer
	err := s.db.QueryRowContext(ctx, `
		UPDATE customers
		SET name = $2, updated_at = now()
		WHERE customer_id = $1
		RETURNING customer_id, name, balance_cents, created_at, updated_at
	`, customerID, name).Scan(&c.CustomerID, &c.Name, &c.BalanceCents, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (s *Store) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT customer_id, name, balance_cents, created_at, updated_at
		FROM customers
		ORDER BY customer_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, 128)
	for rows.Next() {
		var c domain.Customer
		if err := rows.Scan(&c.CustomerID, &c.Name, &c.BalanceCents, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.PriceCents < 1 {
		return nil, store.ErrValidation
	}
	if product.ProductID == "" {
		product.ProductID = xid.New("prod")
	}

	groups, err := json.Marshal(optionGroupsOrEmpty(product.OptionGroups))
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	product.Active = true
	product.CreatedAt = now
	product.UpdatedAt = now

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO products (product_id, name, price_cents, barcode, category, active,
			discount_percent, discount_flat_cents, option_groups, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, product.ProductID, product.Name, product.PriceCents, product.Barcode, product.Category,
		product.Active, product.DiscountPercent, product.DiscountFlatCents, groups,
		product.CreatedAt, product.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	created := product
	return &created, nil
}

const productColumns = `product_id, name, price_cents, barcode, category, active,
	discount_percent, discount_flat_cents, option_groups, created_at, updated_at`

func scanProduct(row interface{ Scan(...any) error }) (*domain.Product, error) {
	var p domain.Product
	var groups []byte
	err := row.Scan(&p.ProductID, &p.Name, &p.PriceCents, &p.Barcode, &p.Category, &p.Active,
		&p.DiscountPercent, &p.DiscountFlatCents, &groups, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(groups) > 0 {
		if err := json.Unmarshal(groups, &p.OptionGroups); err != nil {
			return nil, err
		}
	}
	if len(p.OptionGroups) == 0 {
		p.OptionGroups = nil
	}
	return &p, nil
}

func (s *Store) GetProductByID(ctx context.Context, productID string) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE product_id = $1`, productID)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return p, err
}

func (s *Store) GetProductByBarcode(ctx context.Context, barcode string) (*domain.Product, error) {
	if barcode == "" {
		return nil, store.ErrNotFound
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE barcode = $1`, barcode)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return p, err
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.PriceCents < 1 {
		return nil, store.ErrValidation
	}

	groups, err := json.Marshal(optionGroupsOrEmpty(product.OptionGroups))
	if err != nil {
		return nil, err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, price_cents = $3, barcode = $4, category = $5, active = $6,
			discount_percent = $7, discount_flat_cents = $8, option_groups = $9, updated_at = now()
		WHERE product_id = $1
	`, product.ProductID, product.Name, product.PriceCents, product.Barcode, product.Category,
		product.Active, product.DiscountPercent, product.DiscountFlatCents, groups)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetProductByID(ctx, product.ProductID)
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+productColumns+` FROM products ORDER BY category, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}

const transactionColumns = `id, customer_id, type, product_id, amount_cents, balance_after_cents,
	note, ts, seq, staff_id, voided, void_note, edit_parent_id, selected_options`

func scanTransaction(row interface{ Scan(...any) error }) (*domain.Transaction, error) {
	var tx domain.Transaction
	var options []byte
	err := row.Scan(&tx.ID, &tx.CustomerID, &tx.Type, &tx.ProductID, &tx.AmountCents, &tx.BalanceAfter,
		&tx.Note, &tx.Timestamp, &tx.Seq, &tx.StaffID, &tx.Voided, &tx.VoidNote, &tx.EditParentID, &options)
	if err != nil {
		return nil, err
	}
	if len(options) > 0 {
		if err := json.Unmarshal(options, &tx.SelectedOptions); err != nil {
			return nil, err
		}
	}
	if len(tx.SelectedOptions) == 0 {
		tx.SelectedOptions = nil
	}
	return &tx, nil
}

func insertTransaction(ctx context.Context, dbtx *sql.Tx, tx *domain.Transaction) error {
	options, err := json.Marshal(selectedOptionsOrEmpty(tx.SelectedOptions))
	if err != nil {
		return err
	}
	_, err = dbtx.ExecContext(ctx, `
		INSERT INTO transactions (`+transactionColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`, tx.ID, tx.CustomerID, tx.Type, tx.ProductID, tx.AmountCents, tx.BalanceAfter,
		tx.Note, tx.Timestamp, tx.Seq, tx.StaffID, tx.Voided, tx.VoidNote, tx.EditParentID, options)
	return err
}

func (s *Store) AppendTransaction(ctx context.Context, tx domain.Transaction, allowOverdraw bool) (*domain.Transaction, error) {
	dbtx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = dbtx.Rollback() }()

	var balance int64
	err = dbtx.QueryRowContext(ctx, `
		SELECT balance_cents FROM customers WHERE customer_id = $1 FOR UPDATE
	`, tx.CustomerID).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	newBalance := balance + tx.AmountCents
	if !allowOverdraw && tx.AmountCents < 0 && newBalance < 0 {
		return nil, store.ErrInsufficientBalance
	}

	if tx.ID == "" {
		tx.ID = xid.New("tx")
	}
	if tx.Timestamp.IsZero() {
		tx.Timestamp = time.Now().UTC()
	}
	if err := dbtx.QueryRowContext(ctx, `SELECT nextval('ledger_entry_seq')`).Scan(&tx.Seq); err != nil {
		return nil, err
	}
	tx.BalanceAfter = newBalance

	if err := insertTransaction(ctx, dbtx, &tx); err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	if _, err := dbtx.ExecContext(ctx, `
		UPDATE customers SET balance_cents = $2, updated_at = now() WHERE customer_id = $1
	`, tx.CustomerID, newBalance); err != nil {
		return nil, err
	}

	if err := dbtx.Commit(); err != nil {
		return nil, err
	}
	created := tx
	return &created, nil
}

func (s *Store) EditTransaction(ctx context.Context, transactionID string, newAmountCents int64, note string, staffID string) (*domain.Transaction, error) {
	dbtx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = dbtx.Rollback() }()

	row := dbtx.QueryRowContext(ctx, `
		SELECT `+transactionColumns+` FROM transactions WHERE id = $1 FOR UPDATE
	`, transactionID)
	original, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if original.Type != domain.TxTypeDeposit && original.Type != domain.TxTypeAdjustment {
		return nil, fmt.Errorf("%w: only deposit and adjustment entries can be edited", store.ErrValidation)
	}
	if original.Voided {
		return nil, fmt.Errorf("%w: entry is already voided", store.ErrValidation)
	}

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

	if _, err := dbtx.ExecContext(ctx, `
		UPDATE transactions SET voided = true, void_note = $2 WHERE id = $1
	`, original.ID, "superseded by edit "+replacement.ID); err != nil {
		return nil, err
	}
	if err := insertTransaction(ctx, dbtx, replacement); err != nil {
		return nil, err
	}
	if err := recomputeCustomer(ctx, dbtx, original.CustomerID); err != nil {
		return nil, err
	}
	// The cascade rewrote the row; refresh the struct so callers see the
	// recomputed running balance, not the zero it was inserted with.
	if err := dbtx.QueryRowContext(ctx, `
		SELECT balance_after_cents FROM transactions WHERE id = $1
	`, replacement.ID).Scan(&replacement.BalanceAfter); err != nil {
		return nil, err
	}

	if err := dbtx.Commit(); err != nil {
		return nil, err
	}
	return replacement, nil
}

func (s *Store) VoidTransaction(ctx context.Context, transactionID string, note string) (*domain.Transaction, error) {
	dbtx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = dbtx.Rollback() }()

	row := dbtx.QueryRowContext(ctx, `
		SELECT `+transactionColumns+` FROM transactions WHERE id = $1 FOR UPDATE
	`, transactionID)
	tx, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if tx.Voided {
		return nil, fmt.Errorf("%w: entry is already voided", store.ErrValidation)
	}
	if note == "" {
		note = "voided"
	}

	if _, err := dbtx.ExecContext(ctx, `
		UPDATE transactions SET voided = true, void_note = $2 WHERE id = $1
	`, tx.ID, note); err != nil {
		return nil, err
	}
	if err := recomputeCustomer(ctx, dbtx, tx.CustomerID); err != nil {
		return nil, err
	}

	if err := dbtx.Commit(); err != nil {
		return nil, err
	}
	tx.Voided = true
	tx.VoidNote = note
	return tx, nil
}

// recomputeCustomer rewrites balance_after for the customer's non-voided
// entries in (ts, seq) order and sets the customer balance to the final
// running total. Runs inside the caller's transaction so the cascade commits
// or rolls back as one unit.
func recomputeCustomer(ctx context.Context, dbtx *sql.Tx, customerID string) error {
	rows, err := dbtx.QueryContext(ctx, `
		SELECT id, amount_cents, balance_after_cents
		FROM transactions
		WHERE customer_id = $1 AND voided = false
		ORDER BY ts, seq, id
		FOR UPDATE
	`, customerID)
	if err != nil {
		return err
	}

	type entry struct {
		id           string
		amount       int64
		balanceAfter int64
	}
	entries := make([]entry, 0, 64)
	for rows.Next() {
		var e entry
		if err := rows.Scan(&e.id, &e.amount, &e.balanceAfter); err != nil {
			rows.Close()
			return err
		}
		entries = append(entries, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	running := int64(0)
	for _, e := range entries {
		running += e.amount
		if e.balanceAfter == running {
			continue
		}
		if _, err := dbtx.ExecContext(ctx, `
			UPDATE transactions SET balance_after_cents = $2 WHERE id = $1
		`, e.id, running); err != nil {
			return err
		}
	}

	_, err = dbtx.ExecContext(ctx, `
		UPDATE customers SET balance_cents = $2, updated_at = now() WHERE customer_id = $1
	`, customerID, running)
	return err
}

func (s *Store) GetTransaction(ctx context.Context, transactionID string) (*domain.Transaction, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, transactionID)
	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return tx, err
}

func (s *Store) ListTransactions(ctx context.Context, limit int, offset int) ([]domain.Transaction, int, error) {
	if limit < 1 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM transactions`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		ORDER BY ts DESC, seq DESC, id DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	transactions := make([]domain.Transaction, 0, limit)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, 0, err
		}
		transactions = append(transactions, *tx)
	}
	return transactions, total, rows.Err()
}

func (s *Store) ListCustomerTransactions(ctx context.Context, customerID string) ([]domain.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE customer_id = $1
		ORDER BY ts, seq, id
	`, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transactions := make([]domain.Transaction, 0, 64)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, *tx)
	}
	return transactions, rows.Err()
}

func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM app_settings WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", store.ErrNotFound
	}
	return value, err
}

func (s *Store) SetSetting(ctx context.Context, key string, value string) error {
	if key == "" {
		return store.ErrValidation
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_settings (key, value) VALUES ($1,$2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
	`, key, value)
	return err
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.ActorRole, &entry.Action,
			&entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

func (s *Store) CreateStaff(ctx context.Context, staff domain.StaffAccount) error {
	if staff.Username == "" || staff.Password == "" {
		return store.ErrValidation
	}
	if staff.CreatedAt.IsZero() {
		staff.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO staff_accounts (username, password, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, staff.Username, staff.Password, staff.Role, staff.Active, staff.CreatedAt)
	if isUniqueViolation(err) {
		return store.ErrConflict
	}
	return err
}

func (s *Store) ListStaff(ctx context.Context) ([]domain.StaffAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at FROM staff_accounts ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := make([]domain.StaffAccount, 0, 16)
	for rows.Next() {
		var acct domain.StaffAccount
		if err := rows.Scan(&acct.Username, &acct.Password, &acct.Role, &acct.Active, &acct.CreatedAt); err != nil {
			return nil, err
		}
		accounts = append(accounts, acct)
	}
	return accounts, rows.Err()
}

func (s *Store) UpdateStaffPassword(ctx context.Context, username string, password string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE staff_accounts SET password = $2 WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Snapshot reads every table inside one repeatable-read transaction so the
// result is a single consistent point in time.
func (s *Store) Snapshot(ctx context.Context) (*domain.Snapshot, error) {
	dbtx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, err
	}
	defer func() { _ = dbtx.Rollback() }()

	snap := &domain.Snapshot{
		Version:   domain.SnapshotVersion,
		CreatedAt: time.Now().UTC(),
		Settings:  map[string]string{},
	}

	rows, err := dbtx.QueryContext(ctx, `
		SELECT customer_id, name, balance_cents, created_at, updated_at FROM customers ORDER BY customer_id
	`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var c domain.Customer
		if err := rows.Scan(&c.CustomerID, &c.Name, &c.BalanceCents, &c.CreatedAt, &c.UpdatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		snap.Customers = append(snap.Customers, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = dbtx.QueryContext(ctx, `SELECT `+productColumns+` FROM products ORDER BY product_id`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		snap.Products = append(snap.Products, *p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = dbtx.QueryContext(ctx, `SELECT `+transactionColumns+` FROM transactions ORDER BY ts, seq, id`)
	if err != nil {
		return nil, err
	}
	maxSeq := int64(0)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		if tx.Seq > maxSeq {
			maxSeq = tx.Seq
		}
		snap.Transactions = append(snap.Transactions, *tx)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	snap.NextSeq = maxSeq + 1

	rows, err = dbtx.QueryContext(ctx, `SELECT key, value FROM app_settings`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			rows.Close()
			return nil, err
		}
		snap.Settings[key] = value
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = dbtx.QueryContext(ctx, `
		SELECT username, password, role, active, created_at FROM staff_accounts ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var acct domain.StaffAccount
		if err := rows.Scan(&acct.Username, &acct.Password, &acct.Role, &acct.Active, &acct.CreatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		snap.Staff = append(snap.Staff, acct)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return snap, dbtx.Commit()
}

// Restore replaces the entire store contents inside one transaction; any
// failure rolls back and leaves the live data untouched.
func (s *Store) Restore(ctx context.Context, snap *domain.Snapshot) error {
	if snap == nil {
		return store.ErrValidation
	}

	dbtx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = dbtx.Rollback() }()

	// Audit logs are deliberately left alone: snapshots never carry them, and
	// the trail of who restored what must survive the restore itself.
	for _, table := range []string{"transactions", "customers", "products", "app_settings"} {
		if _, err := dbtx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return err
		}
	}
	if len(snap.Staff) > 0 {
		if _, err := dbtx.ExecContext(ctx, `DELETE FROM staff_accounts`); err != nil {
			return err
		}
	}

	for _, c := range snap.Customers {
		if _, err := dbtx.ExecContext(ctx, `
			INSERT INTO customers (customer_id, name, balance_cents, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5)
		`, c.CustomerID, c.Name, c.BalanceCents, c.CreatedAt, c.UpdatedAt); err != nil {
			return err
		}
	}
	for _, p := range snap.Products {
		groups, err := json.Marshal(optionGroupsOrEmpty(p.OptionGroups))
		if err != nil {
			return err
		}
		if _, err := dbtx.ExecContext(ctx, `
			INSERT INTO products (product_id, name, price_cents, barcode, category, active,
				discount_percent, discount_flat_cents, option_groups, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		`, p.ProductID, p.Name, p.PriceCents, p.Barcode, p.Category, p.Active,
			p.DiscountPercent, p.DiscountFlatCents, groups, p.CreatedAt, p.UpdatedAt); err != nil {
			return err
		}
	}
	maxSeq := int64(0)
	for i := range snap.Transactions {
		tx := snap.Transactions[i]
		if tx.Seq > maxSeq {
			maxSeq = tx.Seq
		}
		if err := insertTransaction(ctx, dbtx, &tx); err != nil {
			return err
		}
	}
	for key, value := range snap.Settings {
		if _, err := dbtx.ExecContext(ctx, `
			INSERT INTO app_settings (key, value) VALUES ($1,$2)
		`, key, value); err != nil {
			return err
		}
	}
	for _, acct := range snap.Staff {
		if _, err := dbtx.ExecContext(ctx, `
			INSERT INTO staff_accounts (username, password, role, active, created_at)
			VALUES ($1,$2,$3,$4,$5)
		`, acct.Username, acct.Password, acct.Role, acct.Active, acct.CreatedAt); err != nil {
			return err
		}
	}

	nextSeq := snap.NextSeq
	if nextSeq <= maxSeq {
		nextSeq = maxSeq + 1
	}
	if nextSeq < 1 {
		nextSeq = 1
	}
	if _, err := dbtx.ExecContext(ctx, `SELECT setval('ledger_entry_seq', $1, false)`, nextSeq); err != nil {
		return err
	}

	return dbtx.Commit()
}

func optionGroupsOrEmpty(groups []domain.OptionGroup) []domain.OptionGroup {
	if groups == nil {
		return []domain.OptionGroup{}
	}
	return groups
}

func selectedOptionsOrEmpty(groups []domain.SelectedOptionGroup) []domain.SelectedOptionGroup {
	if groups == nil {
		return []domain.SelectedOptionGroup{}
	}
	return groups
}
