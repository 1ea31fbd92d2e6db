package store

import (
	"context"
	"errors"
	"time"

	"saldopos/backend/internal/domain"
)

var (
	// ErrValidation covers malformed or out-of-range input. Always
	// caller-fixable, never retried.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound covers unknown customer/product/transaction references.
	ErrNotFound = errors.New("not found")
	// ErrConflict covers duplicate unique keys on create.
	ErrConflict = errors.New("already exists")
	// ErrInsufficientBalance is returned when a purchase would overdraw.
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// Repository is the explicit handle to the ledger store. Every mutating
// operation is internally atomic: either all derived writes (transaction row,
// balance update, cascaded balance_after rewrites) commit together, or none
// do. Mutations are serialized against each other; reads observe only
// committed state.
type Repository interface {
	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	GetCustomer(ctx context.Context, customerID string) (*domain.Customer, error)
	UpdateCustomerName(ctx context.Context, customerID string, name string) (*domain.Customer, error)
	ListCustomers(ctx context.Context) ([]domain.Customer, error)

	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProductByID(ctx context.Context, productID string) (*domain.Product, error)
	GetProductByBarcode(ctx context.Context, barcode string) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	ListProducts(ctx context.Context) ([]domain.Product, error)

	// AppendTransaction assigns ID (when empty), Timestamp and Seq, computes
	// BalanceAfter from the customer's current balance and writes both the
	// entry and the new balance. With allowOverdraw false it fails with
	// ErrInsufficientBalance when the amount would drive the balance negative.
	AppendTransaction(ctx context.Context, tx domain.Transaction, allowOverdraw bool) (*domain.Transaction, error)
	// EditTransaction voids the original deposit/adjustment entry, appends a
	// replacement at the original's chronological slot and recomputes
	// BalanceAfter for the customer's non-voided history, all in one unit.
	EditTransaction(ctx context.Context, transactionID string, newAmountCents int64, note string, staffID string) (*domain.Transaction, error)
	// VoidTransaction is the edit cascade without a replacement entry.
	VoidTransaction(ctx context.Context, transactionID string, note string) (*domain.Transaction, error)
	GetTransaction(ctx context.Context, transactionID string) (*domain.Transaction, error)
	// ListTransactions returns entries newest-first plus the total count.
	ListTransactions(ctx context.Context, limit int, offset int) ([]domain.Transaction, int, error)
	// ListCustomerTransactions returns a customer's entries in chronological
	// (Timestamp, Seq) order, voided ones included.
	ListCustomerTransactions(ctx context.Context, customerID string) ([]domain.Transaction, error)

	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key string, value string) error

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateStaff(ctx context.Context, staff domain.StaffAccount) error
	ListStaff(ctx context.Context) ([]domain.StaffAccount, error)
	UpdateStaffPassword(ctx context.Context, username string, password string) error

	// Snapshot returns a consistent point-in-time copy of the whole store,
	// taken under the same serialization guard as mutations. Restore replaces
	// the entire live store with the snapshot contents; on failure the live
	// store is left untouched.
	Snapshot(ctx context.Context) (*domain.Snapshot, error)
	Restore(ctx context.Context, snap *domain.Snapshot) error
}
