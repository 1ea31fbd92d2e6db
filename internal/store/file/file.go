// Package file persists the ledger store as a single JSON document on local
// disk. Every mutation runs against the in-memory state and is then flushed
// with a write-temp-then-rename so the on-disk document is always a complete,
// consistent snapshot. The store lock is the global write-serialization
// point: one mutation (including its flush) is in flight at a time.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"saldopos/backend/internal/domain"
	"saldopos/backend/internal/store"
	"saldopos/backend/internal/store/memory"
)

type Store struct {
	mu    sync.Mutex
	path  string
	inner *memory.Store
}

// Open loads the store from path, or initializes a fresh store with seeded
// staff accounts when the file does not exist yet.
func Open(ctx context.Context, path string) (*Store, error) {
	inner := memory.New()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		for _, acct := range memory.SeedStaffAccounts() {
			if err := inner.CreateStaff(ctx, acct); err != nil {
				return nil, fmt.Errorf("seed staff: %w", err)
			}
		}
		log.Printf("[file-store] no store at %s, starting fresh", path)
	case err != nil:
		return nil, fmt.Errorf("read store: %w", err)
	default:
		var snap domain.Snapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			return nil, fmt.Errorf("parse store %s: %w", path, err)
		}
		if err := inner.Restore(ctx, &snap); err != nil {
			return nil, fmt.Errorf("load store %s: %w", path, err)
		}
	}

	s := &Store{path: path, inner: inner}
	if errors.Is(err, fs.ErrNotExist) {
		if err := s.persist(ctx); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) Path() string {
	return s.path
}

// persist writes the full state to a temp file in the store's directory and
// renames it over the live file. Rename is atomic on POSIX filesystems, so a
// crash mid-write leaves the previous document intact.
func (s *Store) persist(ctx context.Context) error {
	snap, err := s.inner.Snapshot(ctx)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".saldopos-*.json")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}

// mutate runs op under the store lock and flushes the result. When the flush
// fails, the in-memory state is rolled back to the pre-operation snapshot so
// the store never diverges from disk.
func mutate[T any](s *Store, ctx context.Context, op func() (T, error)) (T, error) {
	var zero T

	s.mu.Lock()
	defer s.mu.Unlock()

	before, err := s.inner.Snapshot(ctx)
	if err != nil {
		return zero, err
	}

	result, err := op()
	if err != nil {
		return zero, err
	}

	if err := s.persist(ctx); err != nil {
		if restoreErr := s.inner.Restore(ctx, before); restoreErr != nil {
			log.Printf("[file-store] rollback after failed persist also failed: %v", restoreErr)
		}
		return zero, fmt.Errorf("persist store: %w", err)
	}
	return result, nil
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	return mutate(s, ctx, func() (*domain.Customer, error) {
		return s.inner.CreateCustomer(ctx, customer)
	})
}

func (s *Store) GetCustomer(ctx context.Context, customerID string) (*domain.Customer, error) {
	return s.inner.GetCustomer(ctx, customerID)
}

func (s *Store) UpdateCustomerName(ctx context.Context, customerID string, name string) (*domain.Customer, error) {
	return mutate(s, ctx, func() (*domain.Customer, error) {
		return s.inner.UpdateCustomerName(ctx, customerID, name)
	})
}

func (s *Store) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	return s.inner.ListCustomers(ctx)
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	return mutate(s, ctx, func() (*domain.Product, error) {
		return s.inner.CreateProduct(ctx, product)
	})
}

func (s *Store) GetProductByID(ctx context.Context, productID string) (*domain.Product, error) {
	return s.inner.GetProductByID(ctx, productID)
}

func (s *Store) GetProductByBarcode(ctx context.Context, barcode string) (*domain.Product, error) {
	return s.inner.GetProductByBarcode(ctx, barcode)
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	return mutate(s, ctx, func() (*domain.Product, error) {
		return s.inner.UpdateProduct(ctx, product)
	})
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.inner.ListProducts(ctx)
}

func (s *Store) AppendTransaction(ctx context.Context, tx domain.Transaction, allowOverdraw bool) (*domain.Transaction, error) {
	return mutate(s, ctx, func() (*domain.Transaction, error) {
		return s.inner.AppendTransaction(ctx, tx, allowOverdraw)
	})
}

func (s *Store) EditTransaction(ctx context.Context, transactionID string, newAmountCents int64, note string, staffID string) (*domain.Transaction, error) {
	return mutate(s, ctx, func() (*domain.Transaction, error) {
		return s.inner.EditTransaction(ctx, transactionID, newAmountCents, note, staffID)
	})
}

func (s *Store) VoidTransaction(ctx context.Context, transactionID string, note string) (*domain.Transaction, error) {
	return mutate(s, ctx, func() (*domain.Transaction, error) {
		return s.inner.VoidTransaction(ctx, transactionID, note)
	})
}

func (s *Store) GetTransaction(ctx context.Context, transactionID string) (*domain.Transaction, error) {
	return s.inner.GetTransaction(ctx, transactionID)
}

func (s *Store) ListTransactions(ctx context.Context, limit int, offset int) ([]domain.Transaction, int, error) {
	return s.inner.ListTransactions(ctx, limit, offset)
}

func (s *Store) ListCustomerTransactions(ctx context.Context, customerID string) ([]domain.Transaction, error) {
	return s.inner.ListCustomerTransactions(ctx, customerID)
}

func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	return s.inner.GetSetting(ctx, key)
}

func (s *Store) SetSetting(ctx context.Context, key string, value string) error {
	_, err := mutate(s, ctx, func() (struct{}, error) {
		return struct{}{}, s.inner.SetSetting(ctx, key, value)
	})
	return err
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	_, err := mutate(s, ctx, func() (struct{}, error) {
		return struct{}{}, s.inner.CreateAuditLog(ctx, entry)
	})
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	return s.inner.ListAuditLogs(ctx, from, to, limit)
}

func (s *Store) CreateStaff(ctx context.Context, staff domain.StaffAccount) error {
	_, err := mutate(s, ctx, func() (struct{}, error) {
		return struct{}{}, s.inner.CreateStaff(ctx, staff)
	})
	return err
}

func (s *Store) ListStaff(ctx context.Context) ([]domain.StaffAccount, error) {
	return s.inner.ListStaff(ctx)
}

func (s *Store) UpdateStaffPassword(ctx context.Context, username string, password string) error {
	_, err := mutate(s, ctx, func() (struct{}, error) {
		return struct{}{}, s.inner.UpdateStaffPassword(ctx, username, password)
	})
	return err
}

func (s *Store) Snapshot(ctx context.Context) (*domain.Snapshot, error) {
	// Taken under the write lock so no mutation (or its flush) interleaves.
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.Snapshot(ctx)
}

func (s *Store) Restore(ctx context.Context, snap *domain.Snapshot) error {
	if snap == nil {
		return store.ErrValidation
	}
	_, err := mutate(s, ctx, func() (struct{}, error) {
		return struct{}{}, s.inner.Restore(ctx, snap)
	})
	return err
}
