// Package backup turns the live ledger store into timestamped snapshot files
// on disk, and restores a validated snapshot file back into the live store as
// a whole-store replacement.
package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"saldopos/backend/internal/domain"
	"saldopos/backend/internal/store"
)

type Manager struct {
	repo store.Repository
	dir  string
}

func NewManager(repo store.Repository, dir string) *Manager {
	return &Manager{repo: repo, dir: dir}
}

// backupFileName renders backup-<ISO8601>.json with ':' and '.' replaced so
// the name is safe on every filesystem.
func backupFileName(ts time.Time) string {
	// Millisecond precision keeps back-to-back backups from colliding.
	stamp := ts.UTC().Format("2006-01-02T15:04:05.000Z07:00")
	stamp = strings.ReplaceAll(stamp, ":", "-")
	stamp = strings.ReplaceAll(stamp, ".", "-")
	return "backup-" + stamp + ".json"
}

// CreateBackup snapshots the whole store at one consistent point and writes
// it to the backup directory. The snapshot itself is taken under the store's
// write-serialization guard, so no in-flight mutation can tear it.
func (m *Manager) CreateBackup(ctx context.Context) (domain.BackupInfo, error) {
	snap, err := m.repo.Snapshot(ctx)
	if err != nil {
		return domain.BackupInfo{}, fmt.Errorf("snapshot store: %w", err)
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return domain.BackupInfo{}, err
	}

	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return domain.BackupInfo{}, err
	}

	name := backupFileName(snap.CreatedAt)
	path := filepath.Join(m.dir, name)

	tmp, err := os.CreateTemp(m.dir, ".backup-*.json")
	if err != nil {
		return domain.BackupInfo{}, err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return domain.BackupInfo{}, err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return domain.BackupInfo{}, err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return domain.BackupInfo{}, err
	}

	return domain.BackupInfo{
		ID:        name,
		Timestamp: snap.CreatedAt,
		SizeBytes: int64(len(data)),
	}, nil
}

// RestoreBackupFromPath validates the snapshot file and swaps it in as the
// live store. On any validation or swap failure the live store is untouched.
func (m *Manager) RestoreBackupFromPath(ctx context.Context, path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return fmt.Errorf("%w: path is required", store.ErrValidation)
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(m.dir, filepath.Base(path))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: cannot read snapshot %s: %v", store.ErrValidation, path, err)
	}

	var snap domain.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("%w: snapshot is not valid JSON: %v", store.ErrValidation, err)
	}
	if err := validateSnapshot(&snap); err != nil {
		return err
	}

	return m.repo.Restore(ctx, &snap)
}

// GetBackupStatus lists the snapshot files in the backup directory, newest
// first. Read-only.
func (m *Manager) GetBackupStatus(ctx context.Context) (domain.BackupStatusResponse, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return domain.BackupStatusResponse{Backups: []domain.BackupInfo{}}, nil
		}
		return domain.BackupStatusResponse{}, err
	}

	backups := make([]domain.BackupInfo, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "backup-") || !strings.HasSuffix(name, ".json") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		backups = append(backups, domain.BackupInfo{
			ID:        name,
			Timestamp: info.ModTime().UTC(),
			SizeBytes: info.Size(),
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Timestamp.After(backups[j].Timestamp)
	})

	return domain.BackupStatusResponse{Backups: backups}, nil
}

// validateSnapshot checks structural well-formedness before a restore is
// allowed to touch the live store.
func validateSnapshot(snap *domain.Snapshot) error {
	if snap.Version < 1 || snap.Version > domain.SnapshotVersion {
		return fmt.Errorf("%w: unsupported snapshot version %d", store.ErrValidation, snap.Version)
	}

	customers := make(map[string]struct{}, len(snap.Customers))
	for _, c := range snap.Customers {
		if c.CustomerID == "" {
			return fmt.Errorf("%w: snapshot customer with empty id", store.ErrValidation)
		}
		if _, dup := customers[c.CustomerID]; dup {
			return fmt.Errorf("%w: snapshot has duplicate customer %s", store.ErrValidation, c.CustomerID)
		}
		customers[c.CustomerID] = struct{}{}
	}

	products := make(map[string]struct{}, len(snap.Products))
	for _, p := range snap.Products {
		if p.ProductID == "" {
			return fmt.Errorf("%w: snapshot product with empty id", store.ErrValidation)
		}
		if _, dup := products[p.ProductID]; dup {
			return fmt.Errorf("%w: snapshot has duplicate product %s", store.ErrValidation, p.ProductID)
		}
		products[p.ProductID] = struct{}{}
	}

	transactions := make(map[string]struct{}, len(snap.Transactions))
	for _, tx := range snap.Transactions {
		if tx.ID == "" {
			return fmt.Errorf("%w: snapshot transaction with empty id", store.ErrValidation)
		}
		if _, dup := transactions[tx.ID]; dup {
			return fmt.Errorf("%w: snapshot has duplicate transaction %s", store.ErrValidation, tx.ID)
		}
		transactions[tx.ID] = struct{}{}
		if _, ok := customers[tx.CustomerID]; !ok {
			return fmt.Errorf("%w: snapshot transaction %s references unknown customer %s", store.ErrValidation, tx.ID, tx.CustomerID)
		}
		switch tx.Type {
		case domain.TxTypeDeposit, domain.TxTypePurchase, domain.TxTypeWithdrawal, domain.TxTypeAdjustment:
		default:
			return fmt.Errorf("%w: snapshot transaction %s has unknown type %q", store.ErrValidation, tx.ID, tx.Type)
		}
	}

	return nil
}
