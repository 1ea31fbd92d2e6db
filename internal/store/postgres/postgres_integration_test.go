package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"saldopos/backend/internal/domain"
)

func TestEditCascadeAgainstPostgres(t *testing.T) {
	databaseURL := os.Getenv("SALDOPOS_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set SALDOPOS_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	customerID := fmt.Sprintf("%04d", time.Now().UnixNano()%10000)
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM transactions WHERE customer_id = $1`, customerID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM customers WHERE customer_id = $1`, customerID)
	})

	if _, err := s.CreateCustomer(ctx, domain.Customer{CustomerID: customerID, Name: "Integration"}); err != nil {
		t.Fatalf("create customer: %v", err)
	}

	first, err := s.AppendTransaction(ctx, domain.Transaction{
		CustomerID:  customerID,
		Type:        domain.TxTypeDeposit,
		AmountCents: 1000,
	}, false)
	if err != nil {
		t.Fatalf("first deposit: %v", err)
	}
	second, err := s.AppendTransaction(ctx, domain.Transaction{
		CustomerID:  customerID,
		Type:        domain.TxTypeDeposit,
		AmountCents: 500,
	}, false)
	if err != nil {
		t.Fatalf("second deposit: %v", err)
	}

	replacement, err := s.EditTransaction(ctx, first.ID, 2000, "integration edit", "admin")
	if err != nil {
		t.Fatalf("edit transaction: %v", err)
	}
	if replacement.Seq != first.Seq || !replacement.Timestamp.Equal(first.Timestamp) {
		t.Fatalf("replacement must keep the original slot: %+v vs %+v", replacement, first)
	}
	if replacement.EditParentID != first.ID {
		t.Fatalf("replacement must reference the original, got %q", replacement.EditParentID)
	}
	if replacement.BalanceAfter != 2000 {
		t.Fatalf("expected replacement balance_after 2000, got %d", replacement.BalanceAfter)
	}

	original, err := s.GetTransaction(ctx, first.ID)
	if err != nil {
		t.Fatalf("get original: %v", err)
	}
	if !original.Voided {
		t.Fatalf("original must be voided after edit")
	}

	downstream, err := s.GetTransaction(ctx, second.ID)
	if err != nil {
		t.Fatalf("get downstream: %v", err)
	}
	if downstream.BalanceAfter != 2500 {
		t.Fatalf("expected downstream balance_after 2500, got %d", downstream.BalanceAfter)
	}

	customer, err := s.GetCustomer(ctx, customerID)
	if err != nil {
		t.Fatalf("get customer: %v", err)
	}
	if customer.BalanceCents != 2500 {
		t.Fatalf("expected balance 2500 after cascade, got %d", customer.BalanceCents)
	}
}
