package domain

import "time"

type Customer struct {
	CustomerID   string    `json:"customer_id"`
	Name         string    `json:"name,omitempty"`
	BalanceCents int64     `json:"balance_cents"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type CustomerCreateRequest struct {
	CustomerID          string `json:"customer_id"`
	Name                string `json:"name,omitempty"`
	InitialBalanceCents int64  `json:"initial_balance_cents,omitempty"`
}

type CustomerUpdateRequest struct {
	Name string `json:"name"`
}

type OptionChoice struct {
	ID              string `json:"id"`
	Label           string `json:"label"`
	PriceDeltaCents int64  `json:"price_delta_cents"`
}

type OptionGroup struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Required bool           `json:"required"`
	Multiple bool           `json:"multiple"`
	Choices  []OptionChoice `json:"choices"`
}

type Product struct {
	ProductID         string        `json:"product_id"`
	Name              string        `json:"name"`
	PriceCents        int64         `json:"price_cents"`
	Barcode           string        `json:"barcode,omitempty"`
	Category          string        `json:"category,omitempty"`
	Active            bool          `json:"active"`
	DiscountPercent   float64       `json:"discount_percent,omitempty"`
	DiscountFlatCents int64         `json:"discount_flat_cents,omitempty"`
	OptionGroups      []OptionGroup `json:"option_groups,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

type ProductCreateRequest struct {
	ProductID         string        `json:"product_id,omitempty"`
	Name              string        `json:"name"`
	PriceCents        int64         `json:"price_cents"`
	Barcode           string        `json:"barcode,omitempty"`
	Category          string        `json:"category,omitempty"`
	DiscountPercent   float64       `json:"discount_percent,omitempty"`
	DiscountFlatCents int64         `json:"discount_flat_cents,omitempty"`
	OptionGroups      []OptionGroup `json:"option_groups,omitempty"`
}

type ProductUpdateRequest struct {
	Name              *string        `json:"name,omitempty"`
	PriceCents        *int64         `json:"price_cents,omitempty"`
	Barcode           *string        `json:"barcode,omitempty"`
	Category          *string        `json:"category,omitempty"`
	Active            *bool          `json:"active,omitempty"`
	DiscountPercent   *float64       `json:"discount_percent,omitempty"`
	DiscountFlatCents *int64         `json:"discount_flat_cents,omitempty"`
	OptionGroups      *[]OptionGroup `json:"option_groups,omitempty"`
}

const (
	TxTypeDeposit    = "deposit"
	TxTypePurchase   = "purchase"
	TxTypeWithdrawal = "withdrawal"
	TxTypeAdjustment = "adjustment"
)

type SelectedOptionChoice struct {
	ChoiceID        string `json:"choice_id"`
	Label           string `json:"label"`
	PriceDeltaCents int64  `json:"price_delta_cents"`
}

type SelectedOptionGroup struct {
	GroupID string                 `json:"group_id"`
	Name    string                 `json:"name"`
	Choices []SelectedOptionChoice `json:"choices"`
}

// Transaction is one immutable ledger entry. Corrections never rewrite an
// entry in place: the superseded entry is voided and a replacement is
// appended carrying EditParentID. Seq is a store-assigned monotonic insertion
// counter; chronological order is (Timestamp, Seq), never wall-clock alone.
type Transaction struct {
	ID              string                `json:"id"`
	CustomerID      string                `json:"customer_id"`
	Type            string                `json:"type"`
	ProductID       string                `json:"product_id,omitempty"`
	AmountCents     int64                 `json:"amount_cents"`
	BalanceAfter    int64                 `json:"balance_after_cents"`
	Note            string                `json:"note,omitempty"`
	Timestamp       time.Time             `json:"timestamp"`
	Seq             int64                 `json:"seq"`
	StaffID         string                `json:"staff_id,omitempty"`
	Voided          bool                  `json:"voided"`
	VoidNote        string                `json:"void_note,omitempty"`
	EditParentID    string                `json:"edit_parent_transaction_id,omitempty"`
	SelectedOptions []SelectedOptionGroup `json:"selected_options,omitempty"`
}

type SelectedOptionInput struct {
	GroupID   string   `json:"group_id"`
	ChoiceIDs []string `json:"choice_ids"`
}

type DepositRequest struct {
	CustomerID  string `json:"customer_id"`
	AmountCents int64  `json:"amount_cents"`
	Note        string `json:"note,omitempty"`
}

type AdjustmentRequest struct {
	CustomerID  string `json:"customer_id"`
	AmountCents int64  `json:"amount_cents"`
	Note        string `json:"note,omitempty"`
}

type PurchaseRequest struct {
	CustomerID      string                `json:"customer_id"`
	Barcode         string                `json:"barcode,omitempty"`
	ProductID       string                `json:"product_id,omitempty"`
	Note            string                `json:"note,omitempty"`
	SelectedOptions []SelectedOptionInput `json:"selected_options,omitempty"`
}

type EditTransactionRequest struct {
	NewAmountCents int64  `json:"new_amount_cents"`
	Note           string `json:"note,omitempty"`
}

type VoidTransactionRequest struct {
	Note string `json:"note,omitempty"`
}

// TransactionResult is the success payload of every ledger mutation: the
// appended entry plus the customer's balance after commit.
type TransactionResult struct {
	Transaction Transaction `json:"transaction"`
	NewBalance  int64       `json:"new_balance_cents"`
}

type TransactionListResponse struct {
	Transactions []Transaction `json:"transactions"`
	Total        int           `json:"total"`
}

type BulkFailure struct {
	Input any    `json:"input"`
	Error string `json:"error"`
}

type BulkCustomerResult struct {
	Created []Customer    `json:"created"`
	Failed  []BulkFailure `json:"failed"`
}

type BulkProductResult struct {
	Created []Product     `json:"created"`
	Failed  []BulkFailure `json:"failed"`
}

type Stats struct {
	Customers           int   `json:"customers"`
	Products            int   `json:"products"`
	Transactions        int   `json:"transactions"`
	TotalDepositedCents int64 `json:"total_deposited_cents"`
	TotalSpentCents     int64 `json:"total_spent_cents"`
	OutstandingCents    int64 `json:"outstanding_balance_cents"`
}

type BackupInfo struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	SizeBytes int64     `json:"size_bytes"`
}

type BackupStatusResponse struct {
	Backups []BackupInfo `json:"backups"`
}

type RestoreRequest struct {
	Path      string `json:"path"`
	AdminCode string `json:"admin_code"`
}

// Snapshot is the self-contained point-in-time representation of the whole
// ledger store, used by the backup/restore manager and the file store.
type Snapshot struct {
	Version      int               `json:"version"`
	CreatedAt    time.Time         `json:"created_at"`
	NextSeq      int64             `json:"next_seq"`
	Customers    []Customer        `json:"customers"`
	Products     []Product         `json:"products"`
	Transactions []Transaction     `json:"transactions"`
	Settings     map[string]string `json:"settings"`
	Staff        []StaffAccount    `json:"staff,omitempty"`
}

const SnapshotVersion = 1

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

// StaffAccount is an internal persistence model for auth credentials.
type StaffAccount struct {
	Username  string    `json:"username"`
	Password  string    `json:"password"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}
