package postgres

import "context"

// schema is applied on startup; every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS customers (
		customer_id   TEXT PRIMARY KEY,
		name          TEXT NOT NULL DEFAULT '',
		balance_cents BIGINT NOT NULL DEFAULT 0,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS products (
		product_id          TEXT PRIMARY KEY,
		name                TEXT NOT NULL,
		price_cents         BIGINT NOT NULL,
		barcode             TEXT,
		category            TEXT NOT NULL DEFAULT '',
		active              BOOLEAN NOT NULL DEFAULT true,
		discount_percent    DOUBLE PRECISION NOT NULL DEFAULT 0,
		discount_flat_cents BIGINT NOT NULL DEFAULT 0,
		option_groups       JSONB NOT NULL DEFAULT '[]',
		created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS products_barcode_uniq
		ON products (barcode) WHERE barcode IS NOT NULL AND barcode <> ''`,
	`CREATE SEQUENCE IF NOT EXISTS ledger_entry_seq`,
	`CREATE TABLE IF NOT EXISTS transactions (
		id                  TEXT PRIMARY KEY,
		customer_id         TEXT NOT NULL REFERENCES customers (customer_id),
		type                TEXT NOT NULL,
		product_id          TEXT NOT NULL DEFAULT '',
		amount_cents        BIGINT NOT NULL,
		balance_after_cents BIGINT NOT NULL,
		note                TEXT NOT NULL DEFAULT '',
		ts                  TIMESTAMPTZ NOT NULL,
		seq                 BIGINT NOT NULL,
		staff_id            TEXT NOT NULL DEFAULT '',
		voided              BOOLEAN NOT NULL DEFAULT false,
		void_note           TEXT NOT NULL DEFAULT '',
		edit_parent_id      TEXT NOT NULL DEFAULT '',
		selected_options    JSONB NOT NULL DEFAULT '[]'
	)`,
	`CREATE INDEX IF NOT EXISTS transactions_customer_idx
		ON transactions (customer_id, ts, seq)`,
	`CREATE INDEX IF NOT EXISTS transactions_order_idx
		ON transactions (ts DESC, seq DESC)`,
	`CREATE TABLE IF NOT EXISTS app_settings (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS audit_logs (
		id             TEXT PRIMARY KEY,
		actor_username TEXT NOT NULL DEFAULT '',
		actor_role     TEXT NOT NULL DEFAULT '',
		action         TEXT NOT NULL,
		entity_type    TEXT NOT NULL,
		entity_id      TEXT NOT NULL DEFAULT '',
		detail         TEXT NOT NULL DEFAULT '',
		created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS staff_accounts (
		username   TEXT PRIMARY KEY,
		password   TEXT NOT NULL,
		role       TEXT NOT NULL,
		active     BOOLEAN NOT NULL DEFAULT true,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

func (s *Store) ensureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
