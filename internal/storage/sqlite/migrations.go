package sqlite

import "database/sql"

// migrations contains the SQL statements to set up the database schema.
// These run on startup to ensure tables exist.
// Money columns are TEXT: amounts are decimal strings, never floats.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    buy_index INTEGER PRIMARY KEY,
    name TEXT NOT NULL,
    username TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS receipts (
    date TEXT PRIMARY KEY,
    subtotal TEXT NOT NULL,
    tax TEXT NOT NULL,
    total TEXT NOT NULL,
    tax_rate TEXT NOT NULL,
    payer_id INTEGER NOT NULL,
    FOREIGN KEY (payer_id) REFERENCES users(buy_index) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS items (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    receipt_date TEXT NOT NULL,
    name TEXT NOT NULL,
    count INTEGER NOT NULL DEFAULT 0,
    price TEXT NOT NULL,
    img_src TEXT NOT NULL DEFAULT '',
    taxed INTEGER NOT NULL DEFAULT 0,
    buyers INTEGER NOT NULL DEFAULT 0,
    FOREIGN KEY (receipt_date) REFERENCES receipts(date) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS covers (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    receipt_date TEXT NOT NULL,
    payer_id INTEGER NOT NULL,
    user_id INTEGER NOT NULL,
    amount TEXT NOT NULL,
    UNIQUE (receipt_date, user_id),
    FOREIGN KEY (receipt_date) REFERENCES receipts(date) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS payments (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    payee_id INTEGER NOT NULL,
    payer_id INTEGER NOT NULL,
    amount TEXT NOT NULL,
    created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_items_receipt_date ON items(receipt_date);
CREATE INDEX IF NOT EXISTS idx_covers_receipt_date ON covers(receipt_date);
CREATE INDEX IF NOT EXISTS idx_covers_user_id ON covers(user_id);
CREATE INDEX IF NOT EXISTS idx_covers_payer_id ON covers(payer_id);
CREATE INDEX IF NOT EXISTS idx_payments_payee_id ON payments(payee_id);
CREATE INDEX IF NOT EXISTS idx_payments_payer_id ON payments(payer_id);
`

// runMigrations executes the schema setup.
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
