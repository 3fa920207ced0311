package store

// Schema creates every table. Amounts are stored as fixed two-decimal text
// and dates as YYYY-MM-DD so they compare lexically.
const Schema = `
CREATE TABLE IF NOT EXISTS companies (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    tax_id TEXT NOT NULL UNIQUE,
    active INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS accounts (
    id TEXT PRIMARY KEY,
    company_id TEXT NOT NULL REFERENCES companies(id),
    name TEXT NOT NULL,
    number TEXT NOT NULL DEFAULT '',
    currency TEXT NOT NULL DEFAULT '',
    active INTEGER NOT NULL DEFAULT 1
);

CREATE INDEX IF NOT EXISTS idx_accounts_company_number
    ON accounts(company_id, number);

CREATE TABLE IF NOT EXISTS articles (
    id TEXT PRIMARY KEY,
    company_id TEXT NOT NULL REFERENCES companies(id),
    name TEXT NOT NULL,
    category TEXT NOT NULL,          -- 'income' or 'expense'
    active INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS counterparties (
    id TEXT PRIMARY KEY,
    company_id TEXT NOT NULL REFERENCES companies(id),
    name TEXT NOT NULL,
    tax_id TEXT NOT NULL DEFAULT '',
    active INTEGER NOT NULL DEFAULT 1
);

CREATE INDEX IF NOT EXISTS idx_counterparties_company_tax
    ON counterparties(company_id, tax_id);

CREATE TABLE IF NOT EXISTS mapping_rules (
    id TEXT PRIMARY KEY,
    company_id TEXT NOT NULL REFERENCES companies(id),
    rule_type TEXT NOT NULL,         -- equals, contains, regex, alias
    pattern TEXT NOT NULL,
    target_type TEXT NOT NULL,       -- article, counterparty, account, operationType
    target_id TEXT NOT NULL,
    source_field TEXT NOT NULL,      -- description, payer, receiver, inn
    usage_count INTEGER NOT NULL DEFAULT 0,
    last_used_at TEXT,
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_mapping_rules_company
    ON mapping_rules(company_id, target_type);

CREATE TABLE IF NOT EXISTS import_sessions (
    id TEXT PRIMARY KEY,
    company_id TEXT NOT NULL REFERENCES companies(id),
    file_name TEXT NOT NULL,
    company_account TEXT NOT NULL DEFAULT '',
    encoding TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL,
    imported_count INTEGER NOT NULL DEFAULT 0,
    confirmed_count INTEGER NOT NULL DEFAULT 0,
    processed_count INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_import_sessions_company_created
    ON import_sessions(company_id, created_at);

CREATE TABLE IF NOT EXISTS imported_operations (
    id TEXT PRIMARY KEY,
    company_id TEXT NOT NULL REFERENCES companies(id),
    session_id TEXT NOT NULL REFERENCES import_sessions(id) ON DELETE CASCADE,
    date TEXT NOT NULL,
    number TEXT NOT NULL DEFAULT '',
    amount TEXT NOT NULL,
    payer TEXT NOT NULL DEFAULT '',
    payer_tax_id TEXT NOT NULL DEFAULT '',
    payer_account TEXT NOT NULL DEFAULT '',
    receiver TEXT NOT NULL DEFAULT '',
    receiver_tax_id TEXT NOT NULL DEFAULT '',
    receiver_account TEXT NOT NULL DEFAULT '',
    purpose TEXT NOT NULL DEFAULT '',
    content_hash TEXT NOT NULL DEFAULT '',
    direction TEXT NOT NULL DEFAULT '',
    article_id TEXT NOT NULL DEFAULT '',
    counterparty_id TEXT NOT NULL DEFAULT '',
    account_id TEXT NOT NULL DEFAULT '',
    currency TEXT NOT NULL DEFAULT '',
    matched_by TEXT NOT NULL DEFAULT '',
    matched_rule_id TEXT NOT NULL DEFAULT '',
    confirmed INTEGER NOT NULL DEFAULT 0,
    processed INTEGER NOT NULL DEFAULT 0,
    is_duplicate INTEGER NOT NULL DEFAULT 0,
    duplicate_of_id TEXT NOT NULL DEFAULT '',
    duplicate_source TEXT NOT NULL DEFAULT '',
    operation_id TEXT NOT NULL DEFAULT '',
    locked_fields TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_imported_operations_session
    ON imported_operations(company_id, session_id);

CREATE INDEX IF NOT EXISTS idx_imported_operations_pending
    ON imported_operations(company_id, processed, date);

CREATE TABLE IF NOT EXISTS operations (
    id TEXT PRIMARY KEY,
    company_id TEXT NOT NULL REFERENCES companies(id),
    number TEXT NOT NULL,            -- YYYY-MM-NNN
    date TEXT NOT NULL,
    type TEXT NOT NULL,              -- income, expense, transfer
    amount TEXT NOT NULL,
    currency TEXT NOT NULL,
    account_id TEXT NOT NULL,
    to_account_id TEXT NOT NULL DEFAULT '',
    article_id TEXT NOT NULL DEFAULT '',
    counterparty_id TEXT NOT NULL DEFAULT '',
    description TEXT NOT NULL DEFAULT '',
    content_hash TEXT NOT NULL DEFAULT '',
    imported_operation_id TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL,
    UNIQUE(company_id, number)
);

CREATE INDEX IF NOT EXISTS idx_operations_company_date
    ON operations(company_id, date);

CREATE INDEX IF NOT EXISTS idx_operations_company_hash
    ON operations(company_id, content_hash);
`
