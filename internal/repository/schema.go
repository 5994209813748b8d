package repository

// sqliteSchema creates tables of the SQLite ledger
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS accounts (
	id      INTEGER PRIMARY KEY,
	name    TEXT NOT NULL DEFAULT '',
	balance REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS positions (
	account_id INTEGER NOT NULL REFERENCES accounts (id),
	ticker     TEXT NOT NULL,
	quantity   INTEGER NOT NULL DEFAULT 0 CHECK (quantity >= 0),
	PRIMARY KEY (account_id, ticker)
);

CREATE TABLE IF NOT EXISTS trades (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	account_id INTEGER NOT NULL REFERENCES accounts (id),
	ticker     TEXT NOT NULL,
	quantity   INTEGER NOT NULL,
	price      REAL NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS alerts (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	account_id INTEGER NOT NULL REFERENCES accounts (id),
	ticker     TEXT NOT NULL,
	condition  TEXT NOT NULL CHECK (condition IN ('>', '<')),
	target     REAL NOT NULL,
	triggered  BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS candles (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	ticker     TEXT NOT NULL,
	open       REAL NOT NULL,
	high       REAL NOT NULL,
	low        REAL NOT NULL,
	close      REAL NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS dividend_payments (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	account_id INTEGER NOT NULL REFERENCES accounts (id),
	ticker     TEXT NOT NULL,
	quantity   INTEGER NOT NULL,
	amount     REAL NOT NULL,
	paid_at    DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trades_account_ticker ON trades (account_id, ticker);
CREATE INDEX IF NOT EXISTS idx_alerts_active ON alerts (triggered);
CREATE INDEX IF NOT EXISTS idx_candles_ticker_time ON candles (ticker, created_at);
CREATE INDEX IF NOT EXISTS idx_dividend_payments_account ON dividend_payments (account_id);
`

// postgresSchema creates tables of the Postgres ledger
const postgresSchema = `
CREATE TABLE IF NOT EXISTS accounts (
	id      BIGINT PRIMARY KEY,
	name    TEXT NOT NULL DEFAULT '',
	balance DOUBLE PRECISION NOT NULL
);

CREATE TABLE IF NOT EXISTS positions (
	account_id BIGINT NOT NULL REFERENCES accounts (id),
	ticker     TEXT NOT NULL,
	quantity   BIGINT NOT NULL DEFAULT 0 CHECK (quantity >= 0),
	PRIMARY KEY (account_id, ticker)
);

CREATE TABLE IF NOT EXISTS trades (
	id         BIGSERIAL PRIMARY KEY,
	account_id BIGINT NOT NULL REFERENCES accounts (id),
	ticker     TEXT NOT NULL,
	quantity   BIGINT NOT NULL,
	price      DOUBLE PRECISION NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS alerts (
	id         BIGSERIAL PRIMARY KEY,
	account_id BIGINT NOT NULL REFERENCES accounts (id),
	ticker     TEXT NOT NULL,
	condition  TEXT NOT NULL CHECK (condition IN ('>', '<')),
	target     DOUBLE PRECISION NOT NULL,
	triggered  BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS candles (
	id         BIGSERIAL PRIMARY KEY,
	ticker     TEXT NOT NULL,
	open       DOUBLE PRECISION NOT NULL,
	high       DOUBLE PRECISION NOT NULL,
	low        DOUBLE PRECISION NOT NULL,
	close      DOUBLE PRECISION NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS dividend_payments (
	id         BIGSERIAL PRIMARY KEY,
	account_id BIGINT NOT NULL REFERENCES accounts (id),
	ticker     TEXT NOT NULL,
	quantity   BIGINT NOT NULL,
	amount     DOUBLE PRECISION NOT NULL,
	paid_at    TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trades_account_ticker ON trades (account_id, ticker);
CREATE INDEX IF NOT EXISTS idx_alerts_active ON alerts (triggered);
CREATE INDEX IF NOT EXISTS idx_candles_ticker_time ON candles (ticker, created_at);
CREATE INDEX IF NOT EXISTS idx_dividend_payments_account ON dividend_payments (account_id);
`
