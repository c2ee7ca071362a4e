// Package store owns the encrypted SQLite file that vaultkeeper unlocks.
//
// A store is an ordinary SQLite database whose key slot holds a random data
// key wrapped under a passphrase-derived key. Installing a key (Key) unwraps
// the data key in memory; nothing is written to the file when the passphrase
// is wrong. Values are sealed with the data key before they reach SQLite.
//
// A Conn is not safe for concurrent use. It is meant to be owned by exactly
// one goroutine, the worker in package worker.
package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/forest6511/vaultkeeper/pkg/crypto"
)

const (
	FileMode = 0600 // Owner read/write only
	DirMode  = 0700 // Owner read/write/execute only

	// LockSuffix is appended to the store path to name the advisory lock file.
	LockSuffix = ".lock"

	verifierPlaintext = "vaultkeeper-verifier-v1"
)

// Errors
var (
	ErrWrongKey        = errors.New("store: passphrase does not match the store key")
	ErrNotKeyed        = errors.New("store: no key installed on the connection")
	ErrAlreadyKeyed    = errors.New("store: key already installed")
	ErrNotInitialized  = errors.New("store: store has no key slot")
	ErrNotEmpty        = errors.New("store: refusing to create a key slot in a non-empty database")
	ErrCorrupted       = errors.New("store: store file is corrupted")
	ErrLocked          = errors.New("store: store is in use by another process")
	ErrConnUnusable    = errors.New("store: connection is no longer usable")
	ErrEmptyPassphrase = errors.New("store: empty passphrase")
	ErrClosed          = errors.New("store: connection closed")
)

// Options configures a Conn.
type Options struct {
	// KDF holds the Argon2id costs used when a key slot is created.
	// Existing stores always use the costs recorded in their key slot.
	KDF crypto.Params

	// BusyTimeout is passed to SQLite's busy_timeout pragma.
	BusyTimeout time.Duration
}

// DefaultOptions returns production defaults.
func DefaultOptions() Options {
	return Options{
		KDF:         crypto.DefaultParams(),
		BusyTimeout: 5 * time.Second,
	}
}

// Conn is the single live handle to a store file.
type Conn struct {
	path    string
	db      *sql.DB
	lock    *fileLock
	opts    Options
	dataKey []byte // held in memory only while keyed
	closed  bool
}

// Open prepares a connection to the store at path. The database file itself
// is not touched until the first statement runs; only the parent directory
// and the advisory lock file are created.
func Open(path string, opts *Options) (*Conn, error) {
	o := DefaultOptions()
	if opts != nil {
		if opts.KDF.Valid() {
			o.KDF = opts.KDF
		}
		if opts.BusyTimeout > 0 {
			o.BusyTimeout = opts.BusyTimeout
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), DirMode); err != nil {
		return nil, fmt.Errorf("store: failed to create store directory: %w", err)
	}

	lock, err := acquireLock(path + LockSuffix)
	if err != nil {
		return nil, err
	}

	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(%d)&_pragma=foreign_keys(1)",
		path, o.BusyTimeout.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		lock.release()
		return nil, fmt.Errorf("store: failed to open database: %w", err)
	}

	// One connection, forever. The worker serializes every statement anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	return &Conn{path: path, db: db, lock: lock, opts: o}, nil
}

// Path returns the store file path.
func (c *Conn) Path() string {
	return c.path
}

// Keyed reports whether a key has been installed.
func (c *Conn) Keyed() bool {
	return c.dataKey != nil
}

// Unkey wipes and drops the installed key. The store file is not touched;
// a later Key starts over.
func (c *Conn) Unkey() {
	if c.dataKey != nil {
		crypto.SecureWipe(c.dataKey)
		c.dataKey = nil
	}
}

// Key installs passphrase as the store key.
//
// With create set, the database must be empty (a missing or zero-length file
// qualifies); a fresh key slot and the schema are written in one
// transaction. Otherwise the existing key slot is read and the data key is
// unwrapped. A wrong passphrase returns ErrWrongKey and performs no writes.
func (c *Conn) Key(ctx context.Context, passphrase string, create bool) error {
	if c.closed {
		return ErrClosed
	}
	if c.dataKey != nil {
		return ErrAlreadyKeyed
	}
	if passphrase == "" {
		return ErrEmptyPassphrase
	}

	pass := crypto.NormalizePassphrase(passphrase)
	defer crypto.SecureWipe(pass)

	if create {
		return c.createKeySlot(ctx, pass)
	}
	return c.unwrapKeySlot(ctx, pass)
}

func (c *Conn) createKeySlot(ctx context.Context, pass []byte) error {
	var objects int
	if err := c.db.QueryRowContext(ctx, "SELECT count(*) FROM sqlite_master").Scan(&objects); err != nil {
		return c.classify(fmt.Errorf("store: failed to inspect database: %w", err))
	}
	if objects != 0 {
		return ErrNotEmpty
	}

	salt, err := crypto.NewSalt()
	if err != nil {
		return err
	}
	dataKey, err := crypto.RandomBytes(crypto.KeyLength)
	if err != nil {
		return err
	}

	kek := c.opts.KDF.DeriveKey(pass, salt)
	defer crypto.SecureWipe(kek)

	wrapped, err := crypto.Seal(kek, dataKey)
	if err != nil {
		return fmt.Errorf("store: failed to wrap data key: %w", err)
	}
	verifier, err := crypto.Seal(dataKey, []byte(verifierPlaintext))
	if err != nil {
		return fmt.Errorf("store: failed to seal verifier: %w", err)
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return c.classify(fmt.Errorf("store: failed to begin transaction: %w", err))
	}
	defer tx.Rollback()

	if err := migrateSchema(ctx, tx); err != nil {
		return c.classify(err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO store_keys (id, salt, kdf_time, kdf_memory, kdf_threads, wrapped_key, verifier)
		VALUES (1, ?, ?, ?, ?, ?, ?)`,
		salt, c.opts.KDF.Time, c.opts.KDF.Memory, c.opts.KDF.Threads, wrapped, verifier)
	if err != nil {
		return c.classify(fmt.Errorf("store: failed to write key slot: %w", err))
	}
	if err := tx.Commit(); err != nil {
		return c.classify(fmt.Errorf("store: failed to commit key slot: %w", err))
	}

	if err := os.Chmod(c.path, FileMode); err != nil {
		return fmt.Errorf("store: failed to set store permissions: %w", err)
	}

	c.dataKey = dataKey
	return nil
}

func (c *Conn) unwrapKeySlot(ctx context.Context, pass []byte) error {
	slot, err := c.readKeySlot(ctx)
	if err != nil {
		return err
	}

	kek := slot.params.DeriveKey(pass, slot.salt)
	defer crypto.SecureWipe(kek)

	dataKey, err := crypto.Open(kek, slot.wrapped)
	if err != nil {
		if errors.Is(err, crypto.ErrDecryptionFailed) {
			return ErrWrongKey
		}
		return fmt.Errorf("%w: %v", ErrCorrupted, err)
	}

	// Bring older stores up to date only once the key is proven.
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		crypto.SecureWipe(dataKey)
		return c.classify(fmt.Errorf("store: failed to begin transaction: %w", err))
	}
	defer tx.Rollback()
	if err := migrateSchema(ctx, tx); err != nil {
		crypto.SecureWipe(dataKey)
		return c.classify(err)
	}
	if err := tx.Commit(); err != nil {
		crypto.SecureWipe(dataKey)
		return c.classify(fmt.Errorf("store: failed to commit migration: %w", err))
	}

	c.dataKey = dataKey
	return nil
}

type keySlot struct {
	salt     []byte
	params   crypto.Params
	wrapped  []byte
	verifier []byte
}

func (c *Conn) readKeySlot(ctx context.Context) (*keySlot, error) {
	var name string
	err := c.db.QueryRowContext(ctx,
		"SELECT name FROM sqlite_master WHERE type='table' AND name='store_keys'").Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotInitialized
	}
	if err != nil {
		return nil, c.classify(fmt.Errorf("store: failed to inspect database: %w", err))
	}

	var s keySlot
	var threads int64
	err = c.db.QueryRowContext(ctx, `
		SELECT salt, kdf_time, kdf_memory, kdf_threads, wrapped_key, verifier
		FROM store_keys WHERE id = 1`).
		Scan(&s.salt, &s.params.Time, &s.params.Memory, &threads, &s.wrapped, &s.verifier)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotInitialized
	}
	if err != nil {
		return nil, c.classify(fmt.Errorf("store: failed to read key slot: %w", err))
	}
	s.params.Threads = uint8(threads)

	if len(s.salt) != crypto.SaltLength || !s.params.Valid() {
		return nil, ErrCorrupted
	}
	return &s, nil
}

// Verify performs the trivial read that proves the installed key: it scans
// the schema and opens the sealed verifier with the data key.
func (c *Conn) Verify(ctx context.Context) error {
	if c.dataKey == nil {
		return ErrNotKeyed
	}

	var objects int
	if err := c.db.QueryRowContext(ctx, "SELECT count(*) FROM sqlite_master").Scan(&objects); err != nil {
		return c.classify(fmt.Errorf("store: verify read failed: %w", err))
	}

	slot, err := c.readKeySlot(ctx)
	if err != nil {
		return err
	}
	plain, err := crypto.Open(c.dataKey, slot.verifier)
	if err != nil || string(plain) != verifierPlaintext {
		return ErrWrongKey
	}
	return nil
}

// CheckPassphrase reports whether passphrase opens the key slot of the keyed
// store, without touching the installed key.
func (c *Conn) CheckPassphrase(ctx context.Context, passphrase string) error {
	if c.dataKey == nil {
		return ErrNotKeyed
	}
	slot, err := c.readKeySlot(ctx)
	if err != nil {
		return err
	}

	pass := crypto.NormalizePassphrase(passphrase)
	defer crypto.SecureWipe(pass)
	kek := slot.params.DeriveKey(pass, slot.salt)
	defer crypto.SecureWipe(kek)

	dataKey, err := crypto.Open(kek, slot.wrapped)
	if err != nil {
		return ErrWrongKey
	}
	crypto.SecureWipe(dataKey)
	return nil
}

// Rekey rewraps the data key under a new passphrase. The data itself is not
// re-encrypted.
func (c *Conn) Rekey(ctx context.Context, passphrase string) error {
	if c.dataKey == nil {
		return ErrNotKeyed
	}
	if passphrase == "" {
		return ErrEmptyPassphrase
	}

	pass := crypto.NormalizePassphrase(passphrase)
	defer crypto.SecureWipe(pass)

	salt, err := crypto.NewSalt()
	if err != nil {
		return err
	}
	kek := c.opts.KDF.DeriveKey(pass, salt)
	defer crypto.SecureWipe(kek)

	wrapped, err := crypto.Seal(kek, c.dataKey)
	if err != nil {
		return fmt.Errorf("store: failed to wrap data key: %w", err)
	}

	_, err = c.db.ExecContext(ctx, `
		UPDATE store_keys
		SET salt = ?, kdf_time = ?, kdf_memory = ?, kdf_threads = ?, wrapped_key = ?
		WHERE id = 1`,
		salt, c.opts.KDF.Time, c.opts.KDF.Memory, c.opts.KDF.Threads, wrapped)
	if err != nil {
		return c.classify(fmt.Errorf("store: failed to rewrite key slot: %w", err))
	}
	return nil
}

// Seal encrypts a value with the data key.
func (c *Conn) Seal(plaintext []byte) ([]byte, error) {
	if c.dataKey == nil {
		return nil, ErrNotKeyed
	}
	return crypto.Seal(c.dataKey, plaintext)
}

// Unseal decrypts a value sealed by Seal.
func (c *Conn) Unseal(blob []byte) ([]byte, error) {
	if c.dataKey == nil {
		return nil, ErrNotKeyed
	}
	plain, err := crypto.Open(c.dataKey, blob)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupted, err)
	}
	return plain, nil
}

// ExecContext runs a statement on the keyed connection.
func (c *Conn) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if c.dataKey == nil {
		return nil, ErrNotKeyed
	}
	res, err := c.db.ExecContext(ctx, query, args...)
	return res, c.classify(err)
}

// QueryContext runs a query on the keyed connection.
func (c *Conn) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if c.dataKey == nil {
		return nil, ErrNotKeyed
	}
	rows, err := c.db.QueryContext(ctx, query, args...)
	return rows, c.classify(err)
}

// QueryRowContext runs a single-row query on the keyed connection.
// The returned error, if any, comes from Scan; call Keyed first when the
// connection may still be locked.
func (c *Conn) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return c.db.QueryRowContext(ctx, query, args...)
}

// BeginTx starts a transaction on the keyed connection.
func (c *Conn) BeginTx(ctx context.Context) (*sql.Tx, error) {
	if c.dataKey == nil {
		return nil, ErrNotKeyed
	}
	tx, err := c.db.BeginTx(ctx, nil)
	return tx, c.classify(err)
}

// Close wipes the data key, closes the database and releases the lock file.
func (c *Conn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true

	c.Unkey()

	err := c.db.Close()
	c.lock.release()
	return err
}

// classify marks errors after which the connection cannot be trusted.
func (c *Conn) classify(err error) error {
	if err == nil {
		return nil
	}
	if IsUnusable(err) {
		return fmt.Errorf("%w: %v", ErrConnUnusable, err)
	}
	if isNotADatabase(err) {
		return fmt.Errorf("%w: %v", ErrCorrupted, err)
	}
	return err
}

// IsUnusable reports whether err means the connection itself is gone.
func IsUnusable(err error) bool {
	return errors.Is(err, ErrConnUnusable) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, ErrClosed) ||
		(err != nil && strings.Contains(err.Error(), "sql: database is closed"))
}

func isNotADatabase(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "file is not a database") ||
		strings.Contains(msg, "database disk image is malformed")
}
