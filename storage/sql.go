/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package storage

import (
	"database/sql"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/ortuman/xmppd/auth"
	"github.com/pkg/errors"
	"github.com/sony/gobreaker"
)

// SQLProvider is a SQL-backed auth.Provider (config.yaml's
// "storage.driver: postgres|mysql|sqlite3"). It never stores or reads back
// a plaintext password: only the per-mechanism SCRAM StoredKey/ServerKey
// pair, per RFC 5802.
type SQLProvider struct {
	db      *sql.DB
	builder sq.StatementBuilderType
	breaker *gobreaker.CircuitBreaker
}

// NewSQLProvider opens a connection pool for the given driver ("postgres",
// "mysql", or "sqlite3") and dsn, wrapping every query in a circuit
// breaker so a degraded database fails fast instead of stacking up
// goroutines behind slow queries.
func NewSQLProvider(driver, dsn string) (*SQLProvider, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "storage: opening database")
	}
	placeholder := sq.Question
	if driver == "postgres" {
		placeholder = sq.Dollar
	}
	return &SQLProvider{
		db:      db,
		builder: sq.StatementBuilder.PlaceholderFormat(placeholder),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{Name: "storage-sql"}),
	}, nil
}

// Close releases the underlying connection pool.
func (p *SQLProvider) Close() error { return p.db.Close() }

type credentialRow struct {
	bareJID         string
	salt            []byte
	iterations      int
	storedKeySHA1   []byte
	serverKeySHA1   []byte
	storedKeySHA256 []byte
	serverKeySHA256 []byte
}

func (p *SQLProvider) fetchUser(username string) (credentialRow, bool, error) {
	query, args, err := p.builder.
		Select("bare_jid", "salt", "iterations", "stored_key_sha1", "server_key_sha1", "stored_key_sha256", "server_key_sha256").
		From("users").
		Where(sq.Eq{"username": username}).
		ToSql()
	if err != nil {
		return credentialRow{}, false, errors.Wrap(err, "storage: building query")
	}

	result, err := p.breaker.Execute(func() (interface{}, error) {
		var row credentialRow
		scanErr := p.db.QueryRow(query, args...).Scan(
			&row.bareJID, &row.salt, &row.iterations,
			&row.storedKeySHA1, &row.serverKeySHA1,
			&row.storedKeySHA256, &row.serverKeySHA256,
		)
		if scanErr == sql.ErrNoRows {
			return credentialRow{}, nil
		}
		if scanErr != nil {
			return credentialRow{}, errors.Wrap(scanErr, "storage: querying user")
		}
		return row, nil
	})
	if err != nil {
		return credentialRow{}, false, err
	}
	row := result.(credentialRow)
	return row, len(row.bareJID) > 0, nil
}

// AuthenticatePlain implements auth.Provider by deriving a fresh StoredKey
// from the supplied password (under the stored salt/iterations) and
// comparing it against the SCRAM-SHA-256 StoredKey on file.
func (p *SQLProvider) AuthenticatePlain(username, password string) (string, bool, error) {
	row, ok, err := p.fetchUser(username)
	if err != nil || !ok {
		return "", false, err
	}
	storedKey, _ := derive(hashSHA256, password, row.salt, row.iterations)
	return row.bareJID, constantTimeEqual(storedKey, row.storedKeySHA256), nil
}

// ScramCredentials implements auth.Provider.
func (p *SQLProvider) ScramCredentials(username, mechanism string) (auth.Credentials, bool, error) {
	row, ok, err := p.fetchUser(username)
	if err != nil || !ok {
		return auth.Credentials{}, ok, err
	}
	creds := auth.Credentials{Salt: row.salt, Iterations: row.iterations}
	switch mechanism {
	case "SCRAM-SHA-1":
		creds.StoredKey, creds.ServerKey = row.storedKeySHA1, row.serverKeySHA1
	case "SCRAM-SHA-256":
		creds.StoredKey, creds.ServerKey = row.storedKeySHA256, row.serverKeySHA256
	default:
		return auth.Credentials{}, false, errors.Errorf("storage: unsupported mechanism %q", mechanism)
	}
	return creds, true, nil
}
