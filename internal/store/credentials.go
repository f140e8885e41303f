// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package store

import (
	"context"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"github.com/holomush/chatd/internal/auth"
)

// CredentialRepository stores auth records in the auth_records table.
// It implements auth.RecordStore.
type CredentialRepository struct {
	pool poolIface
}

var _ auth.RecordStore = (*CredentialRepository)(nil)

// NewCredentialRepository creates a repository backed by pool.
func NewCredentialRepository(pool poolIface) *CredentialRepository {
	return &CredentialRepository{pool: pool}
}

// Insert stores rec. A username that already exists is reported with
// auth.CodeNameRegistered.
func (r *CredentialRepository) Insert(ctx context.Context, rec auth.Record) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO auth_records (username, credential_hash, created_at)
		 VALUES ($1, $2, $3)`,
		rec.Username, rec.CredentialHash, rec.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return oops.Code(auth.CodeNameRegistered).
				With("username", rec.Username).
				Wrap(err)
		}
		return oops.With("operation", "insert auth record").With("username", rec.Username).Wrap(err)
	}
	return nil
}

// List returns every stored record ordered by username.
func (r *CredentialRepository) List(ctx context.Context) ([]auth.Record, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT username, credential_hash, created_at FROM auth_records ORDER BY username`)
	if err != nil {
		return nil, oops.With("operation", "list auth records").Wrap(err)
	}
	defer rows.Close()

	var records []auth.Record
	for rows.Next() {
		var rec auth.Record
		if err := rows.Scan(&rec.Username, &rec.CredentialHash, &rec.CreatedAt); err != nil {
			return nil, oops.With("operation", "scan auth record row").Wrap(err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.With("operation", "iterate auth records").Wrap(err)
	}
	return records, nil
}
