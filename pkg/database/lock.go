// Copyright 2020 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// UnlockFn can be deferred to release a lock.
type UnlockFn func() error

// Lock acquires lock with given name that times out after ttl. Returns an
// UnlockFn that can be used to unlock the lock. ErrAlreadyLocked will be
// returned if there is already a lock in use.
func (db *DB) Lock(ctx context.Context, lockID string, ttl time.Duration) (UnlockFn, error) {
	if lockID == "" {
		return nil, errors.New("missing lock id")
	}

	now := time.Now().UTC()
	expiry := now.Add(ttl)

	err := db.InTx(ctx, sql.LevelSerializable, func(tx *sql.Tx) error {
		var expires time.Time
		row := tx.QueryRowContext(ctx, db.dialect.Rebind(`SELECT expires FROM lock WHERE lock_id = ?`), lockID)
		switch err := row.Scan(&expires); {
		case errors.Is(err, sql.ErrNoRows):
			if _, err := tx.ExecContext(ctx, db.dialect.Rebind(`INSERT INTO lock (lock_id, expires) VALUES (?, ?)`), lockID, expiry); err != nil {
				if IsConstraintViolation(err) {
					return ErrAlreadyLocked
				}
				return fmt.Errorf("inserting lock %s: %w", lockID, err)
			}
			return nil
		case err != nil:
			return fmt.Errorf("reading lock %s: %w", lockID, err)
		}

		// The lock exists, check to see if it's expired.
		if now.Before(expires) {
			return ErrAlreadyLocked
		}
		if _, err := tx.ExecContext(ctx, db.dialect.Rebind(`UPDATE lock SET expires = ? WHERE lock_id = ?`), expiry, lockID); err != nil {
			return fmt.Errorf("updating lock %s: %w", lockID, err)
		}
		return nil
	})
	if isSerializationFailure(err) {
		return nil, ErrAlreadyLocked
	}
	if err != nil {
		return nil, err
	}

	return db.makeUnlockFn(ctx, lockID), nil
}

func (db *DB) makeUnlockFn(ctx context.Context, lockID string) UnlockFn {
	return func() error {
		// Expire the lock rather than deleting it, so contending transactions
		// keep seeing a row.
		if _, err := db.Exec(ctx, `UPDATE lock SET expires = ? WHERE lock_id = ?`, time.Unix(0, 0).UTC(), lockID); err != nil {
			return fmt.Errorf("releasing lock %s: %w", lockID, err)
		}
		return nil
	}
}
