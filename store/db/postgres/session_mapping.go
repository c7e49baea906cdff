package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/chatrelay/chatrelay/store"
)

func (d *DB) UpsertSessionMapping(ctx context.Context, upsert *store.UpsertSessionMapping) (*store.SessionMapping, error) {
	now := time.Now().Unix()

	stmt := `INSERT INTO whatsapp_session (wa_id, sid, "user", status, expires_on, created_from, last_used, created_ts, updated_ts)
		VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $8)
		ON CONFLICT (wa_id) DO UPDATE SET
			sid = EXCLUDED.sid,
			"user" = EXCLUDED."user",
			status = EXCLUDED.status,
			expires_on = EXCLUDED.expires_on,
			created_from = EXCLUDED.created_from,
			updated_ts = EXCLUDED.updated_ts`
	if _, err := d.db.ExecContext(ctx, stmt,
		upsert.WaID,
		upsert.SID,
		upsert.User,
		store.SessionActive,
		upsert.ExpiresOn.Unix(),
		upsert.CreatedFrom,
		now,
		now,
	); err != nil {
		return nil, errors.Wrap(err, "failed to upsert whatsapp_session")
	}

	return d.GetSessionMapping(ctx, upsert.WaID)
}

func (d *DB) GetSessionMapping(ctx context.Context, waID string) (*store.SessionMapping, error) {
	stmt := `SELECT wa_id, sid, "user", status, expires_on, created_from, last_used, created_ts, updated_ts
		FROM whatsapp_session WHERE wa_id = $1`

	var (
		mapping   store.SessionMapping
		status    string
		expiresOn int64
		lastUsed  int64
	)
	err := d.db.QueryRowContext(ctx, stmt, waID).Scan(
		&mapping.WaID,
		&mapping.SID,
		&mapping.User,
		&status,
		&expiresOn,
		&mapping.CreatedFrom,
		&lastUsed,
		&mapping.CreatedTs,
		&mapping.UpdatedTs,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to get whatsapp_session")
	}

	mapping.Status = store.SessionStatus(status)
	mapping.ExpiresOn = time.Unix(expiresOn, 0)
	if lastUsed > 0 {
		mapping.LastUsed = time.Unix(lastUsed, 0)
	}
	return &mapping, nil
}

func (d *DB) MarkSessionExpired(ctx context.Context, waID string) error {
	stmt := `UPDATE whatsapp_session SET status = $1, updated_ts = $2 WHERE wa_id = $3`
	if _, err := d.db.ExecContext(ctx, stmt, store.SessionExpired, time.Now().Unix(), waID); err != nil {
		return errors.Wrap(err, "failed to mark whatsapp_session expired")
	}
	return nil
}

func (d *DB) TouchSessionLastUsed(ctx context.Context, waID string) error {
	now := time.Now().Unix()
	stmt := `UPDATE whatsapp_session SET last_used = $1, updated_ts = $2 WHERE wa_id = $3`
	if _, err := d.db.ExecContext(ctx, stmt, now, now, waID); err != nil {
		return errors.Wrap(err, "failed to touch whatsapp_session last_used")
	}
	return nil
}
