package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/chatrelay/chatrelay/store"
)

func (d *DB) CreateLoginToken(ctx context.Context, create *store.LoginToken) (*store.LoginToken, error) {
	stmt := `INSERT INTO login_token (token, wa_id, expires_on, created_ts) VALUES (?, ?, ?, ?)`
	now := time.Now().Unix()
	if _, err := d.db.ExecContext(ctx, stmt, create.Token, create.WaID, create.ExpiresOn.Unix(), now); err != nil {
		return nil, errors.Wrap(err, "failed to create login_token")
	}
	create.CreatedTs = now
	return create, nil
}

func (d *DB) GetLoginToken(ctx context.Context, token string) (*store.LoginToken, error) {
	stmt := `SELECT token, wa_id, expires_on, created_ts FROM login_token WHERE token = ?`

	var (
		result    store.LoginToken
		expiresOn int64
	)
	err := d.db.QueryRowContext(ctx, stmt, token).Scan(
		&result.Token,
		&result.WaID,
		&expiresOn,
		&result.CreatedTs,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to get login_token")
	}

	result.ExpiresOn = time.Unix(expiresOn, 0)
	return &result, nil
}

func (d *DB) DeleteLoginToken(ctx context.Context, token string) error {
	if _, err := d.db.ExecContext(ctx, `DELETE FROM login_token WHERE token = ?`, token); err != nil {
		return errors.Wrap(err, "failed to delete login_token")
	}
	return nil
}
