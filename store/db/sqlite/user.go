package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/chatrelay/chatrelay/store"
)

func (d *DB) CreateUser(ctx context.Context, create *store.User) (*store.User, error) {
	now := time.Now().Unix()
	stmt := `INSERT INTO user (email, nickname, password_hash, row_status, created_ts, updated_ts)
		VALUES (?, ?, ?, 'NORMAL', ?, ?)
		RETURNING id`
	if err := d.db.QueryRowContext(ctx, stmt,
		create.Email,
		create.Nickname,
		create.PasswordHash,
		now,
		now,
	).Scan(&create.ID); err != nil {
		return nil, errors.Wrap(err, "failed to create user")
	}
	create.RowStatus = "NORMAL"
	create.CreatedTs = now
	create.UpdatedTs = now
	return create, nil
}

func (d *DB) GetUser(ctx context.Context, find *store.FindUser) (*store.User, error) {
	where, args := []string{"1 = 1"}, []any{}
	if find.ID != nil {
		where = append(where, "id = ?")
		args = append(args, *find.ID)
	}
	if find.Email != nil {
		where = append(where, "email = ?")
		args = append(args, *find.Email)
	}

	stmt := `SELECT id, email, nickname, password_hash, row_status, created_ts, updated_ts
		FROM user WHERE ` + joinWhere(where) + ` LIMIT 1`

	user := &store.User{}
	err := d.db.QueryRowContext(ctx, stmt, args...).Scan(
		&user.ID,
		&user.Email,
		&user.Nickname,
		&user.PasswordHash,
		&user.RowStatus,
		&user.CreatedTs,
		&user.UpdatedTs,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to get user")
	}
	return user, nil
}
