package sqlite

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/chatrelay/chatrelay/store"
)

func (d *DB) CreateChatMessage(ctx context.Context, create *store.ChatMessage) (*store.ChatMessage, error) {
	stmt := `INSERT INTO chat_message (uid, phone_number, message_id, direction, message_type, message_text, media_id, media_type, contact_name, status, payload, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`
	if err := d.db.QueryRowContext(ctx, stmt,
		create.UID,
		create.PhoneNumber,
		create.MessageID,
		create.Direction,
		create.MessageType,
		create.MessageText,
		create.MediaID,
		create.MediaType,
		create.ContactName,
		create.Status,
		create.Payload,
		create.Ts,
	).Scan(&create.ID); err != nil {
		return nil, errors.Wrap(err, "failed to create chat_message")
	}
	return create, nil
}

func (d *DB) GetChatMessageByMessageID(ctx context.Context, messageID string) (*store.ChatMessage, error) {
	stmt := `SELECT id, uid, phone_number, message_id, direction, message_type, message_text, media_id, media_type, contact_name, status, payload, ts
		FROM chat_message WHERE message_id = ? LIMIT 1`

	message := &store.ChatMessage{}
	err := d.db.QueryRowContext(ctx, stmt, messageID).Scan(
		&message.ID,
		&message.UID,
		&message.PhoneNumber,
		&message.MessageID,
		&message.Direction,
		&message.MessageType,
		&message.MessageText,
		&message.MediaID,
		&message.MediaType,
		&message.ContactName,
		&message.Status,
		&message.Payload,
		&message.Ts,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to get chat_message")
	}
	return message, nil
}

func (d *DB) ListChatMessages(ctx context.Context, find *store.FindChatMessage) ([]*store.ChatMessage, error) {
	where, args := []string{"1 = 1"}, []any{}
	if find.PhoneNumber != nil {
		where = append(where, "phone_number = ?")
		args = append(args, *find.PhoneNumber)
	}

	query := `SELECT id, uid, phone_number, message_id, direction, message_type, message_text, media_id, media_type, contact_name, status, payload, ts
		FROM chat_message WHERE ` + joinWhere(where) + ` ORDER BY ts DESC`
	if find.Limit != nil {
		query += " LIMIT ?"
		args = append(args, *find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list chat_message")
	}
	defer rows.Close()

	list := []*store.ChatMessage{}
	for rows.Next() {
		message := &store.ChatMessage{}
		if err := rows.Scan(
			&message.ID,
			&message.UID,
			&message.PhoneNumber,
			&message.MessageID,
			&message.Direction,
			&message.MessageType,
			&message.MessageText,
			&message.MediaID,
			&message.MediaType,
			&message.ContactName,
			&message.Status,
			&message.Payload,
			&message.Ts,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan chat_message")
		}
		list = append(list, message)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate chat_message rows")
	}
	return list, nil
}

func (d *DB) UpdateChatMessageStatus(ctx context.Context, update *store.UpdateChatMessageStatus) error {
	stmt := `UPDATE chat_message SET status = ? WHERE message_id = ?`
	if _, err := d.db.ExecContext(ctx, stmt, update.Status, update.MessageID); err != nil {
		return errors.Wrap(err, "failed to update chat_message status")
	}
	return nil
}
