package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/golang/glog"
)

const (
	// Inner join: edges whose target user cannot be resolved are omitted.
	getContactsSQL = "SELECT c.contact_username, u.initials, u.color " +
		"FROM contacts AS c, users AS u " +
		"WHERE c.user_id = (SELECT id FROM users WHERE username=?) AND u.username = c.contact_username " +
		"ORDER BY c.contact_username"
	getUserIdSQL     = "SELECT id FROM users WHERE username=?"
	insertContactSQL = "INSERT IGNORE INTO contacts (user_id, contact_username, create_time) VALUES (?,?,?)"
)

func (s *chatStore) ListContacts(ctx context.Context, username string) ([]*Contact, error) {
	rows, err := s.QueryContext(ctx, getContactsSQL, username)
	if err != nil {
		glog.Errorf("get contacts query err: %v", err)
		return nil, err
	}
	defer rows.Close()

	var out []*Contact
	for rows.Next() {
		var c Contact
		if err := rows.Scan(&c.Username, &c.Initials, &c.Color); err != nil {
			glog.Errorf("get contacts scan err: %v", err)
			return nil, err
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (s *chatStore) AddContact(ctx context.Context, owner, contact string) (*Contact, error) {
	// The contact side is created on demand, the owner must already exist.
	cu, err := s.GetOrCreateUser(ctx, contact)
	if err != nil {
		return nil, err
	}

	now := time.Now()

	if err := s.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var ownerID int64
		row := tx.QueryRowContext(ctx, getUserIdSQL, owner)
		if err := row.Scan(&ownerID); err != nil {
			if err == sql.ErrNoRows {
				return ErrNotFound
			}
			glog.Errorf("get owner id scan err: %v", err)
			return err
		}
		// INSERT IGNORE: adding the same contact twice is a no-op.
		_, err := tx.ExecContext(ctx, insertContactSQL, ownerID, contact, now)
		return err
	}); err != nil {
		return nil, err
	}

	// Reverse edge, fire-and-forget: symmetry is best-effort and its failure
	// never fails the primary operation. Runs after the forward edge has
	// committed.
	if _, err := s.ExecContext(ctx, insertContactSQL, cu.ID, owner, now); err != nil {
		glog.Errorf("insert reverse contact edge err, owner: %s, contact: %s, err: %v", contact, owner, err)
	}

	return &Contact{
		Username: cu.Username,
		Initials: cu.Initials,
		Color:    cu.Color,
	}, nil
}
