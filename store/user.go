package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/golang/glog"
)

const (
	getUserSQL    = "SELECT id,username,initials,color,create_time FROM users WHERE username=?"
	insertUserSQL = "INSERT INTO users (username,initials,color,create_time) VALUES (?,?,?,?)"
)

// getUser returns the user row, or nil when there is none.
func (s *chatStore) getUser(ctx context.Context, username string) (*User, error) {
	row := s.QueryRowContext(ctx, getUserSQL, username)
	var u User
	if err := row.Scan(&u.ID, &u.Username, &u.Initials, &u.Color, &u.CreateTime); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		glog.Errorf("get user scan err: %v", err)
		return nil, err
	}
	return &u, nil
}

func (s *chatStore) GetOrCreateUser(ctx context.Context, username string) (*User, error) {
	u, err := s.getUser(ctx, username)
	if err != nil || u != nil {
		return u, err
	}

	now := time.Now()
	initials := Initials(username)
	color := AvatarColor(username)

	res, err := s.ExecContext(ctx, insertUserSQL, username, initials, color, now)
	if err != nil {
		// A concurrent first login of the same username may have won the
		// insert. The unique key on `username` turns that race into a
		// duplicate-key error: re-fetch the winner's row.
		if s.IsDupKeyError(err) {
			if u, err2 := s.getUser(ctx, username); err2 == nil && u != nil {
				return u, nil
			}
		}
		glog.Errorf("insert user err, username: %s, err: %v", username, err)
		return nil, err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	return &User{
		ID:         id,
		Username:   username,
		Initials:   initials,
		Color:      color,
		CreateTime: now,
	}, nil
}
