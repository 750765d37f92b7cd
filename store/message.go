package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/golang/glog"
)

const (
	insertMessageSQL = "INSERT INTO messages (conversation_id,sender,text,image,timestamp,create_time) VALUES (?,?,?,?,?,?)"
	getMessagesSQL   = "SELECT id,conversation_id,sender,text,image,timestamp,create_time FROM messages " +
		"WHERE conversation_id=? ORDER BY timestamp ASC, id ASC"
)

func (s *chatStore) SaveMessage(ctx context.Context, m *NewMessage) (*Message, error) {
	now := time.Now()

	text := sql.NullString{String: m.Text, Valid: m.Text != ""}
	image := sql.NullString{String: m.Image, Valid: m.Image != ""}

	res, err := s.ExecContext(ctx, insertMessageSQL,
		m.ConversationID, m.Sender, text, image, m.Timestamp, now)
	if err != nil {
		glog.Errorf("insert message exec err: %v", err)
		return nil, err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	return &Message{
		ID:             id,
		ConversationID: m.ConversationID,
		Sender:         m.Sender,
		Text:           m.Text,
		Image:          m.Image,
		Timestamp:      m.Timestamp,
		CreateTime:     now,
	}, nil
}

func (s *chatStore) GetMessages(ctx context.Context, conversationID string) ([]*Message, error) {
	rows, err := s.QueryContext(ctx, getMessagesSQL, conversationID)
	if err != nil {
		glog.Errorf("get messages query err: %v", err)
		return nil, err
	}
	defer rows.Close()

	var out []*Message
	for rows.Next() {
		var m Message
		var text, image sql.NullString
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Sender, &text, &image, &m.Timestamp, &m.CreateTime); err != nil {
			glog.Errorf("get messages scan err: %v", err)
			return nil, err
		}
		m.Text = text.String
		m.Image = image.String
		out = append(out, &m)
	}
	return out, rows.Err()
}
