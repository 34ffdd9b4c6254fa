package store

import (
	"database/sql"
	"fmt"
	"slices"
	"time"

	"github.com/srvmarket/srvchat/internal/chat"
)

// SaveSummaries replaces the viewer's conversation list. Last messages are upserted
// into the message table.
func (db *DB) SaveSummaries(viewerID string, sums []chat.EnhancedConversationSummary) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM conversations WHERE viewer_id = ?`, viewerID); err != nil {
		return fmt.Errorf("clear conversations: %w", err)
	}

	now := time.Now().UnixMilli()
	for i, s := range sums {
		c := s.Conversation
		var lastID sql.NullString
		if s.LastMessage != nil {
			lastID = sql.NullString{String: s.LastMessage.ID, Valid: true}
			if err := upsertMessage(tx, viewerID, s.LastMessage); err != nil {
				return fmt.Errorf("upsert last message: %w", err)
			}
		}
		if _, err := tx.Exec(`
			INSERT INTO conversations (viewer_id, id, client_id, provider_id, created_at, last_message_at, is_active,
				other_user_id, other_user_name, other_user_avatar, last_message_id, position, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			viewerID, c.ID, c.ClientID, c.ProviderID, ticks(c.CreatedAt), optTicks(c.LastMessageAt), c.IsActive,
			s.OtherUserID, s.OtherUserName, s.OtherUserAvatar, lastID, i, now); err != nil {
			return fmt.Errorf("insert conversation %s: %w", c.ID, err)
		}
		for user, n := range c.UnreadCount {
			if _, err := tx.Exec(`
				INSERT INTO unread_counts (viewer_id, conversation_id, user_id, count) VALUES (?, ?, ?, ?)`,
				viewerID, c.ID, user, n); err != nil {
				return fmt.Errorf("insert unread count: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit summaries: %w", err)
	}
	return nil
}

// LoadSummaries returns the viewer's saved conversation list in its saved order.
func (db *DB) LoadSummaries(viewerID string) ([]chat.EnhancedConversationSummary, error) {
	unread, err := db.unreadCounts(viewerID)
	if err != nil {
		return nil, err
	}

	rows, err := db.Query(`
		SELECT c.id, c.client_id, c.provider_id, c.created_at, c.last_message_at, c.is_active,
			c.other_user_id, c.other_user_name, c.other_user_avatar,
			`+messageColumns("m")+`
		FROM conversations c
		LEFT JOIN messages m
			ON m.viewer_id = c.viewer_id AND m.conversation_id = c.id AND m.id = c.last_message_id
		WHERE c.viewer_id = ?
		ORDER BY c.position`, viewerID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var sums []chat.EnhancedConversationSummary
	for rows.Next() {
		var (
			s       chat.EnhancedConversationSummary
			created int64
			lastAt  sql.NullInt64
			mr      messageRow
		)
		dest := append([]any{
			&s.Conversation.ID, &s.Conversation.ClientID, &s.Conversation.ProviderID, &created, &lastAt, &s.Conversation.IsActive,
			&s.OtherUserID, &s.OtherUserName, &s.OtherUserAvatar,
		}, mr.dest()...)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		s.Conversation.CreatedAt = fromTicks(created)
		s.Conversation.LastMessageAt = fromOptTicks(lastAt)
		s.Conversation.UnreadCount = unread[s.Conversation.ID]
		if mr.id.Valid {
			m := mr.message(s.Conversation.ID)
			s.LastMessage = &m
		}
		sums = append(sums, s)
	}
	return sums, rows.Err()
}

func (db *DB) unreadCounts(viewerID string) (map[string]map[string]int, error) {
	rows, err := db.Query(`
		SELECT conversation_id, user_id, count FROM unread_counts WHERE viewer_id = ?`, viewerID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]map[string]int)
	for rows.Next() {
		var conv, user string
		var n int
		if err := rows.Scan(&conv, &user, &n); err != nil {
			return nil, err
		}
		if out[conv] == nil {
			out[conv] = make(map[string]int)
		}
		out[conv][user] = n
	}
	return out, rows.Err()
}

// SaveMessages upserts messages of one conversation (idempotent on message id).
func (db *DB) SaveMessages(viewerID, conversationID string, msgs []chat.Message) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for i := range msgs {
		m := msgs[i]
		if m.ConversationID == "" {
			m.ConversationID = conversationID
		}
		if err := upsertMessage(tx, viewerID, &m); err != nil {
			return fmt.Errorf("upsert message %s: %w", m.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit messages: %w", err)
	}
	return nil
}

// ListMessages returns the newest limit messages of a conversation, oldest first.
func (db *DB) ListMessages(viewerID, conversationID string, limit int) ([]chat.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT `+messageColumns("")+`
		FROM messages
		WHERE viewer_id = ? AND conversation_id = ?
		ORDER BY created_at DESC
		LIMIT ?`, viewerID, conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	msgs := []chat.Message{}
	for rows.Next() {
		var mr messageRow
		if err := rows.Scan(mr.dest()...); err != nil {
			return nil, err
		}
		msgs = append(msgs, mr.message(conversationID))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	slices.Reverse(msgs)
	return msgs, nil
}

// Clear deletes everything saved for a viewer.
func (db *DB) Clear(viewerID string) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, q := range []string{
		`DELETE FROM messages WHERE viewer_id = ?`,
		`DELETE FROM conversations WHERE viewer_id = ?`,
	} {
		if _, err := tx.Exec(q, viewerID); err != nil {
			return fmt.Errorf("clear viewer: %w", err)
		}
	}
	return tx.Commit()
}

func upsertMessage(tx *sql.Tx, viewerID string, m *chat.Message) error {
	var (
		name, mime, url sql.NullString
		size            sql.NullInt64
	)
	if a := m.Attachment; a != nil {
		name = sql.NullString{String: a.Name, Valid: true}
		size = sql.NullInt64{Int64: a.Size, Valid: true}
		mime = sql.NullString{String: a.MimeType, Valid: true}
		url = sql.NullString{String: a.URL, Valid: true}
	}
	_, err := tx.Exec(`
		INSERT INTO messages (viewer_id, conversation_id, id, sender_id, receiver_id, kind, content,
			attachment_name, attachment_size, attachment_mime, attachment_url, status, created_at, read_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(viewer_id, conversation_id, id) DO UPDATE SET
			content = excluded.content,
			status = excluded.status,
			read_at = excluded.read_at`,
		viewerID, m.ConversationID, m.ID, m.SenderID, m.ReceiverID, string(m.Kind), m.Content,
		name, size, mime, url, string(m.Status), ticks(m.CreatedAt), optTicks(m.ReadAt))
	return err
}

// messageRow scans the columns listed by messageColumns.
type messageRow struct {
	id, sender, receiver, kind, content, status sql.NullString
	name, mime, url                             sql.NullString
	size, created, readAt                       sql.NullInt64
}

func messageColumns(alias string) string {
	p := ""
	if alias != "" {
		p = alias + "."
	}
	return p + "id, " + p + "sender_id, " + p + "receiver_id, " + p + "kind, " + p + "content, " +
		p + "attachment_name, " + p + "attachment_size, " + p + "attachment_mime, " + p + "attachment_url, " +
		p + "status, " + p + "created_at, " + p + "read_at"
}

func (r *messageRow) dest() []any {
	return []any{&r.id, &r.sender, &r.receiver, &r.kind, &r.content,
		&r.name, &r.size, &r.mime, &r.url,
		&r.status, &r.created, &r.readAt}
}

func (r *messageRow) message(conversationID string) chat.Message {
	m := chat.Message{
		ID:             r.id.String,
		ConversationID: conversationID,
		SenderID:       r.sender.String,
		ReceiverID:     r.receiver.String,
		Kind:           chat.MessageKind(r.kind.String),
		Content:        r.content.String,
		Status:         chat.DeliveryStatus(r.status.String),
		CreatedAt:      fromTicks(r.created.Int64),
		ReadAt:         fromOptTicks(r.readAt),
	}
	if r.name.Valid {
		m.Attachment = &chat.FileAttachment{
			Name:     r.name.String,
			Size:     r.size.Int64,
			MimeType: r.mime.String,
			URL:      r.url.String,
		}
	}
	return m
}

func ticks(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func optTicks(t *time.Time) sql.NullInt64 {
	if t == nil || t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func fromTicks(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

func fromOptTicks(n sql.NullInt64) *time.Time {
	if !n.Valid || n.Int64 == 0 {
		return nil
	}
	t := time.Unix(0, n.Int64)
	return &t
}
