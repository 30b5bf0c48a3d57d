package conversation

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PostgresStore persists conversations and messages to PostgreSQL for
// long-term history. The Redis history store keeps the hot AI context;
// this store is the durable record the team portal reads.
type PostgresStore struct {
	db *sql.DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a store on an open database handle.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	if db == nil {
		panic("conversation: db cannot be nil")
	}
	return &PostgresStore{db: db}
}

const conversationColumns = `
	id, account_id, instance_name, customer_jid, customer_phone, customer_name,
	status, transfer_reason, handoff_count, agent_id, welcome_sent,
	started_at, last_message_at, resolved_at, created_at, updated_at`

// GetByCustomer looks a conversation up by instance and customer JID.
func (s *PostgresStore) GetByCustomer(ctx context.Context, instanceName, customerJID string) (*Conversation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT`+conversationColumns+`
		FROM conversations
		WHERE instance_name = $1 AND customer_jid = $2`,
		instanceName, customerJID)
	return scanConversation(row)
}

// Get looks a conversation up by ID.
func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*Conversation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT`+conversationColumns+`
		FROM conversations
		WHERE id = $1`, id)
	return scanConversation(row)
}

// Create inserts a new conversation. Races on the unique customer key
// fall back to reading the row the other writer created.
func (s *PostgresStore) Create(ctx context.Context, conv *Conversation) error {
	if conv.ID == uuid.Nil {
		conv.ID = uuid.New()
	}
	now := time.Now().UTC()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	conv.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (
			id, account_id, instance_name, customer_jid, customer_phone, customer_name,
			status, transfer_reason, handoff_count, agent_id, welcome_sent,
			started_at, last_message_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		conv.ID, conv.AccountID, conv.InstanceName, conv.CustomerJID,
		conv.CustomerPhone, conv.CustomerName, conv.Status, conv.TransferReason,
		conv.HandoffCount, conv.AgentID, conv.WelcomeSent,
		conv.StartedAt, conv.LastMessageAt, conv.CreatedAt, conv.UpdatedAt)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			existing, getErr := s.GetByCustomer(ctx, conv.InstanceName, conv.CustomerJID)
			if getErr != nil {
				return fmt.Errorf("conversation: create raced and lookup failed: %w", getErr)
			}
			*conv = *existing
			return nil
		}
		return fmt.Errorf("conversation: failed to create: %w", err)
	}
	return nil
}

// Update writes the mutable conversation fields back.
func (s *PostgresStore) Update(ctx context.Context, conv *Conversation) error {
	conv.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE conversations SET
			status = $1, transfer_reason = $2, handoff_count = $3, agent_id = $4,
			welcome_sent = $5, customer_name = $6, last_message_at = $7,
			resolved_at = $8, updated_at = $9
		WHERE id = $10`,
		conv.Status, conv.TransferReason, conv.HandoffCount, conv.AgentID,
		conv.WelcomeSent, conv.CustomerName, conv.LastMessageAt,
		conv.ResolvedAt, conv.UpdatedAt, conv.ID)
	if err != nil {
		return fmt.Errorf("conversation: failed to update: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("conversation: failed to read update result: %w", err)
	}
	if affected == 0 {
		return ErrConversationNotFound
	}
	return nil
}

// AppendMessage persists one message.
func (s *PostgresStore) AppendMessage(ctx context.Context, msg Message) error {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, role, content, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING`,
		msg.ID, msg.ConversationID, msg.Role, msg.Content, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("conversation: failed to insert message: %w", err)
	}
	return nil
}

// ListMessages returns the most recent messages in chronological order.
func (s *PostgresStore) ListMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]Message, error) {
	query := `
		SELECT id, conversation_id, role, content, created_at
		FROM (
			SELECT id, conversation_id, role, content, created_at
			FROM messages
			WHERE conversation_id = $1
			ORDER BY created_at DESC`
	args := []any{conversationID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	query += `
		) recent
		ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("conversation: failed to list messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var msg Message
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Role, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("conversation: failed to scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("conversation: failed to iterate messages: %w", err)
	}
	return messages, nil
}

// ListByStatus returns an account's conversations in the given status,
// oldest activity first so agents pick up the longest waiting customer.
func (s *PostgresStore) ListByStatus(ctx context.Context, accountID string, status Status) ([]Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT`+conversationColumns+`
		FROM conversations
		WHERE account_id = $1 AND status = $2
		ORDER BY last_message_at ASC`,
		accountID, status)
	if err != nil {
		return nil, fmt.Errorf("conversation: failed to list by status: %w", err)
	}
	defer rows.Close()

	var out []Conversation
	for rows.Next() {
		conv, err := scanConversationRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("conversation: failed to iterate conversations: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row *sql.Row) (*Conversation, error) {
	conv, err := scanConversationRow(row)
	if err == sql.ErrNoRows {
		return nil, ErrConversationNotFound
	}
	return conv, err
}

func scanConversationRow(row rowScanner) (*Conversation, error) {
	var conv Conversation
	var transferReason, agentID sql.NullString
	var resolvedAt sql.NullTime

	err := row.Scan(
		&conv.ID, &conv.AccountID, &conv.InstanceName, &conv.CustomerJID,
		&conv.CustomerPhone, &conv.CustomerName, &conv.Status, &transferReason,
		&conv.HandoffCount, &agentID, &conv.WelcomeSent,
		&conv.StartedAt, &conv.LastMessageAt, &resolvedAt,
		&conv.CreatedAt, &conv.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("conversation: failed to scan: %w", err)
	}

	conv.TransferReason = transferReason.String
	conv.AgentID = agentID.String
	if resolvedAt.Valid {
		conv.ResolvedAt = &resolvedAt.Time
	}
	return &conv, nil
}
