package repositories

import (
	"context"
	"fmt"

	"github.com/BradenHooton/bastion/internal/database"
	"github.com/BradenHooton/bastion/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SecurityEventRepository archives security events to Postgres. It is write-mostly:
// nothing in the live security state is ever loaded back from it.
type SecurityEventRepository struct {
	pool *pgxpool.Pool
}

// NewSecurityEventRepository creates a new SecurityEventRepository
func NewSecurityEventRepository(db *database.DB) *SecurityEventRepository {
	return &SecurityEventRepository{pool: db.Pool}
}

// ArchivedEvent is a security event as stored in the archive
type ArchivedEvent struct {
	ID    uuid.UUID
	Event models.SecurityEvent
}

// Create stores one event
func (r *SecurityEventRepository) Create(ctx context.Context, event *models.SecurityEvent) (uuid.UUID, error) {
	query := `
		INSERT INTO security_events (id, event_seq, event_type, severity, data, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	data := event.Data
	if data == nil {
		data = models.EventData{}
	}

	id := uuid.New()
	_, err := r.pool.Exec(ctx, query,
		id,
		int64(event.ID),
		string(event.Type),
		string(event.Severity),
		data,
		event.Timestamp,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to archive security event: %w", database.MapPostgresError(err))
	}

	return id, nil
}

// ListRecent returns the most recent archived events, newest first
func (r *SecurityEventRepository) ListRecent(ctx context.Context, limit int) ([]*ArchivedEvent, error) {
	query := `
		SELECT id, event_seq, event_type, severity, data, occurred_at
		FROM security_events
		ORDER BY occurred_at DESC, event_seq DESC
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list archived events: %w", database.MapPostgresError(err))
	}
	defer rows.Close()

	events := make([]*ArchivedEvent, 0)
	for rows.Next() {
		var (
			archived  ArchivedEvent
			seq       int64
			eventType string
			severity  string
		)
		if err := rows.Scan(&archived.ID, &seq, &eventType, &severity, &archived.Event.Data, &archived.Event.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan archived event: %w", err)
		}
		archived.Event.ID = uint64(seq)
		archived.Event.Type = models.EventType(eventType)
		archived.Event.Severity = models.Severity(severity)
		events = append(events, &archived)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating archived events: %w", err)
	}

	return events, nil
}

// DeleteOlderThan removes archived events older than the retention cutoff
func (r *SecurityEventRepository) DeleteOlderThan(ctx context.Context, days int) (int64, error) {
	query := `DELETE FROM security_events WHERE occurred_at < NOW() - make_interval(days => $1)`
	tag, err := r.pool.Exec(ctx, query, days)
	if err != nil {
		return 0, fmt.Errorf("failed to prune archived events: %w", err)
	}
	return tag.RowsAffected(), nil
}
