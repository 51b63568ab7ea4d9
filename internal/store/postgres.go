package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"freedesk/services/support/internal/analytics"
)

type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, err
	}

	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Close() {
	p.pool.Close()
}

func (p *Postgres) Health(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *Postgres) Save(ctx context.Context, ticket Ticket) error {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	analyticsJSON, err := marshalAnalytics(ticket.Analytics)
	if err != nil {
		return err
	}

	_, err = tx.Exec(
		ctx,
		`INSERT INTO tickets (id, status, channel, customer_name, created_at, updated_at, closed_at,
		                      resolution_seconds, assigned_to, priority, notes, public, analytics)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 ON CONFLICT (id) DO UPDATE
		 SET status = EXCLUDED.status,
		     updated_at = EXCLUDED.updated_at,
		     closed_at = EXCLUDED.closed_at,
		     resolution_seconds = EXCLUDED.resolution_seconds,
		     assigned_to = EXCLUDED.assigned_to,
		     priority = EXCLUDED.priority,
		     notes = EXCLUDED.notes,
		     public = EXCLUDED.public,
		     analytics = EXCLUDED.analytics`,
		ticket.ID,
		ticket.Status,
		ticket.Channel,
		ticket.CustomerName,
		ticket.CreatedAt,
		ticket.UpdatedAt,
		ticket.ClosedAt,
		ticket.ResolutionSeconds,
		ticket.AssignedTo,
		ticket.Priority,
		ticket.Notes,
		ticket.Public,
		analyticsJSON,
	)
	if err != nil {
		return err
	}

	for _, message := range ticket.Messages {
		if err := insertMessage(ctx, tx, ticket.ID, message); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (p *Postgres) Get(ctx context.Context, id string) (Ticket, error) {
	ticket, err := scanTicket(p.pool.QueryRow(
		ctx,
		`SELECT id, status, channel, customer_name, created_at, updated_at, closed_at,
		        resolution_seconds, assigned_to, priority, notes, public, analytics
		 FROM tickets
		 WHERE id = $1`,
		id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Ticket{}, ErrNotFound
		}
		return Ticket{}, err
	}

	messages, err := p.listMessages(ctx, id)
	if err != nil {
		return Ticket{}, err
	}
	ticket.Messages = messages

	return ticket, nil
}

func (p *Postgres) List(ctx context.Context, filter Filter) ([]Ticket, error) {
	query := `SELECT id, status, channel, customer_name, created_at, updated_at, closed_at,
	                 resolution_seconds, assigned_to, priority, notes, public, analytics
	          FROM tickets
	          WHERE 1=1`
	args := []any{}

	if filter.Status != "" {
		args = append(args, filter.Status)
		query += ` AND status = $` + strconv.Itoa(len(args))
	}
	if filter.Channel != "" {
		args = append(args, filter.Channel)
		query += ` AND channel = $` + strconv.Itoa(len(args))
	}
	if !filter.DateFrom.IsZero() {
		args = append(args, filter.DateFrom)
		query += ` AND created_at >= $` + strconv.Itoa(len(args))
	}
	if !filter.DateTo.IsZero() {
		args = append(args, filter.DateTo)
		query += ` AND created_at <= $` + strconv.Itoa(len(args))
	}

	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tickets := make([]Ticket, 0)
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, ticket)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	for i := range tickets {
		messages, err := p.listMessages(ctx, tickets[i].ID)
		if err != nil {
			return nil, err
		}
		tickets[i].Messages = messages
	}

	return tickets, nil
}

func (p *Postgres) UpdateStatus(ctx context.Context, id, status string, closedAt *time.Time) (Ticket, error) {
	ticket, err := p.Get(ctx, id)
	if err != nil {
		return Ticket{}, err
	}

	applyStatus(&ticket, status, closedAt)
	ticket.UpdatedAt = time.Now().UTC()

	_, err = p.pool.Exec(
		ctx,
		`UPDATE tickets
		 SET status = $2, updated_at = $3, closed_at = $4, resolution_seconds = $5
		 WHERE id = $1`,
		id,
		ticket.Status,
		ticket.UpdatedAt,
		ticket.ClosedAt,
		ticket.ResolutionSeconds,
	)
	if err != nil {
		return Ticket{}, err
	}

	return ticket, nil
}

func (p *Postgres) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := p.pool.QueryRow(
		ctx,
		`SELECT EXISTS (SELECT 1 FROM tickets WHERE id = $1)`,
		id,
	).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (p *Postgres) AddMessage(ctx context.Context, id string, message Message) error {
	exists, err := p.Exists(ctx, id)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}

	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := insertMessage(ctx, tx, id, message); err != nil {
		return err
	}

	_, err = tx.Exec(
		ctx,
		`UPDATE tickets SET updated_at = $2 WHERE id = $1`,
		id,
		time.Now().UTC(),
	)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (p *Postgres) Update(ctx context.Context, id string, update Update) (Ticket, error) {
	ticket, err := p.Get(ctx, id)
	if err != nil {
		return Ticket{}, err
	}

	if update.Status != nil {
		var closedAt *time.Time
		if *update.Status == StatusClosed {
			now := time.Now().UTC()
			closedAt = &now
		}
		applyStatus(&ticket, *update.Status, closedAt)
	}
	if update.AssignedTo != nil {
		ticket.AssignedTo = *update.AssignedTo
	}
	if update.Priority != nil {
		ticket.Priority = *update.Priority
	}
	if update.Notes != nil {
		ticket.Notes = *update.Notes
	}
	if update.Analytics != nil {
		ticket.Analytics = update.Analytics
	}
	ticket.UpdatedAt = time.Now().UTC()

	analyticsJSON, err := marshalAnalytics(ticket.Analytics)
	if err != nil {
		return Ticket{}, err
	}

	_, err = p.pool.Exec(
		ctx,
		`UPDATE tickets
		 SET status = $2, updated_at = $3, closed_at = $4, resolution_seconds = $5,
		     assigned_to = $6, priority = $7, notes = $8, analytics = $9
		 WHERE id = $1`,
		id,
		ticket.Status,
		ticket.UpdatedAt,
		ticket.ClosedAt,
		ticket.ResolutionSeconds,
		ticket.AssignedTo,
		ticket.Priority,
		ticket.Notes,
		analyticsJSON,
	)
	if err != nil {
		return Ticket{}, err
	}

	return ticket, nil
}

func (p *Postgres) Delete(ctx context.Context, id string) error {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM ticket_messages WHERE ticket_id = $1`, id); err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `DELETE FROM tickets WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return tx.Commit(ctx)
}

func (p *Postgres) listMessages(ctx context.Context, ticketID string) ([]Message, error) {
	rows, err := p.pool.Query(
		ctx,
		`SELECT id, role, content, author, internal, created_at
		 FROM ticket_messages
		 WHERE ticket_id = $1
		 ORDER BY created_at ASC`,
		ticketID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]Message, 0)
	for rows.Next() {
		var message Message
		if err := rows.Scan(
			&message.ID,
			&message.Role,
			&message.Content,
			&message.Author,
			&message.Internal,
			&message.CreatedAt,
		); err != nil {
			return nil, err
		}
		messages = append(messages, message)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return messages, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTicket(row rowScanner) (Ticket, error) {
	var (
		ticket        Ticket
		analyticsJSON []byte
	)
	err := row.Scan(
		&ticket.ID,
		&ticket.Status,
		&ticket.Channel,
		&ticket.CustomerName,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.ClosedAt,
		&ticket.ResolutionSeconds,
		&ticket.AssignedTo,
		&ticket.Priority,
		&ticket.Notes,
		&ticket.Public,
		&analyticsJSON,
	)
	if err != nil {
		return Ticket{}, err
	}

	if len(analyticsJSON) > 0 {
		record := analytics.Record{}
		if err := json.Unmarshal(analyticsJSON, &record); err != nil {
			return Ticket{}, err
		}
		ticket.Analytics = &record
	}

	return ticket, nil
}

func insertMessage(ctx context.Context, tx pgx.Tx, ticketID string, message Message) error {
	_, err := tx.Exec(
		ctx,
		`INSERT INTO ticket_messages (id, ticket_id, role, content, author, internal, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO NOTHING`,
		message.ID,
		ticketID,
		message.Role,
		message.Content,
		message.Author,
		message.Internal,
		message.CreatedAt,
	)
	return err
}

func marshalAnalytics(record *analytics.Record) ([]byte, error) {
	if record == nil {
		return nil, nil
	}
	return json.Marshal(record)
}

