package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	appErrors "github.com/unclebandit/charityng-backend/internal/errors"
	"github.com/unclebandit/charityng-backend/internal/model"
)

// FulfillmentRepository stores fulfillments, their allocations and their
// message threads in PostgreSQL.
type FulfillmentRepository struct {
	DB *sqlx.DB
}

type allocationRow struct {
	FulfillmentID string `db:"fulfillment_id"`
	model.Allocation
}

type messageRow struct {
	FulfillmentID string `db:"fulfillment_id"`
	model.Message
}

// Create inserts the fulfillment with its allocations and initial messages.
// It returns only after the transaction committed.
func (r *FulfillmentRepository) Create(ctx context.Context, f *model.Fulfillment) error {
	now := time.Now().UTC()
	f.CreatedAt = now
	f.UpdatedAt = now

	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO fulfillments (id, user_id, campaign_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, f.ID, f.UserID, f.CampaignID, f.Status, f.CreatedAt, f.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create fulfillment: %w", err)
	}

	for i, a := range f.Resources {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO fulfillment_resources (fulfillment_id, position, resource_id, quantity)
			VALUES ($1, $2, $3, $4)
		`, f.ID, i, a.ResourceID, a.Quantity)
		if err != nil {
			return fmt.Errorf("failed to create allocation: %w", err)
		}
	}

	for i := range f.Messages {
		if err := insertMessage(ctx, tx, f.ID, &f.Messages[i]); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func insertMessage(ctx context.Context, db sqlx.ExecerContext, fulfillmentID string, m *model.Message) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO fulfillment_messages (id, fulfillment_id, message, user_id, staff_id, status, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7)
	`, m.ID, fulfillmentID, m.Text, m.UserID, m.StaffID, m.Status, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

func (r *FulfillmentRepository) GetByID(ctx context.Context, id string) (*model.Fulfillment, error) {
	var f model.Fulfillment
	err := r.DB.GetContext(ctx, &f, `
		SELECT id, user_id, campaign_id, status, created_at, updated_at
		FROM fulfillments WHERE id = $1
	`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrFulfillmentNotFound
		}
		return nil, fmt.Errorf("failed to get fulfillment: %w", err)
	}

	out := []*model.Fulfillment{&f}
	if err := r.hydrate(ctx, out); err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *FulfillmentRepository) List(ctx context.Context, filter model.FulfillmentFilter) ([]*model.Fulfillment, error) {
	query := `SELECT f.id, f.user_id, f.campaign_id, f.status, f.created_at, f.updated_at FROM fulfillments f WHERE 1=1`
	args := []interface{}{}
	argPos := 1

	if filter.UserID != "" {
		query += fmt.Sprintf(" AND f.user_id = $%d", argPos)
		args = append(args, filter.UserID)
		argPos++
	}
	if filter.CampaignID != "" {
		query += fmt.Sprintf(" AND f.campaign_id = $%d", argPos)
		args = append(args, filter.CampaignID)
		argPos++
	}
	if filter.ResourceID != "" {
		query += fmt.Sprintf(` AND EXISTS (
			SELECT 1 FROM fulfillment_resources fr WHERE fr.fulfillment_id = f.id AND fr.resource_id = $%d)`, argPos)
		args = append(args, filter.ResourceID)
		argPos++
	}
	query += " ORDER BY f.created_at, f.id"

	rows := []model.Fulfillment{}
	if err := r.DB.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list fulfillments: %w", err)
	}

	out := make([]*model.Fulfillment, len(rows))
	for i := range rows {
		out[i] = &rows[i]
	}
	if err := r.hydrate(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

// hydrate loads allocations and messages for a batch of fulfillments.
func (r *FulfillmentRepository) hydrate(ctx context.Context, fulfillments []*model.Fulfillment) error {
	if len(fulfillments) == 0 {
		return nil
	}
	byID := make(map[string]*model.Fulfillment, len(fulfillments))
	ids := make([]string, len(fulfillments))
	for i, f := range fulfillments {
		f.Resources = []model.Allocation{}
		f.Messages = []model.Message{}
		byID[f.ID] = f
		ids[i] = f.ID
	}

	allocations := []allocationRow{}
	err := r.DB.SelectContext(ctx, &allocations, `
		SELECT fulfillment_id, resource_id, quantity
		FROM fulfillment_resources
		WHERE fulfillment_id = ANY($1)
		ORDER BY fulfillment_id, position
	`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to load allocations: %w", err)
	}
	for _, a := range allocations {
		byID[a.FulfillmentID].Resources = append(byID[a.FulfillmentID].Resources, a.Allocation)
	}

	messages := []messageRow{}
	err = r.DB.SelectContext(ctx, &messages, `
		SELECT fulfillment_id, id, message, COALESCE(user_id, '') AS user_id,
		       COALESCE(staff_id, '') AS staff_id, status, created_at
		FROM fulfillment_messages
		WHERE fulfillment_id = ANY($1)
		ORDER BY fulfillment_id, seq
	`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to load messages: %w", err)
	}
	for _, m := range messages {
		byID[m.FulfillmentID].Messages = append(byID[m.FulfillmentID].Messages, m.Message)
	}
	return nil
}

func (r *FulfillmentRepository) UpdateStatus(ctx context.Context, id string, status model.FulfillmentStatus) error {
	result, err := r.DB.ExecContext(ctx, `UPDATE fulfillments SET status = $1, updated_at = $2 WHERE id = $3`,
		status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update fulfillment status: %w", err)
	}
	return expectOne(result, appErrors.ErrFulfillmentNotFound)
}

func (r *FulfillmentRepository) AppendMessage(ctx context.Context, fulfillmentID string, m *model.Message) error {
	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `UPDATE fulfillments SET updated_at = $1 WHERE id = $2`, time.Now().UTC(), fulfillmentID)
	if err != nil {
		return fmt.Errorf("failed to touch fulfillment: %w", err)
	}
	if err := expectOne(result, appErrors.ErrFulfillmentNotFound); err != nil {
		return err
	}
	if err := insertMessage(ctx, tx, fulfillmentID, m); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *FulfillmentRepository) MarkMessagesRead(ctx context.Context, fulfillmentID string, byStaff bool) (int, error) {
	column := "user_id"
	if byStaff {
		column = "staff_id"
	}
	result, err := r.DB.ExecContext(ctx, fmt.Sprintf(`
		UPDATE fulfillment_messages SET status = $1
		WHERE fulfillment_id = $2 AND status = $3 AND %s IS NOT NULL
	`, column), model.MessageRead, fulfillmentID, model.MessageUnread)
	if err != nil {
		return 0, fmt.Errorf("failed to mark messages read: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(n), nil
}

func (r *FulfillmentRepository) DeleteByCampaign(ctx context.Context, campaignID string) (int, error) {
	result, err := r.DB.ExecContext(ctx, `DELETE FROM fulfillments WHERE campaign_id = $1`, campaignID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete fulfillments: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(n), nil
}

func (r *FulfillmentRepository) CampaignIDs(ctx context.Context) ([]string, error) {
	ids := []string{}
	if err := r.DB.SelectContext(ctx, &ids, `SELECT DISTINCT campaign_id FROM fulfillments ORDER BY campaign_id`); err != nil {
		return nil, fmt.Errorf("failed to list fulfillment campaigns: %w", err)
	}
	return ids, nil
}

func (r *FulfillmentRepository) CountByStatus(ctx context.Context, campaignID string) (map[model.FulfillmentStatus]int, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM fulfillments WHERE campaign_id = $1 GROUP BY status`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to count fulfillments: %w", err)
	}
	defer rows.Close()

	stats := map[model.FulfillmentStatus]int{
		model.FulfillmentPending:   0,
		model.FulfillmentCompleted: 0,
		model.FulfillmentFailed:    0,
	}
	for rows.Next() {
		var status model.FulfillmentStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

var _ FulfillmentRepositoryInterface = (*FulfillmentRepository)(nil)
