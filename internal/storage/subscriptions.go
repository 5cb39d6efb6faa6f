package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"subtrack/internal/core"
	"subtrack/internal/ports"
)

const subscriptionColumns = `id, user_id, name, amount_cents, currency, billing_cycle, status, category,
	folder_id, payment_method_id, start_date, next_billing_date, alert_days_before, url, notes,
	version, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscription(row rowScanner) (core.Subscription, error) {
	var (
		s                    core.Subscription
		cycle, status        string
		folderID, paymentID  sql.NullString
		start, next          string
		createdAt, updatedAt string
	)
	err := row.Scan(&s.ID, &s.UserID, &s.Name, &s.Amount.Cents, &s.Currency, &cycle, &status, &s.Category,
		&folderID, &paymentID, &start, &next, &s.AlertDaysBefore, &s.URL, &s.Notes,
		&s.Version, &createdAt, &updatedAt)
	if err != nil {
		return core.Subscription{}, err
	}
	s.Cycle = core.BillingCycle(cycle)
	s.Status = core.Status(status)
	s.FolderID = folderID.String
	s.PaymentMethodID = paymentID.String
	if s.StartDate, err = parseDate(start); err != nil {
		return core.Subscription{}, err
	}
	if s.NextBillingDate, err = parseDate(next); err != nil {
		return core.Subscription{}, err
	}
	s.CreatedAt = parseTime(createdAt)
	s.UpdatedAt = parseTime(updatedAt)
	return s, nil
}

// CreateSubscription implements ports.SubscriptionRepository.
func (r *SQLiteRepository) CreateSubscription(ctx context.Context, s core.Subscription) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	created, updated := r.stampOr(s.CreatedAt), r.stampOr(s.UpdatedAt)
	_, err = tx.ExecContext(ctx, `INSERT INTO subscriptions (`+subscriptionColumns+`, sync_status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.UserID, s.Name, s.Amount.Cents, s.Currency, string(s.Cycle), string(s.Status), s.Category,
		nullable(s.FolderID), nullable(s.PaymentMethodID), s.StartDate.Format(dateLayout),
		s.NextBillingDate.Format(dateLayout), s.AlertDaysBefore, s.URL, s.Notes,
		s.Version, created, updated, ports.SyncPending)
	if err != nil {
		return fmt.Errorf("insert subscription: %w", mapError(err))
	}

	if err := replaceTags(ctx, tx, s.ID, s.TagIDs); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit subscription: %w", err)
	}
	return nil
}

// UpdateSubscription implements ports.SubscriptionRepository.
func (r *SQLiteRepository) UpdateSubscription(ctx context.Context, s core.Subscription) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE subscriptions SET
		name = ?, amount_cents = ?, currency = ?, billing_cycle = ?, status = ?, category = ?,
		folder_id = ?, payment_method_id = ?, start_date = ?, next_billing_date = ?,
		alert_days_before = ?, url = ?, notes = ?, version = ?, updated_at = ?, sync_status = ?
		WHERE id = ? AND user_id = ? AND version = ?`,
		s.Name, s.Amount.Cents, s.Currency, string(s.Cycle), string(s.Status), s.Category,
		nullable(s.FolderID), nullable(s.PaymentMethodID), s.StartDate.Format(dateLayout),
		s.NextBillingDate.Format(dateLayout), s.AlertDaysBefore, s.URL, s.Notes, s.Version,
		r.stampOr(s.UpdatedAt), ports.SyncPending, s.ID, s.UserID, s.Version-1)
	if err != nil {
		return fmt.Errorf("update subscription: %w", mapError(err))
	}
	if err := requireAffected(res); err != nil {
		// distinguish a missing row from a stale version
		var stored int64
		lookup := tx.QueryRowContext(ctx,
			`SELECT version FROM subscriptions WHERE id = ? AND user_id = ?`, s.ID, s.UserID).Scan(&stored)
		if lookup == nil {
			err = ports.ErrConflict
		}
		return fmt.Errorf("update subscription %s: %w", s.ID, err)
	}

	if err := replaceTags(ctx, tx, s.ID, s.TagIDs); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit subscription: %w", err)
	}
	return nil
}

func replaceTags(ctx context.Context, tx *sql.Tx, subscriptionID string, tagIDs []string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM subscription_tags WHERE subscription_id = ?`, subscriptionID); err != nil {
		return fmt.Errorf("clear subscription tags: %w", err)
	}
	for _, tagID := range tagIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO subscription_tags (subscription_id, tag_id) VALUES (?, ?)`,
			subscriptionID, tagID); err != nil {
			return fmt.Errorf("tag subscription: %w", mapError(err))
		}
	}
	return nil
}

// GetSubscription implements ports.SubscriptionRepository.
func (r *SQLiteRepository) GetSubscription(ctx context.Context, userID, id string) (core.Subscription, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = ? AND user_id = ?`, id, userID)
	return r.loadOne(ctx, row, id)
}

// FindSubscription implements ports.SyncTracker.
func (r *SQLiteRepository) FindSubscription(ctx context.Context, id string) (core.Subscription, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = ?`, id)
	return r.loadOne(ctx, row, id)
}

func (r *SQLiteRepository) loadOne(ctx context.Context, row *sql.Row, id string) (core.Subscription, error) {
	s, err := scanSubscription(row)
	if err != nil {
		return core.Subscription{}, fmt.Errorf("get subscription %s: %w", id, mapError(err))
	}
	subs := []core.Subscription{s}
	if err := r.attachTags(ctx, subs); err != nil {
		return core.Subscription{}, err
	}
	return subs[0], nil
}

// DeleteSubscription implements ports.SubscriptionRepository.
func (r *SQLiteRepository) DeleteSubscription(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	if err := requireAffected(res); err != nil {
		return fmt.Errorf("delete subscription %s: %w", id, err)
	}
	return nil
}

// ListSubscriptions implements ports.SubscriptionRepository.
func (r *SQLiteRepository) ListSubscriptions(ctx context.Context, userID string, f ports.SubscriptionFilter) ([]core.Subscription, error) {
	var (
		where = []string{"user_id = ?"}
		args  = []any{userID}
	)
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.FolderID != "" {
		where = append(where, "folder_id = ?")
		args = append(args, f.FolderID)
	}
	if f.Category != "" {
		if f.Category == core.Uncategorized {
			where = append(where, "(category = '' OR category = ?)")
		} else {
			where = append(where, "category = ?")
		}
		args = append(args, f.Category)
	}
	if f.TagID != "" {
		where = append(where, "id IN (SELECT subscription_id FROM subscription_tags WHERE tag_id = ?)")
		args = append(args, f.TagID)
	}

	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE ` +
		strings.Join(where, " AND ") + ` ORDER BY next_billing_date, name`
	return r.query(ctx, query, args...)
}

// ListRenewals implements ports.SubscriptionRepository.
func (r *SQLiteRepository) ListRenewals(ctx context.Context, before time.Time) ([]core.Subscription, error) {
	return r.query(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions
		WHERE status = ? AND next_billing_date <= ? ORDER BY next_billing_date`,
		string(core.StatusActive), before.UTC().Format(dateLayout))
}

// ListPendingSync implements ports.SyncTracker.
func (r *SQLiteRepository) ListPendingSync(ctx context.Context, limit int) ([]core.Subscription, error) {
	if limit <= 0 {
		limit = 10
	}
	return r.query(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions
		WHERE sync_status = ? ORDER BY updated_at LIMIT ?`,
		ports.SyncPending, limit)
}

// MarkSynced implements ports.SyncTracker. Older versions never overwrite newer ones.
func (r *SQLiteRepository) MarkSynced(ctx context.Context, id string, version int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE subscriptions
		SET synced_version = ?, sync_status = CASE WHEN version <= ? THEN ? ELSE sync_status END
		WHERE id = ? AND synced_version <= ?`,
		version, version, ports.SyncSynced, id, version)
	if err != nil {
		return fmt.Errorf("mark subscription synced: %w", err)
	}
	return nil
}

// SyncedVersion implements ports.SyncTracker.
func (r *SQLiteRepository) SyncedVersion(ctx context.Context, id string) (int64, error) {
	var v int64
	err := r.db.QueryRowContext(ctx, `SELECT synced_version FROM subscriptions WHERE id = ?`, id).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("read synced version: %w", mapError(err))
	}
	return v, nil
}

// MarkSyncError implements ports.SyncTracker.
func (r *SQLiteRepository) MarkSyncError(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE subscriptions SET sync_status = ? WHERE id = ?`, ports.SyncError, id)
	if err != nil {
		return fmt.Errorf("mark subscription sync error: %w", err)
	}
	return nil
}

// ResetSyncErrors implements ports.SyncTracker.
func (r *SQLiteRepository) ResetSyncErrors(ctx context.Context) (int, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE subscriptions SET sync_status = ? WHERE sync_status = ?`,
		ports.SyncPending, ports.SyncError)
	if err != nil {
		return 0, fmt.Errorf("reset sync errors: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reset sync errors: %w", err)
	}
	return int(n), nil
}

func (r *SQLiteRepository) query(ctx context.Context, query string, args ...any) ([]core.Subscription, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query subscriptions: %w", err)
	}
	defer rows.Close()

	subs := make([]core.Subscription, 0)
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		subs = append(subs, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscriptions: %w", err)
	}
	rows.Close()

	if err := r.attachTags(ctx, subs); err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *SQLiteRepository) attachTags(ctx context.Context, subs []core.Subscription) error {
	if len(subs) == 0 {
		return nil
	}
	index := make(map[string]int, len(subs))
	placeholders := make([]string, len(subs))
	args := make([]any, len(subs))
	for i, s := range subs {
		index[s.ID] = i
		placeholders[i] = "?"
		args[i] = s.ID
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT subscription_id, tag_id FROM subscription_tags WHERE subscription_id IN (`+
			strings.Join(placeholders, ",")+`) ORDER BY tag_id`, args...)
	if err != nil {
		return fmt.Errorf("query subscription tags: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var subID, tagID string
		if err := rows.Scan(&subID, &tagID); err != nil {
			return fmt.Errorf("scan subscription tag: %w", err)
		}
		if i, ok := index[subID]; ok {
			subs[i].TagIDs = append(subs[i].TagIDs, tagID)
		}
	}
	return rows.Err()
}
