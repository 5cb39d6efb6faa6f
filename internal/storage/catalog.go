package storage

import (
	"context"
	"fmt"

	"subtrack/internal/core"
)

// CreateFolder implements ports.FolderRepository.
func (r *SQLiteRepository) CreateFolder(ctx context.Context, f core.Folder) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO folders (id, user_id, name, color) VALUES (?, ?, ?, ?)`,
		f.ID, f.UserID, f.Name, f.Color)
	if err != nil {
		return fmt.Errorf("insert folder: %w", mapError(err))
	}
	return nil
}

// ListFolders implements ports.FolderRepository.
func (r *SQLiteRepository) ListFolders(ctx context.Context, userID string) ([]core.Folder, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, name, color FROM folders WHERE user_id = ? ORDER BY name`, userID)
	if err != nil {
		return nil, fmt.Errorf("query folders: %w", err)
	}
	defer rows.Close()

	out := make([]core.Folder, 0)
	for rows.Next() {
		var f core.Folder
		if err := rows.Scan(&f.ID, &f.UserID, &f.Name, &f.Color); err != nil {
			return nil, fmt.Errorf("scan folder: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// DeleteFolder implements ports.FolderRepository. Subscriptions in the
// folder are kept and lose their folder.
func (r *SQLiteRepository) DeleteFolder(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM folders WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete folder: %w", err)
	}
	if err := requireAffected(res); err != nil {
		return fmt.Errorf("delete folder %s: %w", id, err)
	}
	return nil
}

// CreateTag implements ports.TagRepository.
func (r *SQLiteRepository) CreateTag(ctx context.Context, t core.Tag) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO tags (id, user_id, name, color) VALUES (?, ?, ?, ?)`,
		t.ID, t.UserID, t.Name, t.Color)
	if err != nil {
		return fmt.Errorf("insert tag: %w", mapError(err))
	}
	return nil
}

// ListTags implements ports.TagRepository.
func (r *SQLiteRepository) ListTags(ctx context.Context, userID string) ([]core.Tag, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, name, color FROM tags WHERE user_id = ? ORDER BY name`, userID)
	if err != nil {
		return nil, fmt.Errorf("query tags: %w", err)
	}
	defer rows.Close()

	out := make([]core.Tag, 0)
	for rows.Next() {
		var t core.Tag
		if err := rows.Scan(&t.ID, &t.UserID, &t.Name, &t.Color); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// DeleteTag implements ports.TagRepository.
func (r *SQLiteRepository) DeleteTag(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM tags WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete tag: %w", err)
	}
	if err := requireAffected(res); err != nil {
		return fmt.Errorf("delete tag %s: %w", id, err)
	}
	return nil
}

// CreatePaymentMethod implements ports.PaymentMethodRepository.
func (r *SQLiteRepository) CreatePaymentMethod(ctx context.Context, p core.PaymentMethod) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO payment_methods (id, user_id, name, kind, last4) VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.UserID, p.Name, string(p.Kind), p.Last4)
	if err != nil {
		return fmt.Errorf("insert payment method: %w", mapError(err))
	}
	return nil
}

// ListPaymentMethods implements ports.PaymentMethodRepository.
func (r *SQLiteRepository) ListPaymentMethods(ctx context.Context, userID string) ([]core.PaymentMethod, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, name, kind, last4 FROM payment_methods WHERE user_id = ? ORDER BY name`, userID)
	if err != nil {
		return nil, fmt.Errorf("query payment methods: %w", err)
	}
	defer rows.Close()

	out := make([]core.PaymentMethod, 0)
	for rows.Next() {
		var (
			p    core.PaymentMethod
			kind string
		)
		if err := rows.Scan(&p.ID, &p.UserID, &p.Name, &kind, &p.Last4); err != nil {
			return nil, fmt.Errorf("scan payment method: %w", err)
		}
		p.Kind = core.PaymentKind(kind)
		out = append(out, p)
	}
	return out, rows.Err()
}

// DeletePaymentMethod implements ports.PaymentMethodRepository.
func (r *SQLiteRepository) DeletePaymentMethod(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM payment_methods WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete payment method: %w", err)
	}
	if err := requireAffected(res); err != nil {
		return fmt.Errorf("delete payment method %s: %w", id, err)
	}
	return nil
}

// RecordAlert implements ports.AlertLog.
func (r *SQLiteRepository) RecordAlert(ctx context.Context, subscriptionID string, due core.Date) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO renewal_alerts (subscription_id, due_date, sent_at) VALUES (?, ?, ?)`,
		subscriptionID, due.Format(dateLayout), r.stamp())
	if err != nil {
		return false, fmt.Errorf("record renewal alert: %w", mapError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record renewal alert: %w", err)
	}
	return n == 1, nil
}
