// Package ports declares the storage and outbound interfaces the services
// depend on. Adapters live in storage, storage/memory and sheets/google.
package ports

import (
	"context"
	"errors"
	"time"

	"subtrack/internal/core"
)

var (
	// ErrNotFound is returned when a record does not exist or belongs to another user.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned on unique-constraint violations and stale versions.
	ErrConflict = errors.New("conflict")
)

// SubscriptionFilter narrows ListSubscriptions. Zero fields match everything.
type SubscriptionFilter struct {
	Status   core.Status
	FolderID string
	TagID    string
	Category string
}

// Match reports whether s passes the filter.
func (f SubscriptionFilter) Match(s core.Subscription) bool {
	if f.Status != "" && s.Status != f.Status {
		return false
	}
	if f.FolderID != "" && s.FolderID != f.FolderID {
		return false
	}
	if f.Category != "" && s.CategoryOrDefault() != f.Category {
		return false
	}
	if f.TagID != "" {
		for _, id := range s.TagIDs {
			if id == f.TagID {
				return true
			}
		}
		return false
	}
	return true
}

// Sync states for the spreadsheet mirror.
const (
	SyncPending = "pending"
	SyncSynced  = "synced"
	SyncError   = "error"
)

// Ports for outbound adapters.
type (
	UserRepository interface {
		CreateUser(ctx context.Context, u core.User) error
		GetUser(ctx context.Context, id string) (core.User, error)
		UpdateUser(ctx context.Context, u core.User) error
	}

	SubscriptionRepository interface {
		CreateSubscription(ctx context.Context, s core.Subscription) error
		// GetSubscription is scoped to userID; other users' records are ErrNotFound.
		GetSubscription(ctx context.Context, userID, id string) (core.Subscription, error)
		// UpdateSubscription writes s only if the stored version is s.Version-1,
		// otherwise it returns ErrConflict.
		UpdateSubscription(ctx context.Context, s core.Subscription) error
		DeleteSubscription(ctx context.Context, userID, id string) error
		ListSubscriptions(ctx context.Context, userID string, f SubscriptionFilter) ([]core.Subscription, error)
		// ListRenewals returns active subscriptions of every user billing on or before the given time.
		ListRenewals(ctx context.Context, before time.Time) ([]core.Subscription, error)
	}

	FolderRepository interface {
		CreateFolder(ctx context.Context, f core.Folder) error
		ListFolders(ctx context.Context, userID string) ([]core.Folder, error)
		DeleteFolder(ctx context.Context, userID, id string) error
	}

	TagRepository interface {
		CreateTag(ctx context.Context, t core.Tag) error
		ListTags(ctx context.Context, userID string) ([]core.Tag, error)
		DeleteTag(ctx context.Context, userID, id string) error
	}

	PaymentMethodRepository interface {
		CreatePaymentMethod(ctx context.Context, p core.PaymentMethod) error
		ListPaymentMethods(ctx context.Context, userID string) ([]core.PaymentMethod, error)
		DeletePaymentMethod(ctx context.Context, userID, id string) error
	}

	// AlertLog remembers which renewal alerts were already sent.
	AlertLog interface {
		// RecordAlert returns false when an alert for this subscription and
		// due date was recorded before.
		RecordAlert(ctx context.Context, subscriptionID string, due core.Date) (bool, error)
	}

	// SyncTracker tracks which subscriptions still need mirroring to the sheet.
	SyncTracker interface {
		// FindSubscription looks a subscription up by id alone.
		FindSubscription(ctx context.Context, id string) (core.Subscription, error)
		// ListPendingSync returns rows waiting to be mirrored, oldest change first.
		// Rows marked as failed are skipped until ResetSyncErrors.
		ListPendingSync(ctx context.Context, limit int) ([]core.Subscription, error)
		// SyncedVersion is the newest version already in the sheet, 0 if none.
		SyncedVersion(ctx context.Context, id string) (int64, error)
		MarkSynced(ctx context.Context, id string, version int64) error
		MarkSyncError(ctx context.Context, id string) error
		ResetSyncErrors(ctx context.Context) (int, error)
	}

	// Store is everything a storage backend provides.
	Store interface {
		UserRepository
		SubscriptionRepository
		FolderRepository
		TagRepository
		PaymentMethodRepository
		AlertLog
		SyncTracker
		Ping(ctx context.Context) error
		Close() error
	}

	// SheetExporter mirrors subscriptions into a spreadsheet.
	SheetExporter interface {
		Upsert(ctx context.Context, s core.Subscription) (rowRef string, err error)
		Remove(ctx context.Context, id string) error
	}
)
