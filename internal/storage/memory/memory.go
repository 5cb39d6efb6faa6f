// Package memory is an in-process ports.Store for development and tests.
// Nothing survives a restart.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"subtrack/internal/core"
	"subtrack/internal/ports"
)

type subRecord struct {
	sub           core.Subscription
	syncStatus    string
	syncedVersion int64
}

type Store struct {
	mu       sync.Mutex
	users    map[string]core.User
	subs     map[string]*subRecord
	folders  map[string]core.Folder
	tags     map[string]core.Tag
	payments map[string]core.PaymentMethod
	alerts   map[string]struct{}
	now      func() time.Time
}

var _ ports.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		users:    make(map[string]core.User),
		subs:     make(map[string]*subRecord),
		folders:  make(map[string]core.Folder),
		tags:     make(map[string]core.Tag),
		payments: make(map[string]core.PaymentMethod),
		alerts:   make(map[string]struct{}),
		now:      time.Now,
	}
}

func (s *Store) Ping(context.Context) error { return nil }
func (s *Store) Close() error               { return nil }

func cloneSub(in core.Subscription) core.Subscription {
	out := in
	if in.TagIDs != nil {
		out.TagIDs = append([]string(nil), in.TagIDs...)
	}
	return out
}

func (s *Store) CreateUser(_ context.Context, u core.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u.Email = strings.ToLower(u.Email)
	if _, ok := s.users[u.ID]; ok {
		return ports.ErrConflict
	}
	for _, existing := range s.users {
		if existing.Email == u.Email {
			return ports.ErrConflict
		}
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.now()
	}
	s.users[u.ID] = u
	return nil
}

func (s *Store) GetUser(_ context.Context, id string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return core.User{}, ports.ErrNotFound
	}
	return u, nil
}

func (s *Store) UpdateUser(_ context.Context, u core.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.users[u.ID]
	if !ok {
		return ports.ErrNotFound
	}
	u.Email = strings.ToLower(u.Email)
	for id, other := range s.users {
		if id != u.ID && other.Email == u.Email {
			return ports.ErrConflict
		}
	}
	u.CreatedAt = existing.CreatedAt
	s.users[u.ID] = u
	return nil
}

func (s *Store) CreateSubscription(_ context.Context, sub core.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.subs[sub.ID]; ok {
		return ports.ErrConflict
	}
	if _, ok := s.users[sub.UserID]; !ok {
		return ports.ErrNotFound
	}
	now := s.now()
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = now
	}
	if sub.UpdatedAt.IsZero() {
		sub.UpdatedAt = now
	}
	s.subs[sub.ID] = &subRecord{sub: cloneSub(sub), syncStatus: ports.SyncPending}
	return nil
}

func (s *Store) UpdateSubscription(_ context.Context, sub core.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.subs[sub.ID]
	if !ok || rec.sub.UserID != sub.UserID {
		return ports.ErrNotFound
	}
	if rec.sub.Version != sub.Version-1 {
		return ports.ErrConflict
	}
	sub.CreatedAt = rec.sub.CreatedAt
	if sub.UpdatedAt.IsZero() {
		sub.UpdatedAt = s.now()
	}
	rec.sub = cloneSub(sub)
	rec.syncStatus = ports.SyncPending
	return nil
}

func (s *Store) GetSubscription(_ context.Context, userID, id string) (core.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.subs[id]
	if !ok || rec.sub.UserID != userID {
		return core.Subscription{}, ports.ErrNotFound
	}
	return cloneSub(rec.sub), nil
}

func (s *Store) FindSubscription(_ context.Context, id string) (core.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.subs[id]
	if !ok {
		return core.Subscription{}, ports.ErrNotFound
	}
	return cloneSub(rec.sub), nil
}

func (s *Store) DeleteSubscription(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.subs[id]
	if !ok || rec.sub.UserID != userID {
		return ports.ErrNotFound
	}
	delete(s.subs, id)
	for key := range s.alerts {
		if strings.HasPrefix(key, id+"|") {
			delete(s.alerts, key)
		}
	}
	return nil
}

// sortSubs orders like the SQLite backend: next billing date, then name.
func sortSubs(subs []core.Subscription) {
	sort.Slice(subs, func(i, j int) bool {
		if !subs[i].NextBillingDate.Equal(subs[j].NextBillingDate.Time) {
			return subs[i].NextBillingDate.Before(subs[j].NextBillingDate.Time)
		}
		return subs[i].Name < subs[j].Name
	})
}

func (s *Store) ListSubscriptions(_ context.Context, userID string, f ports.SubscriptionFilter) ([]core.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]core.Subscription, 0)
	for _, rec := range s.subs {
		if rec.sub.UserID == userID && f.Match(rec.sub) {
			out = append(out, cloneSub(rec.sub))
		}
	}
	sortSubs(out)
	return out, nil
}

func (s *Store) ListRenewals(_ context.Context, before time.Time) ([]core.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := core.DateOf(before)
	out := make([]core.Subscription, 0)
	for _, rec := range s.subs {
		if rec.sub.Status == core.StatusActive && !rec.sub.NextBillingDate.After(cutoff.Time) {
			out = append(out, cloneSub(rec.sub))
		}
	}
	sortSubs(out)
	return out, nil
}

func (s *Store) ListPendingSync(_ context.Context, limit int) ([]core.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = 10
	}
	recs := make([]*subRecord, 0)
	for _, rec := range s.subs {
		if rec.syncStatus == ports.SyncPending {
			recs = append(recs, rec)
		}
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].sub.UpdatedAt.Before(recs[j].sub.UpdatedAt) })
	if len(recs) > limit {
		recs = recs[:limit]
	}
	out := make([]core.Subscription, 0, len(recs))
	for _, rec := range recs {
		out = append(out, cloneSub(rec.sub))
	}
	return out, nil
}

func (s *Store) MarkSynced(_ context.Context, id string, version int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.subs[id]
	if !ok || rec.syncedVersion > version {
		return nil
	}
	rec.syncedVersion = version
	if rec.sub.Version <= version {
		rec.syncStatus = ports.SyncSynced
	}
	return nil
}

func (s *Store) SyncedVersion(_ context.Context, id string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.subs[id]
	if !ok {
		return 0, ports.ErrNotFound
	}
	return rec.syncedVersion, nil
}

func (s *Store) MarkSyncError(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.subs[id]; ok {
		rec.syncStatus = ports.SyncError
	}
	return nil
}

func (s *Store) ResetSyncErrors(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, rec := range s.subs {
		if rec.syncStatus == ports.SyncError {
			rec.syncStatus = ports.SyncPending
			n++
		}
	}
	return n, nil
}

func (s *Store) RecordAlert(_ context.Context, subscriptionID string, due core.Date) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := subscriptionID + "|" + due.String()
	if _, seen := s.alerts[key]; seen {
		return false, nil
	}
	s.alerts[key] = struct{}{}
	return true, nil
}
