package memory

import (
	"context"
	"sort"
	"strings"

	"subtrack/internal/core"
	"subtrack/internal/ports"
)

func sameName(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

func (s *Store) CreateFolder(_ context.Context, f core.Folder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[f.UserID]; !ok {
		return ports.ErrNotFound
	}
	if _, dup := s.folders[f.ID]; dup {
		return ports.ErrConflict
	}
	for _, existing := range s.folders {
		if existing.UserID == f.UserID && sameName(existing.Name, f.Name) {
			return ports.ErrConflict
		}
	}
	s.folders[f.ID] = f
	return nil
}

func (s *Store) ListFolders(_ context.Context, userID string) ([]core.Folder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]core.Folder, 0)
	for _, f := range s.folders {
		if f.UserID == userID {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) DeleteFolder(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.folders[id]
	if !ok || f.UserID != userID {
		return ports.ErrNotFound
	}
	delete(s.folders, id)
	for _, rec := range s.subs {
		if rec.sub.FolderID == id {
			rec.sub.FolderID = ""
		}
	}
	return nil
}

func (s *Store) CreateTag(_ context.Context, t core.Tag) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[t.UserID]; !ok {
		return ports.ErrNotFound
	}
	if _, dup := s.tags[t.ID]; dup {
		return ports.ErrConflict
	}
	for _, existing := range s.tags {
		if existing.UserID == t.UserID && sameName(existing.Name, t.Name) {
			return ports.ErrConflict
		}
	}
	s.tags[t.ID] = t
	return nil
}

func (s *Store) ListTags(_ context.Context, userID string) ([]core.Tag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]core.Tag, 0)
	for _, t := range s.tags {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) DeleteTag(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tags[id]
	if !ok || t.UserID != userID {
		return ports.ErrNotFound
	}
	delete(s.tags, id)
	for _, rec := range s.subs {
		kept := rec.sub.TagIDs[:0]
		for _, tagID := range rec.sub.TagIDs {
			if tagID != id {
				kept = append(kept, tagID)
			}
		}
		rec.sub.TagIDs = kept
	}
	return nil
}

func (s *Store) CreatePaymentMethod(_ context.Context, p core.PaymentMethod) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[p.UserID]; !ok {
		return ports.ErrNotFound
	}
	if _, dup := s.payments[p.ID]; dup {
		return ports.ErrConflict
	}
	s.payments[p.ID] = p
	return nil
}

func (s *Store) ListPaymentMethods(_ context.Context, userID string) ([]core.PaymentMethod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]core.PaymentMethod, 0)
	for _, p := range s.payments {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) DeletePaymentMethod(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.payments[id]
	if !ok || p.UserID != userID {
		return ports.ErrNotFound
	}
	delete(s.payments, id)
	for _, rec := range s.subs {
		if rec.sub.PaymentMethodID == id {
			rec.sub.PaymentMethodID = ""
		}
	}
	return nil
}
