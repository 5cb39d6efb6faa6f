package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"subtrack/internal/core"
	"subtrack/internal/ports"
)

// CatalogStore is what UserService and CatalogService persist to.
type CatalogStore interface {
	ports.UserRepository
	ports.FolderRepository
	ports.TagRepository
	ports.PaymentMethodRepository
}

// UserService manages user profiles.
type UserService struct {
	store ports.UserRepository
	now   func() time.Time
}

func NewUserService(store ports.UserRepository) *UserService {
	return &UserService{store: store, now: time.Now}
}

// Register creates a user. An empty display currency stays empty so the
// configured default applies.
func (s *UserService) Register(ctx context.Context, email, name, displayCurrency string) (core.User, error) {
	u := core.User{
		ID:              uuid.NewString(),
		Email:           strings.ToLower(strings.TrimSpace(email)),
		Name:            strings.TrimSpace(name),
		DisplayCurrency: core.NormalizeCurrency(displayCurrency),
		CreatedAt:       s.now().UTC(),
	}
	if err := u.Validate(); err != nil {
		return core.User{}, invalid(err)
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return core.User{}, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

func (s *UserService) Get(ctx context.Context, id string) (core.User, error) {
	u, err := s.store.GetUser(ctx, id)
	if err != nil {
		return core.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// UserPatch holds optional profile changes; nil fields are left alone.
type UserPatch struct {
	Name            *string
	DisplayCurrency *string
}

func (s *UserService) Update(ctx context.Context, id string, patch UserPatch) (core.User, error) {
	u, err := s.store.GetUser(ctx, id)
	if err != nil {
		return core.User{}, fmt.Errorf("get user: %w", err)
	}
	if patch.Name != nil {
		u.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.DisplayCurrency != nil {
		u.DisplayCurrency = core.NormalizeCurrency(*patch.DisplayCurrency)
	}
	if err := u.Validate(); err != nil {
		return core.User{}, invalid(err)
	}
	if err := s.store.UpdateUser(ctx, u); err != nil {
		return core.User{}, fmt.Errorf("update user: %w", err)
	}
	return u, nil
}

// CatalogService manages folders, tags and payment methods.
type CatalogService struct {
	store CatalogStore
}

func NewCatalogService(store CatalogStore) *CatalogService {
	return &CatalogService{store: store}
}

func (s *CatalogService) CreateFolder(ctx context.Context, f core.Folder) (core.Folder, error) {
	f.ID = uuid.NewString()
	f.Name = strings.TrimSpace(f.Name)
	if err := f.Validate(); err != nil {
		return core.Folder{}, invalid(err)
	}
	if err := s.store.CreateFolder(ctx, f); err != nil {
		return core.Folder{}, fmt.Errorf("create folder: %w", err)
	}
	return f, nil
}

func (s *CatalogService) ListFolders(ctx context.Context, userID string) ([]core.Folder, error) {
	return s.store.ListFolders(ctx, userID)
}

func (s *CatalogService) DeleteFolder(ctx context.Context, userID, id string) error {
	if err := s.store.DeleteFolder(ctx, userID, id); err != nil {
		return fmt.Errorf("delete folder: %w", err)
	}
	return nil
}

func (s *CatalogService) CreateTag(ctx context.Context, t core.Tag) (core.Tag, error) {
	t.ID = uuid.NewString()
	t.Name = strings.TrimSpace(t.Name)
	if err := t.Validate(); err != nil {
		return core.Tag{}, invalid(err)
	}
	if err := s.store.CreateTag(ctx, t); err != nil {
		return core.Tag{}, fmt.Errorf("create tag: %w", err)
	}
	return t, nil
}

func (s *CatalogService) ListTags(ctx context.Context, userID string) ([]core.Tag, error) {
	return s.store.ListTags(ctx, userID)
}

func (s *CatalogService) DeleteTag(ctx context.Context, userID, id string) error {
	if err := s.store.DeleteTag(ctx, userID, id); err != nil {
		return fmt.Errorf("delete tag: %w", err)
	}
	return nil
}

func (s *CatalogService) CreatePaymentMethod(ctx context.Context, p core.PaymentMethod) (core.PaymentMethod, error) {
	p.ID = uuid.NewString()
	p.Name = strings.TrimSpace(p.Name)
	if p.Kind == "" {
		p.Kind = core.PaymentOther
	}
	if err := p.Validate(); err != nil {
		return core.PaymentMethod{}, invalid(err)
	}
	if err := s.store.CreatePaymentMethod(ctx, p); err != nil {
		return core.PaymentMethod{}, fmt.Errorf("create payment method: %w", err)
	}
	return p, nil
}

func (s *CatalogService) ListPaymentMethods(ctx context.Context, userID string) ([]core.PaymentMethod, error) {
	return s.store.ListPaymentMethods(ctx, userID)
}

func (s *CatalogService) DeletePaymentMethod(ctx context.Context, userID, id string) error {
	if err := s.store.DeletePaymentMethod(ctx, userID, id); err != nil {
		return fmt.Errorf("delete payment method: %w", err)
	}
	return nil
}
