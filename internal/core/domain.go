package core

import (
	"errors"
	"strings"
	"time"
)

const (
	Weekly    BillingCycle = "weekly"
	Monthly   BillingCycle = "monthly"
	Quarterly BillingCycle = "quarterly"
	Yearly    BillingCycle = "yearly"
)

const (
	StatusActive    Status = "active"
	StatusTrial     Status = "trial"
	StatusPaused    Status = "paused"
	StatusCancelled Status = "cancelled"
)

const (
	PaymentCard   PaymentKind = "card"
	PaymentBank   PaymentKind = "bank"
	PaymentPayPal PaymentKind = "paypal"
	PaymentOther  PaymentKind = "other"
)

// DefaultCurrency is used when a user has not picked a display currency.
const DefaultCurrency = "USD"

// Uncategorized is the bucket for subscriptions without a category.
const Uncategorized = "Uncategorized"

type (
	BillingCycle string
	Status       string
	PaymentKind  string

	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	// RateTable maps a currency code to units of that currency per one unit
	// of the table's base currency. The base maps to 1.0.
	RateTable map[string]float64

	User struct {
		ID              string
		Email           string
		Name            string
		DisplayCurrency string
		CreatedAt       time.Time
	}

	Subscription struct {
		ID              string
		UserID          string
		Name            string
		Amount          Money
		Currency        string
		Cycle           BillingCycle
		Status          Status
		Category        string // optional
		FolderID        string
		PaymentMethodID string
		TagIDs          []string
		StartDate       Date
		NextBillingDate Date
		AlertDaysBefore int
		URL             string
		Notes           string
		Version         int64
		CreatedAt       time.Time
		UpdatedAt       time.Time
	}

	Folder struct {
		ID     string
		UserID string
		Name   string
		Color  string
	}

	Tag struct {
		ID     string
		UserID string
		Name   string
		Color  string
	}

	PaymentMethod struct {
		ID     string
		UserID string
		Name   string
		Kind   PaymentKind
		Last4  string
	}
)

var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidCurrency = errors.New("invalid currency code")
	ErrInvalidCycle    = errors.New("invalid billing cycle")
	ErrInvalidStatus   = errors.New("invalid status")
	ErrEmptyName       = errors.New("empty name")
	ErrEmptyUser       = errors.New("missing user id")
	ErrInvalidEmail    = errors.New("invalid email")
	ErrInvalidKind     = errors.New("invalid payment method kind")
	ErrInvalidLast4    = errors.New("last4 must be exactly 4 digits")
)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to midnight UTC.
func DateOf(t time.Time) Date {
	t = t.UTC()
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

// IsEmpty returns true if the date is zero
func (d Date) IsEmpty() bool {
	return d.IsZero()
}

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	return nil
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format("2006-01-02")
}

func (m Money) Validate() error {
	if m.Cents < 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (c BillingCycle) IsValid() bool {
	switch c {
	case Weekly, Monthly, Quarterly, Yearly:
		return true
	}
	return false
}

func (s Status) IsValid() bool {
	switch s {
	case StatusActive, StatusTrial, StatusPaused, StatusCancelled:
		return true
	}
	return false
}

func (k PaymentKind) IsValid() bool {
	switch k {
	case PaymentCard, PaymentBank, PaymentPayPal, PaymentOther:
		return true
	}
	return false
}

// NormalizeCurrency upper-cases and trims a currency code.
func NormalizeCurrency(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidCurrency reports whether code looks like an ISO 4217 code.
func ValidCurrency(code string) bool {
	if len(code) != 3 {
		return false
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

// CategoryOrDefault returns the subscription category, or Uncategorized.
func (s Subscription) CategoryOrDefault() string {
	if c := strings.TrimSpace(s.Category); c != "" {
		return c
	}
	return Uncategorized
}

func (s Subscription) Validate() error {
	if strings.TrimSpace(s.UserID) == "" {
		return ErrEmptyUser
	}
	if len(strings.TrimSpace(s.Name)) == 0 {
		return ErrEmptyName
	}
	if len(s.Name) > 200 {
		return errors.New("name too long (max 200 characters)")
	}
	if err := s.Amount.Validate(); err != nil {
		return err
	}
	if !ValidCurrency(s.Currency) {
		return ErrInvalidCurrency
	}
	if !s.Cycle.IsValid() {
		return ErrInvalidCycle
	}
	if !s.Status.IsValid() {
		return ErrInvalidStatus
	}
	if err := s.StartDate.Validate(); err != nil {
		return errors.New("invalid start date: " + err.Error())
	}
	if err := s.NextBillingDate.Validate(); err != nil {
		return errors.New("invalid next billing date: " + err.Error())
	}
	if s.NextBillingDate.Before(s.StartDate.Time) {
		return errors.New("next billing date must not be before start date")
	}
	if s.AlertDaysBefore < 0 || s.AlertDaysBefore > 60 {
		return errors.New("alert days must be between 0 and 60")
	}
	if len(s.Category) > 100 {
		return errors.New("category too long (max 100 characters)")
	}
	if len(s.Notes) > 2000 {
		return errors.New("notes too long (max 2000 characters)")
	}
	return nil
}

func (u User) Validate() error {
	email := strings.TrimSpace(u.Email)
	at := strings.IndexByte(email, '@')
	if at < 1 || at == len(email)-1 || strings.ContainsAny(email, " \t") {
		return ErrInvalidEmail
	}
	if u.DisplayCurrency != "" && !ValidCurrency(u.DisplayCurrency) {
		return ErrInvalidCurrency
	}
	return nil
}

// Currency returns the user's display currency, falling back to fallback
// and then DefaultCurrency.
func (u User) Currency(fallback string) string {
	if u.DisplayCurrency != "" {
		return u.DisplayCurrency
	}
	if fallback != "" {
		return fallback
	}
	return DefaultCurrency
}

func (f Folder) Validate() error {
	if strings.TrimSpace(f.UserID) == "" {
		return ErrEmptyUser
	}
	if strings.TrimSpace(f.Name) == "" {
		return ErrEmptyName
	}
	if len(f.Name) > 100 {
		return errors.New("folder name too long (max 100 characters)")
	}
	return nil
}

func (t Tag) Validate() error {
	if strings.TrimSpace(t.UserID) == "" {
		return ErrEmptyUser
	}
	if strings.TrimSpace(t.Name) == "" {
		return ErrEmptyName
	}
	if len(t.Name) > 50 {
		return errors.New("tag name too long (max 50 characters)")
	}
	return nil
}

func (p PaymentMethod) Validate() error {
	if strings.TrimSpace(p.UserID) == "" {
		return ErrEmptyUser
	}
	if strings.TrimSpace(p.Name) == "" {
		return ErrEmptyName
	}
	if !p.Kind.IsValid() {
		return ErrInvalidKind
	}
	if p.Last4 != "" {
		if len(p.Last4) != 4 {
			return ErrInvalidLast4
		}
		for _, r := range p.Last4 {
			if r < '0' || r > '9' {
				return ErrInvalidLast4
			}
		}
	}
	return nil
}
