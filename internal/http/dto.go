package http

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"subtrack/internal/core"
	"subtrack/internal/services"
)

const dateLayout = "2006-01-02"

// subscriptionRequest is the body of POST and PUT /api/subscriptions.
// Amount accepts a JSON number or a decimal string.
type subscriptionRequest struct {
	Name            string           `json:"name"`
	Amount          *decimal.Decimal `json:"amount"`
	Currency        string           `json:"currency"`
	BillingCycle    string           `json:"billingCycle"`
	Status          string           `json:"status"`
	Category        string           `json:"category"`
	FolderID        string           `json:"folderId"`
	PaymentMethodID string           `json:"paymentMethodId"`
	TagIDs          []string         `json:"tagIds"`
	StartDate       string           `json:"startDate"`
	NextBillingDate string           `json:"nextBillingDate"`
	AlertDaysBefore int              `json:"alertDaysBefore"`
	URL             string           `json:"url"`
	Notes           string           `json:"notes"`
}

func parseOptionalDate(field, s string) (core.Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return core.Date{}, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return core.Date{}, fmt.Errorf("%s must be YYYY-MM-DD", field)
	}
	return core.DateOf(t), nil
}

// toSubscription converts the request. Problems come back as validation
// errors so they map to 422.
func (req subscriptionRequest) toSubscription(userID string) (core.Subscription, error) {
	if req.Amount == nil {
		return core.Subscription{}, &services.ValidationError{Err: errors.New("amount is required")}
	}
	amount, err := core.ParseAmount(req.Amount.String())
	if err != nil {
		return core.Subscription{}, &services.ValidationError{Err: err}
	}
	start, err := parseOptionalDate("startDate", req.StartDate)
	if err != nil {
		return core.Subscription{}, &services.ValidationError{Err: err}
	}
	next, err := parseOptionalDate("nextBillingDate", req.NextBillingDate)
	if err != nil {
		return core.Subscription{}, &services.ValidationError{Err: err}
	}
	if req.AlertDaysBefore < 0 {
		return core.Subscription{}, &services.ValidationError{Err: errors.New("alertDaysBefore must not be negative")}
	}

	return core.Subscription{
		UserID:          userID,
		Name:            req.Name,
		Amount:          amount,
		Currency:        req.Currency,
		Cycle:           core.BillingCycle(strings.ToLower(strings.TrimSpace(req.BillingCycle))),
		Status:          core.Status(strings.ToLower(strings.TrimSpace(req.Status))),
		Category:        strings.TrimSpace(req.Category),
		FolderID:        strings.TrimSpace(req.FolderID),
		PaymentMethodID: strings.TrimSpace(req.PaymentMethodID),
		TagIDs:          req.TagIDs,
		StartDate:       start,
		NextBillingDate: next,
		AlertDaysBefore: req.AlertDaysBefore,
		URL:             strings.TrimSpace(req.URL),
		Notes:           req.Notes,
	}, nil
}

type subscriptionResponse struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Amount          string   `json:"amount"`
	Currency        string   `json:"currency"`
	BillingCycle    string   `json:"billingCycle"`
	Status          string   `json:"status"`
	Category        string   `json:"category"`
	FolderID        string   `json:"folderId,omitempty"`
	PaymentMethodID string   `json:"paymentMethodId,omitempty"`
	TagIDs          []string `json:"tagIds"`
	StartDate       string   `json:"startDate"`
	NextBillingDate string   `json:"nextBillingDate"`
	AlertDaysBefore int      `json:"alertDaysBefore"`
	URL             string   `json:"url,omitempty"`
	Notes           string   `json:"notes,omitempty"`
	Version         int64    `json:"version"`
	CreatedAt       string   `json:"createdAt"`
	UpdatedAt       string   `json:"updatedAt"`
}

func newSubscriptionResponse(s core.Subscription) subscriptionResponse {
	tags := s.TagIDs
	if tags == nil {
		tags = []string{}
	}
	return subscriptionResponse{
		ID:              s.ID,
		Name:            s.Name,
		Amount:          s.Amount.String(),
		Currency:        s.Currency,
		BillingCycle:    string(s.Cycle),
		Status:          string(s.Status),
		Category:        s.CategoryOrDefault(),
		FolderID:        s.FolderID,
		PaymentMethodID: s.PaymentMethodID,
		TagIDs:          tags,
		StartDate:       s.StartDate.String(),
		NextBillingDate: s.NextBillingDate.String(),
		AlertDaysBefore: s.AlertDaysBefore,
		URL:             s.URL,
		Notes:           s.Notes,
		Version:         s.Version,
		CreatedAt:       formatTime(s.CreatedAt),
		UpdatedAt:       formatTime(s.UpdatedAt),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

type userRequest struct {
	Email           string `json:"email"`
	Name            string `json:"name"`
	DisplayCurrency string `json:"displayCurrency"`
}

type userPatchRequest struct {
	Name            *string `json:"name"`
	DisplayCurrency *string `json:"displayCurrency"`
}

type userResponse struct {
	ID              string `json:"id"`
	Email           string `json:"email"`
	Name            string `json:"name"`
	DisplayCurrency string `json:"displayCurrency"`
	CreatedAt       string `json:"createdAt"`
}

func newUserResponse(u core.User, defaultCurrency string) userResponse {
	return userResponse{
		ID:              u.ID,
		Email:           u.Email,
		Name:            u.Name,
		DisplayCurrency: u.Currency(defaultCurrency),
		CreatedAt:       formatTime(u.CreatedAt),
	}
}

// labelRequest covers folders and tags.
type labelRequest struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

type labelResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

type paymentMethodRequest struct {
	Name  string `json:"name"`
	Kind  string `json:"kind"`
	Last4 string `json:"last4"`
}

type paymentMethodResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Kind  string `json:"kind"`
	Last4 string `json:"last4,omitempty"`
}

func folderResponses(in []core.Folder) []labelResponse {
	out := make([]labelResponse, 0, len(in))
	for _, f := range in {
		out = append(out, labelResponse{ID: f.ID, Name: f.Name, Color: f.Color})
	}
	return out
}

func tagResponses(in []core.Tag) []labelResponse {
	out := make([]labelResponse, 0, len(in))
	for _, t := range in {
		out = append(out, labelResponse{ID: t.ID, Name: t.Name, Color: t.Color})
	}
	return out
}

func paymentMethodResponses(in []core.PaymentMethod) []paymentMethodResponse {
	out := make([]paymentMethodResponse, 0, len(in))
	for _, p := range in {
		out = append(out, paymentMethodResponse{ID: p.ID, Name: p.Name, Kind: string(p.Kind), Last4: p.Last4})
	}
	return out
}
