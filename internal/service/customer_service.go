package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"storefront/internal/models"
	"storefront/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CustomerService resolves checkout customers by email
type CustomerService struct {
	store  CustomerStore
	logger *zap.Logger
}

// NewCustomerService creates a new customer service
func NewCustomerService(store CustomerStore) *CustomerService {
	return &CustomerService{store: store, logger: util.GetLogger()}
}

// ResolveCustomerRequest carries the contact details entered at checkout
type ResolveCustomerRequest struct {
	Name    string  `json:"name"`
	Email   string  `json:"email"`
	Phone   *string `json:"phone,omitempty"`
	Address *string `json:"address,omitempty"`
}

// ResolveCustomer returns the customer registered under the email, creating
// one if none exists. The bool reports whether a customer was created.
func (s *CustomerService) ResolveCustomer(ctx context.Context, req *ResolveCustomerRequest) (*models.Customer, bool, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, false, err
	}

	existing, err := s.store.GetCustomerByEmail(ctx, email)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, models.ErrCustomerNotFound) {
		return nil, false, fmt.Errorf("failed to look up customer: %w", err)
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, false, models.NewValidationError("name is required for new customers")
	}

	customer := &models.Customer{
		ID:      uuid.New().String(),
		Name:    name,
		Email:   email,
		Phone:   trimOptional(req.Phone),
		Address: trimOptional(req.Address),
	}

	if err := s.store.CreateCustomer(ctx, customer); err != nil {
		if errors.Is(err, models.ErrCustomerExists) {
			// lost a race with a concurrent checkout for the same email
			existing, err := s.store.GetCustomerByEmail(ctx, email)
			if err != nil {
				return nil, false, fmt.Errorf("failed to look up customer: %w", err)
			}
			return existing, false, nil
		}
		return nil, false, fmt.Errorf("failed to create customer: %w", err)
	}

	s.logger.Info("Customer created", zap.String("customer_id", customer.ID))
	return customer, true, nil
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", models.NewValidationError("email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", models.NewValidationError(fmt.Sprintf("invalid email %q", raw))
	}
	return email, nil
}

func trimOptional(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
