package identity

import (
	"context"
	"fmt"
	"regexp"

	"github.com/google/uuid"

	"github.com/stewardhq/steward/internal/shared"
)

var (
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]{3,20}$`)
	emailPattern    = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

// ActionUpdatePassword is the provider's required action for the
// forgot-password email flow.
const ActionUpdatePassword = "UPDATE_PASSWORD"

// Provider is the identity-provider contract the service depends on.
type Provider interface {
	UsersByUsername(ctx context.Context, username string) ([]User, error)
	UsersByEmail(ctx context.Context, email string) ([]User, error)
	ResetPassword(ctx context.Context, userID, password string, temporary bool) error
	SendActionsEmail(ctx context.Context, userID string, actions []string) error
}

// Availability reports whether a username or email is free to use.
type Availability struct {
	Available bool   `json:"available"`
	Reason    string `json:"reason,omitempty"`
}

// Service implements the user-account operations the console delegates to
// the identity provider.
type Service struct {
	provider Provider
}

// NewService builds a Service instance.
func NewService(provider Provider) *Service {
	return &Service{provider: provider}
}

// CheckUsername reports whether the username is free. A match whose id
// equals excludeUserID is ignored, so an edit form can confirm the current
// owner still holds the name. Format is validated before any external call.
func (s *Service) CheckUsername(ctx context.Context, username, excludeUserID string) (Availability, error) {
	if !usernamePattern.MatchString(username) {
		return Availability{}, fmt.Errorf("%w: username must be 3-20 characters of letters, digits, or underscores", shared.ErrValidation)
	}
	if err := validateExcludeID(excludeUserID); err != nil {
		return Availability{}, err
	}
	users, err := s.provider.UsersByUsername(ctx, username)
	if err != nil {
		return Availability{}, err
	}
	if taken(users, excludeUserID) {
		return Availability{Available: false, Reason: "Username already exists"}, nil
	}
	return Availability{Available: true}, nil
}

// CheckEmail reports whether the email is free, with the same exclusion
// semantics as CheckUsername.
func (s *Service) CheckEmail(ctx context.Context, email, excludeUserID string) (Availability, error) {
	if !emailPattern.MatchString(email) {
		return Availability{}, fmt.Errorf("%w: email address is malformed", shared.ErrValidation)
	}
	if err := validateExcludeID(excludeUserID); err != nil {
		return Availability{}, err
	}
	users, err := s.provider.UsersByEmail(ctx, email)
	if err != nil {
		return Availability{}, err
	}
	if taken(users, excludeUserID) {
		return Availability{Available: false, Reason: "Email already exists"}, nil
	}
	return Availability{Available: true}, nil
}

// ResetPassword replaces the user's credential at the provider.
func (s *Service) ResetPassword(ctx context.Context, userID, password string, temporary bool) error {
	if _, err := uuid.Parse(userID); err != nil {
		return fmt.Errorf("%w: user id must be a UUID", shared.ErrValidation)
	}
	if len(password) < 8 {
		return fmt.Errorf("%w: password must be at least 8 characters", shared.ErrValidation)
	}
	return s.provider.ResetPassword(ctx, userID, password, temporary)
}

// SendForgotPassword looks the user up by username and asks the provider to
// send an UPDATE_PASSWORD required-actions email.
func (s *Service) SendForgotPassword(ctx context.Context, username string) error {
	if !usernamePattern.MatchString(username) {
		return fmt.Errorf("%w: username must be 3-20 characters of letters, digits, or underscores", shared.ErrValidation)
	}
	users, err := s.provider.UsersByUsername(ctx, username)
	if err != nil {
		return err
	}
	if len(users) == 0 {
		return fmt.Errorf("%w: user %q", shared.ErrNotFound, username)
	}
	return s.provider.SendActionsEmail(ctx, users[0].ID, []string{ActionUpdatePassword})
}

func validateExcludeID(excludeUserID string) error {
	if excludeUserID == "" {
		return nil
	}
	if _, err := uuid.Parse(excludeUserID); err != nil {
		return fmt.Errorf("%w: excludeUserId must be a UUID", shared.ErrValidation)
	}
	return nil
}

func taken(users []User, excludeUserID string) bool {
	for _, u := range users {
		if excludeUserID == "" || u.ID != excludeUserID {
			return true
		}
	}
	return false
}
