package users

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/echonote/backend/internal/auth"
)

const providerGoogle = "google"

var (
	// ErrInvalidIdentity indicates the claims did not contain a usable identifier.
	ErrInvalidIdentity = errors.New("users: invalid identity")
	// ErrIdentityNotFound indicates no stored identity matches the user id.
	ErrIdentityNotFound = errors.New("users: identity not found")
)

// ServiceConfig describes the dependencies required for user identity resolution.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
}

// Service manages stored identities for verified Google accounts.
type Service struct {
	db    *gorm.DB
	now   func() time.Time
	cache sync.Map
}

// NewService constructs the identity service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		db:  cfg.Database,
		now: clock,
	}, nil
}

// ResolveIdentity upserts the identity for verified Google claims and returns it.
// The Google subject becomes the stable user id; profile fields refresh on each login.
func (s *Service) ResolveIdentity(claims auth.GoogleClaims) (Identity, error) {
	subject := normalize(claims.Subject)
	if subject == "" {
		return Identity{}, ErrInvalidIdentity
	}

	cacheKey := providerGoogle + ":" + subject
	if cached, ok := s.cache.Load(cacheKey); ok {
		if identity, ok := cached.(Identity); ok && identityMatchesClaims(identity, claims) {
			return identity, nil
		}
	}

	var identity Identity
	err := s.db.
		Where("provider = ? AND subject = ?", providerGoogle, subject).
		First(&identity).
		Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		identity = Identity{
			Provider:    providerGoogle,
			Subject:     subject,
			UserID:      subject,
			Email:       normalize(claims.Email),
			DisplayName: normalize(claims.Name),
			LastSeenAt:  s.now(),
		}
		if err := s.db.Create(&identity).Error; err != nil {
			return Identity{}, err
		}
	case err != nil:
		return Identity{}, err
	default:
		updates := map[string]interface{}{"last_seen_at": s.now()}
		if email := normalize(claims.Email); email != "" && email != identity.Email {
			updates["user_email"] = email
			identity.Email = email
		}
		if display := normalize(claims.Name); display != "" && display != identity.DisplayName {
			updates["user_display_name"] = display
			identity.DisplayName = display
		}
		if err := s.db.Model(&Identity{}).
			Where("provider = ? AND subject = ?", providerGoogle, subject).
			Updates(updates).
			Error; err != nil {
			return Identity{}, err
		}
	}

	s.cache.Store(cacheKey, identity)
	return identity, nil
}

// Lookup returns the stored identity for a resolved user id.
func (s *Service) Lookup(userID string) (Identity, error) {
	normalized := normalize(userID)
	if normalized == "" {
		return Identity{}, ErrInvalidIdentity
	}

	var identity Identity
	err := s.db.Where("user_id = ?", normalized).First(&identity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Identity{}, ErrIdentityNotFound
	}
	if err != nil {
		return Identity{}, err
	}
	return identity, nil
}

func identityMatchesClaims(identity Identity, claims auth.GoogleClaims) bool {
	email := normalize(claims.Email)
	display := normalize(claims.Name)
	if email != "" && email != identity.Email {
		return false
	}
	if display != "" && display != identity.DisplayName {
		return false
	}
	return true
}
