package user

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrUnknownTimezone reports a user-configured zone name that the host does
// not know. It is never silently defaulted for explicitly set zones.
var ErrUnknownTimezone = errors.New("unknown time zone")

type Service interface {
	// Upsert creates or refreshes the user row for an inbound interaction
	// and marks it active.
	Upsert(ctx context.Context, u User) (User, error)
	// RegisterContact stores a user shared as someone's contact. The row is
	// created inactive and linked to the owner in the relations table.
	RegisterContact(ctx context.Context, owner User, contact User) (User, error)
	FindByRef(ctx context.Context, ref PlatformRef) (User, error)
	Get(ctx context.Context, id int) (User, error)
	// Zone resolves the user's IANA time zone, falling back to the
	// configured default when the user has none set.
	Zone(u User) (*time.Location, error)
}

type ServiceImpl struct {
	repo        Repo
	defaultZone string
}

func NewService(repo Repo, defaultZone string) *ServiceImpl {
	return &ServiceImpl{repo: repo, defaultZone: defaultZone}
}

func (s *ServiceImpl) Upsert(ctx context.Context, u User) (User, error) {
	if u.Ref().IsZero() {
		return User{}, ErrNoIdentity
	}
	u.IsActive = true

	existing, err := s.FindByRef(ctx, u.Ref())
	if errors.Is(err, ErrNotFound) {
		id, err := s.repo.CreateUser(ctx, u)
		if err != nil {
			return User{}, fmt.Errorf("failed to create user: %w", err)
		}
		u.ID = id
		return u, nil
	} else if err != nil {
		return User{}, err
	}

	merged := mergeProfile(u, existing)
	merged.ID = existing.ID
	merged.IsActive = true
	if err := s.repo.UpdateUser(ctx, existing.ID, merged); err != nil {
		return User{}, fmt.Errorf("failed to update user: %w", err)
	}
	return merged, nil
}

func (s *ServiceImpl) RegisterContact(ctx context.Context, owner User, contact User) (User, error) {
	if contact.Ref().IsZero() {
		return User{}, ErrNoIdentity
	}

	stored, err := s.FindByRef(ctx, contact.Ref())
	if errors.Is(err, ErrNotFound) {
		contact.IsActive = false
		id, err := s.repo.CreateUser(ctx, contact)
		if err != nil {
			return User{}, fmt.Errorf("failed to create contact: %w", err)
		}
		contact.ID = id
		stored = contact
	} else if err != nil {
		return User{}, err
	}

	if err := s.repo.AddRelation(ctx, owner.ID, stored.ID); err != nil {
		return User{}, fmt.Errorf("failed to link contact: %w", err)
	}
	return stored, nil
}

func (s *ServiceImpl) FindByRef(ctx context.Context, ref PlatformRef) (User, error) {
	if ref.TelegramID != 0 {
		u, err := s.repo.FindByPlatformID(ctx, Telegram, ref.TelegramID)
		if err == nil || !errors.Is(err, ErrNotFound) {
			return u, err
		}
	}
	if ref.MaxID != 0 {
		return s.repo.FindByPlatformID(ctx, Max, ref.MaxID)
	}
	return User{}, ErrNotFound
}

func (s *ServiceImpl) Get(ctx context.Context, id int) (User, error) {
	return s.repo.GetUser(ctx, id)
}

func (s *ServiceImpl) Zone(u User) (*time.Location, error) {
	name := u.Timezone
	if name == "" {
		name = s.defaultZone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTimezone, name)
	}
	return loc, nil
}

// mergeProfile overlays fresh profile fields onto the stored row, keeping
// stored values where the update carries none.
func mergeProfile(fresh, stored User) User {
	out := fresh
	out.TelegramID = pickID(fresh.TelegramID, stored.TelegramID)
	out.MaxID = pickID(fresh.MaxID, stored.MaxID)
	if out.Username == "" {
		out.Username = stored.Username
	}
	if out.FirstName == "" {
		out.FirstName = stored.FirstName
	}
	if out.LastName == "" {
		out.LastName = stored.LastName
	}
	if out.Timezone == "" {
		out.Timezone = stored.Timezone
	}
	if out.LanguageCode == "" {
		out.LanguageCode = stored.LanguageCode
	}
	return out
}

func pickID(fresh, stored int64) int64 {
	if fresh != 0 {
		return fresh
	}
	return stored
}
