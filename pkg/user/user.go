package user

import "errors"

// Platform identifies one of the supported messaging platforms.
type Platform string

const (
	Telegram Platform = "telegram"
	Max      Platform = "max"
)

var (
	ErrNotFound = errors.New("user not found")
	// ErrNoIdentity is returned when a write would leave a user row with
	// neither platform id set.
	ErrNoIdentity = errors.New("user must carry at least one platform id")
)

// PlatformRef addresses a user by external platform ids. Zero means the
// identity on that platform is not known. At most one side may be zero.
type PlatformRef struct {
	TelegramID int64
	MaxID      int64
}

func (r PlatformRef) IsZero() bool {
	return r.TelegramID == 0 && r.MaxID == 0
}

// User is the canonical user record. TelegramID/MaxID are the two
// externally-issued identities; either may be zero but never both.
type User struct {
	ID           int
	TelegramID   int64
	MaxID        int64
	IsActive     bool
	Username     string
	FirstName    string
	LastName     string
	Timezone     string
	LanguageCode string
}

// Ref returns the user's platform identities as a PlatformRef.
func (u User) Ref() PlatformRef {
	return PlatformRef{TelegramID: u.TelegramID, MaxID: u.MaxID}
}
