package accounts

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// DefaultLanguage is assigned to accounts registered without one
const DefaultLanguage = "en"

// User is the account model
type User struct {
	bun.BaseModel  `bun:"table:users,alias:usr"`
	ID             uuid.UUID  `bun:"id,pk,nullzero" json:"id,omitempty"`
	Email          string     `bun:"email,notnull,unique" json:"email,omitempty"`
	Username       string     `bun:"username,notnull" json:"username,omitempty"`
	FirstName      string     `bun:"first_name,notnull" json:"first_name,omitempty"`
	LastName       string     `bun:"last_name,notnull" json:"last_name,omitempty"`
	PasswordHash   string     `bun:"password_hash,notnull" json:"-"`
	Tier           Tier       `bun:"tier,notnull" json:"tier,omitempty"`
	Confirmed      bool       `bun:"confirmed,notnull" json:"confirmed"`
	EmailCode      *string    `bun:"email_code" json:"-"`
	Language       string     `bun:"language,notnull" json:"language,omitempty"`
	LoginAttempts  int        `bun:"login_attempts,notnull" json:"-"`
	LoginAttemptAt *time.Time `bun:"login_attempt_at" json:"-"`
	LoggedInAt     *time.Time `bun:"loggedin_at" json:"loggedin_at,omitempty"`
	CreatedAt      *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt      *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt      *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"-"`
}

var _ AccountState = (*User)(nil)

// IsConfirmed reports whether the email address was confirmed
func (u *User) IsConfirmed() bool {
	return u != nil && u.Confirmed
}

// PermissionTier returns the stored tier, defaulting to standard
func (u *User) PermissionTier() Tier {
	if u == nil || !u.Tier.IsValid() {
		return TierStandard
	}
	return u.Tier
}

// Identity returns the reference carried in tokens
func (u *User) Identity() IdentityRef {
	if u == nil || u.ID == uuid.Nil {
		return ""
	}
	return IdentityRef(u.ID.String())
}

// Attribute is a free form claim attached to a user. Attributes are merged
// into access tokens by AttributeClaimProvider.
type Attribute struct {
	bun.BaseModel `bun:"table:user_attributes,alias:attr"`
	ID            uuid.UUID  `bun:"id,pk,nullzero" json:"id,omitempty"`
	UserID        uuid.UUID  `bun:"user_id,notnull" json:"user_id"`
	Key           string     `bun:"attribute_key,notnull" json:"key"`
	Text          string     `bun:"attribute_text,notnull" json:"text"`
	Position      int        `bun:"position,notnull" json:"position"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}
