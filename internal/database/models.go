package database

import (
	"time"

	"github.com/uptrace/bun"
)

// User is the persisted account row
type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID           string    `bun:"id,pk,type:varchar(64)"`
	Email        string    `bun:"email,notnull"`
	FullName     string    `bun:"full_name,notnull"`
	PasswordHash *string   `bun:"password_hash"` // NULL for externally authenticated accounts
	CreatedAt    time.Time `bun:"created_at,notnull"`
	UpdatedAt    time.Time `bun:"updated_at,notnull"`
}

// Session binds a random identifier to a user
type Session struct {
	bun.BaseModel `bun:"table:sessions,alias:s"`

	ID        string    `bun:"id,pk,type:varchar(64)"`
	UserID    string    `bun:"user_id,notnull,type:varchar(64)"`
	CreatedAt time.Time `bun:"created_at,notnull"`
	ExpiresAt time.Time `bun:"expires_at,notnull"`
}

// PasswordResetToken stores only the fingerprint of the emailed secret
type PasswordResetToken struct {
	bun.BaseModel `bun:"table:password_reset_tokens,alias:prt"`

	TokenHash string    `bun:"token_hash,pk,type:varchar(64)"`
	UserID    string    `bun:"user_id,notnull,unique,type:varchar(64)"`
	CreatedAt time.Time `bun:"created_at,notnull"`
	ExpiresAt time.Time `bun:"expires_at,notnull"`
}
