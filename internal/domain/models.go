// Copyright (c) 2025 Justin Cranford

// Package domain holds the GORM-mapped persistence models: users,
// magiclinks, user_privkey_context, user_ed25519_keys, and
// user_x25519_keys. Primary keys are raw derived byte slices (user_id,
// token_hash, db_index), never database-assigned surrogate ids, so the
// tables carry no more identifying material than the cryptographic
// derivation already produced.
package domain

import (
	"time"

	"gorm.io/gorm"
)

// User is the minimal users row: a derived user_id, a
// creation timestamp, and a last-login flag. No email, name, or other PII
// is ever stored here — that is the entire point of the zero-knowledge
// user-id derivation.
type User struct {
	UserID    []byte    `gorm:"column:user_id;primaryKey;type:bytea"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	LoggedIn  bool      `gorm:"column:logged_in"`
}

func (User) TableName() string { return "users" }

// BeforeCreate stamps CreatedAt if the caller left it zero. UserID is always
// supplied by the caller (it's a derived value, not database-assigned), so
// this hook never mints an
// identifier.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	return nil
}

// MagicLink is a single-use, time-limited login token. TokenHash
// is the primary key; the raw token itself is never persisted.
// EncryptionBlob carries the ChaCha20-Poly1305-encrypted {email, ui_host,
// next, email_lang, pub_key} payload.
type MagicLink struct {
	TokenHash      []byte    `gorm:"column:token_hash;primaryKey;type:bytea"`
	Timestamp      time.Time `gorm:"column:timestamp;autoCreateTime"`
	EncryptionBlob []byte    `gorm:"column:encryption_blob;type:bytea"`
	NextParam      *string   `gorm:"column:next_param"`
	ExpiresAt      time.Time `gorm:"column:expires_at"`
}

func (MagicLink) TableName() string { return "magiclinks" }

func (m *MagicLink) BeforeCreate(tx *gorm.DB) error {
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}
	return nil
}

// IsExpired reports whether the magic link is past its expiry.
func (m *MagicLink) IsExpired() bool {
	return time.Now().UTC().After(m.ExpiresAt)
}

// PrivkeyContext is the encrypted System-B identity-key material for a
// user, keyed by a db_index deliberately distinct in derivation from
// user_id so the table cannot be equi-joined against users.
type PrivkeyContext struct {
	DBIndex                   []byte `gorm:"column:db_index;primaryKey;type:bytea"`
	EncryptedPrivkey          []byte `gorm:"column:encrypted_privkey;type:bytea"`
	EncryptionEphemeralPubKey []byte `gorm:"column:encryption_ephemeral_pub_key;type:bytea"`
	CreatedYear               int    `gorm:"column:created_year"`
}

func (PrivkeyContext) TableName() string { return "user_privkey_context" }

// UserEd25519Key records a client-published session Ed25519 public key
// bound to a user (System A).
type UserEd25519Key struct {
	UserID    []byte    `gorm:"column:user_id;primaryKey;type:bytea"`
	PubKey    string    `gorm:"column:pub_key;primaryKey"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (UserEd25519Key) TableName() string { return "user_ed25519_keys" }

func (k *UserEd25519Key) BeforeCreate(tx *gorm.DB) error {
	if k.CreatedAt.IsZero() {
		k.CreatedAt = time.Now().UTC()
	}
	return nil
}

// UserX25519Key records a client-published session X25519 public key bound
// to a user (System A), split from UserEd25519Key per the
// migration note that separates the two key types into distinct tables.
type UserX25519Key struct {
	UserID    []byte    `gorm:"column:user_id;primaryKey;type:bytea"`
	PubKey    string    `gorm:"column:pub_key;primaryKey"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (UserX25519Key) TableName() string { return "user_x25519_keys" }

func (k *UserX25519Key) BeforeCreate(tx *gorm.DB) error {
	if k.CreatedAt.IsZero() {
		k.CreatedAt = time.Now().UTC()
	}
	return nil
}
