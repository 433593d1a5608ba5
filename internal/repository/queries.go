// Copyright (c) 2025 Justin Cranford

package repository

import (
	"errors"

	"gorm.io/gorm"

	"github.com/arkaitz-dev/hashrand-sub003/internal/apperr"
	"github.com/arkaitz-dev/hashrand-sub003/internal/domain"
)

// CreateMagicLink inserts a pending magic-link row.
func (t *Transaction) CreateMagicLink(m *domain.MagicLink) error {
	if err := t.tx.Create(m).Error; err != nil {
		return apperr.Wrap(apperr.KindStorageError, "repository: create magic link", err)
	}
	return nil
}

// GetAndDeleteMagicLink fetches the row by tokenHash and deletes it in the
// same transaction, implementing the at-most-once redemption guarantee:
// the delete happens before any subsequent state change. Returns (nil, nil)
// if the row doesn't exist.
func (t *Transaction) GetAndDeleteMagicLink(tokenHash []byte) (*domain.MagicLink, error) {
	var row domain.MagicLink
	err := t.tx.Where("token_hash = ?", tokenHash).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorageError, "repository: get magic link", err)
	}

	if err := t.tx.Delete(&domain.MagicLink{}, "token_hash = ?", tokenHash).Error; err != nil {
		return nil, apperr.Wrap(apperr.KindStorageError, "repository: delete magic link", err)
	}

	return &row, nil
}

// UpsertUser inserts the user row if absent, or updates LoggedIn if present.
func (t *Transaction) UpsertUser(u *domain.User) error {
	var existing domain.User
	err := t.tx.Where("user_id = ?", u.UserID).First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if createErr := t.tx.Create(u).Error; createErr != nil {
			return apperr.Wrap(apperr.KindStorageError, "repository: create user", createErr)
		}
		return nil
	case err != nil:
		return apperr.Wrap(apperr.KindStorageError, "repository: get user", err)
	default:
		existing.LoggedIn = u.LoggedIn
		if saveErr := t.tx.Save(&existing).Error; saveErr != nil {
			return apperr.Wrap(apperr.KindStorageError, "repository: update user", saveErr)
		}
		return nil
	}
}

// GetUser fetches a user row by user_id. Returns (nil, nil) if absent.
func (t *Transaction) GetUser(userID []byte) (*domain.User, error) {
	var row domain.User
	err := t.tx.Where("user_id = ?", userID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorageError, "repository: get user", err)
	}
	return &row, nil
}

// GetPrivkeyContext fetches a privkey_context row by its db_index. Returns
// (nil, nil) if absent.
func (t *Transaction) GetPrivkeyContext(dbIndex []byte) (*domain.PrivkeyContext, error) {
	var row domain.PrivkeyContext
	err := t.tx.Where("db_index = ?", dbIndex).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorageError, "repository: get privkey context", err)
	}
	return &row, nil
}

// CreatePrivkeyContext inserts a new privkey_context row.
func (t *Transaction) CreatePrivkeyContext(p *domain.PrivkeyContext) error {
	if err := t.tx.Create(p).Error; err != nil {
		return apperr.Wrap(apperr.KindStorageError, "repository: create privkey context", err)
	}
	return nil
}

// AddUserEd25519Key records a client session Ed25519 public key (System A).
func (t *Transaction) AddUserEd25519Key(k *domain.UserEd25519Key) error {
	if err := t.tx.Create(k).Error; err != nil {
		return apperr.Wrap(apperr.KindStorageError, "repository: add ed25519 key", err)
	}
	return nil
}

// AddUserX25519Key records a client session X25519 public key (System A).
func (t *Transaction) AddUserX25519Key(k *domain.UserX25519Key) error {
	if err := t.tx.Create(k).Error; err != nil {
		return apperr.Wrap(apperr.KindStorageError, "repository: add x25519 key", err)
	}
	return nil
}

// HasUserEd25519Key reports whether (userID, pubKeyHex) was previously
// recorded, used to validate a refresh's claimed pub_key_hex against a key
// this user actually published.
func (t *Transaction) HasUserEd25519Key(userID []byte, pubKeyHex string) (bool, error) {
	var count int64
	err := t.tx.Model(&domain.UserEd25519Key{}).
		Where("user_id = ? AND pub_key = ?", userID, pubKeyHex).
		Count(&count).Error
	if err != nil {
		return false, apperr.Wrap(apperr.KindStorageError, "repository: count ed25519 keys", err)
	}
	return count > 0, nil
}

// Ping verifies database connectivity with a trivial round-trip, used by
// the health endpoint.
func (t *Transaction) Ping() error {
	var one int
	if err := t.tx.Raw("SELECT 1").Scan(&one).Error; err != nil {
		return apperr.Wrap(apperr.KindStorageError, "repository: ping", err)
	}
	return nil
}
