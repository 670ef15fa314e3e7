package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophvault/internal/models"
	"github.com/dmitrijs2005/gophvault/internal/repositories/items"
)

// Cipher is the encryption capability the store needs. *cryptox.Engine
// implements it; rotation passes two of them.
type Cipher interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
}

const timeLayout = time.RFC3339Nano

func encryptString(c Cipher, s string) ([]byte, error) {
	return c.Encrypt([]byte(s))
}

func encryptOptional(c Cipher, s *string) ([]byte, error) {
	if s == nil {
		return nil, nil
	}
	return c.Encrypt([]byte(*s))
}

func encryptTime(c Cipher, t time.Time) ([]byte, error) {
	return c.Encrypt([]byte(t.UTC().Format(timeLayout)))
}

func decryptString(c Cipher, b []byte) (string, error) {
	pt, err := c.Decrypt(b)
	if err != nil {
		return "", err
	}
	return string(pt), nil
}

func decryptOptional(c Cipher, b []byte) (*string, error) {
	if b == nil {
		return nil, nil
	}
	s, err := decryptString(c, b)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func decryptTime(c Cipher, b []byte) (time.Time, error) {
	s, err := decryptString(c, b)
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp: %w", err)
	}
	return t.UTC(), nil
}

// encodeItem encrypts every field except id and parent id.
func encodeItem(c Cipher, it *models.VaultItem) (*items.Row, error) {
	var (
		r   = items.Row{ID: it.ID, ParentID: it.ParentID}
		err error
	)

	if r.Name, err = encryptString(c, it.Name); err != nil {
		return nil, err
	}
	if r.ItemType, err = encryptString(c, it.ItemType); err != nil {
		return nil, err
	}
	if r.DataPath, err = encryptString(c, it.DataPath); err != nil {
		return nil, err
	}
	if r.FolderType, err = encryptOptional(c, it.FolderType); err != nil {
		return nil, err
	}

	tags := it.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return nil, fmt.Errorf("encode tags: %w", err)
	}
	if r.Tags, err = c.Encrypt(tagsJSON); err != nil {
		return nil, err
	}

	if r.CreatedAt, err = encryptTime(c, it.CreatedAt); err != nil {
		return nil, err
	}
	if r.UpdatedAt, err = encryptTime(c, it.UpdatedAt); err != nil {
		return nil, err
	}
	if it.DeletedAt != nil {
		if r.DeletedAt, err = encryptTime(c, *it.DeletedAt); err != nil {
			return nil, err
		}
	}
	if r.TotpSecret, err = encryptOptional(c, it.TotpSecret); err != nil {
		return nil, err
	}
	return &r, nil
}

func decodeItem(c Cipher, r *items.Row) (*models.VaultItem, error) {
	var (
		it  = models.VaultItem{ID: r.ID, ParentID: r.ParentID}
		err error
	)

	if it.Name, err = decryptString(c, r.Name); err != nil {
		return nil, err
	}
	if it.ItemType, err = decryptString(c, r.ItemType); err != nil {
		return nil, err
	}
	if it.DataPath, err = decryptString(c, r.DataPath); err != nil {
		return nil, err
	}
	if it.FolderType, err = decryptOptional(c, r.FolderType); err != nil {
		return nil, err
	}

	it.Tags = []string{}
	if r.Tags != nil {
		pt, err := c.Decrypt(r.Tags)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(pt, &it.Tags); err != nil {
			return nil, fmt.Errorf("decode tags of %s: %w", r.ID, err)
		}
	}

	if it.CreatedAt, err = decryptTime(c, r.CreatedAt); err != nil {
		return nil, err
	}
	if it.UpdatedAt, err = decryptTime(c, r.UpdatedAt); err != nil {
		return nil, err
	}
	if r.DeletedAt != nil {
		t, err := decryptTime(c, r.DeletedAt)
		if err != nil {
			return nil, err
		}
		it.DeletedAt = &t
	}
	if it.TotpSecret, err = decryptOptional(c, r.TotpSecret); err != nil {
		return nil, err
	}
	return &it, nil
}

func decodeRows(c Cipher, rows []items.Row) ([]models.VaultItem, error) {
	out := make([]models.VaultItem, 0, len(rows))
	for i := range rows {
		it, err := decodeItem(c, &rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *it)
	}
	return out, nil
}
