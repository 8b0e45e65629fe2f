package access

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"docshare/internal/document/model"
)

const publicTokenBytes = 16

// NewPublicToken returns 128 random bits, hex encoded.
func NewPublicToken() (string, error) {
	b := make([]byte, publicTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate public token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// SetPublic flips the public flag. The token is minted on the first publish
// and kept across later toggles, so old links work again once re-enabled.
func SetPublic(doc *model.Document, public bool) error {
	if public && doc.PublicToken == nil {
		tok, err := NewPublicToken()
		if err != nil {
			return err
		}
		doc.PublicToken = &tok
	}
	doc.IsPublic = public
	return nil
}

// VisibleByToken reports whether an anonymous reader holding token may read doc.
func VisibleByToken(doc *model.Document, token string) bool {
	return doc.IsPublic && doc.PublicToken != nil && token != "" && *doc.PublicToken == token
}
