package service

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"io"

	"golang.org/x/crypto/hkdf"
	"lukechampine.com/blake3"
)

const tokenSize = 16

// TokenGenerator derives unsubscribe tokens from a campaign and subscriber
// pair. Tokens are stable for a given secret and cannot be guessed without it.
type TokenGenerator struct {
	key []byte
}

func NewTokenGenerator(secret string) *TokenGenerator {
	key := make([]byte, 32)
	r := hkdf.New(sha256.New, []byte(secret), nil, []byte("campaign-autoresponder subscription token"))
	if _, err := io.ReadFull(r, key); err != nil {
		// hkdf only fails past 255 blocks of output
		panic(err)
	}
	return &TokenGenerator{key: key}
}

// Token returns a 32 character hex token.
func (g *TokenGenerator) Token(campaignID, subscriberID int64) string {
	h := blake3.New(tokenSize, g.key)
	var buf []byte
	buf = binary.BigEndian.AppendUint64(buf, uint64(campaignID))
	buf = binary.BigEndian.AppendUint64(buf, uint64(subscriberID))
	h.Write(buf)
	return hex.EncodeToString(h.Sum(nil))
}
