package discord

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgrijalva/jwt-go"
)

// ErrInvalidGuildToken is returned for tokens that fail verification.
var ErrInvalidGuildToken = errors.New("invalid guild token")

// GuildTokenCodec signs and verifies the guild token handed to creators after
// the bot is installed on their server, so a benefit can only target a guild
// the creator actually authorized.
type GuildTokenCodec struct {
	secret []byte
	ttl    time.Duration
}

// NewGuildTokenCodec builds a codec. A zero ttl issues tokens that never expire.
func NewGuildTokenCodec(secret string, ttl time.Duration) *GuildTokenCodec {
	return &GuildTokenCodec{secret: []byte(secret), ttl: ttl}
}

func (c *GuildTokenCodec) Encode(guildID string) (string, error) {
	claims := jwt.MapClaims{"guild_id": guildID}
	if c.ttl != 0 {
		claims["exp"] = time.Now().Add(c.ttl).Unix()
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign guild token: %w", err)
	}
	return signed, nil
}

// Decode returns the guild id carried by token.
func (c *GuildTokenCodec) Decode(token string) (string, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return c.secret, nil
	})
	if err != nil || !parsed.Valid {
		return "", ErrInvalidGuildToken
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidGuildToken
	}
	guildID, ok := claims["guild_id"].(string)
	if !ok || guildID == "" {
		return "", ErrInvalidGuildToken
	}
	return guildID, nil
}
