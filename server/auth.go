package server

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"

	"github.com/jaredpereira/mud/muderrors"
)

// Session is what the identity provider resolves a token to. The fact
// store never inspects credentials itself; membership is decided by
// space/member facts keyed on the studio.
type Session struct {
	Username string
	Studio   string
}

type Identity interface {
	VerifyIdentity(token string) (*Session, error)
}

// JWTIdentity verifies HS256 session tokens carrying username and studio
// claims.
type JWTIdentity struct {
	Secret []byte
}

func (j JWTIdentity) VerifyIdentity(token string) (*Session, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return j.Secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, muderrors.ErrBadToken
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, muderrors.ErrBadToken
	}
	username, _ := claims["username"].(string)
	studio, _ := claims["studio"].(string)
	if studio == "" {
		return nil, muderrors.ErrBadToken
	}
	return &Session{Username: username, Studio: studio}, nil
}

// StaticIdentity is a fixed token table, used in tests.
type StaticIdentity map[string]Session

func (s StaticIdentity) VerifyIdentity(token string) (*Session, error) {
	sess, ok := s[token]
	if !ok {
		return nil, muderrors.ErrBadToken
	}
	return &sess, nil
}
