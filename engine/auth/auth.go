// Package auth authenticates client sessions on the root.
package auth

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"github.com/roomsync/roomsync/engine/common"
	"github.com/roomsync/roomsync/engine/proto"
)

// ErrAuthFailed is the cause of every rejected authentication
var ErrAuthFailed = errors.New("authentication failed")

// Authenticator turns the credentials of a session into a user. A nil user id in the returned
// info asks the caller to mint one.
type Authenticator interface {
	Authenticate(req proto.AuthRequest) (proto.UserInfo, error)
}

// GuestAuthenticator accepts everyone, users get fresh ids
type GuestAuthenticator struct{}

// Authenticate accepts the session with the requested name
func (GuestAuthenticator) Authenticate(req proto.AuthRequest) (proto.UserInfo, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = "guest"
	}
	return proto.UserInfo{Name: name}, nil
}

// Claims are the claims of session tokens, the subject is the user id
type Claims struct {
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// JWTAuthenticator accepts sessions carrying a valid HS256 token
type JWTAuthenticator struct {
	secret []byte
	issuer string
}

// NewJWTAuthenticator creates an authenticator of tokens signed with secret, an empty issuer is not checked
func NewJWTAuthenticator(secret []byte, issuer string) *JWTAuthenticator {
	return &JWTAuthenticator{secret: secret, issuer: issuer}
}

// IssueToken signs a token for the user valid for ttl
func (a *JWTAuthenticator) IssueToken(userID common.ID, name string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		Name: name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// Authenticate verifies the token of req
func (a *JWTAuthenticator) Authenticate(req proto.AuthRequest) (proto.UserInfo, error) {
	if req.Token == "" {
		return proto.UserInfo{}, errors.Wrap(ErrAuthFailed, "missing token")
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(req.Token, claims, func(token *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return proto.UserInfo{}, errors.Wrapf(ErrAuthFailed, "invalid token: %v", err)
	}

	id, err := common.ParseID(claims.Subject)
	if err != nil || id.IsNil() {
		return proto.UserInfo{}, errors.Wrapf(ErrAuthFailed, "invalid subject %q", claims.Subject)
	}
	return proto.UserInfo{ID: id, Name: claims.Name}, nil
}
