package auth

import (
	"testing"
	"time"

	"github.com/bmizerany/assert"
	"github.com/pkg/errors"
	"github.com/roomsync/roomsync/engine/common"
	"github.com/roomsync/roomsync/engine/proto"
)

func TestGuestAuthenticator(t *testing.T) {
	info, err := GuestAuthenticator{}.Authenticate(proto.AuthRequest{Name: " bob "})
	assert.Equal(t, nil, err)
	assert.Equal(t, proto.UserInfo{Name: "bob"}, info)

	info, _ = GuestAuthenticator{}.Authenticate(proto.AuthRequest{})
	assert.Equal(t, "guest", info.Name)
}

func TestJWTAuthenticator(t *testing.T) {
	a := NewJWTAuthenticator([]byte("0123456789abcdef0123456789abcdef"), "roomsync")
	token, err := a.IssueToken(42, "alice", time.Hour)
	assert.Equal(t, nil, err)

	info, err := a.Authenticate(proto.AuthRequest{Token: token})
	assert.Equal(t, nil, err)
	assert.Equal(t, proto.UserInfo{ID: common.ID(42), Name: "alice"}, info)

	_, err = a.Authenticate(proto.AuthRequest{})
	assert.Equal(t, ErrAuthFailed, errors.Cause(err))

	other := NewJWTAuthenticator([]byte("another secret of enough length!!"), "roomsync")
	_, err = other.Authenticate(proto.AuthRequest{Token: token})
	assert.Equal(t, ErrAuthFailed, errors.Cause(err))

	expired, _ := a.IssueToken(42, "alice", -time.Minute)
	_, err = a.Authenticate(proto.AuthRequest{Token: expired})
	assert.Equal(t, ErrAuthFailed, errors.Cause(err))

	wrongIssuer := NewJWTAuthenticator([]byte("0123456789abcdef0123456789abcdef"), "elsewhere")
	_, err = wrongIssuer.Authenticate(proto.AuthRequest{Token: token})
	assert.Equal(t, ErrAuthFailed, errors.Cause(err))
}
