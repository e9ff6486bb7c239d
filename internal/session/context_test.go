package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	domainauth "github.com/uvalib/tracksys2/internal/domain/auth"
)

func TestContext_SetJWT(t *testing.T) {
	tok := mintToken(t, "k", testUser(), time.Hour)
	sc := NewContext(NewCodec(""), nil)

	assert.False(t, sc.SignedIn())
	assert.True(t, sc.SetJWT(tok))
	assert.True(t, sc.SignedIn())
	assert.Equal(t, tok, sc.Token())
	assert.Equal(t, "lf6f", sc.User().ComputeID)

	// unchanged token is a no-op
	assert.False(t, sc.SetJWT(tok))
}

func TestContext_SetJWT_IgnoresEmptyAndNull(t *testing.T) {
	tok := mintToken(t, "k", testUser(), time.Hour)
	sc := NewContext(nil, nil)
	sc.SetJWT(tok)

	assert.False(t, sc.SetJWT(""))
	assert.False(t, sc.SetJWT("null"))
	assert.True(t, sc.SignedIn(), "ignored tokens must not clear the session")
}

func TestContext_SetJWT_CorruptTokenSignsOut(t *testing.T) {
	tok := mintToken(t, "k", testUser(), time.Hour)
	sc := NewContext(nil, nil)
	sc.SetJWT(tok)

	assert.NotPanics(t, func() { sc.SetJWT("corrupt.value") })
	assert.False(t, sc.SignedIn())
	assert.Empty(t, sc.Token())
}

func TestContext_UnknownRoleIsSignedOut(t *testing.T) {
	u := testUser()
	u.Role = domainauth.Role("guest")
	tok := mintToken(t, "k", u, time.Hour)

	sc := NewContext(nil, nil)
	sc.SetJWT(tok)
	assert.False(t, sc.SignedIn())
}

func TestContext_SignOut(t *testing.T) {
	tok := mintToken(t, "k", testUser(), time.Hour)
	sc := NewContext(nil, nil)
	sc.SetJWT(tok)

	sc.SignOut()
	assert.False(t, sc.SignedIn())
	assert.Empty(t, sc.Token())
	assert.Equal(t, domainauth.User{}, sc.User())

	// the same token can be installed again after sign-out
	assert.True(t, sc.SetJWT(tok))
	assert.True(t, sc.SignedIn())
}
