package cookies

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNamesPlainHTTP(t *testing.T) {
	n := Names{UseSecure: false}
	assert.Equal(t, "authgate.session-token", n.Session())
	assert.Equal(t, "authgate.csrf-token", n.Csrf())
	assert.Equal(t, "authgate.callback-url", n.Callback())
	assert.Equal(t, "authgate.pkce.code-verifier", n.Pkce())
}

func TestNamesSecure(t *testing.T) {
	n := Names{UseSecure: true}
	assert.Equal(t, "__Secure-authgate.session-token", n.Session())
	assert.Equal(t, "__Host-authgate.csrf-token", n.Csrf())
	assert.Equal(t, "__Secure-authgate.callback-url", n.Callback())
	assert.Equal(t, "__Secure-authgate.pkce.code-verifier", n.Pkce())
}

func TestSetFlags(t *testing.T) {
	w := httptest.NewRecorder()
	Set(w, "c", "v", true, 15*time.Minute)

	cs := w.Result().Cookies()
	require.Len(t, cs, 1)
	c := cs[0]
	assert.Equal(t, "v", c.Value)
	assert.True(t, c.HttpOnly)
	assert.True(t, c.Secure)
	assert.Equal(t, int(15*time.Minute/time.Second), c.MaxAge)
}

func TestClearExpiresCookie(t *testing.T) {
	w := httptest.NewRecorder()
	Clear(w, "c", false)

	cs := w.Result().Cookies()
	require.Len(t, cs, 1)
	assert.Empty(t, cs[0].Value)
	assert.Less(t, cs[0].MaxAge, 0)
}
