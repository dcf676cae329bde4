package credentials

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func testBundle() Bundle {
	return Bundle{Cookies: []Cookie{
		{Name: "session-id", Value: "123-456", Domain: ".amazon.com", Path: "/"},
		{Name: "at-main", Value: "token", Domain: ".amazon.com", Secure: true},
		{Name: DefaultCSRFCookieName, Value: "csrf-value", Domain: "www.amazon.com"},
		{Name: "tracker", Value: "x", Domain: ".doubleclick.net"},
	}}
}

func TestBundleCSRFToken(t *testing.T) {
	t.Run("finds default CSRF cookie", func(t *testing.T) {
		token, ok := testBundle().CSRFToken("")
		assert.True(t, ok)
		assert.Equal(t, "csrf-value", token)
	})

	t.Run("finds named cookie", func(t *testing.T) {
		token, ok := testBundle().CSRFToken("at-main")
		assert.True(t, ok)
		assert.Equal(t, "token", token)
	})

	t.Run("missing cookie", func(t *testing.T) {
		_, ok := testBundle().CSRFToken("nope")
		assert.False(t, ok)
	})

	t.Run("empty bundle", func(t *testing.T) {
		_, ok := Bundle{}.CSRFToken("")
		assert.False(t, ok)
	})
}

func TestBundleUsable(t *testing.T) {
	assert.True(t, testBundle().Usable(""))
	assert.False(t, Bundle{}.Usable(""))

	noCSRF := Bundle{Cookies: []Cookie{{Name: "session-id", Value: "x", Domain: ".amazon.com"}}}
	assert.False(t, noCSRF.Usable(""))
	assert.True(t, noCSRF.Usable("session-id"))
}

func TestBundleFilterDomain(t *testing.T) {
	filtered := testBundle().FilterDomain("amazon.com")
	assert.Equal(t, 3, filtered.Len())
	for _, c := range filtered.Cookies {
		assert.Contains(t, c.Domain, "amazon.com")
	}

	t.Run("empty fragment keeps everything", func(t *testing.T) {
		assert.Equal(t, testBundle().Len(), testBundle().FilterDomain("").Len())
	})

	t.Run("no matches yields empty bundle", func(t *testing.T) {
		assert.True(t, testBundle().FilterDomain("example.org").Empty())
	})
}
