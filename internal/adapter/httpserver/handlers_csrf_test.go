package httpserver

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCSRF_MissingToken(t *testing.T) {
	env := newTestEnv(t)
	b := env.newBrowser(t)
	b.login()

	resp, _ := b.postRaw("/logout", url.Values{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = b.get("/dashboard")
	assert.Equal(t, http.StatusOK, resp.StatusCode, "rejected logout must leave the session alone")
}

func TestCSRF_WrongToken(t *testing.T) {
	env := newTestEnv(t)
	b := env.newBrowser(t)
	b.login()

	resp, _ := b.postRaw("/jobs/1/delete", url.Values{"csrf_token": {"forged"}})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Len(t, env.api.Jobs(), 12)
}

func TestCSRF_LoginRequiresToken(t *testing.T) {
	env := newTestEnv(t)
	b := env.newBrowser(t)

	resp, _ := b.postRaw("/login", url.Values{"email": {testEmail}, "password": {testPassword}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Zero(t, env.api.Calls(http.MethodPost, "/token"))
}
