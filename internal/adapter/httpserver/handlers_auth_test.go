package httpserver

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLanding_AnonymousSeesLandingPage(t *testing.T) {
	env := newTestEnv(t)
	b := env.newBrowser(t)

	resp, _ := b.get("/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, b.cookie(sessionName), "workspace cookie should be issued on first visit")
}

func TestLanding_AuthenticatedGoesToDashboard(t *testing.T) {
	env := newTestEnv(t)
	b := env.newBrowser(t)
	b.login()

	resp, _ := b.get("/")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/dashboard", resp.Header.Get("Location"))
}

func TestProtectedPages_RedirectAnonymousToLogin(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/dashboard", "/profile", "/jobs/1"} {
		t.Run(path, func(t *testing.T) {
			b := env.newBrowser(t)
			resp, _ := b.get(path)
			assert.Equal(t, http.StatusFound, resp.StatusCode)
			assert.Equal(t, "/login", resp.Header.Get("Location"))
		})
	}
	assert.Zero(t, env.api.Calls(http.MethodGet, "/jobs/"), "guard must stop the request before any API call")
}

func TestLogin_Success(t *testing.T) {
	env := newTestEnv(t)
	b := env.newBrowser(t)

	b.get("/login")
	before := b.cookie(sessionName)
	b.login()

	assert.NotEqual(t, before, b.cookie(sessionName), "login should move the browser to a new workspace")

	resp, body := b.get("/dashboard")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "ada's applications")
	assert.Contains(t, body, "Showing 5 of 12 jobs")
}

func TestLogin_AuthenticatedUserSkipsLoginPage(t *testing.T) {
	env := newTestEnv(t)
	b := env.newBrowser(t)
	b.login()

	resp, _ := b.get("/login")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/dashboard", resp.Header.Get("Location"))
}

func TestLogin_WrongPassword(t *testing.T) {
	env := newTestEnv(t)
	b := env.newBrowser(t)
	b.get("/login")
	before := env.registry.Len()

	resp, body := b.post("/login", url.Values{"email": {testEmail}, "password": {"nope"}})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, body, "Incorrect email or password")
	assert.Contains(t, body, testEmail, "email should be kept in the form")
	assert.Equal(t, before, env.registry.Len(), "failed login leaves no workspace behind")

	resp, _ = b.get("/dashboard")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
}

func TestLogin_MissingFields(t *testing.T) {
	env := newTestEnv(t)
	b := env.newBrowser(t)

	resp, body := b.post("/login", url.Values{"email": {testEmail}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body, "Email and password are required.")
	assert.Zero(t, env.api.Calls(http.MethodPost, "/token"))
}

func TestLogin_APIDown(t *testing.T) {
	env := newTestEnv(t)
	b := env.newBrowser(t)
	env.api.FailNext(http.MethodPost, "/token", http.StatusInternalServerError, "boom")

	resp, body := b.post("/login", url.Values{"email": {testEmail}, "password": {testPassword}})
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Contains(t, body, "Login failed. Please try again.")
	assert.NotContains(t, body, "boom")
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t)
	b := env.newBrowser(t)
	b.login()

	resp, _ := b.post("/logout", nil)
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))

	_, body := b.get("/login")
	assert.Contains(t, body, "You have been logged out.")

	resp, _ = b.get("/dashboard")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))
}

func TestLogout_FlashShownOnce(t *testing.T) {
	env := newTestEnv(t)
	b := env.newBrowser(t)
	b.login()
	b.post("/logout", nil)

	_, first := b.get("/login")
	_, second := b.get("/login")
	assert.Contains(t, first, "You have been logged out.")
	assert.NotContains(t, second, "You have been logged out.")
}

func TestSignup_Success(t *testing.T) {
	env := newTestEnv(t)
	b := env.newBrowser(t)

	resp, _ := b.post("/signup", url.Values{
		"username":         {"grace"},
		"email":            {"grace@example.com"},
		"password":         {"hopper"},
		"confirm_password": {"hopper"},
		"first_name":       {"Grace"},
	})
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))

	_, body := b.get("/login")
	assert.Contains(t, body, "Account created. Please log in.")

	resp, _ = b.get("/dashboard")
	assert.Equal(t, http.StatusFound, resp.StatusCode, "signup must not log the user in")
}

func TestSignup_PasswordMismatch(t *testing.T) {
	env := newTestEnv(t)
	b := env.newBrowser(t)

	resp, body := b.post("/signup", url.Values{
		"username":         {"grace"},
		"email":            {"grace@example.com"},
		"password":         {"hopper"},
		"confirm_password": {"hoppr"},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body, "Passwords do not match.")
	assert.Zero(t, env.api.Calls(http.MethodPost, "/users/"))
}

func TestSignup_DuplicateEmail(t *testing.T) {
	env := newTestEnv(t)
	b := env.newBrowser(t)

	resp, body := b.post("/signup", url.Values{
		"username":         {"ada2"},
		"email":            {testEmail},
		"password":         {"x"},
		"confirm_password": {"x"},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body, "Email already registered")
}

func TestSignup_FieldErrorFromAPI(t *testing.T) {
	env := newTestEnv(t)
	b := env.newBrowser(t)

	resp, body := b.post("/signup", url.Values{
		"username":         {"grace"},
		"email":            {"not-an-email"},
		"password":         {"x"},
		"confirm_password": {"x"},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body, "value is not a valid email address")
}
