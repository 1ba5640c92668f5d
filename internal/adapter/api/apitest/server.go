// Package apitest provides an in-process fake of the remote job tracking API for tests.
// It speaks the same wire format (FastAPI-style errors, OAuth2 password login, naive
// timestamps) and issues real HS256 JWTs so tokens can be revoked individually or in bulk.
package apitest

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/sarah-ghe/Job-Tracker/internal/domain"
)

const naiveLayout = "2006-01-02T15:04:05.000000"

type account struct {
	user     domain.User
	password string
}

type failure struct {
	status int
	detail any
}

type claims struct {
	Gen int `json:"gen"`
	jwtlib.RegisteredClaims
}

type Server struct {
	*httptest.Server

	secret []byte

	mu            sync.Mutex
	accounts      map[string]*account // by email
	nextUserID    int64
	jobs          []domain.Job
	nextJobID     int64
	categories    []domain.Category
	tokenGen      int
	revoked       map[string]bool
	failures      map[string][]failure
	calls         map[string]int
	headers       map[string]http.Header
	itemsEnvelope bool
	gate          chan struct{}
}

// New starts a fake API and closes it when the test ends.
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		secret:     []byte("apitest-secret"),
		accounts:   make(map[string]*account),
		nextUserID: 1,
		nextJobID:  1,
		revoked:    make(map[string]bool),
		failures:   make(map[string][]failure),
		calls:      make(map[string]int),
		headers:    make(map[string]http.Header),
	}
	s.Server = httptest.NewServer(s.routes())
	t.Cleanup(s.Close)
	return s
}

func (s *Server) routes() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(s.record)

	e.GET("/", func(c echo.Context) error { return c.JSON(http.StatusOK, map[string]string{"message": "ok"}) })
	e.POST("/token", s.handleToken)
	e.POST("/users/", s.handleSignup)
	e.GET("/users/me", s.authed(s.handleMe))
	e.PUT("/users/me", s.authed(s.handleUpdateMe))
	e.GET("/jobs/", s.authed(s.handleListJobs))
	e.POST("/jobs/", s.authed(s.handleCreateJob))
	e.GET("/jobs/:id", s.authed(s.handleGetJob))
	e.PUT("/jobs/:id", s.authed(s.handleUpdateJob))
	e.DELETE("/jobs/:id", s.authed(s.handleDeleteJob))
	e.GET("/categories/", s.handleCategories)
	return e
}

// --- test controls ---

// AddUser registers an account that can log in with email/password.
func (s *Server) AddUser(email, username, password string) domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addUserLocked(domain.SignupRequest{Email: email, Username: username, Password: password})
}

func (s *Server) addUserLocked(req domain.SignupRequest) domain.User {
	now := time.Now().UTC().Truncate(time.Microsecond)
	u := domain.User{
		ID:        s.nextUserID,
		Username:  req.Username,
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.nextUserID++
	s.accounts[req.Email] = &account{user: u, password: req.Password}
	return u
}

func (s *Server) AddCategory(name string) domain.Category {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := domain.Category{ID: int64(len(s.categories) + 1), Name: name}
	s.categories = append(s.categories, c)
	return c
}

// AddJobs seeds n jobs titled "<prefix> 1".."<prefix> n" in the given category.
func (s *Server) AddJobs(prefix string, categoryID int64, n int) []domain.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Job, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, s.addJobLocked(domain.JobInput{
			Title:      fmt.Sprintf("%s %d", prefix, i),
			Company:    "Acme",
			CategoryID: categoryID,
			Status:     domain.StatusApplied,
		}))
	}
	return out
}

func (s *Server) addJobLocked(in domain.JobInput) domain.Job {
	j := domain.Job{
		ID:          s.nextJobID,
		Title:       in.Title,
		Company:     in.Company,
		Location:    in.Location,
		CategoryID:  in.CategoryID,
		Category:    s.categoryLocked(in.CategoryID),
		Status:      in.Status,
		CreatedAt:   time.Now().UTC().Truncate(time.Microsecond),
		Description: in.Description,
	}
	if j.Status == "" {
		j.Status = domain.StatusApplied
	}
	s.nextJobID++
	s.jobs = append(s.jobs, j)
	return j
}

func (s *Server) categoryLocked(id int64) *domain.Category {
	for i := range s.categories {
		if s.categories[i].ID == id {
			c := s.categories[i]
			return &c
		}
	}
	return nil
}

// IssueToken returns a valid token for email without going through /token.
func (s *Server) IssueToken(email string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issueLocked(email)
}

func (s *Server) issueLocked(email string) string {
	now := time.Now()
	tok := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims{
		Gen: s.tokenGen,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   email,
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(now.Add(time.Hour)),
			ID:        strconv.Itoa(len(s.revoked)) + "-" + strconv.FormatInt(now.UnixNano(), 36),
		},
	})
	signed, err := tok.SignedString(s.secret)
	if err != nil {
		panic(err)
	}
	return signed
}

// Revoke makes one token fail with 401 from now on.
func (s *Server) Revoke(token string) {
	s.mu.Lock()
	s.revoked[token] = true
	s.mu.Unlock()
}

// RevokeAll invalidates every token issued so far.
func (s *Server) RevokeAll() {
	s.mu.Lock()
	s.tokenGen++
	s.mu.Unlock()
}

// FailNext makes the next request to "METHOD /path" answer with status and {"detail": detail}.
func (s *Server) FailNext(method, path string, status int, detail any) {
	s.mu.Lock()
	key := method + " " + path
	s.failures[key] = append(s.failures[key], failure{status: status, detail: detail})
	s.mu.Unlock()
}

// UseItemsEnvelope switches list responses to {items,total,limit}.
func (s *Server) UseItemsEnvelope(on bool) {
	s.mu.Lock()
	s.itemsEnvelope = on
	s.mu.Unlock()
}

// Hold blocks job list requests until the returned release func is called.
func (s *Server) Hold() (release func()) {
	ch := make(chan struct{})
	s.mu.Lock()
	s.gate = ch
	s.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			if s.gate == ch {
				s.gate = nil
			}
			s.mu.Unlock()
			close(ch)
		})
	}
}

// Calls reports how many requests hit "METHOD /route" (echo route pattern, e.g. "GET /jobs/:id").
func (s *Server) Calls(method, route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method+" "+route]
}

// LastHeader returns a header of the most recent request to "METHOD /route".
func (s *Server) LastHeader(method, route, name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.headers[method+" "+route]
	if h == nil {
		return ""
	}
	return h.Get(name)
}

func (s *Server) Jobs() []domain.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Job(nil), s.jobs...)
}

// --- middleware ---

func (s *Server) record(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		key := c.Request().Method + " " + c.Path()
		s.mu.Lock()
		s.calls[key]++
		s.headers[key] = c.Request().Header.Clone()
		var f *failure
		if q := s.failures[c.Request().Method+" "+c.Request().URL.Path]; len(q) > 0 {
			f = &q[0]
			s.failures[c.Request().Method+" "+c.Request().URL.Path] = q[1:]
		}
		s.mu.Unlock()

		if f != nil {
			if f.detail == nil {
				return c.NoContent(f.status)
			}
			return c.JSON(f.status, map[string]any{"detail": f.detail})
		}
		return next(c)
	}
}

func (s *Server) authed(next func(c echo.Context, acct *account) error) echo.HandlerFunc {
	return func(c echo.Context) error {
		raw, ok := strings.CutPrefix(c.Request().Header.Get("Authorization"), "Bearer ")
		if !ok || raw == "" {
			return unauthorized(c, "Not authenticated")
		}
		acct, err := s.verify(raw)
		if err != nil {
			return unauthorized(c, "Could not validate credentials")
		}
		return next(c, acct)
	}
}

func (s *Server) verify(raw string) (*account, error) {
	var cl claims
	parser := jwtlib.NewParser(jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}))
	if _, err := parser.ParseWithClaims(raw, &cl, func(*jwtlib.Token) (any, error) { return s.secret, nil }); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.revoked[raw] || cl.Gen != s.tokenGen {
		return nil, errors.New("revoked")
	}
	acct := s.accounts[cl.Subject]
	if acct == nil {
		return nil, errors.New("unknown subject")
	}
	return acct, nil
}

func unauthorized(c echo.Context, detail string) error {
	c.Response().Header().Set("WWW-Authenticate", "Bearer")
	return c.JSON(http.StatusUnauthorized, map[string]string{"detail": detail})
}

func validationError(c echo.Context, field, msg string) error {
	return c.JSON(http.StatusUnprocessableEntity, map[string]any{
		"detail": []map[string]any{{"loc": []any{"body", field}, "msg": msg, "type": "value_error"}},
	})
}

// --- handlers ---

func (s *Server) handleToken(c echo.Context) error {
	email := c.FormValue("username")
	password := c.FormValue("password")

	s.mu.Lock()
	defer s.mu.Unlock()
	acct := s.accounts[email]
	if acct == nil || acct.password != password {
		return unauthorized(c, "Incorrect email or password")
	}
	return c.JSON(http.StatusOK, map[string]string{"access_token": s.issueLocked(email), "token_type": "bearer"})
}

func (s *Server) handleSignup(c echo.Context) error {
	var req domain.SignupRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"detail": "Malformed body"})
	}
	if !strings.Contains(req.Email, "@") {
		return validationError(c, "email", "value is not a valid email address")
	}
	if req.Username == "" {
		return validationError(c, "username", "Field required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.accounts[req.Email]; exists {
		return c.JSON(http.StatusBadRequest, map[string]string{"detail": "Email already registered"})
	}
	u := s.addUserLocked(req)
	return c.JSON(http.StatusOK, userJSON(u))
}

func (s *Server) handleMe(c echo.Context, acct *account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return c.JSON(http.StatusOK, userJSON(acct.user))
}

func (s *Server) handleUpdateMe(c echo.Context, acct *account) error {
	var upd domain.ProfileUpdate
	if err := c.Bind(&upd); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"detail": "Malformed body"})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if upd.Username != nil {
		if *upd.Username == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"detail": "Username cannot be empty"})
		}
		for _, other := range s.accounts {
			if other != acct && other.user.Username == *upd.Username {
				return c.JSON(http.StatusBadRequest, map[string]string{"detail": "Username already taken"})
			}
		}
		acct.user.Username = *upd.Username
	}
	apply := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	apply(&acct.user.FirstName, upd.FirstName)
	apply(&acct.user.LastName, upd.LastName)
	apply(&acct.user.Bio, upd.Bio)
	apply(&acct.user.Location, upd.Location)
	acct.user.UpdatedAt = time.Now().UTC().Truncate(time.Microsecond)
	return c.JSON(http.StatusOK, userJSON(acct.user))
}

func (s *Server) handleListJobs(c echo.Context, _ *account) error {
	s.mu.Lock()
	gate := s.gate
	s.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-c.Request().Context().Done():
			return c.Request().Context().Err()
		}
	}

	skip, _ := strconv.Atoi(c.QueryParam("skip"))
	limit, err := strconv.Atoi(c.QueryParam("limit"))
	if err != nil || limit <= 0 {
		limit = 10
	}
	search := strings.ToLower(c.QueryParam("search"))
	categoryID, _ := strconv.ParseInt(c.QueryParam("category_id"), 10, 64)

	s.mu.Lock()
	filtered := make([]domain.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		if search != "" && !strings.Contains(strings.ToLower(j.Title), search) && !strings.Contains(strings.ToLower(j.Company), search) {
			continue
		}
		if categoryID > 0 && j.CategoryID != categoryID {
			continue
		}
		filtered = append(filtered, j)
	}
	items := s.itemsEnvelope
	s.mu.Unlock()

	sortJobs(filtered, c.QueryParam("sort_by"), c.QueryParam("sort_order"))

	total := len(filtered)
	if skip > total {
		skip = total
	}
	end := min(skip+limit, total)
	page := make([]map[string]any, 0, end-skip)
	for _, j := range filtered[skip:end] {
		page = append(page, jobJSON(j))
	}

	if items {
		return c.JSON(http.StatusOK, map[string]any{"items": page, "total": total, "limit": limit})
	}
	return c.JSON(http.StatusOK, map[string]any{"jobs": page, "total": total})
}

func sortJobs(jobs []domain.Job, by, order string) {
	less := func(a, b domain.Job) bool { return a.ID < b.ID }
	switch by {
	case "title":
		less = func(a, b domain.Job) bool { return a.Title < b.Title }
	case "company":
		less = func(a, b domain.Job) bool { return a.Company < b.Company }
	case "created_at":
		less = func(a, b domain.Job) bool { return a.CreatedAt.Before(b.CreatedAt) }
	}
	desc := order == "desc"
	sort.SliceStable(jobs, func(i, k int) bool {
		if desc {
			return less(jobs[k], jobs[i])
		}
		return less(jobs[i], jobs[k])
	})
}

func (s *Server) handleCreateJob(c echo.Context, _ *account) error {
	var in domain.JobInput
	if err := c.Bind(&in); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"detail": "Malformed body"})
	}
	if len(in.Title) < 2 {
		return validationError(c, "title", "String should have at least 2 characters")
	}
	if len(in.Company) < 2 {
		return validationError(c, "company", "String should have at least 2 characters")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.categoryLocked(in.CategoryID) == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"detail": "Category not found"})
	}
	return c.JSON(http.StatusOK, jobJSON(s.addJobLocked(in)))
}

func (s *Server) findJobLocked(c echo.Context) (int, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return 0, false
	}
	for i := range s.jobs {
		if s.jobs[i].ID == id {
			return i, true
		}
	}
	return 0, false
}

func (s *Server) handleGetJob(c echo.Context, _ *account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.findJobLocked(c)
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]string{"detail": "Job not found"})
	}
	return c.JSON(http.StatusOK, jobJSON(s.jobs[i]))
}

func (s *Server) handleUpdateJob(c echo.Context, _ *account) error {
	var patch domain.JobPatch
	if err := c.Bind(&patch); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"detail": "Malformed body"})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.findJobLocked(c)
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]string{"detail": "Job not found"})
	}
	j := &s.jobs[i]
	if patch.Title != nil {
		j.Title = *patch.Title
	}
	if patch.Company != nil {
		j.Company = *patch.Company
	}
	if patch.Location != nil {
		j.Location = *patch.Location
	}
	if patch.Description != nil {
		j.Description = *patch.Description
	}
	if patch.Status != nil {
		j.Status = *patch.Status
	}
	if patch.CategoryID != nil {
		j.CategoryID = *patch.CategoryID
		j.Category = s.categoryLocked(*patch.CategoryID)
	}
	return c.JSON(http.StatusOK, jobJSON(*j))
}

func (s *Server) handleDeleteJob(c echo.Context, _ *account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.findJobLocked(c)
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]string{"detail": "Job not found"})
	}
	s.jobs = append(s.jobs[:i], s.jobs[i+1:]...)
	return c.JSON(http.StatusOK, map[string]string{"message": "Job deleted successfully"})
}

func (s *Server) handleCategories(c echo.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]domain.Category{}, s.categories...)
	return c.JSON(http.StatusOK, out)
}

func userJSON(u domain.User) map[string]any {
	return map[string]any{
		"id":         u.ID,
		"username":   u.Username,
		"email":      u.Email,
		"first_name": nullable(u.FirstName),
		"last_name":  nullable(u.LastName),
		"bio":        nullable(u.Bio),
		"location":   nullable(u.Location),
		"is_active":  u.IsActive,
		"created_at": u.CreatedAt.Format(naiveLayout),
		"updated_at": u.UpdatedAt.Format(naiveLayout),
	}
}

func jobJSON(j domain.Job) map[string]any {
	out := map[string]any{
		"id":          j.ID,
		"title":       j.Title,
		"company":     j.Company,
		"category_id": j.CategoryID,
		"status":      string(j.Status),
		"created_at":  j.CreatedAt.Format(naiveLayout),
		"location":    nullable(j.Location),
		"description": nullable(j.Description),
	}
	if j.Category != nil {
		out["category"] = map[string]any{"id": j.Category.ID, "name": j.Category.Name}
	}
	return out
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
