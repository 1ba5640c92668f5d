package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/sarah-ghe/Job-Tracker/internal/domain"
)

type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Login exchanges credentials for a bearer token. The API's OAuth2 password flow names the
// email field "username". Credential calls never carry the persisted token, so a rejected
// password cannot invalidate the session that is already signed in.
func (c *Client) Login(ctx context.Context, email, password string) (*Token, error) {
	form := url.Values{}
	form.Set("username", email)
	form.Set("password", password)

	var tok Token
	if err := c.Do(WithToken(ctx, ""), http.MethodPost, "/token", form, &tok); err != nil {
		return nil, err
	}
	if tok.AccessToken == "" {
		return nil, &Error{Kind: KindUnexpected, Status: http.StatusOK, Method: http.MethodPost, Path: "/token", Message: "response carried no access token"}
	}
	return &tok, nil
}

// Signup creates an account. It does not authenticate.
func (c *Client) Signup(ctx context.Context, req domain.SignupRequest) (*domain.User, error) {
	var dto userDTO
	if err := c.Do(WithToken(ctx, ""), http.MethodPost, "/users/", req, &dto); err != nil {
		return nil, err
	}
	return dto.toDomain(), nil
}
