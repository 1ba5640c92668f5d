package api

import (
	"context"
	"net/http"

	"github.com/sarah-ghe/Job-Tracker/internal/domain"
)

func (c *Client) CurrentUser(ctx context.Context) (*domain.User, error) {
	var dto userDTO
	if err := c.Do(ctx, http.MethodGet, "/users/me", nil, &dto); err != nil {
		return nil, err
	}
	return dto.toDomain(), nil
}

func (c *Client) UpdateProfile(ctx context.Context, update domain.ProfileUpdate) (*domain.User, error) {
	var dto userDTO
	if err := c.Do(ctx, http.MethodPut, "/users/me", update, &dto); err != nil {
		return nil, err
	}
	return dto.toDomain(), nil
}
