package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/sarah-ghe/Job-Tracker/internal/domain"
)

func (c *Client) ListCategories(ctx context.Context) ([]domain.Category, error) {
	var cats []domain.Category
	if err := c.Do(ctx, http.MethodGet, "/categories/", nil, &cats); err != nil {
		return nil, err
	}
	if cats == nil {
		cats = []domain.Category{}
	}
	return cats, nil
}

// Ping checks that the API answers. Any response below 500 counts as reachable.
func (c *Client) Ping(ctx context.Context) error {
	err := c.Do(WithToken(ctx, ""), http.MethodGet, "/", nil, nil)
	var apiErr *Error
	if err != nil && (!errors.As(err, &apiErr) || apiErr.Kind == KindNetworkUnreachable || apiErr.Kind == KindServerFault) {
		return err
	}
	return nil
}
