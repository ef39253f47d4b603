package box

import (
	"context"
	"net/http"
	"strconv"
)

type UsersManager struct {
	client *Client
}

// List lists the users of the enterprise, using marker paging.
func (m *UsersManager) List(ctx context.Context, limit int) (*Iterator[User], error) {
	req := NewRequest(http.MethodGet, m.client.api("/users", nil))
	req.Query.Set("usemarker", "true")
	if limit > 0 {
		req.Query.Set("limit", strconv.Itoa(limit))
	}

	resp, err := m.client.call(ctx, req, nil, http.StatusOK)
	if err != nil {
		return nil, err
	}
	return NewIterator[User](m.client, resp)
}

// Me returns the authenticated user.
func (m *UsersManager) Me(ctx context.Context) (*User, error) {
	req := NewRequest(http.MethodGet, m.client.api("/users/me", nil))

	var user User
	if _, err := m.client.call(ctx, req, &user, http.StatusOK); err != nil {
		return nil, err
	}
	return &user, nil
}
