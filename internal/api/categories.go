package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/Veraticus/bankflow/internal/model"
)

const categoriesPath = "/categories"

// ListCategories returns the user's custom categories.
func (c *Client) ListCategories(ctx context.Context) ([]model.CustomCategory, error) {
	var out struct {
		Categories []model.CustomCategory `json:"categories"`
	}
	if err := c.do(ctx, request{method: http.MethodGet, path: categoriesPath, resource: resourceCategories, out: &out}); err != nil {
		return nil, err
	}
	if out.Categories == nil {
		out.Categories = []model.CustomCategory{}
	}
	return out.Categories, nil
}

// CreateCategory adds a custom category.
func (c *Client) CreateCategory(ctx context.Context, name, iconPath string) (*model.CustomCategory, error) {
	var out struct {
		Category model.CustomCategory `json:"category"`
	}
	err := c.do(ctx, request{
		method:   http.MethodPost,
		path:     categoriesPath,
		resource: resourceCategories,
		body:     map[string]string{"name": name, "iconPath": iconPath},
		out:      &out,
	})
	if err != nil {
		return nil, err
	}
	return &out.Category, nil
}

// DeleteCategory removes a custom category.
func (c *Client) DeleteCategory(ctx context.Context, id string) error {
	return c.do(ctx, request{
		method:   http.MethodDelete,
		path:     categoriesPath + "/" + url.PathEscape(id),
		resource: resourceCategories,
	})
}
