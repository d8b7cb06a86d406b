package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/shehryarbajwa/tabhost/pkg/models"
)

// apiClient talks to a running tabhost server
type apiClient struct {
	http *resty.Client
}

func newClient(server string) *apiClient {
	r := resty.New().
		SetBaseURL(strings.TrimSuffix(server, "/")+"/v1").
		SetTimeout(30*time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("X-Client-ID", "tabctl")
	return &apiClient{http: r}
}

// send executes a request and turns non-2xx answers into errors carrying the
// server's message
func (c *apiClient) send(ctx context.Context, method, path string, body, result any) (*resty.Response, error) {
	req := c.http.R().SetContext(ctx)
	if body != nil {
		req.SetBody(body)
	}
	if result != nil {
		req.SetResult(result)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%s %s: %s: %s", method, path, resp.Status(), strings.TrimSpace(resp.String()))
	}
	return resp, nil
}

func (c *apiClient) tabs(ctx context.Context) ([]models.TabView, error) {
	var out []models.TabView
	_, err := c.send(ctx, resty.MethodGet, "/tabs", nil, &out)
	return out, err
}

func (c *apiClient) open(ctx context.Context, req models.CreateTabRequest) (models.TabView, error) {
	var out models.TabView
	_, err := c.send(ctx, resty.MethodPost, "/tabs", req, &out)
	return out, err
}

// tabAction posts a body-less command to /tabs/{id}/{action}
func (c *apiClient) tabAction(ctx context.Context, id, action string) (models.TabView, error) {
	var out models.TabView
	_, err := c.send(ctx, resty.MethodPost, "/tabs/"+id+"/"+action, nil, &out)
	return out, err
}

func (c *apiClient) navigate(ctx context.Context, id, input string) (models.TabView, error) {
	var out models.TabView
	_, err := c.send(ctx, resty.MethodPost, "/tabs/"+id+"/navigate", models.NavigateRequest{URL: input}, &out)
	return out, err
}

func (c *apiClient) close(ctx context.Context, id string) error {
	_, err := c.send(ctx, resty.MethodDelete, "/tabs/"+id, nil, nil)
	return err
}

func (c *apiClient) layout(ctx context.Context) (models.LayoutView, error) {
	var out models.LayoutView
	_, err := c.send(ctx, resty.MethodGet, "/layout", nil, &out)
	return out, err
}

func (c *apiClient) settings(ctx context.Context) (models.Settings, error) {
	var out models.Settings
	_, err := c.send(ctx, resty.MethodGet, "/settings", nil, &out)
	return out, err
}

func (c *apiClient) updateSettings(ctx context.Context, patch models.SettingsPatch) (models.Settings, error) {
	var out models.Settings
	_, err := c.send(ctx, resty.MethodPut, "/settings", patch, &out)
	return out, err
}

// backup returns the backup document exactly as the server sent it
func (c *apiClient) backup(ctx context.Context) ([]byte, error) {
	resp, err := c.send(ctx, resty.MethodGet, "/session/backup", nil, nil)
	if err != nil {
		return nil, err
	}
	return resp.Body(), nil
}

func (c *apiClient) restore(ctx context.Context, data []byte) (models.RestoreResponse, error) {
	var out models.RestoreResponse
	_, err := c.send(ctx, resty.MethodPost, "/session/restore", data, &out)
	return out, err
}
