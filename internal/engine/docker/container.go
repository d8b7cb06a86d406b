package docker

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/go-connections/nat"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/shehryarbajwa/tabhost/internal/engine"
	"github.com/shehryarbajwa/tabhost/pkg/models"
)

const (
	managedBy   = "tabhost"
	devtoolPort = nat.Port("3000/tcp")
)

// launch starts one browser container for a surface, with the partition's
// directory mounted as the profile, and waits until it accepts connections.
// It returns the container id and the published host port.
func (e *Engine) launch(ctx context.Context, surfaceID string, p *Partition) (string, string, error) {
	cfg := &container.Config{
		Image: e.opts.Image,
		Labels: map[string]string{
			"tab-surface": surfaceID,
			"partition":   string(p.key),
			"managed-by":  managedBy,
		},
		Env: []string{
			"CONNECTION_TIMEOUT=-1",
			"MAX_CONCURRENT_SESSIONS=1",
			"PREBOOT_CHROME=true",
			"KEEP_ALIVE=true",
			"EXIT_ON_HEALTH_FAILURE=false",
		},
		ExposedPorts: nat.PortSet{devtoolPort: struct{}{}},
	}
	host := &container.HostConfig{
		PortBindings: nat.PortMap{
			devtoolPort: []nat.PortBinding{{HostIP: "127.0.0.1", HostPort: "0"}},
		},
		Mounts: []mount.Mount{{
			Type:   mount.TypeBind,
			Source: p.dir,
			Target: "/data",
		}},
	}

	resp, err := e.client.ContainerCreate(ctx, cfg, host, nil, nil, "tab-"+surfaceID[:8])
	if err != nil {
		return "", "", fmt.Errorf("failed to create container: %w", err)
	}
	if err := e.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		e.remove(resp.ID)
		return "", "", fmt.Errorf("failed to start container: %w", err)
	}

	inspect, err := e.client.ContainerInspect(ctx, resp.ID)
	if err != nil {
		e.remove(resp.ID)
		return "", "", fmt.Errorf("failed to inspect container: %w", err)
	}
	bindings := inspect.NetworkSettings.Ports[devtoolPort]
	if len(bindings) == 0 {
		e.remove(resp.ID)
		return "", "", fmt.Errorf("container %s published no devtools port", resp.ID[:12])
	}
	port := bindings[0].HostPort

	if err := e.waitReady(ctx, port); err != nil {
		e.remove(resp.ID)
		return "", "", fmt.Errorf("browser failed to become ready: %w", err)
	}
	return resp.ID, port, nil
}

// waitReady polls /json/version until the browser answers
func (e *Engine) waitReady(ctx context.Context, port string) error {
	ctx, cancel := context.WithTimeout(ctx, e.opts.ReadyTimeout)
	defer cancel()

	client := retryablehttp.NewClient()
	client.RetryMax = 100
	client.RetryWaitMin = 250 * time.Millisecond
	client.RetryWaitMax = time.Second
	client.Logger = nil

	endpoint := fmt.Sprintf("http://localhost:%s/json/version", port)
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("browser on port %s not ready: %w", port, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("browser on port %s answered %s", port, resp.Status)
	}
	return nil
}

// remove stops and deletes a container in the background
func (e *Engine) remove(containerID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		if err := e.stop(ctx, containerID); err != nil {
			e.log.Warn("failed to remove container", zap.String("container", containerID), zap.Error(err))
		}
	}()
}

func (e *Engine) stop(ctx context.Context, containerID string) error {
	timeout := 10
	if err := e.client.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &timeout}); err != nil {
		return fmt.Errorf("failed to stop container: %w", err)
	}
	if err := e.client.ContainerRemove(ctx, containerID, container.RemoveOptions{}); err != nil {
		return fmt.Errorf("failed to remove container: %w", err)
	}
	return nil
}

// EnsureImage pulls the browser image unless it is already present
func (e *Engine) EnsureImage(ctx context.Context) error {
	images, err := e.client.ImageList(ctx, image.ListOptions{})
	if err != nil {
		return fmt.Errorf("failed to list images: %w", err)
	}
	for _, img := range images {
		for _, tag := range img.RepoTags {
			if tag == e.opts.Image {
				return nil
			}
		}
	}

	e.log.Info("pulling browser image", zap.String("image", e.opts.Image))
	reader, err := e.client.ImagePull(ctx, e.opts.Image, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image: %w", err)
	}
	defer reader.Close()

	_, err = io.Copy(io.Discard, reader)
	return err
}

// RemoveOrphans deletes containers a previous run left behind
func (e *Engine) RemoveOrphans(ctx context.Context) error {
	list, err := e.client.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("label", "managed-by="+managedBy)),
	})
	if err != nil {
		return fmt.Errorf("failed to list containers: %w", err)
	}
	for _, c := range list {
		if err := e.client.ContainerRemove(ctx, c.ID, container.RemoveOptions{Force: true}); err != nil {
			e.log.Warn("failed to remove orphaned container", zap.String("container", c.ID), zap.Error(err))
		}
	}
	if len(list) > 0 {
		e.log.Info("removed orphaned containers", zap.Int("count", len(list)))
	}
	return nil
}

// launchQuery carries chrome launch flags on the devtools URL, which is how
// browserless accepts them.
func launchQuery(proxy engine.ProxyConfig) url.Values {
	q := url.Values{}
	q.Set("--user-data-dir", "/data")
	switch proxy.Mode {
	case models.ProxyDirect:
		q.Set("--no-proxy-server", "")
	case models.ProxyFixed:
		q.Set("--proxy-server", proxy.Rules)
		if proxy.Bypass != "" {
			q.Set("--proxy-bypass-list", proxy.Bypass)
		}
	case models.ProxyPAC:
		q.Set("--proxy-pac-url", proxy.Rules)
	}
	return q
}
