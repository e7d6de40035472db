package deploy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
)

// StrategySelfHost names the local nginx strategy.
const StrategySelfHost = "selfhost"

// Reloader makes the web server pick up new site directories.
type Reloader interface {
	Reload(ctx context.Context) error
}

// SelfHostStrategy writes the artifact into a directory served by nginx.
type SelfHostStrategy struct {
	root         string
	domainSuffix string
	reloader     Reloader
}

// NewSelfHostStrategy serves sites from <root>/<subdomain>/index.html.
// reloader may be nil when the server picks up files on its own.
func NewSelfHostStrategy(root, domainSuffix string, reloader Reloader) (*SelfHostStrategy, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("selfhost root required")
	}
	return &SelfHostStrategy{root: root, domainSuffix: domainSuffix, reloader: reloader}, nil
}

func (s *SelfHostStrategy) Name() string { return StrategySelfHost }

func (s *SelfHostStrategy) Deploy(ctx context.Context, req Request) (Result, error) {
	if strings.ContainsAny(req.Subdomain, `/\`) || strings.Contains(req.Subdomain, "..") || req.Subdomain == "" {
		return Result{}, fmt.Errorf("invalid subdomain %q", req.Subdomain)
	}
	dir := filepath.Join(s.root, req.Subdomain)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Result{}, fmt.Errorf("create site dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".index-*.html")
	if err != nil {
		return Result{}, fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.WriteString(req.Artifact.HTML); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return Result{}, fmt.Errorf("write site: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return Result{}, fmt.Errorf("write site: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		os.Remove(tmp.Name())
		return Result{}, err
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, "index.html")); err != nil {
		os.Remove(tmp.Name())
		return Result{}, fmt.Errorf("publish site: %w", err)
	}
	if s.reloader != nil {
		if err := s.reloader.Reload(ctx); err != nil {
			return Result{}, fmt.Errorf("reload web server: %w", err)
		}
	}
	host := req.Subdomain + s.domainSuffix
	return Result{Subdomain: req.Subdomain, Domain: host, URL: "http://" + host}, nil
}

// DockerReloader triggers nginx reloads by signalling a Docker container.
type DockerReloader struct {
	client    *client.Client
	container string
}

// NewDockerReloader connects to the Docker daemon from the environment.
func NewDockerReloader(container string) (*DockerReloader, error) {
	container = strings.TrimSpace(container)
	if container == "" {
		return nil, fmt.Errorf("container name required")
	}
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, err
	}
	return &DockerReloader{client: cli, container: container}, nil
}

// Reload sends SIGHUP to the nginx container.
func (r *DockerReloader) Reload(ctx context.Context) error {
	if err := r.client.ContainerKill(ctx, r.container, "HUP"); err != nil {
		if errdefs.IsNotFound(err) {
			return fmt.Errorf("nginx container %s not found", r.container)
		}
		return err
	}
	return nil
}

// Close releases the Docker client.
func (r *DockerReloader) Close() error {
	return r.client.Close()
}
