// Package docker adapts the Docker Engine API to the worker runtime port.
package docker

import (
	"context"
	"fmt"
	"strings"

	"github.com/ulearning-intl/bigbluebutton-streaming/internal/core/domain"
	"github.com/ulearning-intl/bigbluebutton-streaming/internal/core/ports"
	"github.com/ulearning-intl/bigbluebutton-streaming/pkg/tracing"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"go.uber.org/zap"
)

// engineAPI is the part of *client.Client the runtime uses.
type engineAPI interface {
	ContainerList(ctx context.Context, options container.ListOptions) ([]types.Container, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig,
		networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	Ping(ctx context.Context) (types.Ping, error)
	Close() error
}

// Runtime runs stream workers as containers on one Docker host.
type Runtime struct {
	api    engineAPI
	logger *zap.SugaredLogger
}

// NewRuntime connects using the standard DOCKER_HOST/DOCKER_* environment,
// falling back to host when it is set.
func NewRuntime(host string, logger *zap.SugaredLogger) (*Runtime, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return newRuntime(cli, logger), nil
}

func newRuntime(api engineAPI, logger *zap.SugaredLogger) *Runtime {
	return &Runtime{api: api, logger: logger}
}

func (r *Runtime) ListInstances(ctx context.Context, image string) ([]domain.WorkerInstance, error) {
	ctx, span := tracing.TraceRuntimeCall(ctx, "list")
	defer span.End()

	containers, err := r.api.ContainerList(ctx, container.ListOptions{All: true})
	if err != nil {
		tracing.RecordError(ctx, err)
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	instances := make([]domain.WorkerInstance, 0, len(containers))
	for _, c := range containers {
		if c.Image != image {
			continue
		}
		instances = append(instances, domain.WorkerInstance{
			ID:    c.ID,
			Name:  containerName(c.Names),
			Image: c.Image,
			State: domain.ParseInstanceState(c.State),
		})
	}
	return instances, nil
}

func (r *Runtime) CreateInstance(ctx context.Context, spec domain.WorkerSpec) (domain.InstanceHandle, error) {
	ctx, span := tracing.TraceRuntimeCall(ctx, "create")
	defer span.End()
	tracing.AddSpanAttributes(ctx,
		tracing.WorkerNameKey.String(spec.Name),
		tracing.WorkerImageKey.String(spec.Image),
	)

	binds := make([]string, 0, len(spec.Binds))
	for _, b := range spec.Binds {
		binds = append(binds, b.String())
	}

	resp, err := r.api.ContainerCreate(ctx,
		&container.Config{
			Image:  spec.Image,
			Env:    spec.EnvList(),
			Labels: spec.Labels,
			Tty:    false,
		},
		&container.HostConfig{
			AutoRemove: spec.AutoRemove,
			Binds:      binds,
		},
		nil, nil, spec.Name,
	)
	if err != nil {
		tracing.RecordError(ctx, err)
		switch {
		case errdefs.IsConflict(err):
			return domain.InstanceHandle{}, fmt.Errorf("%w: %s", domain.ErrNameConflict, spec.Name)
		case errdefs.IsNotFound(err):
			return domain.InstanceHandle{}, fmt.Errorf("%w: %s", domain.ErrImageNotFound, spec.Image)
		}
		return domain.InstanceHandle{}, fmt.Errorf("failed to create container %s: %w", spec.Name, err)
	}

	for _, w := range resp.Warnings {
		r.logger.Warnw("docker create warning", "worker", spec.Name, "warning", w)
	}
	return domain.InstanceHandle{ID: resp.ID, Name: spec.Name}, nil
}

func (r *Runtime) StartInstance(ctx context.Context, handle domain.InstanceHandle) error {
	ctx, span := tracing.TraceRuntimeCall(ctx, "start")
	defer span.End()
	tracing.AddSpanAttributes(ctx, tracing.WorkerNameKey.String(handle.Name))

	if err := r.api.ContainerStart(ctx, handleRef(handle), container.StartOptions{}); err != nil {
		tracing.RecordError(ctx, err)
		if errdefs.IsNotFound(err) {
			return fmt.Errorf("%w: %s", domain.ErrInstanceNotFound, handle.Name)
		}
		return fmt.Errorf("failed to start container %s: %w", handle.Name, err)
	}
	return nil
}

func (r *Runtime) RemoveInstance(ctx context.Context, name string, force bool) error {
	ctx, span := tracing.TraceRuntimeCall(ctx, "remove")
	defer span.End()
	tracing.AddSpanAttributes(ctx, tracing.WorkerNameKey.String(name))

	err := r.api.ContainerRemove(ctx, name, container.RemoveOptions{Force: force})
	if err == nil {
		return nil
	}
	if errdefs.IsNotFound(err) {
		return fmt.Errorf("%w: %s", domain.ErrInstanceNotFound, name)
	}
	// A removal already in progress (auto-remove) finishes on its own.
	if errdefs.IsConflict(err) && strings.Contains(err.Error(), "already in progress") {
		return nil
	}
	tracing.RecordError(ctx, err)
	return fmt.Errorf("failed to remove container %s: %w", name, err)
}

func (r *Runtime) Ping(ctx context.Context) error {
	if _, err := r.api.Ping(ctx); err != nil {
		return fmt.Errorf("docker daemon unreachable: %w", err)
	}
	return nil
}

func (r *Runtime) Close() error {
	return r.api.Close()
}

func handleRef(h domain.InstanceHandle) string {
	if h.ID != "" {
		return h.ID
	}
	return h.Name
}

// containerName strips the leading slash the engine puts on names.
func containerName(names []string) string {
	if len(names) == 0 {
		return ""
	}
	return strings.TrimPrefix(names[0], "/")
}

var _ ports.WorkerRuntime = (*Runtime)(nil)
