// Package docker runs each work unit as a container on a single
// Docker host. Bundles and results are bind mounted, so the daemon
// must see the study directories at the same paths.
package docker

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/caesium-cloud/sweep/internal/cluster"
	"github.com/caesium-cloud/sweep/pkg/log"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/google/uuid"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

const (
	// Name is the registry key of the backend.
	Name = "docker"

	LabelManagedBy = "io.sweep.managed-by"
	LabelStudy     = "io.sweep.study"
	LabelStage     = "io.sweep.stage"
	LabelBatch     = "io.sweep.batch"
	LabelUnit      = "io.sweep.wu-id"
)

var stateMap = map[string]cluster.Completion{
	"created":    cluster.Running,
	"running":    cluster.Running,
	"paused":     cluster.Running,
	"restarting": cluster.Running,
	"removing":   cluster.Finished,
	"exited":     cluster.Finished,
	"dead":       cluster.Finished,
}

type dockerBackend interface {
	ContainerInspect(context.Context, string) (container.InspectResponse, error)
	ContainerCreate(context.Context, *container.Config, *container.HostConfig, *network.NetworkingConfig, *ocispec.Platform, string) (container.CreateResponse, error)
	ContainerStart(context.Context, string, container.StartOptions) error
	ImagePull(context.Context, string, image.PullOptions) (io.ReadCloser, error)
}

func init() {
	cluster.Register(Name, func(cfg cluster.Config) (cluster.Cluster, error) {
		cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
		if err != nil {
			return nil, err
		}
		return New(cli, cfg.Image), nil
	})
}

// Docker implements cluster.Cluster.
type Docker struct {
	backend dockerBackend
	image   string
}

func New(backend dockerBackend, image string) *Docker {
	return &Docker{backend: backend, image: image}
}

// Prepare pulls the image and creates the result directories.
func (d *Docker) Prepare(ctx context.Context, req *cluster.PrepareRequest) error {
	if d.image == "" {
		return fmt.Errorf("docker backend requires an image")
	}

	log.Info("pulling docker image", "image", d.image)

	r, err := d.backend.ImagePull(ctx, d.image, image.PullOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err := r.Close(); err != nil {
			log.Error("close docker pull reader", "error", err)
		}
	}()

	if _, err = io.Copy(io.Discard, r); err != nil {
		return err
	}

	for _, j := range req.Jobs {
		if err := os.MkdirAll(j.Dest, 0o755); err != nil {
			return err
		}
	}
	return nil
}

// Submit creates and starts one container per job. The container id
// is the unit's unique id.
func (d *Docker) Submit(ctx context.Context, req *cluster.SubmitRequest) (map[int64]string, error) {
	ids := make(map[int64]string, len(req.Jobs))

	for _, j := range req.Jobs {
		cfg, hostCfg := d.spec(req, j)
		name := fmt.Sprintf("sweep-%s-%s-%d-%s", req.Study, req.Stage, j.WorkUnitID, uuid.NewString()[:8])

		created, err := d.backend.ContainerCreate(ctx, cfg, hostCfg, nil, nil, name)
		if err != nil {
			return ids, fmt.Errorf("create container for work unit %d: %w", j.WorkUnitID, err)
		}

		if err := d.backend.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
			return ids, fmt.Errorf("start container for work unit %d: %w", j.WorkUnitID, err)
		}

		log.Debug("started docker container", "wu_id", j.WorkUnitID, "id", created.ID)
		ids[j.WorkUnitID] = created.ID
	}

	log.Info("submitted batch", "batch", req.BatchName, "containers", len(ids))
	return ids, nil
}

func (d *Docker) spec(req *cluster.SubmitRequest, j cluster.Job) (*container.Config, *container.HostConfig) {
	cfg := &container.Config{
		Image:      d.image,
		Cmd:        []string{req.Executable, strconv.FormatInt(j.WorkUnitID, 10), j.Bundle},
		WorkingDir: j.Dest,
		Labels: map[string]string{
			LabelManagedBy: "sweep",
			LabelStudy:     req.Study,
			LabelStage:     req.Stage,
			LabelBatch:     req.BatchName,
			LabelUnit:      strconv.FormatInt(j.WorkUnitID, 10),
		},
	}

	hostCfg := &container.HostConfig{
		Mounts: []mount.Mount{
			{Type: mount.TypeBind, Source: req.InputDir, Target: req.InputDir, ReadOnly: true},
			{Type: mount.TypeBind, Source: j.Dest, Target: j.Dest},
		},
	}

	return cfg, hostCfg
}

// CheckCompletion maps the container state. A container that no
// longer exists cannot be told apart from one never started, so it
// is Unknown.
func (d *Docker) CheckCompletion(ctx context.Context, uniqueID string) (cluster.Completion, error) {
	info, err := d.backend.ContainerInspect(ctx, uniqueID)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return cluster.Unknown, nil
		}
		return cluster.Unknown, err
	}

	if info.ContainerJSONBase == nil || info.State == nil {
		return cluster.Unknown, nil
	}
	if c, ok := stateMap[info.State.Status]; ok {
		return c, nil
	}
	return cluster.Unknown, nil
}
