package docker

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/caesium-cloud/sweep/internal/cluster"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/errdefs"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

type mockDockerBackend struct {
	mock.Mock
}

func (m *mockDockerBackend) ContainerInspect(ctx context.Context, id string) (container.InspectResponse, error) {
	args := m.Called(id)
	return args.Get(0).(container.InspectResponse), args.Error(1)
}

func (m *mockDockerBackend) ContainerCreate(ctx context.Context, cfg *container.Config, hostCfg *container.HostConfig, netCfg *network.NetworkingConfig, platform *ocispec.Platform, name string) (container.CreateResponse, error) {
	args := m.Called(cfg, hostCfg, name)
	return args.Get(0).(container.CreateResponse), args.Error(1)
}

func (m *mockDockerBackend) ContainerStart(ctx context.Context, id string, opts container.StartOptions) error {
	return m.Called(id).Error(0)
}

func (m *mockDockerBackend) ImagePull(ctx context.Context, ref string, opts image.PullOptions) (io.ReadCloser, error) {
	args := m.Called(ref)
	if err := args.Error(0); err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader([]byte("pull"))), nil
}

func inspect(status string) container.InspectResponse {
	return container.InspectResponse{
		ContainerJSONBase: &container.ContainerJSONBase{
			State: &container.State{Status: status},
		},
	}
}

type DockerTestSuite struct {
	suite.Suite
	backend *mockDockerBackend
	docker  *Docker
	dir     string
}

func TestDockerTestSuite(t *testing.T) {
	suite.Run(t, new(DockerTestSuite))
}

func (s *DockerTestSuite) SetupTest() {
	s.backend = &mockDockerBackend{}
	s.docker = New(s.backend, "registry.local/madx:5")
	s.dir = s.T().TempDir()
}

func (s *DockerTestSuite) request() *cluster.SubmitRequest {
	return &cluster.SubmitRequest{
		Study:      "demo",
		Stage:      "stage_a",
		Executable: "/opt/run.sh",
		InputDir:   s.dir + "/in",
		OutputDir:  s.dir + "/out",
		BatchName:  "demo/stage_a_1",
		Jobs: []cluster.Job{
			{WorkUnitID: 1, Bundle: s.dir + "/in/1.yaml", Dest: s.dir + "/out/1"},
			{WorkUnitID: 2, Bundle: s.dir + "/in/2.yaml", Dest: s.dir + "/out/2"},
		},
	}
}

func (s *DockerTestSuite) TestPrepare() {
	s.backend.On("ImagePull", "registry.local/madx:5").Return(nil)

	req := &cluster.PrepareRequest{Jobs: s.request().Jobs}
	s.Require().NoError(s.docker.Prepare(context.Background(), req))
	s.DirExists(s.dir + "/out/2")

	s.Error(New(s.backend, "").Prepare(context.Background(), req))
}

func (s *DockerTestSuite) TestSubmit() {
	s.backend.On("ContainerCreate", mock.Anything, mock.Anything, mock.AnythingOfType("string")).
		Return(container.CreateResponse{ID: "c1"}, nil).Once()
	s.backend.On("ContainerCreate", mock.Anything, mock.Anything, mock.AnythingOfType("string")).
		Return(container.CreateResponse{ID: "c2"}, nil).Once()
	s.backend.On("ContainerStart", mock.Anything).Return(nil)

	ids, err := s.docker.Submit(context.Background(), s.request())
	s.Require().NoError(err)
	s.Equal(map[int64]string{1: "c1", 2: "c2"}, ids)

	call := s.backend.Calls[0]
	cfg := call.Arguments.Get(0).(*container.Config)
	hostCfg := call.Arguments.Get(1).(*container.HostConfig)
	s.Equal([]string{"/opt/run.sh", "1", s.dir + "/in/1.yaml"}, []string(cfg.Cmd))
	s.Equal("1", cfg.Labels[LabelUnit])
	s.Equal("demo/stage_a_1", cfg.Labels[LabelBatch])
	s.Require().Len(hostCfg.Mounts, 2)
	s.Equal(mount.TypeBind, hostCfg.Mounts[0].Type)
	s.True(hostCfg.Mounts[0].ReadOnly)
	s.Contains(call.Arguments.String(2), "sweep-demo-stage_a-1-")
}

func (s *DockerTestSuite) TestSubmitPartialFailure() {
	s.backend.On("ContainerCreate", mock.Anything, mock.Anything, mock.AnythingOfType("string")).
		Return(container.CreateResponse{ID: "c1"}, nil).Once()
	s.backend.On("ContainerCreate", mock.Anything, mock.Anything, mock.AnythingOfType("string")).
		Return(container.CreateResponse{}, errors.New("no space left on device")).Once()
	s.backend.On("ContainerStart", "c1").Return(nil)

	ids, err := s.docker.Submit(context.Background(), s.request())
	s.Error(err)
	s.Equal(map[int64]string{1: "c1"}, ids)
}

func (s *DockerTestSuite) TestCheckCompletion() {
	cases := map[string]struct {
		resp container.InspectResponse
		err  error
		want cluster.Completion
	}{
		"running": {resp: inspect("running"), want: cluster.Running},
		"created": {resp: inspect("created"), want: cluster.Running},
		"exited":  {resp: inspect("exited"), want: cluster.Finished},
		"dead":    {resp: inspect("dead"), want: cluster.Finished},
		"gone":    {err: errdefs.NotFound(errors.New("no such container")), want: cluster.Unknown},
	}

	for id, tc := range cases {
		s.backend.On("ContainerInspect", id).Return(tc.resp, tc.err)

		got, err := s.docker.CheckCompletion(context.Background(), id)
		s.NoError(err, id)
		s.Equal(tc.want, got, id)
	}

	s.backend.On("ContainerInspect", "broken").Return(container.InspectResponse{}, errors.New("daemon unreachable"))
	got, err := s.docker.CheckCompletion(context.Background(), "broken")
	s.Error(err)
	s.Equal(cluster.Unknown, got)
}
