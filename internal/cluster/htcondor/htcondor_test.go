package htcondor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/caesium-cloud/sweep/internal/cluster"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

type mockRunner struct {
	mock.Mock
}

func (m *mockRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	call := m.Called(name, args)
	out, _ := call.Get(0).([]byte)
	return out, call.Error(1)
}

type CondorTestSuite struct {
	suite.Suite
	runner *mockRunner
	condor *Condor
	dir    string
}

func TestCondorTestSuite(t *testing.T) {
	suite.Run(t, new(CondorTestSuite))
}

func (s *CondorTestSuite) SetupTest() {
	s.runner = &mockRunner{}
	s.condor = New(s.runner)
	s.dir = s.T().TempDir()
}

func (s *CondorTestSuite) prepare() *cluster.PrepareRequest {
	req := &cluster.PrepareRequest{
		Study:      "demo",
		Stage:      "stage_a",
		Executable: "/opt/run.sh",
		InputDir:   filepath.Join(s.dir, "in"),
		Jobs: []cluster.Job{
			{WorkUnitID: 4, Bundle: filepath.Join(s.dir, "in", "4.yaml"), Dest: filepath.Join(s.dir, "out", "4")},
			{WorkUnitID: 7, Bundle: filepath.Join(s.dir, "in", "7.yaml"), Dest: filepath.Join(s.dir, "out", "7")},
		},
	}
	s.Require().NoError(s.condor.Prepare(context.Background(), req))
	return req
}

func (s *CondorTestSuite) TestPrepare() {
	req := s.prepare()

	list, err := os.ReadFile(filepath.Join(req.InputDir, jobsList))
	s.Require().NoError(err)
	s.Contains(string(list), "4, "+req.Jobs[0].Bundle)

	sub, err := os.ReadFile(filepath.Join(req.InputDir, submitFile))
	s.Require().NoError(err)
	s.Contains(string(sub), "executable = /opt/run.sh")
	s.Contains(string(sub), "queue wu_id, bundle, dest from "+filepath.Join(req.InputDir, jobsList))

	info, err := os.Stat(req.Jobs[1].Dest)
	s.Require().NoError(err)
	s.True(info.IsDir())
}

func (s *CondorTestSuite) TestSubmit() {
	req := s.prepare()

	s.runner.On("Run", "condor_submit", mock.Anything).
		Return([]byte("1234.0 - 1234.1\n"), nil)

	ids, err := s.condor.Submit(context.Background(), &cluster.SubmitRequest{
		InputDir:  req.InputDir,
		BatchName: "demo/stage_a_1",
	})
	s.Require().NoError(err)
	s.Equal(map[int64]string{4: "1234.0", 7: "1234.1"}, ids)

	args := s.runner.Calls[0].Arguments.Get(1).([]string)
	s.Contains(args, "demo/stage_a_1")
	s.runner.AssertExpectations(s.T())
}

func (s *CondorTestSuite) TestSubmitError() {
	req := s.prepare()

	s.runner.On("Run", "condor_submit", mock.Anything).
		Return(nil, errors.New("schedd unreachable"))

	_, err := s.condor.Submit(context.Background(), &cluster.SubmitRequest{InputDir: req.InputDir})
	s.Error(err)
}

func (s *CondorTestSuite) TestParseSubmit() {
	id, err := parseSubmit([]byte("Submitting job(s)..\n2 job(s) submitted to cluster 88.\n"))
	s.Require().NoError(err)
	s.Equal(int64(88), id)

	_, err = parseSubmit([]byte("ERROR: on Line 3"))
	s.Error(err)
}

func (s *CondorTestSuite) TestCheckCompletionQueue() {
	s.runner.On("Run", "condor_q", []string{"12.3", "-af", "JobStatus"}).
		Return([]byte("2\n"), nil).Once()

	c, err := s.condor.CheckCompletion(context.Background(), "12.3")
	s.Require().NoError(err)
	s.Equal(cluster.Running, c)
}

func (s *CondorTestSuite) TestCheckCompletionHistory() {
	s.runner.On("Run", "condor_q", mock.Anything).Return([]byte(""), nil)
	s.runner.On("Run", "condor_history", mock.Anything).Return([]byte("4\n"), nil)

	c, err := s.condor.CheckCompletion(context.Background(), "12.3")
	s.Require().NoError(err)
	s.Equal(cluster.Finished, c)
}

func (s *CondorTestSuite) TestCheckCompletionUnknown() {
	s.runner.On("Run", "condor_q", mock.Anything).Return([]byte(""), nil)
	s.runner.On("Run", "condor_history", mock.Anything).Return([]byte(""), nil)

	c, err := s.condor.CheckCompletion(context.Background(), "12.3")
	s.Require().NoError(err)
	s.Equal(cluster.Unknown, c)

	c, err = s.condor.CheckCompletion(context.Background(), "not-a-job")
	s.Error(err)
	s.Equal(cluster.Unknown, c)
}

func (s *CondorTestSuite) TestCheckCompletionError() {
	s.runner.On("Run", "condor_q", mock.Anything).Return(nil, errors.New("timeout"))

	c, err := s.condor.CheckCompletion(context.Background(), "12.3")
	s.Error(err)
	s.Equal(cluster.Unknown, c)
}

func (s *CondorTestSuite) TestRegistered() {
	c, err := cluster.New(Name, cluster.Config{BinDir: "/usr/bin"})
	s.Require().NoError(err)
	s.IsType(&Condor{}, c)
}
