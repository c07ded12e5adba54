package env

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

type EnvTestSuite struct {
	suite.Suite
}

func (s *EnvTestSuite) TearDownTest() {
	os.Unsetenv("SWEEP_PORT")
	os.Unsetenv("SWEEP_LOGLEVEL")
	os.Unsetenv("SWEEP_SUBMITTRIALS")
}

func (s *EnvTestSuite) TestProcess() {
	assert.Nil(s.T(), Process())
	assert.NotNil(s.T(), Variables())
	assert.Equal(s.T(), "info", Variables().LogLevel)
	assert.Equal(s.T(), "sqlite", Variables().DatabaseType)
	assert.Equal(s.T(), 5, Variables().SubmitTrials)
	assert.Equal(s.T(), 2*time.Second, Variables().SubmitBackoff)
	assert.True(s.T(), Variables().GatherReclaim)
}

func (s *EnvTestSuite) TestProcessOverride() {
	os.Setenv("SWEEP_SUBMITTRIALS", "9")
	assert.Nil(s.T(), Process())
	assert.Equal(s.T(), 9, Variables().SubmitTrials)
}

func (s *EnvTestSuite) TestProcessInvalidTypeFailure() {
	os.Setenv("SWEEP_PORT", "not_a_port")
	assert.NotNil(s.T(), Process())
}

func (s *EnvTestSuite) TestProcessInvalidLogLevelFailure() {
	os.Setenv("SWEEP_LOGLEVEL", "bogus")
	assert.NotNil(s.T(), Process())
}

func TestEnvTestSuite(t *testing.T) {
	suite.Run(t, new(EnvTestSuite))
}
