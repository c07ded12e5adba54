package env

import (
	"time"

	"github.com/caesium-cloud/sweep/pkg/log"
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
)

var variables = new(Environment)

// Process the environment variables set for sweep.
func Process() error {
	if err := envconfig.Process("sweep", variables); err != nil {
		return errors.Wrap(err, "failed to process environment variables")
	}

	// set the log level
	if err := log.SetLevel(variables.LogLevel); err != nil {
		return errors.Wrap(err, "failed to set log level")
	}

	return nil
}

// Variables returns the processed environment variables.
func Variables() Environment {
	return *variables
}

// Environment defines the environment variables used
// by sweep.
type Environment struct {
	LogLevel              string        `default:"info"`
	Port                  int           `default:"8080"`
	StudyPath             string        `default:"."`
	DatabaseType          string        `default:"sqlite"`
	DatabaseDSN           string        `default:""` // <study>/data.db
	Cluster               string        `default:"htcondor"`
	SubmitTrials          int           `default:"5"`
	SubmitBackoff         time.Duration `default:"2s"`
	SubmitMaxBackoff      time.Duration `default:"1m"`
	GatherSchedule        string        `default:"*/10 * * * *"`
	GatherTimezone        string        `default:""`
	GatherReclaim         bool          `default:"true"`
	CondorBinDir          string        `default:""`
	KubernetesConfig      string        `default:""`
	KubernetesNamespace   string        `default:"default"`
	ContainerImage        string        `default:""`
	KubernetesParallelism int           `default:"8"`
}
