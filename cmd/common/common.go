// Package common holds the plumbing shared by every sweep command.
package common

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/caesium-cloud/sweep/internal/cluster"
	"github.com/caesium-cloud/sweep/internal/store"
	"github.com/caesium-cloud/sweep/internal/study"
	"github.com/caesium-cloud/sweep/pkg/db"
	"github.com/caesium-cloud/sweep/pkg/env"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

const definitionFile = "study.yaml"

var studyPath string

// BindFlags registers the flags every command inherits.
func BindFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&studyPath, "study", "", "Path to the study definition (default: $SWEEP_STUDYPATH/study.yaml)")
}

// Session is an opened study with its database.
type Session struct {
	Definition *study.Definition
	DB         *gorm.DB
	Store      store.Store
}

// Open loads the study definition and connects to its database.
func Open(ctx context.Context) (*Session, error) {
	vars := env.Variables()

	path := studyPath
	if path == "" {
		path = filepath.Join(vars.StudyPath, definitionFile)
	}

	def, err := study.Load(path)
	if err != nil {
		return nil, err
	}

	if vars.DatabaseDSN == "" {
		vars.StudyPath = def.Dir
	}
	gdb, err := db.Open(vars)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Migrate(gdb.WithContext(ctx)); err != nil {
		db.Close(gdb)
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	return &Session{Definition: def, DB: gdb, Store: store.New(gdb)}, nil
}

// Close releases the database connection.
func (s *Session) Close() error {
	return db.Close(s.DB)
}

// Stages resolves the --stage flag. An empty name selects every stage,
// root first.
func (s *Session) Stages(name string) ([]*study.Stage, error) {
	if name != "" {
		st, err := s.Definition.Stage(name)
		if err != nil {
			return nil, err
		}
		return []*study.Stage{st}, nil
	}

	stages := []*study.Stage{s.Definition.Root()}
	for i := range s.Definition.Stages {
		if st := &s.Definition.Stages[i]; st.Dependent() {
			stages = append(stages, st)
		}
	}
	return stages, nil
}

// Cluster builds the configured backend.
func Cluster() (cluster.Cluster, string, error) {
	vars := env.Variables()

	c, err := cluster.New(vars.Cluster, cluster.Config{
		BinDir:      vars.CondorBinDir,
		KubeConfig:  vars.KubernetesConfig,
		Namespace:   vars.KubernetesNamespace,
		Image:       vars.ContainerImage,
		Parallelism: vars.KubernetesParallelism,
	})
	return c, vars.Cluster, err
}

// RetryPolicy returns the configured submission retry policy.
func RetryPolicy() cluster.RetryPolicy {
	vars := env.Variables()

	return cluster.RetryPolicy{
		MaxAttempts:     vars.SubmitTrials,
		InitialInterval: vars.SubmitBackoff,
		MaxInterval:     vars.SubmitMaxBackoff,
	}
}

// Printf writes to the command's output.
func Printf(cmd *cobra.Command, format string, args ...any) error {
	if _, err := fmt.Fprintf(cmd.OutOrStdout(), format, args...); err != nil {
		cmd.PrintErrf("write output: %v\n", err)
		return err
	}
	return nil
}
