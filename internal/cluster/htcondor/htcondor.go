// Package htcondor dispatches work units to an HTCondor pool through
// its command line tools.
package htcondor

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"text/template"

	"github.com/caesium-cloud/sweep/internal/cluster"
	"github.com/caesium-cloud/sweep/pkg/log"
)

const (
	// Name is the registry key of the backend.
	Name = "htcondor"

	jobsList   = "jobs.list"
	submitFile = "htcondor.sub"
)

func init() {
	cluster.Register(Name, func(cfg cluster.Config) (cluster.Cluster, error) {
		return New(&execRunner{binDir: cfg.BinDir}), nil
	})
}

// Runner executes a condor command and returns its standard output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct {
	binDir string
}

func (r *execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	if r.binDir != "" {
		name = filepath.Join(r.binDir, name)
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		return out, fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

// Condor implements cluster.Cluster.
type Condor struct {
	runner Runner
}

// New returns a backend that runs condor tools through runner.
func New(runner Runner) *Condor {
	return &Condor{runner: runner}
}

var submitTemplate = template.Must(template.New(submitFile).Parse(`universe = vanilla
executable = {{ .Executable }}
arguments = $(wu_id) $(bundle)
initialdir = $(dest)
output = $(dest)/htcondor.$(ClusterId).$(ProcId).out
error = $(dest)/htcondor.$(ClusterId).$(ProcId).err
log = $(dest)/htcondor.$(ClusterId).$(ProcId).log
transfer_input_files = $(bundle)
should_transfer_files = YES
when_to_transfer_output = ON_EXIT
+JobFlavour = "tomorrow"
queue wu_id, bundle, dest from {{ .JobsList }}
`))

// Prepare writes the job list and submit description into the input
// directory and creates every destination directory.
func (c *Condor) Prepare(ctx context.Context, req *cluster.PrepareRequest) error {
	if err := os.MkdirAll(req.InputDir, 0o755); err != nil {
		return err
	}

	var list bytes.Buffer
	for _, j := range req.Jobs {
		if err := os.MkdirAll(j.Dest, 0o755); err != nil {
			return err
		}
		fmt.Fprintf(&list, "%d, %s, %s\n", j.WorkUnitID, j.Bundle, j.Dest)
	}

	listPath := filepath.Join(req.InputDir, jobsList)
	if err := os.WriteFile(listPath, list.Bytes(), 0o644); err != nil {
		return err
	}

	var sub bytes.Buffer
	if err := submitTemplate.Execute(&sub, map[string]string{
		"Executable": req.Executable,
		"JobsList":   listPath,
	}); err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(req.InputDir, submitFile), sub.Bytes(), 0o644)
}

// Submit queues the prepared jobs as one batch. Process ids follow
// the order of the job list.
func (c *Condor) Submit(ctx context.Context, req *cluster.SubmitRequest) (map[int64]string, error) {
	ids, err := readJobsList(filepath.Join(req.InputDir, jobsList))
	if err != nil {
		return nil, cluster.Permanent(err)
	}
	if len(ids) == 0 {
		return map[int64]string{}, nil
	}

	out, err := c.runner.Run(ctx, "condor_submit", "-terse", "-batch-name", req.BatchName,
		filepath.Join(req.InputDir, submitFile))
	if err != nil {
		return nil, err
	}

	clusterID, err := parseSubmit(out)
	if err != nil {
		return nil, err
	}

	log.Info("submitted batch", "batch", req.BatchName, "cluster", clusterID, "jobs", len(ids))

	result := make(map[int64]string, len(ids))
	for proc, id := range ids {
		result[id] = fmt.Sprintf("%d.%d", clusterID, proc)
	}
	return result, nil
}

// CheckCompletion looks the job up in the queue first and in the
// history when it already left it.
func (c *Condor) CheckCompletion(ctx context.Context, uniqueID string) (cluster.Completion, error) {
	if !jobID.MatchString(uniqueID) {
		return cluster.Unknown, fmt.Errorf("invalid htcondor job id %q", uniqueID)
	}

	out, err := c.runner.Run(ctx, "condor_q", uniqueID, "-af", "JobStatus")
	if err != nil {
		return cluster.Unknown, err
	}
	if status, ok := parseStatus(out); ok {
		return completion(status), nil
	}

	out, err = c.runner.Run(ctx, "condor_history", uniqueID, "-af", "JobStatus", "-limit", "1")
	if err != nil {
		return cluster.Unknown, err
	}
	if status, ok := parseStatus(out); ok {
		return completion(status), nil
	}

	return cluster.Unknown, nil
}

var (
	jobID       = regexp.MustCompile(`^\d+\.\d+$`)
	terseOutput = regexp.MustCompile(`^(\d+)\.\d+\s*-\s*\d+\.\d+`)
	plainOutput = regexp.MustCompile(`submitted to cluster (\d+)\.`)
)

func parseSubmit(out []byte) (int64, error) {
	text := strings.TrimSpace(string(out))
	for _, re := range []*regexp.Regexp{terseOutput, plainOutput} {
		if m := re.FindStringSubmatch(text); m != nil {
			return strconv.ParseInt(m[1], 10, 64)
		}
	}
	return 0, fmt.Errorf("unexpected condor_submit output %q", text)
}

// JobStatus codes.
const (
	idle               = 1
	running            = 2
	removed            = 3
	completed          = 4
	held               = 5
	transferringOutput = 6
	suspended          = 7
)

func parseStatus(out []byte) (int, bool) {
	fields := strings.Fields(string(out))
	if len(fields) == 0 {
		return 0, false
	}
	status, err := strconv.Atoi(fields[0])
	return status, err == nil
}

func completion(status int) cluster.Completion {
	switch status {
	case completed, removed:
		return cluster.Finished
	case idle, running, held, transferringOutput, suspended:
		return cluster.Running
	default:
		return cluster.Unknown
	}
}

func readJobsList(path string) ([]int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var ids []int64
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		first, _, _ := strings.Cut(line, ",")
		id, err := strconv.ParseInt(strings.TrimSpace(first), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		ids = append(ids, id)
	}
	return ids, sc.Err()
}
