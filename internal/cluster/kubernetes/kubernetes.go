// Package kubernetes dispatches each work unit as a batch/v1 Job.
// Bundles and results are exchanged through host paths, so every
// node must see the study directories at the same location.
package kubernetes

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/caesium-cloud/sweep/internal/cluster"
	"github.com/caesium-cloud/sweep/internal/worker"
	"github.com/caesium-cloud/sweep/pkg/log"
	"github.com/google/uuid"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	typedbatchv1 "k8s.io/client-go/kubernetes/typed/batch/v1"
	"k8s.io/client-go/tools/clientcmd"
)

const (
	// Name is the registry key of the backend.
	Name = "kubernetes"

	kubeConfig = ".kube/config"

	defaultParallelism = 8

	LabelManagedBy = "app.kubernetes.io/managed-by"
	LabelStudy     = "sweep.io/study"
	LabelStage     = "sweep.io/stage"
	LabelBatch     = "sweep.io/batch"
	LabelUnit      = "sweep.io/wu-id"
)

func init() {
	cluster.Register(Name, func(cfg cluster.Config) (cluster.Cluster, error) {
		client, err := newClient(cfg.KubeConfig)
		if err != nil {
			return nil, err
		}
		return New(client, cfg.Namespace, cfg.Image).WithParallelism(cfg.Parallelism), nil
	})
}

func newClient(k8sCfg string) (kubernetes.Interface, error) {
	if k8sCfg == "" {
		u, err := user.Current()
		if err != nil {
			return nil, err
		}
		k8sCfg = filepath.Join(u.HomeDir, kubeConfig)
	} else {
		k8sCfg = filepath.Join(k8sCfg, kubeConfig)
	}

	config, err := clientcmd.BuildConfigFromFlags("", k8sCfg)
	if err != nil {
		return nil, err
	}
	return kubernetes.NewForConfig(config)
}

// Kube implements cluster.Cluster.
type Kube struct {
	jobs        typedbatchv1.JobInterface
	namespace   string
	image       string
	parallelism int
}

// New returns a backend creating jobs in namespace.
func New(client kubernetes.Interface, namespace, image string) *Kube {
	if namespace == "" {
		namespace = metav1.NamespaceDefault
	}
	return &Kube{
		jobs:        client.BatchV1().Jobs(namespace),
		namespace:   namespace,
		image:       image,
		parallelism: defaultParallelism,
	}
}

// WithParallelism bounds how many jobs are created concurrently.
func (k *Kube) WithParallelism(n int) *Kube {
	if n > 0 {
		k.parallelism = n
	}
	return k
}

// Prepare creates the result directories the jobs will mount.
func (k *Kube) Prepare(ctx context.Context, req *cluster.PrepareRequest) error {
	if k.image == "" {
		return fmt.Errorf("kubernetes backend requires an image")
	}
	for _, j := range req.Jobs {
		if err := os.MkdirAll(j.Dest, 0o755); err != nil {
			return err
		}
	}
	return nil
}

// Submit creates one Job per work unit. Jobs created before a
// failure are still reported so they are not dispatched twice.
func (k *Kube) Submit(ctx context.Context, req *cluster.SubmitRequest) (map[int64]string, error) {
	var (
		mu   sync.Mutex
		ids  = make(map[int64]string, len(req.Jobs))
		pool = worker.NewPool(k.parallelism)
	)

	for _, j := range req.Jobs {
		job := k.spec(req, j)
		wuID := j.WorkUnitID
		if err := pool.Submit(ctx, func() error {
			created, err := k.jobs.Create(ctx, job, metav1.CreateOptions{})
			if err != nil {
				return fmt.Errorf("create job for work unit %d: %w", wuID, err)
			}
			mu.Lock()
			ids[wuID] = created.Name
			mu.Unlock()
			return nil
		}); err != nil {
			break
		}
	}

	err := errors.Join(pool.Wait(), ctx.Err())

	log.Info("submitted batch", "batch", req.BatchName, "namespace", k.namespace, "jobs", len(ids), "requested", len(req.Jobs))
	return ids, err
}

func (k *Kube) spec(req *cluster.SubmitRequest, j cluster.Job) *batchv1.Job {
	var (
		backoffLimit int32 = 0
		ttl          int32 = 24 * 60 * 60
		dirType            = corev1.HostPathDirectoryOrCreate
	)

	return &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{
			Name:      jobName(req.Study, req.Stage, j.WorkUnitID),
			Namespace: k.namespace,
			Labels: map[string]string{
				LabelManagedBy: "sweep",
				LabelStudy:     labelValue(req.Study),
				LabelStage:     labelValue(req.Stage),
				LabelBatch:     labelValue(req.BatchName),
				LabelUnit:      strconv.FormatInt(j.WorkUnitID, 10),
			},
		},
		Spec: batchv1.JobSpec{
			BackoffLimit:            &backoffLimit,
			TTLSecondsAfterFinished: &ttl,
			Template: corev1.PodTemplateSpec{
				Spec: corev1.PodSpec{
					RestartPolicy: corev1.RestartPolicyNever,
					Containers: []corev1.Container{{
						Name:       "unit",
						Image:      k.image,
						Command:    []string{req.Executable, strconv.FormatInt(j.WorkUnitID, 10), j.Bundle},
						WorkingDir: j.Dest,
						VolumeMounts: []corev1.VolumeMount{
							{Name: "input", MountPath: req.InputDir, ReadOnly: true},
							{Name: "output", MountPath: j.Dest},
						},
					}},
					Volumes: []corev1.Volume{
						{Name: "input", VolumeSource: corev1.VolumeSource{
							HostPath: &corev1.HostPathVolumeSource{Path: req.InputDir},
						}},
						{Name: "output", VolumeSource: corev1.VolumeSource{
							HostPath: &corev1.HostPathVolumeSource{Path: j.Dest, Type: &dirType},
						}},
					},
				},
			},
		},
	}
}

// CheckCompletion maps the Job's terminal conditions to Finished.
// A Job that cannot be read is Unknown.
func (k *Kube) CheckCompletion(ctx context.Context, uniqueID string) (cluster.Completion, error) {
	job, err := k.jobs.Get(ctx, uniqueID, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		log.Warn("job not found", "job", uniqueID, "namespace", k.namespace)
		return cluster.Unknown, nil
	}
	if err != nil {
		return cluster.Unknown, err
	}

	for _, c := range job.Status.Conditions {
		if c.Status != corev1.ConditionTrue {
			continue
		}
		if c.Type == batchv1.JobComplete || c.Type == batchv1.JobFailed {
			return cluster.Finished, nil
		}
	}
	return cluster.Running, nil
}

var (
	nonDNS   = regexp.MustCompile(`[^a-z0-9-]+`)
	nonLabel = regexp.MustCompile(`[^A-Za-z0-9._-]+`)
)

func jobName(study, stage string, wuID int64) string {
	base := nonDNS.ReplaceAllString(strings.ToLower(study+"-"+stage), "-")
	suffix := fmt.Sprintf("-%d-%s", wuID, uuid.NewString()[:8])
	if max := 63 - len(suffix); len(base) > max {
		base = base[:max]
	}
	return strings.Trim(base, "-") + suffix
}

func labelValue(s string) string {
	v := nonLabel.ReplaceAllString(s, "_")
	if len(v) > 63 {
		v = v[:63]
	}
	return strings.Trim(v, "_.-")
}
