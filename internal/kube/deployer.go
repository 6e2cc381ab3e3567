// Package kube deploys the serving image to a Kubernetes cluster and reports
// whether the deployment became available.
package kube

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/util/homedir"
)

// DefaultWait bounds how long Deploy waits for an available replica.
const DefaultWait = 10 * time.Second

// Status is the outcome of a deployment.
type Status struct {
	Name              string
	Namespace         string
	AvailableReplicas int32
}

// Available reports whether at least one replica serves.
func (s Status) Available() bool { return s.AvailableReplicas > 0 }

// Deployer creates serving deployments.
type Deployer struct {
	Client kubernetes.Interface
	// Poll is the interval between availability checks.
	Poll time.Duration
	Log  zerolog.Logger
}

// Deploy creates the deployment and polls it until a replica is available or
// timeout expires. An unavailable deployment is reported in Status, not as an error.
func (d *Deployer) Deploy(ctx context.Context, spec DeploySpec, timeout time.Duration) (Status, error) {
	dep, err := spec.Deployment()
	if err != nil {
		return Status{}, err
	}
	st := Status{Name: dep.Name, Namespace: dep.Namespace}
	api := d.Client.AppsV1().Deployments(dep.Namespace)
	if _, err := api.Create(ctx, dep, metav1.CreateOptions{}); err != nil {
		return st, fmt.Errorf("create deployment %s/%s: %w", dep.Namespace, dep.Name, err)
	}
	d.Log.Info().Str("deployment", dep.Name).Str("namespace", dep.Namespace).Str("image", spec.Image).Msg("deployment created")

	if timeout <= 0 {
		timeout = DefaultWait
	}
	poll := d.Poll
	if poll <= 0 {
		poll = time.Second
	}
	err = waitAvailable(ctx, poll, timeout, func(ctx context.Context) (bool, error) {
		cur, err := api.Get(ctx, dep.Name, metav1.GetOptions{})
		if err != nil {
			return false, err
		}
		st.AvailableReplicas = cur.Status.AvailableReplicas
		return st.Available(), nil
	})
	if err != nil && !isWaitTimeout(err) {
		return st, fmt.Errorf("read deployment %s/%s: %w", dep.Namespace, dep.Name, err)
	}
	if st.Available() {
		d.Log.Info().Int32("available", st.AvailableReplicas).Msg("deployment active")
	} else {
		d.Log.Error().Str("deployment", dep.Name).Msg("deployment failed to become available")
	}
	return st, nil
}

// Delete removes the named deployment.
func (d *Deployer) Delete(ctx context.Context, namespace, name string) error {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if name == "" {
		name = DefaultName
	}
	return d.Client.AppsV1().Deployments(namespace).Delete(ctx, name, metav1.DeleteOptions{})
}

func waitAvailable(ctx context.Context, poll, timeout time.Duration, cond wait.ConditionWithContextFunc) error {
	return wait.PollUntilContextTimeout(ctx, poll, timeout, true, cond)
}

func isWaitTimeout(err error) bool {
	return wait.Interrupted(err) || errors.Is(err, context.DeadlineExceeded)
}

// NewClientset connects using kubeconfig, then $KUBECONFIG, then ~/.kube/config,
// falling back to the in-cluster config.
func NewClientset(kubeconfig string) (kubernetes.Interface, error) {
	path := kubeconfig
	if path == "" {
		path = os.Getenv("KUBECONFIG")
	}
	if path == "" {
		if home := homedir.HomeDir(); home != "" {
			p := filepath.Join(home, ".kube", "config")
			if fi, err := os.Stat(p); err == nil && !fi.IsDir() {
				path = p
			}
		}
	}
	var (
		cfg *rest.Config
		err error
	)
	if path == "" {
		cfg, err = rest.InClusterConfig()
	} else {
		cfg, err = clientcmd.BuildConfigFromFlags("", path)
	}
	if err != nil {
		return nil, fmt.Errorf("get kube config: %w", err)
	}
	cs, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("new kubernetes clientset: %w", err)
	}
	return cs, nil
}
