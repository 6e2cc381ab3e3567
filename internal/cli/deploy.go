package cli

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"k8s.io/client-go/kubernetes"

	"servecheck/internal/kube"
)

type deployOptions struct {
	spec       kube.DeploySpec
	kubeconfig string
	wait       time.Duration
}

var newKubeClient = func(kubeconfig string) (kubernetes.Interface, error) {
	return kube.NewClientset(kubeconfig)
}

var errDeployUnavailable = errors.New("deployment did not become available")

func runDeploy(ctx context.Context, o *deployOptions, log zerolog.Logger) error {
	if err := o.spec.Validate(); err != nil {
		return err
	}
	cs, err := newKubeClient(o.kubeconfig)
	if err != nil {
		return err
	}
	d := &kube.Deployer{Client: cs, Log: log}
	st, err := d.Deploy(ctx, o.spec, o.wait)
	if err != nil {
		return err
	}
	if !st.Available() {
		return errDeployUnavailable
	}
	return nil
}
