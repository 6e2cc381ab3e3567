package kube

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// Defaults for a serving deployment.
const (
	DefaultName      = "torchserve"
	DefaultNamespace = "default"

	GPUResource corev1.ResourceName = "nvidia.com/gpu"
)

// MemoryUnits are the binary suffixes accepted for container memory.
var MemoryUnits = []string{"Ei", "Pi", "Ti", "Gi", "Mi", "Ki"}

// ServingPorts are the container ports of the serving process.
var ServingPorts = []corev1.ContainerPort{
	{Name: "ts", ContainerPort: 8080},
	{Name: "ts-management", ContainerPort: 8081},
	{Name: "ts-metric", ContainerPort: 8082},
}

// DeploySpec describes the serving deployment to create.
type DeploySpec struct {
	Name      string
	Namespace string
	Image     string
	// Args are passed to the container entrypoint.
	Args   []string
	GPUs   int
	CPU    string
	Memory string
}

// ParseCommand splits a command line on spaces, dropping empty fields.
func ParseCommand(cmd string) []string {
	return strings.Fields(cmd)
}

func (s DeploySpec) withDefaults() DeploySpec {
	if s.Name == "" {
		s.Name = DefaultName
	}
	if s.Namespace == "" {
		s.Namespace = DefaultNamespace
	}
	return s
}

// Validate checks the image and the resource quantities.
func (s DeploySpec) Validate() error {
	if s.Image == "" {
		return errors.New("image is required")
	}
	if s.GPUs < 0 {
		return fmt.Errorf("gpu count must be >= 0, got %d", s.GPUs)
	}
	if !hasMemoryUnit(s.Memory) {
		return fmt.Errorf("container memory %q must use one of the units %s", s.Memory, strings.Join(MemoryUnits, ", "))
	}
	if _, err := resource.ParseQuantity(s.Memory); err != nil {
		return fmt.Errorf("container memory %q: %w", s.Memory, err)
	}
	if s.CPU != "" {
		if _, err := resource.ParseQuantity(s.CPU); err != nil {
			return fmt.Errorf("cpu %q: %w", s.CPU, err)
		}
	}
	return nil
}

func hasMemoryUnit(mem string) bool {
	for _, u := range MemoryUnits {
		if strings.HasSuffix(mem, u) {
			return true
		}
	}
	return false
}

// Deployment renders the spec as a single-replica Deployment.
func (s DeploySpec) Deployment() (*appsv1.Deployment, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	s = s.withDefaults()
	limits := corev1.ResourceList{
		corev1.ResourceMemory: resource.MustParse(s.Memory),
	}
	if s.CPU != "" {
		limits[corev1.ResourceCPU] = resource.MustParse(s.CPU)
	}
	if s.GPUs > 0 {
		limits[GPUResource] = resource.MustParse(strconv.Itoa(s.GPUs))
	}
	labels := map[string]string{"app": s.Name}
	replicas := int32(1)
	return &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Name: s.Name, Namespace: s.Namespace, Labels: labels},
		Spec: appsv1.DeploymentSpec{
			Replicas: &replicas,
			Selector: &metav1.LabelSelector{MatchLabels: labels},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: labels},
				Spec: corev1.PodSpec{
					Containers: []corev1.Container{{
						Name:            s.Name,
						Image:           s.Image,
						Args:            s.Args,
						ImagePullPolicy: corev1.PullIfNotPresent,
						Ports:           append([]corev1.ContainerPort(nil), ServingPorts...),
						Resources:       corev1.ResourceRequirements{Limits: limits},
					}},
				},
			},
		},
	}, nil
}
