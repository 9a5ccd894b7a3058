// Package cluster is the facade every Pulse component mutates the cluster
// through: deployment/node reads, replica and resource patches, cordon and
// eviction. Reads go through one circuit breaker, and the replica,
// resource and cordon patches share one conflict-retry policy. Writes do not
// pass through the breaker, and no call sets its own timeout.
package cluster

import (
	"context"
	"time"

	corev1 "k8s.io/api/core/v1"
)

// PodInfo is a read-only projection of a pod, enough for OOM detection and
// drain eligibility checks.
type PodInfo struct {
	Name            string
	Namespace       string
	NodeName        string
	Phase           corev1.PodPhase
	Ready           bool
	IsDaemonSet     bool
	IsStatic        bool
	Containers      []ContainerInfo
}

// ContainerInfo carries the resource and last-termination state MemoryOptimizer needs.
type ContainerInfo struct {
	Name             string
	MemoryLimitBytes int64
	MemoryRequestBytes int64
	OOMKilled        bool
	TerminatedAt     time.Time
}

// DeploymentInfo is a read-only projection of a deployment's scale and resources.
type DeploymentInfo struct {
	Name             string
	Namespace        string
	CurrentReplicas  int32
	ResourceVersion  string
}

// NodeInfo is a read-only projection of a node.
type NodeInfo struct {
	Name        string
	Ready       bool
	Schedulable bool
	Taints      []string
}

// Client is the cluster mutation/read surface every decision component uses.
// Implementations must apply the least-privilege split from the spec at the
// credential layer; this interface itself is credential-agnostic.
type Client interface {
	GetDeployment(ctx context.Context, namespace, name string) (*DeploymentInfo, error)
	PatchReplicas(ctx context.Context, namespace, name string, replicas int32) error
	PatchContainerResources(ctx context.Context, namespace, deployment, container string, limitBytes, requestBytes int64) error

	ListPods(ctx context.Context, namespace, deployment string) ([]PodInfo, error)
	ListNodes(ctx context.Context) ([]NodeInfo, error)

	CordonNode(ctx context.Context, name string) error
	UncordonNode(ctx context.Context, name string) error
	EvictPod(ctx context.Context, namespace, name string, gracePeriodSeconds int64) error
	DeleteNode(ctx context.Context, name string) error

	FetchPodCPUUtilization(ctx context.Context, namespace, deployment string) (float64, error)
}
