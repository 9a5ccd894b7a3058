package cluster

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	policyv1 "k8s.io/api/policy/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/kubernetes"
	metricsv1beta1 "k8s.io/metrics/pkg/client/clientset/versioned/typed/metrics/v1beta1"

	"github.com/pulse-io/pulse/pkg/metrics"
	"github.com/pulse-io/pulse/pkg/pulseerr"
	"github.com/pulse-io/pulse/pkg/utils"
)

// retryBackoff is the conflict-retry policy: at most three attempts in all,
// waiting 100ms before the second and 400ms before the third. There is no
// fourth attempt.
var retryBackoff = wait.Backoff{
	Duration: 100 * time.Millisecond,
	Factor:   4.0,
	Steps:    3,
}

// K8sClient implements Client against a real (or fake, for tests) cluster.
type K8sClient struct {
	workload kubernetes.Interface
	node     kubernetes.Interface
	metrics  metricsv1beta1.MetricsV1beta1Interface
	logger   *zap.Logger
	breaker  *CircuitBreaker
}

// NewK8sClient constructs a K8sClient. workload and node are separate
// clientsets so the least-privilege credential split from the spec's
// external interfaces section is enforced at the call site, not just by
// convention: the workload principal never touches Nodes, the node
// principal never patches Deployments.
func NewK8sClient(workload, node kubernetes.Interface, metricsClient metricsv1beta1.MetricsV1beta1Interface, logger *zap.Logger) *K8sClient {
	return &K8sClient{
		workload: workload,
		node:     node,
		metrics:  metricsClient,
		logger:   logger.Named("cluster-client"),
		breaker:  NewCircuitBreaker("cluster", DefaultBreakerConfig(), logger),
	}
}

func (c *K8sClient) call(ctx context.Context, verb, resourceName string, fn func() error) error {
	start := time.Now()
	err := c.breaker.Call(fn)
	metrics.RecordClusterCall(verb, resourceName, outcome(err), time.Since(start))
	return err
}

func outcome(err error) string {
	if err == nil {
		return "success"
	}
	return "error"
}

func (c *K8sClient) GetDeployment(ctx context.Context, namespace, name string) (*DeploymentInfo, error) {
	var dep *appsv1.Deployment
	err := c.call(ctx, "GET", "deployments", func() error {
		var getErr error
		dep, getErr = c.workload.AppsV1().Deployments(namespace).Get(ctx, name, metav1.GetOptions{})
		return getErr
	})
	if err != nil {
		return nil, classify("cluster.get_deployment", err)
	}

	replicas := int32(1)
	if dep.Spec.Replicas != nil {
		replicas = *dep.Spec.Replicas
	}
	return &DeploymentInfo{
		Name:            dep.Name,
		Namespace:       dep.Namespace,
		CurrentReplicas: replicas,
		ResourceVersion: dep.ResourceVersion,
	}, nil
}

// PatchReplicas sets a deployment's replica count, retrying on a resource
// conflict by refetching and reapplying, for at most three attempts in all.
func (c *K8sClient) PatchReplicas(ctx context.Context, namespace, name string, replicas int32) error {
	attempt := 0
	err := wait.ExponentialBackoff(retryBackoff, func() (bool, error) {
		attempt++
		dep, getErr := c.workload.AppsV1().Deployments(namespace).Get(ctx, name, metav1.GetOptions{})
		if getErr != nil {
			return false, classify("cluster.patch_replicas.get", getErr)
		}

		dep.Spec.Replicas = &replicas
		_, updateErr := c.workload.AppsV1().Deployments(namespace).Update(ctx, dep, metav1.UpdateOptions{})
		if updateErr == nil {
			return true, nil
		}
		if apierrors.IsConflict(updateErr) {
			c.logger.Debug("replica patch conflict, retrying", zap.String("deployment", name), zap.Int("attempt", attempt))
			return false, nil
		}
		return false, classify("cluster.patch_replicas.update", updateErr)
	})

	metrics.RecordClusterCall("PATCH", "deployments/scale", outcome(err), 0)
	if err != nil {
		if err == wait.ErrWaitTimeout {
			return pulseerr.New(pulseerr.Conflict, "cluster.patch_replicas", fmt.Errorf("conflict persisted after %d attempts", retryBackoff.Steps))
		}
		return err
	}
	return nil
}

func (c *K8sClient) PatchContainerResources(ctx context.Context, namespace, deployment, container string, limitBytes, requestBytes int64) error {
	return wait.ExponentialBackoff(retryBackoff, func() (bool, error) {
		dep, getErr := c.workload.AppsV1().Deployments(namespace).Get(ctx, deployment, metav1.GetOptions{})
		if getErr != nil {
			return false, classify("cluster.patch_resources.get", getErr)
		}

		found := false
		for i := range dep.Spec.Template.Spec.Containers {
			ctr := &dep.Spec.Template.Spec.Containers[i]
			if ctr.Name != container {
				continue
			}
			found = true
			if ctr.Resources.Limits == nil {
				ctr.Resources.Limits = corev1.ResourceList{}
			}
			if ctr.Resources.Requests == nil {
				ctr.Resources.Requests = corev1.ResourceList{}
			}
			ctr.Resources.Limits[corev1.ResourceMemory] = *resource.NewQuantity(limitBytes, resource.BinarySI)
			ctr.Resources.Requests[corev1.ResourceMemory] = *resource.NewQuantity(requestBytes, resource.BinarySI)
		}
		if !found {
			return false, pulseerr.New(pulseerr.InvariantViolation, "cluster.patch_resources", fmt.Errorf("container %s not found in deployment %s", container, deployment))
		}

		_, updateErr := c.workload.AppsV1().Deployments(namespace).Update(ctx, dep, metav1.UpdateOptions{})
		if updateErr == nil {
			return true, nil
		}
		if apierrors.IsConflict(updateErr) {
			return false, nil
		}
		return false, classify("cluster.patch_resources.update", updateErr)
	})
}

func (c *K8sClient) ListPods(ctx context.Context, namespace, deployment string) ([]PodInfo, error) {
	var list *corev1.PodList
	err := c.call(ctx, "LIST", "pods", func() error {
		var listErr error
		list, listErr = c.workload.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{})
		return listErr
	})
	if err != nil {
		return nil, classify("cluster.list_pods", err)
	}

	out := make([]PodInfo, 0, len(list.Items))
	for _, p := range list.Items {
		out = append(out, toPodInfo(&p))
	}
	return out, nil
}

func toPodInfo(p *corev1.Pod) PodInfo {
	info := PodInfo{
		Name:      p.Name,
		Namespace: p.Namespace,
		NodeName:  p.Spec.NodeName,
		Phase:     p.Status.Phase,
	}
	for _, owner := range p.OwnerReferences {
		if owner.Kind == "DaemonSet" {
			info.IsDaemonSet = true
		}
		if owner.Kind == "Node" {
			info.IsStatic = true
		}
	}
	if _, ok := p.Annotations["kubernetes.io/config.mirror"]; ok {
		info.IsStatic = true
	}
	for _, cond := range p.Status.Conditions {
		if cond.Type == corev1.PodReady && cond.Status == corev1.ConditionTrue {
			info.Ready = true
		}
	}

	for _, c := range p.Spec.Containers {
		ci := ContainerInfo{Name: c.Name}
		if limit, ok := c.Resources.Limits[corev1.ResourceMemory]; ok {
			ci.MemoryLimitBytes = limit.Value()
		}
		if req, ok := c.Resources.Requests[corev1.ResourceMemory]; ok {
			ci.MemoryRequestBytes = req.Value()
		}
		for _, cs := range p.Status.ContainerStatuses {
			if cs.Name != c.Name {
				continue
			}
			if cs.LastTerminationState.Terminated != nil && cs.LastTerminationState.Terminated.Reason == "OOMKilled" {
				ci.OOMKilled = true
				ci.TerminatedAt = cs.LastTerminationState.Terminated.FinishedAt.Time
			}
		}
		info.Containers = append(info.Containers, ci)
	}
	return info
}

func (c *K8sClient) ListNodes(ctx context.Context) ([]NodeInfo, error) {
	var list *corev1.NodeList
	err := c.call(ctx, "LIST", "nodes", func() error {
		var listErr error
		list, listErr = c.node.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
		return listErr
	})
	if err != nil {
		return nil, classify("cluster.list_nodes", err)
	}

	out := make([]NodeInfo, 0, len(list.Items))
	for _, n := range list.Items {
		taints := make([]string, 0, len(n.Spec.Taints))
		for _, t := range n.Spec.Taints {
			taints = append(taints, t.Key)
		}
		out = append(out, NodeInfo{
			Name:        n.Name,
			Ready:       utils.IsNodeReady(&n),
			Schedulable: utils.IsNodeSchedulable(&n),
			Taints:      taints,
		})
	}
	return out, nil
}

func (c *K8sClient) CordonNode(ctx context.Context, name string) error {
	return c.setUnschedulable(ctx, name, true)
}

func (c *K8sClient) UncordonNode(ctx context.Context, name string) error {
	return c.setUnschedulable(ctx, name, false)
}

func (c *K8sClient) setUnschedulable(ctx context.Context, name string, unschedulable bool) error {
	return wait.ExponentialBackoff(retryBackoff, func() (bool, error) {
		node, getErr := c.node.CoreV1().Nodes().Get(ctx, name, metav1.GetOptions{})
		if getErr != nil {
			return false, classify("cluster.cordon.get", getErr)
		}
		if node.Spec.Unschedulable == unschedulable {
			return true, nil
		}
		node.Spec.Unschedulable = unschedulable
		_, updateErr := c.node.CoreV1().Nodes().Update(ctx, node, metav1.UpdateOptions{})
		if updateErr == nil {
			return true, nil
		}
		if apierrors.IsConflict(updateErr) {
			return false, nil
		}
		return false, classify("cluster.cordon.update", updateErr)
	})
}

func (c *K8sClient) EvictPod(ctx context.Context, namespace, name string, gracePeriodSeconds int64) error {
	eviction := &policyv1.Eviction{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: namespace},
		DeleteOptions: &metav1.DeleteOptions{
			GracePeriodSeconds: &gracePeriodSeconds,
		},
	}

	err := c.node.PolicyV1().Evictions(namespace).Evict(ctx, eviction)
	if err == nil || apierrors.IsNotFound(err) {
		return nil
	}
	if apierrors.IsTooManyRequests(err) {
		return pulseerr.New(pulseerr.Conflict, "cluster.evict", fmt.Errorf("blocked by PodDisruptionBudget: %w", err))
	}
	return classify("cluster.evict", err)
}

func (c *K8sClient) DeleteNode(ctx context.Context, name string) error {
	err := c.node.CoreV1().Nodes().Delete(ctx, name, metav1.DeleteOptions{})
	if err != nil && !apierrors.IsNotFound(err) {
		return classify("cluster.delete_node", err)
	}
	return nil
}

func (c *K8sClient) FetchPodCPUUtilization(ctx context.Context, namespace, deployment string) (float64, error) {
	list, err := c.metrics.PodMetricses(namespace).List(ctx, metav1.ListOptions{
		LabelSelector: fmt.Sprintf("app=%s", deployment),
	})
	if err != nil {
		return 0, classify("cluster.pod_metrics", err)
	}
	if len(list.Items) == 0 {
		return 0, pulseerr.New(pulseerr.ExternalUnknown, "cluster.pod_metrics", fmt.Errorf("no pod metrics for %s", deployment))
	}

	var total float64
	var count int
	for _, pm := range list.Items {
		for _, c := range pm.Containers {
			if cpu, ok := c.Usage[corev1.ResourceCPU]; ok {
				total += cpu.AsApproximateFloat64() * 1000
				count++
			}
		}
	}
	if count == 0 {
		return 0, pulseerr.New(pulseerr.ExternalUnknown, "cluster.pod_metrics", fmt.Errorf("no CPU usage samples for %s", deployment))
	}
	return total / float64(count), nil
}

func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case apierrors.IsConflict(err):
		return pulseerr.New(pulseerr.Conflict, op, err)
	case apierrors.IsForbidden(err), apierrors.IsUnauthorized(err):
		return pulseerr.New(pulseerr.Permission, op, err)
	case apierrors.IsTimeout(err), apierrors.IsServerTimeout(err), apierrors.IsTooManyRequests(err):
		return pulseerr.New(pulseerr.Transient, op, err)
	default:
		return pulseerr.New(pulseerr.ExternalUnknown, op, err)
	}
}
