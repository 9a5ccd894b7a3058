package nodescaler

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/kubernetes"

	"github.com/pulse-io/pulse/pkg/pulseerr"
)

// desiredSizeKey is the ConfigMap data key holding the node pool's desired
// node count. A cluster-autoscaler integration (or any external provisioner)
// reconciles actual node count to this value; Resize only ever updates the
// record, never provisions nodes itself.
const desiredSizeKey = "desired-size"

var resizeBackoff = wait.Backoff{
	Duration: 100 * time.Millisecond,
	Factor:   4.0,
	Steps:    3,
}

// ConfigMapResizer implements Resizer by bumping a desired-size counter kept
// in a Kubernetes ConfigMap, the node-pool resize mechanism the spec leaves
// implementation-defined. It never creates or deletes corev1.Node objects
// directly: actual provisioning is an external concern this record feeds.
type ConfigMapResizer struct {
	client    kubernetes.Interface
	namespace string
	name      string
	logger    *zap.Logger
}

// NewConfigMapResizer constructs a ConfigMapResizer targeting the named
// ConfigMap, created on first Resize call if it does not already exist.
func NewConfigMapResizer(client kubernetes.Interface, namespace, name string, logger *zap.Logger) *ConfigMapResizer {
	return &ConfigMapResizer{client: client, namespace: namespace, name: name, logger: logger.Named("configmap-resizer")}
}

// Resize adjusts the recorded desired node count by delta, never letting it
// go below zero.
func (r *ConfigMapResizer) Resize(ctx context.Context, delta int) error {
	attempt := 0
	err := wait.ExponentialBackoff(resizeBackoff, func() (bool, error) {
		attempt++
		cm, getErr := r.client.CoreV1().ConfigMaps(r.namespace).Get(ctx, r.name, metav1.GetOptions{})
		if apierrors.IsNotFound(getErr) {
			return r.create(ctx, delta)
		}
		if getErr != nil {
			return false, pulseerr.New(pulseerr.Transient, "nodescaler.resize.get", getErr)
		}

		current, _ := strconv.Atoi(cm.Data[desiredSizeKey])
		next := current + delta
		if next < 0 {
			next = 0
		}
		if cm.Data == nil {
			cm.Data = map[string]string{}
		}
		cm.Data[desiredSizeKey] = strconv.Itoa(next)

		_, updateErr := r.client.CoreV1().ConfigMaps(r.namespace).Update(ctx, cm, metav1.UpdateOptions{})
		if updateErr == nil {
			return true, nil
		}
		if apierrors.IsConflict(updateErr) {
			r.logger.Debug("desired-size patch conflict, retrying", zap.Int("attempt", attempt))
			return false, nil
		}
		return false, pulseerr.New(pulseerr.Transient, "nodescaler.resize.update", updateErr)
	})

	if err == wait.ErrWaitTimeout {
		return pulseerr.New(pulseerr.Conflict, "nodescaler.resize", fmt.Errorf("conflict persisted after %d attempts", resizeBackoff.Steps))
	}
	return err
}

func (r *ConfigMapResizer) create(ctx context.Context, delta int) (bool, error) {
	if delta < 0 {
		delta = 0
	}
	cm := &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{Name: r.name, Namespace: r.namespace},
		Data:       map[string]string{desiredSizeKey: strconv.Itoa(delta)},
	}
	_, err := r.client.CoreV1().ConfigMaps(r.namespace).Create(ctx, cm, metav1.CreateOptions{})
	if apierrors.IsAlreadyExists(err) {
		return false, nil
	}
	if err != nil {
		return false, pulseerr.New(pulseerr.Transient, "nodescaler.resize.create", err)
	}
	return true, nil
}
