package utils

import (
	corev1 "k8s.io/api/core/v1"
)

// IsNodeReady checks if a Kubernetes Node is in Ready condition.
// Returns true if the node has a Ready condition with status True.
func IsNodeReady(node *corev1.Node) bool {
	for _, condition := range node.Status.Conditions {
		if condition.Type == corev1.NodeReady {
			return condition.Status == corev1.ConditionTrue
		}
	}
	return false
}

// IsNodeSchedulable reports whether a node accepts new pods: not marked
// unschedulable and free of NoSchedule/NoExecute taints.
func IsNodeSchedulable(node *corev1.Node) bool {
	if node.Spec.Unschedulable {
		return false
	}
	for _, taint := range node.Spec.Taints {
		if taint.Effect == corev1.TaintEffectNoSchedule || taint.Effect == corev1.TaintEffectNoExecute {
			return false
		}
	}
	return true
}
