package scheme

import (
	admissionregistrationv1 "k8s.io/api/admissionregistration/v1"
	appsv1 "k8s.io/api/apps/v1"
	autoscalingv2 "k8s.io/api/autoscaling/v2"
	batchv1 "k8s.io/api/batch/v1"
	certificatesv1 "k8s.io/api/certificates/v1"
	coordinationv1 "k8s.io/api/coordination/v1"
	corev1 "k8s.io/api/core/v1"
	discoveryv1 "k8s.io/api/discovery/v1"
	networkingv1 "k8s.io/api/networking/v1"
	nodev1 "k8s.io/api/node/v1"
	policyv1 "k8s.io/api/policy/v1"
	rbacv1 "k8s.io/api/rbac/v1"
	schedulingv1 "k8s.io/api/scheduling/v1"
	storagev1 "k8s.io/api/storage/v1"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

type builtin struct {
	obj  any
	kind string
	path string // empty means GuessPath(kind)
}

func registerBuiltins(s *Scheme) {
	groups := []struct {
		gv    schema.GroupVersion
		kinds []builtin
	}{
		{schema.GroupVersion{Version: "v1"}, []builtin{
			{&corev1.Pod{}, "Pod", ""},
			{&corev1.PodTemplate{}, "PodTemplate", ""},
			{&corev1.Service{}, "Service", ""},
			{&corev1.Node{}, "Node", ""},
			{&corev1.Namespace{}, "Namespace", ""},
			{&corev1.ConfigMap{}, "ConfigMap", ""},
			{&corev1.Secret{}, "Secret", ""},
			{&corev1.ServiceAccount{}, "ServiceAccount", ""},
			{&corev1.PersistentVolume{}, "PersistentVolume", ""},
			{&corev1.PersistentVolumeClaim{}, "PersistentVolumeClaim", ""},
			{&corev1.Endpoints{}, "Endpoints", "endpoints"},
			{&corev1.Event{}, "Event", ""},
			{&corev1.LimitRange{}, "LimitRange", ""},
			{&corev1.ResourceQuota{}, "ResourceQuota", ""},
			{&corev1.ReplicationController{}, "ReplicationController", ""},
		}},
		{schema.GroupVersion{Group: "apps", Version: "v1"}, []builtin{
			{&appsv1.Deployment{}, "Deployment", ""},
			{&appsv1.StatefulSet{}, "StatefulSet", ""},
			{&appsv1.DaemonSet{}, "DaemonSet", ""},
			{&appsv1.ReplicaSet{}, "ReplicaSet", ""},
			{&appsv1.ControllerRevision{}, "ControllerRevision", ""},
		}},
		{schema.GroupVersion{Group: "batch", Version: "v1"}, []builtin{
			{&batchv1.Job{}, "Job", ""},
			{&batchv1.CronJob{}, "CronJob", ""},
		}},
		{schema.GroupVersion{Group: "networking.k8s.io", Version: "v1"}, []builtin{
			{&networkingv1.Ingress{}, "Ingress", ""},
			{&networkingv1.IngressClass{}, "IngressClass", ""},
			{&networkingv1.NetworkPolicy{}, "NetworkPolicy", ""},
		}},
		{schema.GroupVersion{Group: "rbac.authorization.k8s.io", Version: "v1"}, []builtin{
			{&rbacv1.Role{}, "Role", ""},
			{&rbacv1.RoleBinding{}, "RoleBinding", ""},
			{&rbacv1.ClusterRole{}, "ClusterRole", ""},
			{&rbacv1.ClusterRoleBinding{}, "ClusterRoleBinding", ""},
		}},
		{schema.GroupVersion{Group: "storage.k8s.io", Version: "v1"}, []builtin{
			{&storagev1.StorageClass{}, "StorageClass", ""},
			{&storagev1.VolumeAttachment{}, "VolumeAttachment", ""},
			{&storagev1.CSIDriver{}, "CSIDriver", ""},
			{&storagev1.CSINode{}, "CSINode", ""},
		}},
		{schema.GroupVersion{Group: "policy", Version: "v1"}, []builtin{
			{&policyv1.PodDisruptionBudget{}, "PodDisruptionBudget", ""},
		}},
		{schema.GroupVersion{Group: "autoscaling", Version: "v2"}, []builtin{
			{&autoscalingv2.HorizontalPodAutoscaler{}, "HorizontalPodAutoscaler", ""},
		}},
		{schema.GroupVersion{Group: "coordination.k8s.io", Version: "v1"}, []builtin{
			{&coordinationv1.Lease{}, "Lease", ""},
		}},
		{schema.GroupVersion{Group: "discovery.k8s.io", Version: "v1"}, []builtin{
			{&discoveryv1.EndpointSlice{}, "EndpointSlice", ""},
		}},
		{schema.GroupVersion{Group: "certificates.k8s.io", Version: "v1"}, []builtin{
			{&certificatesv1.CertificateSigningRequest{}, "CertificateSigningRequest", ""},
		}},
		{schema.GroupVersion{Group: "scheduling.k8s.io", Version: "v1"}, []builtin{
			{&schedulingv1.PriorityClass{}, "PriorityClass", ""},
		}},
		{schema.GroupVersion{Group: "node.k8s.io", Version: "v1"}, []builtin{
			{&nodev1.RuntimeClass{}, "RuntimeClass", ""},
		}},
		{schema.GroupVersion{Group: "admissionregistration.k8s.io", Version: "v1"}, []builtin{
			{&admissionregistrationv1.ValidatingWebhookConfiguration{}, "ValidatingWebhookConfiguration", ""},
			{&admissionregistrationv1.MutatingWebhookConfiguration{}, "MutatingWebhookConfiguration", ""},
		}},
	}
	for _, g := range groups {
		for _, b := range g.kinds {
			if err := s.Register(b.obj, g.gv.WithKind(b.kind), b.path); err != nil {
				panic(err)
			}
		}
	}
}
