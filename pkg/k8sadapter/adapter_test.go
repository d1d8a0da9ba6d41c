package k8sadapter_test

import (
	"context"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/ondutyhq/sentinel/internal/config"
	"github.com/ondutyhq/sentinel/pkg/incident"
	"github.com/ondutyhq/sentinel/pkg/k8sadapter"
)

func TestK8sAdapter(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "K8sAdapter Suite")
}

func int32Ptr(i int32) *int32 { return &i }

var _ = Describe("Adapter", func() {
	var (
		clientset *fake.Clientset
		client    *k8sadapter.Client
		ctx       context.Context
	)

	BeforeEach(func() {
		clientset = fake.NewSimpleClientset()
		client = k8sadapter.NewClient(clientset, nil, config.KubernetesConfig{Namespace: "default"})
		ctx = context.Background()
	})

	newDeployment := func(name string, memLimit string) *appsv1.Deployment {
		return &appsv1.Deployment{
			ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: "default"},
			Spec: appsv1.DeploymentSpec{
				Replicas: int32Ptr(1),
				Template: corev1.PodTemplateSpec{
					Spec: corev1.PodSpec{
						Containers: []corev1.Container{{
							Name:  "app",
							Image: "nginx:1.0",
							Resources: corev1.ResourceRequirements{
								Limits: corev1.ResourceList{
									corev1.ResourceMemory: resource.MustParse(memLimit),
								},
							},
						}},
					},
				},
			},
		}
	}

	Describe("ExecuteAction", func() {
		It("permanently rejects delete_namespace regardless of destructive_operations_enabled", func() {
			a := k8sadapter.NewAdapter(client, func() bool { return true })
			cmd := incident.CommandSpec{TargetSystem: "kubernetes", Verb: k8sadapter.VerbDeleteNamespace}

			rec, err := a.ExecuteAction(ctx, cmd)
			Expect(err).To(HaveOccurred())
			Expect(rec.Status).To(Equal(incident.StatusRejected))
		})

		It("dry-runs a mutating verb when destructive operations are disabled", func() {
			a := k8sadapter.NewAdapter(client, func() bool { return false })
			cmd := incident.CommandSpec{
				Verb: k8sadapter.VerbPatchMemoryLimit,
				Args: map[string]any{"namespace": "default", "name": "payment-service", "value": "192Mi"},
			}

			rec, err := a.ExecuteAction(ctx, cmd)
			Expect(err).NotTo(HaveOccurred())
			Expect(rec.Status).To(Equal(incident.StatusSkipped))
			Expect(rec.Reason).To(Equal(incident.ReasonDryRun))
		})

		It("patches the first container's memory limit when destructive operations are enabled", func() {
			_, err := clientset.AppsV1().Deployments("default").Create(ctx, newDeployment("payment-service", "128Mi"), metav1.CreateOptions{})
			Expect(err).NotTo(HaveOccurred())

			a := k8sadapter.NewAdapter(client, func() bool { return true })
			cmd := incident.CommandSpec{
				Verb: k8sadapter.VerbPatchMemoryLimit,
				Args: map[string]any{"namespace": "default", "name": "payment-service", "value": "192Mi"},
			}

			rec, err := a.ExecuteAction(ctx, cmd)
			Expect(err).NotTo(HaveOccurred())
			Expect(rec.Status).To(Equal(incident.StatusSucceeded))

			dep, err := client.GetDeployment(ctx, "default", "payment-service")
			Expect(err).NotTo(HaveOccurred())
			Expect(dep.Spec.Template.Spec.Containers[0].Resources.Limits.Memory().String()).To(Equal("192Mi"))
		})

		It("rejects a malformed image reference before calling set_image", func() {
			a := k8sadapter.NewAdapter(client, func() bool { return true })
			cmd := incident.CommandSpec{
				Verb: k8sadapter.VerbSetImage,
				Args: map[string]any{"namespace": "default", "name": "bad-image-app", "image": "::::not-an-image"},
			}

			rec, err := a.ExecuteAction(ctx, cmd)
			Expect(err).To(HaveOccurred())
			Expect(rec.Status).To(Equal(incident.StatusRejected))
		})

		It("skips a CommandSpec already classified forbidden by policy", func() {
			a := k8sadapter.NewAdapter(client, func() bool { return true })
			cmd := incident.CommandSpec{Verb: k8sadapter.VerbApplyManifest, Forbidden: true}

			rec, err := a.ExecuteAction(ctx, cmd)
			Expect(err).NotTo(HaveOccurred())
			Expect(rec.Status).To(Equal(incident.StatusSkipped))
			Expect(rec.Reason).To(Equal(incident.ReasonPolicyForbidden))
		})
	})

	Describe("FetchContext", func() {
		It("reports pods and the named deployment's resource limits", func() {
			_, err := clientset.AppsV1().Deployments("default").Create(ctx, newDeployment("payment-service", "128Mi"), metav1.CreateOptions{})
			Expect(err).NotTo(HaveOccurred())
			_, err = clientset.CoreV1().Pods("default").Create(ctx, &corev1.Pod{
				ObjectMeta: metav1.ObjectMeta{Name: "payment-service-abc12", Namespace: "default"},
			}, metav1.CreateOptions{})
			Expect(err).NotTo(HaveOccurred())

			a := k8sadapter.NewAdapter(client, func() bool { return false })
			bundle, err := a.FetchContext(ctx, incident.Incident{Alert: incident.Alert{Namespace: "default", Resource: "payment-service"}})
			Expect(err).NotTo(HaveOccurred())
			Expect(bundle.OK).To(BeTrue())
			Expect(bundle.Data).To(HaveKey("pods"))
			Expect(bundle.Data).To(HaveKey("deployment"))
		})
	})

	Describe("ValidateImage", func() {
		It("accepts a well-formed tag reference", func() {
			Expect(k8sadapter.ValidateImage("nginx:latest")).To(Succeed())
		})

		It("rejects a malformed reference", func() {
			Expect(k8sadapter.ValidateImage("::::nope")).To(HaveOccurred())
		})
	})
})
