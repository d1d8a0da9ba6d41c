package analysis_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/ondutyhq/sentinel/pkg/analysis"
	"github.com/ondutyhq/sentinel/pkg/incident"
)

func TestAnalysis(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Analysis Suite")
}

const s1Transcript = `
ROOT CAUSE
The payment-service deployment's containers are being OOMKilled because the
configured memory limit (128Mi) is too low for observed working set size.

IMPACT ASSESSMENT
Payment processing pods are restarting repeatedly, causing request failures.

REMEDIATION STEPS
patch_memory_limit deployment=payment-service value=192Mi # confidence=0.85 risk=medium

MONITORING RECOMMENDATIONS
- Watch container_memory_working_set_bytes for payment-service over the next hour.
`

var _ = Describe("Parse", func() {
	It("parses the S1 OOM remediation transcript into one medium-risk action", func() {
		plan, err := analysis.Parse(s1Transcript)
		Expect(err).NotTo(HaveOccurred())
		Expect(plan.RootCause).To(ContainSubstring("OOMKilled"))
		Expect(plan.Actions).To(HaveLen(1))

		action := plan.Actions[0]
		Expect(action.ActionType).To(Equal("patch_memory_limit"))
		Expect(action.RiskLevel).To(Equal(incident.RiskMedium))
		Expect(action.Confidence).To(Equal(0.85))
		Expect(action.Params["deployment"]).To(Equal("payment-service"))
		Expect(action.Params["value"]).To(Equal("192Mi"))
		Expect(plan.MonitoringRecommendations).To(HaveLen(1))
	})

	It("never promotes a diagnostic-section line that happens to look like a command", func() {
		transcript := `
ROOT CAUSE
Investigated restart_pod behavior as a historical note, not a recommendation.

IMPACT ASSESSMENT
None.
`
		plan, err := analysis.Parse(transcript)
		Expect(err).NotTo(HaveOccurred())
		Expect(plan.Actions).To(BeEmpty())
	})

	It("returns an empty plan — not an error — when there is no remediation section", func() {
		transcript := `
ROOT CAUSE
No anomaly found; pods are healthy.

IMPACT ASSESSMENT
None.
`
		plan, err := analysis.Parse(transcript)
		Expect(err).NotTo(HaveOccurred())
		Expect(plan.Actions).To(BeEmpty())
	})

	It("skips unrecognized verbs inside the remediation section without erroring", func() {
		transcript := `
ROOT CAUSE
Root cause text.

REMEDIATION STEPS
frobnicate_widget foo=bar
patch_memory_limit deployment=payment-service value=256Mi # confidence=0.7 risk=medium
`
		plan, err := analysis.Parse(transcript)
		Expect(err).NotTo(HaveOccurred())
		Expect(plan.Actions).To(HaveLen(1))
		Expect(plan.Actions[0].ActionType).To(Equal("patch_memory_limit"))
	})

	It("retains unresolved placeholders for the Planner to resolve", func() {
		transcript := `
ROOT CAUSE
Root cause text.

REMEDIATION STEPS
set_image deployment=<deployment-name> image=nginx:latest # confidence=0.9 risk=medium
`
		plan, err := analysis.Parse(transcript)
		Expect(err).NotTo(HaveOccurred())
		Expect(plan.Actions[0].Params["deployment"]).To(Equal("<deployment-name>"))
	})

	It("fails to parse a response missing the ROOT CAUSE section", func() {
		_, err := analysis.Parse("just some free text with no markers at all")
		Expect(err).To(HaveOccurred())
	})

	It("round-trips action_type and params through a rendered-and-reparsed audit line", func() {
		original := incident.ResolutionAction{
			ActionType: "scale_deployment",
			Params:     map[string]any{"deployment": "payment-service", "replicas": "3"},
		}
		rendered := "REMEDIATION STEPS\nscale_deployment deployment=" + original.Params["deployment"].(string) + " replicas=" + original.Params["replicas"].(string) + "\n"
		plan, err := analysis.Parse("ROOT CAUSE\nx\n\n" + rendered)
		Expect(err).NotTo(HaveOccurred())
		Expect(plan.Actions).To(HaveLen(1))
		Expect(plan.Actions[0].ActionType).To(Equal(original.ActionType))
		Expect(plan.Actions[0].Params).To(Equal(original.Params))
	})
})
