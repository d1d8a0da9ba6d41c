package riskplanner_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/ondutyhq/sentinel/pkg/incident"
	"github.com/ondutyhq/sentinel/pkg/riskplanner"
)

var _ = Describe("Planner", func() {
	var (
		planner *riskplanner.Planner
		ctx     context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		policy, err := riskplanner.NewPolicy(ctx, "")
		Expect(err).NotTo(HaveOccurred())
		planner = riskplanner.NewPlanner(policy, false)
	})

	It("expands a fully-specified action into one CommandSpec with recomputed risk", func() {
		action := incident.ResolutionAction{
			ActionType: "patch_memory_limit",
			Params:     map[string]any{"deployment": "payment-service", "value": "192Mi"},
			RiskLevel:  incident.RiskLow,
		}

		specs, reason, err := planner.Expand(ctx, action, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(reason).To(BeEmpty())
		Expect(specs).To(HaveLen(1))
		// the Rego rule classifies patch_memory_limit as medium, which wins
		// over the action's declared low risk (the higher bound wins).
		Expect(specs[0].ClassifiedRisk).To(Equal(incident.RiskMedium))
	})

	It("resolves a unique placeholder against one candidate", func() {
		action := incident.ResolutionAction{
			ActionType: "set_image",
			Params:     map[string]any{"deployment": "<deployment-name>", "image": "nginx:latest"},
			RiskLevel:  incident.RiskMedium,
		}

		specs, reason, err := planner.Expand(ctx, action, []string{"bad-image-app"})
		Expect(err).NotTo(HaveOccurred())
		Expect(reason).To(BeEmpty())
		Expect(specs).To(HaveLen(1))
		Expect(specs[0].Args["deployment"]).To(Equal("bad-image-app"))
	})

	It("fans out one CommandSpec per candidate for an ambiguous medium-risk placeholder", func() {
		action := incident.ResolutionAction{
			ActionType: "restart_pod",
			Params:     map[string]any{"pod": "<pod-name>"},
			RiskLevel:  incident.RiskMedium,
		}

		specs, reason, err := planner.Expand(ctx, action, []string{"pod-a", "pod-b"})
		Expect(err).NotTo(HaveOccurred())
		Expect(reason).To(BeEmpty())
		Expect(specs).To(HaveLen(2))
	})

	It("skips an unresolved placeholder with no candidates", func() {
		action := incident.ResolutionAction{
			ActionType: "set_image",
			Params:     map[string]any{"deployment": "<deployment-name>"},
			RiskLevel:  incident.RiskMedium,
		}

		specs, reason, err := planner.Expand(ctx, action, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(specs).To(BeEmpty())
		Expect(reason).To(Equal(incident.ReasonUnresolvedTarget))
	})

	It("skips an ambiguous placeholder for a high-risk action rather than fanning out", func() {
		action := incident.ResolutionAction{
			ActionType: "apply_manifest",
			Params:     map[string]any{"deployment": "<deployment-name>"},
			RiskLevel:  incident.RiskHigh,
		}

		specs, reason, err := planner.Expand(ctx, action, []string{"a", "b"})
		Expect(err).NotTo(HaveOccurred())
		Expect(specs).To(BeEmpty())
		Expect(reason).To(Equal(incident.ReasonUnresolvedTarget))
	})
})
