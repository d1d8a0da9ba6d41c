package analysis_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/ondutyhq/sentinel/pkg/analysis"
	"github.com/ondutyhq/sentinel/pkg/incident"
)

var _ = Describe("BuildPrompt", func() {
	It("includes the alert summary and sorts context sections by adapter name", func() {
		inc := incident.Incident{
			Alert: incident.Alert{Source: incident.SourceCloudWatch, Service: "payment-service", Title: "OOMKilled"},
			Context: map[string]incident.ContextBundle{
				"metrics":    {OK: true, Data: map[string]any{"cpu": "50%"}},
				"kubernetes": {OK: false, Error: "timeout"},
			},
		}

		prompt := analysis.BuildPrompt(inc)
		Expect(prompt).To(ContainSubstring("ALERT SUMMARY"))
		Expect(prompt).To(ContainSubstring("service: payment-service"))
		Expect(prompt).To(ContainSubstring("CONTEXT: kubernetes"))
		Expect(prompt).To(ContainSubstring("(unavailable: timeout)"))
		Expect(prompt).To(ContainSubstring("REMEDIATION STEPS"))

		kIdx := indexOf(prompt, "CONTEXT: kubernetes")
		mIdx := indexOf(prompt, "CONTEXT: metrics")
		Expect(kIdx).To(BeNumerically("<", mIdx))
	})
})

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}
