package incident_test

import (
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/ondutyhq/sentinel/pkg/incident"
)

func TestIncident(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Incident Suite")
}

var _ = Describe("Incident lifecycle helpers", func() {
	Describe("IsTerminal", func() {
		DescribeTable("reports terminal-ness per state",
			func(state incident.State, terminal bool) {
				i := &incident.Incident{State: state}
				Expect(i.IsTerminal()).To(Equal(terminal))
			},
			Entry("received", incident.StateReceived, false),
			Entry("analyzing", incident.StateAnalyzing, false),
			Entry("awaiting_approval", incident.StateAwaitingApproval, false),
			Entry("resolved", incident.StateResolved, true),
			Entry("failed", incident.StateFailed, true),
			Entry("abandoned", incident.StateAbandoned, true),
		)
	})

	Describe("HasSuccessfulVerifiedExecution", func() {
		It("is false with no executions", func() {
			i := &incident.Incident{}
			Expect(i.HasSuccessfulVerifiedExecution()).To(BeFalse())
		})

		It("is false when the only success lacks a passing verification", func() {
			i := &incident.Incident{Executions: []incident.ExecutionRecord{
				{Status: incident.StatusSucceeded, Verification: &incident.VerificationResult{Passed: false}},
			}}
			Expect(i.HasSuccessfulVerifiedExecution()).To(BeFalse())
		})

		It("is true when a succeeded execution has a passing verification", func() {
			i := &incident.Incident{Executions: []incident.ExecutionRecord{
				{Status: incident.StatusFailed},
				{Status: incident.StatusSucceeded, Verification: &incident.VerificationResult{Passed: true}},
			}}
			Expect(i.HasSuccessfulVerifiedExecution()).To(BeTrue())
		})
	})

	Describe("HasAttemptedExecution", func() {
		It("ignores skipped and rejected records", func() {
			i := &incident.Incident{Executions: []incident.ExecutionRecord{
				{Status: incident.StatusSkipped},
				{Status: incident.StatusRejected},
			}}
			Expect(i.HasAttemptedExecution()).To(BeFalse())
		})

		It("counts failed as attempted", func() {
			i := &incident.Incident{Executions: []incident.ExecutionRecord{
				{Status: incident.StatusFailed},
			}}
			Expect(i.HasAttemptedExecution()).To(BeTrue())
		})
	})

	Describe("ExecutionRecord ordering invariant", func() {
		It("requires finished_at not before started_at", func() {
			start := time.Now()
			rec := incident.ExecutionRecord{StartedAt: start, FinishedAt: start.Add(2 * time.Second)}
			Expect(rec.FinishedAt.After(rec.StartedAt) || rec.FinishedAt.Equal(rec.StartedAt)).To(BeTrue())
		})
	})
})
