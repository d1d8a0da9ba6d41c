package statemachine_test

import (
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/ondutyhq/sentinel/pkg/incident"
	"github.com/ondutyhq/sentinel/pkg/statemachine"
)

func TestStatemachine(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Statemachine Suite")
}

func newIncident(id string) *incident.Incident {
	return &incident.Incident{IncidentID: id, CreatedAt: time.Now()}
}

var _ = Describe("Machine", func() {
	var m *statemachine.Machine

	BeforeEach(func() {
		m = statemachine.NewMachine()
	})

	It("starts a tracked incident in StateReceived", func() {
		inc := newIncident("inc-1")
		m.Track(inc)
		Expect(inc.State).To(Equal(incident.StateReceived))
	})

	It("walks the happy path from received to resolved", func() {
		inc := newIncident("inc-1")
		m.Track(inc)

		Expect(m.Apply("inc-1", incident.StateDeduplicated, "")).To(Succeed())
		Expect(m.Apply("inc-1", incident.StateContextGathering, "")).To(Succeed())
		Expect(m.Apply("inc-1", incident.StateAnalyzing, "")).To(Succeed())
		Expect(m.Apply("inc-1", incident.StateExecuting, "")).To(Succeed())
		Expect(m.Apply("inc-1", incident.StateVerifying, "")).To(Succeed())

		inc.Executions = append(inc.Executions, incident.ExecutionRecord{
			Status:       incident.StatusSucceeded,
			Verification: &incident.VerificationResult{Passed: true},
		})

		Expect(m.Apply("inc-1", incident.StateResolved, "auto_recovered")).To(Succeed())
		Expect(inc.State).To(Equal(incident.StateResolved))
		Expect(inc.TerminalOutcome).To(Equal(incident.OutcomeResolved))
	})

	It("rejects an illegal transition", func() {
		inc := newIncident("inc-1")
		m.Track(inc)
		err := m.Apply("inc-1", incident.StateExecuting, "")
		Expect(err).To(BeAssignableToTypeOf(&statemachine.ErrIllegalTransition{}))
	})

	It("refuses to resolve from verifying without a successful verified execution", func() {
		inc := newIncident("inc-1")
		m.Track(inc)
		Expect(m.Apply("inc-1", incident.StateDeduplicated, "")).To(Succeed())
		Expect(m.Apply("inc-1", incident.StateContextGathering, "")).To(Succeed())
		Expect(m.Apply("inc-1", incident.StateAnalyzing, "")).To(Succeed())
		Expect(m.Apply("inc-1", incident.StateExecuting, "")).To(Succeed())
		Expect(m.Apply("inc-1", incident.StateVerifying, "")).To(Succeed())

		err := m.Apply("inc-1", incident.StateResolved, "")
		Expect(err).To(BeAssignableToTypeOf(&statemachine.ErrResolutionRuleUnmet{}))
	})

	It("never resolves an analysis_empty incident, even if the subject has cleared", func() {
		inc := newIncident("inc-1")
		m.Track(inc)
		Expect(m.Apply("inc-1", incident.StateDeduplicated, "")).To(Succeed())
		Expect(m.Apply("inc-1", incident.StateContextGathering, "")).To(Succeed())
		Expect(m.Apply("inc-1", incident.StateAnalyzing, "")).To(Succeed())
		Expect(m.Apply("inc-1", incident.StateAnalysisEmpty, "")).To(Succeed())

		err := m.Apply("inc-1", incident.StateResolved, "")
		Expect(err).To(BeAssignableToTypeOf(&statemachine.ErrIllegalTransition{}))

		Expect(m.Apply("inc-1", incident.StateAbandoned, "no_executable_actions")).To(Succeed())
		Expect(inc.State).To(Equal(incident.StateAbandoned))
		Expect(inc.TerminalOutcome).To(Equal(incident.OutcomeAbandoned))
	})

	It("rejects any transition once an incident is terminal", func() {
		inc := newIncident("inc-1")
		m.Track(inc)
		Expect(m.Apply("inc-1", incident.StateDeduplicated, "")).To(Succeed())
		Expect(m.Apply("inc-1", incident.StateContextGathering, "")).To(Succeed())
		Expect(m.Apply("inc-1", incident.StateAnalyzing, "")).To(Succeed())
		Expect(m.Apply("inc-1", incident.StateAnalysisFailed, "")).To(Succeed())
		Expect(m.Apply("inc-1", incident.StateFailed, "model unreachable")).To(Succeed())

		err := m.Apply("inc-1", incident.StateResolved, "")
		Expect(err).To(HaveOccurred())
	})
})
