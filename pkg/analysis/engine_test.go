package analysis_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/ondutyhq/sentinel/pkg/analysis"
	"github.com/ondutyhq/sentinel/pkg/incident"
)

type fakeModel struct {
	response string
	err      error
	delay    time.Duration
}

func (f *fakeModel) Complete(ctx context.Context, prompt string) (string, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.response, f.err
}

var _ = Describe("Engine", func() {
	inc := incident.Incident{IncidentID: "inc-1", Alert: incident.Alert{Service: "payment-service"}}

	It("returns a planned outcome when the response parses with actions", func() {
		m := &fakeModel{response: s1Transcript}
		e := analysis.NewEngine(m, time.Second, zap.NewNop())

		result := e.Analyze(context.Background(), inc)
		Expect(result.Outcome).To(Equal(analysis.OutcomePlanned))
		Expect(result.Plan.Actions).To(HaveLen(1))
	})

	It("returns analysis_failed when the model call errors", func() {
		m := &fakeModel{err: errors.New("connection refused")}
		e := analysis.NewEngine(m, time.Second, zap.NewNop())

		result := e.Analyze(context.Background(), inc)
		Expect(result.Outcome).To(Equal(analysis.OutcomeAnalysisFailed))
		Expect(result.Err).To(HaveOccurred())
	})

	It("returns analysis_failed when the response cannot be parsed", func() {
		m := &fakeModel{response: "no section markers here"}
		e := analysis.NewEngine(m, time.Second, zap.NewNop())

		result := e.Analyze(context.Background(), inc)
		Expect(result.Outcome).To(Equal(analysis.OutcomeAnalysisFailed))
	})

	It("returns analysis_empty when the plan has a root cause but no actions", func() {
		m := &fakeModel{response: "ROOT CAUSE\nNo anomaly found.\n"}
		e := analysis.NewEngine(m, time.Second, zap.NewNop())

		result := e.Analyze(context.Background(), inc)
		Expect(result.Outcome).To(Equal(analysis.OutcomeAnalysisEmpty))
	})

	It("times out and returns analysis_failed when the model exceeds the deadline", func() {
		m := &fakeModel{response: s1Transcript, delay: 50 * time.Millisecond}
		e := analysis.NewEngine(m, 5*time.Millisecond, zap.NewNop())

		result := e.Analyze(context.Background(), inc)
		Expect(result.Outcome).To(Equal(analysis.OutcomeAnalysisFailed))
	})
})
