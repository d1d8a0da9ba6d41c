package notification_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/slack-go/slack"
	"go.uber.org/zap"

	"github.com/ondutyhq/sentinel/pkg/incident"
	"github.com/ondutyhq/sentinel/pkg/notification"
)

var _ = Describe("Notifier", func() {
	var inc incident.Incident

	BeforeEach(func() {
		inc = incident.Incident{
			IncidentID: "inc-1",
			Alert:      incident.Alert{Service: "payment-service", Title: "OOMKilled"},
		}
	})

	It("posts a sanitized message to the configured channel", func() {
		var received atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			received.Add(1)
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"ok":true,"channel":"C123","ts":"1.1"}`))
		}))
		defer srv.Close()

		n := notification.NewNotifierWithClient(slack.New("xoxb-test", slack.OptionAPIURL(srv.URL+"/")), "C123", zap.NewNop())
		n.Notify(context.Background(), inc, "incident_resolved")

		Expect(received.Load()).To(Equal(int32(1)))
	})

	It("opens its circuit breaker after repeated delivery failures and stops calling Slack", func() {
		var received atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			received.Add(1)
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		n := notification.NewNotifierWithClient(slack.New("xoxb-test", slack.OptionAPIURL(srv.URL+"/")), "C123", zap.NewNop())

		for i := 0; i < 5; i++ {
			n.Notify(context.Background(), inc, "action_executed")
		}
		afterFailures := received.Load()

		n.Notify(context.Background(), inc, "action_executed")
		Eventually(func() int32 { return received.Load() }, time.Second, 10*time.Millisecond).Should(Equal(afterFailures))
	})
})
