package ingress

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ondutyhq/sentinel/pkg/incident"
)

// pagerDutyWebhook models the subset of PagerDuty's v3 webhook envelope
// this service cares about.
type pagerDutyWebhook struct {
	Event struct {
		ID         string    `json:"id"`
		EventType  string    `json:"event_type"`
		OccurredAt time.Time `json:"occurred_at"`
		Data       struct {
			ID      string `json:"id"`
			Type    string `json:"type"`
			Title   string `json:"title"`
			Urgency string `json:"urgency"`
			Service struct {
				Summary string `json:"summary"`
			} `json:"service"`
		} `json:"data"`
	} `json:"event"`
}

// parsePagerDuty converts a PagerDuty webhook body into an Alert. Only
// incident.triggered events produce an alert; everything else (escalation,
// acknowledgment, resolution events PagerDuty also delivers) is ignored by
// returning a nil alert with no error, since they aren't new incidents.
func parsePagerDuty(body []byte) (*incident.Alert, error) {
	var payload pagerDutyWebhook
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("parse pagerduty payload: %w", err)
	}
	if payload.Event.EventType != "incident.triggered" {
		return nil, nil
	}

	severity := incident.SeverityMedium
	switch payload.Event.Data.Urgency {
	case "high":
		severity = incident.SeverityHigh
	case "low":
		severity = incident.SeverityLow
	}

	return &incident.Alert{
		ID:        payload.Event.Data.ID,
		Source:    incident.SourcePagerDuty,
		Severity:  severity,
		Title:     payload.Event.Data.Title,
		Service:   payload.Event.Data.Service.Summary,
		Timestamp: payload.Event.OccurredAt,
		Raw:       map[string]any{"event_id": payload.Event.ID},
	}, nil
}

// snsEnvelope wraps CloudWatch alarm notifications as delivered via SNS.
type snsEnvelope struct {
	Type    string `json:"Type"`
	Message string `json:"Message"`
}

// cloudWatchAlarm is the JSON body SNS delivers inside its Message field.
type cloudWatchAlarm struct {
	AlarmName      string `json:"AlarmName"`
	AlarmDescription string `json:"AlarmDescription"`
	NewStateValue  string `json:"NewStateValue"`
	NewStateReason string `json:"NewStateReason"`
	StateChangeTime time.Time `json:"StateChangeTime"`
	Trigger        struct {
		Namespace  string `json:"Namespace"`
		MetricName string `json:"MetricName"`
		Dimensions []struct {
			Name  string `json:"name"`
			Value string `json:"value"`
		} `json:"Dimensions"`
	} `json:"Trigger"`
}

// parseCloudWatch unwraps the SNS envelope (if present) and converts a
// CloudWatch alarm into an Alert. Only ALARM state transitions produce an
// alert; OK/INSUFFICIENT_DATA transitions are ignored.
func parseCloudWatch(body []byte) (*incident.Alert, error) {
	raw := body
	var envelope snsEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Message != "" {
		raw = []byte(envelope.Message)
	}

	var alarm cloudWatchAlarm
	if err := json.Unmarshal(raw, &alarm); err != nil {
		return nil, fmt.Errorf("parse cloudwatch payload: %w", err)
	}
	if alarm.NewStateValue != "ALARM" {
		return nil, nil
	}

	service := ""
	for _, d := range alarm.Trigger.Dimensions {
		if d.Name == "ServiceName" || d.Name == "FunctionName" {
			service = d.Value
			break
		}
	}

	return &incident.Alert{
		ID:          uuid.NewString(),
		Source:      incident.SourceCloudWatch,
		Severity:    incident.SeverityHigh,
		Title:       alarm.AlarmName,
		Description: alarm.NewStateReason,
		Service:     service,
		Timestamp:   alarm.StateChangeTime,
		Raw:         map[string]any{"namespace": alarm.Trigger.Namespace, "metric": alarm.Trigger.MetricName},
	}, nil
}
