package analysis

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ondutyhq/sentinel/pkg/incident"
)

// ParseError reports a model response that could not be parsed into a
// ResolutionPlan. The Analysis Engine maps this to incident state
// analysis_failed (spec.md §4.3).
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string { return "parse response: " + e.Reason }

var sectionMarkers = []string{"ROOT CAUSE", "IMPACT ASSESSMENT", "REMEDIATION STEPS", "MONITORING RECOMMENDATIONS"}

var recognizedVerbs = map[string]bool{
	"restart_pod":         true,
	"scale_deployment":    true,
	"patch_memory_limit":  true,
	"patch_cpu_limit":     true,
	"rollback_deployment": true,
	"set_image":           true,
	"apply_manifest":      true,
}

// commandLine matches "verb key=value key=value # confidence=0.NN risk=low",
// after stripCodeFence has removed any surrounding ``` markers.
var commandLine = regexp.MustCompile(`^([a-z_]+)((?:\s+[a-zA-Z0-9_]+=\S+)*)\s*(?:#\s*(.*))?$`)
var kvPair = regexp.MustCompile(`([a-zA-Z0-9_]+)=(\S+)`)

func stripCodeFence(line string) string {
	line = strings.TrimSpace(line)
	line = strings.TrimPrefix(line, "```")
	line = strings.TrimSuffix(line, "```")
	return strings.TrimSpace(line)
}

// Parse is the pure frontier function isolating the fragile model-response
// parsing behind a testable string → ResolutionPlan | ParseError boundary
// (spec.md §9 Design Notes). It never promotes a diagnostic-section line to
// an executable action, even if it happens to match the verb grammar — only
// lines inside REMEDIATION STEPS are candidates.
func Parse(response string) (*incident.ResolutionPlan, error) {
	sections := splitSections(response)

	rootCause := strings.TrimSpace(sections["ROOT CAUSE"])
	impact := strings.TrimSpace(sections["IMPACT ASSESSMENT"])

	if rootCause == "" {
		return nil, &ParseError{Reason: "missing ROOT CAUSE section"}
	}

	plan := &incident.ResolutionPlan{
		RootCause:       rootCause,
		ImpactAssessment: impact,
	}

	remediation, hasRemediation := sections["REMEDIATION STEPS"]
	if hasRemediation {
		for _, line := range strings.Split(remediation, "\n") {
			action, ok := parseCommandLine(line)
			if !ok {
				continue
			}
			plan.Actions = append(plan.Actions, action)
		}
	}

	if monitoring, ok := sections["MONITORING RECOMMENDATIONS"]; ok {
		for _, line := range strings.Split(monitoring, "\n") {
			line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "-"))
			if line != "" {
				plan.MonitoringRecommendations = append(plan.MonitoringRecommendations, line)
			}
		}
	}

	// Plan contains zero actions when there's no remediation section or no
	// recognizable commands within it — this is not a parse error, it's an
	// empty plan, handled by the caller as analysis_empty (spec.md §4.3).
	return plan, nil
}

// splitSections breaks response on the fixed markers into a map keyed by
// marker name, each value holding everything up to the next marker.
func splitSections(response string) map[string]string {
	lines := strings.Split(response, "\n")
	sections := map[string]string{}

	current := ""
	var body strings.Builder
	flush := func() {
		if current != "" {
			sections[current] = body.String()
		}
		body.Reset()
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		matched := false
		for _, marker := range sectionMarkers {
			if trimmed == marker {
				flush()
				current = marker
				matched = true
				break
			}
		}
		if matched {
			continue
		}
		if current != "" {
			body.WriteString(line)
			body.WriteString("\n")
		}
	}
	flush()
	return sections
}

func parseCommandLine(line string) (incident.ResolutionAction, bool) {
	trimmed := stripCodeFence(line)
	if trimmed == "" {
		return incident.ResolutionAction{}, false
	}

	m := commandLine.FindStringSubmatch(trimmed)
	if m == nil {
		return incident.ResolutionAction{}, false
	}
	verb := m[1]
	if !recognizedVerbs[verb] {
		return incident.ResolutionAction{}, false
	}

	params := map[string]any{}
	for _, kv := range kvPair.FindAllStringSubmatch(m[2], -1) {
		params[kv[1]] = kv[2]
	}

	confidence := 0.5
	risk := incident.RiskMedium
	for _, kv := range kvPair.FindAllStringSubmatch(m[3], -1) {
		switch kv[1] {
		case "confidence":
			if f, err := strconv.ParseFloat(kv[2], 64); err == nil {
				confidence = f
			}
		case "risk":
			risk = incident.RiskLevel(kv[2])
		}
	}

	return incident.ResolutionAction{
		ActionType: verb,
		Params:     params,
		Description: fmt.Sprintf("%s %s", verb, strings.TrimSpace(m[2])),
		Confidence:  confidence,
		RiskLevel:   risk,
	}, true
}
