package analysis

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ondutyhq/sentinel/pkg/incident"
)

// responseTemplate is appended to every prompt so the model's free-text
// reply is structured enough for Parse to split deterministically.
const responseTemplate = `
Respond using exactly these section markers, each on its own line:

ROOT CAUSE
<one paragraph>

IMPACT ASSESSMENT
<one paragraph>

REMEDIATION STEPS
<one command per line, using a recognized verb: restart_pod, scale_deployment,
patch_memory_limit, patch_cpu_limit, rollback_deployment, set_image,
apply_manifest. Each line: "verb key=value key=value # confidence=0.NN risk=low|medium|high">

MONITORING RECOMMENDATIONS
<one recommendation per line>
`

// BuildPrompt serializes alert + context into the structured prompt
// described in spec.md §4.3: an alert summary, per-adapter context
// snippets sorted by adapter name for determinism, and the response
// template instruction.
func BuildPrompt(inc incident.Incident) string {
	var b strings.Builder

	fmt.Fprintf(&b, "ALERT SUMMARY\n")
	fmt.Fprintf(&b, "source: %s\nseverity: %s\nservice: %s\nnamespace: %s\nresource: %s\ntitle: %s\ndescription: %s\n\n",
		inc.Alert.Source, inc.Alert.Severity, inc.Alert.Service, inc.Alert.Namespace, inc.Alert.Resource, inc.Alert.Title, inc.Alert.Description)

	names := make([]string, 0, len(inc.Context))
	for name := range inc.Context {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		bundle := inc.Context[name]
		fmt.Fprintf(&b, "CONTEXT: %s\n", name)
		if !bundle.OK {
			fmt.Fprintf(&b, "(unavailable: %s)\n\n", bundle.Error)
			continue
		}
		for k, v := range bundle.Data {
			fmt.Fprintf(&b, "%s: %v\n", k, v)
		}
		if bundle.Truncated {
			fmt.Fprintf(&b, "(truncated)\n")
		}
		b.WriteString("\n")
	}

	b.WriteString(responseTemplate)
	return b.String()
}
