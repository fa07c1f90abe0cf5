package github

import (
	"strconv"
	"strings"

	"github.com/elephantgerald/bartleby-sub001/internal/types"
)

// LabelPrefix scopes the status labels bartleby manages on the remote.
const LabelPrefix = "bartleby:"

// statusLabels maps label values (without prefix) to work item statuses.
// Both the prefixed form ("bartleby:in-progress") and the bare synonym
// ("in-progress") are recognized on ingest.
var statusLabels = map[string]types.Status{
	"ready":       types.StatusReady,
	"in-progress": types.StatusInProgress,
	"blocked":     types.StatusBlocked,
	"failed":      types.StatusFailed,
}

// labelValues is the reverse mapping for status push.
var labelValues = map[types.Status]string{
	types.StatusReady:      "ready",
	types.StatusInProgress: "in-progress",
	types.StatusBlocked:    "blocked",
	types.StatusFailed:     "failed",
}

// StatusFromLabelsAndState determines the work item status from GitHub
// labels and issue state. The closed state always wins (closed issues are
// complete); otherwise the first recognized status label applies; otherwise
// the item is pending.
func StatusFromLabelsAndState(labels []Label, state string) types.Status {
	if state == "closed" {
		return types.StatusComplete
	}
	for _, label := range labels {
		name := strings.ToLower(label.Name)
		name = strings.TrimPrefix(name, LabelPrefix)
		if status, ok := statusLabels[name]; ok {
			return status
		}
	}
	return types.StatusPending
}

// StatusLabel returns the remote label for a bartleby-managed status, or ""
// when the status maps to no label (Complete becomes the closed state and
// emits no label; Pending is unmanaged).
func StatusLabel(status types.Status) string {
	if v, ok := labelValues[status]; ok {
		return LabelPrefix + v
	}
	return ""
}

// IsManagedLabel reports whether a label is one bartleby owns on the remote
// (prefixed or bare synonym). Managed labels are stripped before pushing so
// stale status labels never accumulate.
func IsManagedLabel(name string) bool {
	lower := strings.ToLower(name)
	lower = strings.TrimPrefix(lower, LabelPrefix)
	_, ok := statusLabels[lower]
	return ok
}

// FilterUnmanagedLabels returns only the labels bartleby does not own.
func FilterUnmanagedLabels(labels []string) []string {
	var out []string
	for _, l := range labels {
		if !IsManagedLabel(l) {
			out = append(out, l)
		}
	}
	return out
}

// ItemFromIssue converts a GitHub issue to a work item. The item carries the
// tracker binding (SourceName, ExternalID, ExternalURL) and only unmanaged
// labels; the status is label-derived.
func ItemFromIssue(gh *Issue) *types.WorkItem {
	item := &types.WorkItem{
		Title:       gh.Title,
		Description: gh.Body,
		SourceName:  SourceName,
		ExternalID:  strconv.Itoa(gh.Number),
		ExternalURL: gh.HTMLURL,
		Status:      StatusFromLabelsAndState(gh.Labels, gh.State),
		Labels:      FilterUnmanagedLabels(LabelNames(gh.Labels)),
	}
	if gh.CreatedAt != nil {
		item.CreatedAt = *gh.CreatedAt
	}
	if gh.UpdatedAt != nil {
		item.UpdatedAt = *gh.UpdatedAt
	}
	return item
}

// FieldsForStatusPush builds the GitHub update payload reflecting an item's
// status: unmanaged labels plus the managed status label, and the closed
// state for complete items.
func FieldsForStatusPush(item *types.WorkItem) map[string]interface{} {
	labels := FilterUnmanagedLabels(item.Labels)
	if l := StatusLabel(item.Status); l != "" {
		labels = append(labels, l)
	}

	fields := map[string]interface{}{"labels": labels}
	if item.Status == types.StatusComplete {
		fields["state"] = "closed"
	} else {
		fields["state"] = "open"
	}
	return fields
}
