package worksource

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/wittyreference/feature-factory/internal/model"
)

// alertMapping is one entry of the static error-code routing table: it
// turns an opaque upstream error code into the triage fields a work
// queue needs without the alert API itself knowing about workflows.
type alertMapping struct {
	priority          string
	tier              int
	suggestedWorkflow string
}

// errorCodeTable maps known error codes to their triage mapping. Unknown
// codes fall back to defaultMapping rather than being dropped, since an
// unrecognized but real alert is still actionable.
var errorCodeTable = map[string]alertMapping{
	"PANIC":            {priority: "critical", tier: 1, suggestedWorkflow: "bugfix"},
	"NIL_DEREF":        {priority: "critical", tier: 1, suggestedWorkflow: "bugfix"},
	"DEADLOCK":         {priority: "high", tier: 2, suggestedWorkflow: "bugfix"},
	"TIMEOUT":          {priority: "high", tier: 2, suggestedWorkflow: "bugfix"},
	"VALIDATION_ERROR": {priority: "medium", tier: 3, suggestedWorkflow: "bugfix"},
	"FLAKY_TEST":       {priority: "medium", tier: 3, suggestedWorkflow: "test-gen"},
	"LINT_REGRESSION":  {priority: "low", tier: 4, suggestedWorkflow: "feature"},
}

var defaultMapping = alertMapping{priority: "medium", tier: 3, suggestedWorkflow: "bugfix"}

// alertResponse is the shape of the external alerts API's list response.
type alertResponse struct {
	Alerts []rawAlert `json:"alerts"`
}

type rawAlert struct {
	ID           string   `json:"id"`
	ErrorCode    string   `json:"errorCode"`
	Summary      string   `json:"summary"`
	ResourceSIDs []string `json:"resourceSids"`
}

// DebuggerAlertSource polls an external alerts API and turns new alerts
// into WorkItems. It deduplicates by alert ID across polls for the
// lifetime of the process; the cache is never persisted and carries
// forward only within one driver's lifetime.
type DebuggerAlertSource struct {
	APIURL     string
	HTTPClient *http.Client

	seen map[string]bool
}

// NewDebuggerAlertSource builds a source against apiURL with a 10s
// default client timeout, matching the embedder HTTP clients' default
// timeout convention (v2/embedder/openai.go).
func NewDebuggerAlertSource(apiURL string) *DebuggerAlertSource {
	return &DebuggerAlertSource{
		APIURL:     apiURL,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		seen:       make(map[string]bool),
	}
}

func (s *DebuggerAlertSource) Name() string       { return "debugger-alerts" }
func (s *DebuggerAlertSource) SourceType() string { return "debugger-alert" }
func (s *DebuggerAlertSource) Enabled() bool      { return s.APIURL != "" }

// Poll fetches the current alert list and returns only alerts not seen in
// a prior poll. Any transport or decode error is swallowed and reported
// as an empty result: a flaky alerts API must never block the work
// queue feeding off other sources.
func (s *DebuggerAlertSource) Poll(ctx context.Context) ([]model.WorkItem, error) {
	if !s.Enabled() {
		return nil, nil
	}
	if s.seen == nil {
		s.seen = make(map[string]bool)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.APIURL, nil)
	if err != nil {
		return nil, nil
	}
	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return nil, nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil
	}
	var parsed alertResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, nil
	}

	var items []model.WorkItem
	for _, a := range parsed.Alerts {
		if a.ID == "" || s.seen[a.ID] {
			continue
		}
		s.seen[a.ID] = true

		mapping, ok := errorCodeTable[a.ErrorCode]
		if !ok {
			mapping = defaultMapping
		}
		summary := a.Summary
		if summary == "" {
			summary = fmt.Sprintf("%s alert", a.ErrorCode)
		}
		items = append(items, model.WorkItem{
			ID:                a.ID,
			Source:            s.Name(),
			Summary:           summary,
			Priority:          mapping.priority,
			Tier:              mapping.tier,
			SuggestedWorkflow: mapping.suggestedWorkflow,
			ResourceSIDs:      a.ResourceSIDs,
			Status:            "new",
			Consumed:          false,
		})
	}
	return items, nil
}
