package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AllocationClient communicates with the Python ML service's internal API
// for DCA allocation and case priority scoring.
type AllocationClient struct {
	baseURL    string
	httpClient *http.Client
	log        *zap.Logger
}

func NewAllocationClient(baseURL string, log *zap.Logger) *AllocationClient {
	return &AllocationClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		log: log,
	}
}

// CaseSummary is the case slice the scorer sees.
type CaseSummary struct {
	CaseID            uuid.UUID `json:"case_id"`
	OutstandingAmount int64     `json:"outstanding_amount"`
	DaysPastDue       int       `json:"days_past_due"`
	Segment           string    `json:"segment"`
	RegionID          string    `json:"region_id"`
}

type AllocationDecision struct {
	DCAID   uuid.UUID `json:"dca_id"`
	DCAName string    `json:"dca_name"`
	Reason  string    `json:"reason"`
}

type PriorityResult struct {
	PriorityScore  int    `json:"priority_score"`
	RiskLevel      string `json:"risk_level"`
	Recommendation string `json:"recommendation"`
}

func (c *AllocationClient) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ml service unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("ml service returned %d: %s", resp.StatusCode, string(raw))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Allocate asks the scorer to pick an agency for the case.
func (c *AllocationClient) Allocate(ctx context.Context, summary CaseSummary) (*AllocationDecision, error) {
	var decision AllocationDecision
	if err := c.post(ctx, "/internal/allocation/score", summary, &decision); err != nil {
		return nil, err
	}
	if decision.DCAID == uuid.Nil {
		return nil, fmt.Errorf("ml service returned no agency for case %s", summary.CaseID)
	}
	return &decision, nil
}

// PriorityScore fetches the case's priority score. Used to enrich the case
// detail view; read-only and safe to skip on failure.
func (c *AllocationClient) PriorityScore(ctx context.Context, summary CaseSummary) (*PriorityResult, error) {
	var result PriorityResult
	if err := c.post(ctx, "/internal/priority/score", summary, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
