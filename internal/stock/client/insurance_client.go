// Package client holds HTTP clients for sibling services.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/medflow/medflow-stock/internal/stock/pricing"
	"github.com/medflow/medflow-stock/pkg/logger"
	"github.com/medflow/medflow-stock/pkg/tenant"
)

// InsuranceClient reads a patient's insurer coverage from the insurance service.
type InsuranceClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *logger.Logger
}

// NewInsuranceClient creates a new insurance service client
func NewInsuranceClient(baseURL string, timeout time.Duration, log *logger.Logger) *InsuranceClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &InsuranceClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     log.WithComponent("insurance-client"),
	}
}

// Card is the insurance service's view of a patient's card.
type Card struct {
	InsurerID       string          `json:"insurer_id"`
	CoveragePercent decimal.Decimal `json:"coverage_percent"`
	CardExpiry      *time.Time      `json:"card_expiry,omitempty"`
}

// Coverage fetches the patient's current coverage. A patient without an
// insurance card yields nil, nil.
func (c *InsuranceClient) Coverage(ctx context.Context, tenantID, patientID string) (*pricing.InsuranceCoverage, error) {
	endpoint := c.baseURL + "/api/v1/patients/" + url.PathEscape(patientID) + "/insurance"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	// Coverage is tenant data; the insurance service resolves it by header.
	httpReq.Header.Set("X-Tenant-ID", tenantID)
	if actor := tenant.ActorID(ctx); actor != "" {
		httpReq.Header.Set("X-User-ID", actor)
	}
	httpReq.Header.Set("Accept", "application/json")

	c.logger.Debug().
		Str("patient_id", patientID).
		Str("tenant_id", tenantID).
		Msg("fetching insurance coverage")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to call insurance service")
		return nil, fmt.Errorf("failed to call insurance service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}

	if resp.StatusCode != http.StatusOK {
		var errResp map[string]interface{}
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		c.logger.Error().
			Int("status", resp.StatusCode).
			Interface("error", errResp).
			Str("patient_id", patientID).
			Msg("insurance lookup failed")
		return nil, fmt.Errorf("insurance lookup failed with status %d: %v", resp.StatusCode, errResp)
	}

	// Sibling services wrap responses in {"success": true, "data": ...}
	var response struct {
		Success bool  `json:"success"`
		Data    *Card `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if response.Data == nil {
		return nil, nil
	}

	return &pricing.InsuranceCoverage{
		Percent:    response.Data.CoveragePercent,
		CardExpiry: response.Data.CardExpiry,
	}, nil
}
