package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"shakerisk/internal/types"
)

// PSHAClient calls the external probabilistic seismic hazard backend over
// HTTP. It implements types.HazardCalculator: one synchronous call per cache
// miss, returning every per-realization curve plus the logic-tree weights.
//
// The backend is treated as a black box. Source models, GMPE logic trees and
// ground-motion simulation live entirely on its side; the engine only hands
// over references and receives tabulated curves.
type PSHAClient struct {
	base     *BaseClient
	endpoint string
}

// NewPSHAClient creates a client for the hazard backend at endpoint, e.g.
// "https://psha.internal:8800". httpClient may be nil (a client with a
// 10 minute timeout is used; hazard jobs are slow).
func NewPSHAClient(endpoint string, httpClient *http.Client, opts ...BaseClientOption) *PSHAClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Minute}
	}
	return &PSHAClient{
		base:     NewBaseClient(httpClient, "psha", DefaultRetryPolicy(), "shakerisk/1.0", opts...),
		endpoint: endpoint,
	}
}

// Compute submits the hazard parameters and decodes the resulting curve set.
func (c *PSHAClient) Compute(ctx context.Context, params types.HazardParams) (*types.HazardCurveSet, error) {
	payload, err := json.Marshal(params)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected,
			"failed to encode hazard parameters", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.endpoint+"/v1/calc/hazard", bytes.NewReader(payload))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected,
			"failed to build hazard request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.base.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, types.NewAppErrorWithDetails(types.ErrCodeUpstreamHazard,
			fmt.Sprintf("hazard backend returned %d", resp.StatusCode), nil,
			map[string]any{"body": string(body)})
	}

	var set types.HazardCurveSet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamHazard,
			"failed to decode hazard backend response", err)
	}
	if len(set.Curves) == 0 {
		return nil, types.NewAppError(types.ErrCodeUpstreamHazard,
			"hazard backend returned an empty curve set", nil)
	}
	return &set, nil
}
