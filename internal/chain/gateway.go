package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// GatewayClient talks to the ledger gateway sidecar, which holds the signing
// keys and fronts the RPC node. Account reads are GET lookups; instruction
// submissions are POSTs returning the transaction signature.
type GatewayClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewGatewayClient creates a client for the gateway at baseURL.
func NewGatewayClient(baseURL string) *GatewayClient {
	return &GatewayClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

var _ Client = (*GatewayClient)(nil)

// ErrNotFound is returned when the requested account does not exist at the
// queried commitment level. Reads behind ReadWithRetry treat it as
// transient read-after-write lag.
var ErrNotFound = fmt.Errorf("chain: account not found")

func (c *GatewayClient) get(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("chain: build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("chain: %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("chain: %s: status %d: %s", path, resp.StatusCode, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("chain: decode %s: %w", path, err)
	}
	return nil
}

// submitResponse is the gateway's envelope for instruction submissions.
type submitResponse struct {
	Signature string `json:"signature"`
	Error     string `json:"error,omitempty"`
}

func (c *GatewayClient) post(ctx context.Context, path string, in any) (string, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return "", fmt.Errorf("chain: marshal %s: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("chain: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("chain: %s: %w", path, err)
	}
	defer resp.Body.Close()

	var sr submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return "", fmt.Errorf("chain: decode %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK || sr.Error != "" {
		return "", fmt.Errorf("chain: %s rejected (status %d): %s", path, resp.StatusCode, sr.Error)
	}
	return sr.Signature, nil
}

func (c *GatewayClient) GetOrder(ctx context.Context, orderPDA string) (*Order, error) {
	var o Order
	if err := c.get(ctx, "/v1/accounts/order/"+url.PathEscape(orderPDA), nil, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

func (c *GatewayClient) GetPosition(ctx context.Context, positionPDA string) (*Position, error) {
	var p Position
	if err := c.get(ctx, "/v1/accounts/position/"+url.PathEscape(positionPDA), nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *GatewayClient) GetBaskt(ctx context.Context, basktID string) (*Baskt, error) {
	var b Baskt
	if err := c.get(ctx, "/v1/accounts/baskt/"+url.PathEscape(basktID), nil, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (c *GatewayClient) GetAsset(ctx context.Context, assetPDA string) (*Asset, error) {
	var a Asset
	if err := c.get(ctx, "/v1/accounts/asset/"+url.PathEscape(assetPDA), nil, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (c *GatewayClient) GetPool(ctx context.Context) (*Pool, error) {
	var p Pool
	if err := c.get(ctx, "/v1/accounts/pool", nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *GatewayClient) GetWithdrawRequest(ctx context.Context, requestID uint64) (*WithdrawRequest, error) {
	q := url.Values{"request_id": {strconv.FormatUint(requestID, 10)}}
	var wr WithdrawRequest
	if err := c.get(ctx, "/v1/accounts/withdraw-request", q, &wr); err != nil {
		return nil, err
	}
	return &wr, nil
}

func (c *GatewayClient) GetProtocolState(ctx context.Context) (*ProtocolState, error) {
	var ps ProtocolState
	if err := c.get(ctx, "/v1/accounts/protocol", nil, &ps); err != nil {
		return nil, err
	}
	return &ps, nil
}

func (c *GatewayClient) OpenPosition(ctx context.Context, p OpenPositionParams) (string, error) {
	return c.post(ctx, "/v1/instructions/open-position", p)
}

func (c *GatewayClient) ClosePosition(ctx context.Context, p ClosePositionParams) (string, error) {
	return c.post(ctx, "/v1/instructions/close-position", p)
}

func (c *GatewayClient) LiquidatePosition(ctx context.Context, positionPDA string) (string, error) {
	return c.post(ctx, "/v1/instructions/liquidate-position", map[string]string{
		"position_pda": positionPDA,
	})
}

func (c *GatewayClient) ActivateBaskt(ctx context.Context, p ActivateBasktParams) (string, error) {
	return c.post(ctx, "/v1/instructions/activate-baskt", p)
}
