// Package solana is a minimal JSON-RPC client for reading chain state.
package solana

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/pysugar/agent-nexus/internal/upstream"
)

const (
	providerName      = "solana"
	DefaultRPCURL     = "https://api.mainnet-beta.solana.com"
	LamportsPerSOL    = 1_000_000_000
	defaultCommitment = "confirmed"
)

type Client struct {
	rpcURL     string
	httpClient *http.Client
	nextID     atomic.Int64
}

type Balance struct {
	Address  string  `json:"address"`
	Lamports uint64  `json:"lamports"`
	SOL      float64 `json:"sol"`
	Slot     uint64  `json:"slot"`
}

func NewClient(rpcURL string, httpClient *http.Client) *Client {
	if rpcURL = strings.TrimSpace(rpcURL); rpcURL == "" {
		rpcURL = DefaultRPCURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	return &Client{rpcURL: rpcURL, httpClient: httpClient}
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int64         `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type contextResult struct {
	Context struct {
		Slot uint64 `json:"slot"`
	} `json:"context"`
	Value json.RawMessage `json:"value"`
}

// Balance returns the SOL balance of address.
func (c *Client) Balance(ctx context.Context, address string) (*Balance, error) {
	var res contextResult
	if err := c.call(ctx, "getBalance", []interface{}{address, map[string]string{"commitment": defaultCommitment}}, &res); err != nil {
		return nil, err
	}
	lamports, err := strconv.ParseUint(string(res.Value), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("decode balance %q: %w", string(res.Value), err)
	}
	return &Balance{
		Address:  address,
		Lamports: lamports,
		SOL:      float64(lamports) / LamportsPerSOL,
		Slot:     res.Context.Slot,
	}, nil
}

func (c *Client) call(ctx context.Context, method string, params []interface{}, out interface{}) error {
	payload, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: c.nextID.Add(1), Method: method, Params: params})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("solana %s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return upstream.NewAPIError(providerName, resp)
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("decode solana %s response: %w", method, err)
	}
	if rpcResp.Error != nil {
		return &upstream.APIError{
			Provider:   providerName,
			StatusCode: rpcResp.Error.Code,
			Detail:     rpcResp.Error.Message,
		}
	}
	return json.Unmarshal(rpcResp.Result, out)
}
