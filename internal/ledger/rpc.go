package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"anchord/internal/config"
	"anchord/internal/digest"
)

// HTTPDoer describes the HTTP client used by the RPC provider.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

const (
	methodSubmitRoot      = "anchor_submitRoot"
	methodGetConfirmation = "anchor_getConfirmation"

	defaultRPCTimeout = 30 * time.Second
)

// JSON-RPC 2.0 error codes that indicate a malformed request; retrying the
// same payload cannot succeed.
const (
	rpcCodeParseError     = -32700
	rpcCodeInvalidRequest = -32600
	rpcCodeMethodNotFound = -32601
	rpcCodeInvalidParams  = -32602
)

// RPCProvider anchors roots through a generic JSON-RPC endpoint that exposes
// anchor_submitRoot and anchor_getConfirmation.
type RPCProvider struct {
	id       string
	endpoint string
	network  string
	timeout  time.Duration
	client   HTTPDoer
}

// NewRPCProvider constructs a provider for one JSON-RPC target. A nil client
// falls back to http.DefaultClient.
func NewRPCProvider(target config.RPCTarget, client HTTPDoer) *RPCProvider {
	if client == nil {
		client = http.DefaultClient
	}
	timeout := defaultRPCTimeout
	if target.Timeout > 0 {
		timeout = time.Duration(target.Timeout) * time.Second
	}
	return &RPCProvider{
		id:       strings.TrimSpace(target.ID),
		endpoint: strings.TrimRight(strings.TrimSpace(target.Endpoint), "/"),
		network:  strings.TrimSpace(target.Network),
		timeout:  timeout,
		client:   client,
	}
}

func (p *RPCProvider) ID() string {
	return p.id
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type submitParams struct {
	Root    string `json:"root"`
	Algo    string `json:"algo"`
	Network string `json:"network,omitempty"`
}

type submitResult struct {
	TxID string `json:"tx_id"`
}

type confirmResult struct {
	Status string `json:"status"`
}

func (p *RPCProvider) Submit(ctx context.Context, root digest.Value) (TxRef, error) {
	if err := root.Validate(); err != nil {
		return TxRef{}, Wrap(ErrPermanent, p.id, "submit", "invalid root", err)
	}

	var result submitResult
	err := p.call(ctx, methodSubmitRoot, []any{submitParams{
		Root:    root.Hex,
		Algo:    string(root.Algo),
		Network: p.network,
	}}, &result)
	if err != nil {
		return TxRef{}, err
	}
	if result.TxID == "" {
		return TxRef{}, Wrap(ErrTransient, p.id, "submit", "empty tx id in response", nil)
	}

	return TxRef{
		Provider:    p.id,
		TxID:        result.TxID,
		Status:      StatusSubmitted,
		SubmittedAt: time.Now().UTC(),
	}, nil
}

func (p *RPCProvider) Confirm(ctx context.Context, ref TxRef) (TxRef, error) {
	if ref.TxID == "" {
		return ref, Wrap(ErrPermanent, p.id, "confirm", "missing tx id", nil)
	}
	if ref.Confirmed() {
		return ref, nil
	}

	var result confirmResult
	if err := p.call(ctx, methodGetConfirmation, []any{ref.TxID}, &result); err != nil {
		return ref, err
	}

	switch strings.ToLower(strings.TrimSpace(result.Status)) {
	case "confirmed", "finalized":
		now := time.Now().UTC()
		ref.Status = StatusConfirmed
		ref.ConfirmedAt = &now
		return ref, nil
	case "pending", "submitted", "processed":
		return ref, nil
	case "failed", "dropped", "rejected":
		ref.Status = StatusFailed
		return ref, Wrap(ErrPermanent, p.id, "confirm", fmt.Sprintf("tx %s %s by ledger", ref.TxID, result.Status), nil)
	default:
		return ref, Wrap(ErrTransient, p.id, "confirm", fmt.Sprintf("unknown confirmation status %q", result.Status), nil)
	}
}

func (p *RPCProvider) call(ctx context.Context, method string, params []any, result any) error {
	payload, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return Wrap(ErrPermanent, p.id, method, "marshal request", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, p.endpoint, bytes.NewReader(payload))
	if err != nil {
		return Wrap(ErrPermanent, p.id, method, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return Wrap(ErrTransient, p.id, method, "http request", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Wrap(ErrTransient, p.id, method, "read response", err)
	}

	if resp.StatusCode != http.StatusOK {
		marker := ErrTransient
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			marker = ErrPermanent
		}
		return Wrap(marker, p.id, method, fmt.Sprintf("http status %d", resp.StatusCode), nil)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return Wrap(ErrTransient, p.id, method, "decode response", err)
	}
	if rpcResp.Error != nil {
		marker := ErrTransient
		switch rpcResp.Error.Code {
		case rpcCodeParseError, rpcCodeInvalidRequest, rpcCodeMethodNotFound, rpcCodeInvalidParams:
			marker = ErrPermanent
		}
		return Wrap(marker, p.id, method, fmt.Sprintf("rpc error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message), nil)
	}
	if result != nil {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return Wrap(ErrTransient, p.id, method, "decode result", err)
		}
	}
	return nil
}
