package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPClient talks to a deployed Call API over REST.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) StartCall(ctx context.Context, params StartParams) (StartResult, error) {
	var out StartResult
	if err := c.post(ctx, "/demo/start", params, &out); err != nil {
		return StartResult{}, err
	}
	return out, nil
}

func (c *HTTPClient) SendMessage(ctx context.Context, callID, text string) (Reply, error) {
	var out Reply
	req := messageRequest{CallID: callID, Text: text}
	if err := c.post(ctx, "/demo/message", req, &out); err != nil {
		return Reply{}, err
	}
	return out, nil
}

func (c *HTTPClient) SendHumanMessage(ctx context.Context, callID, text string) (Reply, error) {
	var out Reply
	req := messageRequest{CallID: callID, Text: text}
	if err := c.post(ctx, "/demo/human-message", req, &out); err != nil {
		return Reply{}, err
	}
	return out, nil
}

func (c *HTTPClient) RequestTakeover(ctx context.Context, callID, reason string) (CallRecord, error) {
	var out struct {
		Call CallRecord `json:"call"`
	}
	req := takeoverRequest{CallID: callID, Reason: reason}
	if err := c.post(ctx, "/demo/takeover", req, &out); err != nil {
		return CallRecord{}, err
	}
	return out.Call, nil
}

func (c *HTTPClient) EndCall(ctx context.Context, callID, outcome string) (CallRecord, error) {
	var out struct {
		Call CallRecord `json:"call"`
	}
	req := endRequest{CallID: callID, Outcome: outcome}
	if err := c.post(ctx, "/demo/end", req, &out); err != nil {
		return CallRecord{}, err
	}
	return out.Call, nil
}

type messageRequest struct {
	CallID string `json:"call_id"`
	Text   string `json:"text"`
}

type takeoverRequest struct {
	CallID string `json:"call_id"`
	Reason string `json:"reason"`
}

type endRequest struct {
	CallID  string `json:"call_id"`
	Outcome string `json:"outcome"`
}

func (c *HTTPClient) post(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	res, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: res.StatusCode}
		if json.Unmarshal(body, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = fmt.Sprintf("http status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
