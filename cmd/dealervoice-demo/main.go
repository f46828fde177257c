package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/autocrm/dealervoice/internal/protocol"
	"github.com/autocrm/dealervoice/internal/reliability"
)

type options struct {
	baseURL        string
	phone          string
	customerName   string
	callType       string
	language       string
	interTurnDelay time.Duration
	turnTimeout    time.Duration
	texts          []string
	verbose        bool
}

type startCallRequest struct {
	Phone        string `json:"phone"`
	CustomerName string `json:"customer_name,omitempty"`
	CallType     string `json:"call_type,omitempty"`
	Language     string `json:"language,omitempty"`
}

type startCallResponse struct {
	CallID string `json:"call_id"`
}

type wsEnvelope struct {
	Type   string `json:"type"`
	Role   string `json:"role,omitempty"`
	Text   string `json:"text,omitempty"`
	Label  string `json:"label,omitempty"`
	Code   string `json:"code,omitempty"`
	Detail string `json:"detail,omitempty"`
	Reason string `json:"reason,omitempty"`
}

var defaultUtterances = []string{
	"hello, I saw your ad for the new nexon",
	"what is the on road price in pune",
	"can I book a test drive for saturday",
	"thanks, that is all for now",
}

func main() {
	cfg, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "dealervoice-demo: %v\n", err)
		os.Exit(2)
	}
	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "dealervoice-demo: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() (options, error) {
	var cfg options
	var textsRaw string
	var interTurnMS int
	var turnTimeoutMS int

	flag.StringVar(&cfg.baseURL, "base-url", "http://127.0.0.1:8080", "dealervoice base URL")
	flag.StringVar(&cfg.phone, "phone", "+919876543210", "customer phone number")
	flag.StringVar(&cfg.customerName, "customer-name", "Rohan Mehta", "customer name")
	flag.StringVar(&cfg.callType, "call-type", "inquiry", "call type")
	flag.StringVar(&cfg.language, "language", "", "call language (server default when empty)")
	flag.IntVar(&interTurnMS, "inter-turn-ms", 400, "delay between turns in milliseconds")
	flag.IntVar(&turnTimeoutMS, "turn-timeout-ms", 15000, "timeout waiting for a reply per turn in milliseconds")
	flag.StringVar(&textsRaw, "texts", "", "utterances separated by '|' (optional)")
	flag.BoolVar(&cfg.verbose, "verbose", true, "print call progress")
	flag.Parse()

	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")
	if cfg.baseURL == "" {
		return options{}, fmt.Errorf("base-url is required")
	}
	if strings.TrimSpace(cfg.phone) == "" {
		return options{}, fmt.Errorf("phone is required")
	}
	if interTurnMS < 0 {
		interTurnMS = 0
	}
	if turnTimeoutMS < 1000 {
		turnTimeoutMS = 1000
	}
	cfg.interTurnDelay = time.Duration(interTurnMS) * time.Millisecond
	cfg.turnTimeout = time.Duration(turnTimeoutMS) * time.Millisecond

	if strings.TrimSpace(textsRaw) == "" {
		cfg.texts = append([]string(nil), defaultUtterances...)
	} else {
		for _, part := range strings.Split(textsRaw, "|") {
			t := strings.TrimSpace(part)
			if t != "" {
				cfg.texts = append(cfg.texts, t)
			}
		}
		if len(cfg.texts) == 0 {
			return options{}, fmt.Errorf("texts produced no non-empty utterances")
		}
	}
	return cfg, nil
}

func run(cfg options) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	httpClient := &http.Client{Timeout: 30 * time.Second}
	if err := waitForService(ctx, httpClient, cfg.baseURL); err != nil {
		return fmt.Errorf("wait for service: %w", err)
	}

	callID, err := startCall(ctx, httpClient, cfg)
	if err != nil {
		return fmt.Errorf("start call: %w", err)
	}
	if cfg.verbose {
		fmt.Printf("dealervoice-demo: call=%s customer=%s turns=%d\n", callID, cfg.customerName, len(cfg.texts))
	}

	wsURL, err := wsURLForCall(cfg.baseURL, callID)
	if err != nil {
		return fmt.Errorf("build ws URL: %w", err)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("open websocket: %w", err)
	}
	defer conn.Close()

	replyCh := make(chan string, 32)
	endedCh := make(chan struct{}, 1)
	readErrCh := make(chan error, 1)
	go readLoop(conn, replyCh, endedCh, readErrCh, cfg.verbose)

	// Let the attach snapshot (call_state plus greeting replay) land before
	// the first turn.
	time.Sleep(500 * time.Millisecond)

	for i, text := range cfg.texts {
		// Replayed history (the greeting on attach) must not count as this
		// turn's reply.
		drain(replyCh)
		msg := protocol.ClientTypedText{
			Type:   protocol.TypeClientTypedText,
			CallID: callID,
			Text:   text,
		}
		if err := conn.WriteJSON(msg); err != nil {
			return fmt.Errorf("turn %d send: %w", i+1, err)
		}
		if err := awaitReply(replyCh, readErrCh, cfg.turnTimeout); err != nil {
			return fmt.Errorf("turn %d await reply: %w", i+1, err)
		}
		if cfg.interTurnDelay > 0 && i < len(cfg.texts)-1 {
			time.Sleep(cfg.interTurnDelay)
		}
	}

	end := protocol.ClientEndCall{
		Type:    protocol.TypeClientEndCall,
		CallID:  callID,
		Outcome: "completed",
	}
	if err := conn.WriteJSON(end); err != nil {
		return fmt.Errorf("send end: %w", err)
	}

	timer := time.NewTimer(cfg.turnTimeout)
	defer timer.Stop()
	select {
	case <-endedCh:
	case err := <-readErrCh:
		// The server tears the socket down after call_ended; a close error
		// here means the call is already over.
		if cfg.verbose {
			fmt.Printf("dealervoice-demo: socket closed: %v\n", err)
		}
	case <-timer.C:
		return fmt.Errorf("timeout waiting for call_ended")
	}

	if cfg.verbose {
		fmt.Println("dealervoice-demo: call completed")
	}
	return nil
}

// waitForService polls /readyz so the demo can be started before (or right
// after) the server.
func waitForService(ctx context.Context, client *http.Client, baseURL string) error {
	var lastErr error
	for attempt := 0; attempt < 8; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/readyz", nil)
		if err != nil {
			return err
		}
		res, err := client.Do(req)
		if err == nil {
			_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 1<<20))
			res.Body.Close()
			if res.StatusCode == http.StatusOK {
				return nil
			}
			lastErr = fmt.Errorf("HTTP %d from /readyz", res.StatusCode)
		} else {
			lastErr = err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reliability.ExponentialBackoff(attempt, 200*time.Millisecond, 5*time.Second)):
		}
	}
	return lastErr
}

func startCall(ctx context.Context, client *http.Client, cfg options) (string, error) {
	payload, err := json.Marshal(startCallRequest{
		Phone:        cfg.phone,
		CustomerName: cfg.customerName,
		CallType:     cfg.callType,
		Language:     cfg.language,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.baseURL+"/v1/calls", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()
	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if res.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("HTTP %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}

	var out startCallResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.CallID) == "" {
		return "", fmt.Errorf("missing call_id in response")
	}
	return out.CallID, nil
}

func wsURLForCall(baseURL, callID string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", err
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported base-url scheme %q", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return "", fmt.Errorf("base-url host is required")
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/v1/calls/ws"
	q := u.Query()
	q.Set("call_id", callID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func readLoop(conn *websocket.Conn, replyCh chan<- string, endedCh chan<- struct{}, readErrCh chan<- error, verbose bool) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case readErrCh <- err:
			default:
			}
			return
		}

		var env wsEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		switch env.Type {
		case string(protocol.TypeTranscriptEntry):
			if verbose {
				fmt.Printf("[%s] %-11s %s\n", env.Label, env.Role+":", env.Text)
			}
			if env.Role != "customer" {
				select {
				case replyCh <- env.Text:
				default:
				}
			}
		case string(protocol.TypeTakeoverStarted):
			if verbose {
				fmt.Printf("dealervoice-demo: human takeover (%s)\n", env.Reason)
			}
		case string(protocol.TypeCallEnded):
			select {
			case endedCh <- struct{}{}:
			default:
			}
		case string(protocol.TypeErrorEvent):
			if verbose {
				fmt.Fprintf(os.Stderr, "dealervoice-demo: error_event code=%s detail=%s\n", env.Code, env.Detail)
			}
		}
	}
}

func drain(ch <-chan string) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

func awaitReply(replyCh <-chan string, readErrCh <-chan error, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-replyCh:
		return nil
	case err := <-readErrCh:
		return err
	case <-timer.C:
		return fmt.Errorf("timeout after %s", timeout)
	}
}
