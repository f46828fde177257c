package crm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPClientStartCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/demo/start" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var params StartParams
		if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
			t.Errorf("decode params: %v", err)
		}
		if params.Phone != "+919812345678" {
			t.Errorf("phone = %q", params.Phone)
		}
		json.NewEncoder(w).Encode(StartResult{
			Call:     CallRecord{CallID: "c-1", Status: "active"},
			Greeting: "Namaste!",
		})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, 5*time.Second)
	res, err := c.StartCall(context.Background(), StartParams{Phone: "+919812345678", CustomerName: "Asha"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if res.Call.CallID != "c-1" || res.Greeting != "Namaste!" {
		t.Fatalf("result = %+v", res)
	}
}

func TestHTTPClientDecodesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(APIError{
			Code:     "human_handling",
			Message:  "call is being handled by a human agent",
			Takeover: true,
		})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, 5*time.Second)
	_, err := c.SendMessage(context.Background(), "c-1", "hello")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want APIError", err)
	}
	if apiErr.StatusCode != http.StatusConflict || !apiErr.Takeover {
		t.Fatalf("apiErr = %+v", apiErr)
	}
}

func TestHTTPClientNonJSONErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, 5*time.Second)
	_, err := c.EndCall(context.Background(), "c-1", "completed")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want APIError", err)
	}
	if apiErr.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d", apiErr.StatusCode)
	}
}

func TestHTTPClientUnreachable(t *testing.T) {
	c := NewHTTPClient("http://127.0.0.1:1", 500*time.Millisecond)
	_, err := c.StartCall(context.Background(), StartParams{})
	if !errors.Is(err, ErrUnreachable) {
		t.Fatalf("err = %v, want ErrUnreachable", err)
	}
}

func TestHTTPClientHumanMessageAndTakeoverPaths(t *testing.T) {
	var gotPaths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPaths = append(gotPaths, r.URL.Path)
		switch r.URL.Path {
		case "/demo/human-message":
			json.NewEncoder(w).Encode(Reply{Call: CallRecord{CallID: "c-1", Status: "takeover"}})
		case "/demo/takeover":
			json.NewEncoder(w).Encode(map[string]CallRecord{"call": {CallID: "c-1", Status: "takeover"}})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, 5*time.Second)
	ctx := context.Background()
	if _, err := c.RequestTakeover(ctx, "c-1", "frustrated"); err != nil {
		t.Fatalf("takeover: %v", err)
	}
	reply, err := c.SendHumanMessage(ctx, "c-1", "taking over")
	if err != nil {
		t.Fatalf("human message: %v", err)
	}
	if reply.Call.Status != "takeover" {
		t.Fatalf("reply = %+v", reply)
	}
	if len(gotPaths) != 2 || gotPaths[0] != "/demo/takeover" {
		t.Fatalf("paths = %v", gotPaths)
	}
}
