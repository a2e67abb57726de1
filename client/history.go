package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/karthikraju391/matchchat/chat"
	"github.com/karthikraju391/matchchat/config"
	"github.com/karthikraju391/matchchat/models"
)

// HeaderUserID must match the header the history endpoint reads.
const HeaderUserID = "X-User-Id"

// HistoryClient loads conversation history from the chat server's REST API.
type HistoryClient struct {
	baseURL string
	timeout time.Duration
	http    *fasthttp.Client
}

// NewHistoryClient returns a loader for cfg.ServerURL. A nil hc uses a
// default fasthttp client.
func NewHistoryClient(cfg config.ClientConfig, hc *fasthttp.Client) *HistoryClient {
	if hc == nil {
		hc = &fasthttp.Client{
			Name:                "matchchat",
			MaxIdleConnDuration: time.Minute,
		}
	}
	return &HistoryClient{
		baseURL: strings.TrimRight(cfg.ServerURL, "/"),
		timeout: cfg.RequestTimeout,
		http:    hc,
	}
}

type historyResult struct {
	records []chat.HistoryRecord
	err     error
}

// History implements chat.HistoryLoader.
func (h *HistoryClient) History(ctx context.Context, conv chat.ConversationID, asUser string) ([]chat.HistoryRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(h.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	// fasthttp has no context support; the request owns its buffers until it
	// returns, so it runs on its own goroutine and cancellation only stops the
	// wait.
	done := make(chan historyResult, 1)
	go func() {
		records, err := h.do(conv.Other(asUser), asUser, deadline)
		done <- historyResult{records: records, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-done:
		return res.records, res.err
	}
}

func (h *HistoryClient) do(targetUserID, asUser string, deadline time.Time) ([]chat.HistoryRecord, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(h.baseURL + "/api/chat/" + url.PathEscape(targetUserID))
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set(HeaderUserID, asUser)
	req.Header.Set(fasthttp.HeaderAccept, "application/json")

	if err := h.http.DoDeadline(req, resp, deadline); err != nil {
		return nil, fmt.Errorf("history request: %w", err)
	}
	if code := resp.StatusCode(); code < 200 || code >= 300 {
		return nil, fmt.Errorf("history request: status %d", code)
	}

	var body models.HistoryResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}

	out := make([]chat.HistoryRecord, 0, len(body.Messages))
	for _, m := range body.Messages {
		if m == nil {
			continue
		}
		out = append(out, chat.HistoryRecord{
			SenderID:   m.SenderID,
			SenderName: m.SenderName,
			Body:       m.Body,
			CreatedAt:  m.CreatedAt,
		})
	}
	return out, nil
}
