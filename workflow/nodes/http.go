package nodes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"github.com/BaSui01/flowgate/types"
	"github.com/BaSui01/flowgate/workflow"
)

// Input/output keys of the HTTP tool node.
const (
	InputHTTPMethod  = "method"
	InputHTTPURL     = "url"
	InputHTTPHeaders = "headers"
	InputHTTPParams  = "params"
	InputHTTPBody    = "body"

	OutputHTTPRaw        = "httpRawResponse"
	OutputHTTPStatusCode = "statusCode"
)

const maxHTTPResponseBytes = 8 << 20

// hostLimiters hands out one token bucket per target host so a busy flow
// cannot hammer a single upstream.
type hostLimiters struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
}

func newHostLimiters(limit rate.Limit, burst int) *hostLimiters {
	if burst <= 0 {
		burst = 1
	}
	return &hostLimiters{
		limit:    limit,
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

// wait blocks until the host's bucket has a token or the context ends.
func (h *hostLimiters) wait(ctx context.Context, host string) error {
	if h.limit <= 0 {
		return nil
	}
	h.mu.Lock()
	lim, ok := h.limiters[host]
	if !ok {
		lim = rate.NewLimiter(h.limit, h.burst)
		h.limiters[host] = lim
	}
	h.mu.Unlock()
	return lim.Wait(ctx)
}

// runHTTPTool performs one HTTP request described by the node params.
// The raw response body and status code are exposed as outputs; JSON
// bodies are additionally flattened into top-level output keys.
func (r *Registry) runHTTPTool(ctx context.Context, p *workflow.NodePayload) (*workflow.NodeResult, error) {
	rawURL := strings.TrimSpace(stringParam(p.Params, InputHTTPURL))
	if rawURL == "" {
		return nil, types.NewError(types.ErrNodeExecution, "http node requires a url").WithNode(p.Node.ID)
	}
	target, err := url.Parse(rawURL)
	if err != nil || target.Scheme == "" || target.Host == "" {
		return nil, types.NewError(types.ErrNodeExecution,
			fmt.Sprintf("invalid url %q", rawURL)).WithNode(p.Node.ID)
	}

	if qs := mapParam(p.Params, InputHTTPParams); len(qs) > 0 {
		query := target.Query()
		for k, v := range qs {
			query.Set(k, types.ValueToString(v))
		}
		target.RawQuery = query.Encode()
	}

	method := strings.ToUpper(stringParam(p.Params, InputHTTPMethod))
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if raw, ok := p.Params[InputHTTPBody]; ok && raw != nil && method != http.MethodGet {
		switch v := raw.(type) {
		case string:
			if v != "" {
				body = strings.NewReader(v)
			}
		default:
			encoded, err := json.Marshal(v)
			if err != nil {
				return nil, types.NewError(types.ErrNodeExecution, "encode request body").WithNode(p.Node.ID).WithCause(err)
			}
			body = bytes.NewReader(encoded)
		}
	}

	if err := r.limiters.wait(ctx, target.Host); err != nil {
		return nil, types.AsError(err, types.ErrRateLimited).WithNode(p.Node.ID)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, types.NewError(types.ErrNodeExecution, "build request").WithNode(p.Node.ID).WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range mapParam(p.Params, InputHTTPHeaders) {
		req.Header.Set(k, types.ValueToString(v))
	}

	resp, err := r.svc.HTTPClient.Do(req)
	if err != nil {
		return nil, types.NewError(types.ErrUpstreamError,
			fmt.Sprintf("%s %s", method, target.Host)).WithNode(p.Node.ID).WithCause(err).WithRetryable(true)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxHTTPResponseBytes))
	if err != nil {
		return nil, types.NewError(types.ErrUpstreamError, "read response body").WithNode(p.Node.ID).WithCause(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		e := types.NewError(types.ErrUpstreamError,
			fmt.Sprintf("%s %s returned %d", method, target.Host, resp.StatusCode)).WithNode(p.Node.ID)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			e = e.WithRetryable(true)
		}
		return nil, e
	}

	outputs := map[string]any{
		OutputHTTPRaw:        string(payload),
		OutputHTTPStatusCode: resp.StatusCode,
	}
	var decoded map[string]any
	if json.Unmarshal(payload, &decoded) == nil {
		for k, v := range decoded {
			if _, taken := outputs[k]; !taken {
				outputs[k] = v
			}
		}
	}
	return &workflow.NodeResult{Outputs: outputs}, nil
}
