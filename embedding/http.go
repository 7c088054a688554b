package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/time/rate"
)

// HTTPProviderOptions represents the options for configuring an HTTPProvider.
type HTTPProviderOptions struct {
	// Client is the HTTP client used for model calls.
	Client *http.Client

	// RateLimit caps outgoing model calls per second. Zero disables limiting.
	RateLimit rate.Limit

	// RateBurst is the burst size of the rate limiter.
	RateBurst int
}

// HTTPProvider calls a model-serving sidecar over JSON/HTTP. The request body
// is {"smiles": "<canonical>"} and the response {"embedding": [..]}.
type HTTPProvider struct {
	endpoint string
	client   *http.Client
	limiter  *rate.Limiter
}

var _ Provider = (*HTTPProvider)(nil)

// NewHTTPProvider creates a Provider that POSTs embedding requests to endpoint.
func NewHTTPProvider(endpoint string, optFns ...func(o *HTTPProviderOptions)) *HTTPProvider {
	opts := HTTPProviderOptions{
		Client: http.DefaultClient,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	p := &HTTPProvider{
		endpoint: endpoint,
		client:   opts.Client,
	}
	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst < 1 {
			burst = 1
		}
		p.limiter = rate.NewLimiter(opts.RateLimit, burst)
	}
	return p
}

type embedRequest struct {
	SMILES string `json:"smiles"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed implements Provider.
func (p *HTTPProvider) Embed(ctx context.Context, canonical string) ([]float32, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	body, err := json.Marshal(embedRequest{SMILES: canonical})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("model endpoint returned %d: %s", resp.StatusCode, data)
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode model response: %w", err)
	}
	return out.Embedding, nil
}
