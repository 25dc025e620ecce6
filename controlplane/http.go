package controlplane

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/aponysus/nodecall/policy"
)

// HTTPSource reads policies as JSON from GET {base}/{id}.
type HTTPSource struct {
	base   string
	client *http.Client
}

func NewHTTPSource(base string, client *http.Client) *HTTPSource {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPSource{base: strings.TrimRight(base, "/"), client: client}
}

func (s *HTTPSource) GetPolicy(ctx context.Context, id string) (policy.Policy, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.base+"/"+url.PathEscape(id), nil)
	if err != nil {
		return policy.Policy{}, fmt.Errorf("%w: %v", ErrPolicyFetchFailed, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return policy.Policy{}, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		_, _ = io.Copy(io.Discard, resp.Body)
		return policy.Policy{}, ErrPolicyNotFound
	case resp.StatusCode >= http.StatusInternalServerError:
		return policy.Policy{}, fmt.Errorf("%w: http %d", ErrProviderUnavailable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return policy.Policy{}, fmt.Errorf("%w: http %d", ErrPolicyFetchFailed, resp.StatusCode)
	}

	var pol policy.Policy
	if err := json.NewDecoder(resp.Body).Decode(&pol); err != nil {
		return policy.Policy{}, fmt.Errorf("%w: decode: %v", ErrPolicyFetchFailed, err)
	}
	return pol, nil
}
