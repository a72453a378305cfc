package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

var ErrMissingCredentials = errors.New("missing shopify credentials")

type GraphQLError struct {
	Message    string `json:"message"`
	Path       []any  `json:"path,omitempty"`
	Extensions struct {
		Code string `json:"code,omitempty"`
	} `json:"extensions,omitempty"`
}

type GraphQLResponse[T any] struct {
	Data   T              `json:"data"`
	Errors []GraphQLError `json:"errors"`
}

// Err folds the GraphQL errors array into a single *QueryError, or nil.
func (r *GraphQLResponse[T]) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		if e.Extensions.Code != "" {
			msgs = append(msgs, e.Message+" ("+e.Extensions.Code+")")
		} else {
			msgs = append(msgs, e.Message)
		}
	}
	return &QueryError{Status: http.StatusOK, Messages: msgs}
}

// QueryError is a failed round trip to the Admin API: transport failure,
// non-2xx status, undecodable body or a GraphQL errors array.
type QueryError struct {
	Status   int
	Messages []string
	Err      error
}

func (e *QueryError) Error() string {
	var b strings.Builder
	b.WriteString("shopify query failed")
	if e.Status != 0 {
		fmt.Fprintf(&b, ": http %d", e.Status)
	}
	if len(e.Messages) > 0 {
		b.WriteString(": ")
		b.WriteString(strings.Join(e.Messages, "; "))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *QueryError) Unwrap() error { return e.Err }

type ClientOptions struct {
	RequestsPerSecond float64
	Burst             int
	Timeout           time.Duration
	HTTPClient        *http.Client
}

// Client posts GraphQL documents to the Admin API of a single store.
type Client struct {
	creds      CredentialSource
	httpClient *http.Client
	limiter    *rate.Limiter
}

func NewClient(creds CredentialSource, opts ClientOptions) *Client {
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 2
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}
	return &Client{
		creds:      creds,
		httpClient: hc,
		limiter:    rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), opts.Burst),
	}
}

// Forward sends an already encoded {query, variables} body and returns the
// upstream body and status untouched. Credential lookups that fail for any
// reason other than ErrMissingCredentials are returned unchanged.
func (c *Client) Forward(ctx context.Context, body []byte) ([]byte, int, error) {
	creds, err := c.creds.Credentials(ctx)
	if err != nil {
		return nil, 0, err
	}
	if !creds.Valid() {
		return nil, 0, ErrMissingCredentials
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, creds.Endpoint(), bytes.NewReader(body))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("content-type", "application/json")
	req.Header.Set("X-Shopify-Access-Token", creds.AccessToken)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, res.StatusCode, fmt.Errorf("read shopify response: %w", err)
	}
	return raw, res.StatusCode, nil
}

// Post encodes query and variables and returns the raw response body, failing
// with *QueryError unless the response is a 2xx without GraphQL errors.
func (c *Client) Post(ctx context.Context, query string, variables any) ([]byte, error) {
	body, err := json.Marshal(map[string]any{
		"query":     query,
		"variables": variables,
	})
	if err != nil {
		return nil, fmt.Errorf("encode graphql request: %w", err)
	}

	raw, status, err := c.Forward(ctx, body)
	if err != nil {
		if errors.Is(err, ErrMissingCredentials) {
			return nil, err
		}
		return nil, &QueryError{Status: status, Err: err}
	}
	if status < 200 || status >= 300 {
		return nil, &QueryError{Status: status, Messages: []string{snippet(raw, 200)}}
	}

	probe, err := DecodeGraphQL[json.RawMessage](raw)
	if err != nil {
		return nil, &QueryError{Status: status, Err: err}
	}
	if err := probe.Err(); err != nil {
		return nil, err
	}
	return raw, nil
}

func DecodeGraphQL[T any](raw []byte) (*GraphQLResponse[T], error) {
	var out GraphQLResponse[T]
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode graphql response: %w", err)
	}
	return &out, nil
}

func snippet(b []byte, n int) string {
	s := strings.TrimSpace(string(b))
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
