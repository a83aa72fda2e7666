package salesforce

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Client orchestrates authentication and record operations against a
// Salesforce org. It is single-writer: the session is mutable state and
// concurrent use of one Client without external synchronization is
// unsupported.
type Client struct {
	httpClient HttpClient
	fetcher    TokenFetcher
	apiVersion int
	logger     *zap.Logger
	session    *Session
}

// Option configures a Client.
type Option func(*Client)

// WithLogger attaches a zap logger; the default is a no-op logger.
func WithLogger(log *zap.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.logger = log.Named("SalesforceClient")
		}
	}
}

// WithApiVersion overrides the REST API version used in request paths.
func WithApiVersion(v int) Option {
	return func(c *Client) {
		if v > 0 {
			c.apiVersion = v
		}
	}
}

func NewClient(client HttpClient, fetcher TokenFetcher, opts ...Option) (*Client, error) {
	if client == nil {
		return nil, fmt.Errorf("httpClient needs to be provided")
	}
	if fetcher == nil {
		return nil, fmt.Errorf("tokenFetcher needs to be provided")
	}
	c := &Client{
		httpClient: client,
		fetcher:    fetcher,
		apiVersion: defaultApiVersion,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Authenticate performs the token exchange and opens a session. On failure
// the session is invalidated — never implicitly refreshed — and the typed
// error is returned.
func (c *Client) Authenticate(ctx context.Context) error {
	log := c.logger.With(zap.String("auth_id", uuid.New().String()))
	session, err := c.fetcher.Fetch(ctx)
	if err != nil {
		c.session = nil
		log.Error("authentication failed", zap.Error(err))
		return err
	}
	c.session = session
	log.Info("authenticated", zap.String("instance_url", session.InstanceURL))
	return nil
}

// Authenticated reports whether the client holds an open session.
func (c *Client) Authenticated() bool {
	return c.session.Authenticated()
}

func (c *Client) basePath() string {
	return fmt.Sprintf("/services/data/v%d.0", c.apiVersion)
}

// do sends an authenticated request and returns the response body. Non-2xx
// responses come back as an *APIError; transport failures are wrapped as
// plain errors.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body io.Reader) ([]byte, error) {
	if !c.Authenticated() {
		return nil, ErrNotAuthenticated
	}

	reqUrl := c.session.InstanceURL + path
	if len(query) > 0 {
		reqUrl += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, reqUrl, body)
	if err != nil {
		return nil, fmt.Errorf("unable to create salesforce request: %w", err)
	}
	req.Header = http.Header{
		"Content-Type":  {"application/json"},
		"Authorization": {"Bearer " + c.session.AccessToken},
	}

	c.logger.Debug("sending request", zap.String("method", method), zap.String("path", path))
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("unable to send request to salesforce: %w", err)
	}
	resBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := mapRestError(resp.StatusCode, resBody)
		c.logger.Error("salesforce reported an error",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status_code", resp.StatusCode),
			zap.String("remote_code", apiErr.RemoteCode))
		return nil, apiErr
	}
	return resBody, nil
}

// Query sends the SOQL string verbatim (URL-escaped only) to the query
// endpoint and decodes the records into E. The returned slice is never nil
// on success. Date and datetime literals are embedded unquoted in the SOQL
// text by the caller; the client does not escape them.
func Query[E any](ctx context.Context, c *Client, soql string) ([]E, error) {
	page, err := queryPage[E](ctx, c, c.basePath()+"/query", url.Values{"q": {soql}})
	if err != nil {
		return nil, err
	}
	if page.Records == nil {
		return []E{}, nil
	}
	return page.Records, nil
}

// QueryBatch pages through the full result set following the remote cursor,
// invoking onBatch once per page in server-delivered order, and returns the
// accumulated sequence. Paging is sequential: each fetch depends on the
// previous page's cursor.
func QueryBatch[E any](ctx context.Context, c *Client, soql string, onBatch func(records []E) error) ([]E, error) {
	all := []E{}
	page, err := queryPage[E](ctx, c, c.basePath()+"/query", url.Values{"q": {soql}})
	for {
		if err != nil {
			return nil, err
		}
		all = append(all, page.Records...)
		if onBatch != nil {
			if err := onBatch(page.Records); err != nil {
				return nil, err
			}
		}
		if page.Done || page.NextRecordsURL == "" {
			return all, nil
		}
		page, err = queryPage[E](ctx, c, page.NextRecordsURL, nil)
	}
}

func queryPage[E any](ctx context.Context, c *Client, path string, query url.Values) (*QueryResponse[E], error) {
	resBody, err := c.do(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return nil, err
	}
	var page *QueryResponse[E]
	if err = json.Unmarshal(resBody, &page); err != nil {
		return nil, err
	}
	return page, nil
}

// FindByID fetches a single record by id. Zero matches is an expected
// outcome and returns (nil, nil) rather than an error.
func FindByID[E any](ctx context.Context, c *Client, objectType, id string) (*E, error) {
	resBody, err := c.do(ctx, http.MethodGet, c.basePath()+"/sobjects/"+objectType+"/"+id, nil, nil)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Kind == KindNotFound {
			return nil, nil
		}
		return nil, err
	}
	var record E
	if err = json.Unmarshal(resBody, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// Create inserts a record of the given object type and returns the new id.
// The payload is the record's writable fields: its FieldMap if it implements
// FieldMapper, its exported struct fields otherwise.
func (c *Client) Create(ctx context.Context, objectType string, record any) (string, error) {
	payload, err := marshalRecord(record)
	if err != nil {
		return "", fmt.Errorf("unable to create salesforce payload: %w", err)
	}
	resBody, err := c.do(ctx, http.MethodPost, c.basePath()+"/sobjects/"+objectType, nil, strings.NewReader(string(payload)))
	if err != nil {
		return "", err
	}
	var res PostResponse
	if err = json.Unmarshal(resBody, &res); err != nil {
		return "", err
	}
	if !res.Success {
		return "", mapCreateErrors(res.Errors)
	}
	return res.Id, nil
}

func mapCreateErrors(remote []RestError) *APIError {
	if len(remote) == 0 {
		return &APIError{Kind: KindGeneric, Message: "create reported success=false with no errors"}
	}
	kind, ok := restErrorKinds[remote[0].ErrorCode]
	if !ok {
		kind = KindGeneric
	}
	return &APIError{Kind: kind, RemoteCode: remote[0].ErrorCode, Message: remote[0].Message}
}

// Update applies a partial update to the named record. Success is a 204 with
// no body.
func (c *Client) Update(ctx context.Context, objectType, id string, record any) error {
	payload, err := marshalRecord(record)
	if err != nil {
		return fmt.Errorf("unable to create salesforce payload: %w", err)
	}
	_, err = c.do(ctx, http.MethodPatch, c.basePath()+"/sobjects/"+objectType+"/"+id, nil, strings.NewReader(string(payload)))
	return err
}

// Delete removes the named record. Already-deleted records and malformed ids
// both fail with KindEntityIsDeleted; the remote does not distinguish the
// two causes on delete.
func (c *Client) Delete(ctx context.Context, objectType, id string) error {
	_, err := c.do(ctx, http.MethodDelete, c.basePath()+"/sobjects/"+objectType+"/"+id, nil, nil)
	return err
}

// ReadMetadata returns the raw describe document for the object type.
func (c *Client) ReadMetadata(ctx context.Context, objectType string) (string, error) {
	resBody, err := c.do(ctx, http.MethodGet, c.basePath()+"/sobjects/"+objectType+"/describe", nil, nil)
	if err != nil {
		return "", err
	}
	return string(resBody), nil
}
