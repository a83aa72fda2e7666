package salesforce

// QueryResponse is the payload returned by the Salesforce query endpoint.
// NextRecordsURL is only populated when the result set spans multiple pages.
type QueryResponse[E any] struct {
	TotalSize      int    `json:"totalSize"`
	Done           bool   `json:"done"`
	NextRecordsURL string `json:"nextRecordsUrl"`
	Records        []E    `json:"records"`
}

// PostResponse is the response from Salesforce for a post/create request
type PostResponse struct {
	Id      string      `json:"id"`
	Success bool        `json:"success"`
	Errors  []RestError `json:"errors"`
}

// RestError is a single element of the error array Salesforce returns on any
// non-2xx REST response. The first element's errorCode and message drive the
// error mapping.
type RestError struct {
	ErrorCode string   `json:"errorCode"`
	Message   string   `json:"message"`
	Fields    []string `json:"fields"`
}

// Attributes to be added, optionally, to concrete types of E for QueryResponse[E]
type Attributes struct {
	Type string `json:"type"`
	Url  string `json:"url"`
}

// Session is the authenticated state returned by a token exchange. The
// instance URL is the per-tenant base for all subsequent API calls.
type Session struct {
	AccessToken string
	InstanceURL string
}

// Authenticated reports whether the session holds a usable access token.
func (s *Session) Authenticated() bool {
	return s != nil && s.AccessToken != ""
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	InstanceURL string `json:"instance_url"`
}

type tokenErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}
