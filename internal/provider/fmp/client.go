package fmp

import (
	"net/http"
	"net/url"
)

const baseURL = "https://financialmodelingprep.com/api/v3"

// HTTPClient describes an HTTP client.
//
//go:generate mockgen -package=fmp_test -destination=mock_http_client_test.go -source=client.go HTTPClient
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// FMPAPIClient is a client for the Financial Modeling Prep API.
type FMPAPIClient struct {
	// baseURL is the base URL for the API.
	baseURL string
	// httpClient is the HTTP httpClient.
	httpClient HTTPClient
	// header contains additional headers to be sent with each request.
	header http.Header
	// query contains additional query parameters to be sent with each request.
	query url.Values
}

// FMPAPIClientOption is a configuration option for the FMP API client.
type FMPAPIClientOption func(*FMPAPIClient)

// WithBaseURL sets the base URL for the API.
func WithBaseURL(baseURL string) FMPAPIClientOption {
	return func(c *FMPAPIClient) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient sets the HTTP client for the API.
func WithHTTPClient(httpClient HTTPClient) FMPAPIClientOption {
	return func(c *FMPAPIClient) {
		c.httpClient = httpClient
	}
}

// WithHeader sets additional headers to be sent with each request.
func WithHeader(header http.Header) FMPAPIClientOption {
	return func(c *FMPAPIClient) {
		for key, values := range header {
			for _, value := range values {
				c.header.Add(key, value)
			}
		}
	}
}

// NewFMPAPIClient creates a new FMP API client. The key is sent as the
// apikey query parameter on every request.
func NewFMPAPIClient(key string, options ...FMPAPIClientOption) (*FMPAPIClient, error) {
	var fmpAPIClient = &FMPAPIClient{
		baseURL:    baseURL,
		httpClient: http.DefaultClient,
		header:     http.Header{},
		query:      url.Values{},
	}
	if key != "" {
		fmpAPIClient.query.Add("apikey", key)
	}
	for _, option := range options {
		option(fmpAPIClient)
	}
	return fmpAPIClient, nil
}
