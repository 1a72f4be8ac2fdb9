package hubwire

import (
	"context"
	"net/url"
	"strings"

	"resty.dev/v3"
)

// discoveryResponse is the body of a successful discovery request.
type discoveryResponse struct {
	ConnectionURL string            `json:"connection_url"`
	Transport     string            `json:"transport,omitempty"`
	QueryParams   map[string]string `json:"query_params,omitempty"`
}

// Endpoint is a resolved realtime endpoint: where the transports connect,
// with which query parameters, and optionally which transport the hub
// prefers.
type Endpoint struct {
	Hostname  string
	Port      string
	Path      string
	Secure    bool
	Query     url.Values
	Transport string
}

// resolveEndpoint asks the gateway where the realtime hub lives. Any
// discovery failure, a refused request, a non-2xx status or an unusable
// body alike, falls back to the endpoint derived from the static options;
// discovery trouble must never keep the client offline.
func resolveEndpoint(ctx context.Context, opts *ClientOptions) (*Endpoint, error) {
	if opts.GatewayURL == "" {
		return fallbackEndpoint(opts)
	}

	rest := resty.New().SetTimeout(opts.RequestTimeout)
	defer rest.Close()

	req := rest.R().SetContext(ctx).SetResult(&discoveryResponse{})
	token, err := bearerToken(ctx, opts)
	if err != nil {
		discovery_log.Debug("token provider failed (%v), using fallback endpoint", err)
		return fallbackEndpoint(opts)
	}
	if token != "" {
		req.SetAuthToken(token)
	}
	for name, values := range opts.Headers {
		for _, value := range values {
			req.SetHeader(name, value)
		}
	}

	uri := strings.TrimRight(opts.GatewayURL, "/") + opts.DiscoveryPath
	res, err := req.Get(uri)
	if err != nil {
		discovery_log.Debug("discovery request failed (%v), using fallback endpoint", err)
		return fallbackEndpoint(opts)
	}
	if !res.IsSuccess() {
		discovery_log.Debug("discovery returned status %d, using fallback endpoint", res.StatusCode())
		return fallbackEndpoint(opts)
	}
	body, ok := res.Result().(*discoveryResponse)
	if !ok || body.ConnectionURL == "" {
		discovery_log.Debug("discovery response missing connection_url, using fallback endpoint")
		return fallbackEndpoint(opts)
	}
	e, err := endpointFromURL(body, opts)
	if err != nil {
		discovery_log.Debug("discovery returned unusable url %q (%v), using fallback endpoint", body.ConnectionURL, err)
		return fallbackEndpoint(opts)
	}
	discovery_log.Debug("discovered endpoint %s:%s%s", e.Hostname, e.Port, e.Path)
	return e, nil
}

func bearerToken(ctx context.Context, opts *ClientOptions) (string, error) {
	if opts.TokenProvider != nil {
		return opts.TokenProvider(ctx)
	}
	return opts.Token, nil
}

// endpointFromURL turns a discovery response into an Endpoint. Query
// parameters merge in precedence order: the url's own parameters, then
// query_params, then the caller's static Query.
func endpointFromURL(body *discoveryResponse, opts *ClientOptions) (*Endpoint, error) {
	u, err := url.Parse(body.ConnectionURL)
	if err != nil {
		return nil, err
	}
	if u.Hostname() == "" {
		return nil, ErrNoEndpoint
	}
	secure := u.Scheme == "wss" || u.Scheme == "https"
	port := u.Port()
	if port == "" {
		if secure {
			port = "443"
		} else {
			port = "80"
		}
	}
	path := u.Path
	if path == "" {
		path = opts.Path
	}
	query := u.Query()
	for k, v := range body.QueryParams {
		query.Set(k, v)
	}
	for k, vs := range opts.Query {
		for _, v := range vs {
			query.Set(k, v)
		}
	}
	return &Endpoint{
		Hostname:  u.Hostname(),
		Port:      port,
		Path:      path,
		Secure:    secure,
		Query:     query,
		Transport: body.Transport,
	}, nil
}

// fallbackEndpoint builds the endpoint from the static options alone,
// borrowing host and scheme from the gateway url when Hostname is unset.
// The well-known realtime port stands in when no port is known.
func fallbackEndpoint(opts *ClientOptions) (*Endpoint, error) {
	hostname := opts.Hostname
	port := opts.Port
	secure := opts.Secure
	if hostname == "" && opts.GatewayURL != "" {
		if u, err := url.Parse(opts.GatewayURL); err == nil {
			hostname = u.Hostname()
			secure = u.Scheme == "https" || u.Scheme == "wss"
			if port == "" {
				port = u.Port()
			}
		}
	}
	if hostname == "" {
		return nil, ErrNoEndpoint
	}
	if port == "" {
		port = defaultFallbackPort
	}
	query := url.Values{}
	for k, vs := range opts.Query {
		for _, v := range vs {
			query.Set(k, v)
		}
	}
	return &Endpoint{
		Hostname: hostname,
		Port:     port,
		Path:     opts.Path,
		Secure:   secure,
		Query:    query,
	}, nil
}
