package signals

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/ispfinder/ispfinder/internal/config"
	"github.com/ispfinder/ispfinder/internal/geo"
	"github.com/ispfinder/ispfinder/internal/models"
)

// PlaceholderAPIKey is the sample key shipped in example environment files.
const PlaceholderAPIKey = "your_ipstack_api_key_here"

// GeoReason classifies a failed geolocation lookup.
type GeoReason string

const (
	ReasonConfig              GeoReason = "config"
	ReasonInvalidKey          GeoReason = "invalid_key"
	ReasonInactiveAccount     GeoReason = "inactive_account"
	ReasonQuotaExceeded       GeoReason = "quota_exceeded"
	ReasonSecurityUnsupported GeoReason = "security_unsupported"
	ReasonUpstream            GeoReason = "upstream"
	ReasonNetwork             GeoReason = "network"
	ReasonMalformed           GeoReason = "malformed"
)

var geoMessages = map[GeoReason]string{
	ReasonConfig:              "geolocation API key is not configured",
	ReasonInvalidKey:          "geolocation API key is invalid",
	ReasonInactiveAccount:     "geolocation account is inactive",
	ReasonQuotaExceeded:       "geolocation monthly request quota exceeded",
	ReasonSecurityUnsupported: "geolocation plan does not include the security module",
	ReasonUpstream:            "geolocation provider returned an error",
	ReasonNetwork:             "geolocation provider is unreachable",
	ReasonMalformed:           "geolocation response is missing required fields",
}

// GeoError is the failure variant of a geolocation lookup.
type GeoError struct {
	Reason GeoReason
	Code   int // provider error code or HTTP status, 0 when not applicable
	Err    error
}

func (e *GeoError) Error() string {
	msg := geoMessages[e.Reason]
	if e.Code != 0 {
		msg = fmt.Sprintf("%s (code %d)", msg, e.Code)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *GeoError) Unwrap() error {
	return e.Err
}

// GeoResult is the success variant of a geolocation lookup. Degraded is set
// when the provider refused the security module and the data was fetched
// without it.
type GeoResult struct {
	Data     models.GeolocationData `json:"data"`
	Degraded bool                   `json:"degraded"`
}

// ipstack error codes.
const (
	codeInvalidKey         = 101
	codeInactiveAccount    = 102
	codeQuotaExceeded      = 104
	codeFunctionRestricted = 105
	codeSecurityNotOnPlan  = 303
)

type ipstackResponse struct {
	IP          string   `json:"ip"`
	City        string   `json:"city"`
	RegionName  string   `json:"region_name"`
	CountryName string   `json:"country_name"`
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
	Connection  *struct {
		ISP string `json:"isp"`
	} `json:"connection"`
	Security *struct {
		IsProxy     bool     `json:"is_proxy"`
		IsTor       bool     `json:"is_tor"`
		ThreatLevel string   `json:"threat_level"`
		ThreatTypes []string `json:"threat_types"`
	} `json:"security"`
	Error *struct {
		Code int    `json:"code"`
		Type string `json:"type"`
		Info string `json:"info"`
	} `json:"error"`
}

// GeolocationClient looks up the caller's location with an ipstack-compatible
// provider.
type GeolocationClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	recorder   Recorder
	group      singleflight.Group
}

// NewGeolocationClient creates a client from configuration. recorder may be nil.
func NewGeolocationClient(cfg config.GeolocationConfig, logger *slog.Logger, recorder Recorder) *GeolocationClient {
	return &GeolocationClient{
		apiKey:  strings.TrimSpace(cfg.APIKey),
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger:   logger,
		recorder: recorderOrNop(recorder),
	}
}

// Configured reports whether a usable API key is set.
func (c *GeolocationClient) Configured() bool {
	return c.apiKey != "" && c.apiKey != PlaceholderAPIKey
}

// Lookup resolves the location of the server's egress IP. Concurrent calls
// share one upstream request. A caller whose ctx ends stops waiting with
// ctx.Err(); the shared request keeps running for the others, bounded by the
// client timeout.
func (c *GeolocationClient) Lookup(ctx context.Context) (GeoResult, error) {
	if !c.Configured() {
		c.recorder.ObserveFetch("geolocation", string(ReasonConfig))
		return GeoResult{}, &GeoError{Reason: ReasonConfig}
	}
	if err := ctx.Err(); err != nil {
		return GeoResult{}, err
	}

	ch := c.group.DoChan("check", func() (interface{}, error) {
		return c.lookup(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return GeoResult{}, ctx.Err()
	case res := <-ch:
		if res.Shared {
			c.logger.Debug("geolocation lookup shared with concurrent caller")
		}
		if res.Err != nil {
			return GeoResult{}, res.Err
		}
		return res.Val.(GeoResult), nil
	}
}

type geoAttempt int

const (
	attemptWithSecurity geoAttempt = iota
	attemptWithoutSecurity
)

func (c *GeolocationClient) lookup(ctx context.Context) (GeoResult, error) {
	attempt := attemptWithSecurity
	for {
		data, err := c.fetch(ctx, attempt == attemptWithSecurity)

		var geoErr *GeoError
		switch {
		case err == nil:
			result := GeoResult{Data: data, Degraded: attempt == attemptWithoutSecurity}
			c.observe(result)
			return result, nil
		case attempt == attemptWithSecurity && errors.As(err, &geoErr) && geoErr.Reason == ReasonSecurityUnsupported:
			c.logger.Info("security module unavailable on plan, retrying without it", "code", geoErr.Code)
			attempt = attemptWithoutSecurity
		default:
			reason := string(ReasonNetwork)
			if errors.As(err, &geoErr) {
				reason = string(geoErr.Reason)
			}
			c.recorder.ObserveFetch("geolocation", reason)
			c.logger.Warn("geolocation lookup failed", "reason", reason, "error", err)
			return GeoResult{}, err
		}
	}
}

func (c *GeolocationClient) observe(result GeoResult) {
	outcome := outcomeOK
	if result.Degraded {
		outcome = outcomeDegraded
	}
	c.recorder.ObserveFetch("geolocation", outcome)

	if geo.IsSuspicious(result.Data) {
		s := result.Data.Security
		c.logger.Warn("suspicious connection detected",
			"ip", result.Data.IP,
			"is_proxy", s.IsProxy,
			"is_tor", s.IsTor,
			"threat_level", s.ThreatLevel)
	}
}

func (c *GeolocationClient) fetch(ctx context.Context, withSecurity bool) (models.GeolocationData, error) {
	params := url.Values{}
	params.Set("access_key", c.apiKey)
	if withSecurity {
		params.Set("security", "1")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/check?"+params.Encode(), nil)
	if err != nil {
		return models.GeolocationData{}, &GeoError{Reason: ReasonConfig, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// the access key is part of the URL; report the cause only
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return models.GeolocationData{}, &GeoError{Reason: ReasonNetwork, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return models.GeolocationData{}, &GeoError{Reason: ReasonUpstream, Code: resp.StatusCode}
	}

	var body ipstackResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return models.GeolocationData{}, &GeoError{Reason: ReasonMalformed, Err: err}
	}

	if body.Error != nil {
		return models.GeolocationData{}, providerError(body.Error.Code, body.Error.Info)
	}

	return toGeolocation(body)
}

func providerError(code int, info string) error {
	var err error
	if info != "" {
		err = errors.New(info)
	}
	switch code {
	case codeInvalidKey:
		return &GeoError{Reason: ReasonInvalidKey, Code: code, Err: err}
	case codeInactiveAccount:
		return &GeoError{Reason: ReasonInactiveAccount, Code: code, Err: err}
	case codeQuotaExceeded:
		return &GeoError{Reason: ReasonQuotaExceeded, Code: code, Err: err}
	case codeFunctionRestricted, codeSecurityNotOnPlan:
		return &GeoError{Reason: ReasonSecurityUnsupported, Code: code, Err: err}
	default:
		return &GeoError{Reason: ReasonUpstream, Code: code, Err: err}
	}
}

func toGeolocation(body ipstackResponse) (models.GeolocationData, error) {
	if body.IP == "" || strings.TrimSpace(body.City) == "" || body.Latitude == nil || body.Longitude == nil {
		return models.GeolocationData{}, &GeoError{Reason: ReasonMalformed}
	}

	data := models.GeolocationData{
		IP:        body.IP,
		City:      body.City,
		Region:    body.RegionName,
		Country:   body.CountryName,
		Latitude:  *body.Latitude,
		Longitude: *body.Longitude,
	}
	if !geo.ValidCoordinates(data.Coordinates()) {
		return models.GeolocationData{}, &GeoError{Reason: ReasonMalformed, Err: fmt.Errorf("coordinates out of range: %v", data.Coordinates())}
	}
	if body.Connection != nil {
		data.ISP = body.Connection.ISP
	}
	if body.Security != nil {
		data.Security = &models.SecurityInfo{
			IsProxy:     body.Security.IsProxy,
			IsTor:       body.Security.IsTor,
			ThreatLevel: models.ThreatLevel(body.Security.ThreatLevel),
			ThreatTypes: append([]string{}, body.Security.ThreatTypes...),
		}
	}
	return data, nil
}
