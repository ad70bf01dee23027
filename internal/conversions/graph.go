// Package conversions delivers events to the Conversions API and verifies
// that the configured pixel and token can reach it.
package conversions

import (
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/Priya8975/capi-relay/internal/domain"
)

const (
	DefaultBaseURL    = "https://graph.facebook.com"
	DefaultAPIVersion = "v18.0"
	DefaultTimeout    = 3 * time.Second
	DefaultUserAgent  = "capi-relay/1.0"

	maxResponseBytes = 64 << 10
)

// Config identifies the pixel and credentials events are sent with.
type Config struct {
	PixelID       string
	AccessToken   string
	APIVersion    string
	TestEventCode string
	Enabled       bool
	BaseURL       string
	Timeout       time.Duration
	UserAgent     string
}

func (c Config) withDefaults() Config {
	if c.APIVersion == "" {
		c.APIVersion = DefaultAPIVersion
	}
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	return c
}

// Configured reports whether a pixel id and access token are present.
func (c Config) Configured() bool {
	return c.PixelID != "" && c.AccessToken != ""
}

func (c Config) graphURL(parts ...string) string {
	return c.BaseURL + "/" + c.APIVersion + "/" + strings.Join(parts, "/")
}

// EventsURL is the endpoint events are POSTed to.
func (c Config) EventsURL() string {
	return c.graphURL(url.PathEscape(c.PixelID), "events")
}

// eventsForm builds the form body for a one-event batch.
func (c Config) eventsForm(ev *domain.TrackedEvent, testCode string) (url.Values, error) {
	data, err := json.Marshal([]*domain.TrackedEvent{ev})
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("data", string(data))
	form.Set("access_token", c.AccessToken)
	if testCode != "" {
		form.Set("test_event_code", testCode)
	}
	return form, nil
}

type graphError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    int    `json:"code"`
}

type graphResponse struct {
	EventsReceived *int        `json:"events_received"`
	ID             string      `json:"id"`
	Error          *graphError `json:"error"`
}

func parseGraphResponse(body []byte) (*graphResponse, bool) {
	var resp graphResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, false
	}
	return &resp, true
}

// Remote error codes with special handling.
const (
	codeInvalidParameter = 100
	codeAccessToken      = 190
	codePermission       = 10
)

// ClassifyRemoteError maps a Graph API error code to an error kind.
func ClassifyRemoteError(code int) string {
	switch {
	case code == codePermission || (code >= 200 && code <= 299):
		return domain.ErrorKindPermission
	case code == codeAccessToken:
		return domain.ErrorKindAuth
	case code == codeInvalidParameter:
		return domain.ErrorKindInvalid
	case code == 4 || code == 17 || code == 32 || code == 613 || code == 80004:
		return domain.ErrorKindThrottled
	default:
		return domain.ErrorKindRemote
	}
}

// triggersFallback reports whether a remote error should be followed by the
// lower-privilege verification probe. Code 100 is included because the
// events endpoint reports some scope problems as invalid parameters.
func triggersFallback(code int) bool {
	return code == codeInvalidParameter || ClassifyRemoteError(code) == domain.ErrorKindPermission
}
