package conversions

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Priya8975/capi-relay/internal/domain"
)

const verifyTimeout = 10 * time.Second

// Verification methods reported in VerificationResult.Method.
const (
	MethodTestEvent = "test_event"
	MethodStats     = "stats"
	MethodPixelInfo = "pixel_info"
	MethodMe        = "me"
	MethodNone      = "none"
)

// Verifier checks that the configured pixel and token can reach the API.
type Verifier struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

func NewVerifier(cfg Config, logger *slog.Logger) *Verifier {
	return &Verifier{
		cfg:        cfg.withDefaults(),
		httpClient: &http.Client{Timeout: verifyTimeout},
		logger:     logger,
	}
}

// Test posts a PageView test event. Transport failures and invalid-parameter
// errors fall back to Probe.
func (v *Verifier) Test(ctx context.Context) domain.VerificationResult {
	if !v.cfg.Configured() {
		return domain.VerificationResult{Method: MethodNone, Message: domain.ErrNotConfigured.Error()}
	}

	now := time.Now()
	ev := &domain.TrackedEvent{
		EventName:    "PageView",
		EventTime:    now.Unix(),
		ActionSource: domain.ActionSourceWebsite,
		UserData: domain.UserDataHashed{
			ClientIPAddress: "127.0.0.1",
			ClientUserAgent: v.cfg.UserAgent,
		},
		CustomData: domain.CustomData{"content_name": "Test Connection"},
		EventID:    "test_connection_" + strconv.FormatInt(now.Unix(), 10),
	}

	form, err := v.cfg.eventsForm(ev, v.cfg.TestEventCode)
	if err != nil {
		return domain.VerificationResult{Method: MethodTestEvent, Message: fmt.Sprintf("encoding test event: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.cfg.EventsURL(), strings.NewReader(form.Encode()))
	if err != nil {
		return domain.VerificationResult{Method: MethodTestEvent, Message: fmt.Sprintf("building request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", v.cfg.UserAgent)

	resp, err := v.httpClient.Do(req)
	if err != nil {
		v.logger.Warn("test event failed, probing fallback endpoints", "error", err)
		return v.Probe(ctx)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	parsed, ok := parseGraphResponse(body)
	if !ok {
		return domain.VerificationResult{
			Method:  MethodTestEvent,
			Message: fmt.Sprintf("unexpected response (HTTP %d)", resp.StatusCode),
		}
	}

	if parsed.Error != nil {
		if parsed.Error.Code == codeInvalidParameter {
			return v.Probe(ctx)
		}
		return domain.VerificationResult{
			Method:  MethodTestEvent,
			Message: fmt.Sprintf("API error: %s (code %d)", parsed.Error.Message, parsed.Error.Code),
		}
	}

	msg := "connection ok, Conversions API reachable"
	if parsed.EventsReceived != nil {
		msg = fmt.Sprintf("connection ok, test events received: %d", *parsed.EventsReceived)
	}
	if v.cfg.TestEventCode != "" {
		msg += " (test mode)"
	}
	return domain.VerificationResult{Success: true, Method: MethodTestEvent, Message: msg}
}

type probe struct {
	method  string
	url     string
	message string
}

func (v *Verifier) probes() []probe {
	token := url.QueryEscape(v.cfg.AccessToken)
	pixel := url.PathEscape(v.cfg.PixelID)
	return []probe{
		{MethodStats, v.cfg.graphURL(pixel, "stats") + "?access_token=" + token, "pixel stats reachable"},
		{MethodPixelInfo, v.cfg.graphURL(pixel) + "?fields=id,name&access_token=" + token, "pixel recognized"},
		{MethodMe, v.cfg.graphURL("me") + "?access_token=" + token, "access token valid"},
	}
}

// Probe tries the lower-privilege endpoints in order and returns the first
// that answers without an error payload.
func (v *Verifier) Probe(ctx context.Context) domain.VerificationResult {
	for _, p := range v.probes() {
		if v.get(ctx, p.url) {
			v.logger.Info("fallback verification succeeded", "method", p.method, "pixel_id", v.cfg.PixelID)
			return domain.VerificationResult{Success: true, Method: p.method, Message: p.message}
		}
	}

	v.logger.Warn("fallback verification failed on every endpoint", "pixel_id", v.cfg.PixelID)
	return domain.VerificationResult{
		Method:  MethodNone,
		Message: "access token lacks permission for every verification endpoint",
	}
}

func (v *Verifier) get(ctx context.Context, target string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return false
	}
	req.Header.Set("User-Agent", v.cfg.UserAgent)

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	parsed, ok := parseGraphResponse(body)
	return ok && parsed.Error == nil
}
