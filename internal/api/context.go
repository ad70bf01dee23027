package api

import (
	"net"
	"net/http"
	"strings"

	"github.com/Priya8975/capi-relay/internal/domain"
)

// visitorContext describes the browser the event came from. A host relaying
// events server-side fills it in; a browser calling directly can leave it
// empty and the HTTP request is used instead.
type visitorContext struct {
	ClientIPAddress string `json:"client_ip_address"`
	ClientUserAgent string `json:"client_user_agent"`
	Fbp             string `json:"fbp"`
	Fbc             string `json:"fbc"`
	UserID          string `json:"user_id"`
	EventSourceURL  string `json:"event_source_url"`
}

func (v visitorContext) resolve(r *http.Request) domain.RequestContext {
	rc := domain.RequestContext{
		RemoteIP:  strings.TrimSpace(v.ClientIPAddress),
		UserAgent: strings.TrimSpace(v.ClientUserAgent),
		Fbp:       strings.TrimSpace(v.Fbp),
		Fbc:       strings.TrimSpace(v.Fbc),
		UserID:    strings.TrimSpace(v.UserID),
		SourceURL: strings.TrimSpace(v.EventSourceURL),
	}

	if rc.RemoteIP == "" {
		rc.RemoteIP = clientIP(r)
	}
	if rc.UserAgent == "" {
		rc.UserAgent = r.UserAgent()
	}
	if rc.Fbp == "" {
		rc.Fbp = cookieValue(r, "_fbp")
	}
	if rc.Fbc == "" {
		rc.Fbc = cookieValue(r, "_fbc")
	}
	if rc.SourceURL == "" {
		rc.SourceURL = r.Referer()
	}
	return rc
}

// clientIP returns the caller address. middleware.RealIP has already
// replaced RemoteAddr from proxy headers when present.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
