package domain

import (
	"time"
)

// ActionSourceWebsite is the only action source this service reports.
const ActionSourceWebsite = "website"

// CustomData is the free-form event payload (value, currency, content_ids, ...).
type CustomData map[string]any

// TrackedEvent is a single event in the shape the Conversions API expects.
type TrackedEvent struct {
	EventName      string         `json:"event_name"`
	EventTime      int64          `json:"event_time"`
	EventSourceURL string         `json:"event_source_url,omitempty"`
	ActionSource   string         `json:"action_source"`
	UserData       UserDataHashed `json:"user_data"`
	CustomData     CustomData     `json:"custom_data,omitempty"`
	EventID        string         `json:"event_id"`
}

// OccurredAt returns the event time as a time.Time.
func (e *TrackedEvent) OccurredAt() time.Time {
	return time.Unix(e.EventTime, 0)
}

// UserData is the raw personal data supplied by the commerce host.
type UserData struct {
	Email      string `json:"email,omitempty"`
	Phone      string `json:"phone,omitempty"`
	FirstName  string `json:"first_name,omitempty"`
	LastName   string `json:"last_name,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country,omitempty"`
}

// UserDataHashed holds hashed personal fields plus the operational fields the
// remote API accepts unhashed.
type UserDataHashed struct {
	Em      string `json:"em,omitempty"`
	Ph      string `json:"ph,omitempty"`
	Fn      string `json:"fn,omitempty"`
	Ln      string `json:"ln,omitempty"`
	Ct      string `json:"ct,omitempty"`
	St      string `json:"st,omitempty"`
	Zp      string `json:"zp,omitempty"`
	Country string `json:"country,omitempty"`

	ClientIPAddress string `json:"client_ip_address,omitempty"`
	ClientUserAgent string `json:"client_user_agent,omitempty"`
	ExternalID      string `json:"external_id,omitempty"`
	Fbp             string `json:"fbp,omitempty"`
	Fbc             string `json:"fbc,omitempty"`
}

// RequestContext carries the ambient request data the hasher and normalizer
// need. It is passed explicitly instead of being read from a global request.
type RequestContext struct {
	RemoteIP  string `json:"remote_ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	Fbp       string `json:"fbp,omitempty"`
	Fbc       string `json:"fbc,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	SourceURL string `json:"source_url,omitempty"`
}

// Session returns the scope used for local dedup: the browser cookie when the
// Pixel has set one, otherwise the client IP.
func (rc RequestContext) Session() string {
	if rc.Fbp != "" {
		return rc.Fbp
	}
	return rc.RemoteIP
}
