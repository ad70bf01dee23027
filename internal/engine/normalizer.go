package engine

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/Priya8975/capi-relay/internal/domain"
	"github.com/Priya8975/capi-relay/internal/hasher"
)

// MaxContentIDs is the largest content_ids list the remote API accepts.
const MaxContentIDs = 100

// CustomEventPrefix marks application-defined event names.
const CustomEventPrefix = "Custom"

// Column widths of the dispatch log.
const (
	MaxEventNameLength = 100
	MaxEventIDLength   = 255
)

var standardEvents = map[string]struct{}{
	"ViewContent":          {},
	"AddToCart":            {},
	"AddToWishlist":        {},
	"InitiateCheckout":     {},
	"AddPaymentInfo":       {},
	"Purchase":             {},
	"Lead":                 {},
	"CompleteRegistration": {},
	"Search":               {},
	"Contact":              {},
	"CustomizeProduct":     {},
	"Donate":               {},
	"FindLocation":         {},
	"Schedule":             {},
	"StartTrial":           {},
	"SubmitApplication":    {},
	"Subscribe":            {},
}

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// RawEvent is the unnormalized input to Normalize.
type RawEvent struct {
	Name       string
	CustomData domain.CustomData
	UserData   *domain.UserData
	// EventID is the id already given to the browser Pixel for this
	// occurrence. When empty a server id is minted.
	EventID    string
}

// Normalizer builds TrackedEvents from raw input.
type Normalizer struct {
	now    func() time.Time
	suffix func() string
}

func NewNormalizer() *Normalizer {
	return &Normalizer{
		now:    time.Now,
		suffix: randomSuffix,
	}
}

// IsAllowedEventName reports whether name is a standard event or a Custom* one.
func IsAllowedEventName(name string) bool {
	if _, ok := standardEvents[name]; ok {
		return true
	}
	return strings.HasPrefix(name, CustomEventPrefix)
}

// Validate checks the event name and the custom data shape. It returns a
// *domain.ValidationError or nil.
func (n *Normalizer) Validate(name string, data domain.CustomData) error {
	if !IsAllowedEventName(name) {
		return &domain.ValidationError{Field: "event_name", Reason: fmt.Sprintf("unknown event %q", name)}
	}
	if len(name) > MaxEventNameLength {
		return &domain.ValidationError{Field: "event_name", Reason: fmt.Sprintf("longer than %d bytes", MaxEventNameLength)}
	}

	if isSet(data, "value") && !isSet(data, "currency") {
		return &domain.ValidationError{Field: "currency", Reason: "required when value is present"}
	}

	if isSet(data, "content_ids") {
		v := reflect.ValueOf(data["content_ids"])
		if v.Kind() != reflect.Slice && v.Kind() != reflect.Array {
			return &domain.ValidationError{Field: "content_ids", Reason: "must be a list"}
		}
		if v.Len() > MaxContentIDs {
			return &domain.ValidationError{
				Field:  "content_ids",
				Reason: fmt.Sprintf("too many ids (%d, max %d)", v.Len(), MaxContentIDs),
			}
		}
	}

	return nil
}

// Normalize validates raw and builds the canonical event. User data is hashed
// against the request context.
func (n *Normalizer) Normalize(raw RawEvent, rc domain.RequestContext) (*domain.TrackedEvent, error) {
	if err := n.Validate(raw.Name, raw.CustomData); err != nil {
		return nil, err
	}
	eventID := strings.TrimSpace(raw.EventID)
	if len(eventID) > MaxEventIDLength {
		return nil, &domain.ValidationError{Field: "event_id", Reason: fmt.Sprintf("longer than %d bytes", MaxEventIDLength)}
	}

	now := n.now()

	var ud domain.UserData
	if raw.UserData != nil {
		ud = *raw.UserData
	}

	if eventID == "" {
		eventID = n.NewEventID(raw.Name)
	}

	return &domain.TrackedEvent{
		EventName:      raw.Name,
		EventTime:      now.Unix(),
		EventSourceURL: rc.SourceURL,
		ActionSource:   domain.ActionSourceWebsite,
		UserData:       hasher.HashUserData(ud, rc),
		CustomData:     SanitizeCustomData(raw.CustomData),
		EventID:        eventID,
	}, nil
}

// NewEventID mints a server event id: lower(name)_server_<unix>_<suffix>.
func (n *Normalizer) NewEventID(name string) string {
	return strings.ToLower(name) + "_server_" + strconv.FormatInt(n.now().Unix(), 10) + "_" + n.suffix()
}

// SanitizeCustomData drops null and empty-string fields and cleans free text.
// Numbers, booleans, lists and maps pass through unchanged.
func SanitizeCustomData(data domain.CustomData) domain.CustomData {
	out := make(domain.CustomData, len(data))
	for k, v := range data {
		switch val := v.(type) {
		case nil:
			continue
		case string:
			if clean := SanitizeText(val); clean != "" {
				out[k] = clean
			}
		default:
			out[k] = v
		}
	}
	return out
}

// SanitizeText repairs invalid UTF-8, strips markup and control characters,
// collapses whitespace runs and trims.
func SanitizeText(s string) string {
	s = strings.ToValidUTF8(s, "")
	s = tagPattern.ReplaceAllString(s, "")
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return ' '
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

// isSet reports whether key survives SanitizeCustomData.
func isSet(data domain.CustomData, key string) bool {
	switch v := data[key].(type) {
	case nil:
		return false
	case string:
		return SanitizeText(v) != ""
	default:
		return true
	}
}

func randomSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:13]
}
