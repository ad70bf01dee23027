package engine

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/Priya8975/capi-relay/internal/domain"
	"github.com/Priya8975/capi-relay/internal/hasher"
)

func fixedNormalizer() *Normalizer {
	n := NewNormalizer()
	n.now = func() time.Time { return time.Unix(1700000000, 0) }
	n.suffix = func() string { return "abc123" }
	return n
}

func TestValidate_EventNames(t *testing.T) {
	n := NewNormalizer()

	tests := []struct {
		name    string
		event   string
		wantErr bool
	}{
		{name: "standard purchase", event: "Purchase"},
		{name: "standard subscribe", event: "Subscribe"},
		{name: "custom prefix", event: "CustomFoo"},
		{name: "bare custom", event: "Custom"},
		{name: "page view not allowed", event: "PageView", wantErr: true},
		{name: "wrong case", event: "purchase", wantErr: true},
		{name: "lowercase custom", event: "customFoo", wantErr: true},
		{name: "empty", event: "", wantErr: true},
		{name: "custom name too long", event: CustomEventPrefix + strings.Repeat("x", MaxEventNameLength), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := n.Validate(tt.event, nil)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate(%q) error = %v, wantErr %v", tt.event, err, tt.wantErr)
			}
			if err != nil && !domain.IsValidation(err) {
				t.Errorf("expected ValidationError, got %T", err)
			}
		})
	}
}

func TestValidate_CustomData(t *testing.T) {
	n := NewNormalizer()

	ids := func(count int) []any {
		out := make([]any, count)
		for i := range out {
			out[i] = float64(i)
		}
		return out
	}

	tests := []struct {
		name      string
		data      domain.CustomData
		wantField string
	}{
		{name: "value with currency", data: domain.CustomData{"value": 10.0, "currency": "EUR"}},
		{name: "value without currency", data: domain.CustomData{"value": 10.0}, wantField: "currency"},
		{name: "null value needs nothing", data: domain.CustomData{"value": nil}},
		{name: "100 ids", data: domain.CustomData{"content_ids": ids(100)}},
		{name: "101 ids", data: domain.CustomData{"content_ids": ids(101)}, wantField: "content_ids"},
		{name: "string ids", data: domain.CustomData{"content_ids": []string{"a", "b"}}},
		{name: "ids not a list", data: domain.CustomData{"content_ids": "101"}, wantField: "content_ids"},
		{name: "blank currency", data: domain.CustomData{"value": 10.0, "currency": "  "}, wantField: "currency"},
		{name: "markup-only currency", data: domain.CustomData{"value": 10.0, "currency": "<b></b>"}, wantField: "currency"},
		{name: "decoded numbers", data: domain.CustomData{
			"value":       json.Number("10.50"),
			"currency":    "EUR",
			"content_ids": []any{json.Number("9007199254740993")},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := n.Validate("Purchase", tt.data)
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			ve, ok := err.(*domain.ValidationError)
			if !ok {
				t.Fatalf("expected *ValidationError, got %T (%v)", err, err)
			}
			if ve.Field != tt.wantField {
				t.Errorf("field = %q, want %q", ve.Field, tt.wantField)
			}
		})
	}
}

func TestValidate_ValueWithoutCurrencyAlwaysFails(t *testing.T) {
	n := NewNormalizer()
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("value without currency is rejected", prop.ForAll(
		func(value float64, extra string) bool {
			data := domain.CustomData{"value": value, "content_name": extra}
			return domain.IsValidation(n.Validate("Purchase", data))
		},
		gen.Float64(),
		gen.AlphaString(),
	))

	properties.Property("more than 100 content ids is rejected", prop.ForAll(
		func(count int) bool {
			list := make([]any, count)
			return domain.IsValidation(n.Validate("ViewContent", domain.CustomData{"content_ids": list}))
		},
		gen.IntRange(MaxContentIDs+1, 1000),
	))

	properties.TestingRun(t)
}

func TestNormalize_BuildsEvent(t *testing.T) {
	n := fixedNormalizer()

	ev, err := n.Normalize(RawEvent{
		Name: "Purchase",
		CustomData: domain.CustomData{
			"content_ids":  []any{float64(101)},
			"value":        49.99,
			"currency":     "EUR",
			"content_type": "product",
		},
		UserData: &domain.UserData{Email: "Test@Example.com"},
	}, domain.RequestContext{
		RemoteIP:  "198.51.100.4",
		UserAgent: "UA",
		SourceURL: "https://shop.example/checkout",
	})
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	if ev.EventName != "Purchase" {
		t.Errorf("event_name = %q", ev.EventName)
	}
	if ev.EventTime != 1700000000 {
		t.Errorf("event_time = %d", ev.EventTime)
	}
	if ev.ActionSource != "website" {
		t.Errorf("action_source = %q, want website", ev.ActionSource)
	}
	if ev.EventSourceURL != "https://shop.example/checkout" {
		t.Errorf("event_source_url = %q", ev.EventSourceURL)
	}
	if ev.EventID != "purchase_server_1700000000_abc123" {
		t.Errorf("event_id = %q", ev.EventID)
	}
	if ev.UserData.Em != hasher.Hash("test@example.com") {
		t.Errorf("em = %q, want hash of lowercased email", ev.UserData.Em)
	}
	if ev.UserData.ClientIPAddress != "198.51.100.4" {
		t.Errorf("client_ip_address = %q", ev.UserData.ClientIPAddress)
	}

	want := domain.CustomData{
		"content_ids":  []any{float64(101)},
		"value":        49.99,
		"currency":     "EUR",
		"content_type": "product",
	}
	if !reflect.DeepEqual(ev.CustomData, want) {
		t.Errorf("custom_data = %#v, want %#v", ev.CustomData, want)
	}
}

func TestNormalize_ReusesSuppliedEventID(t *testing.T) {
	n := fixedNormalizer()

	ev, err := n.Normalize(RawEvent{Name: "AddToCart", EventID: " addtocart_shared_1 "}, domain.RequestContext{})
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if ev.EventID != "addtocart_shared_1" {
		t.Errorf("event_id = %q, want the supplied id", ev.EventID)
	}
}

func TestNormalize_BlankCurrencyNeverLeavesValueAlone(t *testing.T) {
	n := fixedNormalizer()

	ev, err := n.Normalize(RawEvent{Name: "Purchase", CustomData: domain.CustomData{"value": 10.0, "currency": "  "}}, domain.RequestContext{})
	if err == nil {
		t.Fatalf("expected currency error, custom_data sent as %v", ev.CustomData)
	}
}

func TestNormalize_RejectsOverlongEventID(t *testing.T) {
	n := fixedNormalizer()

	_, err := n.Normalize(RawEvent{Name: "Lead", EventID: strings.Repeat("a", MaxEventIDLength+1)}, domain.RequestContext{})
	var ve *domain.ValidationError
	if !errors.As(err, &ve) || ve.Field != "event_id" {
		t.Fatalf("expected event_id validation error, got %v", err)
	}

	if _, err := n.Normalize(RawEvent{Name: "Lead", EventID: strings.Repeat("a", MaxEventIDLength)}, domain.RequestContext{}); err != nil {
		t.Errorf("id at the limit rejected: %v", err)
	}
}

func TestNormalize_RejectsInvalid(t *testing.T) {
	n := fixedNormalizer()

	ev, err := n.Normalize(RawEvent{Name: "PageView"}, domain.RequestContext{})
	if err == nil || ev != nil {
		t.Fatalf("expected validation failure, got ev=%v err=%v", ev, err)
	}
}

func TestNewEventID_Unique(t *testing.T) {
	n := NewNormalizer()
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := n.NewEventID("Lead")
		if !strings.HasPrefix(id, "lead_server_") {
			t.Fatalf("unexpected id format %q", id)
		}
		if seen[id] {
			t.Fatalf("duplicate event id %q", id)
		}
		seen[id] = true
	}
}

func TestSanitizeCustomData(t *testing.T) {
	nested := map[string]any{"id": "1", "quantity": float64(2)}
	in := domain.CustomData{
		"empty":        "",
		"null":         nil,
		"content_name": "  <b>Red</b>\tShoes\n ",
		"control":      "a\x00b\x07c",
		"markup_only":  "<br/>",
		"value":        12.5,
		"in_stock":     false,
		"num_items":    3,
		"contents":     []any{nested},
	}

	got := SanitizeCustomData(in)

	want := domain.CustomData{
		"content_name": "Red Shoes",
		"control":      "abc",
		"value":        12.5,
		"in_stock":     false,
		"num_items":    3,
		"contents":     []any{nested},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("SanitizeCustomData =\n  %#v\nwant\n  %#v", got, want)
	}
}

func TestSanitizeText_InvalidUTF8(t *testing.T) {
	if got := SanitizeText("caf\xffé"); got != "café" {
		t.Errorf("SanitizeText = %q, want %q", got, "café")
	}
}
