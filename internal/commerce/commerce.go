// Package commerce builds Conversions API custom data from storefront
// objects: products, carts, orders and searches.
package commerce

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/Priya8975/capi-relay/internal/domain"
)

// ErrNoItems is returned for carts and orders without line items. No event
// is tracked for them.
var ErrNoItems = errors.New("no line items")

const contentTypeProduct = "product"

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type Product struct {
	ID       string  `json:"id" validate:"required"`
	Name     string  `json:"name"`
	Category string  `json:"category"`
	Price    float64 `json:"price" validate:"gte=0"`
}

type CartItem struct {
	ProductID string  `json:"product_id" validate:"required"`
	Quantity  int     `json:"quantity" validate:"gte=1"`
	Price     float64 `json:"price" validate:"gte=0"`
}

type Cart struct {
	Items []CartItem `json:"items" validate:"dive"`
}

// Order is a completed checkout. Billing carries the customer's raw
// personal data; it is hashed before it leaves the service.
type Order struct {
	ID       string          `json:"id" validate:"required,max=100"`
	Items    []CartItem      `json:"items" validate:"dive"`
	Total    float64         `json:"total" validate:"gte=0"`
	Currency string          `json:"currency"`
	Billing  domain.UserData `json:"billing"`
}

// Content is one entry of the contents list.
type Content struct {
	ID        string  `json:"id"`
	Quantity  int     `json:"quantity"`
	ItemPrice float64 `json:"item_price"`
}

// ViewContent describes a product page view.
func ViewContent(p Product, currency string) (domain.CustomData, error) {
	currency, err := normalizeCurrency(currency)
	if err != nil {
		return nil, err
	}
	if err := check(p); err != nil {
		return nil, err
	}
	return domain.CustomData{
		"content_ids":      []string{p.ID},
		"content_name":     p.Name,
		"content_category": p.Category,
		"content_type":     contentTypeProduct,
		"value":            p.Price,
		"currency":         currency,
	}, nil
}

// AddToCart describes quantity units of p added to the cart.
func AddToCart(p Product, quantity int, currency string) (domain.CustomData, error) {
	currency, err := normalizeCurrency(currency)
	if err != nil {
		return nil, err
	}
	if err := check(p); err != nil {
		return nil, err
	}
	if quantity < 1 {
		quantity = 1
	}
	return domain.CustomData{
		"content_ids":      []string{p.ID},
		"content_name":     p.Name,
		"content_category": p.Category,
		"content_type":     contentTypeProduct,
		"value":            p.Price * float64(quantity),
		"currency":         currency,
	}, nil
}

// Checkout describes a cart for InitiateCheckout or AddPaymentInfo.
func Checkout(eventName string, cart Cart, currency string) (domain.CustomData, error) {
	if eventName != "InitiateCheckout" && eventName != "AddPaymentInfo" {
		return nil, &domain.ValidationError{Field: "event_name", Reason: fmt.Sprintf("%q is not a checkout event", eventName)}
	}
	currency, err := normalizeCurrency(currency)
	if err != nil {
		return nil, err
	}
	if err := check(cart); err != nil {
		return nil, err
	}
	if len(cart.Items) == 0 {
		return nil, ErrNoItems
	}

	ids, contents, value := lineItems(cart.Items)
	return domain.CustomData{
		"content_ids":  ids,
		"contents":     contents,
		"content_type": contentTypeProduct,
		"num_items":    len(ids),
		"value":        value,
		"currency":     currency,
	}, nil
}

// Purchase describes a completed order. The value is the order total, not
// the sum of its lines.
func Purchase(o Order) (domain.CustomData, error) {
	if err := check(o); err != nil {
		return nil, err
	}
	currency, err := normalizeCurrency(o.Currency)
	if err != nil {
		return nil, err
	}
	if len(o.Items) == 0 {
		return nil, ErrNoItems
	}

	ids, contents, _ := lineItems(o.Items)
	return domain.CustomData{
		"content_ids":  ids,
		"contents":     contents,
		"content_type": contentTypeProduct,
		"num_items":    len(ids),
		"value":        o.Total,
		"currency":     currency,
	}, nil
}

// Search describes a storefront search.
func Search(query string) (domain.CustomData, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, &domain.ValidationError{Field: "search_string", Reason: "required"}
	}
	return domain.CustomData{"search_string": query}, nil
}

// normalizeCurrency trims and upper-cases a 3-letter currency code.
func normalizeCurrency(currency string) (string, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if len(currency) != 3 {
		return "", &domain.ValidationError{Field: "currency", Reason: "must be a 3-letter code"}
	}
	return currency, nil
}

func lineItems(items []CartItem) ([]string, []Content, float64) {
	ids := make([]string, 0, len(items))
	contents := make([]Content, 0, len(items))
	var value float64
	for _, it := range items {
		ids = append(ids, it.ProductID)
		contents = append(contents, Content{ID: it.ProductID, Quantity: it.Quantity, ItemPrice: it.Price})
		value += it.Price * float64(it.Quantity)
	}
	return ids, contents, value
}

// check runs struct validation and reports the first failing field.
func check(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &domain.ValidationError{Field: fe.Field(), Reason: fmt.Sprintf("failed %q rule", fe.Tag())}
	}
	return fmt.Errorf("validating %T: %w", v, err)
}
