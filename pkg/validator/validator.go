package validator

import (
	"net/url"
	"regexp"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var (
	validate *validator.Validate
	initOnce sync.Once

	priceIDPattern   = regexp.MustCompile(`^price_[A-Za-z0-9]+$`)
	sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_]{1,255}$`)
)

// Redirect policies accepted by the processor for embedded checkout.
var redirectPolicies = map[string]struct{}{
	"never":       {},
	"if_required": {},
	"always":      {},
}

func Init() {
	initOnce.Do(func() {
		validate = validator.New()

		registerCustomValidations(validate)

		if engine, ok := binding.Validator.Engine().(*validator.Validate); ok {
			registerCustomValidations(engine)
		}
	})
}

func registerCustomValidations(v *validator.Validate) {
	v.RegisterValidation("price_id", validatePriceID)
	v.RegisterValidation("origin", validateOrigin)
	v.RegisterValidation("checkout_session_id", validateCheckoutSessionID)
	v.RegisterValidation("redirect_policy", validateRedirectPolicy)
}

func Validate(s interface{}) error {
	Init()
	return validate.Struct(s)
}

// IsPriceID reports whether value looks like a Stripe price identifier.
func IsPriceID(value string) bool {
	return priceIDPattern.MatchString(value)
}

// IsOrigin reports whether value is a bare scheme://host[:port] origin.
func IsOrigin(value string) bool {
	if value != strings.TrimSpace(value) || value == "" {
		return false
	}

	parsed, err := url.Parse(value)
	if err != nil {
		return false
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return false
	}

	return parsed.Host != "" &&
		parsed.User == nil &&
		parsed.Path == "" &&
		parsed.RawQuery == "" &&
		parsed.Fragment == "" &&
		!strings.HasSuffix(value, "/")
}

// IsCheckoutSessionID reports whether value can safely be forwarded as a session id.
func IsCheckoutSessionID(value string) bool {
	return sessionIDPattern.MatchString(value)
}

// IsRedirectPolicy reports whether value is a known redirect-on-completion policy.
func IsRedirectPolicy(value string) bool {
	_, ok := redirectPolicies[value]
	return ok
}

func validatePriceID(fl validator.FieldLevel) bool {
	return IsPriceID(fl.Field().String())
}

func validateOrigin(fl validator.FieldLevel) bool {
	return IsOrigin(fl.Field().String())
}

func validateCheckoutSessionID(fl validator.FieldLevel) bool {
	return IsCheckoutSessionID(fl.Field().String())
}

func validateRedirectPolicy(fl validator.FieldLevel) bool {
	return IsRedirectPolicy(fl.Field().String())
}
