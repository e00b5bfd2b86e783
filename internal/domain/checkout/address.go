package checkout

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-playground/validator/v10"

	"github.com/xenking/shopcart/internal/domain/order"
)

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern = regexp.MustCompile(`^\+?[\d\s-]{10,}$`)

	validate = newValidator()
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	mustRegister(v, "email_loose", emailPattern)
	mustRegister(v, "phone_loose", phonePattern)
	return v
}

func mustRegister(v *validator.Validate, tag string, re *regexp.Regexp) {
	if err := v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
		return re.MatchString(fl.Field().String())
	}); err != nil {
		panic(err)
	}
}

// AddressError explains why a billing or shipping address was rejected.
type AddressError struct {
	// Kind is "billing" or "shipping".
	Kind    string
	Missing []string
	Reason  string
}

func (e *AddressError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("%s address validation failed: missing required address fields: %s",
			e.Kind, strings.Join(e.Missing, ", "))
	}
	return fmt.Sprintf("%s address validation failed: %s", e.Kind, e.Reason)
}

// Is makes every AddressError match ErrAddressValidation.
func (e *AddressError) Is(target error) bool {
	return target == ErrAddressValidation
}

// ValidateAddresses checks that both addresses are present and complete and
// that their email and phone look plausible. Billing is checked first.
func ValidateAddresses(billing, shipping *order.Address) error {
	if billing == nil || shipping == nil {
		return &AddressError{Kind: "checkout", Reason: "both billing and shipping addresses are required"}
	}
	if err := validateAddress("billing", billing); err != nil {
		return err
	}
	return validateAddress("shipping", shipping)
}

func validateAddress(kind string, a *order.Address) error {
	err := validate.Struct(a)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return errors.Wrap(err, "validate address")
	}

	addrErr := &AddressError{Kind: kind}
	for _, fe := range fieldErrs {
		if fe.Tag() == "required" {
			addrErr.Missing = append(addrErr.Missing, fe.Field())
		}
	}
	if len(addrErr.Missing) > 0 {
		return addrErr
	}
	switch fe := fieldErrs[0]; fe.Tag() {
	case "email_loose":
		addrErr.Reason = fmt.Sprintf("invalid email format in %s address", kind)
	case "phone_loose":
		addrErr.Reason = fmt.Sprintf("invalid phone format in %s address", kind)
	default:
		addrErr.Reason = fmt.Sprintf("invalid %s in %s address", fe.Field(), kind)
	}
	return addrErr
}
