package onboarding

import (
	"errors"
	"reflect"
	"regexp"
	"strings"
	"unicode"

	"makao/internal/payments"

	"github.com/go-playground/validator/v10"
)

var nationalIDRe = regexp.MustCompile(`^(\d{8}|[A-Za-z]{2}\d{7})$`)

func ValidKenyanPhone(s string) bool {
	_, err := payments.NormalizePhone(s)
	return err == nil
}

// ValidNationalID accepts an 8 digit national ID or a passport number of two
// letters and seven digits.
func ValidNationalID(s string) bool {
	return nationalIDRe.MatchString(strings.TrimSpace(s))
}

// PasswordRules reports each password requirement separately so clients can
// render a checklist.
type PasswordRules struct {
	MinLength bool `json:"min_length"`
	Upper     bool `json:"has_uppercase"`
	Lower     bool `json:"has_lowercase"`
	Digit     bool `json:"has_number"`
}

func (r PasswordRules) Valid() bool { return r.MinLength && r.Upper && r.Lower && r.Digit }

func CheckPassword(pw string) PasswordRules {
	r := PasswordRules{MinLength: len(pw) >= 8}
	for _, c := range pw {
		switch {
		case unicode.IsUpper(c):
			r.Upper = true
		case unicode.IsLower(c):
			r.Lower = true
		case unicode.IsDigit(c):
			r.Digit = true
		}
	}
	return r
}

// RegisterValidations adds the kephone, keid and strongpw tags to v.
func RegisterValidations(v *validator.Validate) error {
	fns := map[string]func(string) bool{
		"kephone":  ValidKenyanPhone,
		"keid":     ValidNationalID,
		"strongpw": func(s string) bool { return CheckPassword(s).Valid() },
	}
	for tag, fn := range fns {
		if err := v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
			return fn(fl.Field().String())
		}); err != nil {
			return err
		}
	}
	return nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	if err := RegisterValidations(v); err != nil {
		panic(err)
	}
	return v
}

// ValidationError is a step failure with a message fit for the end user.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string { return e.Message }

// fieldMessages maps json field names to user-facing messages.
var fieldMessages = map[string]string{
	"landlord_code":     "Landlord code is required",
	"full_name":         "Full name is required",
	"national_id":       "Invalid national ID format",
	"email":             "Invalid email address",
	"phone_number":      "Invalid phone number format",
	"emergency_contact": "Invalid emergency contact format",
	"property_id":       "Please select a property",
	"unit_id":           "Please select a unit",
	"id_document_url":   "Please upload your ID document",
	"mpesa_phone":       "Invalid M-Pesa phone number",
	"password":          "Password does not meet all requirements",
	"confirm_password":  "Passwords do not match",
	"mpesa_till_number": "M-Pesa till number is required",
	"address":           "Address is required",
	"website":           "Invalid website URL",
	"properties":        "Please add at least one property",
	"name":              "All properties must have a name",
	"units":             "Please add at least one unit",
	"unit_number":       "All units must have a unit number",
	"rent_cents":        "All units must have a valid rent amount",
	"deposit_cents":     "Deposit cannot be negative",
}

func check(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}

	fe := verrs[0]
	field := fe.Field()
	// property_address shares the "address" json name inside a property.
	if strings.Contains(fe.Namespace(), "properties[") && field == "address" {
		return &ValidationError{Field: field, Message: "All properties must have an address"}
	}
	msg, ok := fieldMessages[field]
	if !ok {
		msg = "Invalid " + strings.ReplaceAll(field, "_", " ")
	}
	return &ValidationError{Field: field, Message: msg}
}
