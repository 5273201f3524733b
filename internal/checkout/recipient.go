package checkout

import (
	"regexp"
	"strings"
)

// phonePattern is deliberately permissive: digits plus the separators and
// prefixes people actually type ("02-1234-5678", "+886 912345678",
// "(02)12345678"). Anything alphabetic is rejected.
var phonePattern = regexp.MustCompile(`^[0-9\s+\-()]+$`)

// Recipient carries the shipping details collected by the checkout form.
// Validation is local and field-scoped; a request is only dispatched once
// every field passes.
type Recipient struct {
	Name    string
	Phone   string
	Address string
	Notes   string
}

// FieldErrors maps a form field to its display message.
type FieldErrors map[string]string

// Validate trims and checks every field and returns the failures keyed by
// field name. An empty map means the recipient is ready to submit.
func (r Recipient) Validate() FieldErrors {
	errs := make(FieldErrors)

	if strings.TrimSpace(r.Name) == "" {
		errs["receiverName"] = "receiver name is required"
	}

	phone := strings.TrimSpace(r.Phone)
	switch {
	case phone == "":
		errs["receiverPhone"] = "receiver phone is required"
	case !phonePattern.MatchString(phone):
		errs["receiverPhone"] = "please enter a valid phone number"
	}

	if strings.TrimSpace(r.Address) == "" {
		errs["shippingAddress"] = "shipping address is required"
	}

	return errs
}

// normalized returns the recipient with all fields trimmed, the form the
// order-creation request carries.
func (r Recipient) normalized() Recipient {
	return Recipient{
		Name:    strings.TrimSpace(r.Name),
		Phone:   strings.TrimSpace(r.Phone),
		Address: strings.TrimSpace(r.Address),
		Notes:   strings.TrimSpace(r.Notes),
	}
}
