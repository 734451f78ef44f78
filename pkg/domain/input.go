package domain

import (
	"net/mail"
	"strconv"
	"strings"
)

const minPhoneDigits = 7

// Validate checks a submitted value against the field configuration.
// An empty optional value is always accepted.
func (d InputData) Validate(nodeID, value string) error {
	value = strings.TrimSpace(value)
	fail := func(reason string) error {
		return &InputValidationError{NodeID: nodeID, InputType: d.InputType, Reason: reason}
	}

	if value == "" {
		if d.Required {
			return fail("a value is required")
		}
		return nil
	}

	switch d.InputType {
	case InputEmail:
		addr, err := mail.ParseAddress(value)
		if err != nil || addr.Address != value {
			return fail("not an email address")
		}
	case InputNumber:
		if _, err := strconv.ParseFloat(value, 64); err != nil {
			return fail("not a number")
		}
	case InputPhone:
		digits := 0
		for _, r := range value {
			switch {
			case r >= '0' && r <= '9':
				digits++
			case strings.ContainsRune("+-(). ", r):
			default:
				return fail("unexpected character in phone number")
			}
		}
		if digits < minPhoneDigits {
			return fail("phone number is too short")
		}
	case InputSelect:
		if len(d.Options) == 0 {
			return nil
		}
		for _, opt := range d.Options {
			if opt == value {
				return nil
			}
		}
		return fail("not one of the available options")
	}
	return nil
}
