package models

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"feria/pkg/document"
	dErrors "feria/pkg/domain-errors"
)

// Wire names of the submission fields.
const (
	FieldTaxID        = "nit"
	FieldCompanyName  = "nombre_empresa"
	FieldContactEmail = "email_contacto"
	FieldContactPhone = "telefono_contacto"
	FieldPayload      = "datos_registro"
)

var (
	emailPattern = regexp.MustCompile(`^[a-zA-Z0-9_.+-]+@[a-zA-Z0-9-]+\.[a-zA-Z0-9-.]+$`)
	phonePattern = regexp.MustCompile(`^\d{10}$`)
)

// Submission is a validated registration form. Data keeps the complete payload
// exactly as submitted, including fields validation never looks at.
type Submission struct {
	TaxID        string            `json:"nit" validate:"min=3"`
	CompanyName  string            `json:"nombre_empresa" validate:"min=3,max=100"`
	ContactEmail string            `json:"email_contacto" validate:"contact_email"`
	ContactPhone string            `json:"telefono_contacto" validate:"phone10"`
	Data         document.Document `json:"-" validate:"-"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	mustRegister(v, "contact_email", func(fl validator.FieldLevel) bool {
		return emailPattern.MatchString(fl.Field().String())
	})
	mustRegister(v, "phone10", func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(fl.Field().String())
	})
	return v
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register validation %s: %v", tag, err))
	}
}

// ParseSubmission decodes and validates a raw registration payload.
//
// A missing nit reads as the empty string and is then rejected by the
// length rule; the other contact fields must be present. All failures are
// validation errors naming the offending field.
func ParseSubmission(raw []byte) (*Submission, error) {
	doc, err := document.Parse(raw)
	if errors.Is(err, document.ErrTooDeep) {
		return nil, dErrors.NewField(dErrors.CodeValidation, FieldPayload,
			fmt.Sprintf("payload nesting exceeds %d levels", document.MaxDepth))
	}
	if err != nil {
		return nil, dErrors.NewField(dErrors.CodeValidation, FieldPayload, "payload is not valid JSON")
	}
	if doc.Root().Kind() != document.Object {
		return nil, dErrors.NewField(dErrors.CodeValidation, FieldPayload, "payload must be a JSON object")
	}

	sub := &Submission{Data: doc}
	if sub.TaxID, err = stringField(doc, FieldTaxID, false); err != nil {
		return nil, err
	}
	if sub.CompanyName, err = stringField(doc, FieldCompanyName, true); err != nil {
		return nil, err
	}
	if sub.ContactEmail, err = stringField(doc, FieldContactEmail, true); err != nil {
		return nil, err
	}
	if sub.ContactPhone, err = stringField(doc, FieldContactPhone, true); err != nil {
		return nil, err
	}
	if err := sub.Validate(); err != nil {
		return nil, err
	}
	return sub, nil
}

// Validate applies the field rules to an already decoded submission.
func (s *Submission) Validate() error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return dErrors.Wrap(err, dErrors.CodeValidation, "invalid submission")
	}
	fe := verrs[0]
	return dErrors.NewField(dErrors.CodeValidation, fe.Field(), fe.Field()+" "+ruleMessage(fe))
}

func ruleMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "min":
		return "must be at least " + fe.Param() + " characters"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "contact_email":
		return "must be a valid email address"
	case "phone10":
		return "must be exactly 10 digits"
	default:
		return "is invalid"
	}
}

func stringField(doc document.Document, key string, required bool) (string, error) {
	node, ok := doc.Root().Get(key)
	if !ok {
		if required {
			return "", dErrors.NewField(dErrors.CodeValidation, key, key+" is required")
		}
		return "", nil
	}
	s, ok := node.AsString()
	if !ok {
		return "", dErrors.NewField(dErrors.CodeValidation, key, key+" must be a string")
	}
	return s, nil
}
