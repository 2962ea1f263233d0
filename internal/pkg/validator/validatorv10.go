package validator

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	enTranslations "github.com/go-playground/validator/v10/translations/en"
	"github.com/shandysiswandi/twofa/internal/pkg/strcase"
)

// ErrTranslatorNotFound is returned when the English translator is missing.
var ErrTranslatorNotFound = errors.New("validator: translator not found")

// patternRules are the string formats of the two-factor inputs. The message
// is a universal-translator template; {0} is the field name.
var patternRules = []struct {
	tag string
	re  *regexp.Regexp
	msg string
}{
	{"otpcode", regexp.MustCompile(`^[0-9]{6}$`), "{0} must be 6 digits"},
	{"backupcode", regexp.MustCompile(`^[0-9]{4}-?[0-9]{4}$`), "{0} must look like 1234-5678"},
}

// V10ValidationError maps snake_case field names to English messages.
type V10ValidationError map[string]string

func (vs V10ValidationError) Error() string {
	if len(vs) == 0 {
		return "validation error"
	}
	b, err := json.Marshal(map[string]string(vs))
	if err != nil {
		return fmt.Sprintf("validation error: %v", err)
	}
	return string(b)
}

// Values returns the field to message map for the HTTP error body.
func (vs V10ValidationError) Values() map[string]string {
	return vs
}

// V10Validator is Validator on go-playground/validator with English messages.
type V10Validator struct {
	validate   *validator.Validate
	translator ut.Translator
}

func NewV10Validator() (*V10Validator, error) {
	v := validator.New(validator.WithRequiredStructEnabled())

	lang := en.New()
	trans, ok := ut.New(lang, lang).GetTranslator("en")
	if !ok {
		return nil, ErrTranslatorNotFound
	}
	if err := enTranslations.RegisterDefaultTranslations(v, trans); err != nil {
		return nil, err
	}

	for _, rule := range patternRules {
		if err := registerPattern(v, trans, rule.tag, rule.re, rule.msg); err != nil {
			return nil, fmt.Errorf("validator: register %s: %w", rule.tag, err)
		}
	}

	return &V10Validator{validate: v, translator: trans}, nil
}

// Validate returns V10ValidationError when a rule fails; other errors, such
// as passing a non-struct, come back unchanged.
func (v *V10Validator) Validate(data any) error {
	err := v.validate.Struct(data)
	if err == nil {
		return nil
	}

	var fes validator.ValidationErrors
	if !errors.As(err, &fes) {
		return err
	}

	out := make(V10ValidationError, len(fes))
	for _, fe := range fes {
		out[strcase.ToLowerSnake(fe.Field())] = fe.Translate(v.translator)
	}
	return out
}

func registerPattern(v *validator.Validate, trans ut.Translator, tag string, re *regexp.Regexp, msg string) error {
	err := v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
		s, ok := fl.Field().Interface().(string)
		return ok && re.MatchString(s)
	})
	if err != nil {
		return err
	}

	return v.RegisterTranslation(tag, trans,
		func(t ut.Translator) error { return t.Add(tag, msg, false) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, err := t.T(fe.Tag(), fe.Field())
			if err != nil {
				return fe.Error()
			}
			return s
		},
	)
}
