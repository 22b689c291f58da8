package api

import (
	"errors"
	"reflect"
	"sort"
	"strings"
	"time"

	ptbr "github.com/go-playground/locales/pt_BR"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	ptbrtranslations "github.com/go-playground/validator/v10/translations/pt_BR"

	"github.com/okian/membros/internal/domain/period"
)

// custom validation tags & texts
const (
	tagDDMMYYYY  = "ddmmyyyy"
	textDDMMYYYY = "{0} deve ser uma data válida no formato dd/MM/aaaa"

	tagISODate  = "isodate"
	textISODate = "{0} deve ser uma data válida no formato aaaa-MM-dd"
)

// ValidationError lists translated messages per field.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	msgs := make([]string, 0, len(keys))
	for _, k := range keys {
		msgs = append(msgs, e.Fields[k])
	}
	return strings.Join(msgs, "; ")
}

// Unwrap classifies validation failures as bad requests.
func (e *ValidationError) Unwrap() error { return ErrBadRequest }

// Validator validates request payloads and reports errors in Brazilian
// Portuguese.
type Validator struct {
	validate   *validator.Validate
	translator ut.Translator
}

// NewValidator builds a Validator with the custom date tags registered.
func NewValidator() *Validator {
	validate := validator.New(validator.WithRequiredStructEnabled())

	locale := ptbr.New()
	uni := ut.New(locale, locale)
	translator, _ := uni.GetTranslator(locale.Locale())
	_ = ptbrtranslations.RegisterDefaultTranslations(validate, translator)

	// Use JSON tag names for errors instead of Go struct names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = validate.RegisterValidation(tagDDMMYYYY, dateValidation(period.ParseDate))
	_ = validate.RegisterValidation(tagISODate, dateValidation(period.ParseISODate))

	v := &Validator{validate: validate, translator: translator}
	v.registerTranslation(tagDDMMYYYY, textDDMMYYYY)
	v.registerTranslation(tagISODate, textISODate)
	return v
}

func (v *Validator) registerTranslation(tag, text string) {
	_ = v.validate.RegisterTranslation(
		tag, v.translator,
		func(t ut.Translator) error { return t.Add(tag, text, true) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(tag, fe.Field())
			return s
		},
	)
}

// Struct validates s. Field failures come back as *ValidationError.
func (v *Validator) Struct(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Translate(v.translator)
	}
	return &ValidationError{Fields: fields}
}

func dateValidation(parse func(string, *time.Location) (time.Time, error)) validator.Func {
	return func(fl validator.FieldLevel) bool {
		s, ok := fl.Field().Interface().(string)
		if !ok {
			return false
		}
		_, err := parse(s, time.UTC)
		return err == nil
	}
}
