package dto

import (
	"html"
	"reflect"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// MaxUserIDLength bounds user ids taken from the path.
const MaxUserIDLength = 64

// User ids, trigger refs and gateway references share one alphabet.
var identifierRe = regexp.MustCompile(`^[a-zA-Z0-9_.\-]+$`)

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("safe_id", func(fl validator.FieldLevel) bool {
			return identifierRe.MatchString(fl.Field().String())
		})
	}
}

// ValidUserID is the path-parameter form of the safe_id binding rule.
func ValidUserID(id string) bool {
	return id != "" && len(id) <= MaxUserIDLength && identifierRe.MatchString(id)
}

// SanitizeStruct trims and HTML-escapes the string and *string fields of a
// request struct so free text such as a trigger label is stored inert.
func SanitizeStruct(v any) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.Elem().Kind() != reflect.Struct {
		return
	}
	rv = rv.Elem()
	for i := range rv.NumField() {
		f := rv.Field(i)
		if f.Kind() == reflect.Pointer && !f.IsNil() {
			f = f.Elem()
		}
		if f.Kind() == reflect.String && f.CanSet() {
			f.SetString(html.EscapeString(strings.TrimSpace(f.String())))
		}
	}
}
