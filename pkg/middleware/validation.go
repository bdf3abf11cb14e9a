package middleware

import (
	stderrors "errors"
	"net/http"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/mes-platform/production-service/pkg/errors"
)

var (
	workOrderRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9 ._/\-]{0,63}$`)
	unsafeRegex    = regexp.MustCompile(`[\x00-\x1f<>]`)
)

// Custom binding tags: work_order for work order numbers, safe_string for
// free text that ends up in spreadsheets and logs.
var customValidators = map[string]validator.Func{
	"work_order": func(fl validator.FieldLevel) bool {
		return workOrderRegex.MatchString(fl.Field().String())
	},
	"safe_string": func(fl validator.FieldLevel) bool {
		return !unsafeRegex.MatchString(fl.Field().String())
	},
}

// fieldMessages maps a failed tag to the message shown for the field; tags
// with a parameter get it appended.
var fieldMessages = map[string]string{
	"required":    "is required",
	"min":         "must be at least",
	"max":         "must be at most",
	"gte":         "must be greater than or equal to",
	"lte":         "must be less than or equal to",
	"oneof":       "must be one of:",
	"dive":        "contains an invalid entry",
	"work_order":  "must be a valid work order number",
	"safe_string": "contains invalid characters",
}

var registerOnce sync.Once

// RegisterValidators installs the custom tags on gin's binding engine and
// reports fields by their JSON name
func RegisterValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		for tag, fn := range customValidators {
			_ = v.RegisterValidation(tag, fn)
		}
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
			if name == "" || name == "-" {
				return fld.Name
			}
			return name
		})
	})
}

func fieldMessage(e validator.FieldError) string {
	msg, ok := fieldMessages[e.Tag()]
	if !ok {
		return "is invalid"
	}
	if e.Param() != "" {
		return msg + " " + e.Param()
	}
	return msg
}

// BindAndValidate binds the JSON body into obj. Tag failures come back as a
// validation error with one message per field, anything else as bad request.
func BindAndValidate(c *gin.Context, obj any) *errors.AppError {
	err := c.ShouldBindJSON(obj)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !stderrors.As(err, &verrs) {
		return errors.ErrBadRequest("invalid request body: " + err.Error())
	}
	fields := make(map[string]string, len(verrs))
	for _, e := range verrs {
		fields[e.Field()] = fieldMessage(e)
	}
	return errors.ErrValidationWithFields("validation failed", fields)
}

// InputSanitizer strips null bytes and surrounding whitespace from query values
func InputSanitizer() gin.HandlerFunc {
	return func(c *gin.Context) {
		query := c.Request.URL.Query()
		for _, values := range query {
			for i, v := range values {
				values[i] = strings.TrimSpace(strings.ReplaceAll(v, "\x00", ""))
			}
		}
		c.Request.URL.RawQuery = query.Encode()
		c.Next()
	}
}

// ContentType rejects non-JSON bodies on POST, PUT and PATCH
func ContentType() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch:
			if c.Request.ContentLength > 0 && !strings.HasPrefix(c.GetHeader("Content-Type"), "application/json") {
				AbortWithAppError(c, errors.NewAppError("INVALID_CONTENT_TYPE",
					"Content-Type must be application/json", http.StatusUnsupportedMediaType))
				return
			}
		}
		c.Next()
	}
}
