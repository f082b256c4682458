// Package handlers contains the HTTP handlers for every AgentWallet
// resource. A handler is an Adapter: it binds a request, calls straight
// into the application-layer service or store that owns the operation,
// and translates the result into an HTTP response via common.
package handlers

import (
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/agentwallet/core/internal/adapters/http/common"
)

var setupOnce sync.Once

// SetupValidator registers AgentWallet's custom binding tags on gin's
// validator engine exactly once.
func SetupValidator() {
	setupOnce.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			v.RegisterTagNameFunc(func(fld reflect.StructField) string {
				name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
				if name == "-" {
					return ""
				}
				return name
			})
			_ = v.RegisterValidation("money_amount", validateMoneyAmount)
			_ = v.RegisterValidation("currency_code", validateCurrencyCode)
		}
	})
}

var moneyPattern = regexp.MustCompile(`^\d+(\.\d{1,2})?$`)

func validateMoneyAmount(fl validator.FieldLevel) bool {
	return moneyPattern.MatchString(fl.Field().String())
}

func validateCurrencyCode(fl validator.FieldLevel) bool {
	code := fl.Field().String()
	if len(code) != 3 {
		return false
	}
	for _, c := range code {
		if c < 'A' || c > 'Z' {
			return false
		}
	}
	return true
}

// HandleValidationErrors converts a gin/validator bind error into the
// standard field-error response.
func HandleValidationErrors(c *gin.Context, err error) {
	var fieldErrors []common.FieldError

	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		for _, fe := range validationErrors {
			fieldErrors = append(fieldErrors, common.FieldError{
				Field:   fe.Field(),
				Message: validationMessage(fe),
				Code:    fe.Tag(),
			})
		}
	}

	if len(fieldErrors) == 0 {
		common.BadRequestResponse(c, "invalid request body: "+err.Error())
		return
	}
	common.ValidationErrorResponse(c, fieldErrors)
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "uuid":
		return "invalid UUID format"
	case "min":
		return "value is too short (minimum: " + fe.Param() + ")"
	case "max":
		return "value is too long (maximum: " + fe.Param() + ")"
	case "len":
		return "value must be exactly " + fe.Param() + " characters"
	case "oneof":
		return "value must be one of: " + fe.Param()
	case "money_amount":
		return "invalid amount format (use a decimal like '100.50')"
	case "currency_code":
		return "invalid currency code (must be 3 uppercase letters)"
	default:
		return "invalid value"
	}
}

// BindJSON binds the request body and writes the error response itself on
// failure, returning whether binding succeeded.
func BindJSON[T any](c *gin.Context, req *T) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		HandleValidationErrors(c, err)
		return false
	}
	return true
}

// BindQuery binds query-string parameters.
func BindQuery[T any](c *gin.Context, req *T) bool {
	if err := c.ShouldBindQuery(req); err != nil {
		HandleValidationErrors(c, err)
		return false
	}
	return true
}

// BindURI binds path parameters.
func BindURI[T any](c *gin.Context, req *T) bool {
	if err := c.ShouldBindUri(req); err != nil {
		HandleValidationErrors(c, err)
		return false
	}
	return true
}

// PaginationParams carries the page/per_page query parameters.
type PaginationParams struct {
	Page    int `form:"page" binding:"omitempty,min=1"`
	PerPage int `form:"per_page" binding:"omitempty,min=1,max=100"`
}

func (p PaginationParams) Offset() int { return (p.Page - 1) * p.PerPage }

// ParsePagination reads page/per_page off the query string, defaulting to
// page 1 / 20 per page.
func ParsePagination(c *gin.Context) PaginationParams {
	params := PaginationParams{Page: 1, PerPage: 20}
	_ = c.ShouldBindQuery(&params)
	if params.Page <= 0 {
		params.Page = 1
	}
	if params.PerPage <= 0 || params.PerPage > 100 {
		params.PerPage = 20
	}
	return params
}

// BuildMeta builds the pagination metadata block for a list response.
func BuildMeta(params PaginationParams, total int) *common.APIMeta {
	totalPages := total / params.PerPage
	if total%params.PerPage > 0 {
		totalPages++
	}
	return &common.APIMeta{Page: params.Page, PerPage: params.PerPage, Total: total, TotalPages: totalPages}
}
