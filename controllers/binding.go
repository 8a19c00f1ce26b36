package controllers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/adityajain-27/medical-ai-sub000/security"
)

const invalidInput = "Invalid input data"

// fieldMessages maps a failing binding rule to the message sent back. Keys
// are "Field.tag" or just "Field" to cover every rule on that field.
type fieldMessages map[string]string

func (m fieldMessages) lookup(fe validator.FieldError) (string, bool) {
	if msg, ok := m[fe.Field()+"."+fe.Tag()]; ok {
		return msg, true
	}
	msg, ok := m[fe.Field()]
	return msg, ok
}

// bindJSON binds the request body into dst and runs its binding tags. On
// failure it replies 400 and returns false.
func bindJSON(c *gin.Context, dst interface{}, messages fieldMessages) bool {
	err := c.ShouldBindJSON(dst)
	if err == nil {
		return true
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		security.SendValidationError(c, invalidInput, err.Error())
		return false
	}
	message := ""
	fields := make([]gin.H, 0, len(verrs))
	for _, fe := range verrs {
		if message == "" {
			if msg, ok := messages.lookup(fe); ok {
				message = msg
			}
		}
		field := gin.H{"field": fe.Field(), "rule": fe.Tag()}
		if fe.Param() != "" {
			field["param"] = fe.Param()
		}
		fields = append(fields, field)
	}
	if message == "" {
		message = invalidInput
	}
	security.SendValidationError(c, message, fields)
	return false
}
