package handlers

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/tbourn/go-xp-backend/internal/services"
)

var registerOnce sync.Once

// RegisterValidators adds the evm_address and tx_hash tags to gin's
// validator engine. Safe to call more than once.
func RegisterValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = v.RegisterValidation("evm_address", func(fl validator.FieldLevel) bool {
			return services.NormalizeAddress(fl.Field().String()) != ""
		})
		_ = v.RegisterValidation("tx_hash", func(fl validator.FieldLevel) bool {
			return services.IsTxHash(strings.ToLower(fl.Field().String()))
		})
	})
}

// bindMessage turns a binding error into a short client-facing message
// naming the offending fields.
func bindMessage(err error) string {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return "malformed JSON body"
	}
	parts := make([]string, 0, len(ve))
	for _, fe := range ve {
		switch fe.Tag() {
		case "required":
			parts = append(parts, fe.Field()+" is required")
		case "evm_address":
			parts = append(parts, fe.Field()+" must be an EVM address")
		case "tx_hash":
			parts = append(parts, fe.Field()+" must be 0x + 64 hex chars")
		case "oneof":
			parts = append(parts, fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param()))
		default:
			parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}
