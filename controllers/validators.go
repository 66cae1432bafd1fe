package controllers

import (
	"slices"

	"databoard/models"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// RegisterValidators adds the domain enum tags used in request bindings.
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return nil
	}
	oneOf := func(allowed []string) validator.Func {
		return func(fl validator.FieldLevel) bool {
			return slices.Contains(allowed, fl.Field().String())
		}
	}
	for tag, allowed := range map[string][]string{
		"charttype":    models.ChartTypes,
		"templatetype": models.TemplateTypes,
		"role":         {models.RoleUser, models.RoleAdmin},
	} {
		if err := v.RegisterValidation(tag, oneOf(allowed)); err != nil {
			return err
		}
	}
	return nil
}
