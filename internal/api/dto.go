package api

import "github.com/go-playground/validator/v10"

type validationErrors = validator.ValidationErrors

type AutoRenewRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

type PerformRequest struct {
	PerformData string `json:"perform_data" validate:"required,startswith=0x,hexadecimal"`
}

type WithdrawRequest struct {
	Destination string `json:"destination" validate:"required,max=128"`
	Amount      string `json:"amount" validate:"required,numeric"`
}

type WithdrawAllRequest struct {
	Destination string `json:"destination" validate:"required,max=128"`
}

type FaucetRequest struct {
	Account string `json:"account" validate:"required,max=128"`
	Amount  string `json:"amount" validate:"required,numeric"`
}

var Validate = validator.New()
