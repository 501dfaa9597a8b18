package model

// Evaluation reasons reported with every resolved value.
const (
	StaticReason         = "STATIC"
	TargetingMatchReason = "TARGETING_MATCH"
	DefaultReason        = "DEFAULT"
	DisabledReason       = "DISABLED"
	ErrorReason          = "ERROR"
)

// Error codes returned by evaluators, used as error messages.
const (
	FlagNotFoundErrorCode  = "FLAG_NOT_FOUND"
	TypeMismatchErrorCode  = "TYPE_MISMATCH"
	ParseErrorCode         = "PARSE_ERROR"
	GeneralErrorCode       = "GENERAL"
	VariantNotFoundErrCode = "VARIANT_NOT_FOUND"
)
