package trading

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"tradedesk/internal/model"
)

var pairPattern = regexp.MustCompile(`^[A-Z0-9]{2,12}/[A-Z0-9]{2,12}$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	if err := v.RegisterValidation("pair", func(fl validator.FieldLevel) bool {
		return pairPattern.MatchString(fl.Field().String())
	}); err != nil {
		panic(err)
	}
	return v
}

// TradeIntent is a request to record one simulated trade.
type TradeIntent struct {
	Source     string             `json:"exchange"`
	Symbol     string             `json:"symbol" validate:"required,pair"`
	Side       model.Side         `json:"side" validate:"required,oneof=buy sell"`
	AmountUSD  float64            `json:"amount_usd" validate:"gt=0"`
	Strategy   model.StrategyName `json:"strategy" validate:"omitempty,oneof=manual arbitrage ai_signal hybrid"`
	Confidence float64            `json:"confidence" validate:"gte=0,lte=100"`
}

// Session is the configuration a trading run is started with.
type Session struct {
	Budget    float64 `json:"budget" validate:"gt=0"`
	Strategy  string  `json:"strategy" validate:"required,oneof=arbitrage ai_signal hybrid conservative"`
	RiskLevel string  `json:"risk_level" validate:"required,oneof=low medium high"`
}

// ArbitrageRequest asks for a buy on one source and a sell on another.
type ArbitrageRequest struct {
	Symbol       string  `json:"symbol" validate:"required,pair"`
	BuySource    string  `json:"buy_exchange" validate:"required"`
	SellSource   string  `json:"sell_exchange" validate:"required,nefield=BuySource"`
	PositionSize float64 `json:"position_size" validate:"gt=0"`
}

// Validate checks s against its validate tags and returns a *ValidationError
// for the first failing field.
func Validate(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &ValidationError{Field: fe.Field(), Reason: reason(fe)}
	}
	return &ValidationError{Reason: err.Error()}
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "pair":
		return "must look like BASE/QUOTE"
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte", "lte":
		return "must be between 0 and 100"
	case "nefield":
		return "must differ from buy_exchange"
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
