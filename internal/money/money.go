package money

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// GamePlaces is the fixed precision of fuel and diamond balances.
const GamePlaces int32 = 4

// CashPlaces is the precision of real-money amounts, stored as minor units.
const CashPlaces = 2

var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrTooManyDecimals = errors.New("amount has too many decimal places")
	ErrAmountTooLarge  = errors.New("amount is too large")
)

// maxWholeMinor is the largest whole part whose minor units fit in int64.
const maxWholeMinor = (math.MaxInt64 - 99) / 100

// Floor truncates a non-negative game amount to GamePlaces.
func Floor(value decimal.Decimal) decimal.Decimal {
	return value.RoundFloor(GamePlaces)
}

// ParseGame parses a positive game amount with at most GamePlaces decimals.
func ParseGame(input string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	value, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if value.Exponent() < -GamePlaces && !value.Equal(Floor(value)) {
		return decimal.Zero, ErrTooManyDecimals
	}
	if !value.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	return value, nil
}

// FormatGame renders a game amount with exactly GamePlaces decimals.
func FormatGame(value decimal.Decimal) string {
	return value.StringFixed(GamePlaces)
}

func ParseMinor(input string) (int64, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return 0, ErrInvalidAmount
	}
	sign := int64(1)
	switch trimmed[0] {
	case '-':
		sign = -1
		trimmed = trimmed[1:]
	case '+':
		trimmed = trimmed[1:]
	}
	parts := strings.SplitN(trimmed, ".", 2)
	wholePart := parts[0]
	if wholePart == "" {
		wholePart = "0"
	}
	if !isDigits(wholePart) {
		return 0, ErrInvalidAmount
	}
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if len(fracPart) > CashPlaces {
		return 0, ErrTooManyDecimals
	}
	if fracPart != "" && !isDigits(fracPart) {
		return 0, ErrInvalidAmount
	}
	whole, err := strconv.ParseInt(wholePart, 10, 64)
	if err != nil {
		var numErr *strconv.NumError
		if errors.As(err, &numErr) && errors.Is(numErr.Err, strconv.ErrRange) {
			return 0, ErrAmountTooLarge
		}
		return 0, ErrInvalidAmount
	}
	if whole > maxWholeMinor {
		return 0, ErrAmountTooLarge
	}
	frac := int64(0)
	if len(fracPart) == 1 {
		frac = int64(fracPart[0]-'0') * 10
	} else if len(fracPart) == 2 {
		value, err := strconv.ParseInt(fracPart, 10, 64)
		if err != nil {
			return 0, ErrInvalidAmount
		}
		frac = value
	}
	minor := whole*100 + frac
	return sign * minor, nil
}

func FormatMinor(value int64) string {
	negative := value < 0
	if negative {
		value = -value
	}
	whole := value / 100
	frac := value % 100
	formatted := fmt.Sprintf("%d.%02d", whole, frac)
	if negative {
		return "-" + formatted
	}
	return formatted
}

// FloorMinor scales minor units by a decimal factor and floors the result.
func FloorMinor(minor int64, factor decimal.Decimal) int64 {
	return decimal.NewFromInt(minor).Mul(factor).Floor().IntPart()
}

func isDigits(value string) bool {
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
