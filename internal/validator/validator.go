package validator

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"idlemine/internal/models"
	"idlemine/internal/money"

	"github.com/shopspring/decimal"
)

const (
	DefaultLimit    = 50
	MaxLimit        = 200
	MaxReasonLength = 500
	DateLayout      = "2006-01-02"
)

var idRegex = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

func ValidateID(field, id string) error {
	if !idRegex.MatchString(id) {
		return models.ErrValidation.WithMessage("%s must be 1-64 characters of letters, digits, '-' or '_'", field)
	}
	return nil
}

func ParseMachineType(raw string) (models.MachineType, error) {
	machineType := models.MachineType(strings.ToLower(strings.TrimSpace(raw)))
	if !machineType.Valid() {
		return "", models.ErrValidation.WithMessage("unknown machine type %q", raw)
	}
	return machineType, nil
}

func ParseResource(raw string) (models.Resource, error) {
	resource := models.Resource(strings.ToLower(strings.TrimSpace(raw)))
	if !resource.Valid() {
		return "", models.ErrValidation.WithMessage("unknown resource %q", raw)
	}
	return resource, nil
}

func ValidateQuantity(qty int64) error {
	if qty <= 0 {
		return models.ErrValidation.WithMessage("quantity must be positive")
	}
	return nil
}

// ParseGameAmount accepts a positive amount with at most four decimals.
func ParseGameAmount(field, raw string) (decimal.Decimal, error) {
	amount, err := money.ParseGame(raw)
	if err != nil {
		return decimal.Zero, models.ErrValidation.WithMessage("%s: %v", field, err)
	}
	return amount, nil
}

// ParseRevenue parses a non-negative cash amount into minor units.
func ParseRevenue(raw string) (int64, error) {
	minor, err := money.ParseMinor(raw)
	if err != nil {
		return 0, models.ErrValidation.WithMessage("revenue: %v", err)
	}
	if minor < 0 {
		return 0, models.ErrValidation.WithMessage("revenue must not be negative")
	}
	return minor, nil
}

// ParseDate reads a calendar day as midnight in loc.
func ParseDate(raw string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	date, err := time.ParseInLocation(DateLayout, strings.TrimSpace(raw), loc)
	if err != nil {
		return time.Time{}, models.ErrValidation.WithMessage("date must be formatted as %s", DateLayout)
	}
	return date, nil
}

func ValidateReason(reason string) error {
	trimmed := strings.TrimSpace(reason)
	if trimmed == "" {
		return models.ErrValidation.WithMessage("reason is required")
	}
	if len(trimmed) > MaxReasonLength {
		return models.ErrValidation.WithMessage("reason must be at most %d characters", MaxReasonLength)
	}
	return nil
}

// ParsePage reads limit and offset query values. Empty values fall back to
// DefaultLimit and zero.
func ParsePage(rawLimit, rawOffset string) (int, int, error) {
	limit := DefaultLimit
	if rawLimit != "" {
		parsed, err := strconv.Atoi(rawLimit)
		if err != nil || parsed <= 0 || parsed > MaxLimit {
			return 0, 0, models.ErrValidation.WithMessage("limit must be between 1 and %d", MaxLimit)
		}
		limit = parsed
	}
	offset := 0
	if rawOffset != "" {
		parsed, err := strconv.Atoi(rawOffset)
		if err != nil || parsed < 0 {
			return 0, 0, models.ErrValidation.WithMessage("offset must be a non-negative integer")
		}
		offset = parsed
	}
	return limit, offset, nil
}
