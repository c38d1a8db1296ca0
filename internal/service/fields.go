package service

import (
	"strings"

	"github.com/samber/lo"

	"clicktrack/internal/domain"
	apperrors "clicktrack/pkg/errors"
)

// splitFields parses a comma separated list into lowercase canonical names,
// mapping the legacy created_at alias to clicked_at
func splitFields(raw string) []string {
	parts := lo.Map(strings.Split(raw, ","), func(p string, _ int) string {
		return strings.ToLower(strings.TrimSpace(p))
	})
	parts = lo.Compact(parts)
	return lo.Map(parts, func(p string, _ int) string {
		if p == domain.LegacyFieldCreatedAt {
			return domain.FieldClickedAt
		}
		return p
	})
}

// ParseFieldsStrict validates a fields list against the allow-list. Unknown
// names fail with invalid_fields. An empty list means every field.
func ParseFieldsStrict(raw string) ([]string, error) {
	parts := splitFields(raw)
	if len(parts) == 0 {
		return domain.AllowedFields, nil
	}

	invalid := lo.Reject(parts, func(f string, _ int) bool {
		return lo.Contains(domain.AllowedFields, f)
	})
	if len(invalid) > 0 {
		return nil, apperrors.NewValidationError(apperrors.CodeInvalidFields,
			"Invalid fields: "+strings.Join(lo.Uniq(invalid), ", ")).
			WithDetails(map[string]interface{}{"allowed": domain.AllowedFields})
	}
	return lo.Uniq(parts), nil
}

// ParseFieldsLenient drops unknown names and falls back to every field when
// nothing valid remains
func ParseFieldsLenient(raw string) []string {
	fields := lo.Uniq(lo.Filter(splitFields(raw), func(f string, _ int) bool {
		return lo.Contains(domain.AllowedFields, f)
	}))
	if len(fields) == 0 {
		return domain.AllowedFields
	}
	return fields
}
