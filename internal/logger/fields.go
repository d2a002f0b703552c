package logger

import (
	"strings"

	"go.uber.org/zap"
)

const (
	FieldProvider  = "provider"
	FieldModel     = "model"
	FieldRequester = "requester_id"
	FieldCandidate = "candidate_id"
	FieldRequestID = "request_id"
)

// StringField describes a string-valued structured logging field.
type StringField struct {
	Key   string
	Value string
}

// StringFields converts key/value pairs into zap fields, trimming whitespace
// and omitting entries with empty keys or values.
func StringFields(fields ...StringField) []zap.Field {
	result := make([]zap.Field, 0, len(fields))
	for _, field := range fields {
		key := strings.TrimSpace(field.Key)
		if key == "" {
			continue
		}

		value := strings.TrimSpace(field.Value)
		if value == "" {
			continue
		}

		result = append(result, zap.String(key, value))
	}

	return result
}

// WithFields attaches fields to logger, defaulting to a no-op logger when nil.
func WithFields(logger *zap.Logger, fields ...zap.Field) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}

	if len(fields) == 0 {
		return logger
	}

	return logger.With(fields...)
}

// CommonFields describes an upstream provider and model.
func CommonFields(provider, model string) []zap.Field {
	return StringFields(
		StringField{Key: FieldProvider, Value: provider},
		StringField{Key: FieldModel, Value: model},
	)
}

func WithCommonFields(logger *zap.Logger, provider, model string) *zap.Logger {
	return WithFields(logger, CommonFields(provider, model)...)
}

// MatchFields identifies the requester and, when known, the candidate being scored.
func MatchFields(requesterID, candidateID string) []zap.Field {
	return StringFields(
		StringField{Key: FieldRequester, Value: requesterID},
		StringField{Key: FieldCandidate, Value: candidateID},
	)
}

// RequestFields tags entries that belong to one inbound request.
func RequestFields(requestID string) []zap.Field {
	return StringFields(StringField{Key: FieldRequestID, Value: requestID})
}
