package gateway

import (
	"encoding/json"
	"sort"
	"strings"
)

// APIError — ошибка ответа API (статус не 2xx) с извлечённым сообщением
// и, для 400 с валидацией, картой поле -> сообщения.
type APIError struct {
	Status  int
	Message string
	Fields  map[string][]string
}

func (e *APIError) Error() string { return e.Message }

// ParseAPIError извлекает сообщение из тела ошибки. Порядок:
// поле detail -> поле error -> карта поле->[сообщения] ("field: msg; field: msg") -> сырое тело.
func ParseAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status, Message: strings.TrimSpace(string(body))}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil || len(raw) == 0 {
		return apiErr
	}
	var s string
	if v, ok := raw["detail"]; ok && json.Unmarshal(v, &s) == nil && s != "" {
		apiErr.Message = s
		return apiErr
	}
	if v, ok := raw["error"]; ok && json.Unmarshal(v, &s) == nil && s != "" {
		apiErr.Message = s
		return apiErr
	}
	// Карта валидации: {"email": ["already exists"], ...}
	fields := make(map[string][]string, len(raw))
	keys := make([]string, 0, len(raw))
	for k, v := range raw {
		var msgs []string
		if err := json.Unmarshal(v, &msgs); err != nil || len(msgs) == 0 {
			continue
		}
		fields[k] = msgs
		keys = append(keys, k)
	}
	if len(fields) == 0 {
		return apiErr
	}
	sort.Strings(keys)
	var parts []string
	for _, k := range keys {
		parts = append(parts, k+": "+strings.Join(fields[k], ", "))
	}
	apiErr.Message = strings.Join(parts, "; ")
	apiErr.Fields = fields
	return apiErr
}
