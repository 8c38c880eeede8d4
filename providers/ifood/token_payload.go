package ifood

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

type tokenPayload struct {
	AccessToken      string
	RefreshToken     string
	TokenType        string
	ExpiresIn        int64
	ErrorCode        string
	ErrorDescription string
}

type userCodePayload struct {
	UserCode                  string `json:"userCode"`
	AuthorizationCodeVerifier string `json:"authorizationCodeVerifier"`
	VerificationURL           string `json:"verificationUrl"`
	VerificationURLComplete   string `json:"verificationUrlComplete"`
	ExpiresIn                 int64  `json:"expiresIn"`
}

// parseTokenPayload accepts the camelCase JSON the merchant API returns and
// the snake_case or form encodings of generic OAuth servers.
func parseTokenPayload(body []byte, contentType string) (tokenPayload, error) {
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if strings.Contains(contentType, "x-www-form-urlencoded") {
		return parseTokenPayloadForm(body)
	}
	if payload, err := parseTokenPayloadJSON(body); err == nil {
		return payload, nil
	} else if strings.Contains(contentType, "json") {
		return tokenPayload{}, err
	}
	return parseTokenPayloadForm(body)
}

func parseTokenPayloadJSON(body []byte) (tokenPayload, error) {
	if strings.TrimSpace(string(body)) == "" {
		return tokenPayload{}, fmt.Errorf("empty payload")
	}
	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return tokenPayload{}, err
	}
	return tokenPayload{
		AccessToken:      firstString(decoded, "accessToken", "access_token"),
		RefreshToken:     firstString(decoded, "refreshToken", "refresh_token"),
		TokenType:        firstString(decoded, "type", "token_type"),
		ExpiresIn:        firstInt64(decoded, "expiresIn", "expires_in"),
		ErrorCode:        firstString(decoded, "error"),
		ErrorDescription: firstString(decoded, "error_description", "message"),
	}, nil
}

func parseTokenPayloadForm(body []byte) (tokenPayload, error) {
	if strings.TrimSpace(string(body)) == "" {
		return tokenPayload{}, fmt.Errorf("empty payload")
	}
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return tokenPayload{}, err
	}
	read := func(keys ...string) string {
		for _, key := range keys {
			if value := strings.TrimSpace(values.Get(key)); value != "" {
				return value
			}
		}
		return ""
	}
	expiresIn, _ := strconv.ParseInt(read("expiresIn", "expires_in"), 10, 64)
	return tokenPayload{
		AccessToken:      read("accessToken", "access_token"),
		RefreshToken:     read("refreshToken", "refresh_token"),
		TokenType:        read("type", "token_type"),
		ExpiresIn:        expiresIn,
		ErrorCode:        read("error"),
		ErrorDescription: read("error_description"),
	}, nil
}

func firstString(values map[string]any, keys ...string) string {
	for _, key := range keys {
		if value := readAnyString(values[key]); value != "" {
			return value
		}
	}
	return ""
}

func firstInt64(values map[string]any, keys ...string) int64 {
	for _, key := range keys {
		if value := readAnyInt64(values[key]); value != 0 {
			return value
		}
	}
	return 0
}

func readAnyString(value any) string {
	switch typed := value.(type) {
	case string:
		return strings.TrimSpace(typed)
	case json.Number:
		return strings.TrimSpace(typed.String())
	case fmt.Stringer:
		return strings.TrimSpace(typed.String())
	default:
		if value == nil {
			return ""
		}
		return strings.TrimSpace(fmt.Sprint(value))
	}
}

func readAnyInt64(value any) int64 {
	switch typed := value.(type) {
	case int:
		return int64(typed)
	case int64:
		return typed
	case float64:
		return int64(typed)
	case json.Number:
		parsed, err := typed.Int64()
		if err == nil {
			return parsed
		}
		floatParsed, floatErr := typed.Float64()
		if floatErr == nil {
			return int64(floatParsed)
		}
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(typed), 10, 64)
		if err == nil {
			return parsed
		}
	}
	return 0
}

func readAnyBool(value any) (bool, bool) {
	switch typed := value.(type) {
	case bool:
		return typed, true
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(typed))
		return parsed, err == nil
	}
	return false, false
}
