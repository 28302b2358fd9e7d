package filter

import (
	"encoding/base64"
	"encoding/json"
)

// DecodeToken decodes the opaque `where` token carried on the wire: a
// base64url encoding (padded or unpadded) of the JSON expression tree.
func DecodeToken(token string) (*Expression, error) {
	if token == "" {
		return nil, &DecodeError{Reason: "empty filter token"}
	}
	data, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		data, err = base64.RawURLEncoding.DecodeString(token)
	}
	if err != nil {
		return nil, &DecodeError{Reason: "filter token is not valid base64url", cause: err}
	}
	var expr Expression
	if err := json.Unmarshal(data, &expr); err != nil {
		if _, ok := err.(*DecodeError); ok {
			return nil, err
		}
		return nil, &DecodeError{Reason: "filter token is not valid JSON", cause: err}
	}
	return &expr, nil
}

// EncodeToken renders an expression as a transport token. Exists for clients
// and tests; the server only decodes.
func EncodeToken(expr *Expression) (string, error) {
	data, err := json.Marshal(expr)
	if err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(data), nil
}
