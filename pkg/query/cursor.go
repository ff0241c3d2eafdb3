package query

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	bkerrors "github.com/tnijboer/clearskies-aws/pkg/errors"
)

// EncodeNextToken serializes a native DynamoDB continuation token into an
// opaque, URL-safe client token. An absent native token encodes to "".
func EncodeNextToken(nativeToken string) string {
	if nativeToken == "" {
		return ""
	}
	// json.Marshal of a string cannot fail.
	data, _ := json.Marshal(nativeToken)
	return base64.URLEncoding.EncodeToString(data)
}

// DecodeNextToken recovers the native continuation token from a client token.
// Malformed input returns an error; callers on the read path are expected to
// degrade to "no token" rather than fail, so pagination survives tampered or
// stale tokens.
func DecodeNextToken(clientToken string) (string, error) {
	if clientToken == "" {
		return "", nil
	}

	data, err := base64.URLEncoding.DecodeString(clientToken)
	if err != nil {
		return "", fmt.Errorf("%w: token is not valid base64: %v", bkerrors.ErrInvalidPagination, err)
	}

	var nativeToken string
	if err := json.Unmarshal(data, &nativeToken); err != nil {
		return "", fmt.Errorf("%w: token payload is not a serialized token: %v", bkerrors.ErrInvalidPagination, err)
	}
	return nativeToken, nil
}

// ValidatePaginationData checks caller-supplied pagination data: the only
// allowed key is "next_token", it must be present, and it must decode.
func ValidatePaginationData(data map[string]any) error {
	var extra []string
	for key := range data {
		if key != "next_token" {
			extra = append(extra, key)
		}
	}
	if len(extra) > 0 {
		sort.Strings(extra)
		return fmt.Errorf("%w: invalid pagination key(s) %q, only \"next_token\" is allowed",
			bkerrors.ErrInvalidPagination, strings.Join(extra, ","))
	}

	raw, ok := data["next_token"]
	if !ok {
		return fmt.Errorf("%w: \"next_token\" must be specified when setting pagination", bkerrors.ErrInvalidPagination)
	}

	token, ok := raw.(string)
	if !ok || token == "" {
		return fmt.Errorf("%w: \"next_token\" must be a non-empty string", bkerrors.ErrInvalidPagination)
	}
	if _, err := DecodeNextToken(token); err != nil {
		return err
	}
	return nil
}
