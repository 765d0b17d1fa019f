// Package doclink issues and inspects signed document links
// Package doclink 签发并解析带签名的文档链接
package doclink

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// Error kinds reported to collaborators
// 对外暴露的错误类型
const (
	KindInvalidInput         = "InvalidInput"
	KindUnparsableCredential = "UnparsableCredential"
	KindSignerFailure        = "SignerFailure"
	KindCancelled            = "Cancelled"
)

var (
	// ErrInvalidInput 签发参数为空或格式错误
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnparsableCredential 凭证无法解析
	ErrUnparsableCredential = errors.New("unparsable credential")
	// ErrSignerFailure 签名器配置错误或签名失败
	ErrSignerFailure = errors.New("signer failure")
)

// ErrorKind maps an error to its reported kind
// ErrorKind 将错误映射为对外的错误类型
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	case errors.Is(err, ErrUnparsableCredential):
		return KindUnparsableCredential
	case errors.Is(err, ErrSignerFailure):
		return KindSignerFailure
	default:
		return KindSignerFailure
	}
}

// Claims is the fixed claim set embedded in every link: {exp, document_path, sub, role}
// Claims 链接内嵌的固定声明集合
type Claims struct {
	DocumentPath string `json:"document_path"`
	Role         string `json:"role"`
	jwt.RegisteredClaims
}

// SubjectID returns the requesting subject
func (c *Claims) SubjectID() string {
	return c.Subject
}

// validate rejects claim sets that do not match the schema
func (c *Claims) validate() error {
	if c.DocumentPath == "" {
		return errors.Wrap(ErrUnparsableCredential, "document_path claim missing")
	}
	if c.Subject == "" {
		return errors.Wrap(ErrUnparsableCredential, "sub claim missing")
	}
	return nil
}

// claimParser decodes segments without verifying signatures.
// Padding is allowed so that plain base64 claim segments also decode.
var claimParser = jwt.NewParser(jwt.WithPaddingAllowed())

// TokenFromURL extracts the <header>.<claims>.<signature> credential from the
// final path segment of a link URL
// TokenFromURL 从链接最后一段路径中提取三段式凭证
func TokenFromURL(rawURL string) (string, bool) {
	s := strings.TrimSpace(rawURL)
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		s = s[:i]
	}
	seg := s[strings.LastIndex(s, "/")+1:]

	parts := strings.Split(seg, ".")
	if len(parts) != 3 {
		return "", false
	}
	for _, p := range parts {
		if p == "" {
			return "", false
		}
	}
	return seg, true
}

// decodeRaw decodes the claims segment as-is, with no schema checks
func decodeRaw(rawURL string) (*Claims, error) {
	token, ok := TokenFromURL(rawURL)
	if !ok {
		return nil, errors.Wrap(ErrUnparsableCredential, "link does not carry a three-segment credential")
	}

	segment := token[strings.Index(token, ".")+1 : strings.LastIndex(token, ".")]
	payload, err := claimParser.DecodeSegment(segment)
	if err != nil {
		return nil, errors.Wrapf(ErrUnparsableCredential, "decode claims segment: %v", err)
	}

	claims := &Claims{}
	if err := json.Unmarshal(payload, claims); err != nil {
		return nil, errors.Wrapf(ErrUnparsableCredential, "decode claims json: %v", err)
	}
	return claims, nil
}

// DecodeClaims reads the claim set of a link without verifying its signature.
// The streaming endpoint is the trust boundary, not this decoder.
// DecodeClaims 读取链接中的声明（不校验签名）
func DecodeClaims(rawURL string) (*Claims, error) {
	claims, err := decodeRaw(rawURL)
	if err != nil {
		return nil, err
	}
	if err := claims.validate(); err != nil {
		return nil, err
	}
	return claims, nil
}

// ExpiresAt returns the embedded exp of a link
// ExpiresAt 返回链接内嵌的过期时间
func ExpiresAt(rawURL string) (time.Time, bool) {
	claims, err := decodeRaw(rawURL)
	if err != nil || claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// IsExpired reports whether exp is missing, unreadable or not after now
// IsExpired exp 缺失、无法解析或已过期时返回 true
func IsExpired(rawURL string, now time.Time) bool {
	return ExpiresWithin(rawURL, now, 0)
}

// ExpiresWithin reports whether the link expires within window of now.
// Anything that cannot be read as still valid counts as expiring.
// ExpiresWithin 判断链接是否将在 window 内过期，无法解析时视为即将过期
func ExpiresWithin(rawURL string, now time.Time, window time.Duration) bool {
	exp, ok := ExpiresAt(rawURL)
	if !ok {
		return true
	}
	return !now.Add(window).Before(exp)
}
