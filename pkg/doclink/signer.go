package doclink

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// StreamRoute 文档流式下载路由，凭证作为最后一段路径
const StreamRoute = "/api/documents/stream/"

const (
	// DefaultTTL 默认链接有效期
	DefaultTTL = 30 * time.Minute
	// DefaultRole 默认访问角色
	DefaultRole = "viewer"
)

// SignerConfig 定义链接签名器的配置
type SignerConfig struct {
	SecretKey   string        `yaml:"secret-key"`   // 签名密钥，与流式下载端共享
	BaseURL     string        `yaml:"base-url"`     // 链接前缀，为空时生成相对链接
	DefaultTTL  time.Duration `yaml:"default-ttl"`  // 默认有效期
	DefaultRole string        `yaml:"default-role"` // 未指定角色时使用
}

// Signer 定义文档链接签发接口
type Signer interface {
	Issue(documentPath, subjectID, role string, ttl time.Duration) (string, error)
	Verify(rawURL string) (*Claims, error)
	DefaultTTL() time.Duration
	DefaultRole() string
}

// signer 实现 Signer 接口
type signer struct {
	config SignerConfig
	now    func() time.Time
}

// Option 签名器选项
type Option func(*signer)

// WithClock 替换签名器使用的时钟
func WithClock(now func() time.Time) Option {
	return func(s *signer) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSigner 创建一个新的 Signer 实例
// 每个实例持有自己的密钥，多个实例之间互不影响
func NewSigner(cfg SignerConfig, opts ...Option) Signer {
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = DefaultTTL
	}
	if cfg.DefaultRole == "" {
		cfg.DefaultRole = DefaultRole
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	s := &signer{config: cfg, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue 签发文档链接
func (s *signer) Issue(documentPath, subjectID, role string, ttl time.Duration) (string, error) {
	if strings.TrimSpace(documentPath) == "" {
		return "", errors.Wrap(ErrInvalidInput, "document_path is required")
	}
	if strings.TrimSpace(subjectID) == "" {
		return "", errors.Wrap(ErrInvalidInput, "subject_id is required")
	}
	if role == "" {
		role = s.config.DefaultRole
	}
	if ttl <= 0 {
		ttl = s.config.DefaultTTL
	}
	if s.config.SecretKey == "" {
		return "", errors.Wrap(ErrSignerFailure, "signing secret is not configured")
	}

	claims := &Claims{
		DocumentPath: documentPath,
		Role:         role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectID,
			ExpiresAt: jwt.NewNumericDate(s.now().Add(ttl)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.config.SecretKey))
	if err != nil {
		return "", errors.Wrapf(ErrSignerFailure, "sign credential: %v", err)
	}

	return s.config.BaseURL + StreamRoute + token, nil
}

// Verify 校验链接签名与有效期，与流式下载端的校验一致
func (s *signer) Verify(rawURL string) (*Claims, error) {
	token, ok := TokenFromURL(rawURL)
	if !ok {
		return nil, errors.Wrap(ErrUnparsableCredential, "link does not carry a three-segment credential")
	}
	if s.config.SecretKey == "" {
		return nil, errors.Wrap(ErrSignerFailure, "signing secret is not configured")
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.SecretKey), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithPaddingAllowed(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if err := claims.validate(); err != nil {
		return nil, err
	}

	return claims, nil
}

// DefaultTTL 获取默认有效期
func (s *signer) DefaultTTL() time.Duration {
	return s.config.DefaultTTL
}

// DefaultRole 获取默认角色
func (s *signer) DefaultRole() string {
	return s.config.DefaultRole
}
