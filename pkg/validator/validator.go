// Package validator 为 gin 绑定提供带翻译的参数校验
package validator

import (
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/locales/en"
	"github.com/go-playground/locales/zh"
	ut "github.com/go-playground/universal-translator"
	validatorV10 "github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	zh_translations "github.com/go-playground/validator/v10/translations/zh"
	"github.com/pkg/errors"
)

// CustomValidator 实现 binding.StructValidator
// 校验错误中的字段名使用 json tag，便于客户端对应
type CustomValidator struct {
	once     sync.Once
	validate *validatorV10.Validate
}

var _ binding.StructValidator = (*CustomValidator)(nil)

// NewCustomValidator 创建校验器
func NewCustomValidator() *CustomValidator {
	return &CustomValidator{}
}

// ValidateStruct 校验结构体，非结构体直接通过
func (v *CustomValidator) ValidateStruct(obj any) error {
	if kindOfData(obj) != reflect.Struct {
		return nil
	}
	v.lazyinit()
	return v.validate.Struct(obj)
}

// Engine 返回底层校验引擎
func (v *CustomValidator) Engine() any {
	v.lazyinit()
	return v.validate
}

func (v *CustomValidator) lazyinit() {
	v.once.Do(func() {
		v.validate = validatorV10.New()
		v.validate.SetTagName("binding")
		v.validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
}

func kindOfData(data any) reflect.Kind {
	value := reflect.ValueOf(data)
	kind := value.Kind()
	if kind == reflect.Pointer {
		kind = value.Elem().Kind()
	}
	return kind
}

// NewTranslator 创建中英文翻译器并注册默认的校验错误翻译
func NewTranslator(v *CustomValidator) (*ut.UniversalTranslator, error) {
	validate := v.Engine().(*validatorV10.Validate)

	uni := ut.New(en.New(), en.New(), zh.New())

	enTran, _ := uni.GetTranslator("en")
	if err := en_translations.RegisterDefaultTranslations(validate, enTran); err != nil {
		return nil, errors.Wrap(err, "register en translations")
	}
	zhTran, _ := uni.GetTranslator("zh")
	if err := zh_translations.RegisterDefaultTranslations(validate, zhTran); err != nil {
		return nil, errors.Wrap(err, "register zh translations")
	}
	return uni, nil
}

// Setup 替换 gin 默认校验器并返回翻译器
func Setup() (*ut.UniversalTranslator, error) {
	v := NewCustomValidator()
	binding.Validator = v
	return NewTranslator(v)
}
