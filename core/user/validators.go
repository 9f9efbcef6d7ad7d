package user

import (
	"fmt"
	"unicode"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/StephenSouth13/moveup/core"
)

var (
	// password policy
	pwdMinLen     = 8
	pwdPolicyTag  = "pwdpolicy"
	pwdMinLenText = fmt.Sprintf("password must contain at least %d characters", pwdMinLen)
	pwdNoSpace    = "password must not contain whitespace"
	pwdNotAllNum  = "password cannot be entirely numeric"
)

func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(pwdPolicyTag, pwdPolicyValidation)
	_ = validate.RegisterTranslation(
		pwdPolicyTag, translator,
		func(t ut.Translator) error { return t.Add(pwdPolicyTag, "{0}", true) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(pwdPolicyTag, PasswordPolicyError(fe.Value().(string)))
			return s
		},
	)
}

// PasswordPolicyError returns the first broken rule of the password policy, or "":
// - minLen: 8
// - no whitespace
// - not all numeric
func PasswordPolicyError(pwd string) string {
	if len([]rune(pwd)) < pwdMinLen {
		return pwdMinLenText
	}
	var digitCount int
	for _, char := range pwd {
		if unicode.IsSpace(char) {
			return pwdNoSpace
		}
		if unicode.IsDigit(char) {
			digitCount++
		}
	}
	if digitCount == len([]rune(pwd)) {
		return pwdNotAllNum
	}
	return ""
}

func pwdPolicyValidation(fl validator.FieldLevel) bool {
	return PasswordPolicyError(fl.Field().String()) == ""
}

// CheckPassword applies the password policy outside of struct validation (admin CLI).
func CheckPassword(pwd string) error {
	if msg := PasswordPolicyError(pwd); msg != "" {
		return core.NewValidationError(nil, core.FieldError{Field: "password", Error: msg})
	}
	return nil
}
