package account

import (
	"fmt"
	"strings"
	"unicode"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/trezcool/peereval/core"
)

var (
	// password policy
	pwdMinLen     = 6
	pwdMinLenTag  = "pwdminlen"
	pwdMinLenText string

	pwdNoSpaceTag  = "pwdnospace"
	pwdNoSpaceText = "password must not contain whitespace"

	pwdMaxSim      = .7
	pwdAttrSimTag  = "pwdtoosim"
	pwdAttrSimText = "password cannot be similar to account attributes"
)

// InitValidators registers the account validators & their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator, minPwdLen int) {
	if minPwdLen > 0 {
		pwdMinLen = minPwdLen
	}
	pwdMinLenText = fmt.Sprintf("password must be at least %d characters long", pwdMinLen)

	validate.RegisterStructValidation(accountStructValidation, NewAccount{}, ResetPassword{})
	core.RegisterCustomTranslation(validate, translator, pwdMinLenTag, pwdMinLenText)
	core.RegisterCustomTranslation(validate, translator, pwdNoSpaceTag, pwdNoSpaceText)
	core.RegisterCustomTranslation(validate, translator, pwdAttrSimTag, pwdAttrSimText)
}

// accountStructValidation does struct level validation on NewAccount and ResetPassword structs.
func accountStructValidation(sl validator.StructLevel) {
	reporter := func(pwd string) func(tag string) {
		return func(tag string) { sl.ReportError(pwd, "password", "Password", tag, "") }
	}

	switch data := sl.Current().Interface().(type) {
	case NewAccount:
		if tag := checkPassword(data.Password, data.Username, data.Email, data.FirstName+" "+data.LastName); tag != "" {
			reporter(data.Password)(tag)
		}
	case ResetPassword:
		if tag := checkPassword(data.Password); tag != "" {
			reporter(data.Password)(tag)
		}
	}
}

// checkPassword applies the password policy and returns the tag of the first violated rule:
// - minLen
// - no whitespace
// - no similarity with account attributes
func checkPassword(pwd string, attrs ...string) string {
	if pwd == "" {
		return "" // `required` reports it
	}
	if len([]rune(pwd)) < pwdMinLen {
		return pwdMinLenTag
	}
	for _, char := range pwd {
		if unicode.IsSpace(char) {
			return pwdNoSpaceTag
		}
	}
	if IsTooSimilar(pwd, attrs...) {
		return pwdAttrSimTag
	}
	return ""
}

// IsTooSimilar reports whether pwd is too close to one of the account attributes.
func IsTooSimilar(pwd string, attrs ...string) bool {
	lpwd := strings.ToLower(pwd)
	for _, attr := range attrs {
		attr = strings.ToLower(strings.TrimSpace(attr))
		if attr == "" {
			continue
		}
		ratio := difflib.NewMatcher(strings.Split(lpwd, ""), strings.Split(attr, "")).QuickRatio()
		if ratio >= pwdMaxSim {
			return true
		}
	}
	return false
}
