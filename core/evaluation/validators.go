package evaluation

import (
	"fmt"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/peereval/core"
)

// scores range
const (
	MinScore = 0
	MaxScore = 4
)

var (
	scoreTag  = "score"
	scoreText = fmt.Sprintf("score must be an integer between %d and %d", MinScore, MaxScore)
)

// InitValidators registers the evaluation validators & their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(scoreTag, scoreValidation)
	core.RegisterCustomTranslation(validate, translator, scoreTag, scoreText)
}

func scoreValidation(fl validator.FieldLevel) bool {
	score := fl.Field().Int()
	return score >= MinScore && score <= MaxScore
}
