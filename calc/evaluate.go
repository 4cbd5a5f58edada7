// Package calc evaluates the restricted arithmetic grammar used by chat
// commands. It is the sole arithmetic surface of the bot: no variables, no
// function calls, no string literals.
package calc

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/Knetic/govaluate"

	"capital-bot/errors"
)

const maxExpressionLength = 1000

// Keywords that must never reach the evaluator, kept on top of the charset
// check as a second line of defense.
var deniedTokens = []string{"eval", "Function", "constructor", "prototype"}

var allowedChars = regexp.MustCompile(`^[0-9+\-*/×÷()., \t\n\r]+$`)

var glyphReplacer = strings.NewReplacer("×", "*", "÷", "/")

// Validate rejects expressions that are too long, contain denied tokens or
// any character outside the arithmetic charset.
func Validate(expression string) error {
	for _, token := range deniedTokens {
		if strings.Contains(expression, token) {
			return fmt.Errorf("%w: denied token %q", errors.ErrInvalidExpression, token)
		}
	}
	if len(expression) > maxExpressionLength {
		return fmt.Errorf("%w: expression too long", errors.ErrInvalidExpression)
	}
	if !allowedChars.MatchString(expression) {
		return fmt.Errorf("%w: disallowed character", errors.ErrInvalidExpression)
	}
	return nil
}

// SafeEvaluate validates the expression, substitutes the localized
// multiplication and division glyphs, evaluates with standard precedence and
// returns the result rounded to 4 decimal places. A non-finite result is an
// error.
func SafeEvaluate(expression string) (float64, error) {
	if err := Validate(expression); err != nil {
		return 0, err
	}

	normalized := glyphReplacer.Replace(expression)
	parsed, err := govaluate.NewEvaluableExpression(normalized)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errors.ErrInvalidExpression, err)
	}
	value, err := parsed.Evaluate(nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errors.ErrInvalidExpression, err)
	}
	result, ok := value.(float64)
	if !ok {
		return 0, fmt.Errorf("%w: non-numeric result", errors.ErrInvalidExpression)
	}
	if math.IsNaN(result) || math.IsInf(result, 0) {
		return 0, fmt.Errorf("%w: result is not finite", errors.ErrInvalidExpression)
	}
	return Round4(result), nil
}

// Apply concatenates the parenthesized seed with an operator-led calculation
// tail, e.g. Apply(100, "*2") evaluates "(100)*2".
func Apply(seed float64, calculation string) (float64, error) {
	return SafeEvaluate(fmt.Sprintf("(%s)%s", FormatNumber(seed), calculation))
}

// ApplyDelta parenthesizes both the seed and the operand of a single delta
// to avoid precedence surprises, e.g. "(100)+(50)".
func ApplyDelta(seed float64, operator string, operand string) (float64, error) {
	return SafeEvaluate(fmt.Sprintf("(%s)%s(%s)", FormatNumber(seed), operator, operand))
}

// Round4 rounds to 4 decimal places, the precision of every persisted value.
func Round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}

// FormatNumber renders a balance without trailing zeros.
func FormatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
