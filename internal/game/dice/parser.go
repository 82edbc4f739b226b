package dice

import (
	"fmt"
	"strconv"
	"strings"
)

// Expression is a parsed dice expression such as "2d6+3" or "d20".
//
// Invariant: Count >= 1 and Sides >= 2 after a successful Parse.
type Expression struct {
	Raw      string
	Count    int
	Sides    int
	Modifier int
}

// Parse parses "NdS", "NdS+M" or "NdS-M"; N defaults to 1.
//
// Postcondition: Returns a valid Expression or a descriptive error.
func Parse(expr string) (Expression, error) {
	s := strings.ToLower(strings.TrimSpace(expr))
	if s == "" {
		return Expression{}, fmt.Errorf("dice: empty expression")
	}
	countStr, rest, ok := strings.Cut(s, "d")
	if !ok {
		return Expression{}, fmt.Errorf("dice: missing 'd' in expression %q", expr)
	}

	count := 1
	if countStr != "" {
		n, err := strconv.Atoi(countStr)
		if err != nil || n < 1 {
			return Expression{}, fmt.Errorf("dice: invalid die count in %q", expr)
		}
		count = n
	}

	sidesStr, modStr := rest, ""
	if i := strings.IndexAny(rest, "+-"); i > 0 {
		sidesStr, modStr = rest[:i], rest[i:]
	}
	sides, err := strconv.Atoi(sidesStr)
	if err != nil || sides < 2 {
		return Expression{}, fmt.Errorf("dice: invalid die sides in %q", expr)
	}

	mod := 0
	if modStr != "" {
		mod, err = strconv.Atoi(modStr)
		if err != nil {
			return Expression{}, fmt.Errorf("dice: invalid modifier in %q: %w", expr, err)
		}
	}
	return Expression{Raw: expr, Count: count, Sides: sides, Modifier: mod}, nil
}

// Roll evaluates expr against src.
//
// Precondition: expr came from Parse; src is non-nil.
// Postcondition: len(result.Dice) == expr.Count.
func Roll(expr Expression, src Source) RollResult {
	rolled := make([]int, expr.Count)
	for i := range rolled {
		rolled[i] = src.Intn(expr.Sides) + 1
	}
	return RollResult{Expression: expr.Raw, Dice: rolled, Modifier: expr.Modifier}
}
