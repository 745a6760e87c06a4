package generator

import (
	"math/rand"
	"strconv"
	"strings"
	"testing"

	"math-game-service/internal/domain"
)

var allTiers = []domain.Tier{domain.TierEasy, domain.TierNormal, domain.TierHard, domain.TierExpert}

func TestGenerateInvariants(t *testing.T) {
	gen := NewWithRand(rand.New(rand.NewSource(1)))

	for _, tier := range allTiers {
		for i := 0; i < 1000; i++ {
			p := gen.Generate(tier)

			correct := 0
			seen := map[string]bool{}
			for _, opt := range p.Options {
				if opt.Correct {
					correct++
				}
				if seen[opt.Text] {
					t.Fatalf("tier %s: duplicate option text %q in %+v", tier, opt.Text, p.Options)
				}
				seen[opt.Text] = true
			}
			if correct != 1 {
				t.Fatalf("tier %s: expected exactly one correct option, got %d in %+v", tier, correct, p.Options)
			}

			if got, want := evaluate(t, p.Text), correctText(p); got != want {
				t.Fatalf("tier %s: problem %q evaluates to %q but correct option is %q", tier, p.Text, got, want)
			}
		}
	}
}

func TestDivisionIsExact(t *testing.T) {
	gen := NewWithRand(rand.New(rand.NewSource(2)))

	divisions := 0
	for i := 0; i < 4000 && divisions < 1000; i++ {
		p := gen.Generate(domain.TierExpert)
		if !strings.Contains(p.Text, "÷") {
			continue
		}
		divisions++
		parts := strings.Split(p.Text, "÷")
		dividend := atoi(t, parts[0])
		divisor := atoi(t, parts[1])
		if divisor == 0 || dividend%divisor != 0 {
			t.Fatalf("inexact division %q", p.Text)
		}
	}
	if divisions == 0 {
		t.Fatalf("no division problems generated")
	}
}

func TestOperandsStayInTierRange(t *testing.T) {
	gen := NewWithRand(rand.New(rand.NewSource(3)))

	for i := 0; i < 1000; i++ {
		p := gen.Generate(domain.TierEasy)
		switch {
		case strings.Contains(p.Text, "+"), strings.Contains(p.Text, "-"):
			for _, raw := range strings.FieldsFunc(p.Text, func(r rune) bool { return r == '+' || r == '-' }) {
				if n := atoi(t, raw); n < 0 || n > 20 {
					t.Fatalf("easy add/sub operand %d out of range in %q", n, p.Text)
				}
			}
		case strings.Contains(p.Text, "×"):
			for _, raw := range strings.Split(p.Text, "×") {
				if n := atoi(t, raw); n < 1 || n > 10 {
					t.Fatalf("easy multiply operand %d out of range in %q", n, p.Text)
				}
			}
		case strings.Contains(p.Text, "÷"):
			parts := strings.Split(p.Text, "÷")
			divisor := atoi(t, parts[1])
			quotient := atoi(t, parts[0]) / divisor
			if divisor < 1 || divisor > 6 || quotient < 1 || quotient > 6 {
				t.Fatalf("easy divide factors out of range in %q", p.Text)
			}
		}
	}
}

func correctText(p Problem) string {
	for _, opt := range p.Options {
		if opt.Correct {
			return opt.Text
		}
	}
	return ""
}

// evaluate computes the numeric answer of a problem text like "12×3".
func evaluate(t *testing.T, text string) string {
	t.Helper()
	for _, op := range []string{"×", "÷", "+"} {
		if i := strings.Index(text, op); i >= 0 {
			a := atoi(t, text[:i])
			b := atoi(t, text[i+len(op):])
			switch op {
			case "×":
				return strconv.Itoa(a * b)
			case "÷":
				return strconv.Itoa(a / b)
			case "+":
				return strconv.Itoa(a + b)
			}
		}
	}
	// Subtraction last: the minus sign can only be the operator here,
	// operands are non-negative.
	if i := strings.Index(text, "-"); i > 0 {
		return strconv.Itoa(atoi(t, text[:i]) - atoi(t, text[i+1:]))
	}
	t.Fatalf("unparsable problem text %q", text)
	return ""
}

func atoi(t *testing.T, raw string) int {
	t.Helper()
	n, err := strconv.Atoi(raw)
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}
	return n
}
