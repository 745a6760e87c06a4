package generator

import (
	"math/rand"
	"strconv"
	"sync"
	"time"

	"math-game-service/internal/domain"
)

// Option is one candidate answer for a synthesized problem.
type Option struct {
	Text    string
	Correct bool
}

// Problem is a synthesized arithmetic question with four options,
// exactly one of which is correct.
type Problem struct {
	Text    string
	Options [4]Option
}

// operandRange holds inclusive bounds for one operator family.
type operandRange struct {
	lo, hi int
}

type tierRanges struct {
	addSub   operandRange // add and subtract operands
	divide   operandRange // divisor and quotient
	multiply operandRange
}

var ranges = map[domain.Tier]tierRanges{
	domain.TierEasy:   {addSub: operandRange{0, 20}, divide: operandRange{1, 6}, multiply: operandRange{1, 10}},
	domain.TierNormal: {addSub: operandRange{10, 50}, divide: operandRange{6, 9}, multiply: operandRange{5, 11}},
	domain.TierHard:   {addSub: operandRange{30, 80}, divide: operandRange{9, 16}, multiply: operandRange{9, 17}},
	domain.TierExpert: {addSub: operandRange{50, 150}, divide: operandRange{12, 24}, multiply: operandRange{10, 25}},
}

// Generator synthesizes arithmetic problems. Safe for concurrent use.
type Generator struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func New() *Generator {
	return NewWithRand(rand.New(rand.NewSource(time.Now().UnixNano())))
}

// NewWithRand allows deterministic sequences in tests.
func NewWithRand(rnd *rand.Rand) *Generator {
	return &Generator{rnd: rnd}
}

// Generate picks an operator uniformly among add, subtract, divide and
// multiply, draws operands from the tier's ranges and fills the three
// remaining slots with distinct distractors within ±5 of the result.
// Division operands are derived from a divisor and quotient so the
// result is always an exact integer.
func (g *Generator) Generate(tier domain.Tier) Problem {
	g.mu.Lock()
	defer g.mu.Unlock()

	tr, ok := ranges[tier]
	if !ok {
		tr = ranges[domain.TierEasy]
	}

	var text string
	var result int
	switch g.rnd.Intn(4) {
	case 0:
		a, b := g.draw(tr.addSub), g.draw(tr.addSub)
		text = strconv.Itoa(a) + "+" + strconv.Itoa(b)
		result = a + b
	case 1:
		a, b := g.draw(tr.addSub), g.draw(tr.addSub)
		text = strconv.Itoa(a) + "-" + strconv.Itoa(b)
		result = a - b
	case 2:
		divisor, quotient := g.draw(tr.divide), g.draw(tr.divide)
		text = strconv.Itoa(divisor*quotient) + "÷" + strconv.Itoa(divisor)
		result = quotient
	default:
		a, b := g.draw(tr.multiply), g.draw(tr.multiply)
		text = strconv.Itoa(a) + "×" + strconv.Itoa(b)
		result = a * b
	}

	return Problem{Text: text, Options: g.fillOptions(result)}
}

func (g *Generator) draw(r operandRange) int {
	return r.lo + g.rnd.Intn(r.hi-r.lo+1)
}

// fillOptions places the correct answer at a random slot and draws
// distractors from [result-5, result+5], rejecting duplicates and the
// correct value until all four texts are pairwise distinct.
func (g *Generator) fillOptions(result int) [4]Option {
	var opts [4]Option
	correctText := strconv.Itoa(result)
	used := map[string]bool{correctText: true}

	slot := g.rnd.Intn(4)
	opts[slot] = Option{Text: correctText, Correct: true}

	for i := range opts {
		if i == slot {
			continue
		}
		for {
			text := strconv.Itoa(result - 5 + g.rnd.Intn(11))
			if used[text] {
				continue
			}
			used[text] = true
			opts[i] = Option{Text: text}
			break
		}
	}
	return opts
}
