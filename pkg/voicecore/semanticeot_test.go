package voicecore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyRulesTerminalPunctuation(t *testing.T) {
	s := NewSemanticEoT(DefaultConfig(), "")
	v := s.Classify(context.Background(), "What time is the meeting tomorrow?", false)
	assert.Equal(t, EoTComplete, v.Status)
	assert.Equal(t, "terminal_question", v.Rule)
}

func TestClassifyRulesTrailingConjunction(t *testing.T) {
	s := NewSemanticEoT(DefaultConfig(), "")
	v := s.Classify(context.Background(), "I wanted to ask you about the schedule and", false)
	assert.Equal(t, EoTIncomplete, v.Status)
	assert.Equal(t, "trailing_conjunction", v.Rule)
}

func TestClassifyRulesTrailingFiller(t *testing.T) {
	s := NewSemanticEoT(DefaultConfig(), "")
	v := s.Classify(context.Background(), "I think the answer is um", false)
	assert.Equal(t, EoTIncomplete, v.Status)
	assert.Equal(t, "trailing_filler", v.Rule)
}

func TestClassifyRulesShortFirstTurnComplete(t *testing.T) {
	s := NewSemanticEoT(DefaultConfig(), "")
	v := s.Classify(context.Background(), "Hey there", true)
	assert.Equal(t, EoTComplete, v.Status)
}

func TestClassifyRulesShortMidTurnUncertain(t *testing.T) {
	s := NewSemanticEoT(DefaultConfig(), "")
	v := s.Classify(context.Background(), "Hey there", false)
	assert.Equal(t, EoTUncertain, v.Status)
}

func TestClassifyRulesTrailingEllipsis(t *testing.T) {
	s := NewSemanticEoT(DefaultConfig(), "")
	v := s.Classify(context.Background(), "I was going to say...", false)
	assert.Equal(t, EoTIncomplete, v.Status)
	assert.Equal(t, "trailing_ellipsis", v.Rule)
}

func TestClassifyCachesRepeatedText(t *testing.T) {
	s := NewSemanticEoT(DefaultConfig(), "")
	text := "Is this working correctly?"
	first := s.Classify(context.Background(), text, false)
	second := s.Classify(context.Background(), text, false)
	assert.Equal(t, first, second)
}
