package voicecore

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode"

	openai "github.com/sashabaranov/go-openai"
)

// EoTStatus is the verdict SemanticEoT returns for a finalized transcript.
type EoTStatus string

const (
	EoTComplete   EoTStatus = "complete"
	EoTIncomplete EoTStatus = "incomplete"
	EoTUncertain  EoTStatus = "uncertain"
)

// EoTVerdict is the result of classifying one transcript.
type EoTVerdict struct {
	Status             EoTStatus
	Confidence         float64
	RecommendedDelayMs int
	Rule               string
}

// fillerWords mirrors the filler-word class recognized by most turn-taking
// heuristics: a trailing filler almost always signals the speaker has more
// to say.
var fillerWords = map[string]bool{
	"um": true, "uh": true, "umm": true, "uhh": true, "er": true,
	"like": true, "so": true, "and": true, "but": true, "because": true,
	"the": true, "a": true, "an": true, "or": true, "if": true, "i": true,
	"to": true, "that": true, "which": true, "who": true, "with": true,
}

// conjunctionTrailers end a clause but strongly imply continuation.
var conjunctionTrailers = regexp.MustCompile(`(?i)\b(and|but|so|because|or|that|which|if|when|while)\s*$`)

var questionWordRe = regexp.MustCompile(`(?i)^\s*(what|who|where|when|why|how|is|are|can|could|would|will|do|does|did)\b`)

// SemanticEoT classifies finalized transcripts as complete, incomplete, or
// uncertain, per the ordered heuristic rules. When UseLLM is set in its
// config, ambiguous cases fall back to a chat-completions call; results are
// cached for a short window to avoid repeated calls on stable transcripts.
type SemanticEoT struct {
	cfg *Config

	llmClient *openai.Client

	mu    sync.Mutex
	cache map[string]cachedVerdict
}

type cachedVerdict struct {
	verdict EoTVerdict
	at      time.Time
}

const (
	eotCacheTTL     = 12 * time.Second
	eotCacheMaxSize = 120
)

// NewSemanticEoT builds a classifier. The chat-completions client is created
// here, and only when SemanticEoTUseLLM is set and apiKey is non-empty;
// otherwise no LLM call is made and uncertain verdicts stand.
func NewSemanticEoT(cfg *Config, apiKey string) *SemanticEoT {
	s := &SemanticEoT{
		cfg:   cfg,
		cache: make(map[string]cachedVerdict),
	}
	if cfg.SemanticEoTUseLLM && apiKey != "" {
		s.llmClient = openai.NewClient(apiKey)
	}
	return s
}

// Classify returns a verdict for text. firstTurn relaxes the minimum-length
// rule since opening utterances are often short and complete ("Hi", "Hey").
func (s *SemanticEoT) Classify(ctx context.Context, text string, firstTurn bool) EoTVerdict {
	trimmed := strings.TrimSpace(text)

	if cached, ok := s.lookupCache(trimmed); ok {
		return cached
	}

	verdict := s.classifyRules(trimmed, firstTurn)

	if verdict.Status == EoTUncertain && s.llmClient != nil {
		if llmVerdict, ok := s.classifyLLM(ctx, trimmed); ok {
			verdict = llmVerdict
		}
	}

	s.storeCache(trimmed, verdict)
	return verdict
}

// classifyRules applies the ordered heuristic from the rule-boundary
// tokenizer's own sentence-end conventions: terminal punctuation (ellipses
// excluded) first, then lexical continuation signals, then length.
func (s *SemanticEoT) classifyRules(text string, firstTurn bool) EoTVerdict {
	if text == "" {
		return EoTVerdict{Status: EoTIncomplete, Confidence: 1.0, RecommendedDelayMs: s.cfg.SemanticEoTMaxDelayMs, Rule: "empty"}
	}

	last := lastRune(text)

	// Rule 1: explicit terminal punctuation not part of an ellipsis.
	if (last == '.' || last == '!' || last == '?' || last == '。' || last == '！' || last == '？') && !strings.HasSuffix(text, "...") && !strings.HasSuffix(text, "…") {
		if last == '?' || last == '？' {
			return EoTVerdict{Status: EoTComplete, Confidence: 0.95, RecommendedDelayMs: s.cfg.SemanticEoTMinDelayMs, Rule: "terminal_question"}
		}
		return EoTVerdict{Status: EoTComplete, Confidence: 0.9, RecommendedDelayMs: s.cfg.SemanticEoTMinDelayMs, Rule: "terminal_punctuation"}
	}

	// Rule 2: trailing ellipsis signals the speaker trailed off mid-thought.
	if strings.HasSuffix(text, "...") || strings.HasSuffix(text, "…") {
		return EoTVerdict{Status: EoTIncomplete, Confidence: 0.8, RecommendedDelayMs: s.cfg.SemanticEoTMaxDelayMs, Rule: "trailing_ellipsis"}
	}

	// Rule 3: trailing comma mid-list or mid-clause.
	if last == ',' || last == '，' {
		return EoTVerdict{Status: EoTIncomplete, Confidence: 0.75, RecommendedDelayMs: s.cfg.SemanticEoTMaxDelayMs, Rule: "trailing_comma"}
	}

	// Rule 4: trailing conjunction/subordinator implies more is coming.
	if conjunctionTrailers.MatchString(text) {
		return EoTVerdict{Status: EoTIncomplete, Confidence: 0.8, RecommendedDelayMs: s.cfg.SemanticEoTMaxDelayMs, Rule: "trailing_conjunction"}
	}

	// Rule 5: trailing filler word.
	words := strings.Fields(text)
	if len(words) > 0 {
		lastWord := strings.ToLower(strings.Trim(words[len(words)-1], ".,!?;:"))
		if fillerWords[lastWord] {
			return EoTVerdict{Status: EoTIncomplete, Confidence: 0.7, RecommendedDelayMs: s.cfg.SemanticEoTMaxDelayMs, Rule: "trailing_filler"}
		}
	}

	// Rule 6: question-shaped utterance with no terminal mark still reads
	// as a completed question in speech.
	if questionWordRe.MatchString(text) && len(words) >= 3 {
		return EoTVerdict{Status: EoTComplete, Confidence: 0.6, RecommendedDelayMs: (s.cfg.SemanticEoTMinDelayMs + s.cfg.SemanticEoTMaxDelayMs) / 2, Rule: "question_shape"}
	}

	// Rule 7: very short utterance on the first turn of a session ("Hi",
	// "Hey there") is treated as complete; mid-session it is ambiguous.
	if len(words) <= 2 {
		if firstTurn {
			return EoTVerdict{Status: EoTComplete, Confidence: 0.55, RecommendedDelayMs: s.cfg.SemanticEoTMaxDelayMs, Rule: "short_first_turn"}
		}
		return EoTVerdict{Status: EoTUncertain, Confidence: 0.4, RecommendedDelayMs: (s.cfg.SemanticEoTMinDelayMs + s.cfg.SemanticEoTMaxDelayMs) / 2, Rule: "short_utterance"}
	}

	// Rule 8: no terminal signal either way; defer to the LLM backend if
	// configured, otherwise treat as uncertain with a mid-range delay.
	return EoTVerdict{Status: EoTUncertain, Confidence: 0.5, RecommendedDelayMs: (s.cfg.SemanticEoTMinDelayMs + s.cfg.SemanticEoTMaxDelayMs) / 2, Rule: "no_terminal_signal"}
}

func (s *SemanticEoT) classifyLLM(ctx context.Context, text string) (EoTVerdict, bool) {
	callCtx, cancel := context.WithTimeout(ctx, time.Duration(s.cfg.SemanticEoTTimeoutMs)*time.Millisecond)
	defer cancel()

	resp, err := s.llmClient.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
		Model: "gpt-4o-mini",
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "Reply with exactly one word: COMPLETE if the user has finished their thought, or INCOMPLETE if they are likely to continue speaking.",
			},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		Temperature: 0,
		MaxTokens:   4,
	})
	if err != nil || len(resp.Choices) == 0 {
		return EoTVerdict{}, false
	}

	answer := strings.ToUpper(strings.TrimSpace(resp.Choices[0].Message.Content))
	if strings.Contains(answer, "INCOMPLETE") {
		return EoTVerdict{Status: EoTIncomplete, Confidence: 0.85, RecommendedDelayMs: s.cfg.SemanticEoTMaxDelayMs, Rule: "llm_backend"}, true
	}
	if strings.Contains(answer, "COMPLETE") {
		return EoTVerdict{Status: EoTComplete, Confidence: 0.85, RecommendedDelayMs: s.cfg.SemanticEoTMinDelayMs, Rule: "llm_backend"}, true
	}
	return EoTVerdict{}, false
}

func (s *SemanticEoT) lookupCache(text string) (EoTVerdict, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.cache[text]
	if !ok {
		return EoTVerdict{}, false
	}
	if time.Since(entry.at) > eotCacheTTL {
		delete(s.cache, text)
		return EoTVerdict{}, false
	}
	return entry.verdict, true
}

func (s *SemanticEoT) storeCache(text string, verdict EoTVerdict) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.cache) >= eotCacheMaxSize {
		s.evictOldestLocked()
	}
	s.cache[text] = cachedVerdict{verdict: verdict, at: time.Now()}
}

func (s *SemanticEoT) evictOldestLocked() {
	var oldestKey string
	var oldestAt time.Time
	for k, v := range s.cache {
		if oldestKey == "" || v.at.Before(oldestAt) {
			oldestKey = k
			oldestAt = v.at
		}
	}
	if oldestKey != "" {
		delete(s.cache, oldestKey)
	}
}

func lastRune(s string) rune {
	var last rune
	for _, r := range s {
		if unicode.IsSpace(r) {
			continue
		}
		last = r
	}
	return last
}
