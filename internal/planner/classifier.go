// Package planner turns free-form task descriptions into a structured
// cognition record and a phased orchestration plan. Classification is
// heuristic and pluggable; the planner itself never blocks a decision.
package planner

import (
	"regexp"
	"strings"
)

// Classification is the output of a Classifier: the dominant intent of a
// task description plus the entities mentioned in it.
type Classification struct {
	// Intent is the winning intent family.
	Intent string
	// Confidence is how confident the classification is (0.0-1.0).
	Confidence float64
	// Entities are file names and component-like tokens found in the text.
	Entities []string
	// Matches is how many intent keywords were found.
	Matches int
}

// Classifier maps a task description to a Classification. Implementations
// must be safe for concurrent use.
type Classifier interface {
	Classify(text string) Classification
}

// Intent families recognized by the stock classifier.
const (
	IntentCreate   = "create"
	IntentRead     = "read"
	IntentUpdate   = "update"
	IntentDelete   = "delete"
	IntentAnalyze  = "analyze"
	IntentOptimize = "optimize"
	IntentDeploy   = "deploy"
	IntentTest     = "test"
	IntentDebug    = "debug"
	IntentRefactor = "refactor"
)

// intentOrder fixes iteration order so ties resolve deterministically.
var intentOrder = []string{
	IntentCreate, IntentRead, IntentUpdate, IntentDelete, IntentAnalyze,
	IntentOptimize, IntentDeploy, IntentTest, IntentDebug, IntentRefactor,
}

// intentKeywords maps each intent family to the keywords that vote for it.
var intentKeywords = map[string][]string{
	IntentCreate:   {"create", "add", "new", "build", "generate", "implement", "write", "scaffold"},
	IntentRead:     {"read", "show", "display", "list", "view", "inspect", "fetch"},
	IntentUpdate:   {"update", "change", "modify", "edit", "rename", "upgrade", "bump"},
	IntentDelete:   {"delete", "remove", "drop", "clean", "purge", "uninstall"},
	IntentAnalyze:  {"analyze", "review", "audit", "examine", "investigate", "summarize", "explain"},
	IntentOptimize: {"optimize", "improve", "speed", "performance", "tune", "reduce"},
	IntentDeploy:   {"deploy", "release", "publish", "ship", "rollout", "install"},
	IntentTest:     {"test", "verify", "validate", "check", "assert", "coverage"},
	IntentDebug:    {"debug", "fix", "bug", "crash", "error", "broken", "failing"},
	IntentRefactor: {"refactor", "restructure", "reorganize", "extract", "simplify", "migrate"},
}

var (
	// fileRefPattern matches filename-like tokens with an extension.
	fileRefPattern = regexp.MustCompile(`\b[\w./-]+\.[A-Za-z]{1,5}\b`)
	// componentPattern matches PascalCase component-like identifiers.
	componentPattern = regexp.MustCompile(`\b[A-Z][a-z0-9]+(?:[A-Z][a-z0-9]+)+\b`)
)

// KeywordClassifier is the stock heuristic classifier: the intent family
// with the most keyword matches wins, confidence scaled by match count.
type KeywordClassifier struct{}

// NewKeywordClassifier creates the stock classifier.
func NewKeywordClassifier() *KeywordClassifier { return &KeywordClassifier{} }

// Classify picks the dominant intent and extracts entities from text.
// With no keyword matches, the intent defaults to analyze at low
// confidence, so downstream planning always has something to work with.
func (k *KeywordClassifier) Classify(text string) Classification {
	lower := strings.ToLower(text)

	best := IntentAnalyze
	bestCount := 0
	for _, intent := range intentOrder {
		count := 0
		for _, kw := range intentKeywords[intent] {
			if strings.Contains(lower, kw) {
				count++
			}
		}
		if count > bestCount {
			best = intent
			bestCount = count
		}
	}

	confidence := 0.1
	if bestCount > 0 {
		confidence = 0.4 + 0.15*float64(bestCount)
		if confidence > 0.95 {
			confidence = 0.95
		}
	}

	return Classification{
		Intent:     best,
		Confidence: confidence,
		Entities:   extractEntities(text),
		Matches:    bestCount,
	}
}

// extractEntities pulls file references and PascalCase tokens out of the
// text, deduplicated in first-seen order.
func extractEntities(text string) []string {
	seen := make(map[string]bool)
	var entities []string
	appendAll := func(matches []string) {
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				entities = append(entities, m)
			}
		}
	}
	appendAll(fileRefPattern.FindAllString(text, -1))
	appendAll(componentPattern.FindAllString(text, -1))
	return entities
}
