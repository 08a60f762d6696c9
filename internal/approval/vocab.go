package approval

import "strings"

// Fixed per-language vocabularies for free-text resolution. An utterance
// resolves a request only on an exact match after normalization; anything
// else is ignored rather than guessed at.
var affirmativeWords = map[string]struct{}{
	// english
	"yes": {}, "y": {}, "yeah": {}, "yep": {}, "ok": {}, "okay": {},
	"sure": {}, "approve": {}, "approved": {}, "confirm": {},
	"go ahead": {}, "do it": {},
	// chinese
	"是": {}, "好": {}, "好的": {}, "可以": {}, "同意": {}, "批准": {}, "确认": {},
}

var negativeWords = map[string]struct{}{
	// english
	"no": {}, "n": {}, "nope": {}, "deny": {}, "denied": {},
	"reject": {}, "rejected": {}, "stop": {}, "cancel": {}, "dont": {}, "don't": {},
	// chinese
	"不": {}, "不行": {}, "不要": {}, "拒绝": {}, "不同意": {}, "取消": {},
}

// classifyUtterance maps free text onto an approve/deny signal. The second
// return value is false when the text matches neither vocabulary.
func classifyUtterance(text string) (bool, bool) {
	normalized := normalizeUtterance(text)
	if normalized == "" {
		return false, false
	}
	if _, ok := affirmativeWords[normalized]; ok {
		return true, true
	}
	if _, ok := negativeWords[normalized]; ok {
		return false, true
	}
	return false, false
}

func normalizeUtterance(text string) string {
	trimmed := strings.ToLower(strings.TrimSpace(text))
	return strings.TrimRight(trimmed, ".!?。！？ ")
}
