package speech

import (
	"regexp"
	"strings"

	"github.com/firstaidvox/gateway/internal/analysis/language"
	"github.com/firstaidvox/gateway/internal/model/triage"
)

// Utterance is the cleaned, language-tagged text handed to a synthesis voice.
type Utterance struct {
	Text     string
	Language language.Language
	Rate     float32
}

var (
	markdownBold    = regexp.MustCompile(`\*\*([^*]*)\*\*`)
	markdownEmph    = regexp.MustCompile(`\*([^*]*)\*`)
	markdownHeading = regexp.MustCompile(`(?m)^#{1,6}\s*`)
	markdownLink    = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	markdownCode    = regexp.MustCompile("`+")
	// Leaked tool-call artifacts like search_hospitals(37.5, 127.0) read
	// terribly aloud and carry no information for the listener.
	functionCall = regexp.MustCompile(`\b[A-Za-z_][A-Za-z0-9_]*\([^()]*\)`)
	whitespace   = regexp.MustCompile(`\s+`)
)

// ForResponse derives the spoken form of an assessment. Final assessments
// prefer the detailed section, which reads most naturally; questions and
// intermediate turns are clamped to two sentences so the voice does not
// recite deliberation text.
func ForResponse(resp *triage.AgentResponse) Utterance {
	var text string
	if resp.Stage.AtLeast(triage.StageFinal) && strings.TrimSpace(resp.DetailedText) != "" {
		text = resp.DetailedText
	} else {
		text = resp.BriefText
		if strings.TrimSpace(text) == "" {
			text = resp.ResponseText
		}
		text = clampSentences(text, 2)
	}

	text = CleanForSpeech(text)

	lang := language.Language(resp.Language)
	if lang == "" {
		lang = language.Detect(text)
	}

	rate := float32(1.0)
	if lang == language.Korean || lang == language.Japanese {
		// Synthesis voices rush CJK text at the default rate.
		rate = 0.9
	}

	return Utterance{Text: text, Language: lang, Rate: rate}
}

// CleanForSpeech strips markdown decoration and tool-call artifacts.
func CleanForSpeech(text string) string {
	text = markdownLink.ReplaceAllString(text, "$1")
	text = markdownBold.ReplaceAllString(text, "$1")
	text = markdownEmph.ReplaceAllString(text, "$1")
	text = markdownHeading.ReplaceAllString(text, "")
	text = markdownCode.ReplaceAllString(text, "")
	text = functionCall.ReplaceAllString(text, "")
	return strings.TrimSpace(whitespace.ReplaceAllString(text, " "))
}

var sentenceEnd = regexp.MustCompile(`[.!?。！？]`)

func clampSentences(text string, limit int) string {
	indices := sentenceEnd.FindAllStringIndex(text, -1)
	if len(indices) <= limit {
		return text
	}
	return strings.TrimSpace(text[:indices[limit-1][1]])
}
