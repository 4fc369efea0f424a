// Package fallback produces locally computed substitute answers when
// the provider is unavailable. It is pure: no I/O, no blocking, no
// failure modes, so the "you always get a reply" contract holds even
// during a full provider outage.
package fallback

import "hash/fnv"

// Templates per locale. Ordering matters: the content hash indexes
// into the slice, so identical failing input picks the same template
// within a process lifetime.
var templates = map[string][]string{
	"ko": {
		"지금은 답변을 가져오는 데 문제가 있어요. 질문을 조금 바꿔서 다시 물어봐 줄래요?",
		"잠시 연결이 원활하지 않네요. 교과서 내용을 한 번 더 읽어 보고, 잠시 후 다시 질문해 주세요.",
		"지금은 자세한 설명이 어려워요. 핵심 단어를 찾아 표시해 두면, 다시 연결됐을 때 더 잘 도와드릴 수 있어요.",
		"일시적인 문제로 답변하지 못했어요. 궁금한 부분을 공책에 적어 두고 잠시 후 다시 시도해 주세요.",
	},
	"en": {
		"I'm having trouble fetching an answer right now. Could you rephrase your question and try again?",
		"The connection is a bit unstable. Re-read the page once more and ask me again in a moment.",
		"I can't give a detailed explanation right now. Try underlining the key terms so we can dig in once I'm back.",
		"A temporary problem kept me from answering. Jot your question down and try again shortly.",
	},
}

// Generator selects fallback answers for a fixed locale.
type Generator struct {
	locale string
}

// New creates a generator. Unknown locales fall back to Korean.
func New(locale string) *Generator {
	if _, ok := templates[locale]; !ok {
		locale = "ko"
	}
	return &Generator{locale: locale}
}

// Reply returns a substitute assistant answer keyed on the failing
// user input. Never returns empty.
func (g *Generator) Reply(userText string) string {
	set := templates[g.locale]
	h := fnv.New32a()
	// fnv Write never errors.
	_, _ = h.Write([]byte(userText))
	return set[h.Sum32()%uint32(len(set))]
}
