package brain

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nabdhq/nabd/internal/agent"
	"github.com/nabdhq/nabd/internal/gemini"
	"github.com/nabdhq/nabd/internal/tools"
)

// historyLimit caps how many prior turns are replayed to the model.
const historyLimit = 6

// Turn is one prior message in the conversation, as sent by the client.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const toolUsageRules = `قواعد استخدام الأدوات:
1. إذا سأل المستخدم عن أدوات، استخدم search_tools
2. إذا أراد مقارنة أدوات، استخدم compare_tools
3. إذا سأل عن أداة بعينها، استخدم get_tool_details
4. إذا أراد رؤية أدوات في فئة معينة، استخدم search_by_category
5. إذا سأل عن أفضل/أشهر الأدوات، استخدم get_popular_tools
6. يمكنك استخدام أكثر من أداة إذا لزم الأمر`

// selectionMessages builds the phase-one conversation: truncated history
// followed by the persona prompt, tool rules, and the user's query folded
// into a single user turn.
func selectionMessages(p agent.Persona, query string, history []Turn) []gemini.Message {
	if len(history) > historyLimit {
		history = history[len(history)-historyLimit:]
	}

	msgs := make([]gemini.Message, 0, len(history)+1)
	for _, t := range history {
		role := "model"
		if t.Role == "user" {
			role = "user"
		}
		msgs = append(msgs, gemini.Message{Role: role, Content: t.Content})
	}

	prompt := fmt.Sprintf("%s\n\n%s\n\nالمستخدم: %s", p.SystemPrompt, toolUsageRules, query)
	return append(msgs, gemini.Message{Role: "user", Content: prompt})
}

// replyPrompt builds the phase-two prompt: the persona framing, a labeled
// dump of every tool result, and the reply instructions.
func replyPrompt(p agent.Persona, query string, results []tools.Result) string {
	description := p.Description
	if description == "" {
		description = "خبير ذكاء اصطناعي ودود ومحترف"
	}

	var ctx strings.Builder
	if len(results) > 0 {
		ctx.WriteString("\n═══ نتائج تنفيذ الأدوات ═══\n")
		for _, r := range results {
			if r.Success {
				data, err := json.MarshalIndent(r.Data, "", "  ")
				if err != nil {
					data = []byte("{}")
				}
				fmt.Fprintf(&ctx, "\n📌 %s:\n%s\n", r.Name, data)
			} else {
				fmt.Fprintf(&ctx, "\n⚠️ %s: %s\n", r.Name, r.Err)
			}
		}
		ctx.WriteString("\n═══════════════════════════\n")
	}

	return fmt.Sprintf(`أنت "%s" %s، %s.
%s

قمت بتنفيذ أدوات للإجابة على سؤال المستخدم. استخدم النتائج التالية لصياغة رد مفيد ومختصر.

%s

تعليمات الرد:
1. تحدث بالعربية بنبرة ودية ومفيدة 🎯
2. اعرض الأدوات المناسبة مع شرح موجز لكل منها
3. إذا لم تجد نتائج، اعتذر واقترح بدائل
4. استخدم الإيموجي باعتدال
5. اجعل الرد مختصراً (3-5 نقاط)
6. اذكر روابط الأدوات إن وجدت بصيغة: /tool/[slug]

سؤال المستخدم: %s`, p.Name, p.AvatarEmoji, description, p.SystemPrompt, ctx.String(), query)
}
