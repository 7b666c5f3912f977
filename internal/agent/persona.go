package agent

// Persona is a resolved chat agent: the identity, system prompt, and tool
// allow-list used to answer a conversation.
type Persona struct {
	ID           string
	Name         string
	Slug         string
	Description  string
	AvatarEmoji  string
	SystemPrompt string
	ToolsEnabled []string
	Temperature  float32
}

const defaultSystemPrompt = `أنت "مساعد نبض AI"، وكيل ذكي ودود ومحترف.
مهمتك مساعدة المستخدمين في العثور على أي أداة ذكاء اصطناعي تناسب احتياجاتهم.

تعليمات:
1. تحدث بالعربية دائماً بنبرة ودية ومفيدة
2. استخدم الأدوات المتاحة لك للبحث عن الأدوات المناسبة
3. قدم إجابات مختصرة ومركزة (3-5 نقاط)
4. استخدم الإيموجي باعتدال لجعل الرد أكثر حيوية
5. اذكر روابط الأدوات بصيغة: /tool/[slug]`

// DefaultPersona is the built-in general assistant used when a requested
// persona cannot be loaded.
func DefaultPersona() Persona {
	return Persona{
		ID:           "default",
		Name:         "المساعد العام",
		Slug:         "general",
		Description:  "مساعدك الذكي للعثور على أفضل أدوات الذكاء الاصطناعي",
		AvatarEmoji:  "🤖",
		SystemPrompt: defaultSystemPrompt,
		ToolsEnabled: []string{"search_tools", "compare_tools", "get_tool_details", "search_by_category", "get_popular_tools"},
		Temperature:  0.7,
	}
}
