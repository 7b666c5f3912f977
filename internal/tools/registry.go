package tools

import "github.com/nabdhq/nabd/internal/gemini"

// Descriptor declares one callable tool offered to the model. Descriptions
// are in Arabic because they double as usage guidance for the Arabic-first
// assistant.
type Descriptor struct {
	Name        string
	Description string
	Parameters  gemini.Schema
}

// Names of the built-in catalog tools.
const (
	NameSearchTools      = "search_tools"
	NameCompareTools     = "compare_tools"
	NameGetToolDetails   = "get_tool_details"
	NameSearchByCategory = "search_by_category"
	NameGetPopularTools  = "get_popular_tools"
)

var definitions = []Descriptor{
	{
		Name:        NameSearchTools,
		Description: "البحث الدلالي عن أدوات الذكاء الاصطناعي بناءً على وصف أو حاجة المستخدم. استخدم هذه الأداة عندما يسأل المستخدم عن أدوات لمهمة معينة.",
		Parameters: gemini.Schema{
			Type: "object",
			Properties: map[string]gemini.SchemaProperty{
				"query": {Type: "string", Description: "استعلام البحث (مثال: 'أداة لتحرير الصور بالذكاء الاصطناعي')"},
				"limit": {Type: "number", Description: "عدد النتائج المطلوبة (الافتراضي: 5)"},
			},
			Required: []string{"query"},
		},
	},
	{
		Name:        NameCompareTools,
		Description: "مقارنة أداتين أو أكثر من حيث الميزات والأسعار. استخدم هذه الأداة عندما يطلب المستخدم مقارنة بين أدوات محددة.",
		Parameters: gemini.Schema{
			Type: "object",
			Properties: map[string]gemini.SchemaProperty{
				"tool_names": {
					Type:        "array",
					Description: "أسماء الأدوات المراد مقارنتها",
					Items:       &gemini.SchemaProperty{Type: "string"},
				},
			},
			Required: []string{"tool_names"},
		},
	},
	{
		Name:        NameGetToolDetails,
		Description: "جلب التفاصيل الكاملة لأداة محددة بالاسم أو المعرف. استخدم هذه الأداة عندما يسأل المستخدم عن أداة بعينها.",
		Parameters: gemini.Schema{
			Type: "object",
			Properties: map[string]gemini.SchemaProperty{
				"tool_name": {Type: "string", Description: "اسم الأداة المطلوبة"},
			},
			Required: []string{"tool_name"},
		},
	},
	{
		Name:        NameSearchByCategory,
		Description: "البحث عن أدوات في فئة محددة. استخدم هذه الأداة عندما يريد المستخدم رؤية أدوات في تصنيف معين.",
		Parameters: gemini.Schema{
			Type: "object",
			Properties: map[string]gemini.SchemaProperty{
				"category": {Type: "string", Description: "اسم الفئة (مثال: 'كتابة المحتوى', 'تحرير الصور', 'تحليل البيانات')"},
				"limit":    {Type: "number", Description: "عدد النتائج المطلوبة (الافتراضي: 5)"},
			},
			Required: []string{"category"},
		},
	},
	{
		Name:        NameGetPopularTools,
		Description: "جلب الأدوات الأكثر شعبية أو الأعلى تقييماً. استخدم هذه الأداة عندما يسأل المستخدم عن أفضل الأدوات أو الأكثر استخداماً.",
		Parameters: gemini.Schema{
			Type: "object",
			Properties: map[string]gemini.SchemaProperty{
				"limit":    {Type: "number", Description: "عدد النتائج المطلوبة (الافتراضي: 5)"},
				"category": {Type: "string", Description: "فلترة حسب الفئة (اختياري)"},
			},
		},
	},
}

// Definitions returns descriptors for every built-in tool.
func Definitions() []Descriptor {
	out := make([]Descriptor, len(definitions))
	copy(out, definitions)
	return out
}

// Enabled filters the built-in descriptors down to the named ones,
// preserving registry order. Unknown names are ignored.
func Enabled(names []string) []Descriptor {
	allowed := make(map[string]bool, len(names))
	for _, n := range names {
		allowed[n] = true
	}
	var out []Descriptor
	for _, d := range definitions {
		if allowed[d.Name] {
			out = append(out, d)
		}
	}
	return out
}

// Declarations converts descriptors into function declarations for the model.
func Declarations(descriptors []Descriptor) []gemini.FunctionDecl {
	decls := make([]gemini.FunctionDecl, len(descriptors))
	for i, d := range descriptors {
		decls[i] = gemini.FunctionDecl{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  d.Parameters,
		}
	}
	return decls
}
