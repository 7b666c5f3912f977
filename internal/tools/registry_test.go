package tools

import "testing"

func TestDefinitionsCoverAllTools(t *testing.T) {
	defs := Definitions()
	if len(defs) != 5 {
		t.Fatalf("len = %d, want 5", len(defs))
	}

	want := []string{
		NameSearchTools, NameCompareTools, NameGetToolDetails,
		NameSearchByCategory, NameGetPopularTools,
	}
	for i, name := range want {
		if defs[i].Name != name {
			t.Errorf("defs[%d].Name = %q, want %q", i, defs[i].Name, name)
		}
		if defs[i].Description == "" {
			t.Errorf("defs[%d] has empty description", i)
		}
	}
}

func TestEnabledFiltersAndPreservesOrder(t *testing.T) {
	defs := Enabled([]string{NameGetPopularTools, NameSearchTools})
	if len(defs) != 2 {
		t.Fatalf("len = %d, want 2", len(defs))
	}
	// Registry order, not request order.
	if defs[0].Name != NameSearchTools || defs[1].Name != NameGetPopularTools {
		t.Errorf("order = [%s, %s]", defs[0].Name, defs[1].Name)
	}
}

func TestEnabledIgnoresUnknownNames(t *testing.T) {
	defs := Enabled([]string{"drop_database", NameCompareTools})
	if len(defs) != 1 || defs[0].Name != NameCompareTools {
		t.Errorf("defs = %+v", defs)
	}
}

func TestDeclarationsMirrorDescriptors(t *testing.T) {
	decls := Declarations(Definitions())
	if len(decls) != 5 {
		t.Fatalf("len = %d, want 5", len(decls))
	}
	if decls[0].Name != NameSearchTools {
		t.Errorf("decls[0].Name = %q", decls[0].Name)
	}
	if _, ok := decls[0].Parameters.Properties["query"]; !ok {
		t.Error("search_tools declaration missing query parameter")
	}
	if decls[0].Parameters.Required[0] != "query" {
		t.Errorf("required = %v", decls[0].Parameters.Required)
	}
	items := decls[1].Parameters.Properties["tool_names"].Items
	if items == nil || items.Type != "string" {
		t.Error("compare_tools tool_names should be an array of strings")
	}
}
