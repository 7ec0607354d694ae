package mvtpg

import (
	"strings"
	"testing"

	"github.com/atlasdatatech/mvt-server/internal/catalog"
)

func testLayer() catalog.Layer {
	return catalog.Layer{
		Name:      "roads",
		Schema:    "public",
		TableName: "roads",
		Fields:    []string{"id", "name"},
	}
}

func TestBuildQueryUsesCTETemplateByDefault(t *testing.T) {
	sql, args := buildQuery(testLayer(), 10, 5, 5, "", nil)
	if !strings.Contains(sql, "WITH mvtgeom AS") {
		t.Fatalf("expected CTE template for default sql_mode, got: %s", sql)
	}
	if strings.Contains(sql, "{") {
		t.Fatalf("unfilled template token remains: %s", sql)
	}
	wantArgs := []interface{}{10, 5, 5, int(4096), int(256), true, int(4326), "roads"}
	if len(args) != len(wantArgs) {
		t.Fatalf("got %d args, want %d: %v", len(args), len(wantArgs), args)
	}
	for i := range wantArgs {
		if args[i] != wantArgs[i] {
			t.Fatalf("arg %d = %v, want %v", i, args[i], wantArgs[i])
		}
	}
}

func TestBuildQuerySubqueryMode(t *testing.T) {
	layer := testLayer()
	mode := "subquery"
	layer.SQLMode = &mode
	sql, _ := buildQuery(layer, 10, 5, 5, "", nil)
	if !strings.Contains(sql, "FROM (") || strings.Contains(sql, "WITH mvtgeom AS") {
		t.Fatalf("expected subquery template, got: %s", sql)
	}
}

func TestBuildQueryFieldsQuoted(t *testing.T) {
	sql, _ := buildQuery(testLayer(), 0, 0, 0, "", nil)
	if !strings.Contains(sql, `"id", "name"`) {
		t.Fatalf("expected quoted field list, got: %s", sql)
	}
	if !strings.Contains(sql, `"public"."roads"`) {
		t.Fatalf("expected schema-qualified table, got: %s", sql)
	}
}

func TestBuildQueryWhereClauseAppended(t *testing.T) {
	sql, args := buildQuery(testLayer(), 0, 0, 0, "status = $9", []string{"active"})
	if !strings.Contains(sql, "AND status = $9") {
		t.Fatalf("expected where clause appended with AND, got: %s", sql)
	}
	if len(args) != 9 {
		t.Fatalf("expected 9 positional args (8 fixed + 1 binding), got %d: %v", len(args), args)
	}
	if args[8] != "active" {
		t.Fatalf("expected coerced binding 'active' at index 8, got %v", args[8])
	}
}

func TestBuildQueryEmptyWhereClauseOmitsAnd(t *testing.T) {
	sql, _ := buildQuery(testLayer(), 0, 0, 0, "", nil)
	if strings.Contains(sql, "AND \n") || strings.Contains(sql, "AND \t\t{limit_placeholder}") {
		t.Fatalf("unexpected dangling AND for empty where clause: %s", sql)
	}
}

func TestBuildQueryMaxRecordsAddsLimitClause(t *testing.T) {
	layer := testLayer()
	max := uint64(50)
	layer.MaxRecords = &max
	sql, _ := buildQuery(layer, 0, 0, 0, "", nil)
	if !strings.Contains(sql, "ORDER BY RANDOM() LIMIT 50") {
		t.Fatalf("expected random-sample limit clause, got: %s", sql)
	}
}

func TestBuildQuerySimplificationThresholdSwitchesBufferExtent(t *testing.T) {
	layer := testLayer()
	zMaxNoSimplify := uint32(16)
	bufferNoSimplify := uint32(0)
	extentNoSimplify := uint32(8192)
	layer.ZMaxDoNotSimplify = &zMaxNoSimplify
	layer.BufferDoNotSimplify = &bufferNoSimplify
	layer.ExtentDoNotSimplify = &extentNoSimplify

	// below threshold: simplified buffer/extent defaults apply
	_, belowArgs := buildQuery(layer, 15, 0, 0, "", nil)
	if belowArgs[4] != int(256) || belowArgs[3] != int(4096) {
		t.Fatalf("expected default buffer/extent below threshold, got buffer=%v extent=%v", belowArgs[4], belowArgs[3])
	}

	// at/above threshold: do-not-simplify buffer/extent apply
	_, atArgs := buildQuery(layer, 16, 0, 0, "", nil)
	if atArgs[4] != int(0) || atArgs[3] != int(8192) {
		t.Fatalf("expected do-not-simplify buffer/extent at threshold, got buffer=%v extent=%v", atArgs[4], atArgs[3])
	}
}

func TestCoerceBindingInt(t *testing.T) {
	v := coerceBinding("42")
	if n, ok := v.(int64); !ok || n != 42 {
		t.Fatalf("expected int64(42), got %#v", v)
	}
}

func TestCoerceBindingFloat(t *testing.T) {
	v := coerceBinding("3.14")
	if f, ok := v.(float64); !ok || f != 3.14 {
		t.Fatalf("expected float64(3.14), got %#v", v)
	}
}

func TestCoerceBindingText(t *testing.T) {
	v := coerceBinding("active")
	if s, ok := v.(string); !ok || s != "active" {
		t.Fatalf("expected string 'active', got %#v", v)
	}
}

func TestConvertFieldsEscapesQuotes(t *testing.T) {
	got := convertFields([]string{`weird"field`, "plain"})
	want := `"weird""field", "plain"`
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
