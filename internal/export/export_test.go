package export

import (
	"strings"
	"testing"
	"time"

	"github.com/BubbatheVTOG/b404.be-sub000/internal/steptree"
)

func TestRenderReportHTML(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	data := TemplateData{
		Name:            "Chassis build",
		Description:     "Full assembly run",
		CompanyName:     "Acme Fabrication",
		PercentComplete: 0.5,
		StartDate:       &start,
		GeneratedAt:     time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
		Steps: []TemplateStep{
			{
				Verb: "Build", Description: "assemble chassis", Completed: true,
				Children: []TemplateStep{
					{Verb: "Review", Description: "inspect welds", Asynchronous: true},
				},
			},
		},
	}

	html, err := RenderReportHTML(data)
	if err != nil {
		t.Fatalf("RenderReportHTML() error = %v", err)
	}

	for _, want := range []string{
		"Chassis build",
		"Acme Fabrication",
		"50% complete",
		"Mar 1, 2026",
		"inspect welds",
		"(async)",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("rendered HTML missing %q", want)
		}
	}
	if !strings.Contains(html, "delivery n/a") {
		t.Error("missing delivery date placeholder")
	}
}

func TestRenderReportEscapesContent(t *testing.T) {
	data := TemplateData{
		Name:        "<script>alert(1)</script>",
		GeneratedAt: time.Now(),
	}
	html, err := RenderReportHTML(data)
	if err != nil {
		t.Fatalf("RenderReportHTML() error = %v", err)
	}
	if strings.Contains(html, "<script>alert(1)</script>") {
		t.Error("workflow name not escaped")
	}
}

func TestTemplateStepsResolveVerbNames(t *testing.T) {
	forest := []*steptree.Step{
		{VerbID: "vrb_build", Children: []*steptree.Step{{VerbID: "vrb_unknown"}}},
	}
	steps := templateSteps(forest, map[string]string{"vrb_build": "Build"})
	if steps[0].Verb != "Build" {
		t.Errorf("verb = %q, want Build", steps[0].Verb)
	}
	// Unknown verbs fall back to the raw id.
	if steps[0].Children[0].Verb != "vrb_unknown" {
		t.Errorf("fallback verb = %q", steps[0].Children[0].Verb)
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Chassis build", "Chassis-build"},
		{"weird/!@#name", "weirdname"},
		{"", "workflow"},
	}
	for _, tc := range cases {
		if got := sanitizeFilename(tc.in); got != tc.want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestPercentEncodeForDataURL(t *testing.T) {
	got := percentEncodeForDataURL("a b&c")
	if got != "a%20b%26c" {
		t.Errorf("encode = %q", got)
	}
}
