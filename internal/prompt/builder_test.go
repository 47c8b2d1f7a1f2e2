package prompt

import (
	"strings"
	"testing"

	"github.com/mindhaventaylor/ai-selfi-sub000/internal/domain"
)

func TestResolveIncludesAllOptions(t *testing.T) {
	job := &domain.Job{
		BasePrompt:           "studio portrait of the subject",
		ReferenceImagePrompt: "match the lighting of the reference",
		AspectRatio:          domain.AspectWide,
		Glasses:              "yes",
		HairColor:            "dark brown",
		HairStyle:            "curly",
		Backgrounds:          []string{"city street", "office"},
		Styles:               []string{"cinematic"},
	}
	got := Resolve(job)
	for _, want := range []string{
		"studio portrait of the subject",
		"match the lighting of the reference",
		"wearing glasses",
		"Hair: Dark Brown, Curly.",
		"Backgrounds: City Street, Office",
		"Styles: Cinematic",
		"Aspect ratio: 16:9",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("prompt missing %q:\n%s", want, got)
		}
	}
}

func TestResolveNoGlasses(t *testing.T) {
	got := Resolve(&domain.Job{BasePrompt: "portrait", Glasses: "no"})
	if !strings.Contains(got, "not wearing glasses") {
		t.Fatalf("expected no-glasses line, got:\n%s", got)
	}
}

func TestResolveEmptyJobFallsBack(t *testing.T) {
	got := Resolve(&domain.Job{})
	if got == "" {
		t.Fatal("empty job must still produce a prompt")
	}
}
