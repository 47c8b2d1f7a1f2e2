// Package prompt renders the final prompt text sent to the generation model
// from a job's base prompt and option tags. The resolved text is persisted on
// every photo row for provenance.
package prompt

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/mindhaventaylor/ai-selfi-sub000/internal/domain"
)

var titler = cases.Title(language.English)

// Resolve builds the prompt for one job.
func Resolve(job *domain.Job) string {
	var b strings.Builder

	write := func(line string) {
		line = strings.TrimSpace(line)
		if line == "" {
			return
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(line)
	}

	write(job.BasePrompt)
	write(job.ReferenceImagePrompt)

	switch job.Glasses {
	case "yes":
		write("The subject is wearing glasses.")
	case "no":
		write("The subject is not wearing glasses.")
	}

	if hair := hairLine(job.HairColor, job.HairStyle); hair != "" {
		write(hair)
	}
	if len(job.Backgrounds) > 0 {
		write("Backgrounds: " + joinTags(job.Backgrounds))
	}
	if len(job.Styles) > 0 {
		write("Styles: " + joinTags(job.Styles))
	}
	if job.AspectRatio != "" {
		write("Aspect ratio: " + job.AspectRatio)
	}

	if b.Len() == 0 {
		return "Create a professional portrait photo"
	}
	return b.String()
}

func hairLine(color, style string) string {
	color = strings.TrimSpace(color)
	style = strings.TrimSpace(style)
	switch {
	case color != "" && style != "":
		return "Hair: " + titler.String(color) + ", " + titler.String(style) + "."
	case color != "":
		return "Hair: " + titler.String(color) + "."
	case style != "":
		return "Hair: " + titler.String(style) + "."
	default:
		return ""
	}
}

func joinTags(tags []string) string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		if tag = strings.TrimSpace(tag); tag != "" {
			out = append(out, titler.String(tag))
		}
	}
	return strings.Join(out, ", ")
}
