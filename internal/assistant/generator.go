package assistant

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"

	"shijian-backend/internal/models"
)

var placeholderPattern = regexp.MustCompile(`\{(\w+)\}`)

// Generator fills category templates to produce a reply. Every reply starts
// with one of the catalogue openings.
type Generator struct {
	catalog *Catalog
	rnd     Rand
}

func NewGenerator(catalog *Catalog, rnd Rand) *Generator {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	if rnd == nil {
		rnd = DefaultRand()
	}
	return &Generator{catalog: catalog, rnd: rnd}
}

// Respond validates the history and composes a reply to its last message.
func (g *Generator) Respond(history []models.ChatMessage) (string, error) {
	if len(history) == 0 {
		return "", &InvalidInputError{Message: invalidUserMessage}
	}
	last := history[len(history)-1]
	if last.Role != models.RoleUser || strings.TrimSpace(last.Content) == "" {
		return "", &InvalidInputError{Message: invalidUserMessage}
	}
	return g.Compose(last.Content), nil
}

// Classify picks the template category for a user utterance.
func (g *Generator) Classify(text string) Category {
	// cases.Caser is stateful, so each call gets its own.
	folded := cases.Fold().String(text)
	for _, cat := range classifyOrder {
		for _, kw := range g.catalog.Keywords[string(cat)] {
			if kw != "" && strings.Contains(folded, cases.Fold().String(kw)) {
				return cat
			}
		}
	}
	return CategoryGeneral
}

// Compose builds a reply without validating the input.
func (g *Generator) Compose(text string) string {
	cat := g.Classify(text)
	template := pick(g.rnd, g.catalog.Templates[string(cat)])

	reply := pick(g.rnd, g.catalog.Openings) + g.fill(template)
	if utf8.RuneCountInString(reply) < g.catalog.MinLength {
		reply += g.catalog.Closing
	}
	return reply
}

func (g *Generator) fill(template string) string {
	return placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		name := match[1 : len(match)-1]
		words := g.catalog.Vocabulary[name]
		if len(words) == 0 {
			return name
		}
		return pick(g.rnd, words)
	})
}
