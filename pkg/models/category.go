package models

import (
	"strings"
)

// Category is a label from a fixed closed set
type Category string

const (
	CategoryTech     Category = "tech"
	CategoryScience  Category = "science"
	CategoryCreative Category = "creative"
	CategoryLanguage Category = "language"
	CategoryBusiness Category = "business"
	CategoryHealth   Category = "health"
	CategoryGeneral  Category = "general"
)

// Categories lists every category in display order
var Categories = []Category{
	CategoryTech,
	CategoryScience,
	CategoryCreative,
	CategoryLanguage,
	CategoryBusiness,
	CategoryHealth,
	CategoryGeneral,
}

var categoryLabels = map[Category]string{
	CategoryTech:     "Tech/Programming",
	CategoryScience:  "Science",
	CategoryCreative: "Creative/Art",
	CategoryLanguage: "Language",
	CategoryBusiness: "Business",
	CategoryHealth:   "Health/Fitness",
	CategoryGeneral:  "General",
}

var categoryKeywords = map[Category][]string{
	CategoryTech: {"code", "coding", "program", "golang", "python", "javascript", "sql", "api",
		"docker", "kubernetes", "git", "bug", "deploy", "algorithm", "database", "server"},
	CategoryScience: {"physics", "chemistry", "biology", "math", "experiment", "theory",
		"research", "astronomy", "equation"},
	CategoryCreative: {"draw", "paint", "music", "guitar", "piano", "design", "write", "poem",
		"photo", "sketch"},
	CategoryLanguage: {"vocabulary", "grammar", "spanish", "english", "french", "german",
		"japanese", "pronunciation", "translate"},
	CategoryBusiness: {"marketing", "sales", "finance", "budget", "startup", "invest",
		"negotiat", "management", "meeting"},
	CategoryHealth: {"workout", "gym", "run", "yoga", "sleep", "diet", "nutrition", "exercise",
		"meditat", "fitness"},
}

// Label returns the human readable name of the category
func (c Category) Label() string {
	if label, ok := categoryLabels[c]; ok {
		return label
	}
	return string(c)
}

// Valid reports whether c is one of the known categories
func (c Category) Valid() bool {
	_, ok := categoryLabels[c]
	return ok
}

// ParseCategory accepts a category value or label, case-insensitively
func ParseCategory(s string) (Category, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", false
	}
	for _, c := range Categories {
		if s == string(c) || s == strings.ToLower(c.Label()) {
			return c, true
		}
	}
	return "", false
}

// DetectCategory guesses a category from keywords in the text.
// It returns nil when nothing matches.
func DetectCategory(text string) *Category {
	lower := strings.ToLower(text)
	best := Category("")
	bestHits := 0
	for _, c := range Categories {
		hits := 0
		for _, kw := range categoryKeywords[c] {
			if strings.Contains(lower, kw) {
				hits++
			}
		}
		if hits > bestHits {
			best, bestHits = c, hits
		}
	}
	if bestHits == 0 {
		return nil
	}
	return &best
}
