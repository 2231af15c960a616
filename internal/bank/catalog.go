package bank

import (
	_ "embed"
	"fmt"
	"os"

	"gongzi-quiz-service/internal/domain"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

//go:embed flashcards.yaml
var defaultFlashcardsYAML []byte

type catalogFile struct {
	Questions []domain.QuizQuestion `yaml:"questions"`
}

type flashcardFile struct {
	Sets []domain.FlashcardSet `yaml:"sets"`
}

// DefaultCatalog returns the built-in question catalog.
func DefaultCatalog() []domain.QuizQuestion {
	questions, err := ParseCatalog(defaultCatalogYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded catalog: %v", err))
	}
	return questions
}

// LoadCatalogFile reads a YAML catalog from disk.
func LoadCatalogFile(path string) ([]domain.QuizQuestion, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and validates a YAML catalog.
func ParseCatalog(data []byte) ([]domain.QuizQuestion, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	seen := make(map[string]struct{}, len(file.Questions))
	for _, q := range file.Questions {
		if err := validateQuestion(q); err != nil {
			return nil, err
		}
		if _, dup := seen[q.ID]; dup {
			return nil, fmt.Errorf("duplicate question id %q", q.ID)
		}
		seen[q.ID] = struct{}{}
	}
	return file.Questions, nil
}

func validateQuestion(q domain.QuizQuestion) error {
	if q.ID == "" || q.Topic == "" {
		return fmt.Errorf("question %q: id and topic are required", q.ID)
	}
	switch q.Type {
	case domain.QuestionCalculation, domain.QuestionFillInBlank:
	case domain.QuestionSingleChoice:
		if !containsString(q.Options, q.Answer) {
			return fmt.Errorf("question %q: answer %q is not one of the options", q.ID, q.Answer)
		}
		if q.CorrectOptionIndex != nil {
			idx := *q.CorrectOptionIndex
			if idx < 0 || idx >= len(q.Options) || q.Options[idx] != q.Answer {
				return fmt.Errorf("question %q: correctOptionIndex does not point at the answer", q.ID)
			}
		}
	default:
		return fmt.Errorf("question %q: unknown question type %q", q.ID, q.Type)
	}
	return nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// DefaultFlashcards returns the built-in flashcard sets.
func DefaultFlashcards() []domain.FlashcardSet {
	var file flashcardFile
	if err := yaml.Unmarshal(defaultFlashcardsYAML, &file); err != nil {
		panic(fmt.Sprintf("embedded flashcards: %v", err))
	}
	return file.Sets
}
