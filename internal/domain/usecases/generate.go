package usecases

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"studyrag/internal/domain/entities"
	"studyrag/internal/domain/ports"
	"studyrag/internal/log"
)

const (
	summaryPromptFormat = "Please provide a concise summary of the following document:\n\n%s\n\nSummary:"

	questionsPromptFormat = "Based on the following summary of a document, generate a list of " +
		"insightful questions that could be used to test comprehension or explore the topic " +
		"further:\n\n%s\n\nQuestions:"

	mcqPromptFormat = "Generate multiple-choice questions based on the following text:\n\n%s\n\nQuestions:"

	fitbPromptFormat = "Generate fill-in-the-blank questions based on the following text:\n\n%s\n\nQuestions:"
)

// listMarkerPattern strips leading bullets, numbering, and punctuation
// from generated question lines.
var listMarkerPattern = regexp.MustCompile(`^[-•*0-9.\s]+`)

// GenerateUseCase derives summaries and study questions from indexed text.
// The whole request fails atomically: a questions response is never
// returned when only the summary succeeded.
type GenerateUseCase struct {
	indexes ports.VectorIndexStore
	llm     ports.LLMService

	// maxSummaryInput bounds the text concatenated into the summarization
	// prompt so a large document cannot overrun the model context.
	// Truncation happens at a chunk boundary.
	maxSummaryInput int

	logger log.Logger
}

// NewGenerateUseCase creates a GenerateUseCase with injected dependencies.
// Non-positive maxSummaryInput falls back to 24000 characters.
func NewGenerateUseCase(indexes ports.VectorIndexStore, llm ports.LLMService, maxSummaryInput int, logger log.Logger) *GenerateUseCase {
	if maxSummaryInput <= 0 {
		maxSummaryInput = 24000
	}
	return &GenerateUseCase{
		indexes:         indexes,
		llm:             llm,
		maxSummaryInput: maxSummaryInput,
		logger:          logger.With("component", "generate"),
	}
}

// GenerateQuestions summarizes the asset's full indexed text and derives
// comprehension questions from the summary. No similarity filtering: the
// entire corpus participates, subject to the summary input bound.
func (uc *GenerateUseCase) GenerateQuestions(ctx context.Context, assetID string) (*entities.QuestionSet, error) {
	if err := ValidateAssetID(assetID); err != nil {
		return nil, err
	}

	chunks, err := uc.indexes.All(ctx, assetID)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: %s", ports.ErrEmptyAsset, assetID)
	}

	fullText, truncated := uc.concatenate(chunks)
	if truncated {
		uc.logger.Warn("summary input truncated", "asset_id", assetID,
			"limit_chars", uc.maxSummaryInput)
	}

	summary, err := uc.llm.Generate(ctx, fmt.Sprintf(summaryPromptFormat, fullText))
	if err != nil {
		return nil, fmt.Errorf("summarization failed: %w", err)
	}

	raw, err := uc.llm.Generate(ctx, fmt.Sprintf(questionsPromptFormat, summary))
	if err != nil {
		return nil, fmt.Errorf("question generation failed: %w", err)
	}

	questions := cleanQuestionLines(raw)
	uc.logger.Info("generated questions", "asset_id", assetID, "count", len(questions))
	return &entities.QuestionSet{
		AssetID:   assetID,
		Summary:   summary,
		Questions: questions,
	}, nil
}

// GenerateMCQ produces multiple-choice questions from already-extracted
// text. Single model invocation, raw output returned.
func (uc *GenerateUseCase) GenerateMCQ(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: empty text", ports.ErrValidation)
	}
	out, err := uc.llm.Generate(ctx, fmt.Sprintf(mcqPromptFormat, text))
	if err != nil {
		return "", fmt.Errorf("mcq generation failed: %w", err)
	}
	return out, nil
}

// GenerateFillInTheBlank produces fill-in-the-blank questions from
// already-extracted text. Single model invocation, raw output returned.
func (uc *GenerateUseCase) GenerateFillInTheBlank(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: empty text", ports.ErrValidation)
	}
	out, err := uc.llm.Generate(ctx, fmt.Sprintf(fitbPromptFormat, text))
	if err != nil {
		return "", fmt.Errorf("fill-in-the-blank generation failed: %w", err)
	}
	return out, nil
}

// concatenate joins chunk contents with newlines, stopping at the summary
// input bound. A first chunk that alone exceeds the bound is cut at a rune
// boundary, so the bound holds regardless of chunk size. Reports whether
// anything was dropped.
func (uc *GenerateUseCase) concatenate(chunks []entities.Chunk) (string, bool) {
	var sb strings.Builder
	for i, c := range chunks {
		if sb.Len()+len(c.Content)+1 > uc.maxSummaryInput {
			if sb.Len() > 0 {
				return sb.String(), true
			}
			if len(c.Content) > uc.maxSummaryInput {
				return truncateAtRune(c.Content, uc.maxSummaryInput), true
			}
		}
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(c.Content)
	}
	return sb.String(), false
}

// truncateAtRune cuts s to at most max bytes without splitting a rune.
func truncateAtRune(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// cleanQuestionLines splits raw model output into lines, drops blanks, and
// strips leading list markers.
func cleanQuestionLines(raw string) []string {
	var questions []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		line = listMarkerPattern.ReplaceAllString(line, "")
		if line != "" {
			questions = append(questions, line)
		}
	}
	return questions
}
