package usecases

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"studyrag/internal/domain/entities"
	"studyrag/internal/domain/ports"
	"studyrag/internal/log"
)

// groundingInstruction pins the model to the supplied evidence. The "say
// so" clause is the contract: no answer fabricated beyond the context.
const groundingInstruction = "You are a technical assistant good at searching documents. " +
	"Answer using only the provided context. If the context does not contain " +
	"the answer, say that you do not know instead of guessing."

// ChatUseCase is the retrieval-augmented conversation engine.
// Stateless: all persistent state lives in the session store and the
// vector index store.
type ChatUseCase struct {
	sessions  ports.SessionStore
	indexes   ports.VectorIndexStore
	embedder  ports.EmbeddingService
	llm       ports.LLMService
	topK      int
	threshold float64
	logger    log.Logger
}

// NewChatUseCase creates a ChatUseCase with injected dependencies.
// Non-positive topK falls back to 20 and an out-of-range threshold to 0.1,
// the default retrieval parameters.
func NewChatUseCase(
	sessions ports.SessionStore,
	indexes ports.VectorIndexStore,
	embedder ports.EmbeddingService,
	llm ports.LLMService,
	topK int,
	threshold float64,
	logger log.Logger,
) *ChatUseCase {
	if topK <= 0 {
		topK = 20
	}
	if threshold < -1 || threshold > 1 {
		threshold = 0.1
	}
	return &ChatUseCase{
		sessions:  sessions,
		indexes:   indexes,
		embedder:  embedder,
		llm:       llm,
		topK:      topK,
		threshold: threshold,
		logger:    logger.With("component", "chat"),
	}
}

// Start creates a new chat thread bound to assetID for its whole lifetime.
// Fails with ports.ErrAssetNotFound when the asset has no index, so a
// thread can never be born pointing at nothing.
func (uc *ChatUseCase) Start(ctx context.Context, assetID string) (string, error) {
	if err := ValidateAssetID(assetID); err != nil {
		return "", err
	}
	if !uc.indexes.Exists(assetID) {
		return "", fmt.Errorf("%w: %s", ports.ErrAssetNotFound, assetID)
	}

	threadID := uuid.NewString()
	if err := uc.sessions.CreateThread(ctx, threadID, assetID); err != nil {
		return "", fmt.Errorf("creating thread: %w", err)
	}

	uc.logger.Info("chat thread started", "thread_id", threadID, "asset_id", assetID)
	return threadID, nil
}

// Send answers one query in the context of a thread:
// resolve the thread's asset, retrieve supporting passages, invoke the
// model with a grounding prompt, persist the turn, return the answer
// with its sources.
func (uc *ChatUseCase) Send(ctx context.Context, threadID, query string) (*entities.Answer, error) {
	assetID, err := uc.sessions.AssetForThread(ctx, threadID)
	if err != nil {
		return nil, err
	}

	history, err := uc.sessions.History(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}
	transcript := renderTranscript(history, query)

	// Retrieval deliberately uses the raw query text only; the transcript
	// participates in the prompt but not in similarity search. Folding
	// history into the retrieval query would change recall behavior.
	queryEmbedding, err := uc.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	passages, err := uc.indexes.Search(ctx, assetID, queryEmbedding, uc.topK, uc.threshold)
	if err != nil {
		return nil, fmt.Errorf("searching index %s: %w", assetID, err)
	}

	prompt := uc.buildPrompt(query, transcript, passages)
	answer, err := uc.llm.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("generating answer: %w", err)
	}

	turn := entities.ChatTurn{UserMessage: query, BotResponse: answer}
	if err := uc.sessions.AppendTurn(ctx, threadID, turn); err != nil {
		return nil, fmt.Errorf("persisting turn: %w", err)
	}

	uc.logger.Info("answered query", "thread_id", threadID, "asset_id", assetID,
		"passages", len(passages))
	return &entities.Answer{Text: answer, Sources: passages}, nil
}

// History returns the thread's turns in submission order.
// Fails with ports.ErrUnknownThread when the thread has no history.
func (uc *ChatUseCase) History(ctx context.Context, threadID string) ([]entities.ChatTurn, error) {
	history, err := uc.sessions.History(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if len(history) == 0 {
		return nil, fmt.Errorf("%w: %s", ports.ErrUnknownThread, threadID)
	}
	return history, nil
}

// renderTranscript lays out prior turns as a linear transcript ending with
// the new query, one "User:"/"Assistant:" pair per turn.
func renderTranscript(history []entities.ChatTurn, query string) string {
	var sb strings.Builder
	for _, turn := range history {
		fmt.Fprintf(&sb, "User: %s\nAssistant: %s\n", turn.UserMessage, turn.BotResponse)
	}
	fmt.Fprintf(&sb, "User: %s\n", query)
	return sb.String()
}

// buildPrompt combines the fixed instruction, the conversation so far,
// the retrieved passages, and the query.
func (uc *ChatUseCase) buildPrompt(query, transcript string, passages []entities.RetrievedPassage) string {
	var sb strings.Builder
	sb.WriteString(groundingInstruction)
	sb.WriteString("\n\nConversation so far:\n")
	sb.WriteString(transcript)
	sb.WriteString("\nContext:\n")
	for _, p := range passages {
		fmt.Fprintf(&sb, "[Source: %s, page %d]\n%s\n\n", p.Chunk.Source, p.Chunk.Page, p.Chunk.Content)
	}
	sb.WriteString("Question: ")
	sb.WriteString(query)
	sb.WriteString("\n\nAnswer:")
	return sb.String()
}
