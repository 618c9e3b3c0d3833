package algobot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	openai "github.com/sashabaranov/go-openai"
)

// ErrRequestInProgress is returned when an identical expensive request
// (same user, problem and kind) is already in flight.
var ErrRequestInProgress = errors.New("an identical request is already in progress")

// Translation is a cached LLM translation of a problem statement.
type Translation struct {
	ProblemID int    `json:"problem_id" gorm:"primaryKey;autoIncrement:false"`
	Domain    Domain `json:"domain" gorm:"primaryKey;size:8"`
	Title     string `json:"title"`
	Content   string `json:"content"`

	// CreatedAt is a unix timestamp (seconds)
	CreatedAt int64 `json:"created_at"`
}

// Expired reports whether the cached entry is older than ttl.
func (t Translation) Expired(ttl time.Duration) bool {
	return time.Since(time.Unix(t.CreatedAt, 0)) > ttl
}

// Inspiration is a cached set of LLM solving hints for a problem.
type Inspiration struct {
	ProblemID int    `json:"problem_id" gorm:"primaryKey;autoIncrement:false"`
	Domain    Domain `json:"domain" gorm:"primaryKey;size:8"`
	Content   string `json:"content"`

	// CreatedAt is a unix timestamp (seconds)
	CreatedAt int64 `json:"created_at"`
}

// Expired reports whether the cached entry is older than ttl.
func (i Inspiration) Expired(ttl time.Duration) bool {
	return time.Since(time.Unix(i.CreatedAt, 0)) > ttl
}

const translateSystemPrompt = `You are a translator for competitive ` +
	`programming problems. Translate the given problem statement from ` +
	`English to Simplified Chinese. Keep all variable names, code, numbers ` +
	`and markdown formatting intact. Respond with a JSON object of the ` +
	`form {"title": "...", "content": "..."}.`

const inspireSystemPrompt = `You are a competitive programming coach. ` +
	`Given a problem statement, provide progressive hints that nudge the ` +
	`reader toward a solution without spoiling it: start from an ` +
	`observation, then the key idea, then the algorithm family and ` +
	`complexity. Do not write code. Respond with a JSON object of the ` +
	`form {"hints": ["...", "..."]}.`

// chatCompleter is the slice of the OpenAI client the LLM service uses.
type chatCompleter interface {
	CreateChatCompletion(
		ctx context.Context,
		request openai.ChatCompletionRequest,
	) (openai.ChatCompletionResponse, error)
}

// LLM performs problem translation and hint generation through a chat
// completion model, with persistent TTL caching and per-(user, problem)
// duplicate suppression.
type LLM struct {
	config *OpenAIConfig
	client chatCompleter
	db     *store
	guard  *requestGuard
	logger *slog.Logger
}

// NewLLM creates the LLM service. A nil token disables nothing here;
// callers gate on Config.OpenAI.Token being set.
func NewLLM(config *OpenAIConfig, db *store, guard *requestGuard) *LLM {
	return &LLM{
		config: config,
		client: openai.NewClient(config.Token),
		db:     db,
		guard:  guard,
		logger: slog.New(newTintHandler(config.LogLevel)).With(loggerNameKey, "llm"),
	}
}

type translationPayload struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

type inspirationPayload struct {
	Hints []string `json:"hints"`
}

// Translate returns a Chinese translation of the problem statement,
// from cache when a fresh entry exists. Concurrent identical requests
// collapse to one: later callers get ErrRequestInProgress immediately.
func (l *LLM) Translate(
	ctx context.Context,
	userID string,
	p *Problem,
	domain Domain,
) (*Translation, error) {
	if p == nil || p.Content == "" {
		return nil, fmt.Errorf("problem has no statement to translate")
	}

	cached, err := l.db.GetTranslation(ctx, p.ID, domain, l.config.TranslationTTL)
	if err != nil {
		return nil, err
	}
	if cached != nil {
		return cached, nil
	}

	key := requestKey{UserID: userID, ProblemID: p.ID, Kind: requestKindTranslate}
	if !l.guard.TryBegin(key) {
		return nil, ErrRequestInProgress
	}
	defer l.guard.End(key)

	// A racing request may have finished while we waited on the guard.
	cached, err = l.db.GetTranslation(ctx, p.ID, domain, l.config.TranslationTTL)
	if err != nil {
		return nil, err
	}
	if cached != nil {
		return cached, nil
	}

	statement := htmlToText(p.Content)
	user := fmt.Sprintf("Problem: %s\n\n%s", p.Title, statement)
	raw, err := l.complete(ctx, translateSystemPrompt, user)
	if err != nil {
		return nil, err
	}

	var payload translationPayload
	if err = json.Unmarshal([]byte(extractJSON(raw)), &payload); err != nil {
		l.logger.Error(
			"unparseable translation response",
			"problem_id", p.ID,
			"response", truncate(raw, 200),
			tint.Err(err),
		)
		return nil, fmt.Errorf("unparseable model response: %w", err)
	}

	translation := &Translation{
		ProblemID: p.ID,
		Domain:    domain,
		Title:     payload.Title,
		Content:   payload.Content,
	}
	if err = l.db.SaveTranslation(ctx, translation); err != nil {
		l.logger.Error(
			"error caching translation",
			"problem_id", p.ID,
			tint.Err(err),
		)
	}
	return translation, nil
}

// Inspire returns progressive solving hints for the problem, from cache
// when a fresh entry exists. Duplicate suppression works the same way
// as Translate.
func (l *LLM) Inspire(
	ctx context.Context,
	userID string,
	p *Problem,
	domain Domain,
) (*Inspiration, error) {
	if p == nil || p.Content == "" {
		return nil, fmt.Errorf("problem has no statement to hint at")
	}

	cached, err := l.db.GetInspiration(ctx, p.ID, domain, l.config.InspirationTTL)
	if err != nil {
		return nil, err
	}
	if cached != nil {
		return cached, nil
	}

	key := requestKey{UserID: userID, ProblemID: p.ID, Kind: requestKindInspire}
	if !l.guard.TryBegin(key) {
		return nil, ErrRequestInProgress
	}
	defer l.guard.End(key)

	cached, err = l.db.GetInspiration(ctx, p.ID, domain, l.config.InspirationTTL)
	if err != nil {
		return nil, err
	}
	if cached != nil {
		return cached, nil
	}

	statement := htmlToText(p.Content)
	user := fmt.Sprintf(
		"Problem: %s (difficulty: %s)\n\n%s",
		p.Title,
		p.Difficulty,
		statement,
	)
	raw, err := l.complete(ctx, inspireSystemPrompt, user)
	if err != nil {
		return nil, err
	}

	var payload inspirationPayload
	if err = json.Unmarshal([]byte(extractJSON(raw)), &payload); err != nil {
		l.logger.Error(
			"unparseable inspiration response",
			"problem_id", p.ID,
			"response", truncate(raw, 200),
			tint.Err(err),
		)
		return nil, fmt.Errorf("unparseable model response: %w", err)
	}

	var content strings.Builder
	for i, hint := range payload.Hints {
		if i > 0 {
			content.WriteString("\n\n")
		}
		content.WriteString(fmt.Sprintf("%d. %s", i+1, hint))
	}

	inspiration := &Inspiration{
		ProblemID: p.ID,
		Domain:    domain,
		Content:   content.String(),
	}
	if err = l.db.SaveInspiration(ctx, inspiration); err != nil {
		l.logger.Error(
			"error caching inspiration",
			"problem_id", p.ID,
			tint.Err(err),
		)
	}
	return inspiration, nil
}

func (l *LLM) complete(ctx context.Context, system string, user string) (string, error) {
	started := time.Now()
	response, err := l.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model: l.config.Model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: system},
				{Role: openai.ChatMessageRoleUser, Content: user},
			},
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			},
		},
	)
	if err != nil {
		l.logger.Error("chat completion failed", tint.Err(err))
		return "", err
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	l.logger.Info(
		"chat completion finished",
		"model", response.Model,
		"duration", time.Since(started),
		"prompt_tokens", response.Usage.PromptTokens,
		"completion_tokens", response.Usage.CompletionTokens,
	)
	return response.Choices[0].Message.Content, nil
}

// extractJSON strips a markdown code fence if the model wrapped its
// JSON in one.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
