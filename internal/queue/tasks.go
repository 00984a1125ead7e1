package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

const (
	TaskWarmEmbeddings = "embedding:warm"

	QueueDefault = "default"
	QueueLow     = "low"
)

// WarmEmbeddingsPayload lists query texts whose embeddings should be cached.
type WarmEmbeddingsPayload struct {
	Texts       []string  `json:"texts"`
	RequestedBy string    `json:"requested_by,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}

// NewWarmEmbeddingsTask builds an embedding warm-up task. Empty texts are
// dropped; a task with nothing left to warm is rejected.
func NewWarmEmbeddingsTask(texts []string, requestedBy string) (*asynq.Task, error) {
	kept := make([]string, 0, len(texts))
	for _, t := range texts {
		if strings.TrimSpace(t) != "" {
			kept = append(kept, t)
		}
	}
	if len(kept) == 0 {
		return nil, fmt.Errorf("no texts to warm")
	}

	payload, err := json.Marshal(WarmEmbeddingsPayload{
		Texts:       kept,
		RequestedBy: requestedBy,
		RequestedAt: time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TaskWarmEmbeddings,
		payload,
		asynq.TaskID(uuid.NewString()),
		asynq.MaxRetry(3),
		asynq.Timeout(10*time.Minute),
		asynq.Queue(QueueLow),
	), nil
}

// RedisClientOpt converts go-redis options into asynq's connection options.
func RedisClientOpt(opt *redis.Options) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Network:   opt.Network,
		Addr:      opt.Addr,
		Username:  opt.Username,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: opt.TLSConfig,
	}
}

// Warmer is the part of the embedding cache the worker drives.
type Warmer interface {
	Warm(ctx context.Context, texts []string) (int, error)
}

// TaskProcessor handles background tasks.
type TaskProcessor struct {
	warmer Warmer
	logger *slog.Logger
}

func NewTaskProcessor(warmer Warmer, logger *slog.Logger) *TaskProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskProcessor{warmer: warmer, logger: logger}
}

// Register wires the task handlers into mux.
func (p *TaskProcessor) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TaskWarmEmbeddings, p.ProcessWarmEmbeddings)
}

func (p *TaskProcessor) ProcessWarmEmbeddings(ctx context.Context, t *asynq.Task) error {
	var payload WarmEmbeddingsPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}
	if len(payload.Texts) == 0 {
		return fmt.Errorf("empty warm payload: %w", asynq.SkipRetry)
	}

	start := time.Now()
	computed, err := p.warmer.Warm(ctx, payload.Texts)
	if err != nil {
		p.logger.Warn("Embedding warm-up interrupted",
			"texts", len(payload.Texts), "computed", computed, "error", err)
		// Already-computed texts are cached, so a retry only pays for the rest.
		return err
	}

	p.logger.Info("Embedding warm-up finished",
		"texts", len(payload.Texts),
		"computed", computed,
		"requested_by", payload.RequestedBy,
		"duration_ms", time.Since(start).Milliseconds())
	return nil
}
