package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/itish2003/ragagent/llm"
	"github.com/itish2003/ragagent/logger"
	"github.com/itish2003/ragagent/models"
	"github.com/itish2003/ragagent/tools"
)

const (
	DefaultMaxIterations = 10
	DefaultModelTimeout  = 60 * time.Second

	emptyAnswer = "I'm sorry, I couldn't generate a response."
)

// ConversationStore persists thread checkpoints.
type ConversationStore interface {
	Load(ctx context.Context, threadID string) (*models.Conversation, bool, error)
	Save(ctx context.Context, conv *models.Conversation) error
	History(ctx context.Context, threadID string) ([]models.CheckpointInfo, error)
	Threads(ctx context.Context) ([]string, error)
}

// ImageReader extracts text from an image.
type ImageReader interface {
	ExtractText(ctx context.Context, data []byte) (string, error)
}

// AgentConfig tunes the reasoning loop.
type AgentConfig struct {
	MaxIterations int
	ModelTimeout  time.Duration
}

// AgentService runs the reasoning loop: call the model, run the tools it
// asks for, feed results back, until it answers. Every state transition is
// checkpointed; committed messages only change when a turn completes.
type AgentService struct {
	model    llm.Model
	choices  map[string]llm.Model
	registry *tools.Registry
	store    ConversationStore
	images   ImageReader
	cfg      AgentConfig
	log      *logger.Logger
	now      func() time.Time

	locks threadLocks
}

func NewAgentService(model llm.Model, registry *tools.Registry, store ConversationStore, cfg AgentConfig, log *logger.Logger) *AgentService {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.ModelTimeout <= 0 {
		cfg.ModelTimeout = DefaultModelTimeout
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &AgentService{
		model:    model,
		registry: registry,
		store:    store,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
	}
}

// WithImageReader enables RunWithImage.
func (a *AgentService) WithImageReader(r ImageReader) *AgentService {
	a.images = r
	return a
}

// WithModel makes m selectable by name for individual turns.
func (a *AgentService) WithModel(name string, m llm.Model) *AgentService {
	if a.choices == nil {
		a.choices = make(map[string]llm.Model)
	}
	a.choices[strings.ToLower(name)] = m
	return a
}

func (a *AgentService) ModelName() string { return a.model.Name() }

// ModelNames lists the models a turn can select, sorted.
func (a *AgentService) ModelNames() []string {
	names := make([]string, 0, len(a.choices))
	for name := range a.choices {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// pick returns the model registered as name, or the default for "".
func (a *AgentService) pick(name string) (llm.Model, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return a.model, nil
	}
	m, ok := a.choices[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown model %q, available: %v", models.ErrInvalidInput, name, a.ModelNames())
	}
	return m, nil
}

// Run answers query within threadID, creating the thread if needed. An empty
// threadID starts a new thread. A turn left unfinished by an earlier crash is
// discarded first.
func (a *AgentService) Run(ctx context.Context, threadID, query string) (*models.RunResult, error) {
	return a.RunWithModel(ctx, "", threadID, query)
}

// RunWithModel is Run with the turn answered by the model registered as
// modelName. An empty name uses the default model.
func (a *AgentService) RunWithModel(ctx context.Context, modelName, threadID, query string) (*models.RunResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query is empty", models.ErrInvalidInput)
	}
	model, err := a.pick(modelName)
	if err != nil {
		return nil, err
	}
	if threadID == "" {
		threadID = uuid.NewString()
	}

	unlock := a.locks.lock(threadID)
	defer unlock()

	conv, err := a.load(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if conv.InFlight() {
		a.log.Warn("discarding interrupted turn", "thread_id", threadID, "state", conv.State, "pending", len(conv.Pending))
		conv.Pending, conv.PendingCalls = nil, nil
	}

	conv.Pending = []models.Message{{Role: models.RoleUser, Content: query, CreatedAt: a.now()}}
	conv.Iteration = 0
	if err := a.transition(ctx, conv, models.StateAwaitingModel); err != nil {
		return nil, err
	}
	return a.drive(ctx, model, conv)
}

// RunWithImage reads text from image and prepends it to query as context.
func (a *AgentService) RunWithImage(ctx context.Context, modelName, threadID, query string, image []byte) (*models.RunResult, error) {
	if a.images == nil {
		return nil, fmt.Errorf("%w: image input is not enabled", models.ErrInvalidInput)
	}
	text, err := a.images.ExtractText(ctx, image)
	if err != nil {
		return nil, err
	}
	return a.RunWithModel(ctx, modelName, threadID, WithImageContext(text, query))
}

// WithImageContext prefixes query with text read from an image.
func WithImageContext(imageText, query string) string {
	imageText = strings.TrimSpace(imageText)
	if imageText == "" {
		return query
	}
	return "Context from image:\n" + imageText + "\n\n" + query
}

// Resume continues a turn that was interrupted mid-way, from its last
// checkpoint. Steps already checkpointed are not repeated.
func (a *AgentService) Resume(ctx context.Context, threadID string) (*models.RunResult, error) {
	unlock := a.locks.lock(threadID)
	defer unlock()

	conv, found, err := a.store.Load(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if !found || !conv.InFlight() {
		return nil, fmt.Errorf("%w: thread %s has no interrupted turn", models.ErrInvalidInput, threadID)
	}
	a.log.Info("resuming turn", "thread_id", threadID, "state", conv.State, "iteration", conv.Iteration)
	return a.drive(ctx, a.model, conv)
}

// Thread returns the committed messages of threadID.
func (a *AgentService) Thread(ctx context.Context, threadID string) ([]models.Message, bool, error) {
	conv, found, err := a.store.Load(ctx, threadID)
	if err != nil || !found {
		return nil, found, err
	}
	return conv.Messages, true, nil
}

func (a *AgentService) Threads(ctx context.Context) ([]string, error) {
	return a.store.Threads(ctx)
}

func (a *AgentService) Checkpoints(ctx context.Context, threadID string) ([]models.CheckpointInfo, error) {
	return a.store.History(ctx, threadID)
}

func (a *AgentService) load(ctx context.Context, threadID string) (*models.Conversation, error) {
	conv, found, err := a.store.Load(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if !found {
		return &models.Conversation{ThreadID: threadID}, nil
	}
	return conv, nil
}

func (a *AgentService) transition(ctx context.Context, conv *models.Conversation, state models.AgentState) error {
	conv.State = state
	conv.UpdatedAt = a.now()
	if err := a.store.Save(ctx, conv); err != nil {
		return err
	}
	a.log.Debug("agent transition", "thread_id", conv.ThreadID, "state", state, "iteration", conv.Iteration)
	return nil
}

// drive runs the state machine from conv's current state to FINAL_ANSWER.
func (a *AgentService) drive(ctx context.Context, model llm.Model, conv *models.Conversation) (*models.RunResult, error) {
	var executed []models.ToolCall
	for {
		switch conv.State {
		case models.StateToolRequested, models.StateToolExecuted, models.StateModelResponded:
			if len(conv.PendingCalls) > 0 {
				call := conv.PendingCalls[0]
				out, err := a.registry.Invoke(ctx, call.Name, call.Argument)
				if err != nil {
					return nil, a.abort(ctx, conv, err)
				}
				c := call
				conv.Pending = append(conv.Pending, models.Message{
					Role:      models.RoleTool,
					Content:   out,
					ToolName:  call.Name,
					ToolCall:  &c,
					CreatedAt: a.now(),
				})
				conv.PendingCalls = conv.PendingCalls[1:]
				executed = append(executed, call)
				if err := a.transition(ctx, conv, models.StateToolExecuted); err != nil {
					return nil, a.abort(ctx, conv, err)
				}
				continue
			}
			if err := a.transition(ctx, conv, models.StateAwaitingModel); err != nil {
				return nil, a.abort(ctx, conv, err)
			}

		case models.StateAwaitingModel, "":
			if conv.Iteration >= a.cfg.MaxIterations {
				return nil, a.abort(ctx, conv, fmt.Errorf("%w: no answer after %d model calls", models.ErrReasoningLimitExceeded, conv.Iteration))
			}
			turn, err := a.callModel(ctx, model, conv)
			if err != nil {
				return nil, a.abort(ctx, conv, err)
			}
			conv.Iteration++
			conv.PendingCalls = make([]models.ToolCall, len(turn.ToolCalls))
			for i, call := range turn.ToolCalls {
				call.Round = conv.Iteration
				conv.PendingCalls[i] = call
			}
			if err := a.transition(ctx, conv, models.StateModelResponded); err != nil {
				return nil, a.abort(ctx, conv, err)
			}

			if len(turn.ToolCalls) > 0 {
				if err := a.transition(ctx, conv, models.StateToolRequested); err != nil {
					return nil, a.abort(ctx, conv, err)
				}
				continue
			}

			answer := turn.Text
			if answer == "" {
				answer = emptyAnswer
			}
			conv.Pending = append(conv.Pending, models.Message{Role: models.RoleAssistant, Content: answer, CreatedAt: a.now()})
			steps := conv.Iteration
			conv.Messages = append(conv.Messages, conv.Pending...)
			conv.Pending, conv.PendingCalls = nil, nil
			if err := a.transition(ctx, conv, models.StateFinalAnswer); err != nil {
				return nil, err
			}
			a.log.Info("turn completed", "thread_id", conv.ThreadID, "steps", steps, "tool_calls", len(executed))
			return &models.RunResult{
				ThreadID:  conv.ThreadID,
				Answer:    answer,
				State:     models.StateFinalAnswer,
				Steps:     steps,
				ToolCalls: executed,
			}, nil

		default:
			return nil, a.abort(ctx, conv, fmt.Errorf("%w: unexpected agent state %q", models.ErrPersistence, conv.State))
		}
	}
}

func (a *AgentService) callModel(ctx context.Context, model llm.Model, conv *models.Conversation) (*llm.Turn, error) {
	catalog := a.registry.List()
	callCtx, cancel := context.WithTimeout(ctx, a.cfg.ModelTimeout)
	defer cancel()

	start := time.Now()
	turn, err := model.Generate(callCtx, llm.Request{
		System:   SystemPrompt(catalog),
		Messages: conv.History(),
		Tools:    catalog,
	})
	if err != nil {
		if !errors.Is(err, models.ErrExternalService) {
			err = fmt.Errorf("%w: %s: %v", models.ErrExternalService, model.Name(), err)
		}
		return nil, err
	}
	a.log.Debug("model responded", "thread_id", conv.ThreadID, "model", model.Name(),
		"tool_calls", len(turn.ToolCalls), "duration_ms", time.Since(start).Milliseconds())
	return turn, nil
}

// abort drops the in-flight turn, re-saves the committed state and returns
// cause. A failed rollback is logged; the committed messages in the previous
// checkpoint are unaffected either way.
func (a *AgentService) abort(ctx context.Context, conv *models.Conversation, cause error) error {
	a.log.Warn("turn aborted", "thread_id", conv.ThreadID, "state", conv.State, "error", cause, "kind", models.ErrorKind(cause))
	conv.Pending, conv.PendingCalls = nil, nil
	conv.Iteration = 0
	conv.State = models.StateFinalAnswer
	conv.UpdatedAt = a.now()
	if err := a.store.Save(context.WithoutCancel(ctx), conv); err != nil {
		a.log.Error("rollback checkpoint failed", "thread_id", conv.ThreadID, "error", err)
	}
	return cause
}

// threadLocks serializes runs on the same thread id.
type threadLocks struct {
	mu sync.Mutex
	m  map[string]*threadLock
}

type threadLock struct {
	mu   sync.Mutex
	refs int
}

func (l *threadLocks) lock(id string) func() {
	l.mu.Lock()
	if l.m == nil {
		l.m = make(map[string]*threadLock)
	}
	e, ok := l.m[id]
	if !ok {
		e = &threadLock{}
		l.m[id] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.m, id)
		}
		l.mu.Unlock()
	}
}
