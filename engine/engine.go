package engine

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/cognimesh/action"
	"github.com/hupe1980/cognimesh/config"
	"github.com/hupe1980/cognimesh/core"
	"github.com/hupe1980/cognimesh/evaluator"
	"github.com/hupe1980/cognimesh/logging"
	"github.com/hupe1980/cognimesh/memory"
	"github.com/hupe1980/cognimesh/model"
	"github.com/hupe1980/cognimesh/plan"
	"github.com/hupe1980/cognimesh/provider"
	"github.com/hupe1980/cognimesh/session"
)

// Options configures an Engine using the functional options pattern.
//
// Every collaborator has an in-memory default so an Engine works without
// external services:
//   - Store: memory.NewInMemoryStore()
//   - Counter: session.NewInMemoryCounter()
//   - Settings: an empty core.MapSettings
//   - Backend: nil, so turns produce no decision and plans a single step
//
// Example:
//
//	eng, err := New(func(o *Options) {
//	    o.Backend = openai.New(...)
//	    o.Store = sqlStore
//	    o.Logger = logger
//	})
type Options struct {
	// AgentID identifies the agent in persisted memories. Defaults to a
	// random UUID.
	AgentID string

	// Character feeds the CHARACTER provider. It is registered only when
	// Character.Name is set.
	Character provider.Character

	Store    core.MemoryStore
	Counter  session.Counter
	Settings core.Settings
	Backend  model.Backend

	// ModelParams are the default generation params of every model call.
	ModelParams model.Params

	// Sender enables the SEND_MESSAGE action when set.
	Sender action.Sender

	// Extra providers, actions and evaluators registered next to the
	// built-in ones.
	Providers  []provider.Provider
	Actions    []action.Action
	Evaluators []evaluator.Evaluator

	// TurnProviders are the static providers every turn composes in
	// addition to the dynamic ones. Defaults to CHARACTER.
	TurnProviders []string

	// MessageTemplate renders the message decision prompt.
	MessageTemplate string

	Runtime  config.RuntimeConfig
	Memory   config.MemoryConfig
	Planning config.PlanningConfig

	// Clock feeds the TIME provider. Defaults to time.Now.
	Clock func() time.Time

	Callbacks *CallbackManager
	Logger    logging.Logger
}

// Engine runs the per-turn cognitive pipeline and the plan engine.
//
// A turn flows from the State composer through the model decision to the
// action dispatcher; evaluators then run in the background. Plans are a
// separate entry point that reuses the model for classification and
// planning and the action registry for step execution.
//
// Only malformed input is returned as an error. Provider, model and action
// failures degrade the turn instead of failing it.
//
// An Engine is safe for concurrent use.
type Engine struct {
	agentID string
	opts    Options

	store   core.MemoryStore
	counter session.Counter
	invoker *model.Invoker

	providers  *provider.Registry
	composer   *provider.Composer
	actions    *action.Registry
	dispatcher *action.Dispatcher
	pipeline   *evaluator.Pipeline

	classifier *plan.Classifier
	planner    *plan.Planner
	executor   *plan.Executor

	callbacks *CallbackManager
	logger    logging.Logger
}

// New creates an Engine with the built-in providers, actions and evaluators
// plus those named in the options. Duplicate names are an error.
func New(optFns ...func(o *Options)) (*Engine, error) {
	opts := Options{
		TurnProviders:   []string{provider.NameCharacter},
		MessageTemplate: MessageTemplate,
		Runtime:         config.DefaultRuntimeConfig(),
		Memory:          config.DefaultMemoryConfig(),
		Planning:        config.DefaultPlanningConfig(),
		Clock:           time.Now,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.AgentID == "" {
		opts.AgentID = uuid.NewString()
	}

	if opts.Store == nil {
		opts.Store = memory.NewInMemoryStore()
	}

	if opts.Counter == nil {
		opts.Counter = session.NewInMemoryCounter()
	}

	if opts.Settings == nil {
		opts.Settings = core.MapSettings{}
	}

	if opts.Callbacks == nil {
		opts.Callbacks = NewCallbackManager()
	}

	opts.Logger = logging.OrNoOp(opts.Logger)

	e := &Engine{
		agentID:   opts.AgentID,
		opts:      opts,
		store:     opts.Store,
		counter:   opts.Counter,
		callbacks: opts.Callbacks,
		logger:    opts.Logger,
	}

	e.invoker = model.NewInvoker(opts.Backend, func(o *model.Options) {
		o.Timeout = opts.Runtime.ModelTimeout
		o.Params = opts.ModelParams
		o.Logger = opts.Logger
	})

	if err := e.buildActions(); err != nil {
		return nil, err
	}

	if err := e.buildProviders(); err != nil {
		return nil, err
	}

	e.buildEvaluators()
	e.buildPlanning()

	return e, nil
}

func (e *Engine) buildActions() error {
	reg, err := action.NewRegistry(append(action.Builtins(e.opts.Sender), e.opts.Actions...)...)
	if err != nil {
		return err
	}

	e.actions = reg
	e.dispatcher = action.NewDispatcher(reg, func(o *action.Options) {
		o.Timeout = e.opts.Runtime.ActionTimeout
		o.Logger = e.logger
	})

	return nil
}

func (e *Engine) buildProviders() error {
	builtins := []provider.Provider{
		provider.NewTimeProvider(e.opts.Clock),
		provider.NewSummaryProvider(e.store),
		provider.NewRecentMessagesProvider(e.store, e.opts.Runtime.RecentMessages),
		provider.NewFactsProvider(e.store, e.opts.Runtime.RecentMessages),
		provider.NewKnowledgeProvider(e.store, 5),
		provider.NewActionsProvider(e.dispatcher),
		provider.NewSettingsProvider(e.opts.Settings),
	}

	if e.opts.Character.Name != "" {
		builtins = append(builtins, provider.NewCharacterProvider(e.opts.Character))
	}

	reg, err := provider.NewRegistry(append(builtins, e.opts.Providers...)...)
	if err != nil {
		return err
	}

	e.providers = reg
	e.composer = provider.NewComposer(reg, func(o *provider.Options) {
		o.Timeout = e.opts.Runtime.ProviderTimeout
		o.MaxConcurrency = e.opts.Runtime.MaxProviderConcurrency
		o.CacheSize = e.opts.Runtime.StaticCacheSize
		o.CacheTTL = e.opts.Runtime.StaticCacheTTL
		o.Logger = e.logger
	})

	return nil
}

func (e *Engine) buildEvaluators() {
	mc := e.opts.Memory

	evals := []evaluator.Evaluator{
		evaluator.NewSummarizer(e.store, e.invoker, func(o *evaluator.SummarizerOptions) {
			o.Threshold = int64(mc.ShortTermSummarizationThreshold)
			o.Interval = int64(mc.ShortTermSummarizationInterval)
			o.RetainRecent = mc.ShortTermRetainRecent
			o.MaxTokens = mc.SummaryMaxTokens
			o.MaxNewMessages = mc.SummaryMaxNewMessages
		}),
		evaluator.NewFactExtractor(e.store, e.invoker, func(o *evaluator.FactExtractorOptions) {
			o.Enabled = mc.LongTermExtractionEnabled
			o.Threshold = int64(mc.LongTermExtractionThreshold)
			o.Interval = int64(mc.LongTermExtractionInterval)
			o.MinConfidence = mc.LongTermConfidenceThreshold
			o.RecentMessages = e.opts.Runtime.RecentMessages
		}),
	}

	e.pipeline = evaluator.NewPipeline(append(evals, e.opts.Evaluators...), func(o *evaluator.Options) {
		o.Timeout = e.opts.Runtime.EvaluatorTimeout
		o.Counter = e.counter
		o.Logger = e.logger
	})
}

func (e *Engine) buildPlanning() {
	pc := e.opts.Planning

	e.classifier = plan.NewClassifier(e.invoker, func(o *plan.ClassifierOptions) {
		o.Logger = e.logger
	})

	e.planner = plan.NewPlanner(e.invoker, e.classifier, func(o *plan.PlannerOptions) {
		o.Capabilities = e.capabilities
		o.Logger = e.logger
	})

	e.executor = plan.NewExecutor(plan.NewActionStepExecutor(e.dispatcher, nil), func(o *plan.Options) {
		o.MaxConcurrentSteps = pc.MaxConcurrentSteps
		o.Deadline = pc.Deadline
		o.EnableAdaptation = pc.EnableAdaptation
		o.MaxReplans = pc.MaxReplans
		o.Retry = plan.RetryPolicy{
			MaxAttempts:  pc.Retry.MaxAttempts,
			InitialDelay: pc.Retry.InitialDelay,
			MaxDelay:     pc.Retry.MaxDelay,
			Multiplier:   pc.Retry.Multiplier,
		}
		o.Replanner = e.planner
		o.Logger = e.logger
	})
}

// AgentID returns the id the engine stores its own messages under.
func (e *Engine) AgentID() string { return e.agentID }

// Providers returns the provider registry.
func (e *Engine) Providers() *provider.Registry { return e.providers }

// Actions returns the action registry.
func (e *Engine) Actions() *action.Registry { return e.actions }

// Store returns the memory store.
func (e *Engine) Store() core.MemoryStore { return e.store }

// Callbacks returns the callback manager.
func (e *Engine) Callbacks() *CallbackManager { return e.callbacks }

// Compose builds the State for msg. Without names every provider runs;
// with names the dynamic providers run plus the named static ones.
func (e *Engine) Compose(ctx context.Context, msg *core.Message, names ...string) (*core.State, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	sel := provider.Selection{All: len(names) == 0, Names: names}

	return e.compose(ctx, msg, sel)
}

func (e *Engine) compose(ctx context.Context, msg *core.Message, sel provider.Selection) (*core.State, error) {
	if err := e.callbacks.ExecuteCallbacks(ctx, CallbackBeforeCompose, &CallbackContext{Message: msg}); err != nil {
		return nil, err
	}

	state, err := e.composer.Compose(ctx, msg, sel)
	if err != nil {
		return nil, err
	}

	e.after(ctx, CallbackAfterCompose, &CallbackContext{Message: msg, State: state})

	return state, nil
}

// RunTurn processes one inbound message and returns the results of the
// actions it ran, in execution order.
//
// The message is stored and counted, the State composed and the model asked
// for a decision. When the decision names providers the State is composed
// again with them. The selected actions then run sequentially, each seeing
// the results before it, and reply texts are stored as agent messages.
// Evaluators start afterwards and do not delay the return.
//
// A turn without a usable decision returns no results and no error. Only
// an invalid message is an error.
func (e *Engine) RunTurn(ctx context.Context, msg *core.Message) ([]core.ActionResult, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()

	e.remember(ctx, msg)
	count := e.increment(ctx, msg.RoomID)

	state, err := e.compose(ctx, msg, provider.Selection{Names: e.opts.TurnProviders})
	if err != nil {
		return nil, err
	}

	decision, err := e.decide(ctx, msg, state)
	if err != nil {
		if !model.IsNoDecision(err) {
			return nil, err
		}

		e.logger.Warn("engine.turn.no_decision", "room", msg.RoomID, "message", msg.ID, "error", err)
		e.after(ctx, CallbackOnError, &CallbackContext{Message: msg, State: state, Err: err})
		e.pipeline.MaybeRun(ctx, evaluator.Input{Message: msg, State: state, Count: count})

		return []core.ActionResult{}, nil
	}

	if len(decision.Providers) > 0 {
		names := append(slices.Clone(e.opts.TurnProviders), decision.Providers...)

		if state, err = e.compose(ctx, msg, provider.Selection{Names: names}); err != nil {
			return nil, err
		}
	}

	state = e.decisionState(state, decision)

	candidates := e.dispatcher.ValidateCandidates(ctx, msg, state)
	selected := e.dispatcher.Select(decision.Actions, candidates, msg)

	results := e.execute(ctx, selected, msg, state)

	for _, r := range results {
		if !r.Success {
			continue
		}

		if text, ok := r.Values[core.ValueReply].(string); ok && text != "" {
			e.remember(ctx, msg.Reply(e.agentID, text))
			count = e.increment(ctx, msg.RoomID)
		}
	}

	e.pipeline.MaybeRun(ctx, evaluator.Input{Message: msg, State: state, Count: count}, decision.Evaluators...)

	e.logger.Info("engine.turn.done", "room", msg.RoomID, "message", msg.ID,
		"actions", len(results), "count", count, "duration", time.Since(start))

	return results, nil
}

func (e *Engine) decide(ctx context.Context, msg *core.Message, state *core.State) (*Decision, error) {
	if err := e.callbacks.ExecuteCallbacks(ctx, CallbackBeforeModel, &CallbackContext{Message: msg, State: state}); err != nil {
		return nil, err
	}

	resp, err := e.invoker.InvokeWith(ctx, state, e.opts.MessageTemplate, model.TypeTextLarge, map[string]any{
		"message":    msg.Content.Text,
		"senderName": msg.EntityID,
	}, model.Params{})
	if err != nil {
		return nil, err
	}

	decision := ParseDecision(resp)

	e.logger.Debug("engine.turn.decision", "room", msg.RoomID, "actions", strings.Join(decision.Actions, ","),
		"providers", strings.Join(decision.Providers, ","))
	e.after(ctx, CallbackAfterModel, &CallbackContext{Message: msg, State: state, Decision: decision})

	return decision, nil
}

// decisionState adds the decision's reply text, thought and action params
// to state. Params addressed to unknown actions are dropped.
func (e *Engine) decisionState(state *core.State, d *Decision) *core.State {
	state = state.WithValues(map[string]any{
		core.ValueResponseText: d.Text,
		core.ValueThought:      d.Thought,
	})

	for name, params := range d.Params {
		if a, ok := e.actions.Lookup(name); ok {
			state = action.WithParams(state, a.Name(), params)
		}
	}

	return state
}

func (e *Engine) execute(ctx context.Context, names []string, msg *core.Message, state *core.State) []core.ActionResult {
	results := make([]core.ActionResult, 0, len(names))

	for _, name := range names {
		if err := e.callbacks.ExecuteCallbacks(ctx, CallbackBeforeAction, &CallbackContext{Message: msg, State: state, Action: name}); err != nil {
			e.logger.Warn("engine.action.blocked", "action", name, "error", err)
			results = append(results, core.FailedResult(name, core.Wrap(core.CodeActionHandler, name, err)))

			continue
		}

		res := e.dispatcher.Execute(ctx, []string{name}, msg, state, results)[0]
		results = append(results, res)

		e.after(ctx, CallbackAfterAction, &CallbackContext{Message: msg, State: state, Action: res.Action, Result: &res})

		if !res.Success {
			e.after(ctx, CallbackOnError, &CallbackContext{Message: msg, State: state, Action: res.Action, Result: &res, Err: res.Err})
		}
	}

	return results
}

// remember stores msg as a message memory. Storage failures are logged.
func (e *Engine) remember(ctx context.Context, msg *core.Message) {
	md := map[string]any{}
	for k, v := range msg.Metadata {
		md[k] = v
	}

	if msg.Content.Source != "" {
		md["source"] = msg.Content.Source
	}

	_, err := e.store.CreateMemory(ctx, core.Memory{
		ID:        msg.ID,
		Type:      core.MemoryMessage,
		RoomID:    msg.RoomID,
		AgentID:   e.agentID,
		EntityID:  msg.EntityID,
		Content:   msg.Content.Text,
		Metadata:  md,
		CreatedAt: msg.CreatedAt,
	})
	if err != nil {
		e.logger.Warn("engine.memory.store_failed", "room", msg.RoomID, "message", msg.ID, "error", err)
	}
}

// increment counts a message in room. A counter failure is logged and
// reported as count zero, which keeps gated evaluators idle.
func (e *Engine) increment(ctx context.Context, roomID string) int64 {
	n, err := e.counter.Increment(ctx, roomID)
	if err != nil {
		e.logger.Warn("engine.counter.failed", "room", roomID, "error", err)
		return 0
	}

	return n
}

// PlanExecution is the outcome of CreateAndExecutePlan.
type PlanExecution struct {
	Classification plan.Classification   `json:"classification"`
	Plan           plan.Snapshot         `json:"plan"`
	Report         *plan.ExecutionReport `json:"report"`
}

// Classify grades goal without planning it.
func (e *Engine) Classify(ctx context.Context, goal string) (plan.Classification, error) {
	return e.classifier.Classify(ctx, goal, nil)
}

// CreatePlan plans goal without executing it.
func (e *Engine) CreatePlan(ctx context.Context, goal string) (*plan.Plan, plan.Classification, error) {
	cls, err := e.classifier.Classify(ctx, goal, nil)
	if err != nil {
		return nil, plan.Classification{}, err
	}

	p, err := e.planner.CreatePlan(ctx, plan.Context{Goal: goal, Classification: &cls})
	if err != nil {
		return nil, cls, err
	}

	return p, cls, nil
}

// CreateAndExecutePlan classifies goal, plans it and executes the plan with
// the registered actions as capabilities. An empty goal or a plan the
// model produced with a dependency cycle is an error; step failures are
// reported in the execution report.
func (e *Engine) CreateAndExecutePlan(ctx context.Context, goal string) (*PlanExecution, error) {
	p, cls, err := e.CreatePlan(ctx, goal)
	if err != nil {
		return nil, err
	}

	return e.ExecutePlan(ctx, p, cls)
}

// ExecutePlan executes a plan created by CreatePlan.
func (e *Engine) ExecutePlan(ctx context.Context, p *plan.Plan, cls plan.Classification) (*PlanExecution, error) {
	report, err := e.executor.Execute(ctx, p)
	if err != nil {
		return nil, err
	}

	if cbErr := e.callbacks.ExecuteCallbacks(ctx, CallbackPlanFinished, &CallbackContext{Report: report, Err: report.Err}); cbErr != nil {
		e.logger.Warn("engine.callback.failed", "type", string(CallbackPlanFinished), "error", cbErr)
	}

	return &PlanExecution{Classification: cls, Plan: p.Snapshot(), Report: report}, nil
}

// CancelPlan stops dispatching steps of a running plan. Steps in flight
// finish. It reports whether the plan was running.
func (e *Engine) CancelPlan(planID string) bool {
	return e.executor.Cancel(planID)
}

// RunningPlans returns the ids of executing plans.
func (e *Engine) RunningPlans() []string {
	return e.executor.Running()
}

// Wait blocks until background evaluators finished.
func (e *Engine) Wait() {
	e.pipeline.Wait()
}

func (e *Engine) capabilities() []string {
	acts := e.actions.Actions()

	names := make([]string, 0, len(acts))
	for _, a := range acts {
		names = append(names, a.Name())
	}

	return names
}

// after runs callbacks whose errors do not change the outcome.
func (e *Engine) after(ctx context.Context, t CallbackType, cc *CallbackContext) {
	if err := e.callbacks.ExecuteCallbacks(ctx, t, cc); err != nil {
		e.logger.Warn("engine.callback.failed", "type", string(t), "error", err)
	}
}
