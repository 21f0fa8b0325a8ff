package engine

import (
	"context"
	"sync"

	"github.com/hupe1980/cognimesh/core"
	"github.com/hupe1980/cognimesh/logging"
	"github.com/hupe1980/cognimesh/plan"
)

// CallbackType defines the lifecycle points where callbacks run.
//
// Callbacks hook into the turn and plan pipelines without modifying them.
// They run synchronously in registration order. An error returned from a
// "before" callback stops the associated stage:
//   - BeforeCompose/BeforeModel: the turn ends and RunTurn returns the error
//   - BeforeAction: the action is recorded as failed and the chain continues
//
// Errors from the remaining callback types are logged and otherwise ignored.
type CallbackType string

const (
	// CallbackBeforeCompose runs before providers are queried.
	CallbackBeforeCompose CallbackType = "before_compose"

	// CallbackAfterCompose runs with the composed State.
	CallbackAfterCompose CallbackType = "after_compose"

	// CallbackBeforeModel runs before the message decision is requested.
	CallbackBeforeModel CallbackType = "before_model"

	// CallbackAfterModel runs with the parsed decision.
	CallbackAfterModel CallbackType = "after_model"

	// CallbackBeforeAction runs before each selected action.
	CallbackBeforeAction CallbackType = "before_action"

	// CallbackAfterAction runs with each action result.
	CallbackAfterAction CallbackType = "after_action"

	// CallbackOnError runs when a stage degrades, such as a turn without a
	// decision or a failed action.
	CallbackOnError CallbackType = "on_error"

	// CallbackPlanFinished runs when a plan reaches a terminal state.
	CallbackPlanFinished CallbackType = "plan_finished"
)

// CallbackContext carries what a callback may inspect. Fields not relevant
// to the callback type are zero.
type CallbackContext struct {
	Type     CallbackType
	Message  *core.Message
	State    *core.State
	Decision *Decision
	// Action is the action about to run or that ran.
	Action string
	Result *core.ActionResult
	Report *plan.ExecutionReport
	Err    error
	// Metadata is free-form data shared between callbacks of one call.
	Metadata map[string]any
}

// Callback is an execution lifecycle hook.
//
// Callbacks should be fast since they block the pipeline, and must be safe
// for concurrent use because turns run concurrently.
type Callback interface {
	// Type returns the lifecycle point the callback handles.
	Type() CallbackType

	// Execute performs the callback logic.
	Execute(ctx context.Context, cc *CallbackContext) error
}

// FunctionCallback wraps a function as a callback.
//
// Example:
//
//	audit := NewFunctionCallback(CallbackAfterAction, func(ctx context.Context, cc *CallbackContext) error {
//	    log.Printf("%s -> %v", cc.Action, cc.Result.Success)
//	    return nil
//	})
type FunctionCallback struct {
	callbackType CallbackType
	fn           func(ctx context.Context, cc *CallbackContext) error
}

// NewFunctionCallback creates a function based callback.
func NewFunctionCallback(callbackType CallbackType, fn func(ctx context.Context, cc *CallbackContext) error) *FunctionCallback {
	return &FunctionCallback{callbackType: callbackType, fn: fn}
}

// Type returns the callback type this function handles.
func (c *FunctionCallback) Type() CallbackType { return c.callbackType }

// Execute calls the wrapped function.
func (c *FunctionCallback) Execute(ctx context.Context, cc *CallbackContext) error {
	return c.fn(ctx, cc)
}

// CallbackManager routes callbacks by type. Registration and execution are
// safe for concurrent use.
type CallbackManager struct {
	mu        sync.RWMutex
	callbacks map[CallbackType][]Callback
}

// NewCallbackManager creates an empty manager.
func NewCallbackManager() *CallbackManager {
	return &CallbackManager{callbacks: make(map[CallbackType][]Callback)}
}

// RegisterCallback adds a callback. Callbacks of one type run in
// registration order.
func (cm *CallbackManager) RegisterCallback(callback Callback) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	t := callback.Type()
	cm.callbacks[t] = append(cm.callbacks[t], callback)
}

// ExecuteCallbacks runs the callbacks registered for callbackType and
// returns the first error. Later callbacks do not run after an error.
func (cm *CallbackManager) ExecuteCallbacks(ctx context.Context, callbackType CallbackType, cc *CallbackContext) error {
	cm.mu.RLock()
	callbacks := cm.callbacks[callbackType]
	cm.mu.RUnlock()

	cc.Type = callbackType

	for _, callback := range callbacks {
		if err := callback.Execute(ctx, cc); err != nil {
			return err
		}
	}

	return nil
}

// LoggingCallback writes lifecycle events to a logger as
// "engine.callback.<type>".
type LoggingCallback struct {
	callbackType CallbackType
	logger       logging.Logger
}

// NewLoggingCallback creates a logging callback.
func NewLoggingCallback(callbackType CallbackType, logger logging.Logger) *LoggingCallback {
	return &LoggingCallback{callbackType: callbackType, logger: logging.OrNoOp(logger)}
}

// Type returns the callback type this logger handles.
func (c *LoggingCallback) Type() CallbackType { return c.callbackType }

// Execute logs the event.
func (c *LoggingCallback) Execute(_ context.Context, cc *CallbackContext) error {
	kv := []any{}

	if cc.Message != nil {
		kv = append(kv, "room", cc.Message.RoomID, "message", cc.Message.ID)
	}

	if cc.Action != "" {
		kv = append(kv, "action", cc.Action)
	}

	if cc.Result != nil {
		kv = append(kv, "success", cc.Result.Success)
	}

	if cc.Report != nil {
		kv = append(kv, "plan", cc.Report.PlanID, "status", string(cc.Report.Status))
	}

	if cc.Err != nil {
		kv = append(kv, "error", cc.Err)
	}

	c.logger.Info("engine.callback."+string(c.callbackType), kv...)

	return nil
}

// ActionGuardCallback vets every action before it runs. A non-nil error
// from the guard fails the action without running its handler.
//
// Example:
//
//	guard := NewActionGuardCallback(func(action string, _ *core.State) error {
//	    if action == "SEND_MESSAGE" && !sendingEnabled {
//	        return errors.New("sending disabled")
//	    }
//	    return nil
//	})
type ActionGuardCallback struct {
	guard func(action string, state *core.State) error
}

// NewActionGuardCallback creates an action guard.
func NewActionGuardCallback(guard func(action string, state *core.State) error) *ActionGuardCallback {
	return &ActionGuardCallback{guard: guard}
}

// Type returns CallbackBeforeAction.
func (c *ActionGuardCallback) Type() CallbackType { return CallbackBeforeAction }

// Execute runs the guard.
func (c *ActionGuardCallback) Execute(_ context.Context, cc *CallbackContext) error {
	if c.guard == nil {
		return nil
	}

	return c.guard(cc.Action, cc.State)
}
