// Package engine wires the cognimesh pipeline together.
//
// The Engine owns the provider, action and evaluator registries, the model
// invoker and the plan engine, and exposes the three entry points callers
// use: Compose, RunTurn and CreateAndExecutePlan.
//
// # Turn Flow
//
//	message
//	   │
//	   ▼
//	┌──────────────┐   store + count   ┌──────────────┐
//	│   RunTurn    │──────────────────▶│ MemoryStore  │
//	└──────┬───────┘                   │   Counter    │
//	       │                           └──────────────┘
//	       ▼
//	┌──────────────┐  providers run concurrently, blocks ordered by position
//	│   Composer   │
//	└──────┬───────┘
//	       ▼
//	┌──────────────┐  message decision: actions, providers, params, text
//	│   Invoker    │
//	└──────┬───────┘
//	       ▼
//	┌──────────────┐  validate, select, run sequentially with prior results
//	│  Dispatcher  │
//	└──────┬───────┘
//	       ▼
//	┌──────────────┐  background, gated by message counts
//	│  Evaluators  │
//	└──────────────┘
//
// # Degradation
//
// Only a message without id, room or entity fails a turn. A failing
// provider leaves an empty block, a failing or unparseable model call ends
// the turn without actions and a failing action is reported in its
// ActionResult while the chain continues.
//
// # Plans
//
// CreateAndExecutePlan classifies a goal with the small model tier, plans it
// with the large tier and executes the steps through the action registry,
// sequentially, in parallel or as a dependency graph. The planner also
// revises plans whose steps failed.
//
// # Callbacks
//
// A CallbackManager hooks into both flows without changing them:
//
//	eng.Callbacks().RegisterCallback(engine.NewActionGuardCallback(func(a string, _ *core.State) error {
//	    if a == "SEND_MESSAGE" {
//	        return errors.New("sending is disabled")
//	    }
//	    return nil
//	}))
package engine
