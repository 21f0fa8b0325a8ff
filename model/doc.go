// Package model defines the provider-agnostic abstractions for interacting
// with language models inside cognimesh.
//
// Core pieces:
//   - Backend: the narrow generate(type, prompt, params) -> text interface
//     vendor adapters implement (see model/openai, model/anthropic)
//   - Invoker: renders a prompt template from State, calls the backend under
//     a timeout and parses the constrained response format
//   - Parse / ParseBlocks: the tag/keyword response parser
//   - MockBackend: deterministic canned responses for tests and examples
//
// Higher layers (engine, evaluators, planner) only see Invoker and Response,
// so swapping vendors never touches pipeline code.
package model
