// Package agents provides the LLM-backed collaborators that drive each
// pipeline stage: planner, coder, tester, debugger, and documenter. All
// five share one chat model and differ only in their system prompts and
// post-processing.
package agents
