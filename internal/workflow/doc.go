// Package workflow implements the devloop run orchestrator: a five-stage
// pipeline (plan, implement, verify, repair, document) driven by an
// explicit transition table with conditional routing after the verify and
// repair stages.
//
// Each stage delegates its real work to an injected collaborator; the
// package owns only the stage graph, the routing decisions, the bounded
// verify/repair cycle, and the run state the stages mutate. A run executes
// as a single logical sequence; independent runs may execute concurrently
// because they share nothing mutable.
package workflow
