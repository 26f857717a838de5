package orchestrator

// OrchestratorBuilderOption is a functional option for configuring an Orchestrator.
type OrchestratorBuilderOption func(*orchestrator)

// WithInitialMode sets the run mode the orchestrator starts in. The default is ModePaused.
//
// Parameters:
//   - mode: the initial run mode
//
// Returns:
//   - OrchestratorBuilderOption: option function to apply
func WithInitialMode(mode Mode) OrchestratorBuilderOption {
	return func(o *orchestrator) {
		o.initialMode = mode
	}
}

// WithMaxConsecutiveFailures sets how many failed steps, or failed renders, in a row are tolerated
// before Frame returns ErrFatal. Values <= 0 use DefaultMaxConsecutiveFailures.
//
// Parameters:
//   - n: the failure budget
//
// Returns:
//   - OrchestratorBuilderOption: option function to apply
func WithMaxConsecutiveFailures(n int) OrchestratorBuilderOption {
	return func(o *orchestrator) {
		o.maxFailures = n
	}
}

// WithGenerationLimit pauses the run once n generations have been computed since the last seed.
// Pass 0 for no limit.
//
// Parameters:
//   - n: the generation limit
//
// Returns:
//   - OrchestratorBuilderOption: option function to apply
func WithGenerationLimit(n uint64) OrchestratorBuilderOption {
	return func(o *orchestrator) {
		o.generationLimit = n
	}
}

// WithExitOnLimit makes reaching the generation limit mark the orchestrator done instead of pausing.
//
// Parameters:
//   - exit: true to finish at the limit
//
// Returns:
//   - OrchestratorBuilderOption: option function to apply
func WithExitOnLimit(exit bool) OrchestratorBuilderOption {
	return func(o *orchestrator) {
		o.exitOnLimit = exit
	}
}
