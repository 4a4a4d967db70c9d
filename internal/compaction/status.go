package compaction

// Status reports how close a reconstructed context is to triggering
// compaction, without running a pass — the supplemented introspection
// surface (e.g. a CLI status line, or a tool definition the model itself
// can call) that spec.md's distillation omits but a complete runtime
// benefits from.
type Status struct {
	CtxTokens int
	Window    int
	Reserve   int

	// Threshold is Window - Reserve: the point at which Trigger flips true.
	Threshold int

	// TokensOverflow is max(0, CtxTokens-Threshold).
	TokensOverflow int

	WouldTrigger bool
}

// ComputeStatus builds a Status snapshot for the given token counts,
// applying the same reserve default Trigger does.
func ComputeStatus(ctxTokens, window, reserve int) Status {
	if reserve <= 0 {
		reserve = DefaultReserveTokens
	}
	threshold := window - reserve
	overflow := ctxTokens - threshold
	if overflow < 0 {
		overflow = 0
	}
	return Status{
		CtxTokens:      ctxTokens,
		Window:         window,
		Reserve:        reserve,
		Threshold:      threshold,
		TokensOverflow: overflow,
		WouldTrigger:   ctxTokens > threshold,
	}
}
