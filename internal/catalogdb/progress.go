package catalogdb

import "time"

// Progress is the three-callback progress mechanism from spec.md §9:
// init(maxSteps), step(progressPerMille), done(elapsedSec). Core modules
// compute maxSteps before starting and call Step incrementally; output
// formatting belongs to the caller, not to this type.
type Progress struct {
	Init func(maxSteps int64)
	Step func(progressPerMille int)
	Done func(elapsedSec float64)

	max     int64
	current int64
	started time.Time
}

// NoProgress is a Progress value whose callbacks are all no-ops, for
// operations invoked without a reporter attached.
var NoProgress = Progress{
	Init: func(int64) {},
	Step: func(int) {},
	Done: func(float64) {},
}

// Start records maxSteps and invokes Init. Callers must call Start before
// any Advance call.
func (p *Progress) Start(maxSteps int64) {
	p.max = maxSteps
	p.current = 0
	p.started = time.Now()
	if p.Init != nil {
		p.Init(maxSteps)
	}
}

// Advance records n completed steps and invokes Step with the new
// per-mille completion ratio. It is a no-op when max is zero, so callers
// never need to special-case empty catalogs.
func (p *Progress) Advance(n int64) {
	p.current += n
	if p.max <= 0 || p.Step == nil {
		return
	}
	perMille := int(p.current * 1000 / p.max)
	if perMille > 1000 {
		perMille = 1000
	}
	p.Step(perMille)
}

// Finish invokes Done with the elapsed time since Start.
func (p *Progress) Finish() {
	if p.Done != nil {
		p.Done(time.Since(p.started).Seconds())
	}
}
