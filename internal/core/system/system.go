package system

import "time"

// Phase defines execution ordering within a single tick.
type Phase int

const (
	PhaseUpdate     Phase = iota // 0: movement, link maintenance
	PhasePostUpdate              // 1: touch resolution, diagnostics
	PhasePersist                 // 2: batch snapshot save
	PhaseCleanup                 // 3: destroy queued entities
)

// System is the interface every tick system implements.
type System interface {
	Phase() Phase
	Update(dt time.Duration)
}
