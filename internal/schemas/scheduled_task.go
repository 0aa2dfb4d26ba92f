package schemas

import "time"

// ScheduledTask is one row of the task table: the input source the serve
// worker pool polls, external to the core's own scheduling (the
// task-creation form and its cron-string generator are not part of this
// engine).
type ScheduledTask struct {
	ID          string
	CreatorID   string
	Name        string
	Instruction string
	URL         string
	Cron        string
	IsActive    bool
	NextRunAt   time.Time
	LastRunAt   time.Time
}

// ToTaskInput projects a ScheduledTask onto the TaskInput the orchestrator
// consumes, defaulting execution mode to auto so a cached plan replays and
// an uncached one falls back to the interactive loop.
func (t ScheduledTask) ToTaskInput() TaskInput {
	return TaskInput{
		Instruction: t.Instruction,
		URL:         t.URL,
		TaskID:      t.ID,
		Options:     &TaskOptions{ExecutionMode: ModeAuto},
	}
}
