// internal/agent/models.go
package agent

// stage tracks how far the run progressed. Stages advance strictly forward;
// none is re-entered. The stage reached when a run dies determines how much
// partial data the report carries.
type stage string

const (
	stageStart               stage = "start"
	stageResolvingBase       stage = "resolving_base"
	stageEstablishingSession stage = "establishing_session"
	stageResolvingTaskURL    stage = "resolving_task_url"
	stageNavigatingTask      stage = "navigating_task"
	stagePlanning            stage = "planning"
	stageExecuting           stage = "executing"
	stageReporting           stage = "reporting"
	stageDone                stage = "done"
	stageFailed              stage = "failed"
)
