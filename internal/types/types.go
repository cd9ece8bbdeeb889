// Package types holds the entities shared across storage, documents, search,
// tasks, and executor packages. Keeping them in one leaf package avoids
// import cycles between the layers that operate on them.
package types

import "time"

// DocumentSourceKind records where a document came from, so a
// delegate/skill/recipe-produced document is never mistaken for a
// standalone top-level item.
type DocumentSourceKind string

const (
	SourceUser      DocumentSourceKind = "user"
	SourceExecution DocumentSourceKind = "execution"
	SourceSkill     DocumentSourceKind = "skill"
	SourceRecipe    DocumentSourceKind = "recipe"
	SourceImport    DocumentSourceKind = "import"
)

// Document is the unit of knowledge storage: content-addressable,
// taggable, and independently archivable/trashable.
type Document struct {
	ID          int64
	Title       string
	Content     string
	Project     string
	ParentID    *int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
	AccessedAt  time.Time
	AccessCount uint64
	ArchivedAt  *time.Time
	DeletedAt   *time.Time
	Tags        []string
}

// IsDeleted reports whether the document is in the trash.
func (d *Document) IsDeleted() bool { return d.DeletedAt != nil }

// IsArchived reports whether the document is archived (live but hidden).
func (d *Document) IsArchived() bool { return d.ArchivedAt != nil }

// Tag is a free-form label; the name is unique and case-preserved, but
// compared case-insensitively by callers above the storage boundary.
type Tag struct {
	ID         int64
	Name       string
	UsageCount int64
	CreatedAt  time.Time
}

// LinkMethod classifies how a DocumentLink was derived.
type LinkMethod string

const (
	LinkKeyword  LinkMethod = "keyword"
	LinkSemantic LinkMethod = "semantic"
	LinkManual   LinkMethod = "manual"
)

// DocumentLink is a directed, recomputable similarity edge between two
// documents. Links are not authoritative — they can always be rebuilt.
type DocumentLink struct {
	FromID          int64
	ToID            int64
	SimilarityScore float64
	Method          LinkMethod
}

// DocumentSource is the provenance row for a non-user-authored document.
type DocumentSource struct {
	DocumentID int64
	SourceKind DocumentSourceKind
	SourceID   string
}

// TaskStatus is the task state-machine position. See the transition table
// in the task package for which moves are legal.
type TaskStatus string

const (
	TaskOpen    TaskStatus = "open"
	TaskActive  TaskStatus = "active"
	TaskBlocked TaskStatus = "blocked"
	TaskDone    TaskStatus = "done"
	TaskFailed  TaskStatus = "failed"
	TaskWontdo  TaskStatus = "wontdo"
)

// Task is a unit of work, optionally grouped under an epic and gated by
// dependencies on other tasks.
type Task struct {
	ID           int64
	Title        string
	Description  string
	Status       TaskStatus
	Priority     int // 1..5, 1 = highest, default 3
	EpicKey      string
	EpicSeq      int
	Category     string
	SourceDocID  *int64
	ParentTaskID *int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
	CompletedAt  *time.Time
}

// EpicStatus is the aggregate status of an epic's tasks.
type EpicStatus string

const (
	EpicOpen   EpicStatus = "open"
	EpicActive EpicStatus = "active"
	EpicDone   EpicStatus = "done"
)

// Epic groups related tasks under a stable short key.
type Epic struct {
	Key       string
	Title     string
	Category  string
	Status    EpicStatus
	CreatedAt time.Time
}

// TaskDependency records that DependentID depends on (is blocked by)
// DependencyID.
type TaskDependency struct {
	DependentID  int64
	DependencyID int64
}

// TaskLogKind classifies a task_log entry.
type TaskLogKind string

const (
	TaskLogStatusChange TaskLogKind = "status_change"
	TaskLogNote         TaskLogKind = "note"
)

// TaskLogEntry is an immutable, append-only history row.
type TaskLogEntry struct {
	ID        int64
	TaskID    int64
	Kind      TaskLogKind
	Message   string
	CreatedAt time.Time
}

// WorkFilter narrows a task listing or readiness query.
type WorkFilter struct {
	Status          []TaskStatus
	EpicKey         string
	Category        string
	IncludeArchived bool
	Limit           int
}

// ExecutionStatus is the delegate-execution lifecycle position.
type ExecutionStatus string

const (
	ExecPending   ExecutionStatus = "pending"
	ExecRunning   ExecutionStatus = "running"
	ExecCompleted ExecutionStatus = "completed"
	ExecFailed    ExecutionStatus = "failed"
	ExecTimeout   ExecutionStatus = "timeout"
	ExecKilled    ExecutionStatus = "killed"
)

// ExecutionMode selects the post-completion behavior of a delegate run.
type ExecutionMode string

const (
	ModeSynthesize ExecutionMode = "synthesize"
	ModeDoc        ExecutionMode = "doc"
	ModeBranch     ExecutionMode = "branch"
	ModePR         ExecutionMode = "pr"
)

// Execution tracks a single spawned agent subprocess.
type Execution struct {
	ID             string
	Task           string // the prompt text handed to the agent
	ToolAllowlist  []string
	WorkingDir     string
	Model          string
	Mode           ExecutionMode
	Status         ExecutionStatus
	PID            int
	StartedAt      time.Time
	LastHeartbeat  *time.Time
	CompletedAt    *time.Time
	ExitCode       *int
	LogPath        string
	StdoutTail     string
	TokensIn       int64
	TokensOut      int64
	CostUSD        *float64
	WorktreePath   string
	Branch         string
	DocIDOutput    *int64
	PRURL          string
	FailureReason  string
}

// SortPolicy controls ready-work ordering in listing/search contexts beyond
// the fixed (priority asc, created_at asc) readiness order.
type SortPolicy string

const (
	SortPriority SortPolicy = "priority"
	SortOldest   SortPolicy = "oldest"
	SortHybrid   SortPolicy = "hybrid"
)
