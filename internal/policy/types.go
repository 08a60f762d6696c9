package policy

import "strings"

// RiskLevel classifies how dangerous an operation is. Levels are ordered:
// safe < low < medium < high < blocked.
type RiskLevel string

const (
	RiskSafe    RiskLevel = "safe"
	RiskLow     RiskLevel = "low"
	RiskMedium  RiskLevel = "medium"
	RiskHigh    RiskLevel = "high"
	RiskBlocked RiskLevel = "blocked"
)

var riskRank = map[RiskLevel]int{
	RiskSafe:    0,
	RiskLow:     1,
	RiskMedium:  2,
	RiskHigh:    3,
	RiskBlocked: 4,
}

// Rank returns the ordinal position of the level. Unknown levels rank
// above blocked so they can never slip through a threshold comparison.
func (r RiskLevel) Rank() int {
	if rank, ok := riskRank[r]; ok {
		return rank
	}
	return riskRank[RiskBlocked] + 1
}

// AtLeast reports whether r is as severe as other or more so.
func (r RiskLevel) AtLeast(other RiskLevel) bool {
	return r.Rank() >= other.Rank()
}

// ParseRiskLevel normalizes a configured risk level string.
func ParseRiskLevel(raw string) (RiskLevel, bool) {
	level := RiskLevel(strings.ToLower(strings.TrimSpace(raw)))
	_, ok := riskRank[level]
	return level, ok
}

// Operation is the closed set of operation kinds the engine understands.
// Anything outside this set evaluates to blocked.
type Operation string

const (
	OpReadFile     Operation = "read_file"
	OpWriteFile    Operation = "write_file"
	OpListDir      Operation = "list_dir"
	OpSearchFiles  Operation = "search_files"
	OpMoveFile     Operation = "move_file"
	OpDeleteFile   Operation = "delete_file"
	OpExec         Operation = "exec"
	OpFetchPage    Operation = "fetch_page"
	OpWebSearch    Operation = "web_search"
	OpDownloadFile Operation = "download_file"
)

// ParseOperation maps a tool name onto a known operation kind.
func ParseOperation(name string) (Operation, bool) {
	op := Operation(strings.ToLower(strings.TrimSpace(name)))
	switch op {
	case OpReadFile, OpWriteFile, OpListDir, OpSearchFiles, OpMoveFile,
		OpDeleteFile, OpExec, OpFetchPage, OpWebSearch, OpDownloadFile:
		return op, true
	}
	return "", false
}

// Params carries the operation arguments the engine inspects.
type Params struct {
	Path        string // primary path argument
	Destination string // target path for move/download
	Command     string // shell command line for exec
	Dir         string // working directory for exec
	URL         string // target URL for fetch/download
}

// Decision is the deterministic policy result for one evaluation.
// Invariants: Risk == blocked implies Allowed == false, and
// RequiresApproval implies Allowed == true.
type Decision struct {
	Allowed          bool
	Risk             RiskLevel
	Reason           string
	RequiresApproval bool
}

func blockedDecision(reason string) Decision {
	return Decision{Allowed: false, Risk: RiskBlocked, Reason: reason}
}

func allowedDecision(risk RiskLevel, reason string, requiresApproval bool) Decision {
	return Decision{Allowed: true, Risk: risk, Reason: reason, RequiresApproval: requiresApproval}
}

// TaskScope is the temporarily elevated trust boundary for a running task.
// At most one scope is active per engine.
type TaskScope struct {
	TaskID           string
	WorkingDirectory string
}

// Config contains the policy settings required by the engine.
// Loaded once at startup; only risk overrides and the task scope
// change afterwards.
type Config struct {
	AllowedDirectories       []string
	BlockedCommands          []string
	SafeCommands             []string
	ShellEnabled             bool
	BrowserEnabled           bool
	RequireApprovalForWrites bool
	RiskOverrides            map[string]RiskLevel
}
