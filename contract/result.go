package contract

// Stable machine-readable error codes shared by every caller surface.
const (
	CodeValidationFailed = "validation_failed"
	CodeIntegrityFailed  = "integrity_validation_failed"
	CodeLoadFailed       = "load_failed"
	CodeBackupFailed     = "backup_failed"
	CodeWriteFailed      = "write_failed"
	CodeAuditFailed      = "audit_append_failed"
	CodePositionConflict = "position_conflict"
	CodeDuplicateID      = "duplicate_id"
	CodeBatchInvalid     = "batch_invalid"
	CodeNotFound         = "not_found"
	CodeInvalidDate      = "invalid_date"
	CodeInvalidBox       = "invalid_box"
	CodeInvalidPosition  = "invalid_position"
	CodeInvalidCount     = "invalid_count"
	CodeInvalidAction    = "invalid_action"
	CodeBoxOccupied      = "box_occupied"
	CodeNoBackup         = "no_backup"
	CodeRollbackBlocked  = "rollback_blocked"
	CodeUnknownTool      = "unknown_tool"
	CodeInvalidToolInput = "invalid_tool_input"
	CodeQuestionNotAlone = "question_not_alone"
	CodeQuestionTimeout  = "question_timeout"
	CodeQuestionCancel   = "question_cancelled"
	CodeConfirmTimeout   = "confirm_timeout"
	CodeUserCancelled    = "user_cancelled"
	CodeNoPlanStore      = "no_plan_store"
	CodeStageBlocked     = "stage_blocked"
	CodeLLMStreamFailed  = "llm_stream_failed"
	CodeEmptyResponse    = "empty_response"
	CodeMaxSteps         = "max_steps"
	CodeRunStopped       = "run_stopped"
)

// Result is the uniform envelope every operation returns, read or write.
// OK=true carries Result; OK=false carries ErrorCode plus a human message.
type Result struct {
	OK        bool           `json:"ok"`
	Result    map[string]any `json:"result,omitempty"`
	ErrorCode string         `json:"error_code,omitempty"`
	Message   string         `json:"message,omitempty"`
	Warnings  []string       `json:"warnings,omitempty"`
	Errors    []string       `json:"errors,omitempty"`
	Hint      string         `json:"hint,omitempty"`
	Staged    bool           `json:"staged,omitempty"`
	DryRun    bool           `json:"dry_run,omitempty"`
	Expected  map[string]any `json:"expected,omitempty"`
}

func Success(payload map[string]any) Result {
	return Result{OK: true, Result: payload}
}

func Failure(code, message string) Result {
	return Result{OK: false, ErrorCode: code, Message: message}
}

func (r Result) WithWarnings(warnings ...string) Result {
	r.Warnings = append(r.Warnings, warnings...)
	return r
}

func (r Result) WithErrors(errs ...string) Result {
	r.Errors = append(r.Errors, errs...)
	return r
}

func (r Result) WithHint(hint string) Result {
	r.Hint = hint
	return r
}
