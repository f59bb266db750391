package authz

// Machine-readable denial codes. Callers branch on these, never on the
// message text.
const (
	CodeOK                 = "OK"
	CodeResourceNotFound   = "RESOURCE_NOT_FOUND"
	CodeNotAuthorized      = "NOT_AUTHORIZED"
	CodeSeatInsufficient   = "SEAT_INSUFFICIENT"
	CodeWorkspacePlanLimit = "WORKSPACE_PLAN_LIMIT"
	CodeWorkspaceReadOnly  = "WORKSPACE_READ_ONLY"
)

// Result is the verdict of a capability check. It is a value: every check
// returns exactly one, and a denial is policy, never an error.
type Result struct {
	Authorized bool           `json:"authorized"`
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	Payload    map[string]any `json:"payload,omitempty"`
}

func allow() Result {
	return Result{Authorized: true, Code: CodeOK, Message: "authorized"}
}

func deny(code, message string) Result {
	return Result{Code: code, Message: message}
}

func denyWith(code, message string, payload map[string]any) Result {
	return Result{Code: code, Message: message, Payload: payload}
}

// denyHidden is the information-hiding denial: from the caller's point of
// view a resource they cannot see does not exist.
func denyHidden() Result {
	return deny(CodeResourceNotFound, "resource not found or access denied")
}
