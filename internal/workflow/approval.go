package workflow

import (
	"context"
	"path"
	"reflect"
	"sync"
)

// AutoApprovalRule auto-approves steps whose tool name matches a glob
// pattern and whose resolved parameters equal the rule's conditions.
type AutoApprovalRule struct {
	// ToolPattern is a glob pattern over tool names (e.g. "file_*").
	ToolPattern string
	// Conditions, if set, must all equal the step's resolved parameters
	// for the rule to match.
	Conditions map[string]any
}

// matches reports whether the rule applies to the given tool and
// resolved parameters.
func (r AutoApprovalRule) matches(tool string, params map[string]any) bool {
	ok, err := path.Match(r.ToolPattern, tool)
	if err != nil || !ok {
		return false
	}
	for key, want := range r.Conditions {
		got, exists := params[key]
		if !exists || !reflect.DeepEqual(got, want) {
			return false
		}
	}
	return true
}

// ApprovalRequest is sent to the approver when a step requires human
// review before execution.
type ApprovalRequest struct {
	// ChainID is the executing chain.
	ChainID string
	// Step is the name of the step awaiting approval.
	Step string
	// Tool is the tool the step wants to invoke.
	Tool string
	// Params are the step's resolved parameters.
	Params map[string]any
}

// ApprovalResponse is the human's decision on an approval request.
type ApprovalResponse struct {
	// Approved indicates whether the step may run.
	Approved bool
	// Reason provides context for denials.
	Reason string
}

// Approver decides whether a step requiring approval may run. The
// orchestrator blocks on this call; a denial aborts the chain.
type Approver interface {
	Approve(ctx context.Context, req ApprovalRequest) (ApprovalResponse, error)
}

// ApproverFunc adapts a function into an Approver.
type ApproverFunc func(ctx context.Context, req ApprovalRequest) (ApprovalResponse, error)

// Approve invokes the wrapped function.
func (f ApproverFunc) Approve(ctx context.Context, req ApprovalRequest) (ApprovalResponse, error) {
	return f(ctx, req)
}

// DenyAll is the default approver: every request is denied. It makes
// approval gates fail closed when the embedding application wires no
// reviewer.
func DenyAll() Approver {
	return ApproverFunc(func(ctx context.Context, req ApprovalRequest) (ApprovalResponse, error) {
		return ApprovalResponse{Approved: false, Reason: "no approver configured"}, nil
	})
}

// ApprovalManager is a channel-based Approver that forwards requests to
// an external reviewer (a UI or CLI prompt) and blocks until the
// reviewer responds.
type ApprovalManager struct {
	// pending maps step names to channels waiting for responses.
	pending map[string]chan ApprovalResponse
	// requests delivers approval requests to the reviewer.
	requests chan pendingApproval
	// mu protects the pending map.
	mu sync.Mutex
}

// pendingApproval pairs a request with its response key.
type pendingApproval struct {
	// Request is the approval request.
	Request ApprovalRequest
	// Key identifies the pending entry for SubmitResponse.
	Key string
}

// NewApprovalManager creates an ApprovalManager.
func NewApprovalManager() *ApprovalManager {
	return &ApprovalManager{
		pending:  make(map[string]chan ApprovalResponse),
		requests: make(chan pendingApproval, 10),
	}
}

// Requests returns the channel the reviewer listens on.
func (m *ApprovalManager) Requests() <-chan pendingApproval {
	return m.requests
}

// Approve implements Approver. It forwards the request to the reviewer
// and waits for a response or context cancellation.
func (m *ApprovalManager) Approve(ctx context.Context, req ApprovalRequest) (ApprovalResponse, error) {
	key := req.ChainID + "/" + req.Step
	responseCh := make(chan ApprovalResponse, 1)

	m.mu.Lock()
	m.pending[key] = responseCh
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.pending, key)
		m.mu.Unlock()
	}()

	select {
	case m.requests <- pendingApproval{Request: req, Key: key}:
	case <-ctx.Done():
		return ApprovalResponse{}, ctx.Err()
	}

	select {
	case resp := <-responseCh:
		return resp, nil
	case <-ctx.Done():
		return ApprovalResponse{}, ctx.Err()
	}
}

// SubmitResponse delivers the reviewer's decision for a pending request.
func (m *ApprovalManager) SubmitResponse(key string, resp ApprovalResponse) {
	m.mu.Lock()
	ch, exists := m.pending[key]
	m.mu.Unlock()

	if exists {
		select {
		case ch <- resp:
		default:
			// Response already submitted.
		}
	}
}

// needsApproval decides whether a step requires human approval: an
// explicit AutoApprove flag on the step wins; otherwise the first
// matching auto-approval rule decides; absent any match, approval is
// required by default.
func needsApproval(step Step, rules []AutoApprovalRule, resolvedParams map[string]any) bool {
	if step.AutoApprove != nil {
		return !*step.AutoApprove
	}
	for _, rule := range rules {
		if rule.matches(step.Tool, resolvedParams) {
			return false
		}
	}
	return true
}
