package models

type Route string

const (
	RouteNone   Route = ""
	RouteAI     Route = "ai"
	RouteManual Route = "manual"
)

type SessionFlags struct {
	ActiveSession  bool
	AIWelcomeShown bool
	Route          Route
}

// State is the disambiguation state of a session. The set of implementations
// is closed; each one carries only the data valid in that state.
type State interface {
	Name() string
	isState()
}

type Idle struct{}

// AwaitingCategory waits for the category pick on the manual path.
type AwaitingCategory struct {
	Draft    *Draft
	Attempts int
}

type AwaitingAccount struct {
	Draft    *Draft
	Attempts int
}

// AwaitingPaymentMethod holds a draft whose AccountID is resolved.
type AwaitingPaymentMethod struct {
	Draft    *Draft
	Attempts int
}

// AwaitingDetails waits for "description, amount, currency" on the manual path.
type AwaitingDetails struct {
	Draft    *Draft
	Attempts int
}

// ReadyToCommit holds a fully resolved draft. A failed commit leaves the
// session here so the user can retry.
type ReadyToCommit struct {
	Draft *Draft
}

func (Idle) Name() string                  { return "idle" }
func (AwaitingCategory) Name() string      { return "awaiting_category" }
func (AwaitingAccount) Name() string       { return "awaiting_account" }
func (AwaitingPaymentMethod) Name() string { return "awaiting_payment_method" }
func (AwaitingDetails) Name() string       { return "awaiting_details" }
func (ReadyToCommit) Name() string         { return "ready_to_commit" }

func (Idle) isState()                  {}
func (AwaitingCategory) isState()      {}
func (AwaitingAccount) isState()       {}
func (AwaitingPaymentMethod) isState() {}
func (AwaitingDetails) isState()       {}
func (ReadyToCommit) isState()         {}

// DraftOf returns the draft carried by s, or nil when idle.
func DraftOf(s State) *Draft {
	switch st := s.(type) {
	case AwaitingCategory:
		return st.Draft
	case AwaitingAccount:
		return st.Draft
	case AwaitingPaymentMethod:
		return st.Draft
	case AwaitingDetails:
		return st.Draft
	case ReadyToCommit:
		return st.Draft
	default:
		return nil
	}
}

func IsIdle(s State) bool {
	_, ok := s.(Idle)
	return s == nil || ok
}
