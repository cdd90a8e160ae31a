package orders

import (
	"fmt"
	"time"
)

// State is a step of the order submission saga. The steps run in declaration
// order and each one feeds the next.
type State string

const (
	StateQueryingCatalog   State = "querying_catalog"
	StateFetchingOptions   State = "fetching_options"
	StateFiltering         State = "filtering"
	StateCreatingOrder     State = "creating_order"
	StateSubmittingItems   State = "submitting_items"
	StateAttachingUserInfo State = "attaching_user_info"
	StateSubmitting        State = "submitting"
	StateDone              State = "done"
	StateFailed            State = "failed"
)

// Steps lists the working states in the order they run.
var Steps = []State{
	StateQueryingCatalog,
	StateFetchingOptions,
	StateFiltering,
	StateCreatingOrder,
	StateSubmittingItems,
	StateAttachingUserInfo,
	StateSubmitting,
}

// Policy configures one state. A zero Timeout leaves the client's own timeout in charge.
type Policy struct {
	Timeout time.Duration
}

// StepError reports the state a saga failed in. OrderID is set once the order
// exists upstream; that draft order is left in place.
type StepError struct {
	State   State
	OrderID string
	Err     error
}

func (e *StepError) Error() string {
	if e.OrderID == "" {
		return fmt.Sprintf("order saga failed while %s: %v", e.State, e.Err)
	}
	return fmt.Sprintf("order saga failed while %s (order %s): %v", e.State, e.OrderID, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}
