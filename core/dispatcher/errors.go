package dispatcher

import (
	"fmt"

	"acp-node/core/models"
)

// DispatchError is returned once every submission attempt has failed
type DispatchError struct {
	ChainID  uint64
	Attempts int
	Err      error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch on chain %d failed after %d attempt(s): %v", e.ChainID, e.Attempts, e.Err)
}

// Unwrap exposes both the dispatch sentinel and the last cause
func (e *DispatchError) Unwrap() []error {
	return []error{models.ErrDispatch, e.Err}
}

// RevertError reports a batch the chain included but rejected
type RevertError struct {
	OperationHash string
	Reason        string
}

func (e *RevertError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("batch %s reverted", e.OperationHash)
	}
	return fmt.Sprintf("batch %s reverted: %s", e.OperationHash, e.Reason)
}
