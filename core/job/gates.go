package job

import (
	"acp-node/core/memo"
	"acp-node/core/models"
)

// LatestMemo returns the last memo in list order
func LatestMemo(memos []*memo.Memo) *memo.Memo {
	if len(memos) == 0 {
		return nil
	}
	return memos[len(memos)-1]
}

// LatestIfNextPhase returns the latest memo when it advances to phase
func LatestIfNextPhase(memos []*memo.Memo, phase models.Phase) *memo.Memo {
	latest := LatestMemo(memos)
	if latest == nil || latest.NextPhase != phase {
		return nil
	}
	return latest
}

// FirstWithNextPhase returns the first memo in list order advancing to any of phases
func FirstWithNextPhase(memos []*memo.Memo, phases ...models.Phase) *memo.Memo {
	for _, m := range memos {
		for _, p := range phases {
			if m.NextPhase == p {
				return m
			}
		}
	}
	return nil
}

// DerivePhase is the next phase of the latest approved memo, REQUEST when none is approved
func DerivePhase(memos []*memo.Memo) models.Phase {
	for i := len(memos) - 1; i >= 0; i-- {
		if memos[i].Status == models.MemoStatusApproved {
			return memos[i].NextPhase
		}
	}
	return models.PhaseRequest
}

// acceptGate selects the memo Accept signs
func acceptGate(memos []*memo.Memo) *memo.Memo {
	return LatestIfNextPhase(memos, models.PhaseNegotiation)
}

// rejectGate selects the memo Reject signs while the job is still a request
func rejectGate(memos []*memo.Memo) *memo.Memo {
	return LatestIfNextPhase(memos, models.PhaseNegotiation)
}

// paymentGate selects the requirement memo PayAndAcceptRequirement signs
func paymentGate(memos []*memo.Memo) *memo.Memo {
	return FirstWithNextPhase(memos, models.PhaseTransaction, models.PhaseCompleted)
}

// evaluationGate selects the deliverable memo Evaluate signs
func evaluationGate(memos []*memo.Memo) *memo.Memo {
	return LatestIfNextPhase(memos, models.PhaseCompleted)
}
