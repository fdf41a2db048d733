package contract

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"acp-node/core/models"
)

// JobCreatedEvent is a decoded JobCreated log
type JobCreatedEvent struct {
	JobID     uint64
	Client    common.Address
	Provider  common.Address
	Evaluator common.Address
}

// MemoCreatedEvent is a decoded MemoCreated log
type MemoCreatedEvent struct {
	JobID     uint64
	MemoID    uint64
	Sender    common.Address
	MemoType  models.MemoType
	NextPhase models.Phase
	Content   string
}

// JobIDFromLogs returns the id of the job created for client and provider.
// Only logs emitted by the job manager are considered.
func (c *Client) JobIDFromLogs(logs []types.Log, client, provider common.Address) (uint64, error) {
	for _, lg := range logs {
		if lg.Address != c.addrs.JobManager {
			continue
		}
		ev, err := DecodeJobCreated(lg)
		if err != nil {
			continue
		}
		if ev.Client == client && ev.Provider == provider {
			return ev.JobID, nil
		}
	}
	return 0, &models.ProtocolError{Source: "jobCreated", Body: fmt.Sprintf("no JobCreated event for client %s and provider %s", client.Hex(), provider.Hex())}
}

// MemoIDsFromLogs decodes every MemoCreated log emitted by the memo manager
func (c *Client) MemoIDsFromLogs(logs []types.Log) []MemoCreatedEvent {
	var events []MemoCreatedEvent
	for _, lg := range logs {
		if lg.Address != c.addrs.MemoManager {
			continue
		}
		ev, err := DecodeMemoCreated(lg)
		if err != nil {
			continue
		}
		events = append(events, ev)
	}
	return events
}

// DecodeJobCreated decodes a JobCreated log
func DecodeJobCreated(lg types.Log) (JobCreatedEvent, error) {
	out, err := decodeEvent("JobCreated", lg)
	if err != nil {
		return JobCreatedEvent{}, err
	}
	ev := JobCreatedEvent{}
	jobID, _ := out["jobId"].(*big.Int)
	if jobID == nil || !jobID.IsUint64() {
		return JobCreatedEvent{}, fmt.Errorf("JobCreated: invalid job id")
	}
	ev.JobID = jobID.Uint64()
	ev.Client, _ = out["client"].(common.Address)
	ev.Provider, _ = out["provider"].(common.Address)
	ev.Evaluator, _ = out["evaluator"].(common.Address)
	return ev, nil
}

// DecodeMemoCreated decodes a MemoCreated log
func DecodeMemoCreated(lg types.Log) (MemoCreatedEvent, error) {
	out, err := decodeEvent("MemoCreated", lg)
	if err != nil {
		return MemoCreatedEvent{}, err
	}
	jobID, _ := out["jobId"].(*big.Int)
	memoID, _ := out["memoId"].(*big.Int)
	if jobID == nil || memoID == nil {
		return MemoCreatedEvent{}, fmt.Errorf("MemoCreated: missing ids")
	}
	ev := MemoCreatedEvent{JobID: jobID.Uint64(), MemoID: memoID.Uint64()}
	ev.Sender, _ = out["sender"].(common.Address)
	if v, ok := out["memoType"].(uint8); ok {
		ev.MemoType = models.MemoType(v)
	}
	if v, ok := out["nextPhase"].(uint8); ok {
		ev.NextPhase = models.Phase(v)
	}
	ev.Content, _ = out["content"].(string)
	return ev, nil
}

func decodeEvent(name string, lg types.Log) (map[string]interface{}, error) {
	event := acpABI.Events[name]
	if len(lg.Topics) == 0 || lg.Topics[0] != event.ID {
		return nil, fmt.Errorf("log is not %s", name)
	}
	var indexed abi.Arguments
	for _, arg := range event.Inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	out := make(map[string]interface{})
	if err := abi.ParseTopicsIntoMap(out, indexed, lg.Topics[1:]); err != nil {
		return nil, fmt.Errorf("failed to parse %s topics: %w", name, err)
	}
	if err := acpABI.UnpackIntoMap(out, name, lg.Data); err != nil {
		return nil, fmt.Errorf("failed to unpack %s data: %w", name, err)
	}
	return out, nil
}

// NewJobCreatedLog encodes a JobCreated log as emitted by emitter
func NewJobCreatedLog(emitter common.Address, ev JobCreatedEvent) (types.Log, error) {
	event := acpABI.Events["JobCreated"]
	data, err := event.Inputs.NonIndexed().Pack(u256(ev.JobID))
	if err != nil {
		return types.Log{}, err
	}
	return types.Log{
		Address: emitter,
		Topics: []common.Hash{
			event.ID,
			common.BytesToHash(ev.Client.Bytes()),
			common.BytesToHash(ev.Provider.Bytes()),
			common.BytesToHash(ev.Evaluator.Bytes()),
		},
		Data: data,
	}, nil
}

// NewMemoCreatedLog encodes a MemoCreated log as emitted by emitter
func NewMemoCreatedLog(emitter common.Address, ev MemoCreatedEvent) (types.Log, error) {
	event := acpABI.Events["MemoCreated"]
	data, err := event.Inputs.NonIndexed().Pack(uint8(ev.MemoType), uint8(ev.NextPhase), ev.Content)
	if err != nil {
		return types.Log{}, err
	}
	return types.Log{
		Address: emitter,
		Topics: []common.Hash{
			event.ID,
			common.BigToHash(u256(ev.JobID)),
			common.BigToHash(u256(ev.MemoID)),
			common.BytesToHash(ev.Sender.Bytes()),
		},
		Data: data,
	}, nil
}
