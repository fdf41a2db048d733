package contract

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const acpABIJSON = `[
  {"type":"function","name":"createJob","stateMutability":"nonpayable","inputs":[
    {"name":"provider","type":"address"},{"name":"evaluator","type":"address"},
    {"name":"expiredAt","type":"uint256"},{"name":"paymentToken","type":"address"},
    {"name":"budget","type":"uint256"},{"name":"metadata","type":"string"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"setBudgetWithPaymentToken","stateMutability":"nonpayable","inputs":[
    {"name":"jobId","type":"uint256"},{"name":"amount","type":"uint256"},{"name":"paymentToken","type":"address"}],
   "outputs":[]},
  {"type":"function","name":"createMemo","stateMutability":"nonpayable","inputs":[
    {"name":"jobId","type":"uint256"},{"name":"content","type":"string"},{"name":"memoType","type":"uint8"},
    {"name":"isSecured","type":"bool"},{"name":"nextPhase","type":"uint8"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"createPayableMemo","stateMutability":"nonpayable","inputs":[
    {"name":"jobId","type":"uint256"},{"name":"content","type":"string"},{"name":"token","type":"address"},
    {"name":"amount","type":"uint256"},{"name":"recipient","type":"address"},{"name":"feeAmount","type":"uint256"},
    {"name":"feeType","type":"uint8"},{"name":"memoType","type":"uint8"},{"name":"nextPhase","type":"uint8"},
    {"name":"expiredAt","type":"uint256"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"createCrossChainPayableMemo","stateMutability":"nonpayable","inputs":[
    {"name":"jobId","type":"uint256"},{"name":"content","type":"string"},{"name":"token","type":"address"},
    {"name":"amount","type":"uint256"},{"name":"recipient","type":"address"},{"name":"feeAmount","type":"uint256"},
    {"name":"feeType","type":"uint8"},{"name":"memoType","type":"uint8"},{"name":"nextPhase","type":"uint8"},
    {"name":"expiredAt","type":"uint256"},{"name":"destinationChainId","type":"uint256"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"signMemo","stateMutability":"nonpayable","inputs":[
    {"name":"memoId","type":"uint256"},{"name":"isApproved","type":"bool"},{"name":"reason","type":"string"}],
   "outputs":[]},
  {"type":"function","name":"x402PaymentDetails","stateMutability":"view","inputs":[
    {"name":"jobId","type":"uint256"}],
   "outputs":[{"name":"isX402","type":"bool"},{"name":"isBudgetReceived","type":"bool"}]},
  {"type":"event","name":"JobCreated","anonymous":false,"inputs":[
    {"name":"jobId","type":"uint256","indexed":false},{"name":"client","type":"address","indexed":true},
    {"name":"provider","type":"address","indexed":true},{"name":"evaluator","type":"address","indexed":true}]},
  {"type":"event","name":"MemoCreated","anonymous":false,"inputs":[
    {"name":"jobId","type":"uint256","indexed":true},{"name":"memoId","type":"uint256","indexed":true},
    {"name":"sender","type":"address","indexed":true},{"name":"memoType","type":"uint8","indexed":false},
    {"name":"nextPhase","type":"uint8","indexed":false},{"name":"content","type":"string","indexed":false}]}
]`

const erc20ABIJSON = `[
  {"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[
    {"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],
   "outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"allowance","stateMutability":"view","inputs":[
    {"name":"owner","type":"address"},{"name":"spender","type":"address"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"decimals","stateMutability":"view","inputs":[],
   "outputs":[{"name":"","type":"uint8"}]},
  {"type":"function","name":"transferWithAuthorization","stateMutability":"nonpayable","inputs":[
    {"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"value","type":"uint256"},
    {"name":"validAfter","type":"uint256"},{"name":"validBefore","type":"uint256"},
    {"name":"nonce","type":"bytes32"},{"name":"signature","type":"bytes"}],
   "outputs":[]}
]`

var (
	acpABI   = mustParseABI(acpABIJSON)
	erc20ABI = mustParseABI(erc20ABIJSON)
)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic("contract: invalid abi: " + err.Error())
	}
	return parsed
}

// ACPABI exposes the ledger ABI for decoding in adapters and tests
func ACPABI() abi.ABI {
	return acpABI
}

// ERC20ABI exposes the token ABI
func ERC20ABI() abi.ABI {
	return erc20ABI
}
