package x402

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"acp-node/core/contract"
	"acp-node/core/models"
)

const (
	defaultAssetName    = "USD Coin"
	defaultAssetVersion = "2"
	x402Version         = 1
)

// Signer signs EIP-712 typed data with the node wallet
type Signer interface {
	Address() common.Address
	SignTypedData(data apitypes.TypedData) ([]byte, error)
}

// Payment is a signed transfer authorization ready to attach to a budget request
type Payment struct {
	Requirement   Requirement
	Authorization contract.TransferAuthorization
	Signature     []byte
	// Encoded is the x-payment header value
	Encoded string
}

// NonceHex returns the authorization nonce as 0x-prefixed hex
func (p Payment) NonceHex() string {
	return hexutil.Encode(p.Authorization.Nonce[:])
}

type authorizationJSON struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	ValidAfter  string `json:"validAfter"`
	ValidBefore string `json:"validBefore"`
	Nonce       string `json:"nonce"`
}

type paymentJSON struct {
	X402Version int    `json:"x402Version"`
	Scheme      string `json:"scheme"`
	Network     string `json:"network"`
	Payload     struct {
		Signature     string            `json:"signature"`
		Authorization authorizationJSON `json:"authorization"`
	} `json:"payload"`
}

// TransferAuthorizationTypedData builds the EIP-3009 typed data for auth on asset
func TransferAuthorizationTypedData(auth contract.TransferAuthorization, asset common.Address, chainID uint64, extra *Extra) apitypes.TypedData {
	name, version := defaultAssetName, defaultAssetVersion
	if extra != nil {
		if extra.Name != "" {
			name = extra.Name
		}
		if extra.Version != "" {
			version = extra.Version
		}
	}
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"TransferWithAuthorization": {
				{Name: "from", Type: "address"},
				{Name: "to", Type: "address"},
				{Name: "value", Type: "uint256"},
				{Name: "validAfter", Type: "uint256"},
				{Name: "validBefore", Type: "uint256"},
				{Name: "nonce", Type: "bytes32"},
			},
		},
		PrimaryType: "TransferWithAuthorization",
		Domain: apitypes.TypedDataDomain{
			Name:              name,
			Version:           version,
			ChainId:           math.NewHexOrDecimal256(int64(chainID)),
			VerifyingContract: asset.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"from":        auth.From.Hex(),
			"to":          auth.To.Hex(),
			"value":       auth.Value.String(),
			"validAfter":  auth.ValidAfter.String(),
			"validBefore": auth.ValidBefore.String(),
			"nonce":       hexutil.Encode(auth.Nonce[:]),
		},
	}
}

// GeneratePayment signs a transfer authorization satisfying req
func GeneratePayment(req Requirement, signer Signer, chainID uint64, now time.Time) (*Payment, error) {
	if !common.IsHexAddress(req.Asset) || !common.IsHexAddress(req.PayTo) {
		return nil, &models.ProtocolError{Source: "x402", Body: fmt.Sprintf("invalid asset %q or payTo %q", req.Asset, req.PayTo)}
	}
	value, ok := new(big.Int).SetString(req.MaxAmountRequired, 10)
	if !ok || value.Sign() < 0 {
		return nil, &models.ProtocolError{Source: "x402", Body: fmt.Sprintf("invalid maxAmountRequired %q", req.MaxAmountRequired)}
	}

	var nonce [32]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("failed to draw authorization nonce: %w", err)
	}

	auth := contract.TransferAuthorization{
		From:        signer.Address(),
		To:          common.HexToAddress(req.PayTo),
		Value:       value,
		ValidAfter:  new(big.Int),
		ValidBefore: big.NewInt(now.Unix() + req.MaxTimeoutSeconds),
		Nonce:       nonce,
	}
	asset := common.HexToAddress(req.Asset)

	signature, err := signer.SignTypedData(TransferAuthorizationTypedData(auth, asset, chainID, req.Extra))
	if err != nil {
		return nil, fmt.Errorf("failed to sign transfer authorization: %w", err)
	}

	var body paymentJSON
	body.X402Version = x402Version
	body.Scheme = req.Scheme
	body.Network = req.Network
	body.Payload.Signature = hexutil.Encode(signature)
	body.Payload.Authorization = authorizationJSON{
		From:        auth.From.Hex(),
		To:          auth.To.Hex(),
		Value:       auth.Value.String(),
		ValidAfter:  auth.ValidAfter.String(),
		ValidBefore: auth.ValidBefore.String(),
		Nonce:       hexutil.Encode(nonce[:]),
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payment: %w", err)
	}

	return &Payment{
		Requirement:   req,
		Authorization: auth,
		Signature:     signature,
		Encoded:       base64.StdEncoding.EncodeToString(raw),
	}, nil
}
