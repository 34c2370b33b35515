package api

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	orderconfig "github.com/polymarket/go-order-utils/pkg/config"
	"github.com/shopspring/decimal"

	sdkhttp "github.com/betbot/copybot/pkg/sdk/http"
)

// ClobClient submits and manages orders on the Polymarket CLOB.
type ClobClient struct {
	baseURL       string
	httpClient    *sdkhttp.Client
	auth          *Auth
	apiCreds      *APICreds
	chainID       int64
	funder        common.Address
	signatureType int // 0=EOA, 1=Magic/Email, 2=Browser proxy
}

// APICreds holds L2 API credentials for the CLOB.
type APICreds struct {
	APIKey        string `json:"apiKey"`
	APISecret     string `json:"secret"`
	APIPassphrase string `json:"passphrase"`
}

// OrderType represents the time-in-force of an order.
type OrderType string

const (
	OrderTypeFOK OrderType = "FOK" // Fill-Or-Kill: must fill entirely or cancel
	OrderTypeFAK OrderType = "FAK" // Fill-And-Kill: fill available, cancel rest (best for copy trading)
	OrderTypeGTC OrderType = "GTC" // Good-Til-Cancelled
)

// Side represents buy or sell.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Order is a signed CLOB order payload.
type Order struct {
	Salt          int64  `json:"salt"`
	Maker         string `json:"maker"`
	Signer        string `json:"signer"`
	Taker         string `json:"taker"`
	TokenID       string `json:"tokenId"`
	MakerAmount   string `json:"makerAmount"`
	TakerAmount   string `json:"takerAmount"`
	Expiration    string `json:"expiration"`
	Nonce         string `json:"nonce"`
	FeeRateBps    string `json:"feeRateBps"`
	Side          string `json:"side"`
	SignatureType int    `json:"signatureType"`
	Signature     string `json:"signature"`
	SideInt       int    `json:"-"` // Internal use for EIP-712 signing
}

// OrderRequest is the payload for placing an order.
type OrderRequest struct {
	Order     Order     `json:"order"`
	Owner     string    `json:"owner"`
	OrderType OrderType `json:"orderType"`
}

// OrderResponse is the response from placing an order.
type OrderResponse struct {
	Success     bool     `json:"success"`
	ErrorMsg    string   `json:"errorMsg"`
	OrderID     string   `json:"orderId"`
	OrderHashes []string `json:"orderHashes"`
	Status      string   `json:"status"` // matched, live, delayed, unmatched
}

// OpenOrder is the status of an order from GET /data/order/{id}.
type OpenOrder struct {
	ID           string      `json:"id"`
	Status       string      `json:"status"`
	Market       string      `json:"market"`
	OriginalSize string      `json:"original_size"`
	SizeMatched  string      `json:"size_matched"`
	Outcome      string      `json:"outcome"`
	Owner        string      `json:"owner"`
	Price        string      `json:"price"`
	Side         string      `json:"side"`
	AssetID      string      `json:"asset_id"`
	CreatedAt    json.Number `json:"created_at"`
}

// NewClobClient creates a new CLOB API client.
func NewClobClient(baseURL string, auth *Auth) (*ClobClient, error) {
	if baseURL == "" {
		baseURL = "https://clob.polymarket.com"
	}
	if auth == nil {
		return nil, fmt.Errorf("auth is required")
	}

	return &ClobClient{
		baseURL:       strings.TrimRight(baseURL, "/"),
		httpClient:    sdkhttp.NewClient(baseURL),
		auth:          auth,
		chainID:       137, // Polygon mainnet
		funder:        auth.GetAddress(),
		signatureType: 0, // Default to EOA
	}, nil
}

// SetFunder sets the funder address for Magic/Email wallets.
// The funder is the Polymarket profile address where USDC is held.
func (c *ClobClient) SetFunder(funderAddress string) {
	c.funder = common.HexToAddress(funderAddress)
}

// SetSignatureType sets the signature type (0=EOA, 1=Magic/Email, 2=Browser proxy).
func (c *ClobClient) SetSignatureType(sigType int) {
	c.signatureType = sigType
}

// DeriveAPICreds obtains L2 credentials: create a fresh key first,
// fall back to deriving the existing one.
func (c *ClobClient) DeriveAPICreds(ctx context.Context) (*APICreds, error) {
	creds, err := c.createAPICreds(ctx)
	if err == nil && creds != nil {
		c.apiCreds = creds
		return creds, nil
	}

	creds, deriveErr := c.deriveAPICreds(ctx)
	if deriveErr != nil {
		return nil, fmt.Errorf("failed to derive API creds (create: %v): %w", err, deriveErr)
	}

	c.apiCreds = creds
	return creds, nil
}

func (c *ClobClient) createAPICreds(ctx context.Context) (*APICreds, error) {
	headers, err := c.auth.SignRequest()
	if err != nil {
		return nil, fmt.Errorf("failed to sign request: %w", err)
	}

	nonce := time.Now().UnixNano()
	body := fmt.Sprintf(`{"nonce":%d}`, nonce)

	var creds APICreds
	resp, err := c.httpClient.DoRequest(ctx, "POST", "/auth/api-key", &sdkhttp.RequestOptions{
		Headers: headers,
		Data:    body,
	}, &creds)
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, &APIError{StatusCode: resp.StatusCode(), Body: strings.TrimSpace(string(resp.Body())), Endpoint: "POST /auth/api-key"}
	}
	return &creds, nil
}

func (c *ClobClient) deriveAPICreds(ctx context.Context) (*APICreds, error) {
	headers, err := c.auth.SignRequest()
	if err != nil {
		return nil, fmt.Errorf("failed to sign request: %w", err)
	}

	var creds APICreds
	resp, err := c.httpClient.DoRequest(ctx, "GET", "/auth/derive-api-key", &sdkhttp.RequestOptions{
		Headers: headers,
	}, &creds)
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, &APIError{StatusCode: resp.StatusCode(), Body: strings.TrimSpace(string(resp.Body())), Endpoint: "GET /auth/derive-api-key"}
	}
	return &creds, nil
}

// PlaceOrderFAK places a Fill-And-Kill order: fill whatever liquidity is
// available immediately and cancel the rest. Always a taker, partial
// fills are OK, which makes it the right time-in-force for mirroring.
func (c *ClobClient) PlaceOrderFAK(ctx context.Context, tokenID string, side Side, size, price decimal.Decimal, negRisk bool) (*OrderResponse, error) {
	if c.apiCreds == nil {
		if _, err := c.DeriveAPICreds(ctx); err != nil {
			return nil, fmt.Errorf("failed to get API creds: %w", err)
		}
	}

	order, err := c.createSignedOrder(tokenID, side, size, price, negRisk)
	if err != nil {
		return nil, fmt.Errorf("failed to create signed order: %w", err)
	}

	return c.postOrder(ctx, order, OrderTypeFAK)
}

// PlaceLimitOrder places a GTC limit order.
func (c *ClobClient) PlaceLimitOrder(ctx context.Context, tokenID string, side Side, size, price decimal.Decimal, negRisk bool) (*OrderResponse, error) {
	if c.apiCreds == nil {
		if _, err := c.DeriveAPICreds(ctx); err != nil {
			return nil, fmt.Errorf("failed to get API creds: %w", err)
		}
	}

	order, err := c.createSignedOrder(tokenID, side, size, price, negRisk)
	if err != nil {
		return nil, fmt.Errorf("failed to create signed order: %w", err)
	}

	return c.postOrder(ctx, order, OrderTypeGTC)
}

var (
	minTokenSize = decimal.RequireFromString("0.1")
	minOrderUSDC = decimal.NewFromInt(1)
)

// createSignedOrder builds and signs an order for submission.
//
// Amounts follow Polymarket precision rules in 6-decimal base units:
//   - Price: rounded to tick size (0.01)
//   - Size: up to 4 decimals, minimum 0.1 tokens
//   - USDC value: 2 decimals, minimum $1 for marketable buys
//
// BUY:  makerAmount = USDC given, takerAmount = tokens received.
// SELL: makerAmount = tokens given, takerAmount = USDC received.
func (c *ClobClient) createSignedOrder(tokenID string, side Side, size, price decimal.Decimal, negRisk bool) (*Order, error) {
	price = price.Round(2)
	size = size.Round(4)

	if size.LessThan(minTokenSize) {
		size = minTokenSize
	}

	usdcValue := size.Mul(price).Round(2)

	if side == SideBuy && usdcValue.LessThan(minOrderUSDC) && price.IsPositive() {
		usdcValue = minOrderUSDC
		size = usdcValue.Div(price).Round(4)
	}

	// 6-decimal base units
	sizeInt := size.Shift(6).BigInt()
	usdcInt := usdcValue.Shift(6).BigInt()

	var makerAmount, takerAmount *big.Int
	sideInt := 0
	sideStr := "BUY"

	if side == SideBuy {
		makerAmount = usdcInt
		takerAmount = sizeInt
	} else {
		makerAmount = sizeInt
		takerAmount = usdcInt
		sideInt = 1
		sideStr = "SELL"
	}

	order := &Order{
		Salt:          generateSalt(),
		Maker:         c.funder.Hex(),
		Signer:        c.auth.GetAddress().Hex(),
		Taker:         "0x0000000000000000000000000000000000000000",
		TokenID:       tokenID,
		MakerAmount:   makerAmount.String(),
		TakerAmount:   takerAmount.String(),
		Expiration:    "0",
		Nonce:         "0",
		FeeRateBps:    "0",
		Side:          sideStr,
		SignatureType: c.signatureType,
		SideInt:       sideInt,
	}

	sig, err := c.signOrder(order, negRisk)
	if err != nil {
		return nil, fmt.Errorf("failed to sign order: %w", err)
	}
	order.Signature = sig

	return order, nil
}

func (c *ClobClient) signOrder(order *Order, negRisk bool) (string, error) {
	// Exchange contract addresses come from go-order-utils so they stay
	// in sync with the deployed CTFExchange / NegRiskCTFExchange.
	contracts, err := orderconfig.GetContracts(c.chainID)
	if err != nil {
		return "", fmt.Errorf("failed to resolve exchange contracts: %w", err)
	}
	verifyingContract := contracts.Exchange.Hex()
	if negRisk {
		verifyingContract = contracts.NegRiskExchange.Hex()
	}

	chainID := math.NewHexOrDecimal256(c.chainID)
	domain := apitypes.TypedDataDomain{
		Name:              "Polymarket CTF Exchange",
		Version:           "1",
		ChainId:           chainID,
		VerifyingContract: verifyingContract,
	}

	salt := big.NewInt(order.Salt)
	tokenId := new(big.Int)
	tokenId.SetString(order.TokenID, 10)
	makerAmount := new(big.Int)
	makerAmount.SetString(order.MakerAmount, 10)
	takerAmount := new(big.Int)
	takerAmount.SetString(order.TakerAmount, 10)
	expiration := new(big.Int)
	expiration.SetString(order.Expiration, 10)
	nonce := new(big.Int)
	nonce.SetString(order.Nonce, 10)
	feeRateBps := new(big.Int)
	feeRateBps.SetString(order.FeeRateBps, 10)

	message := map[string]interface{}{
		"salt":          salt,
		"maker":         common.HexToAddress(order.Maker).Hex(),
		"signer":        common.HexToAddress(order.Signer).Hex(),
		"taker":         common.HexToAddress(order.Taker).Hex(),
		"tokenId":       tokenId,
		"makerAmount":   makerAmount,
		"takerAmount":   takerAmount,
		"expiration":    expiration,
		"nonce":         nonce,
		"feeRateBps":    feeRateBps,
		"side":          big.NewInt(int64(order.SideInt)),
		"signatureType": big.NewInt(int64(order.SignatureType)),
	}

	typedData := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": []apitypes.Type{
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"Order": []apitypes.Type{
				{Name: "salt", Type: "uint256"},
				{Name: "maker", Type: "address"},
				{Name: "signer", Type: "address"},
				{Name: "taker", Type: "address"},
				{Name: "tokenId", Type: "uint256"},
				{Name: "makerAmount", Type: "uint256"},
				{Name: "takerAmount", Type: "uint256"},
				{Name: "expiration", Type: "uint256"},
				{Name: "nonce", Type: "uint256"},
				{Name: "feeRateBps", Type: "uint256"},
				{Name: "side", Type: "uint8"},
				{Name: "signatureType", Type: "uint8"},
			},
		},
		PrimaryType: "Order",
		Domain:      domain,
		Message:     message,
	}

	hash, _, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		return "", fmt.Errorf("failed to hash typed data: %w", err)
	}

	signature, err := crypto.Sign(hash, c.auth.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign: %w", err)
	}

	// Adjust v value
	signature[64] += 27

	return "0x" + hex.EncodeToString(signature), nil
}

func (c *ClobClient) postOrder(ctx context.Context, order *Order, orderType OrderType) (*OrderResponse, error) {
	payload := OrderRequest{
		Order:     *order,
		Owner:     c.apiCreds.APIKey, // Owner is the API key
		OrderType: orderType,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	headers := c.l2Headers("POST", "/order", string(body))

	var orderResp OrderResponse
	resp, err := c.httpClient.DoRequest(ctx, "POST", "/order", &sdkhttp.RequestOptions{
		Headers: headers,
		Data:    string(body),
	}, &orderResp)
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, &APIError{StatusCode: resp.StatusCode(), Body: strings.TrimSpace(string(resp.Body())), Endpoint: "POST /order"}
	}
	return &orderResp, nil
}

// GetOrder retrieves order status by order ID.
func (c *ClobClient) GetOrder(ctx context.Context, orderID string) (*OpenOrder, error) {
	if c.apiCreds == nil {
		if _, err := c.DeriveAPICreds(ctx); err != nil {
			return nil, fmt.Errorf("failed to get API creds: %w", err)
		}
	}

	path := "/data/order/" + orderID
	headers := c.l2Headers("GET", path, "")

	var order OpenOrder
	resp, err := c.httpClient.DoRequest(ctx, "GET", path, &sdkhttp.RequestOptions{Headers: headers}, &order)
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, &APIError{StatusCode: resp.StatusCode(), Body: strings.TrimSpace(string(resp.Body())), Endpoint: "GET " + path}
	}
	return &order, nil
}

// CancelOrder cancels an order by ID. A 404 means the order is already
// filled or cancelled and is treated as success.
func (c *ClobClient) CancelOrder(ctx context.Context, orderID string) error {
	if c.apiCreds == nil {
		if _, err := c.DeriveAPICreds(ctx); err != nil {
			return fmt.Errorf("failed to get API creds: %w", err)
		}
	}

	path := "/order/" + orderID
	headers := c.l2Headers("DELETE", path, "")

	resp, err := c.httpClient.DoRequest(ctx, "DELETE", path, &sdkhttp.RequestOptions{Headers: headers}, nil)
	if err != nil {
		return err
	}
	if resp.StatusCode() != 200 && resp.StatusCode() != 204 && resp.StatusCode() != 404 {
		return &APIError{StatusCode: resp.StatusCode(), Body: strings.TrimSpace(string(resp.Body())), Endpoint: "DELETE " + path}
	}
	return nil
}

// l2Headers builds HMAC-authenticated L2 headers for a request.
// The signed message is timestamp + method + path + body.
func (c *ClobClient) l2Headers(method, path, body string) map[string]string {
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	message := timestamp + method + path + body
	signature := c.hmacSign(message, c.apiCreds.APISecret)

	return map[string]string{
		"Content-Type":    "application/json",
		"POLY_ADDRESS":    c.auth.GetAddress().Hex(),
		"POLY_API_KEY":    c.apiCreds.APIKey,
		"POLY_PASSPHRASE": c.apiCreds.APIPassphrase,
		"POLY_TIMESTAMP":  timestamp,
		"POLY_SIGNATURE":  signature,
	}
}

func (c *ClobClient) hmacSign(message string, secret string) string {
	// Secret is URL-safe base64; fall back to standard base64, then raw.
	key, err := base64.URLEncoding.DecodeString(secret)
	if err != nil {
		key, err = base64.StdEncoding.DecodeString(secret)
		if err != nil {
			key = []byte(secret)
		}
	}

	h := hmac.New(sha256.New, key)
	h.Write([]byte(message))
	return base64.URLEncoding.EncodeToString(h.Sum(nil))
}

func generateSalt() int64 {
	return time.Now().UnixNano() % 1000000000
}
