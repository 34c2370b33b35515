package api

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

// Well-known test private key (hardhat account #0), never funded on mainnet.
const testPrivateKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func newTestClobClient(t *testing.T) *ClobClient {
	t.Helper()
	auth, err := NewAuthFromKey(testPrivateKey)
	if err != nil {
		t.Fatalf("NewAuthFromKey: %v", err)
	}
	c, err := NewClobClient("", auth)
	if err != nil {
		t.Fatalf("NewClobClient: %v", err)
	}
	return c
}

func TestCreateSignedOrderBuyAmounts(t *testing.T) {
	c := newTestClobClient(t)

	// BUY 100 tokens @ 0.55: maker gives 55 USDC, taker receives 100 tokens.
	order, err := c.createSignedOrder("7000123", SideBuy, decimal.NewFromInt(100), decimal.NewFromFloat(0.55), false)
	if err != nil {
		t.Fatalf("createSignedOrder: %v", err)
	}

	if order.MakerAmount != "55000000" {
		t.Errorf("makerAmount got %s, want 55000000 (55 USDC in micros)", order.MakerAmount)
	}
	if order.TakerAmount != "100000000" {
		t.Errorf("takerAmount got %s, want 100000000 (100 tokens in micros)", order.TakerAmount)
	}
	if order.Side != "BUY" || order.SideInt != 0 {
		t.Errorf("side got %s/%d, want BUY/0", order.Side, order.SideInt)
	}
	if order.Signer != c.auth.GetAddress().Hex() {
		t.Errorf("signer got %s, want %s", order.Signer, c.auth.GetAddress().Hex())
	}
	// 65-byte signature, hex-encoded with 0x prefix.
	if !strings.HasPrefix(order.Signature, "0x") || len(order.Signature) != 132 {
		t.Errorf("signature format invalid: len=%d", len(order.Signature))
	}
}

func TestCreateSignedOrderSellAmounts(t *testing.T) {
	c := newTestClobClient(t)

	// SELL swaps the amounts: maker gives tokens, taker receives USDC.
	order, err := c.createSignedOrder("7000123", SideSell, decimal.NewFromInt(100), decimal.NewFromFloat(0.55), false)
	if err != nil {
		t.Fatalf("createSignedOrder: %v", err)
	}

	if order.MakerAmount != "100000000" {
		t.Errorf("makerAmount got %s, want 100000000", order.MakerAmount)
	}
	if order.TakerAmount != "55000000" {
		t.Errorf("takerAmount got %s, want 55000000", order.TakerAmount)
	}
	if order.Side != "SELL" || order.SideInt != 1 {
		t.Errorf("side got %s/%d, want SELL/1", order.Side, order.SideInt)
	}
}

func TestCreateSignedOrderMinTokenSize(t *testing.T) {
	c := newTestClobClient(t)

	// Sizes below 0.1 tokens are bumped to the exchange minimum.
	order, err := c.createSignedOrder("7000123", SideSell, decimal.NewFromFloat(0.05), decimal.NewFromFloat(0.5), false)
	if err != nil {
		t.Fatalf("createSignedOrder: %v", err)
	}
	if order.MakerAmount != "100000" {
		t.Errorf("makerAmount got %s, want 100000 (0.1 tokens)", order.MakerAmount)
	}
}

func TestCreateSignedOrderMinBuyValue(t *testing.T) {
	c := newTestClobClient(t)

	// 1 token @ 0.50 is $0.50, below the $1 marketable-buy minimum:
	// the USDC value is raised to $1 and the size recomputed to 2 tokens.
	order, err := c.createSignedOrder("7000123", SideBuy, decimal.NewFromInt(1), decimal.NewFromFloat(0.5), false)
	if err != nil {
		t.Fatalf("createSignedOrder: %v", err)
	}
	if order.MakerAmount != "1000000" {
		t.Errorf("makerAmount got %s, want 1000000 ($1)", order.MakerAmount)
	}
	if order.TakerAmount != "2000000" {
		t.Errorf("takerAmount got %s, want 2000000 (2 tokens)", order.TakerAmount)
	}
}

func TestCreateSignedOrderPriceTick(t *testing.T) {
	c := newTestClobClient(t)

	// Prices are rounded to the 0.01 tick before amounts are derived.
	order, err := c.createSignedOrder("7000123", SideBuy, decimal.NewFromInt(100), decimal.NewFromFloat(0.5549), false)
	if err != nil {
		t.Fatalf("createSignedOrder: %v", err)
	}
	if order.MakerAmount != "55000000" {
		t.Errorf("makerAmount got %s, want 55000000 (price rounded to 0.55)", order.MakerAmount)
	}
}

func TestNegRiskChangesSignature(t *testing.T) {
	c := newTestClobClient(t)

	regular, err := c.signOrder(&Order{
		Salt: 1, Maker: c.funder.Hex(), Signer: c.auth.GetAddress().Hex(),
		Taker: "0x0000000000000000000000000000000000000000", TokenID: "7000123",
		MakerAmount: "55000000", TakerAmount: "100000000",
		Expiration: "0", Nonce: "0", FeeRateBps: "0", Side: "BUY",
	}, false)
	if err != nil {
		t.Fatalf("signOrder: %v", err)
	}

	negRisk, err := c.signOrder(&Order{
		Salt: 1, Maker: c.funder.Hex(), Signer: c.auth.GetAddress().Hex(),
		Taker: "0x0000000000000000000000000000000000000000", TokenID: "7000123",
		MakerAmount: "55000000", TakerAmount: "100000000",
		Expiration: "0", Nonce: "0", FeeRateBps: "0", Side: "BUY",
	}, true)
	if err != nil {
		t.Fatalf("signOrder: %v", err)
	}

	// The verifying contract differs, so the same order must not produce
	// the same signature. Using the wrong one causes "invalid signature".
	if regular == negRisk {
		t.Error("neg-risk signature should differ from the regular exchange signature")
	}
}

func TestGenerateSalt(t *testing.T) {
	s := generateSalt()
	if s < 0 || s >= 1_000_000_000 {
		t.Errorf("salt out of range: %d", s)
	}
}
