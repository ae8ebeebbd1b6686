package faucethttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aastar/faucet/internal/contracts"
	"github.com/aastar/faucet/internal/faucet"
	"github.com/aastar/faucet/internal/ratelimit"
	"github.com/aastar/faucet/internal/xerrors"
)

const addr = "0x1111111111111111111111111111111111111111"

type fakeFaucet struct {
	mu    sync.Mutex
	calls []string
	err   error
	owner common.Address
	salt  *big.Int
	size  int
}

func (f *fakeFaucet) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return f.err
}

func (f *fakeFaucet) Network() string { return "Sepolia" }

func (f *fakeFaucet) DefaultOwner() (common.Address, bool) {
	return f.owner, f.owner != (common.Address{})
}

func (f *fakeFaucet) MintSBT(_ context.Context, r string) (*faucet.MintResult, error) {
	if err := f.record("sbt " + r); err != nil {
		return nil, err
	}
	return &faucet.MintResult{TxHash: "0xaa", BlockNumber: 7, Amount: "1 SBT", Recipient: r, Type: "sbt", Network: "Sepolia"}, nil
}

func (f *fakeFaucet) MintPNT(_ context.Context, r string) (*faucet.MintResult, error) {
	if err := f.record("pnt " + r); err != nil {
		return nil, err
	}
	return &faucet.MintResult{TxHash: "0xbb", BlockNumber: 8, Amount: "100 PNT", Recipient: r, Type: "pnt", Network: "Sepolia"}, nil
}

func (f *fakeFaucet) MintUSDT(_ context.Context, r string) (*faucet.USDTResult, error) {
	if err := f.record("usdt " + r); err != nil {
		return nil, err
	}
	return &faucet.USDTResult{TxHash: "0xcc", Amount: "10 USDT", Recipient: r, Balance: "10.0", Network: "Sepolia"}, nil
}

func (f *fakeFaucet) CreateAccount(_ context.Context, owner string, salt *big.Int) (*faucet.AccountResult, error) {
	if err := f.record("account " + owner); err != nil {
		return nil, err
	}
	f.salt = salt
	s := "42"
	if salt != nil {
		s = salt.String()
	}
	return &faucet.AccountResult{AccountAddress: "0x2222222222222222222222222222222222222222", Owner: owner, Salt: json.Number(s), Network: "Sepolia"}, nil
}

func (f *fakeFaucet) InitPool(_ context.Context, size int) (*faucet.PoolReport, error) {
	if err := f.record("pool"); err != nil {
		return nil, err
	}
	f.size = size
	return &faucet.PoolReport{RunID: "run-1", Network: "Sepolia", Statistics: faucet.PoolStatistics{TotalAccounts: size}}, nil
}

type harness struct {
	f       *fakeFaucet
	handler http.Handler
	limited []string
}

func newHarness(t *testing.T, mut func(*Options)) *harness {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	h := &harness{f: &fakeFaucet{}}
	cat, err := contracts.Load()
	require.NoError(t, err)

	opts := Options{
		Faucet: h.f,
		Limiters: Limiters{
			Mint:    ratelimit.NewSlidingWindow(ctx, ratelimit.WithQuota(2)),
			USDT:    ratelimit.NewSlidingWindow(ctx, ratelimit.WithQuota(5)),
			Account: ratelimit.NewSlidingWindow(ctx, ratelimit.WithQuota(3)),
		},
		Catalog:       cat,
		AdminKey:      "s3cret",
		OnRateLimited: func(l string) { h.limited = append(h.limited, l) },
	}
	if mut != nil {
		mut(&opts)
	}
	r := chi.NewRouter()
	NewAPI(opts).RegisterRoutes(r)
	h.handler = r
	return h
}

func (h *harness) do(method, path, body string, hdr ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m), "body: %s", rec.Body.String())
	return m
}

func TestMint_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
		code int
		msg  string
	}{
		{"empty body", "", 400, "Missing address or type parameter"},
		{"missing type", `{"address":"` + addr + `"}`, 400, "Missing address or type parameter"},
		{"bad address", `{"address":"0x123","type":"sbt"}`, 400, "Invalid Ethereum address"},
		{"bad type", `{"address":"` + addr + `","type":"nft"}`, 400, `Invalid type. Must be "sbt" or "pnt"`},
		{"type is case sensitive", `{"address":"` + addr + `","type":"SBT"}`, 400, `Invalid type. Must be "sbt" or "pnt"`},
		{"bad json", `{"address":`, 400, "Invalid JSON body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			rec := h.do(http.MethodPost, "/api/mint", tt.body)
			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, tt.msg, decodeBody(t, rec)["error"])
			assert.Empty(t, h.f.calls)
		})
	}
}

func TestMint_SuccessAndRateLimit(t *testing.T) {
	h := newHarness(t, nil)
	body := `{"address":"` + addr + `","type":"pnt"}`

	for i := 0; i < 2; i++ {
		rec := h.do(http.MethodPost, "/api/mint", body)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		m := decodeBody(t, rec)
		assert.Equal(t, true, m["success"])
		assert.Equal(t, "100 PNT", m["amount"])
		assert.Equal(t, "Sepolia", m["network"])
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	}

	rec := h.do(http.MethodPost, "/api/mint", body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "Rate limit exceeded. Please try again later (max 2 requests per hour)", decodeBody(t, rec)["error"])
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, []string{"mint"}, h.limited)
	assert.Len(t, h.f.calls, 2)

	// sbt quota is tracked separately from pnt
	rec = h.do(http.MethodPost, "/api/mint", `{"address":"`+addr+`","type":"sbt"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMint_InvalidRequestsDoNotConsumeQuota(t *testing.T) {
	h := newHarness(t, nil)
	for i := 0; i < 5; i++ {
		h.do(http.MethodPost, "/api/mint", `{"address":"`+addr+`","type":"bad"}`)
	}
	rec := h.do(http.MethodPost, "/api/mint", `{"address":"`+addr+`","type":"sbt"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMint_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
		msg  string
	}{
		{"already owns", xerrors.Public(faucet.ErrAlreadyOwnsSBT, 400, "Address already owns an SBT"), 400, "Address already owns an SBT"},
		{"out of funds", fmt.Errorf("send: %w", core.ErrInsufficientFunds), 500, "Faucet is out of funds. Please contact the administrator."},
		{"nonce", fmt.Errorf("send: %w", core.ErrNonceTooLow), 500, "Transaction conflict. Please try again."},
		{"sender creator", errors.New("execution reverted: only callable from SenderCreator"), 400, "Factory can only be called through EntryPoint"},
		{"raw", errors.New("boom"), 500, "boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			h.f.err = tt.err
			rec := h.do(http.MethodPost, "/api/mint", `{"address":"`+addr+`","type":"sbt"}`)
			assert.Equal(t, tt.code, rec.Code)
			m := decodeBody(t, rec)
			assert.Equal(t, false, m["success"])
			assert.Equal(t, tt.msg, m["error"])
		})
	}
}

func TestMint_RetryAfterFollowsLimiterClock(t *testing.T) {
	// a clock a year in the past: wall-clock math would yield no header
	now := time.Now().AddDate(-1, 0, 0)
	clock := func() time.Time { return now }
	h := newHarness(t, func(o *Options) {
		ctx, cancel := context.WithCancel(context.Background())
		t.Cleanup(cancel)
		o.Limiters.USDT = ratelimit.NewSlidingWindow(ctx,
			ratelimit.WithQuota(1),
			ratelimit.WithClock(clock),
			ratelimit.WithSweepInterval(time.Hour),
		)
	})
	body := `{"address":"` + addr + `"}`

	require.Equal(t, http.StatusOK, h.do(http.MethodPost, "/api/mint-usdt", body).Code)
	now = now.Add(20*time.Minute + 500*time.Millisecond)

	rec := h.do(http.MethodPost, "/api/mint-usdt", body)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	// 39m59.5s rounds up
	assert.Equal(t, "2400", rec.Header().Get("Retry-After"))
}

// failingLimiter simulates an unreachable Redis.
type failingLimiter struct{}

func (failingLimiter) Admit(context.Context, string) (bool, error) {
	return false, errors.New("dial tcp: connection refused")
}
func (failingLimiter) Live(context.Context, string) ([]time.Time, error) { return nil, nil }
func (failingLimiter) Reset(context.Context, string) error               { return nil }
func (failingLimiter) Limits() (int, time.Duration)                      { return 2, time.Hour }
func (failingLimiter) RetryAfter(context.Context, string) (time.Duration, error) {
	return 0, errors.New("dial tcp: connection refused")
}

func TestMint_LimiterUnavailable(t *testing.T) {
	var failures int
	h := newHarness(t, func(o *Options) {
		o.Limiters.Mint = failingLimiter{}
		o.OnLimiterError = func(string) { failures++ }
	})
	rec := h.do(http.MethodPost, "/api/mint", `{"address":"`+addr+`","type":"sbt"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, 1, failures)
	assert.Empty(t, h.f.calls)
}

func TestMintUSDT(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(http.MethodPost, "/api/mint-usdt", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Missing address parameter", decodeBody(t, rec)["error"])

	for i := 0; i < 5; i++ {
		rec = h.do(http.MethodPost, "/api/mint-usdt", `{"address":"`+addr+`"}`)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	m := decodeBody(t, rec)
	assert.Equal(t, "10 USDT", m["amount"])
	assert.Equal(t, "10.0", m["balance"])

	rec = h.do(http.MethodPost, "/api/mint-usdt", `{"address":"`+addr+`"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["error"], "max 5 requests per hour")
}

func TestCreateAccount(t *testing.T) {
	t.Run("default owner", func(t *testing.T) {
		h := newHarness(t, nil)
		h.f.owner = common.HexToAddress("0x3333333333333333333333333333333333333333")
		rec := h.do(http.MethodPost, "/api/create-account", `{}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, []string{"account " + h.f.owner.Hex()}, h.f.calls)
		assert.Nil(t, h.f.salt)
	})

	t.Run("no default owner", func(t *testing.T) {
		h := newHarness(t, nil)
		rec := h.do(http.MethodPost, "/api/create-account", `{}`)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "Server configuration error", decodeBody(t, rec)["error"])
	})

	t.Run("bad owner", func(t *testing.T) {
		h := newHarness(t, nil)
		rec := h.do(http.MethodPost, "/api/create-account", `{"owner":"nope"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Invalid Ethereum address for owner", decodeBody(t, rec)["error"])
	})

	t.Run("salt forms", func(t *testing.T) {
		for body, want := range map[string]string{
			`{"owner":"` + addr + `","salt":7}`:                       "7",
			`{"owner":"` + addr + `","salt":"123456789012345678901"}`: "123456789012345678901",
		} {
			h := newHarness(t, nil)
			rec := h.do(http.MethodPost, "/api/create-account", body)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.Equal(t, want, h.f.salt.String())
			var out struct {
				Salt json.Number `json:"salt"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
			assert.Equal(t, want, out.Salt.String())
		}
	})

	t.Run("bad salt", func(t *testing.T) {
		for _, s := range []string{`-1`, `1.5`, `"abc"`, `true`} {
			h := newHarness(t, nil)
			rec := h.do(http.MethodPost, "/api/create-account", `{"owner":"`+addr+`","salt":`+s+`}`)
			assert.Equal(t, http.StatusBadRequest, rec.Code, "salt %s", s)
		}
	})

	t.Run("rate limited per owner", func(t *testing.T) {
		h := newHarness(t, nil)
		for i := 0; i < 3; i++ {
			require.Equal(t, http.StatusOK, h.do(http.MethodPost, "/api/create-account", `{"owner":"`+addr+`"}`).Code)
		}
		assert.Equal(t, http.StatusTooManyRequests, h.do(http.MethodPost, "/api/create-account", `{"owner":"`+addr+`"}`).Code)
	})
}

func TestInitPool_AdminKey(t *testing.T) {
	tests := []struct {
		name   string
		method string
		body   string
		hdr    []string
		code   int
	}{
		{"missing key", http.MethodPost, `{}`, nil, 400},
		{"wrong key", http.MethodPost, `{"adminKey":"nope"}`, nil, 403},
		{"body key", http.MethodPost, `{"adminKey":"s3cret","size":3}`, nil, 200},
		{"header key", http.MethodPost, `{"size":3}`, []string{"X-Admin-Key", "s3cret"}, 200},
		{"get with query size", http.MethodGet, "", []string{"X-Admin-Key", "s3cret"}, 200},
		{"bad size", http.MethodPost, `{"adminKey":"s3cret","size":"x"}`, nil, 400},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			path := "/api/init-pool"
			if tt.method == http.MethodGet {
				path += "?size=4"
			}
			rec := h.do(tt.method, path, tt.body, tt.hdr...)
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())
			if tt.code == 200 {
				m := decodeBody(t, rec)
				assert.Equal(t, true, m["success"])
				assert.Equal(t, "run-1", m["runId"])
			} else {
				assert.Empty(t, h.f.calls)
			}
		})
	}
}

func TestInitPool_DisabledWithoutKey(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.AdminKey = "" })
	rec := h.do(http.MethodPost, "/api/init-pool", `{"adminKey":"anything"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, h.f.calls)
}

func TestInitPool_SizePassedThrough(t *testing.T) {
	h := newHarness(t, nil)
	h.do(http.MethodGet, "/api/init-pool?size=4", "", "X-Admin-Key", "s3cret")
	assert.Equal(t, 4, h.f.size)
}

func TestContracts(t *testing.T) {
	h := newHarness(t, nil)
	rec := h.do(http.MethodGet, "/api/contracts", "")
	require.Equal(t, http.StatusOK, rec.Code)
	m := decodeBody(t, rec)
	assert.EqualValues(t, 11155111, m["chainId"])
	assert.Contains(t, m, "contracts")
	assert.Contains(t, m, "categories")
}

func TestPreflightAndMethods(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(http.MethodOptions, "/api/mint", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
	assert.Equal(t, "POST, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))

	rec = h.do(http.MethodOptions, "/api/init-pool", "")
	assert.Equal(t, "POST, GET, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))

	rec = h.do(http.MethodGet, "/api/mint", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "Method not allowed", decodeBody(t, rec)["error"])
}

func TestErrorStatusesCarryCORS(t *testing.T) {
	h := newHarness(t, nil)
	tests := []struct {
		method, path string
		code         int
		msg          string
	}{
		{http.MethodGet, "/api/mint", http.StatusMethodNotAllowed, "Method not allowed"},
		{http.MethodDelete, "/api/contracts", http.StatusMethodNotAllowed, "Method not allowed"},
		{http.MethodPost, "/api/mint-nft", http.StatusNotFound, "Not found"},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := h.do(tt.method, tt.path, "")
			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, tt.msg, decodeBody(t, rec)["error"])
			assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, "GET, POST, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
			assert.Contains(t, rec.Header().Get("Access-Control-Expose-Headers"), "Retry-After")
		})
	}
}
