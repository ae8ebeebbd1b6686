package faucethttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"github.com/aastar/faucet/internal/chain"
	"github.com/aastar/faucet/internal/contracts"
	"github.com/aastar/faucet/internal/cryptoutil"
	"github.com/aastar/faucet/internal/faucet"
	"github.com/aastar/faucet/internal/httpmw"
	"github.com/aastar/faucet/internal/log"
	"github.com/aastar/faucet/internal/ratelimit"
	"github.com/aastar/faucet/internal/xerrors"
)

// Faucet is the action surface the API drives; *faucet.Service implements it.
type Faucet interface {
	Network() string
	DefaultOwner() (common.Address, bool)
	MintSBT(ctx context.Context, recipient string) (*faucet.MintResult, error)
	MintPNT(ctx context.Context, recipient string) (*faucet.MintResult, error)
	MintUSDT(ctx context.Context, recipient string) (*faucet.USDTResult, error)
	CreateAccount(ctx context.Context, owner string, salt *big.Int) (*faucet.AccountResult, error)
	InitPool(ctx context.Context, size int) (*faucet.PoolReport, error)
}

// Limiters holds one limiter per endpoint policy. Keys are "{purpose}-{subject}".
type Limiters struct {
	Mint    ratelimit.Limiter // sbt-*, pnt-*
	USDT    ratelimit.Limiter // usdt-*
	Account ratelimit.Limiter // account-*
}

type Options struct {
	Faucet   Faucet
	Limiters Limiters
	Catalog  *contracts.Catalog
	Logger   log.Logger

	// AdminKey guards /api/init-pool. Empty disables the endpoint (403).
	AdminKey string

	// PoolTimeout extends the write deadline for pool runs. Default 10m.
	PoolTimeout time.Duration

	// OnRateLimited is called with the limiter name for every 429.
	OnRateLimited func(limiter string)
	// OnLimiterError is called when a limiter store fails.
	OnLimiterError func(limiter string)
}

// API implements the faucet endpoints under /api.
type API struct {
	opts   Options
	logger log.Logger
}

func NewAPI(opts Options) *API {
	if opts.PoolTimeout <= 0 {
		opts.PoolTimeout = 10 * time.Minute
	}
	return &API{opts: opts, logger: log.OrNop(opts.Logger)}
}

// RegisterRoutes mounts the API. Each route answers its own CORS preflight.
// Unknown paths and methods get a JSON 404 or 405 that still carries CORS
// headers.
func (api *API) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Use(httpmw.CORSHeaders(httpmw.CORSOptions{}))
		r.NotFound(notFound)
		r.MethodNotAllowed(methodNotAllowed)

		post := httpmw.CORS(httpmw.CORSOptions{AllowMethods: []string{http.MethodPost, http.MethodOptions}})
		getPost := httpmw.CORS(httpmw.CORSOptions{AllowMethods: []string{http.MethodPost, http.MethodGet, http.MethodOptions}})
		get := httpmw.CORS(httpmw.CORSOptions{AllowMethods: []string{http.MethodGet, http.MethodOptions}})

		r.With(post).Options("/mint", noop)
		r.With(post).Post("/mint", api.HandleMint)

		r.With(post).Options("/mint-usdt", noop)
		r.With(post).Post("/mint-usdt", api.HandleMintUSDT)

		r.With(post).Options("/create-account", noop)
		r.With(post).Post("/create-account", api.HandleCreateAccount)

		r.With(getPost).Options("/init-pool", noop)
		r.With(getPost).Post("/init-pool", api.HandleInitPool)
		r.With(getPost).Get("/init-pool", api.HandleInitPool)

		r.With(get).Options("/contracts", noop)
		r.With(get).Get("/contracts", api.HandleContracts)
	})
}

// noop is reached only if CORS did not answer the preflight.
func noop(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }

func methodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	writeStatus(w, http.StatusMethodNotAllowed, `{"error":"Method not allowed"}`)
}

func notFound(w http.ResponseWriter, _ *http.Request) {
	writeStatus(w, http.StatusNotFound, `{"error":"Not found"}`)
}

func writeStatus(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body + "\n"))
}

type errorResponse struct {
	Success *bool  `json:"success,omitempty"`
	Error   string `json:"error"`
}

var falseVal = false

func (api *API) writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		api.logger.Warn(ctx, "failed to encode JSON response", "error", err)
	}
}

// writeInputError is for validation failures, which carry no success field.
func (api *API) writeInputError(ctx context.Context, w http.ResponseWriter, status int, msg string) {
	api.writeJSON(ctx, w, status, errorResponse{Error: msg})
}

// writeActionError maps a failed faucet action to a status and user message.
func (api *API) writeActionError(ctx context.Context, w http.ResponseWriter, action string, err error) {
	status, msg := http.StatusInternalServerError, err.Error()
	if s, m, ok := xerrors.PublicInfo(err); ok {
		status, msg = s, m
	} else {
		switch chain.Classify(err) {
		case chain.KindInsufficientFunds:
			msg = "Faucet is out of funds. Please contact the administrator."
		case chain.KindNonce:
			msg = "Transaction conflict. Please try again."
		case chain.KindSenderCreator:
			status, msg = http.StatusBadRequest, "Factory can only be called through EntryPoint"
		}
	}
	if status >= 500 {
		api.logger.Error(ctx, err, "faucet action failed", "action", action)
	} else {
		api.logger.Info(ctx, "faucet action rejected", "action", action, "reason", msg)
	}
	api.writeJSON(ctx, w, status, errorResponse{Success: &falseVal, Error: msg})
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func (api *API) decode(ctx context.Context, w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	err := dec.Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	var tooBig *http.MaxBytesError
	if errors.As(err, &tooBig) {
		api.writeInputError(ctx, w, http.StatusRequestEntityTooLarge, "Request body too large")
		return false
	}
	api.writeInputError(ctx, w, http.StatusBadRequest, "Invalid JSON body")
	return false
}

// admit applies limiter l to key and writes the 429 or 503 itself when the
// request may not proceed.
func (api *API) admit(ctx context.Context, w http.ResponseWriter, name string, l ratelimit.Limiter, key string) bool {
	if l == nil {
		return true
	}
	ok, err := l.Admit(ctx, key)
	if err != nil {
		api.logger.Error(ctx, err, "rate limiter unavailable", "limiter", name)
		if api.opts.OnLimiterError != nil {
			api.opts.OnLimiterError(name)
		}
		api.writeInputError(ctx, w, http.StatusServiceUnavailable, "Rate limiter unavailable")
		return false
	}
	if ok {
		return true
	}

	if api.opts.OnRateLimited != nil {
		api.opts.OnRateLimited(name)
	}
	max, window := l.Limits()
	if retry := retryAfterSeconds(ctx, l, key); retry > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(retry))
	}
	api.writeInputError(ctx, w, http.StatusTooManyRequests,
		fmt.Sprintf("Rate limit exceeded. Please try again later (%s)", ratelimit.Describe(max, window)))
	return false
}

// retryAfterSeconds rounds the limiter's wait up to whole seconds, or 0 when
// unknown.
func retryAfterSeconds(ctx context.Context, l ratelimit.Limiter, key string) int {
	d, err := l.RetryAfter(ctx, key)
	if err != nil || d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}

type mintRequest struct {
	Address string `json:"address"`
	Type    string `json:"type"`
}

// HandleMint mints an SBT or PNT.
func (api *API) HandleMint(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req mintRequest
	if !api.decode(ctx, w, r, &req) {
		return
	}
	if req.Address == "" || req.Type == "" {
		api.writeInputError(ctx, w, http.StatusBadRequest, "Missing address or type parameter")
		return
	}
	if !faucet.ValidAddress(req.Address) {
		api.writeInputError(ctx, w, http.StatusBadRequest, "Invalid Ethereum address")
		return
	}
	if req.Type != "sbt" && req.Type != "pnt" {
		api.writeInputError(ctx, w, http.StatusBadRequest, `Invalid type. Must be "sbt" or "pnt"`)
		return
	}
	if !api.admit(ctx, w, "mint", api.opts.Limiters.Mint, ratelimit.Key(req.Type, req.Address)) {
		return
	}

	var (
		res *faucet.MintResult
		err error
	)
	if req.Type == "sbt" {
		res, err = api.opts.Faucet.MintSBT(ctx, req.Address)
	} else {
		res, err = api.opts.Faucet.MintPNT(ctx, req.Address)
	}
	if err != nil {
		api.writeActionError(ctx, w, "mint_"+req.Type, err)
		return
	}
	api.writeJSON(ctx, w, http.StatusOK, struct {
		Success bool `json:"success"`
		*faucet.MintResult
	}{true, res})
}

type usdtRequest struct {
	Address string `json:"address"`
}

// HandleMintUSDT calls the mock USDT faucet.
func (api *API) HandleMintUSDT(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req usdtRequest
	if !api.decode(ctx, w, r, &req) {
		return
	}
	if req.Address == "" {
		api.writeInputError(ctx, w, http.StatusBadRequest, "Missing address parameter")
		return
	}
	if !faucet.ValidAddress(req.Address) {
		api.writeInputError(ctx, w, http.StatusBadRequest, "Invalid Ethereum address")
		return
	}
	if !api.admit(ctx, w, "usdt", api.opts.Limiters.USDT, ratelimit.Key("usdt", req.Address)) {
		return
	}

	res, err := api.opts.Faucet.MintUSDT(ctx, req.Address)
	if err != nil {
		api.writeActionError(ctx, w, "mint_usdt", err)
		return
	}
	api.writeJSON(ctx, w, http.StatusOK, struct {
		Success bool `json:"success"`
		*faucet.USDTResult
	}{true, res})
}

type accountRequest struct {
	Owner string `json:"owner"`
	Salt  any    `json:"salt"`
}

var maxSalt = new(big.Int).Lsh(big.NewInt(1), 256)

// parseSalt accepts a JSON number or decimal string in [0, 2^256).
func parseSalt(v any) (*big.Int, bool) {
	var s string
	switch x := v.(type) {
	case nil:
		return nil, true
	case json.Number:
		s = x.String()
	case string:
		s = strings.TrimSpace(x)
	default:
		return nil, false
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok || n.Sign() < 0 || n.Cmp(maxSalt) >= 0 {
		return nil, false
	}
	return n, true
}

// HandleCreateAccount deploys a smart account for owner.
func (api *API) HandleCreateAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req accountRequest
	if !api.decode(ctx, w, r, &req) {
		return
	}

	owner := req.Owner
	if owner == "" {
		def, ok := api.opts.Faucet.DefaultOwner()
		if !ok {
			api.logger.Warn(ctx, "create account without owner and no default owner configured")
			api.writeInputError(ctx, w, http.StatusInternalServerError, "Server configuration error")
			return
		}
		owner = def.Hex()
	}
	if !faucet.ValidAddress(owner) {
		api.writeInputError(ctx, w, http.StatusBadRequest, "Invalid Ethereum address for owner")
		return
	}
	salt, ok := parseSalt(req.Salt)
	if !ok {
		api.writeInputError(ctx, w, http.StatusBadRequest, "Invalid salt")
		return
	}
	if !api.admit(ctx, w, "account", api.opts.Limiters.Account, ratelimit.Key("account", owner)) {
		return
	}

	res, err := api.opts.Faucet.CreateAccount(ctx, owner, salt)
	if err != nil {
		api.writeActionError(ctx, w, "create_account", err)
		return
	}
	api.writeJSON(ctx, w, http.StatusOK, struct {
		Success bool `json:"success"`
		*faucet.AccountResult
	}{true, res})
}

type poolRequest struct {
	AdminKey string      `json:"adminKey"`
	Size     json.Number `json:"size"`
}

// HandleInitPool builds the test account pool. Admin only.
func (api *API) HandleInitPool(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req poolRequest
	if r.Method == http.MethodPost {
		if !api.decode(ctx, w, r, &req) {
			return
		}
	} else {
		req.Size = json.Number(r.URL.Query().Get("size"))
	}
	if k := r.Header.Get("X-Admin-Key"); k != "" {
		req.AdminKey = k
	}

	switch {
	case api.opts.AdminKey == "":
		api.writeInputError(ctx, w, http.StatusForbidden, "Pool initialization is disabled")
		return
	case req.AdminKey == "":
		api.writeInputError(ctx, w, http.StatusBadRequest, "Missing admin key")
		return
	case !cryptoutil.SecretEqual(req.AdminKey, api.opts.AdminKey):
		api.logger.Warn(ctx, "init pool rejected: invalid admin key", "client_ip", httpmw.ClientIPFromContext(ctx))
		api.writeInputError(ctx, w, http.StatusForbidden, "Invalid admin key")
		return
	}

	size := 0
	if req.Size != "" {
		n, err := strconv.Atoi(req.Size.String())
		if err != nil || n < 0 {
			api.writeInputError(ctx, w, http.StatusBadRequest, "Invalid pool size")
			return
		}
		size = n
	}

	_ = http.NewResponseController(w).SetWriteDeadline(time.Now().Add(api.opts.PoolTimeout))

	rep, err := api.opts.Faucet.InitPool(ctx, size)
	if err != nil {
		api.writeActionError(ctx, w, "init_pool", err)
		return
	}
	api.writeJSON(ctx, w, http.StatusOK, struct {
		Success bool `json:"success"`
		*faucet.PoolReport
	}{true, rep})
}

// HandleContracts serves the contract catalog.
func (api *API) HandleContracts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if api.opts.Catalog == nil {
		api.writeInputError(ctx, w, http.StatusServiceUnavailable, "Contract catalog unavailable")
		return
	}
	api.writeJSON(ctx, w, http.StatusOK, api.opts.Catalog.View())
}
