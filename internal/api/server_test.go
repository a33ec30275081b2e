package api

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ward-wallet/ward-wallet/internal/app"
	"github.com/ward-wallet/ward-wallet/internal/config"
	"github.com/ward-wallet/ward-wallet/internal/middleware"
	"github.com/ward-wallet/ward-wallet/internal/session"
	apperrors "github.com/ward-wallet/ward-wallet/pkg/errors"
	"github.com/ward-wallet/ward-wallet/pkg/types"
)

const (
	testAddress = "0x9858EfFD232B4033E47d90003D41EC34EcaEda94"
	testOrigin  = "https://app.example"
	testToken   = "session-token-1"
	testSecret  = "guardian-secret"
	testChainID = int64(11155111)
)

// stubService is a canned WalletService for handler tests.
type stubService struct {
	balance    *big.Float
	signResult string
	sendHash   string
	sendErr    error
	activities []*types.ActivityRecord
	policy     *types.PolicySnapshot
	updated    *types.PolicySnapshot
	created    *app.CreateWalletResponse

	lastTx     *types.ProposedTransaction
	gotChainID int64
}

func (s *stubService) CreateWallet(ctx context.Context, req *app.CreateWalletRequest) (*app.CreateWalletResponse, error) {
	if s.created == nil {
		return nil, apperrors.ErrInvalidSeed
	}
	return s.created, nil
}

func (s *stubService) CreateSession(ctx context.Context, address string, chainID int64, origin string) (*types.Session, error) {
	s.gotChainID = chainID
	return &types.Session{ID: testToken, Address: address, ChainID: chainID, Origin: origin}, nil
}

func (s *stubService) GetBalance(ctx context.Context, sess *types.Session) (*big.Float, error) {
	return s.balance, nil
}

func (s *stubService) Sign(ctx context.Context, sess *types.Session, msg []byte) (string, error) {
	return s.signResult, nil
}

func (s *stubService) SendTransaction(ctx context.Context, sess *types.Session, tx *types.ProposedTransaction) (string, error) {
	s.lastTx = tx
	if s.sendErr != nil {
		return "", s.sendErr
	}
	return s.sendHash, nil
}

func (s *stubService) Activities(ctx context.Context, address string) ([]*types.ActivityRecord, error) {
	return s.activities, nil
}

func (s *stubService) GetPolicy(ctx context.Context, address string) (*types.PolicySnapshot, error) {
	return s.policy, nil
}

func (s *stubService) UpdatePolicy(ctx context.Context, snapshot *types.PolicySnapshot) error {
	s.updated = snapshot
	return nil
}

// stubSessions validates exactly one token/origin pair.
type stubSessions struct {
	chainID int64
}

func (s stubSessions) Validate(ctx context.Context, id, origin string) (*types.Session, error) {
	if id != testToken {
		return nil, session.ErrNotFound
	}
	if origin != testOrigin {
		return nil, session.ErrOriginMismatch
	}
	return &types.Session{ID: id, Address: testAddress, ChainID: s.chainID, Origin: origin}, nil
}

func newTestServer(service *stubService) http.Handler {
	return newTestServerWithSessions(service, stubSessions{chainID: testChainID})
}

func newTestServerWithSessions(service *stubService, sessions stubSessions) http.Handler {
	srv := NewServer(
		&config.Config{Port: 0},
		service,
		middleware.NewSessionAuth(sessions),
		middleware.NewGuardianAuth(testSecret),
		middleware.NewRateLimiter(100, 100, false),
		func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) },
	)
	return srv.Handler()
}

func doRPC(t *testing.T, handler http.Handler, method string, params any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	body := map[string]any{"method": method}
	if params != nil {
		body["params"] = params
	}
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/provider/rpc", bytes.NewReader(raw))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func authedHeaders() map[string]string {
	return map[string]string{
		middleware.HeaderSessionToken: testToken,
		middleware.HeaderWalletOrigin: testOrigin,
	}
}

func rpcResult(t *testing.T, rec *httptest.ResponseRecorder) any {
	t.Helper()
	var resp RPCResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Result
}

func responseErrorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error.Code
}

func TestProviderAccounts(t *testing.T) {
	handler := newTestServer(&stubService{})

	for _, method := range []string{"wd_accounts", "wd_requestAccounts"} {
		rec := doRPC(t, handler, method, nil, authedHeaders())
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []any{testAddress}, rpcResult(t, rec))
	}
}

func TestProviderChainID(t *testing.T) {
	handler := newTestServer(&stubService{})

	rec := doRPC(t, handler, "wd_chainId", nil, authedHeaders())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0xaa36a7", rpcResult(t, rec))
}

func TestProviderChainIDFollowsSession(t *testing.T) {
	// The answer comes from the authenticated session, not a server global.
	handler := newTestServerWithSessions(&stubService{}, stubSessions{chainID: 1})

	rec := doRPC(t, handler, "wd_chainId", nil, authedHeaders())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0x1", rpcResult(t, rec))
}

func TestProviderGetBalance(t *testing.T) {
	handler := newTestServer(&stubService{balance: big.NewFloat(1.25)})

	rec := doRPC(t, handler, "wd_getBalance", nil, authedHeaders())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1.25", rpcResult(t, rec))
}

func TestProviderSign(t *testing.T) {
	handler := newTestServer(&stubService{signResult: "0xsigned"})

	rec := doRPC(t, handler, "wd_sign", map[string]string{"message": "hello"}, authedHeaders())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0xsigned", rpcResult(t, rec))

	rec = doRPC(t, handler, "wd_sign", map[string]string{}, authedHeaders())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "malformed", responseErrorCode(t, rec))
}

func TestProviderSendTransaction(t *testing.T) {
	service := &stubService{sendHash: "0xtxhash"}
	handler := newTestServer(service)

	rec := doRPC(t, handler, "wd_sendTransaction", map[string]string{
		"to":    "0x1111111111111111111111111111111111111111",
		"value": "0.5",
		"dapp":  "https://dapp.example",
	}, authedHeaders())

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0xtxhash", rpcResult(t, rec))
	require.NotNil(t, service.lastTx)
	assert.Equal(t, "0.5", service.lastTx.Value.Text('f', -1))
	assert.Equal(t, "https://dapp.example", service.lastTx.DApp)
}

func TestProviderSendTransactionPolicyDenied(t *testing.T) {
	service := &stubService{sendErr: apperrors.PolicyRejected("exceeds daily limit")}
	handler := newTestServer(service)

	rec := doRPC(t, handler, "wd_sendTransaction", map[string]string{
		"to":    "0x1111111111111111111111111111111111111111",
		"value": "5",
	}, authedHeaders())

	// A policy denial is 403 policy_rejected, distinct from the session
	// layer's 401 unauthorized.
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "policy_rejected", responseErrorCode(t, rec))
}

func TestProviderSendTransactionMalformedValue(t *testing.T) {
	handler := newTestServer(&stubService{})

	rec := doRPC(t, handler, "wd_sendTransaction", map[string]string{
		"to":    "0x1111111111111111111111111111111111111111",
		"value": "not-a-number",
	}, authedHeaders())

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "malformed", responseErrorCode(t, rec))
}

func TestProviderMethodNotFound(t *testing.T) {
	handler := newTestServer(&stubService{})

	rec := doRPC(t, handler, "eth_coinbase", nil, authedHeaders())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "method_not_found", responseErrorCode(t, rec))
}

func TestProviderRequiresSessionHeaders(t *testing.T) {
	handler := newTestServer(&stubService{})

	rec := doRPC(t, handler, "wd_accounts", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "malformed", responseErrorCode(t, rec))

	rec = doRPC(t, handler, "wd_accounts", nil, map[string]string{
		middleware.HeaderSessionToken: "wrong-token",
		middleware.HeaderWalletOrigin: testOrigin,
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", responseErrorCode(t, rec))

	rec = doRPC(t, handler, "wd_accounts", nil, map[string]string{
		middleware.HeaderSessionToken: testToken,
		middleware.HeaderWalletOrigin: "https://evil.example",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateSessionEndpoint(t *testing.T) {
	service := &stubService{}
	handler := newTestServer(service)

	raw, _ := json.Marshal(CreateSessionRequest{Address: testAddress, ChainID: testChainID, Origin: testOrigin})
	req := httptest.NewRequest(http.MethodPost, "/v1/sessions", bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp CreateSessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, testToken, resp.SessionID)
	assert.Equal(t, types.SessionTTL.Milliseconds(), resp.ExpiresInMs)
	assert.Equal(t, testChainID, service.gotChainID)
}

func TestCreateSessionRequiresFields(t *testing.T) {
	handler := newTestServer(&stubService{})

	raw, _ := json.Marshal(CreateSessionRequest{Address: testAddress})
	req := httptest.NewRequest(http.MethodPost, "/v1/sessions", bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListActivities(t *testing.T) {
	service := &stubService{activities: []*types.ActivityRecord{
		{Hash: "0xh1", Type: types.ActivitySend, Status: types.StatusPending, Address: testAddress, Chain: types.ChainEthereum},
	}}
	handler := newTestServer(service)

	req := httptest.NewRequest(http.MethodGet, "/v1/activities", nil)
	req.Header.Set(middleware.HeaderSessionToken, testToken)
	req.Header.Set(middleware.HeaderWalletOrigin, testOrigin)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp ListActivitiesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Activities, 1)
	assert.Equal(t, "0xh1", resp.Activities[0].Hash)
}

func guardianToken(t *testing.T, address string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"role": "guardian",
		"sub":  address,
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func TestUpdatePolicyRequiresGuardian(t *testing.T) {
	handler := newTestServer(&stubService{})

	raw, _ := json.Marshal(types.PolicySnapshot{WalletAddress: testAddress, Enabled: true})
	req := httptest.NewRequest(http.MethodPut, "/v1/policies", bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUpdatePolicyAsGuardian(t *testing.T) {
	service := &stubService{}
	handler := newTestServer(service)

	raw, _ := json.Marshal(types.PolicySnapshot{WalletAddress: testAddress, Enabled: true})
	req := httptest.NewRequest(http.MethodPut, "/v1/policies", bytes.NewReader(raw))
	req.Header.Set("Authorization", "Bearer "+guardianToken(t, testAddress))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, service.updated)
	assert.True(t, service.updated.Enabled)
}

func TestUpdatePolicyWrongWallet(t *testing.T) {
	handler := newTestServer(&stubService{})

	raw, _ := json.Marshal(types.PolicySnapshot{WalletAddress: "0xother", Enabled: true})
	req := httptest.NewRequest(http.MethodPut, "/v1/policies", bytes.NewReader(raw))
	req.Header.Set("Authorization", "Bearer "+guardianToken(t, testAddress))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetPolicyDefaultsWhenUnset(t *testing.T) {
	handler := newTestServer(&stubService{})

	req := httptest.NewRequest(http.MethodGet, "/v1/policies", nil)
	req.Header.Set(middleware.HeaderSessionToken, testToken)
	req.Header.Set(middleware.HeaderWalletOrigin, testOrigin)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var snapshot types.PolicySnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snapshot))
	assert.Equal(t, testAddress, snapshot.WalletAddress)
	assert.False(t, snapshot.Enabled)
}

func TestHealthEndpoint(t *testing.T) {
	handler := newTestServer(&stubService{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestCreateWalletRequiresGuardian(t *testing.T) {
	handler := newTestServer(&stubService{})

	raw, _ := json.Marshal(CreateWalletRequest{SeedPhrase: "seed", Chain: "ETH"})
	req := httptest.NewRequest(http.MethodPost, "/v1/wallets", bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
