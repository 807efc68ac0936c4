package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"creditpool/native/lending"
)

const maxBodyBytes = 1 << 20 // 1 MiB

func decodeBody(r *http.Request, dst interface{}) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", errInvalidRequest, err)
	}
	if len(body) > maxBodyBytes {
		return nil, fmt.Errorf("%w: body too large", errInvalidRequest)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		body = []byte("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidRequest, err)
	}
	return body, nil
}

func caller(r *http.Request) common.Address {
	addr, _ := CallerFrom(r.Context())
	return addr
}

func (s *Server) listAssets(w http.ResponseWriter, r *http.Request) {
	assets, err := s.engine.Assets()
	if err != nil {
		s.writeError(w, "list_assets", err)
		return
	}
	pools := make([]poolView, 0, len(assets))
	for _, asset := range assets {
		pool, err := s.engine.Pool(asset)
		if err != nil {
			s.writeError(w, "list_assets", err)
			return
		}
		pools = append(pools, toPoolView(pool))
	}
	writeJSON(w, http.StatusOK, pools)
}

func (s *Server) getPool(w http.ResponseWriter, r *http.Request) {
	asset, err := parseAsset(chi.URLParam(r, "asset"))
	if err != nil {
		s.writeError(w, "get_pool", err)
		return
	}
	pool, err := s.engine.Pool(asset)
	if err != nil {
		s.writeError(w, "get_pool", err)
		return
	}
	writeJSON(w, http.StatusOK, toPoolView(pool))
}

func (s *Server) getBalance(w http.ResponseWriter, r *http.Request) {
	asset, err := parseAsset(chi.URLParam(r, "asset"))
	if err != nil {
		s.writeError(w, "get_balance", err)
		return
	}
	account, err := parseAddress("addr", chi.URLParam(r, "addr"))
	if err != nil {
		s.writeError(w, "get_balance", err)
		return
	}
	shares, err := s.engine.SharesOf(asset, account)
	if err != nil {
		s.writeError(w, "get_balance", err)
		return
	}
	value, err := s.engine.RedeemableValue(asset, account)
	if err != nil {
		s.writeError(w, "get_balance", err)
		return
	}
	writeJSON(w, http.StatusOK, balanceView{
		Asset:           formatAsset(asset),
		Account:         account.Hex(),
		Shares:          formatAmount(shares),
		RedeemableValue: formatAmount(value),
	})
}

func (s *Server) getProfile(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress("addr", chi.URLParam(r, "addr"))
	if err != nil {
		s.writeError(w, "get_profile", err)
		return
	}
	profile, err := s.engine.Profile(addr)
	if err != nil {
		s.writeError(w, "get_profile", err)
		return
	}
	if profile == nil {
		writeProblem(w, http.StatusNotFound, "profile not found", "")
		return
	}
	canBorrow, err := s.engine.CanBorrow(addr)
	if err != nil {
		s.writeError(w, "get_profile", err)
		return
	}
	writeJSON(w, http.StatusOK, toProfileView(profile, canBorrow))
}

func (s *Server) listPositions(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress("addr", chi.URLParam(r, "addr"))
	if err != nil {
		s.writeError(w, "list_positions", err)
		return
	}
	positions, err := s.engine.Positions(addr)
	if err != nil {
		s.writeError(w, "list_positions", err)
		return
	}
	out := make([]positionView, 0, len(positions))
	for i, pos := range positions {
		out = append(out, toPositionView(uint64(i), pos))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getDebt(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress("addr", chi.URLParam(r, "addr"))
	if err != nil {
		s.writeError(w, "get_debt", err)
		return
	}
	index, err := parseIndex(chi.URLParam(r, "index"))
	if err != nil {
		s.writeError(w, "get_debt", err)
		return
	}
	debt, err := s.engine.PositionDebt(addr, index)
	if err != nil {
		s.writeError(w, "get_debt", err)
		return
	}
	writeJSON(w, http.StatusOK, toDebtView(debt))
}

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeProblem(w, http.StatusServiceUnavailable, "event journal unavailable", "")
		return
	}
	query := r.URL.Query()
	var after uint64
	if raw := query.Get("after"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			s.writeError(w, "list_events", fmt.Errorf("%w: after %q", errInvalidRequest, raw))
			return
		}
		after = parsed
	}
	limit := 0
	if raw := query.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			s.writeError(w, "list_events", fmt.Errorf("%w: limit %q", errInvalidRequest, raw))
			return
		}
		limit = parsed
	}
	entries, err := s.events.List(after, limit)
	if err != nil {
		s.writeError(w, "list_events", err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) deposit(w http.ResponseWriter, r *http.Request) {
	const op = "deposit"
	var req depositRequest
	body, err := decodeBody(r, &req)
	if err != nil {
		s.writeError(w, op, err)
		return
	}
	asset, err := parseAsset(req.Asset)
	if err != nil {
		s.writeError(w, op, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.writeError(w, op, err)
		return
	}
	value, err := parseAmount("value", req.Value)
	if err != nil {
		s.writeError(w, op, err)
		return
	}
	ctx, cancel := s.context(r.Context())
	defer cancel()
	sender := caller(r)
	minted, err := s.engine.Deposit(ctx, lending.Call{Sender: sender, Value: value}, asset, amount)
	if err != nil {
		s.writeError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, amountResponse{Receipt: newReceipt(op, sender, body), Amount: formatAmount(minted)})
}

func (s *Server) withdraw(w http.ResponseWriter, r *http.Request) {
	const op = "withdraw"
	var req withdrawRequest
	body, err := decodeBody(r, &req)
	if err != nil {
		s.writeError(w, op, err)
		return
	}
	asset, err := parseAsset(req.Asset)
	if err != nil {
		s.writeError(w, op, err)
		return
	}
	shares, err := parseAmount("shares", req.Shares)
	if err != nil {
		s.writeError(w, op, err)
		return
	}
	ctx, cancel := s.context(r.Context())
	defer cancel()
	sender := caller(r)
	redeemed, err := s.engine.Withdraw(ctx, lending.Call{Sender: sender}, asset, shares)
	if err != nil {
		s.writeError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, amountResponse{Receipt: newReceipt(op, sender, body), Amount: formatAmount(redeemed)})
}

func (s *Server) transfer(w http.ResponseWriter, r *http.Request) {
	const op = "transfer"
	var req transferRequest
	body, err := decodeBody(r, &req)
	if err != nil {
		s.writeError(w, op, err)
		return
	}
	asset, err := parseAsset(req.Asset)
	if err != nil {
		s.writeError(w, op, err)
		return
	}
	to, err := parseAddress("to", req.To)
	if err != nil {
		s.writeError(w, op, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.writeError(w, op, err)
		return
	}
	ctx, cancel := s.context(r.Context())
	defer cancel()
	sender := caller(r)
	moved, err := s.engine.TransferClaim(ctx, lending.Call{Sender: sender}, asset, to, amount)
	if err != nil {
		s.writeError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, amountResponse{Receipt: newReceipt(op, sender, body), Amount: formatAmount(moved)})
}

func (s *Server) borrow(w http.ResponseWriter, r *http.Request) {
	const op = "borrow"
	var req borrowRequest
	body, err := decodeBody(r, &req)
	if err != nil {
		s.writeError(w, op, err)
		return
	}
	asset, err := parseAsset(req.Asset)
	if err != nil {
		s.writeError(w, op, err)
		return
	}
	collateralAsset, err := parseAsset(req.CollateralAsset)
	if err != nil {
		s.writeError(w, op, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.writeError(w, op, err)
		return
	}
	collateral, err := parseAmount("collateralAmount", req.CollateralAmount)
	if err != nil {
		s.writeError(w, op, err)
		return
	}
	value, err := parseAmount("value", req.Value)
	if err != nil {
		s.writeError(w, op, err)
		return
	}
	ctx, cancel := s.context(r.Context())
	defer cancel()
	sender := caller(r)
	index, err := s.engine.Borrow(ctx, lending.Call{Sender: sender, Value: value}, lending.BorrowRequest{
		Asset:            asset,
		Amount:           amount,
		CollateralAsset:  collateralAsset,
		CollateralAmount: collateral,
	})
	if err != nil {
		s.writeError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, borrowResponse{Receipt: newReceipt(op, sender, body), Index: index})
}

func (s *Server) repay(w http.ResponseWriter, r *http.Request) {
	const op = "repay"
	var req repayRequest
	body, err := decodeBody(r, &req)
	if err != nil {
		s.writeError(w, op, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.writeError(w, op, err)
		return
	}
	value, err := parseAmount("value", req.Value)
	if err != nil {
		s.writeError(w, op, err)
		return
	}
	ctx, cancel := s.context(r.Context())
	defer cancel()
	sender := caller(r)
	result, err := s.engine.Repay(ctx, lending.Call{Sender: sender, Value: value}, req.Index, amount)
	if err != nil {
		s.writeError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, repayResponse{
		Receipt:       newReceipt(op, sender, body),
		Collected:     formatAmount(result.Collected),
		InterestPaid:  formatAmount(result.InterestPaid),
		PrincipalPaid: formatAmount(result.PrincipalPaid),
		Refunded:      formatAmount(result.Refunded),
		Remaining:     formatAmount(result.Remaining),
		Closed:        result.Closed,
		OnTime:        result.OnTime,
	})
}

func (s *Server) liquidate(w http.ResponseWriter, r *http.Request) {
	const op = "liquidate"
	var req liquidateRequest
	body, err := decodeBody(r, &req)
	if err != nil {
		s.writeError(w, op, err)
		return
	}
	borrower, err := parseAddress("borrower", req.Borrower)
	if err != nil {
		s.writeError(w, op, err)
		return
	}
	value, err := parseAmount("value", req.Value)
	if err != nil {
		s.writeError(w, op, err)
		return
	}
	ctx, cancel := s.context(r.Context())
	defer cancel()
	sender := caller(r)
	result, err := s.engine.Liquidate(ctx, lending.Call{Sender: sender, Value: value}, borrower, req.Index)
	if err != nil {
		s.writeError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, liquidateResponse{
		Receipt:          newReceipt(op, sender, body),
		Principal:        formatAmount(result.Principal),
		Interest:         formatAmount(result.Interest),
		Refunded:         formatAmount(result.Refunded),
		CollateralAsset:  formatAsset(result.CollateralAsset),
		CollateralAmount: formatAmount(result.CollateralAmount),
	})
}

func (s *Server) addAsset(w http.ResponseWriter, r *http.Request) {
	const op = "add_asset"
	var req addAssetRequest
	body, err := decodeBody(r, &req)
	if err != nil {
		s.writeError(w, op, err)
		return
	}
	asset, err := parseAsset(req.Asset)
	if err != nil {
		s.writeError(w, op, err)
		return
	}
	limit, err := parseAmount("maxBorrowLimit", req.MaxBorrowLimit)
	if err != nil {
		s.writeError(w, op, err)
		return
	}
	ctx, cancel := s.context(r.Context())
	defer cancel()
	sender := caller(r)
	if err := s.engine.AddAsset(ctx, sender, asset, limit); err != nil {
		s.writeError(w, op, err)
		return
	}
	writeJSON(w, http.StatusCreated, receiptResponse{Receipt: newReceipt(op, sender, body)})
}

func (s *Server) removeAsset(w http.ResponseWriter, r *http.Request) {
	const op = "remove_asset"
	raw := chi.URLParam(r, "asset")
	asset, err := parseAsset(raw)
	if err != nil {
		s.writeError(w, op, err)
		return
	}
	ctx, cancel := s.context(r.Context())
	defer cancel()
	sender := caller(r)
	if err := s.engine.RemoveAsset(ctx, sender, asset); err != nil {
		s.writeError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, receiptResponse{Receipt: newReceipt(op, sender, []byte(raw))})
}

func (s *Server) setLimit(w http.ResponseWriter, r *http.Request) {
	const op = "set_borrow_limit"
	asset, err := parseAsset(chi.URLParam(r, "asset"))
	if err != nil {
		s.writeError(w, op, err)
		return
	}
	var req limitRequest
	body, err := decodeBody(r, &req)
	if err != nil {
		s.writeError(w, op, err)
		return
	}
	limit, err := parseAmount("maxBorrowLimit", req.MaxBorrowLimit)
	if err != nil {
		s.writeError(w, op, err)
		return
	}
	ctx, cancel := s.context(r.Context())
	defer cancel()
	sender := caller(r)
	if err := s.engine.SetMaxBorrowLimit(ctx, sender, asset, limit); err != nil {
		s.writeError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, receiptResponse{Receipt: newReceipt(op, sender, append(asset.Bytes(), body...))})
}

func (s *Server) withdrawFees(w http.ResponseWriter, r *http.Request) {
	const op = "withdraw_protocol_fees"
	var req feeWithdrawRequest
	body, err := decodeBody(r, &req)
	if err != nil {
		s.writeError(w, op, err)
		return
	}
	asset, err := parseAsset(req.Asset)
	if err != nil {
		s.writeError(w, op, err)
		return
	}
	to, err := parseAddress("to", req.To)
	if err != nil {
		s.writeError(w, op, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.writeError(w, op, err)
		return
	}
	ctx, cancel := s.context(r.Context())
	defer cancel()
	sender := caller(r)
	if err := s.engine.WithdrawProtocolFees(ctx, sender, asset, to, amount); err != nil {
		s.writeError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, receiptResponse{Receipt: newReceipt(op, sender, body)})
}

func (s *Server) pause(w http.ResponseWriter, r *http.Request) {
	s.setPaused(w, r, true)
}

func (s *Server) unpause(w http.ResponseWriter, r *http.Request) {
	s.setPaused(w, r, false)
}

func (s *Server) setPaused(w http.ResponseWriter, r *http.Request, paused bool) {
	op := "unpause"
	if paused {
		op = "pause"
	}
	if s.controls == nil {
		writeProblem(w, http.StatusServiceUnavailable, "pause controls unavailable", "")
		return
	}
	sender := caller(r)
	var err error
	if paused {
		err = s.controls.Pause(sender, lending.ModuleName)
	} else {
		err = s.controls.Unpause(sender, lending.ModuleName)
	}
	if err != nil {
		s.writeError(w, op, err)
		return
	}
	s.logger.Info("lending module pause toggled", "paused", paused, "caller", sender.Hex())
	writeJSON(w, http.StatusOK, receiptResponse{Receipt: newReceipt(op, sender, nil)})
}
