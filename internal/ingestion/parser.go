package ingestion

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"StakeVault/internal/core"

	"github.com/google/uuid"
)

// OpName extracts the operation name from a NATS subject. Op subjects
// follow sv.ops.<domain>.<op_name>; the final token is the name.
func OpName(subject string) string {
	idx := strings.LastIndex(subject, ".")
	if idx < 0 || idx == len(subject)-1 {
		return ""
	}
	return subject[idx+1:]
}

// ParseRawOp converts a RawOp (JSON bytes + op name) into a typed core.Op.
// Field names use snake_case to match upstream producers. Amounts and
// timestamps are validated by the components, not here; the parser only
// rejects payloads it cannot decode.
func ParseRawOp(raw RawOp, opName string) (core.Op, error) {
	switch opName {
	case "create_share":
		return parseCreateShare(raw.Data)
	case "remove_share":
		return parseRemoveShare(raw.Data)
	case "set_rewards_pool":
		return parseSetRewardsPool(raw.Data)
	case "start_rewards":
		return parseStartRewards(raw.Data)
	case "set_end_time":
		return parseSetEndTime(raw.Data)
	case "issue_rewards":
		return core.IssueRewardsOp{}, nil
	case "set_fee":
		return parseSetFee(raw.Data)
	case "approve_collateral":
		return parseApproveCollateral(raw.Data)
	case "mint_key":
		return parseMintKey(raw.Data)
	case "add_collateral":
		return parseAddCollateral(raw.Data)
	case "burn_key":
		return parseBurnKey(raw.Data)
	case "liquidate_key":
		return parseLiquidateKey(raw.Data)
	case "sweep":
		return core.SweepOp{}, nil
	case "set_sweep_percent":
		return parseSetSweepPercent(raw.Data)
	case "set_liquidator_reward_percent":
		return parseSetLiquidatorRewardPercent(raw.Data)
	case "issue_tokens":
		return parseIssueTokens(raw.Data)
	case "transfer":
		return parseTransfer(raw.Data)
	case "approve":
		return parseApprove(raw.Data)
	case "pause_token":
		return parsePauseToken(raw.Data)
	case "resume_token":
		return parseResumeToken(raw.Data)
	default:
		return nil, fmt.Errorf("unknown op: %q", opName)
	}
}

// --- JSON wire formats ---

type createShareJSON struct {
	Holder string `json:"holder"`
	Amount int64  `json:"amount"`
}

func parseCreateShare(data []byte) (core.CreateShareOp, error) {
	var j createShareJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return core.CreateShareOp{}, fmt.Errorf("parse create_share: %w", err)
	}
	holder, err := uuid.Parse(j.Holder)
	if err != nil {
		return core.CreateShareOp{}, fmt.Errorf("parse holder: %w", err)
	}
	return core.CreateShareOp{Holder: holder, Amount: j.Amount}, nil
}

type removeShareJSON struct {
	Holder string `json:"holder"`
	Shares int64  `json:"shares"`
}

func parseRemoveShare(data []byte) (core.RemoveShareOp, error) {
	var j removeShareJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return core.RemoveShareOp{}, fmt.Errorf("parse remove_share: %w", err)
	}
	holder, err := uuid.Parse(j.Holder)
	if err != nil {
		return core.RemoveShareOp{}, fmt.Errorf("parse holder: %w", err)
	}
	return core.RemoveShareOp{Holder: holder, Shares: j.Shares}, nil
}

type callerJSON struct {
	Caller string `json:"caller"`
}

func parseCaller(data []byte, op string) (uuid.UUID, error) {
	var j callerJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return uuid.Nil, fmt.Errorf("parse %s: %w", op, err)
	}
	caller, err := uuid.Parse(j.Caller)
	if err != nil {
		return uuid.Nil, fmt.Errorf("parse caller: %w", err)
	}
	return caller, nil
}

func parseSetRewardsPool(data []byte) (core.SetRewardsPoolOp, error) {
	caller, err := parseCaller(data, "set_rewards_pool")
	if err != nil {
		return core.SetRewardsPoolOp{}, err
	}
	return core.SetRewardsPoolOp{Caller: caller}, nil
}

type scheduleJSON struct {
	Caller    string `json:"caller"`
	EndTimeUs int64  `json:"end_time_us"`
}

func parseStartRewards(data []byte) (core.StartRewardsOp, error) {
	var j scheduleJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return core.StartRewardsOp{}, fmt.Errorf("parse start_rewards: %w", err)
	}
	caller, err := uuid.Parse(j.Caller)
	if err != nil {
		return core.StartRewardsOp{}, fmt.Errorf("parse caller: %w", err)
	}
	return core.StartRewardsOp{Caller: caller, EndTime: time.UnixMicro(j.EndTimeUs)}, nil
}

func parseSetEndTime(data []byte) (core.SetEndTimeOp, error) {
	var j scheduleJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return core.SetEndTimeOp{}, fmt.Errorf("parse set_end_time: %w", err)
	}
	caller, err := uuid.Parse(j.Caller)
	if err != nil {
		return core.SetEndTimeOp{}, fmt.Errorf("parse caller: %w", err)
	}
	return core.SetEndTimeOp{Caller: caller, EndTime: time.UnixMicro(j.EndTimeUs)}, nil
}

type setFeeJSON struct {
	Caller        string `json:"caller"`
	RatePerSecond int64  `json:"rate_per_second"`
}

func parseSetFee(data []byte) (core.SetFeeOp, error) {
	var j setFeeJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return core.SetFeeOp{}, fmt.Errorf("parse set_fee: %w", err)
	}
	caller, err := uuid.Parse(j.Caller)
	if err != nil {
		return core.SetFeeOp{}, fmt.Errorf("parse caller: %w", err)
	}
	return core.SetFeeOp{Caller: caller, RatePerSecond: j.RatePerSecond}, nil
}

type approveCollateralJSON struct {
	Amount int64 `json:"amount"`
}

func parseApproveCollateral(data []byte) (core.ApproveCollateralOp, error) {
	var j approveCollateralJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return core.ApproveCollateralOp{}, fmt.Errorf("parse approve_collateral: %w", err)
	}
	return core.ApproveCollateralOp{Amount: j.Amount}, nil
}

type mintKeyJSON struct {
	Caller string `json:"caller"`
	Amount int64  `json:"amount"`
}

func parseMintKey(data []byte) (core.MintKeyOp, error) {
	var j mintKeyJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return core.MintKeyOp{}, fmt.Errorf("parse mint_key: %w", err)
	}
	caller, err := uuid.Parse(j.Caller)
	if err != nil {
		return core.MintKeyOp{}, fmt.Errorf("parse caller: %w", err)
	}
	return core.MintKeyOp{Caller: caller, Amount: j.Amount}, nil
}

type addCollateralJSON struct {
	Caller  string `json:"caller"`
	TokenID uint64 `json:"token_id"`
	Amount  int64  `json:"amount"`
}

func parseAddCollateral(data []byte) (core.AddCollateralOp, error) {
	var j addCollateralJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return core.AddCollateralOp{}, fmt.Errorf("parse add_collateral: %w", err)
	}
	caller, err := uuid.Parse(j.Caller)
	if err != nil {
		return core.AddCollateralOp{}, fmt.Errorf("parse caller: %w", err)
	}
	return core.AddCollateralOp{Caller: caller, TokenID: j.TokenID, Amount: j.Amount}, nil
}

type keyRefJSON struct {
	Caller  string `json:"caller"`
	TokenID uint64 `json:"token_id"`
}

func parseBurnKey(data []byte) (core.BurnKeyOp, error) {
	var j keyRefJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return core.BurnKeyOp{}, fmt.Errorf("parse burn_key: %w", err)
	}
	caller, err := uuid.Parse(j.Caller)
	if err != nil {
		return core.BurnKeyOp{}, fmt.Errorf("parse caller: %w", err)
	}
	return core.BurnKeyOp{Caller: caller, TokenID: j.TokenID}, nil
}

func parseLiquidateKey(data []byte) (core.LiquidateKeyOp, error) {
	var j keyRefJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return core.LiquidateKeyOp{}, fmt.Errorf("parse liquidate_key: %w", err)
	}
	caller, err := uuid.Parse(j.Caller)
	if err != nil {
		return core.LiquidateKeyOp{}, fmt.Errorf("parse caller: %w", err)
	}
	return core.LiquidateKeyOp{Caller: caller, TokenID: j.TokenID}, nil
}

type percentJSON struct {
	Caller  string `json:"caller"`
	Percent int64  `json:"percent"`
}

func parseSetSweepPercent(data []byte) (core.SetSweepPercentOp, error) {
	var j percentJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return core.SetSweepPercentOp{}, fmt.Errorf("parse set_sweep_percent: %w", err)
	}
	caller, err := uuid.Parse(j.Caller)
	if err != nil {
		return core.SetSweepPercentOp{}, fmt.Errorf("parse caller: %w", err)
	}
	return core.SetSweepPercentOp{Caller: caller, Percent: j.Percent}, nil
}

func parseSetLiquidatorRewardPercent(data []byte) (core.SetLiquidatorRewardPercentOp, error) {
	var j percentJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return core.SetLiquidatorRewardPercentOp{}, fmt.Errorf("parse set_liquidator_reward_percent: %w", err)
	}
	caller, err := uuid.Parse(j.Caller)
	if err != nil {
		return core.SetLiquidatorRewardPercentOp{}, fmt.Errorf("parse caller: %w", err)
	}
	return core.SetLiquidatorRewardPercentOp{Caller: caller, Percent: j.Percent}, nil
}

type issueTokensJSON struct {
	Caller string `json:"caller"`
	To     string `json:"to"`
	Amount int64  `json:"amount"`
}

func parseIssueTokens(data []byte) (core.IssueTokensOp, error) {
	var j issueTokensJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return core.IssueTokensOp{}, fmt.Errorf("parse issue_tokens: %w", err)
	}
	caller, err := uuid.Parse(j.Caller)
	if err != nil {
		return core.IssueTokensOp{}, fmt.Errorf("parse caller: %w", err)
	}
	to, err := uuid.Parse(j.To)
	if err != nil {
		return core.IssueTokensOp{}, fmt.Errorf("parse to: %w", err)
	}
	return core.IssueTokensOp{Caller: caller, To: to, Amount: j.Amount}, nil
}

type transferJSON struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount int64  `json:"amount"`
}

func parseTransfer(data []byte) (core.TransferOp, error) {
	var j transferJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return core.TransferOp{}, fmt.Errorf("parse transfer: %w", err)
	}
	from, err := uuid.Parse(j.From)
	if err != nil {
		return core.TransferOp{}, fmt.Errorf("parse from: %w", err)
	}
	to, err := uuid.Parse(j.To)
	if err != nil {
		return core.TransferOp{}, fmt.Errorf("parse to: %w", err)
	}
	return core.TransferOp{From: from, To: to, Amount: j.Amount}, nil
}

type approveJSON struct {
	Owner   string `json:"owner"`
	Spender string `json:"spender"`
	Amount  int64  `json:"amount"`
}

func parseApprove(data []byte) (core.ApproveOp, error) {
	var j approveJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return core.ApproveOp{}, fmt.Errorf("parse approve: %w", err)
	}
	owner, err := uuid.Parse(j.Owner)
	if err != nil {
		return core.ApproveOp{}, fmt.Errorf("parse owner: %w", err)
	}
	spender, err := uuid.Parse(j.Spender)
	if err != nil {
		return core.ApproveOp{}, fmt.Errorf("parse spender: %w", err)
	}
	return core.ApproveOp{Owner: owner, Spender: spender, Amount: j.Amount}, nil
}

func parsePauseToken(data []byte) (core.PauseTokenOp, error) {
	caller, err := parseCaller(data, "pause_token")
	if err != nil {
		return core.PauseTokenOp{}, err
	}
	return core.PauseTokenOp{Caller: caller}, nil
}

func parseResumeToken(data []byte) (core.ResumeTokenOp, error) {
	caller, err := parseCaller(data, "resume_token")
	if err != nil {
		return core.ResumeTokenOp{}, err
	}
	return core.ResumeTokenOp{Caller: caller}, nil
}
