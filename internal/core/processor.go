package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"StakeVault/internal/accesskey"
	"StakeVault/internal/observability"
	"StakeVault/internal/rewards"
	"StakeVault/internal/token"
	"StakeVault/internal/vault"

	"github.com/rs/zerolog"
)

// ErrUnknownOp is returned for an op type the processor has no handler for.
var ErrUnknownOp = errors.New("unknown operation type")

// Processor applies operations against the ledger, vault, scheduler, and
// key registry. All ops flow through a single Run goroutine, so component
// methods are never called concurrently from here; the components keep
// their own locks for API readers.
type Processor struct {
	ledger    *token.InMemoryLedger
	vault     *vault.Vault
	scheduler *rewards.Scheduler
	registry  *accesskey.Registry

	metrics *observability.Metrics
	log     zerolog.Logger
}

func NewProcessor(
	ledger *token.InMemoryLedger,
	v *vault.Vault,
	scheduler *rewards.Scheduler,
	registry *accesskey.Registry,
	metrics *observability.Metrics,
) *Processor {
	return &Processor{
		ledger:    ledger,
		vault:     v,
		scheduler: scheduler,
		registry:  registry,
		metrics:   metrics,
		log:       observability.NewLogger("core"),
	}
}

// Apply dispatches a single operation. Rejections come back as errors;
// the caller decides whether to surface or just log them.
func (p *Processor) Apply(op Op) error {
	start := time.Now()
	err := p.apply(op)

	if p.metrics != nil {
		p.metrics.OpDuration.WithLabelValues(op.Name()).Observe(time.Since(start).Seconds())
		if err != nil {
			p.metrics.OpsRejected.WithLabelValues(op.Name(), rejectReason(err)).Inc()
		} else {
			p.metrics.OpsApplied.WithLabelValues(op.Name()).Inc()
		}
	}

	return err
}

func (p *Processor) apply(op Op) error {
	switch o := op.(type) {
	case CreateShareOp:
		_, err := p.vault.CreateShare(o.Holder, o.Amount)
		return err
	case RemoveShareOp:
		_, err := p.vault.RemoveShare(o.Holder, o.Shares)
		return err
	case SetRewardsPoolOp:
		return p.vault.SetRewardsPool(o.Caller, p.scheduler)

	case StartRewardsOp:
		return p.scheduler.Start(o.Caller, o.EndTime)
	case SetEndTimeOp:
		return p.scheduler.SetEndTime(o.Caller, o.EndTime)
	case IssueRewardsOp:
		_, err := p.scheduler.IssueRewards()
		return err

	case SetFeeOp:
		return p.registry.SetFee(o.Caller, o.RatePerSecond)
	case ApproveCollateralOp:
		return p.registry.ApproveCollateral(o.Amount)
	case MintKeyOp:
		_, err := p.registry.Mint(o.Caller, o.Amount)
		return err
	case AddCollateralOp:
		return p.registry.AddCollateral(o.Caller, o.TokenID, o.Amount)
	case BurnKeyOp:
		return p.registry.Burn(o.Caller, o.TokenID)
	case LiquidateKeyOp:
		return p.registry.Liquidate(o.Caller, o.TokenID)
	case SweepOp:
		_, err := p.registry.Sweep()
		return err
	case SetSweepPercentOp:
		return p.registry.SetSweepPercent(o.Caller, o.Percent)
	case SetLiquidatorRewardPercentOp:
		return p.registry.SetLiquidatorRewardPercent(o.Caller, o.Percent)

	case IssueTokensOp:
		return p.ledger.Issue(o.Caller, o.To, o.Amount)
	case TransferOp:
		return p.ledger.Transfer(o.From, o.To, o.Amount)
	case ApproveOp:
		return p.ledger.Approve(o.Owner, o.Spender, o.Amount)
	case PauseTokenOp:
		return p.ledger.Pause(o.Caller)
	case ResumeTokenOp:
		return p.ledger.Resume(o.Caller)

	default:
		return fmt.Errorf("%w: %T", ErrUnknownOp, op)
	}
}

// Run drains the op channel until it closes or the context ends.
// Rejections are logged at warn level and never stop the loop.
func (p *Processor) Run(ctx context.Context, ops <-chan Op) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case op, ok := <-ops:
			if !ok {
				return nil
			}
			if err := p.Apply(op); err != nil {
				p.log.Warn().
					Str("op", op.Name()).
					Err(err).
					Msg("operation rejected")
			}
		}
	}
}

// rejectReason buckets component errors into low-cardinality metric labels.
func rejectReason(err error) string {
	switch {
	case errors.Is(err, token.ErrNotAdmin),
		errors.Is(err, vault.ErrNotAdmin),
		errors.Is(err, rewards.ErrNotAdmin),
		errors.Is(err, accesskey.ErrNotAdmin),
		errors.Is(err, accesskey.ErrNotOwner):
		return "unauthorized"
	case errors.Is(err, token.ErrPaused):
		return "paused"
	case errors.Is(err, token.ErrInsufficientBalance),
		errors.Is(err, token.ErrInsufficientAllowance),
		errors.Is(err, vault.ErrInsufficientShares):
		return "insufficient"
	case errors.Is(err, accesskey.ErrUnknownToken):
		return "not_found"
	case errors.Is(err, accesskey.ErrNotInsolvent):
		return "not_insolvent"
	case errors.Is(err, token.ErrInvalidAmount),
		errors.Is(err, vault.ErrInvalidAmount),
		errors.Is(err, vault.ErrInvalidShares),
		errors.Is(err, vault.ErrAmountTooSmall),
		errors.Is(err, accesskey.ErrInvalidAmount),
		errors.Is(err, accesskey.ErrInvalidRate),
		errors.Is(err, accesskey.ErrInvalidPercent),
		errors.Is(err, rewards.ErrAlreadyStarted),
		errors.Is(err, rewards.ErrNotStarted),
		errors.Is(err, rewards.ErrEndTimeNotFuture):
		return "invalid"
	case errors.Is(err, ErrUnknownOp):
		return "unknown_op"
	default:
		return "error"
	}
}
