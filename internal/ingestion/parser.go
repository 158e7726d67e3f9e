package ingestion

import (
	"encoding/json"
	"fmt"

	"BasktSync/internal/event"
)

// ParsePayload converts a raw JSON payload into the typed payload struct for
// the given event name. Unknown names are an error: the relay's catalog and
// the engine's must stay in lockstep.
func ParsePayload(name string, data []byte) (any, error) {
	switch name {
	case event.OrderCreated:
		return parseInto[event.OrderCreatedPayload](name, data, validateOrderCreated)
	case event.OrderCancelled:
		return parseInto[event.OrderCancelledPayload](name, data, nil)
	case event.PositionOpened:
		return parseInto[event.PositionOpenedPayload](name, data, nil)
	case event.PositionClosed:
		return parseInto[event.PositionClosedPayload](name, data, validatePositionClosed)
	case event.PositionLiquidated:
		return parseInto[event.PositionLiquidatedPayload](name, data, nil)
	case event.CollateralAdded:
		return parseInto[event.CollateralAddedPayload](name, data, nil)
	case event.BasktCreated:
		return parseInto[event.BasktCreatedPayload](name, data, nil)
	case event.BasktActivated:
		return parseInto[event.BasktActivatedPayload](name, data, nil)
	case event.BasktConfigUpdated:
		return parseInto[event.BasktConfigUpdatedPayload](name, data, nil)
	case event.BasktRebalanced:
		return parseInto[event.BasktRebalancedPayload](name, data, nil)
	case event.BasktClosed:
		return parseInto[event.BasktClosedPayload](name, data, nil)
	case event.BasktDecommissioning:
		return parseInto[event.BasktDecommissioningPayload](name, data, nil)
	case event.RebalanceRequest:
		return parseInto[event.RebalanceRequestPayload](name, data, nil)
	case event.LiquidityAdded:
		return parseInto[event.LiquidityAddedPayload](name, data, nil)
	case event.WithdrawalQueued:
		return parseInto[event.WithdrawalQueuedPayload](name, data, nil)
	case event.WithdrawQueueProcessed:
		return parseInto[event.WithdrawQueueProcessedPayload](name, data, nil)
	case event.ProtocolStateUpdated:
		return parseInto[event.ProtocolStateUpdatedPayload](name, data, nil)
	default:
		return nil, fmt.Errorf("ingestion: unknown event name %q", name)
	}
}

func parseInto[T any](name string, data []byte, validate func(*T) error) (*T, error) {
	var p T
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("ingestion: parse %s: %w", name, err)
	}
	if validate != nil {
		if err := validate(&p); err != nil {
			return nil, fmt.Errorf("ingestion: invalid %s: %w", name, err)
		}
	}
	return &p, nil
}

func validateOrderCreated(p *event.OrderCreatedPayload) error {
	if p.OrderPDA == "" {
		return fmt.Errorf("missing order_pda")
	}
	switch p.Action {
	case event.ActionOpen:
		if p.OpenParams == nil {
			return fmt.Errorf("open order without open_params")
		}
		if p.OpenParams.Size <= 0 || p.OpenParams.Collateral <= 0 {
			return fmt.Errorf("non-positive size or collateral")
		}
	case event.ActionClose:
		if p.CloseParams == nil {
			return fmt.Errorf("close order without close_params")
		}
		if p.CloseParams.SizeToClose <= 0 {
			return fmt.Errorf("non-positive size_to_close")
		}
	default:
		return fmt.Errorf("unknown action %q", p.Action)
	}
	return nil
}

func validatePositionClosed(p *event.PositionClosedPayload) error {
	if p.PositionPDA == "" {
		return fmt.Errorf("missing position_pda")
	}
	if p.CloseAmount <= 0 {
		return fmt.Errorf("non-positive close_amount")
	}
	return nil
}
