package repository

import (
	"context"

	"telegram-sms-market/internal/domain/model"
)

// ActivationRepository owns activation records. The compare-and-set methods
// below are the only way an activation's delivery or settlement state
// changes, which is what makes the poll loop / watchdog / user-cancel race
// safe.
type ActivationRepository interface {
	// Create inserts a new activation; domain.ErrAlreadyExists when the
	// provider id was already recorded.
	Create(ctx context.Context, tx Tx, a *model.Activation) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Activation, error)
	// ListByAccount returns the account's activations oldest first.
	ListByAccount(ctx context.Context, tx Tx, accountID int64) ([]*model.Activation, error)
	// ListOpen returns unsettled activations, used to re-arm lifecycle
	// workers after a restart.
	ListOpen(ctx context.Context, tx Tx, limit int) ([]*model.Activation, error)
	// AppendCode appends a delivered code unless it is already recorded or
	// the activation is settled. Returns whether the code was added.
	AppendCode(ctx context.Context, tx Tx, id, code string) (bool, error)
	// MarkCancelRequested flips the user-cancel flag iff no code has been
	// delivered, no cancel was requested before, and the activation is not
	// settled. Returns whether this call won the flip.
	MarkCancelRequested(ctx context.Context, tx Tx, id string) (bool, error)
	// MarkSettled flips settled false->true recording the outcome. Exactly
	// one caller ever observes true; everyone else gets false.
	MarkSettled(ctx context.Context, tx Tx, id string, outcome model.Outcome) (bool, error)
}
