package payout

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"milestonetrust/token"
)

// Transfer is a scheduled value movement to an account, denominated in
// indivisible minor units.
type Transfer struct {
	Account string
	Amount  token.Amount
}

// Treasury schedules value transfers. Transfers are fire-and-forget: they are
// queued after the ledger state is committed and the caller never observes
// their completion synchronously.
type Treasury interface {
	Transfer(ctx context.Context, account string, amount token.Amount)
}

// Sender performs the actual value movement against the payment rail.
type Sender interface {
	Send(ctx context.Context, t Transfer) error
}

// Dispatcher is an asynchronous Treasury. Failed sends are journaled instead
// of surfaced to the initiating operation, so an operator can re-credit them;
// the ledger has already committed the debit by the time a send runs.
type Dispatcher struct {
	sender Sender
	group  errgroup.Group

	mu     sync.Mutex
	failed []Transfer
}

// NewDispatcher builds a Dispatcher over the given rail.
func NewDispatcher(sender Sender) *Dispatcher {
	d := &Dispatcher{sender: sender}
	d.group.SetLimit(8)
	return d
}

func (d *Dispatcher) Transfer(ctx context.Context, account string, amount token.Amount) {
	if amount.IsZero() {
		return
	}
	t := Transfer{Account: account, Amount: amount}
	d.group.Go(func() error {
		if err := d.sender.Send(ctx, t); err != nil {
			d.mu.Lock()
			d.failed = append(d.failed, t)
			d.mu.Unlock()
		}
		return nil
	})
}

// Drain waits for all scheduled transfers and returns the ones that failed,
// for compensating re-credit.
func (d *Dispatcher) Drain() []Transfer {
	_ = d.group.Wait()
	d.mu.Lock()
	defer d.mu.Unlock()
	out := d.failed
	d.failed = nil
	return out
}

// Recorder is a synchronous Treasury double recording every transfer in order.
type Recorder struct {
	mu        sync.Mutex
	transfers []Transfer
}

func (r *Recorder) Transfer(_ context.Context, account string, amount token.Amount) {
	if amount.IsZero() {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transfers = append(r.transfers, Transfer{Account: account, Amount: amount})
}

// Transfers returns a snapshot of recorded transfers.
func (r *Recorder) Transfers() []Transfer {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Transfer, len(r.transfers))
	copy(out, r.transfers)
	return out
}

// Total sums recorded transfers for one account.
func (r *Recorder) Total(account string) token.Amount {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := token.Zero()
	for _, t := range r.transfers {
		if t.Account == account {
			total = total.Add(t.Amount)
		}
	}
	return total
}
