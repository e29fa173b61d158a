package types

import "fmt"

// AccountStatus is the lifecycle state of a brokerage sub-account.
type AccountStatus string

const (
	AccountNormal             AccountStatus = "NORMAL"
	AccountSuspended          AccountStatus = "SUSPENDED"
	AccountSellInProgress     AccountStatus = "SELL_IN_PROGRESS"
	AccountSellFailed         AccountStatus = "SELL_FAILED"
	AccountSellDone           AccountStatus = "SELL_DONE"
	AccountExchangeInProgress AccountStatus = "EXCHANGE_IN_PROGRESS"
	AccountExchangeFailed     AccountStatus = "EXCHANGE_FAILED"
	AccountExchangeDone       AccountStatus = "EXCHANGE_DONE"
	AccountCanceled           AccountStatus = "CANCELED"
)

// EventMode describes what kind of daily queue an event drives.
type EventMode string

const (
	EventNewOrder  EventMode = "NEW_ORDER"
	EventBuy       EventMode = "BUY"
	EventSell      EventMode = "SELL"
	EventRebalance EventMode = "REBALANCE"
)

// EventStatus is the lifecycle state of an order-intent event.
type EventStatus string

const (
	EventOnHold     EventStatus = "ON_HOLD"
	EventProcessing EventStatus = "PROCESSING"
	EventCompleted  EventStatus = "COMPLETED"
	EventCanceled   EventStatus = "CANCELED"
)

// QueueMode is the side of a daily order queue. Bid buys toward the target
// basket, Ask sells down to it, Sell liquidates a closing account.
type QueueMode string

const (
	QueueBid  QueueMode = "BID"
	QueueAsk  QueueMode = "ASK"
	QueueSell QueueMode = "SELL"
)

// QueueStatus is the lifecycle state of a daily order queue. OnHold marks a
// queue waiting on its paired leg (the rebalance bid leg waits for the ask
// leg to finish).
type QueueStatus string

const (
	QueuePending    QueueStatus = "PENDING"
	QueueOnHold     QueueStatus = "ON_HOLD"
	QueueSkipped    QueueStatus = "SKIPPED"
	QueueProcessing QueueStatus = "PROCESSING"
	QueueCompleted  QueueStatus = "COMPLETED"
	QueueCanceled   QueueStatus = "CANCELLED"
	QueueFailed     QueueStatus = "FAILED"
)

// OrderLogStatus tracks a single submitted order leg.
type OrderLogStatus string

const (
	OrderLogProcessing OrderLogStatus = "PROCESSING"
	OrderLogCompleted  OrderLogStatus = "COMPLETED"
	OrderLogCanceled   OrderLogStatus = "CANCELLED"
)

// Position is the market side an order leg or TWAP slice operates on.
type Position string

const (
	PositionBuy  Position = "BUY"
	PositionSell Position = "SELL"
)

var accountTransitions = map[AccountStatus][]AccountStatus{
	AccountNormal:             {AccountSuspended, AccountSellInProgress, AccountCanceled},
	AccountSuspended:          {AccountNormal, AccountSellInProgress, AccountCanceled},
	AccountSellInProgress:     {AccountSellFailed, AccountSellDone},
	AccountSellFailed:         {AccountSellInProgress, AccountCanceled},
	AccountSellDone:           {AccountExchangeInProgress, AccountCanceled},
	AccountExchangeInProgress: {AccountExchangeFailed, AccountExchangeDone},
	AccountExchangeFailed:     {AccountExchangeInProgress},
	AccountExchangeDone:       {AccountCanceled},
	AccountCanceled:           nil,
}

var eventTransitions = map[EventStatus][]EventStatus{
	EventOnHold:     {EventProcessing, EventCompleted, EventCanceled},
	EventProcessing: {EventCompleted, EventCanceled},
	EventCompleted:  nil,
	EventCanceled:   nil,
}

var queueTransitions = map[QueueStatus][]QueueStatus{
	QueuePending:    {QueueProcessing, QueueCanceled, QueueFailed},
	QueueOnHold:     {QueuePending, QueueProcessing, QueueCanceled, QueueFailed},
	QueueProcessing: {QueueCompleted, QueueCanceled, QueueFailed},
	QueueSkipped:    nil,
	QueueCompleted:  nil,
	QueueCanceled:   nil,
	QueueFailed:     nil,
}

func contains[T comparable](list []T, v T) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

// CanTransition reports whether an account may move from its current status
// to the target status.
func (s AccountStatus) CanTransition(to AccountStatus) bool {
	return contains(accountTransitions[s], to)
}

// Transition validates and applies a status change on the account.
func (a *Account) Transition(to AccountStatus) error {
	if !a.Status.CanTransition(to) {
		return fmt.Errorf("%w: account %s %s -> %s", ErrInvalidTransition, a.Alias, a.Status, to)
	}
	a.Status = to
	return nil
}

// CanTransition reports whether an event may move to the target status.
func (s EventStatus) CanTransition(to EventStatus) bool {
	return contains(eventTransitions[s], to)
}

// Transition validates and applies a status change on the event.
func (e *Event) Transition(to EventStatus) error {
	if !e.Status.CanTransition(to) {
		return fmt.Errorf("%w: event %s %s -> %s", ErrInvalidTransition, e.EventID, e.Status, to)
	}
	e.Status = to
	return nil
}

// CanTransition reports whether a queue may move to the target status.
func (s QueueStatus) CanTransition(to QueueStatus) bool {
	return contains(queueTransitions[s], to)
}

// Transition validates and applies a status change on the queue.
func (q *Queue) Transition(to QueueStatus) error {
	if !q.Status.CanTransition(to) {
		return fmt.Errorf("%w: queue %s %s -> %s", ErrInvalidTransition, q.QueueID, q.Status, to)
	}
	q.Status = to
	return nil
}

// Terminal reports whether the queue status accepts no further transitions.
func (s QueueStatus) Terminal() bool {
	return len(queueTransitions[s]) == 0
}

// Active reports whether the event still drives daily queue generation.
func (s EventStatus) Active() bool {
	return s == EventOnHold || s == EventProcessing
}

// Position maps a queue side to the market position it trades on.
func (m QueueMode) Position() Position {
	if m == QueueBid {
		return PositionBuy
	}
	return PositionSell
}

// Opposite returns the other market side.
func (p Position) Opposite() Position {
	if p == PositionBuy {
		return PositionSell
	}
	return PositionBuy
}
