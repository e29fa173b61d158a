package types

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountTransitions(t *testing.T) {
	t.Run("NormalLifecycle", func(t *testing.T) {
		account := &Account{Alias: "ACC_1", Status: AccountNormal}

		require.NoError(t, account.Transition(AccountSellInProgress))
		require.NoError(t, account.Transition(AccountSellDone))
		require.NoError(t, account.Transition(AccountExchangeInProgress))
		require.NoError(t, account.Transition(AccountExchangeDone))
		require.NoError(t, account.Transition(AccountCanceled))
	})

	t.Run("SellFailureAndRecovery", func(t *testing.T) {
		account := &Account{Alias: "ACC_2", Status: AccountSellInProgress}

		require.NoError(t, account.Transition(AccountSellFailed))
		require.NoError(t, account.Transition(AccountSellInProgress))
		require.NoError(t, account.Transition(AccountSellDone))
	})

	t.Run("SuspensionIsRecoverable", func(t *testing.T) {
		account := &Account{Alias: "ACC_3", Status: AccountNormal}

		require.NoError(t, account.Transition(AccountSuspended))
		require.NoError(t, account.Transition(AccountNormal))
	})

	t.Run("CanceledIsTerminal", func(t *testing.T) {
		account := &Account{Alias: "ACC_4", Status: AccountCanceled}

		for _, to := range []AccountStatus{
			AccountNormal, AccountSuspended, AccountSellInProgress,
		} {
			err := account.Transition(to)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidTransition))
			assert.Equal(t, AccountCanceled, account.Status)
		}
	})

	t.Run("ClosingAccountCannotResumeNormal", func(t *testing.T) {
		account := &Account{Alias: "ACC_5", Status: AccountSellInProgress}

		err := account.Transition(AccountNormal)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidTransition))
	})
}

func TestEventTransitions(t *testing.T) {
	t.Run("OnHoldLifecycle", func(t *testing.T) {
		event := &Event{EventID: "EVT_1", Status: EventOnHold}

		require.NoError(t, event.Transition(EventProcessing))
		require.NoError(t, event.Transition(EventCompleted))
	})

	t.Run("CompletedIsTerminal", func(t *testing.T) {
		event := &Event{EventID: "EVT_2", Status: EventCompleted}

		err := event.Transition(EventProcessing)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidTransition))
	})

	t.Run("Active", func(t *testing.T) {
		assert.True(t, EventOnHold.Active())
		assert.True(t, EventProcessing.Active())
		assert.False(t, EventCompleted.Active())
		assert.False(t, EventCanceled.Active())
	})
}

func TestQueueTransitions(t *testing.T) {
	t.Run("PendingLifecycle", func(t *testing.T) {
		queue := &Queue{QueueID: "QUE_1", Status: QueuePending}

		require.NoError(t, queue.Transition(QueueProcessing))
		require.NoError(t, queue.Transition(QueueCompleted))
	})

	t.Run("HeldLegReleases", func(t *testing.T) {
		queue := &Queue{QueueID: "QUE_2", Status: QueueOnHold}

		require.NoError(t, queue.Transition(QueuePending))
	})

	t.Run("PendingCannotComplete", func(t *testing.T) {
		queue := &Queue{QueueID: "QUE_3", Status: QueuePending}

		err := queue.Transition(QueueCompleted)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidTransition))
	})

	t.Run("TerminalStatuses", func(t *testing.T) {
		for _, status := range []QueueStatus{
			QueueSkipped, QueueCompleted, QueueCanceled, QueueFailed,
		} {
			assert.True(t, status.Terminal(), string(status))
		}
		for _, status := range []QueueStatus{
			QueuePending, QueueOnHold, QueueProcessing,
		} {
			assert.False(t, status.Terminal(), string(status))
		}
	})
}

func TestQueueModePosition(t *testing.T) {
	assert.Equal(t, PositionBuy, QueueBid.Position())
	assert.Equal(t, PositionSell, QueueAsk.Position())
	assert.Equal(t, PositionSell, QueueSell.Position())

	assert.Equal(t, PositionSell, PositionBuy.Opposite())
	assert.Equal(t, PositionBuy, PositionSell.Opposite())
}
