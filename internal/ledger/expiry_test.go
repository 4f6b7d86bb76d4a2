package ledger

import (
	"testing"
	"time"

	"pointsledger/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func days(n int) time.Time {
	return epoch.AddDate(0, 0, n)
}

func accountWithLots(lots ...int) *models.Account {
	account := models.NewAccount("u1", "bronze", epoch)
	var tracker ExpiryTracker
	for i, amount := range lots {
		// lot i expires on day 10*(i+1)
		tracker.AddLot(account, amount, epoch, days(10*(i+1)))
		account.TotalPoints += amount
		account.AvailablePoints += amount
	}
	return account
}

func TestAddLotKeepsExpiryOrder(t *testing.T) {
	account := models.NewAccount("u1", "bronze", epoch)
	var tracker ExpiryTracker
	tracker.AddLot(account, 30, epoch, days(30))
	tracker.AddLot(account, 10, epoch, days(10))
	tracker.AddLot(account, 20, epoch, days(20))

	require.Len(t, account.ExpiringLots, 3)
	assert.Equal(t, []int{10, 20, 30}, []int{
		account.ExpiringLots[0].Amount,
		account.ExpiringLots[1].Amount,
		account.ExpiringLots[2].Amount,
	})
}

func TestExpiringWithin(t *testing.T) {
	account := accountWithLots(100, 200, 300)
	var tracker ExpiryTracker

	assert.Equal(t, 0, tracker.ExpiringWithin(account, 5, epoch))
	assert.Equal(t, 100, tracker.ExpiringWithin(account, 10, epoch))
	assert.Equal(t, 300, tracker.ExpiringWithin(account, 25, epoch))
	assert.Equal(t, 600, tracker.ExpiringWithin(account, 365, epoch))
}

func TestSweepExpired(t *testing.T) {
	account := accountWithLots(100, 200, 300)
	var tracker ExpiryTracker

	assert.Equal(t, 0, tracker.SweepExpired(account, days(5)))
	assert.Equal(t, 300, tracker.SweepExpired(account, days(20)))

	assert.Equal(t, 300, account.AvailablePoints)
	assert.Equal(t, 300, account.ExpiredPoints)
	assert.Equal(t, 600, account.TotalPoints)
	assert.Len(t, account.ExpiringLots, 1)
	assert.True(t, account.Balanced())

	// sweeping again is a no-op
	assert.Equal(t, 0, tracker.SweepExpired(account, days(20)))
}

func TestConsumeSpendsEarliestLotsFirst(t *testing.T) {
	account := accountWithLots(100, 200, 300)
	var tracker ExpiryTracker

	account.AvailablePoints -= 150
	account.UsedPoints += 150
	tracker.Consume(account, 150)

	require.Len(t, account.ExpiringLots, 2)
	assert.Equal(t, 150, account.ExpiringLots[0].Amount)
	assert.Equal(t, days(20), account.ExpiringLots[0].ExpiryDate)

	// the consumed lot no longer expires
	assert.Equal(t, 150, tracker.SweepExpired(account, days(20)))
	assert.Equal(t, 300, account.AvailablePoints)
	assert.True(t, account.Balanced())
}

func TestSweepNeverGoesNegative(t *testing.T) {
	account := accountWithLots(100)
	// drift between lots and balance, e.g. an administrative correction
	account.AvailablePoints = 40
	account.UsedPoints = 60

	var tracker ExpiryTracker
	assert.Equal(t, 40, tracker.SweepExpired(account, days(30)))
	assert.Equal(t, 0, account.AvailablePoints)
	assert.Empty(t, account.ExpiringLots)
}
