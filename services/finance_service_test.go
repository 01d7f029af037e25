package services

import (
	"testing"

	"runclub-backend/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeedDefaultCategoriesIdempotent(t *testing.T) {
	db := setupTestDB(t)
	svc := NewFinanceService(db, nil)

	require.NoError(t, svc.SeedDefaultCategories())
	require.NoError(t, svc.SeedDefaultCategories())

	var count int64
	require.NoError(t, db.Model(&models.FinancialCategory{}).Count(&count).Error)
	assert.Equal(t, int64(4), count)
}

func TestCreateTransactionStampsPeriod(t *testing.T) {
	db := setupTestDB(t)
	svc := NewFinanceService(db, nil)
	require.NoError(t, svc.SeedDefaultCategories())

	txn, err := svc.CreateTransaction(models.CategoryMonthlyFee, 25, "August fee", nil)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, txn.PaymentStatus)
	assert.NotZero(t, txn.FiscalYear)
	assert.InDelta(t, 6, txn.PeriodMonth, 6) // 1..12
	assert.Equal(t, 25.0, txn.Amount)
}

func TestCreateTransactionUnknownCategory(t *testing.T) {
	db := setupTestDB(t)
	svc := NewFinanceService(db, nil)
	require.NoError(t, svc.SeedDefaultCategories())

	_, err := svc.CreateTransaction("NO_SUCH_CODE", 10, "", nil)
	assert.Error(t, err)
}

func TestSummaryExcludesOpeningBalanceFromIncome(t *testing.T) {
	db := setupTestDB(t)
	svc := NewFinanceService(db, nil)
	require.NoError(t, svc.SeedDefaultCategories())

	markPaid := func(code string, amount float64) {
		txn, err := svc.CreateTransaction(code, amount, "", nil)
		require.NoError(t, err)
		require.NoError(t, db.Model(&models.Transaction{}).
			Where("id = ?", txn.ID).
			Update("payment_status", models.PaymentStatusPaid).Error)
	}

	markPaid(models.CategoryOpeningBalance, 100)
	markPaid(models.CategoryMonthlyFee, 50)
	markPaid(models.CategoryRewardPayout, 30)

	// Pending income is reported separately and does not move the balance.
	_, err := svc.CreateTransaction(models.CategoryFine, 20, "", nil)
	require.NoError(t, err)

	// Cancelled rows are ignored entirely.
	cancelled, err := svc.CreateTransaction(models.CategoryMonthlyFee, 999, "", nil)
	require.NoError(t, err)
	require.NoError(t, db.Model(&models.Transaction{}).
		Where("id = ?", cancelled.ID).
		Update("payment_status", models.PaymentStatusCancelled).Error)

	summary, err := svc.Summary()
	require.NoError(t, err)
	assert.Equal(t, 100.0, summary.OpeningBalance)
	assert.Equal(t, 50.0, summary.TotalIncome)
	assert.Equal(t, 30.0, summary.TotalExpense)
	assert.Equal(t, 20.0, summary.PendingIncome)
	assert.Equal(t, 120.0, summary.Balance)
}

func TestHasTaggedTransaction(t *testing.T) {
	db := setupTestDB(t)
	svc := NewFinanceService(db, nil)
	require.NoError(t, svc.SeedDefaultCategories())

	userID := "member-1"
	_, err := svc.CreateTransaction(models.CategoryFine, 50, "Monthly penalty [challenge:abc]", &userID)
	require.NoError(t, err)

	found, err := svc.HasTaggedTransaction(models.CategoryFine, userID, "[challenge:abc]")
	require.NoError(t, err)
	assert.True(t, found)

	found, err = svc.HasTaggedTransaction(models.CategoryFine, userID, "[challenge:other]")
	require.NoError(t, err)
	assert.False(t, found)

	found, err = svc.HasTaggedTransaction(models.CategoryFine, "member-2", "[challenge:abc]")
	require.NoError(t, err)
	assert.False(t, found)
}
