package services

import (
	"errors"
	"fmt"
	"log"
	"time"

	"runclub-backend/models"
	"runclub-backend/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// FinanceService owns the club ledger: transactions, categories and the
// balance/summary queries the treasurer dashboard reads.
type FinanceService struct {
	DB *gorm.DB
	R2 *utils.R2Client
}

func NewFinanceService(db *gorm.DB, r2 *utils.R2Client) *FinanceService {
	return &FinanceService{DB: db, R2: r2}
}

// SeedDefaultCategories makes sure the well-known category codes exist.
// Safe to run at every boot.
func (s *FinanceService) SeedDefaultCategories() error {
	defaults := []models.FinancialCategory{
		{Code: models.CategoryMonthlyFee, Name: "Monthly membership fee", FlowType: models.FlowTypeIn},
		{Code: models.CategoryFine, Name: "Challenge penalty", FlowType: models.FlowTypeIn},
		{Code: models.CategoryRewardPayout, Name: "Reward payout", FlowType: models.FlowTypeOut},
		{Code: models.CategoryOpeningBalance, Name: "Opening balance", FlowType: models.FlowTypeIn},
	}
	for _, cat := range defaults {
		var count int64
		if err := s.DB.Model(&models.FinancialCategory{}).Where("code = ?", cat.Code).Count(&count).Error; err != nil {
			return fmt.Errorf("check category %s: %w", cat.Code, err)
		}
		if count > 0 {
			continue
		}
		cat.ID = uuid.NewString()
		if err := s.DB.Create(&cat).Error; err != nil {
			return fmt.Errorf("seed category %s: %w", cat.Code, err)
		}
		log.Printf("💰 [FINANCE] Seeded category %s", cat.Code)
	}
	return nil
}

// CreateTransaction inserts a ledger row for the given category code,
// stamping the fiscal year and period month from the current date.
func (s *FinanceService) CreateTransaction(categoryCode string, amount float64, description string, userID *string) (*models.Transaction, error) {
	var category models.FinancialCategory
	if err := s.DB.Where("code = ?", categoryCode).First(&category).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("unknown financial category %q", categoryCode)
		}
		return nil, fmt.Errorf("load category %s: %w", categoryCode, err)
	}

	now := time.Now()
	txn := models.Transaction{
		ID:              uuid.NewString(),
		CategoryID:      category.ID,
		UserID:          userID,
		Amount:          amount,
		Description:     description,
		PaymentStatus:   models.PaymentStatusPending,
		FiscalYear:      now.Year(),
		PeriodMonth:     int(now.Month()),
		TransactionDate: now,
	}
	if err := s.DB.Create(&txn).Error; err != nil {
		return nil, fmt.Errorf("insert transaction: %w", err)
	}
	return &txn, nil
}

// HasTaggedTransaction reports whether a transaction for the user in the
// given category already carries the tag in its description. Used by the
// penalty job to stay idempotent.
func (s *FinanceService) HasTaggedTransaction(categoryCode, userID, tag string) (bool, error) {
	var count int64
	err := s.DB.Model(&models.Transaction{}).
		Joins("JOIN financial_categories ON financial_categories.id = transactions.category_id").
		Where("financial_categories.code = ?", categoryCode).
		Where("transactions.user_id = ?", userID).
		Where("transactions.description LIKE ?", "%"+tag+"%").
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// BalanceSummary is the treasurer dashboard payload. Opening balance is
// reported separately and excluded from real income.
type BalanceSummary struct {
	Balance        float64 `json:"balance"`
	TotalIncome    float64 `json:"total_income"`
	TotalExpense   float64 `json:"total_expense"`
	PendingIncome  float64 `json:"pending_income"`
	OpeningBalance float64 `json:"opening_balance"`
}

// Summary computes the club balance from paid transactions.
func (s *FinanceService) Summary() (*BalanceSummary, error) {
	type row struct {
		FlowType string
		Code     string
		Status   string
		Total    float64
	}
	var rows []row
	err := s.DB.Model(&models.Transaction{}).
		Select("financial_categories.flow_type AS flow_type, financial_categories.code AS code, transactions.payment_status AS status, COALESCE(SUM(transactions.amount), 0) AS total").
		Joins("JOIN financial_categories ON financial_categories.id = transactions.category_id").
		Where("transactions.payment_status <> ?", models.PaymentStatusCancelled).
		Group("financial_categories.flow_type, financial_categories.code, transactions.payment_status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("aggregate transactions: %w", err)
	}

	summary := &BalanceSummary{}
	for _, r := range rows {
		switch {
		case r.Code == models.CategoryOpeningBalance && r.Status == models.PaymentStatusPaid:
			summary.OpeningBalance += r.Total
			summary.Balance += r.Total
		case r.FlowType == models.FlowTypeIn && r.Status == models.PaymentStatusPaid:
			summary.TotalIncome += r.Total
			summary.Balance += r.Total
		case r.FlowType == models.FlowTypeIn && r.Status == models.PaymentStatusPending:
			summary.PendingIncome += r.Total
		case r.FlowType == models.FlowTypeOut && r.Status == models.PaymentStatusPaid:
			summary.TotalExpense += r.Total
			summary.Balance -= r.Total
		}
	}
	return summary, nil
}

// --- Fiber handlers ---

// GetSummary returns the balance summary.
func (s *FinanceService) GetSummary(c *fiber.Ctx) error {
	summary, err := s.Summary()
	if err != nil {
		log.Printf("DB Error computing finance summary: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to compute summary"})
	}
	return c.JSON(summary)
}

// ListTransactions lists ledger rows, filterable by fiscal year, month,
// category code, payment status and member.
func (s *FinanceService) ListTransactions(c *fiber.Ctx) error {
	query := s.DB.Model(&models.Transaction{}).Preload("Category")

	if year := c.QueryInt("fiscal_year"); year > 0 {
		query = query.Where("fiscal_year = ?", year)
	}
	if month := c.QueryInt("month"); month > 0 {
		query = query.Where("period_month = ?", month)
	}
	if status := c.Query("status"); status != "" {
		query = query.Where("payment_status = ?", status)
	}
	if userID := c.Query("user_id"); userID != "" {
		query = query.Where("user_id = ?", userID)
	}
	if code := c.Query("category"); code != "" {
		query = query.Joins("JOIN financial_categories ON financial_categories.id = transactions.category_id").
			Where("financial_categories.code = ?", code)
	}

	var txns []models.Transaction
	if err := query.Order("transaction_date DESC").Find(&txns).Error; err != nil {
		log.Printf("DB Error fetching transactions: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch transactions"})
	}
	return c.JSON(txns)
}

// CreateTransactionHandler creates a manual ledger entry (Admin only).
func (s *FinanceService) CreateTransactionHandler(c *fiber.Ctx) error {
	var req struct {
		CategoryCode string  `json:"category_code"`
		Amount       float64 `json:"amount"`
		Description  string  `json:"description"`
		UserID       *string `json:"user_id"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.CategoryCode == "" || req.Amount <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "category_code and a positive amount are required"})
	}

	txn, err := s.CreateTransaction(req.CategoryCode, req.Amount, req.Description, req.UserID)
	if err != nil {
		log.Printf("DB Error creating transaction: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create transaction"})
	}
	return c.Status(fiber.StatusCreated).JSON(txn)
}

// UpdatePaymentStatus transitions a transaction between pending, paid and
// cancelled. Marking paid stamps processed_at.
func (s *FinanceService) UpdatePaymentStatus(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, err := uuid.Parse(id); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid transaction ID"})
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	switch req.Status {
	case models.PaymentStatusPending, models.PaymentStatusPaid, models.PaymentStatusCancelled:
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid payment status"})
	}

	var txn models.Transaction
	if err := s.DB.First(&txn, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Transaction not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}

	updates := map[string]interface{}{"payment_status": req.Status}
	if req.Status == models.PaymentStatusPaid {
		now := time.Now()
		updates["processed_at"] = &now
	}
	if err := s.DB.Model(&txn).Updates(updates).Error; err != nil {
		log.Printf("DB Error updating payment status: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to update payment status"})
	}
	return c.JSON(fiber.Map{"message": "Payment status updated", "transaction": txn})
}

// UploadReceipt attaches a receipt image to a transaction. The file goes to
// object storage; only the public URL is stored on the row.
func (s *FinanceService) UploadReceipt(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, err := uuid.Parse(id); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid transaction ID"})
	}

	var txn models.Transaction
	if err := s.DB.First(&txn, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Transaction not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}

	fileHeader, err := c.FormFile("receipt")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "receipt file is required"})
	}

	url, err := s.R2.UploadFormFile(c.Context(), fileHeader, "receipts/"+txn.ID)
	if err != nil {
		log.Printf("❌ [FINANCE] Receipt upload failed for transaction %s: %v", txn.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to upload receipt"})
	}

	if err := s.DB.Model(&txn).Update("receipt_url", url).Error; err != nil {
		log.Printf("DB Error saving receipt URL: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to save receipt URL"})
	}
	return c.JSON(fiber.Map{"message": "Receipt uploaded", "receipt_url": url})
}

// ListCategories lists the financial categories.
func (s *FinanceService) ListCategories(c *fiber.Ctx) error {
	var cats []models.FinancialCategory
	if err := s.DB.Order("code").Find(&cats).Error; err != nil {
		log.Printf("DB Error fetching categories: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch categories"})
	}
	return c.JSON(cats)
}

// CreateCategory adds a custom category (Admin only).
func (s *FinanceService) CreateCategory(c *fiber.Ctx) error {
	var req struct {
		Code     string `json:"code"`
		Name     string `json:"name"`
		FlowType string `json:"flow_type"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.Code == "" || req.Name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "code and name are required"})
	}
	if req.FlowType != models.FlowTypeIn && req.FlowType != models.FlowTypeOut {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "flow_type must be 'in' or 'out'"})
	}

	cat := models.FinancialCategory{
		ID:       uuid.NewString(),
		Code:     req.Code,
		Name:     req.Name,
		FlowType: req.FlowType,
	}
	if err := s.DB.Create(&cat).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Category code already exists"})
		}
		log.Printf("DB Error creating category: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create category"})
	}
	return c.Status(fiber.StatusCreated).JSON(cat)
}

// CategoryReport sums paid amounts per category for a fiscal year.
func (s *FinanceService) CategoryReport(c *fiber.Ctx) error {
	year := c.QueryInt("fiscal_year")
	if year <= 0 {
		year = time.Now().Year()
	}

	type reportRow struct {
		Code     string  `json:"code"`
		Name     string  `json:"name"`
		FlowType string  `json:"flow_type"`
		Total    float64 `json:"total"`
		Count    int64   `json:"count"`
	}
	var rows []reportRow
	err := s.DB.Model(&models.Transaction{}).
		Select("financial_categories.code AS code, financial_categories.name AS name, financial_categories.flow_type AS flow_type, COALESCE(SUM(transactions.amount), 0) AS total, COUNT(transactions.id) AS count").
		Joins("JOIN financial_categories ON financial_categories.id = transactions.category_id").
		Where("transactions.fiscal_year = ? AND transactions.payment_status = ?", year, models.PaymentStatusPaid).
		Group("financial_categories.code, financial_categories.name, financial_categories.flow_type").
		Order("financial_categories.code").
		Scan(&rows).Error
	if err != nil {
		log.Printf("DB Error building category report: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to build report"})
	}
	return c.JSON(fiber.Map{"fiscal_year": year, "categories": rows})
}
