package store

import (
	"context"
	"errors"
	"time"

	"dokkan/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrDuplicateSerial   = errors.New("duplicate serial number")
	ErrUnitNotAvailable  = errors.New("stock unit not available")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrAlreadyPaid       = errors.New("installment already paid")
)

// Repository is the persistence boundary. Methods that touch the ledger,
// stock and credit plans are composite: each one runs as a single atomic
// unit of work, so callers never observe a partially applied operation.
type Repository interface {
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProductByID(ctx context.Context, id string) (*domain.Product, error)
	ListProducts(ctx context.Context) ([]domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)

	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	GetCustomerByID(ctx context.Context, id string) (*domain.Customer, error)
	ListCustomers(ctx context.Context) ([]domain.Customer, error)

	CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error)
	ListSuppliers(ctx context.Context) ([]domain.Supplier, error)

	// CreatePurchase increases stock, mints stock units for serialized
	// products and appends the ledger withdrawal in one unit of work. A nil
	// ledger records a zero-cost receipt without touching the drawer.
	CreatePurchase(ctx context.Context, purchase domain.Purchase, units []domain.StockUnit, ledger *domain.LedgerEntry) (*domain.Purchase, error)

	// CreateSale reserves serialized units, decrements stock, records the
	// sale and either a ledger deposit (cash, or an installment down
	// payment) or the credit plan with its schedule. A non-nil newCustomer
	// is created inside the same unit of work, so a failed sale leaves no
	// customer behind. Plan and installment identifiers are assigned on the
	// supplied plan in place.
	CreateSale(ctx context.Context, sale domain.Sale, newCustomer *domain.Customer, plan *domain.InstallmentPlan, ledger *domain.LedgerEntry) (*domain.Sale, error)
	GetSaleByID(ctx context.Context, id string) (*domain.Sale, error)
	ListSales(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.Sale, error)

	CreateSalesReturn(ctx context.Context, ret domain.SalesReturn, ledger domain.LedgerEntry) (*domain.SalesReturn, error)
	GetSalesReturnsBySale(ctx context.Context, saleID string) ([]domain.SalesReturn, error)

	GetPlanByID(ctx context.Context, id string) (*domain.InstallmentPlan, error)
	ListPlans(ctx context.Context) ([]domain.InstallmentPlan, error)
	// SettleInstallment marks one pending installment paid, shrinks the
	// plan remainder and appends the ledger deposit atomically.
	SettleInstallment(ctx context.Context, planID string, installmentID string, paidAt time.Time, ledger domain.LedgerEntry) (*domain.SettleInstallmentResult, error)

	CreateCashTransferAccount(ctx context.Context, account domain.CashTransferAccount) (*domain.CashTransferAccount, error)
	ListCashTransferAccounts(ctx context.Context) ([]domain.CashTransferAccount, error)
	// CreateCashTransferTransaction moves the agency float and, when a
	// ledger entry is supplied, mirrors the cash-drawer side of the move.
	CreateCashTransferTransaction(ctx context.Context, tx domain.CashTransferTransaction, ledger []domain.LedgerEntry) (*domain.CashTransferTransaction, error)
	ListCashTransferTransactions(ctx context.Context, accountID string, limit int) ([]domain.CashTransferTransaction, error)

	CreateExpenseCategory(ctx context.Context, category domain.ExpenseCategory) (*domain.ExpenseCategory, error)
	ListExpenseCategories(ctx context.Context) ([]domain.ExpenseCategory, error)
	CreateExpense(ctx context.Context, expense domain.Expense, ledger domain.LedgerEntry) (*domain.Expense, error)
	ListExpenses(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.Expense, error)

	AppendLedgerEntry(ctx context.Context, entry domain.LedgerEntry) (*domain.LedgerEntry, error)
	ListLedgerEntries(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.LedgerEntry, error)
	LatestBalance(ctx context.Context) (int64, error)

	CreateMaintenanceJob(ctx context.Context, job domain.MaintenanceJob) (*domain.MaintenanceJob, error)
	ListMaintenanceJobs(ctx context.Context) ([]domain.MaintenanceJob, error)
	// UpdateMaintenanceStatus advances a repair job; delivery of a repaired
	// job appends the supplied ledger deposit for the collected fee.
	UpdateMaintenanceStatus(ctx context.Context, jobID string, status string, at time.Time, ledger *domain.LedgerEntry) (*domain.MaintenanceJob, error)

	FindStockUnitBySerial(ctx context.Context, serial string) (*domain.StockUnit, error)
	ListStockUnits(ctx context.Context, productID string, status string) ([]domain.StockUnit, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
