package domain

import "time"

type Product struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	Brand              string    `json:"brand,omitempty"`
	Description        string    `json:"description,omitempty"`
	PurchasePriceCents int64     `json:"purchase_price_cents"`
	SellingPriceCents  int64     `json:"selling_price_cents"`
	Serialized         bool      `json:"serialized"`
	Stock              int       `json:"stock"`
	Barcode            string    `json:"barcode,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}

type ProductCreateRequest struct {
	Name               string `json:"name"`
	Brand              string `json:"brand"`
	Description        string `json:"description"`
	PurchasePriceCents int64  `json:"purchase_price_cents"`
	SellingPriceCents  int64  `json:"selling_price_cents"`
	Serialized         bool   `json:"serialized"`
	Barcode            string `json:"barcode"`
}

type ProductUpdateRequest struct {
	Name               *string `json:"name,omitempty"`
	Brand              *string `json:"brand,omitempty"`
	Description        *string `json:"description,omitempty"`
	PurchasePriceCents *int64  `json:"purchase_price_cents,omitempty"`
	SellingPriceCents  *int64  `json:"selling_price_cents,omitempty"`
	Barcode            *string `json:"barcode,omitempty"`
}

// StockUnit tracks one physical unit of a serialized product. A serial
// number is unique across all history; a unit cycles in_stock -> sold and
// back to in_stock via a sales return, never any other way.
type StockUnit struct {
	ID           string    `json:"id"`
	ProductID    string    `json:"product_id"`
	SerialNumber string    `json:"serial_number"`
	Status       string    `json:"status"`
	PurchaseID   string    `json:"purchase_id"`
	SaleID       string    `json:"sale_id,omitempty"`
	ReturnID     string    `json:"return_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

const (
	UnitInStock = "in_stock"
	UnitSold    = "sold"
)

const (
	Deposit    = "deposit"
	Withdrawal = "withdrawal"
)

// LedgerEntry is one immutable cash movement. Seq is the position in the
// append-only chain; BalanceAfterCents is the running balance immediately
// after this entry was applied.
type LedgerEntry struct {
	ID                string    `json:"id"`
	Seq               int64     `json:"seq"`
	Direction         string    `json:"direction"`
	AmountCents       int64     `json:"amount_cents"`
	Description       string    `json:"description"`
	RefID             string    `json:"ref_id,omitempty"`
	BalanceAfterCents int64     `json:"balance_after_cents"`
	CreatedAt         time.Time `json:"created_at"`
}

type Customer struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Phone      string    `json:"phone"`
	Address    string    `json:"address,omitempty"`
	NationalID string    `json:"national_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type CustomerCreateRequest struct {
	Name       string `json:"name"`
	Phone      string `json:"phone"`
	Address    string `json:"address"`
	NationalID string `json:"national_id"`
}

type Supplier struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	ContactPerson string    `json:"contact_person,omitempty"`
	Phone         string    `json:"phone"`
	Address       string    `json:"address,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type SupplierCreateRequest struct {
	Name          string `json:"name"`
	ContactPerson string `json:"contact_person"`
	Phone         string `json:"phone"`
	Address       string `json:"address"`
}

type Purchase struct {
	ID            string    `json:"id"`
	SupplierID    string    `json:"supplier_id,omitempty"`
	ProductID     string    `json:"product_id"`
	Qty           int       `json:"qty"`
	UnitCostCents int64     `json:"unit_cost_cents"`
	SerialNumbers []string  `json:"serial_numbers,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type PurchaseRequest struct {
	SupplierID    string   `json:"supplier_id"`
	ProductID     string   `json:"product_id"`
	Qty           int      `json:"qty"`
	UnitCostCents int64    `json:"unit_cost_cents"`
	SerialNumbers []string `json:"serial_numbers"`
}

type SaleLine struct {
	ProductID      string `json:"product_id"`
	Qty            int    `json:"qty"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	UnitCostCents  int64  `json:"unit_cost_cents"`
	SerialNumber   string `json:"serial_number,omitempty"`
}

const (
	PaymentCash        = "cash"
	PaymentInstallment = "installment"
)

type Sale struct {
	ID          string     `json:"id"`
	CustomerID  string     `json:"customer_id,omitempty"`
	Lines       []SaleLine `json:"lines"`
	TotalCents  int64      `json:"total_cents"`
	ProfitCents int64      `json:"profit_cents"`
	PaymentType string     `json:"payment_type"`
	CreatedAt   time.Time  `json:"created_at"`
}

type SaleLineRequest struct {
	ProductID      string `json:"product_id"`
	Qty            int    `json:"qty"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	SerialNumber   string `json:"serial_number"`
}

// InstallmentTerms is the raw credit input captured with a sale.
type InstallmentTerms struct {
	DownPaymentCents    int64   `json:"down_payment_cents"`
	Months              int     `json:"months"`
	InterestRatePct     float64 `json:"interest_rate_pct"`
	DueDay              int     `json:"due_day"`
	GuarantorName       string  `json:"guarantor_name"`
	GuarantorPhone      string  `json:"guarantor_phone"`
	GuarantorAddress    string  `json:"guarantor_address"`
	GuarantorNationalID string  `json:"guarantor_national_id"`
}

type SaleRequest struct {
	CustomerID  string                 `json:"customer_id"`
	NewCustomer *CustomerCreateRequest `json:"new_customer,omitempty"`
	Lines       []SaleLineRequest      `json:"lines"`
	PaymentType string                 `json:"payment_type"`
	Terms       *InstallmentTerms      `json:"terms,omitempty"`
}

type SaleResult struct {
	Sale Sale             `json:"sale"`
	Plan *InstallmentPlan `json:"plan,omitempty"`
}

type ReturnLine struct {
	ProductID      string `json:"product_id"`
	Qty            int    `json:"qty"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	UnitCostCents  int64  `json:"unit_cost_cents"`
	SerialNumber   string `json:"serial_number,omitempty"`
}

type SalesReturn struct {
	ID          string       `json:"id"`
	SaleID      string       `json:"sale_id"`
	CustomerID  string       `json:"customer_id,omitempty"`
	Lines       []ReturnLine `json:"lines"`
	RefundCents int64        `json:"refund_cents"`
	CreatedAt   time.Time    `json:"created_at"`
}

type ReturnLineRequest struct {
	ProductID    string `json:"product_id"`
	Qty          int    `json:"qty"`
	SerialNumber string `json:"serial_number"`
}

type SalesReturnRequest struct {
	SaleID     string              `json:"sale_id"`
	Lines      []ReturnLineRequest `json:"lines"`
	ManagerPIN string              `json:"manager_pin,omitempty"`
}

const (
	InstallmentPending = "pending"
	InstallmentPaid    = "paid"
)

type Installment struct {
	ID          string     `json:"id"`
	PlanID      string     `json:"plan_id"`
	DueDate     time.Time  `json:"due_date"`
	AmountCents int64      `json:"amount_cents"`
	Status      string     `json:"status"`
	PaidAt      *time.Time `json:"paid_at,omitempty"`
}

type InstallmentPlan struct {
	ID                  string        `json:"id"`
	SaleID              string        `json:"sale_id"`
	CustomerID          string        `json:"customer_id"`
	PrincipalCents      int64         `json:"principal_cents"`
	InterestRatePct     float64       `json:"interest_rate_pct"`
	InterestCents       int64         `json:"interest_cents"`
	TotalCents          int64         `json:"total_cents"`
	DownPaymentCents    int64         `json:"down_payment_cents"`
	RemainingCents      int64         `json:"remaining_cents"`
	Months              int           `json:"months"`
	MonthlyCents        int64         `json:"monthly_cents"`
	StartDate           time.Time     `json:"start_date"`
	DueDay              int           `json:"due_day"`
	GuarantorName       string        `json:"guarantor_name,omitempty"`
	GuarantorPhone      string        `json:"guarantor_phone,omitempty"`
	GuarantorAddress    string        `json:"guarantor_address,omitempty"`
	GuarantorNationalID string        `json:"guarantor_national_id,omitempty"`
	Installments        []Installment `json:"installments"`
}

type SettleInstallmentResult struct {
	Installment Installment     `json:"installment"`
	Plan        InstallmentPlan `json:"plan"`
}

type CashTransferAccount struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	Number            string    `json:"number"`
	Provider          string    `json:"provider"`
	BalanceCents      int64     `json:"balance_cents"`
	DailyLimitCents   int64     `json:"daily_limit_cents"`
	MonthlyLimitCents int64     `json:"monthly_limit_cents"`
	CreatedAt         time.Time `json:"created_at"`
}

type CashTransferAccountCreateRequest struct {
	Name              string `json:"name"`
	Number            string `json:"number"`
	Provider          string `json:"provider"`
	DailyLimitCents   int64  `json:"daily_limit_cents"`
	MonthlyLimitCents int64  `json:"monthly_limit_cents"`
}

type CashTransferTransaction struct {
	ID              string    `json:"id"`
	AccountID       string    `json:"account_id"`
	Direction       string    `json:"direction"`
	AmountCents     int64     `json:"amount_cents"`
	CommissionCents int64     `json:"commission_cents"`
	CustomerPhone   string    `json:"customer_phone,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

type CashTransferTransactionRequest struct {
	AccountID       string `json:"account_id"`
	Direction       string `json:"direction"`
	AmountCents     int64  `json:"amount_cents"`
	CommissionCents int64  `json:"commission_cents"`
	CustomerPhone   string `json:"customer_phone"`
}

type ExpenseCategory struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Expense struct {
	ID          string    `json:"id"`
	CategoryID  string    `json:"category_id,omitempty"`
	Description string    `json:"description"`
	AmountCents int64     `json:"amount_cents"`
	CreatedAt   time.Time `json:"created_at"`
}

type ExpenseRequest struct {
	CategoryID  string `json:"category_id"`
	Description string `json:"description"`
	AmountCents int64  `json:"amount_cents"`
}

type ManualLedgerRequest struct {
	Direction   string `json:"direction"`
	AmountCents int64  `json:"amount_cents"`
	Description string `json:"description"`
}

const (
	JobRepairing = "repairing"
	JobRepaired  = "repaired"
	JobDelivered = "delivered"
)

type MaintenanceJob struct {
	ID            string     `json:"id"`
	CustomerName  string     `json:"customer_name"`
	CustomerPhone string     `json:"customer_phone"`
	DeviceType    string     `json:"device_type"`
	Problem       string     `json:"problem"`
	Status        string     `json:"status"`
	CostCents     int64      `json:"cost_cents"`
	ReceivedAt    time.Time  `json:"received_at"`
	RepairedAt    *time.Time `json:"repaired_at,omitempty"`
	DeliveredAt   *time.Time `json:"delivered_at,omitempty"`
}

type MaintenanceJobRequest struct {
	CustomerName  string `json:"customer_name"`
	CustomerPhone string `json:"customer_phone"`
	DeviceType    string `json:"device_type"`
	Problem       string `json:"problem"`
	CostCents     int64  `json:"cost_cents"`
}

// SaleLineView is a SaleLine joined with catalog data. ProductName degrades
// to a placeholder when the product no longer resolves.
type SaleLineView struct {
	ProductID      string `json:"product_id"`
	ProductName    string `json:"product_name"`
	Qty            int    `json:"qty"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	SerialNumber   string `json:"serial_number,omitempty"`
	LineTotalCents int64  `json:"line_total_cents"`
}

type SaleView struct {
	Sale         Sale           `json:"sale"`
	CustomerName string         `json:"customer_name,omitempty"`
	Lines        []SaleLineView `json:"lines"`
	PlanID       string         `json:"plan_id,omitempty"`
	AssembledAt  time.Time      `json:"assembled_at"`
}

type PlanView struct {
	Plan           InstallmentPlan `json:"plan"`
	CustomerName   string          `json:"customer_name,omitempty"`
	SaleTotalCents int64           `json:"sale_total_cents"`
	PaidCount      int             `json:"paid_count"`
	PendingCount   int             `json:"pending_count"`
	AssembledAt    time.Time       `json:"assembled_at"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type CashierCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type CashierUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}
