package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"dokkan/backend/internal/domain"
	"dokkan/backend/internal/store"
	"dokkan/backend/internal/xid"
)

// Store keeps everything behind one mutex, so every composite method is
// trivially atomic: validate first, mutate only once nothing can fail.
type Store struct {
	mu             sync.RWMutex
	allowNegative  bool
	products       map[string]domain.Product
	customers      map[string]domain.Customer
	suppliers      map[string]domain.Supplier
	purchases      map[string]domain.Purchase
	sales          map[string]*domain.Sale
	returnsByID    map[string]*domain.SalesReturn
	plans          map[string]*domain.InstallmentPlan
	unitsBySerial  map[string]*domain.StockUnit
	ledger         []domain.LedgerEntry
	accounts       map[string]domain.CashTransferAccount
	cashTransfers  map[string]domain.CashTransferTransaction
	expenseCats    map[string]domain.ExpenseCategory
	expenses       map[string]domain.Expense
	maintenanceJob map[string]domain.MaintenanceJob
	auditLogs      []domain.AuditLog
	users          map[string]domain.UserAccount
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD
// environment variables, with hardcoded dev defaults and a warning when
// unset. The backend uses PostgreSQL when DATABASE_URL is set, so these
// never reach production.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"cashier", cashierPwd, "cashier"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func New(allowNegative bool) *Store {
	return &Store{
		allowNegative:  allowNegative,
		products:       make(map[string]domain.Product),
		customers:      make(map[string]domain.Customer),
		suppliers:      make(map[string]domain.Supplier),
		purchases:      make(map[string]domain.Purchase),
		sales:          make(map[string]*domain.Sale),
		returnsByID:    make(map[string]*domain.SalesReturn),
		plans:          make(map[string]*domain.InstallmentPlan),
		unitsBySerial:  make(map[string]*domain.StockUnit),
		ledger:         make([]domain.LedgerEntry, 0, 128),
		accounts:       make(map[string]domain.CashTransferAccount),
		cashTransfers:  make(map[string]domain.CashTransferTransaction),
		expenseCats:    make(map[string]domain.ExpenseCategory),
		expenses:       make(map[string]domain.Expense),
		maintenanceJob: make(map[string]domain.MaintenanceJob),
		auditLogs:      make([]domain.AuditLog, 0, 128),
		users:          seedUsers(),
	}
}

func NewSeeded() *Store {
	s := New(true)
	now := time.Now().UTC()

	products := []domain.Product{
		{ID: "prod-phone-a54", Name: "Galaxy A54", Brand: "Samsung", PurchasePriceCents: 2800000, SellingPriceCents: 3250000, Serialized: true, Barcode: "8806094858884", CreatedAt: now},
		{ID: "prod-phone-r13", Name: "Redmi Note 13", Brand: "Xiaomi", PurchasePriceCents: 1900000, SellingPriceCents: 2200000, Serialized: true, Barcode: "6941812740347", CreatedAt: now},
		{ID: "prod-charger-25w", Name: "Fast Charger 25W", Brand: "Samsung", PurchasePriceCents: 45000, SellingPriceCents: 75000, Serialized: false, Stock: 40, CreatedAt: now},
		{ID: "prod-case-clear", Name: "Clear Case", Brand: "", PurchasePriceCents: 12000, SellingPriceCents: 30000, Serialized: false, Stock: 60, CreatedAt: now},
		{ID: "prod-screen-guard", Name: "Tempered Glass", Brand: "", PurchasePriceCents: 8000, SellingPriceCents: 25000, Serialized: false, Stock: 80, CreatedAt: now},
	}
	for _, p := range products {
		s.products[p.ID] = p
	}

	serials := map[string][]string{
		"prod-phone-a54": {"SN-A54-0001", "SN-A54-0002", "SN-A54-0003"},
		"prod-phone-r13": {"SN-R13-0001", "SN-R13-0002"},
	}
	for productID, list := range serials {
		for _, serial := range list {
			unit := &domain.StockUnit{
				ID:           xid.New("unit"),
				ProductID:    productID,
				SerialNumber: serial,
				Status:       domain.UnitInStock,
				PurchaseID:   "seed",
				CreatedAt:    now,
			}
			s.unitsBySerial[serial] = unit
		}
		p := s.products[productID]
		p.Stock = len(list)
		s.products[productID] = p
	}

	s.customers["cust-seed-1"] = domain.Customer{ID: "cust-seed-1", Name: "Walk-in Regular", Phone: "0770000001", CreatedAt: now}
	s.suppliers["sup-seed-1"] = domain.Supplier{ID: "sup-seed-1", Name: "City Wholesale", Phone: "0780000001", CreatedAt: now}
	s.accounts["cta-seed-1"] = domain.CashTransferAccount{ID: "cta-seed-1", Name: "Agency Main", Number: "0771111111", Provider: "asiacell", BalanceCents: 50000000, DailyLimitCents: 100000000, CreatedAt: now}
	for _, name := range []string{"Rent", "Electricity", "Salaries", "Misc"} {
		cat := domain.ExpenseCategory{ID: xid.New("expcat"), Name: name}
		s.expenseCats[cat.ID] = cat
	}

	s.ledger = append(s.ledger, domain.LedgerEntry{
		ID:                xid.New("led"),
		Seq:               1,
		Direction:         domain.Deposit,
		AmountCents:       10000000,
		Description:       "Opening balance",
		BalanceAfterCents: 10000000,
		CreatedAt:         now,
	})

	return s
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product.Name = strings.TrimSpace(product.Name)
	if product.Name == "" || product.SellingPriceCents < 1 || product.PurchasePriceCents < 0 {
		return nil, store.ErrInvalidInput
	}
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}
	if _, exists := s.products[product.ID]; exists {
		return nil, store.ErrInvalidInput
	}
	product.Stock = 0

	s.products[product.ID] = product
	created := product
	return &created, nil
}

func (s *Store) GetProductByID(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyProduct := product
	return &copyProduct, nil
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Name == b.Name {
			return cmpString(a.ID, b.ID)
		}
		return cmpString(a.Name, b.Name)
	})
	return products, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.products[product.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if strings.TrimSpace(product.Name) == "" || product.SellingPriceCents < 1 {
		return nil, store.ErrInvalidInput
	}
	// Stock and the serialized flag are owned by purchase/sale flows.
	product.Stock = existing.Stock
	product.Serialized = existing.Serialized
	product.CreatedAt = existing.CreatedAt

	s.products[product.ID] = product
	updated := product
	return &updated, nil
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	customer.Name = strings.TrimSpace(customer.Name)
	if customer.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if customer.ID == "" {
		customer.ID = xid.New("cust")
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}
	s.customers[customer.ID] = customer
	created := customer
	return &created, nil
}

func (s *Store) GetCustomerByID(_ context.Context, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, exists := s.customers[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyCustomer := customer
	return &copyCustomer, nil
}

func (s *Store) ListCustomers(_ context.Context) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customers := make([]domain.Customer, 0, len(s.customers))
	for _, c := range s.customers {
		customers = append(customers, c)
	}
	slices.SortFunc(customers, func(a, b domain.Customer) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(a.ID, b.ID)
		}
		if a.CreatedAt.Before(b.CreatedAt) {
			return -1
		}
		return 1
	})
	return customers, nil
}

func (s *Store) CreateSupplier(_ context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	supplier.Name = strings.TrimSpace(supplier.Name)
	if supplier.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if supplier.ID == "" {
		supplier.ID = xid.New("sup")
	}
	if supplier.CreatedAt.IsZero() {
		supplier.CreatedAt = time.Now().UTC()
	}
	s.suppliers[supplier.ID] = supplier
	created := supplier
	return &created, nil
}

func (s *Store) ListSuppliers(_ context.Context) ([]domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	suppliers := make([]domain.Supplier, 0, len(s.suppliers))
	for _, sup := range s.suppliers {
		suppliers = append(suppliers, sup)
	}
	slices.SortFunc(suppliers, func(a, b domain.Supplier) int {
		return cmpString(a.Name, b.Name)
	})
	return suppliers, nil
}

func (s *Store) CreatePurchase(_ context.Context, purchase domain.Purchase, units []domain.StockUnit, ledger *domain.LedgerEntry) (*domain.Purchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if purchase.Qty < 1 || purchase.UnitCostCents < 0 {
		return nil, store.ErrInvalidInput
	}
	product, exists := s.products[purchase.ProductID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if purchase.SupplierID != "" {
		if _, ok := s.suppliers[purchase.SupplierID]; !ok {
			return nil, store.ErrNotFound
		}
	}
	if product.Serialized {
		if len(units) != purchase.Qty {
			return nil, fmt.Errorf("%w: %d serials for qty %d", store.ErrInvalidInput, len(units), purchase.Qty)
		}
		seen := make(map[string]struct{}, len(units))
		for _, unit := range units {
			serial := strings.TrimSpace(unit.SerialNumber)
			if serial == "" {
				return nil, store.ErrInvalidInput
			}
			if _, dup := seen[serial]; dup {
				return nil, fmt.Errorf("%w: %s", store.ErrDuplicateSerial, serial)
			}
			seen[serial] = struct{}{}
			// Serial uniqueness spans all history, sold and returned
			// units included.
			if _, taken := s.unitsBySerial[serial]; taken {
				return nil, fmt.Errorf("%w: %s", store.ErrDuplicateSerial, serial)
			}
		}
	} else if len(units) != 0 {
		return nil, store.ErrInvalidInput
	}

	if ledger != nil {
		if ledger.Direction != domain.Withdrawal || ledger.AmountCents < 1 {
			return nil, store.ErrInvalidInput
		}
		if _, err := s.nextBalanceLocked(ledger.Direction, ledger.AmountCents); err != nil {
			return nil, err
		}
	}

	if purchase.ID == "" {
		purchase.ID = xid.New("pur")
	}
	if purchase.CreatedAt.IsZero() {
		purchase.CreatedAt = time.Now().UTC()
	}

	for i := range units {
		unit := units[i]
		if unit.ID == "" {
			unit.ID = xid.New("unit")
		}
		unit.ProductID = purchase.ProductID
		unit.Status = domain.UnitInStock
		unit.PurchaseID = purchase.ID
		if unit.CreatedAt.IsZero() {
			unit.CreatedAt = purchase.CreatedAt
		}
		s.unitsBySerial[unit.SerialNumber] = &unit
	}
	product.Stock += purchase.Qty
	s.products[purchase.ProductID] = product

	if ledger != nil {
		entry := *ledger
		entry.RefID = purchase.ID
		s.appendLedgerLocked(entry)
	}

	s.purchases[purchase.ID] = purchase
	created := purchase
	return &created, nil
}

func (s *Store) CreateSale(_ context.Context, sale domain.Sale, newCustomer *domain.Customer, plan *domain.InstallmentPlan, ledger *domain.LedgerEntry) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(sale.Lines) == 0 {
		return nil, store.ErrInvalidInput
	}
	if newCustomer != nil {
		if newCustomer.Name == "" {
			return nil, store.ErrInvalidInput
		}
		if newCustomer.ID == "" {
			newCustomer.ID = xid.New("cust")
		}
		sale.CustomerID = newCustomer.ID
	} else if sale.CustomerID != "" {
		if _, ok := s.customers[sale.CustomerID]; !ok {
			return nil, store.ErrNotFound
		}
	}

	// Validate every line before touching anything.
	type reservation struct {
		unit *domain.StockUnit
	}
	stockNeeded := map[string]int{}
	claimedSerials := map[string]struct{}{}
	reserved := make([]reservation, 0, len(sale.Lines))
	for _, line := range sale.Lines {
		if line.Qty < 1 || line.UnitPriceCents < 0 {
			return nil, store.ErrInvalidInput
		}
		product, exists := s.products[line.ProductID]
		if !exists {
			return nil, store.ErrNotFound
		}
		if product.Serialized {
			if line.Qty != 1 || line.SerialNumber == "" {
				return nil, store.ErrInvalidInput
			}
			// A serial already claimed by an earlier line in this basket is
			// no longer available; one physical unit sells once.
			if _, claimed := claimedSerials[line.SerialNumber]; claimed {
				return nil, fmt.Errorf("%w: %s", store.ErrUnitNotAvailable, line.SerialNumber)
			}
			unit, ok := s.unitsBySerial[line.SerialNumber]
			if !ok {
				return nil, fmt.Errorf("%w: %s", store.ErrNotFound, line.SerialNumber)
			}
			if unit.ProductID != line.ProductID || unit.Status != domain.UnitInStock {
				return nil, fmt.Errorf("%w: %s", store.ErrUnitNotAvailable, line.SerialNumber)
			}
			claimedSerials[line.SerialNumber] = struct{}{}
			reserved = append(reserved, reservation{unit: unit})
		} else if line.SerialNumber != "" {
			return nil, store.ErrInvalidInput
		}
		stockNeeded[line.ProductID] += line.Qty
	}
	for productID, needed := range stockNeeded {
		if s.products[productID].Stock < needed {
			return nil, fmt.Errorf("%w: product %s", store.ErrInsufficientStock, productID)
		}
	}
	if ledger != nil {
		if ledger.Direction != domain.Deposit || ledger.AmountCents < 0 {
			return nil, store.ErrInvalidInput
		}
		if _, err := s.nextBalanceLocked(ledger.Direction, ledger.AmountCents); err != nil {
			return nil, err
		}
	}

	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}

	if newCustomer != nil {
		if newCustomer.CreatedAt.IsZero() {
			newCustomer.CreatedAt = sale.CreatedAt
		}
		s.customers[newCustomer.ID] = *newCustomer
	}

	for _, r := range reserved {
		r.unit.Status = domain.UnitSold
		r.unit.SaleID = sale.ID
		r.unit.ReturnID = ""
	}
	for productID, needed := range stockNeeded {
		product := s.products[productID]
		product.Stock -= needed
		s.products[productID] = product
	}

	if ledger != nil {
		entry := *ledger
		entry.RefID = sale.ID
		s.appendLedgerLocked(entry)
	}

	if plan != nil {
		if plan.ID == "" {
			plan.ID = xid.New("plan")
		}
		plan.SaleID = sale.ID
		for i := range plan.Installments {
			if plan.Installments[i].ID == "" {
				plan.Installments[i].ID = xid.New("inst")
			}
			plan.Installments[i].PlanID = plan.ID
			plan.Installments[i].Status = domain.InstallmentPending
		}
		s.plans[plan.ID] = clonePlan(plan)
	}

	s.sales[sale.ID] = cloneSale(&sale)
	return cloneSale(s.sales[sale.ID]), nil
}

func (s *Store) GetSaleByID(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, exists := s.sales[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return cloneSale(sale), nil
}

func (s *Store) ListSales(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Sale, 0, 64)
	for _, sale := range s.sales {
		if !from.IsZero() && sale.CreatedAt.Before(from) {
			continue
		}
		if !to.IsZero() && !sale.CreatedAt.Before(to) {
			continue
		}
		result = append(result, *cloneSale(sale))
	}
	slices.SortFunc(result, func(a, b domain.Sale) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateSalesReturn(_ context.Context, ret domain.SalesReturn, ledger domain.LedgerEntry) (*domain.SalesReturn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, exists := s.sales[ret.SaleID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if len(ret.Lines) == 0 {
		return nil, store.ErrInvalidInput
	}

	soldQty := map[string]int{}
	for _, line := range sale.Lines {
		soldQty[line.ProductID] += line.Qty
	}
	alreadyReturned := map[string]int{}
	for _, prior := range s.returnsByID {
		if prior.SaleID != ret.SaleID {
			continue
		}
		for _, line := range prior.Lines {
			alreadyReturned[line.ProductID] += line.Qty
		}
	}

	releasing := make([]*domain.StockUnit, 0, len(ret.Lines))
	restock := map[string]int{}
	for _, line := range ret.Lines {
		if line.Qty < 1 {
			return nil, store.ErrInvalidInput
		}
		product, ok := s.products[line.ProductID]
		if !ok {
			return nil, store.ErrNotFound
		}
		if product.Serialized {
			if line.Qty != 1 || line.SerialNumber == "" {
				return nil, store.ErrInvalidInput
			}
			unit, ok := s.unitsBySerial[line.SerialNumber]
			if !ok {
				return nil, fmt.Errorf("%w: %s", store.ErrNotFound, line.SerialNumber)
			}
			if unit.Status != domain.UnitSold || unit.SaleID != ret.SaleID {
				return nil, fmt.Errorf("%w: %s", store.ErrUnitNotAvailable, line.SerialNumber)
			}
			releasing = append(releasing, unit)
		}
		if alreadyReturned[line.ProductID]+line.Qty+restock[line.ProductID] > soldQty[line.ProductID] {
			return nil, fmt.Errorf("%w: product %s over-returned", store.ErrInvalidInput, line.ProductID)
		}
		restock[line.ProductID] += line.Qty
	}

	if ledger.Direction != domain.Withdrawal || ledger.AmountCents < 0 {
		return nil, store.ErrInvalidInput
	}
	if _, err := s.nextBalanceLocked(ledger.Direction, ledger.AmountCents); err != nil {
		return nil, err
	}

	if ret.ID == "" {
		ret.ID = xid.New("ret")
	}
	if ret.CreatedAt.IsZero() {
		ret.CreatedAt = time.Now().UTC()
	}
	ret.CustomerID = sale.CustomerID

	for _, unit := range releasing {
		unit.Status = domain.UnitInStock
		unit.SaleID = ""
		unit.ReturnID = ret.ID
	}
	for productID, qty := range restock {
		product := s.products[productID]
		product.Stock += qty
		s.products[productID] = product
	}

	ledger.RefID = ret.ID
	s.appendLedgerLocked(ledger)

	s.returnsByID[ret.ID] = cloneReturn(&ret)
	return cloneReturn(s.returnsByID[ret.ID]), nil
}

func (s *Store) GetSalesReturnsBySale(_ context.Context, saleID string) ([]domain.SalesReturn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.SalesReturn, 0, 4)
	for _, ret := range s.returnsByID {
		if ret.SaleID != saleID {
			continue
		}
		result = append(result, *cloneReturn(ret))
	}
	slices.SortFunc(result, func(a, b domain.SalesReturn) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(a.ID, b.ID)
		}
		if a.CreatedAt.Before(b.CreatedAt) {
			return -1
		}
		return 1
	})
	return result, nil
}

func (s *Store) GetPlanByID(_ context.Context, id string) (*domain.InstallmentPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	plan, exists := s.plans[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return clonePlan(plan), nil
}

func (s *Store) ListPlans(_ context.Context) ([]domain.InstallmentPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	plans := make([]domain.InstallmentPlan, 0, len(s.plans))
	for _, plan := range s.plans {
		plans = append(plans, *clonePlan(plan))
	}
	slices.SortFunc(plans, func(a, b domain.InstallmentPlan) int {
		if a.StartDate.Equal(b.StartDate) {
			return cmpString(a.ID, b.ID)
		}
		if a.StartDate.After(b.StartDate) {
			return -1
		}
		return 1
	})
	return plans, nil
}

func (s *Store) SettleInstallment(_ context.Context, planID string, installmentID string, paidAt time.Time, ledger domain.LedgerEntry) (*domain.SettleInstallmentResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	plan, exists := s.plans[planID]
	if !exists {
		return nil, store.ErrNotFound
	}
	idx := -1
	for i := range plan.Installments {
		if plan.Installments[i].ID == installmentID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, store.ErrNotFound
	}
	if plan.Installments[idx].Status == domain.InstallmentPaid {
		return nil, store.ErrAlreadyPaid
	}
	if ledger.Direction != domain.Deposit || ledger.AmountCents != plan.Installments[idx].AmountCents {
		return nil, store.ErrInvalidInput
	}
	if _, err := s.nextBalanceLocked(ledger.Direction, ledger.AmountCents); err != nil {
		return nil, err
	}
	if paidAt.IsZero() {
		paidAt = time.Now().UTC()
	}

	plan.Installments[idx].Status = domain.InstallmentPaid
	plan.Installments[idx].PaidAt = &paidAt
	plan.RemainingCents -= plan.Installments[idx].AmountCents

	ledger.RefID = installmentID
	s.appendLedgerLocked(ledger)

	result := &domain.SettleInstallmentResult{
		Installment: plan.Installments[idx],
		Plan:        *clonePlan(plan),
	}
	return result, nil
}

func (s *Store) CreateCashTransferAccount(_ context.Context, account domain.CashTransferAccount) (*domain.CashTransferAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account.Name = strings.TrimSpace(account.Name)
	if account.Name == "" || account.Number == "" {
		return nil, store.ErrInvalidInput
	}
	if account.ID == "" {
		account.ID = xid.New("cta")
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now().UTC()
	}
	s.accounts[account.ID] = account
	created := account
	return &created, nil
}

func (s *Store) ListCashTransferAccounts(_ context.Context) ([]domain.CashTransferAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	accounts := make([]domain.CashTransferAccount, 0, len(s.accounts))
	for _, account := range s.accounts {
		accounts = append(accounts, account)
	}
	slices.SortFunc(accounts, func(a, b domain.CashTransferAccount) int {
		return cmpString(a.Name, b.Name)
	})
	return accounts, nil
}

func (s *Store) CreateCashTransferTransaction(_ context.Context, tx domain.CashTransferTransaction, ledger []domain.LedgerEntry) (*domain.CashTransferTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, exists := s.accounts[tx.AccountID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if tx.AmountCents < 1 || tx.CommissionCents < 0 {
		return nil, store.ErrInvalidInput
	}

	// A customer deposit is sent out of the agency float; a withdrawal is
	// received into it.
	var nextBalance int64
	switch tx.Direction {
	case domain.Deposit:
		nextBalance = account.BalanceCents - tx.AmountCents
		if nextBalance < 0 {
			return nil, fmt.Errorf("%w: account %s", store.ErrInsufficientFunds, account.ID)
		}
	case domain.Withdrawal:
		nextBalance = account.BalanceCents + tx.AmountCents
	default:
		return nil, store.ErrInvalidInput
	}

	running, err := s.nextBalanceLocked("", 0)
	if err != nil {
		return nil, err
	}
	for _, entry := range ledger {
		switch entry.Direction {
		case domain.Deposit:
			running += entry.AmountCents
		case domain.Withdrawal:
			running -= entry.AmountCents
			if running < 0 && !s.allowNegative {
				return nil, store.ErrInsufficientFunds
			}
		default:
			return nil, store.ErrInvalidInput
		}
	}

	if tx.ID == "" {
		tx.ID = xid.New("ctt")
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}

	account.BalanceCents = nextBalance
	s.accounts[tx.AccountID] = account

	for _, entry := range ledger {
		entry.RefID = tx.ID
		s.appendLedgerLocked(entry)
	}

	s.cashTransfers[tx.ID] = tx
	created := tx
	return &created, nil
}

func (s *Store) ListCashTransferTransactions(_ context.Context, accountID string, limit int) ([]domain.CashTransferTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.CashTransferTransaction, 0, 64)
	for _, tx := range s.cashTransfers {
		if accountID != "" && tx.AccountID != accountID {
			continue
		}
		result = append(result, tx)
	}
	slices.SortFunc(result, func(a, b domain.CashTransferTransaction) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateExpenseCategory(_ context.Context, category domain.ExpenseCategory) (*domain.ExpenseCategory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	category.Name = strings.TrimSpace(category.Name)
	if category.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if category.ID == "" {
		category.ID = xid.New("expcat")
	}
	s.expenseCats[category.ID] = category
	created := category
	return &created, nil
}

func (s *Store) ListExpenseCategories(_ context.Context) ([]domain.ExpenseCategory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	categories := make([]domain.ExpenseCategory, 0, len(s.expenseCats))
	for _, category := range s.expenseCats {
		categories = append(categories, category)
	}
	slices.SortFunc(categories, func(a, b domain.ExpenseCategory) int {
		return cmpString(a.Name, b.Name)
	})
	return categories, nil
}

func (s *Store) CreateExpense(_ context.Context, expense domain.Expense, ledger domain.LedgerEntry) (*domain.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if expense.AmountCents < 1 || strings.TrimSpace(expense.Description) == "" {
		return nil, store.ErrInvalidInput
	}
	if expense.CategoryID != "" {
		if _, ok := s.expenseCats[expense.CategoryID]; !ok {
			return nil, store.ErrNotFound
		}
	}
	if ledger.Direction != domain.Withdrawal || ledger.AmountCents != expense.AmountCents {
		return nil, store.ErrInvalidInput
	}
	if _, err := s.nextBalanceLocked(ledger.Direction, ledger.AmountCents); err != nil {
		return nil, err
	}

	if expense.ID == "" {
		expense.ID = xid.New("exp")
	}
	if expense.CreatedAt.IsZero() {
		expense.CreatedAt = time.Now().UTC()
	}

	ledger.RefID = expense.ID
	s.appendLedgerLocked(ledger)

	s.expenses[expense.ID] = expense
	created := expense
	return &created, nil
}

func (s *Store) ListExpenses(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Expense, 0, 64)
	for _, expense := range s.expenses {
		if !from.IsZero() && expense.CreatedAt.Before(from) {
			continue
		}
		if !to.IsZero() && !expense.CreatedAt.Before(to) {
			continue
		}
		result = append(result, expense)
	}
	slices.SortFunc(result, func(a, b domain.Expense) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) AppendLedgerEntry(_ context.Context, entry domain.LedgerEntry) (*domain.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.AmountCents < 1 || strings.TrimSpace(entry.Description) == "" {
		return nil, store.ErrInvalidInput
	}
	if entry.Direction != domain.Deposit && entry.Direction != domain.Withdrawal {
		return nil, store.ErrInvalidInput
	}
	if _, err := s.nextBalanceLocked(entry.Direction, entry.AmountCents); err != nil {
		return nil, err
	}

	appended := s.appendLedgerLocked(entry)
	return &appended, nil
}

func (s *Store) ListLedgerEntries(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.LedgerEntry, 0, 64)
	for _, entry := range s.ledger {
		if !from.IsZero() && entry.CreatedAt.Before(from) {
			continue
		}
		if !to.IsZero() && !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
	}
	// Ledger order is the append order, newest first for listing.
	slices.Reverse(result)
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) LatestBalance(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.ledger) == 0 {
		return 0, nil
	}
	return s.ledger[len(s.ledger)-1].BalanceAfterCents, nil
}

func (s *Store) CreateMaintenanceJob(_ context.Context, job domain.MaintenanceJob) (*domain.MaintenanceJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(job.CustomerName) == "" || strings.TrimSpace(job.DeviceType) == "" {
		return nil, store.ErrInvalidInput
	}
	if job.CostCents < 0 {
		return nil, store.ErrInvalidInput
	}
	if job.ID == "" {
		job.ID = xid.New("job")
	}
	if job.ReceivedAt.IsZero() {
		job.ReceivedAt = time.Now().UTC()
	}
	job.Status = domain.JobRepairing
	job.RepairedAt = nil
	job.DeliveredAt = nil

	s.maintenanceJob[job.ID] = job
	created := job
	return &created, nil
}

func (s *Store) ListMaintenanceJobs(_ context.Context) ([]domain.MaintenanceJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]domain.MaintenanceJob, 0, len(s.maintenanceJob))
	for _, job := range s.maintenanceJob {
		jobs = append(jobs, job)
	}
	slices.SortFunc(jobs, func(a, b domain.MaintenanceJob) int {
		if a.ReceivedAt.Equal(b.ReceivedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.ReceivedAt.After(b.ReceivedAt) {
			return -1
		}
		return 1
	})
	return jobs, nil
}

func (s *Store) UpdateMaintenanceStatus(_ context.Context, jobID string, status string, at time.Time, ledger *domain.LedgerEntry) (*domain.MaintenanceJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, exists := s.maintenanceJob[jobID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}

	switch {
	case job.Status == domain.JobRepairing && status == domain.JobRepaired:
		job.Status = domain.JobRepaired
		job.RepairedAt = &at
	case job.Status == domain.JobRepaired && status == domain.JobDelivered:
		if ledger != nil {
			if ledger.Direction != domain.Deposit {
				return nil, store.ErrInvalidInput
			}
			if _, err := s.nextBalanceLocked(ledger.Direction, ledger.AmountCents); err != nil {
				return nil, err
			}
		}
		job.Status = domain.JobDelivered
		job.DeliveredAt = &at
		if ledger != nil {
			entry := *ledger
			entry.RefID = job.ID
			s.appendLedgerLocked(entry)
		}
	default:
		return nil, fmt.Errorf("%w: %s -> %s", store.ErrInvalidInput, job.Status, status)
	}

	s.maintenanceJob[jobID] = job
	updated := job
	return &updated, nil
}

func (s *Store) FindStockUnitBySerial(_ context.Context, serial string) (*domain.StockUnit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	unit, exists := s.unitsBySerial[serial]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyUnit := *unit
	return &copyUnit, nil
}

func (s *Store) ListStockUnits(_ context.Context, productID string, status string) ([]domain.StockUnit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	units := make([]domain.StockUnit, 0, 16)
	for _, unit := range s.unitsBySerial {
		if productID != "" && unit.ProductID != productID {
			continue
		}
		if status != "" && unit.Status != status {
			continue
		}
		units = append(units, *unit)
	}
	slices.SortFunc(units, func(a, b domain.StockUnit) int {
		return cmpString(a.SerialNumber, b.SerialNumber)
	})
	return units, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 64)
	for _, entry := range s.auditLogs {
		if !from.IsZero() && entry.CreatedAt.Before(from) {
			continue
		}
		if !to.IsZero() && !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
	}
	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if _, exists := s.users[username]; exists {
		return store.ErrInvalidInput
	}
	user.Username = username
	if user.Role == "" {
		user.Role = "cashier"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.users[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.users))
	for _, user := range s.users {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}
	user, exists := s.users[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.users[username] = user
	return nil
}

// nextBalanceLocked computes the running balance after applying one more
// movement without mutating the chain. Callers hold s.mu.
func (s *Store) nextBalanceLocked(direction string, amount int64) (int64, error) {
	balance := int64(0)
	if len(s.ledger) > 0 {
		balance = s.ledger[len(s.ledger)-1].BalanceAfterCents
	}
	switch direction {
	case domain.Deposit:
		balance += amount
	case domain.Withdrawal:
		balance -= amount
		if balance < 0 && !s.allowNegative {
			return 0, store.ErrInsufficientFunds
		}
	case "":
		// Dry run: report the current balance unchanged.
	default:
		return 0, store.ErrInvalidInput
	}
	return balance, nil
}

// appendLedgerLocked extends the chain. The caller must have validated the
// movement with nextBalanceLocked first.
func (s *Store) appendLedgerLocked(entry domain.LedgerEntry) domain.LedgerEntry {
	balance, _ := s.nextBalanceLocked(entry.Direction, entry.AmountCents)
	if entry.ID == "" {
		entry.ID = xid.New("led")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	entry.Seq = int64(len(s.ledger)) + 1
	entry.BalanceAfterCents = balance
	s.ledger = append(s.ledger, entry)
	return entry
}

func cmpString(a string, b string) int {
	if a == b {
		return 0
	}
	if a < b {
		return -1
	}
	return 1
}

func cloneSale(src *domain.Sale) *domain.Sale {
	if src == nil {
		return nil
	}
	dup := *src
	lines := make([]domain.SaleLine, len(src.Lines))
	copy(lines, src.Lines)
	dup.Lines = lines
	return &dup
}

func cloneReturn(src *domain.SalesReturn) *domain.SalesReturn {
	if src == nil {
		return nil
	}
	dup := *src
	lines := make([]domain.ReturnLine, len(src.Lines))
	copy(lines, src.Lines)
	dup.Lines = lines
	return &dup
}

func clonePlan(src *domain.InstallmentPlan) *domain.InstallmentPlan {
	if src == nil {
		return nil
	}
	dup := *src
	installments := make([]domain.Installment, len(src.Installments))
	copy(installments, src.Installments)
	for i := range installments {
		if installments[i].PaidAt != nil {
			paidAt := *installments[i].PaidAt
			installments[i].PaidAt = &paidAt
		}
	}
	dup.Installments = installments
	return &dup
}
