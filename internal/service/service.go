package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"dokkan/backend/internal/domain"
	"dokkan/backend/internal/schedule"
	"dokkan/backend/internal/store"
	"dokkan/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo              store.Repository
	linkCashTransfers bool
}

func New(repo store.Repository, linkCashTransfers bool) *Service {
	return &Service{
		repo:              repo,
		linkCashTransfers: linkCashTransfers,
	}
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Product{}, fmt.Errorf("admin role required")
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || req.SellingPriceCents < 1 || req.PurchasePriceCents < 0 {
		return domain.Product{}, store.ErrInvalidInput
	}

	product := domain.Product{
		ID:                 xid.New("prod"),
		Name:               req.Name,
		Brand:              strings.TrimSpace(req.Brand),
		Description:        strings.TrimSpace(req.Description),
		PurchasePriceCents: req.PurchasePriceCents,
		SellingPriceCents:  req.SellingPriceCents,
		Serialized:         req.Serialized,
		Barcode:            strings.TrimSpace(req.Barcode),
		CreatedAt:          time.Now().UTC(),
	}

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_create", "product", created.ID, fmt.Sprintf("name=%s,price=%d,serialized=%t", created.Name, created.SellingPriceCents, created.Serialized))
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, productID string, req domain.ProductUpdateRequest) (domain.Product, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Product{}, fmt.Errorf("admin role required")
	}

	existing, err := s.repo.GetProductByID(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.Name = name
	}
	if req.Brand != nil {
		updated.Brand = strings.TrimSpace(*req.Brand)
	}
	if req.Description != nil {
		updated.Description = strings.TrimSpace(*req.Description)
	}
	if req.PurchasePriceCents != nil {
		if *req.PurchasePriceCents < 0 {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.PurchasePriceCents = *req.PurchasePriceCents
	}
	if req.SellingPriceCents != nil {
		if *req.SellingPriceCents < 1 {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.SellingPriceCents = *req.SellingPriceCents
	}
	if req.Barcode != nil {
		updated.Barcode = strings.TrimSpace(*req.Barcode)
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_update", "product", saved.ID, fmt.Sprintf("name=%s,price=%d", saved.Name, saved.SellingPriceCents))
	return *saved, nil
}

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (domain.Customer, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Customer{}, store.ErrInvalidInput
	}

	customer := domain.Customer{
		ID:         xid.New("cust"),
		Name:       req.Name,
		Phone:      strings.TrimSpace(req.Phone),
		Address:    strings.TrimSpace(req.Address),
		NationalID: strings.TrimSpace(req.NationalID),
		CreatedAt:  time.Now().UTC(),
	}

	saved, err := s.repo.CreateCustomer(ctx, customer)
	if err != nil {
		return domain.Customer{}, err
	}
	s.logAudit(ctx, "customer_create", "customer", saved.ID, fmt.Sprintf("name=%s", saved.Name))
	return *saved, nil
}

func (s *Service) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	return s.repo.ListCustomers(ctx)
}

func (s *Service) CreateSupplier(ctx context.Context, req domain.SupplierCreateRequest) (domain.Supplier, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Supplier{}, fmt.Errorf("admin role required")
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Supplier{}, store.ErrInvalidInput
	}

	supplier := domain.Supplier{
		ID:            xid.New("sup"),
		Name:          req.Name,
		ContactPerson: strings.TrimSpace(req.ContactPerson),
		Phone:         strings.TrimSpace(req.Phone),
		Address:       strings.TrimSpace(req.Address),
		CreatedAt:     time.Now().UTC(),
	}

	saved, err := s.repo.CreateSupplier(ctx, supplier)
	if err != nil {
		return domain.Supplier{}, err
	}
	s.logAudit(ctx, "supplier_create", "supplier", saved.ID, fmt.Sprintf("name=%s", saved.Name))
	return *saved, nil
}

func (s *Service) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	return s.repo.ListSuppliers(ctx)
}

// RecordPurchase receives stock from a supplier. Serialized products need
// one serial number per unit; the spend is drawn from the ledger in the
// same unit of work that mints the units.
func (s *Service) RecordPurchase(ctx context.Context, req domain.PurchaseRequest) (domain.Purchase, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Purchase{}, fmt.Errorf("admin role required")
	}

	if req.Qty < 1 || req.UnitCostCents < 0 {
		return domain.Purchase{}, store.ErrInvalidInput
	}
	product, err := s.repo.GetProductByID(ctx, req.ProductID)
	if err != nil {
		return domain.Purchase{}, err
	}

	serials := make([]string, 0, len(req.SerialNumbers))
	for _, serial := range req.SerialNumbers {
		serial = strings.TrimSpace(serial)
		if serial == "" {
			return domain.Purchase{}, store.ErrInvalidInput
		}
		serials = append(serials, serial)
	}
	if product.Serialized && len(serials) != req.Qty {
		return domain.Purchase{}, fmt.Errorf("%w: expected %d serial numbers, got %d", store.ErrInvalidInput, req.Qty, len(serials))
	}
	if !product.Serialized && len(serials) != 0 {
		return domain.Purchase{}, store.ErrInvalidInput
	}

	now := time.Now().UTC()
	purchase := domain.Purchase{
		ID:            xid.New("pur"),
		SupplierID:    strings.TrimSpace(req.SupplierID),
		ProductID:     product.ID,
		Qty:           req.Qty,
		UnitCostCents: req.UnitCostCents,
		SerialNumbers: serials,
		CreatedAt:     now,
	}
	units := make([]domain.StockUnit, 0, len(serials))
	for _, serial := range serials {
		units = append(units, domain.StockUnit{
			SerialNumber: serial,
			CreatedAt:    now,
		})
	}
	// Free stock (samples, warranty replacements) is received without a
	// drawer movement.
	total := int64(req.Qty) * req.UnitCostCents
	var ledger *domain.LedgerEntry
	if total > 0 {
		ledger = &domain.LedgerEntry{
			Direction:   domain.Withdrawal,
			AmountCents: total,
			Description: fmt.Sprintf("Purchase: %s x%d", product.Name, req.Qty),
			CreatedAt:   now,
		}
	}

	created, err := s.repo.CreatePurchase(ctx, purchase, units, ledger)
	if err != nil {
		return domain.Purchase{}, err
	}

	s.logAudit(ctx, "purchase_record", "purchase", created.ID, fmt.Sprintf("product=%s,qty=%d,total=%d", product.ID, req.Qty, total))
	return *created, nil
}

// CreateSale sells a basket for cash or on installment credit. Totals and
// profit are recomputed server side; submitted prices are only accepted
// when non-zero, otherwise catalog prices apply.
func (s *Service) CreateSale(ctx context.Context, req domain.SaleRequest) (domain.SaleResult, error) {
	if len(req.Lines) == 0 {
		return domain.SaleResult{}, store.ErrInvalidInput
	}
	if req.PaymentType != domain.PaymentCash && req.PaymentType != domain.PaymentInstallment {
		return domain.SaleResult{}, store.ErrInvalidInput
	}

	// An inline customer is only staged here; the store creates it inside
	// the sale's unit of work so a failed sale does not leave it behind.
	customerID := strings.TrimSpace(req.CustomerID)
	var newCustomer *domain.Customer
	if customerID == "" && req.NewCustomer != nil {
		name := strings.TrimSpace(req.NewCustomer.Name)
		if name == "" {
			return domain.SaleResult{}, store.ErrInvalidInput
		}
		newCustomer = &domain.Customer{
			ID:         xid.New("cust"),
			Name:       name,
			Phone:      strings.TrimSpace(req.NewCustomer.Phone),
			Address:    strings.TrimSpace(req.NewCustomer.Address),
			NationalID: strings.TrimSpace(req.NewCustomer.NationalID),
			CreatedAt:  time.Now().UTC(),
		}
		customerID = newCustomer.ID
	}
	if req.PaymentType == domain.PaymentInstallment {
		if customerID == "" {
			return domain.SaleResult{}, fmt.Errorf("%w: installment sale requires a customer", store.ErrInvalidInput)
		}
		if req.Terms == nil {
			return domain.SaleResult{}, fmt.Errorf("%w: installment sale requires terms", store.ErrInvalidInput)
		}
	}

	now := time.Now().UTC()
	lines := make([]domain.SaleLine, 0, len(req.Lines))
	total := int64(0)
	profit := int64(0)
	for _, line := range req.Lines {
		if line.Qty < 1 {
			return domain.SaleResult{}, store.ErrInvalidInput
		}
		product, err := s.repo.GetProductByID(ctx, line.ProductID)
		if err != nil {
			return domain.SaleResult{}, err
		}
		price := line.UnitPriceCents
		if price <= 0 {
			price = product.SellingPriceCents
		}
		serial := strings.TrimSpace(line.SerialNumber)
		if product.Serialized {
			if line.Qty != 1 || serial == "" {
				return domain.SaleResult{}, fmt.Errorf("%w: serialized product %s needs qty 1 and a serial", store.ErrInvalidInput, product.ID)
			}
		} else if serial != "" {
			return domain.SaleResult{}, store.ErrInvalidInput
		}
		lines = append(lines, domain.SaleLine{
			ProductID:      product.ID,
			Qty:            line.Qty,
			UnitPriceCents: price,
			UnitCostCents:  product.PurchasePriceCents,
			SerialNumber:   serial,
		})
		total += int64(line.Qty) * price
		profit += int64(line.Qty) * (price - product.PurchasePriceCents)
	}
	if total < 1 {
		return domain.SaleResult{}, store.ErrInvalidInput
	}

	sale := domain.Sale{
		ID:          xid.New("sale"),
		CustomerID:  customerID,
		Lines:       lines,
		TotalCents:  total,
		PaymentType: req.PaymentType,
		CreatedAt:   now,
	}

	var plan *domain.InstallmentPlan
	var ledger *domain.LedgerEntry

	switch req.PaymentType {
	case domain.PaymentCash:
		sale.ProfitCents = profit
		ledger = &domain.LedgerEntry{
			Direction:   domain.Deposit,
			AmountCents: total,
			Description: fmt.Sprintf("Sale: %d item(s)", len(lines)),
			CreatedAt:   now,
		}
	case domain.PaymentInstallment:
		terms := *req.Terms
		computed, err := schedule.Build(total, terms.DownPaymentCents, terms.InterestRatePct, terms.Months, now, terms.DueDay)
		if err != nil {
			return domain.SaleResult{}, err
		}
		// Financing interest is realized profit on top of the margin.
		sale.ProfitCents = profit + computed.InterestCents

		installments := make([]domain.Installment, 0, len(computed.Amounts))
		for i := range computed.Amounts {
			installments = append(installments, domain.Installment{
				DueDate:     computed.DueDates[i],
				AmountCents: computed.Amounts[i],
				Status:      domain.InstallmentPending,
			})
		}
		plan = &domain.InstallmentPlan{
			CustomerID:          customerID,
			PrincipalCents:      computed.PrincipalCents,
			InterestRatePct:     terms.InterestRatePct,
			InterestCents:       computed.InterestCents,
			TotalCents:          computed.TotalCents,
			DownPaymentCents:    terms.DownPaymentCents,
			RemainingCents:      computed.RemainingCents,
			Months:              terms.Months,
			MonthlyCents:        computed.MonthlyCents,
			StartDate:           now,
			DueDay:              terms.DueDay,
			GuarantorName:       strings.TrimSpace(terms.GuarantorName),
			GuarantorPhone:      strings.TrimSpace(terms.GuarantorPhone),
			GuarantorAddress:    strings.TrimSpace(terms.GuarantorAddress),
			GuarantorNationalID: strings.TrimSpace(terms.GuarantorNationalID),
			Installments:        installments,
		}
		if terms.DownPaymentCents > 0 {
			ledger = &domain.LedgerEntry{
				Direction:   domain.Deposit,
				AmountCents: terms.DownPaymentCents,
				Description: "Installment down payment",
				CreatedAt:   now,
			}
		}
	}

	created, err := s.repo.CreateSale(ctx, sale, newCustomer, plan, ledger)
	if err != nil {
		return domain.SaleResult{}, err
	}
	if newCustomer != nil {
		s.logAudit(ctx, "customer_create", "customer", newCustomer.ID, fmt.Sprintf("name=%s", newCustomer.Name))
	}

	result := domain.SaleResult{Sale: *created}
	if plan != nil {
		// The store assigned plan and installment IDs during the sale.
		result.Plan = plan
	}

	s.logAudit(ctx, "sale_create", "sale", created.ID, fmt.Sprintf("total=%d,payment=%s,lines=%d", created.TotalCents, created.PaymentType, len(created.Lines)))
	return result, nil
}

func (s *Service) GetSale(ctx context.Context, saleID string) (domain.Sale, error) {
	sale, err := s.repo.GetSaleByID(ctx, saleID)
	if err != nil {
		return domain.Sale{}, err
	}
	return *sale, nil
}

func (s *Service) ListSales(ctx context.Context, date string, limit int) ([]domain.Sale, error) {
	from, to, err := parseDayRange(date)
	if err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 200
	}
	return s.repo.ListSales(ctx, from, to, limit)
}

// CreateSalesReturn refunds part or all of a sale at the original line
// prices, restocks the goods and reopens serialized units.
func (s *Service) CreateSalesReturn(ctx context.Context, req domain.SalesReturnRequest) (domain.SalesReturn, error) {
	if strings.TrimSpace(req.SaleID) == "" || len(req.Lines) == 0 {
		return domain.SalesReturn{}, store.ErrInvalidInput
	}

	sale, err := s.repo.GetSaleByID(ctx, req.SaleID)
	if err != nil {
		return domain.SalesReturn{}, err
	}

	priceByProduct := map[string]int64{}
	costByProduct := map[string]int64{}
	serialLine := map[string]domain.SaleLine{}
	for _, line := range sale.Lines {
		priceByProduct[line.ProductID] = line.UnitPriceCents
		costByProduct[line.ProductID] = line.UnitCostCents
		if line.SerialNumber != "" {
			serialLine[line.SerialNumber] = line
		}
	}

	now := time.Now().UTC()
	lines := make([]domain.ReturnLine, 0, len(req.Lines))
	refund := int64(0)
	for _, line := range req.Lines {
		serial := strings.TrimSpace(line.SerialNumber)
		productID := strings.TrimSpace(line.ProductID)
		if serial != "" {
			sold, ok := serialLine[serial]
			if !ok {
				return domain.SalesReturn{}, fmt.Errorf("%w: serial %s was not on this sale", store.ErrInvalidInput, serial)
			}
			productID = sold.ProductID
			line.Qty = 1
		}
		price, ok := priceByProduct[productID]
		if !ok {
			return domain.SalesReturn{}, fmt.Errorf("%w: product %s was not on this sale", store.ErrInvalidInput, productID)
		}
		if line.Qty < 1 {
			return domain.SalesReturn{}, store.ErrInvalidInput
		}
		lines = append(lines, domain.ReturnLine{
			ProductID:      productID,
			Qty:            line.Qty,
			UnitPriceCents: price,
			UnitCostCents:  costByProduct[productID],
			SerialNumber:   serial,
		})
		refund += int64(line.Qty) * price
	}

	ret := domain.SalesReturn{
		ID:          xid.New("ret"),
		SaleID:      sale.ID,
		CustomerID:  sale.CustomerID,
		Lines:       lines,
		RefundCents: refund,
		CreatedAt:   now,
	}
	ledger := domain.LedgerEntry{
		Direction:   domain.Withdrawal,
		AmountCents: refund,
		Description: fmt.Sprintf("Sales return: %d item(s)", len(lines)),
		CreatedAt:   now,
	}

	created, err := s.repo.CreateSalesReturn(ctx, ret, ledger)
	if err != nil {
		return domain.SalesReturn{}, err
	}

	s.logAudit(ctx, "sales_return", "sales_return", created.ID, fmt.Sprintf("sale=%s,refund=%d", sale.ID, refund))
	return *created, nil
}

func (s *Service) ListPlans(ctx context.Context) ([]domain.InstallmentPlan, error) {
	return s.repo.ListPlans(ctx)
}

func (s *Service) GetPlan(ctx context.Context, planID string) (domain.InstallmentPlan, error) {
	plan, err := s.repo.GetPlanByID(ctx, planID)
	if err != nil {
		return domain.InstallmentPlan{}, err
	}
	return *plan, nil
}

// SettleInstallment collects one scheduled payment into the cash drawer.
func (s *Service) SettleInstallment(ctx context.Context, planID string, installmentID string) (domain.SettleInstallmentResult, error) {
	if strings.TrimSpace(planID) == "" || strings.TrimSpace(installmentID) == "" {
		return domain.SettleInstallmentResult{}, store.ErrInvalidInput
	}

	plan, err := s.repo.GetPlanByID(ctx, planID)
	if err != nil {
		return domain.SettleInstallmentResult{}, err
	}
	var amount int64
	found := false
	for _, inst := range plan.Installments {
		if inst.ID == installmentID {
			if inst.Status == domain.InstallmentPaid {
				return domain.SettleInstallmentResult{}, store.ErrAlreadyPaid
			}
			amount = inst.AmountCents
			found = true
			break
		}
	}
	if !found {
		return domain.SettleInstallmentResult{}, store.ErrNotFound
	}

	now := time.Now().UTC()
	ledger := domain.LedgerEntry{
		Direction:   domain.Deposit,
		AmountCents: amount,
		Description: "Installment payment",
		CreatedAt:   now,
	}
	result, err := s.repo.SettleInstallment(ctx, planID, installmentID, now, ledger)
	if err != nil {
		return domain.SettleInstallmentResult{}, err
	}

	s.logAudit(ctx, "installment_settle", "installment", installmentID, fmt.Sprintf("plan=%s,amount=%d,remaining=%d", planID, amount, result.Plan.RemainingCents))
	return *result, nil
}

func (s *Service) CreateCashTransferAccount(ctx context.Context, req domain.CashTransferAccountCreateRequest) (domain.CashTransferAccount, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.CashTransferAccount{}, fmt.Errorf("admin role required")
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Number = strings.TrimSpace(req.Number)
	if req.Name == "" || req.Number == "" {
		return domain.CashTransferAccount{}, store.ErrInvalidInput
	}

	account := domain.CashTransferAccount{
		ID:                xid.New("cta"),
		Name:              req.Name,
		Number:            req.Number,
		Provider:          strings.TrimSpace(req.Provider),
		DailyLimitCents:   req.DailyLimitCents,
		MonthlyLimitCents: req.MonthlyLimitCents,
		CreatedAt:         time.Now().UTC(),
	}
	saved, err := s.repo.CreateCashTransferAccount(ctx, account)
	if err != nil {
		return domain.CashTransferAccount{}, err
	}
	s.logAudit(ctx, "cash_transfer_account_create", "cash_transfer_account", saved.ID, fmt.Sprintf("name=%s,provider=%s", saved.Name, saved.Provider))
	return *saved, nil
}

func (s *Service) ListCashTransferAccounts(ctx context.Context) ([]domain.CashTransferAccount, error) {
	return s.repo.ListCashTransferAccounts(ctx)
}

// RecordCashTransferTransaction runs an agency operation. A customer
// deposit sends float out of the account while cash comes into the
// drawer; a withdrawal is the reverse. The commission is always drawer
// income. Drawer linkage can be switched off in configuration, in which
// case only the account float moves.
func (s *Service) RecordCashTransferTransaction(ctx context.Context, req domain.CashTransferTransactionRequest) (domain.CashTransferTransaction, error) {
	if req.AmountCents < 1 || req.CommissionCents < 0 {
		return domain.CashTransferTransaction{}, store.ErrInvalidInput
	}
	if req.Direction != domain.Deposit && req.Direction != domain.Withdrawal {
		return domain.CashTransferTransaction{}, store.ErrInvalidInput
	}

	now := time.Now().UTC()
	tx := domain.CashTransferTransaction{
		ID:              xid.New("ctt"),
		AccountID:       strings.TrimSpace(req.AccountID),
		Direction:       req.Direction,
		AmountCents:     req.AmountCents,
		CommissionCents: req.CommissionCents,
		CustomerPhone:   strings.TrimSpace(req.CustomerPhone),
		CreatedAt:       now,
	}

	var entries []domain.LedgerEntry
	if s.linkCashTransfers {
		switch req.Direction {
		case domain.Deposit:
			entries = append(entries, domain.LedgerEntry{
				Direction:   domain.Deposit,
				AmountCents: req.AmountCents,
				Description: "Cash transfer deposit",
				CreatedAt:   now,
			})
		case domain.Withdrawal:
			entries = append(entries, domain.LedgerEntry{
				Direction:   domain.Withdrawal,
				AmountCents: req.AmountCents,
				Description: "Cash transfer withdrawal",
				CreatedAt:   now,
			})
		}
		if req.CommissionCents > 0 {
			entries = append(entries, domain.LedgerEntry{
				Direction:   domain.Deposit,
				AmountCents: req.CommissionCents,
				Description: "Cash transfer commission",
				CreatedAt:   now,
			})
		}
	}

	created, err := s.repo.CreateCashTransferTransaction(ctx, tx, entries)
	if err != nil {
		return domain.CashTransferTransaction{}, err
	}

	s.logAudit(ctx, "cash_transfer_record", "cash_transfer", created.ID, fmt.Sprintf("account=%s,direction=%s,amount=%d,commission=%d", created.AccountID, created.Direction, created.AmountCents, created.CommissionCents))
	return *created, nil
}

func (s *Service) ListCashTransferTransactions(ctx context.Context, accountID string, limit int) ([]domain.CashTransferTransaction, error) {
	if limit < 1 {
		limit = 100
	}
	return s.repo.ListCashTransferTransactions(ctx, strings.TrimSpace(accountID), limit)
}

func (s *Service) CreateExpenseCategory(ctx context.Context, name string) (domain.ExpenseCategory, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.ExpenseCategory{}, fmt.Errorf("admin role required")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.ExpenseCategory{}, store.ErrInvalidInput
	}

	category, err := s.repo.CreateExpenseCategory(ctx, domain.ExpenseCategory{ID: xid.New("expcat"), Name: name})
	if err != nil {
		return domain.ExpenseCategory{}, err
	}
	s.logAudit(ctx, "expense_category_create", "expense_category", category.ID, name)
	return *category, nil
}

func (s *Service) ListExpenseCategories(ctx context.Context) ([]domain.ExpenseCategory, error) {
	return s.repo.ListExpenseCategories(ctx)
}

// RecordExpense books an operational cost as a ledger withdrawal.
func (s *Service) RecordExpense(ctx context.Context, req domain.ExpenseRequest) (domain.Expense, error) {
	req.Description = strings.TrimSpace(req.Description)
	if req.Description == "" || req.AmountCents < 1 {
		return domain.Expense{}, store.ErrInvalidInput
	}

	now := time.Now().UTC()
	expense := domain.Expense{
		ID:          xid.New("exp"),
		CategoryID:  strings.TrimSpace(req.CategoryID),
		Description: req.Description,
		AmountCents: req.AmountCents,
		CreatedAt:   now,
	}
	ledger := domain.LedgerEntry{
		Direction:   domain.Withdrawal,
		AmountCents: req.AmountCents,
		Description: "Expense: " + req.Description,
		CreatedAt:   now,
	}

	created, err := s.repo.CreateExpense(ctx, expense, ledger)
	if err != nil {
		return domain.Expense{}, err
	}

	s.logAudit(ctx, "expense_record", "expense", created.ID, fmt.Sprintf("amount=%d", created.AmountCents))
	return *created, nil
}

func (s *Service) ListExpenses(ctx context.Context, date string, limit int) ([]domain.Expense, error) {
	from, to, err := parseDayRange(date)
	if err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 200
	}
	return s.repo.ListExpenses(ctx, from, to, limit)
}

// RecordManualLedgerEntry lets an admin book an arbitrary cash movement,
// for corrections and owner drawings.
func (s *Service) RecordManualLedgerEntry(ctx context.Context, req domain.ManualLedgerRequest) (domain.LedgerEntry, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.LedgerEntry{}, fmt.Errorf("admin role required")
	}
	req.Description = strings.TrimSpace(req.Description)
	if req.Description == "" || req.AmountCents < 1 {
		return domain.LedgerEntry{}, store.ErrInvalidInput
	}
	if req.Direction != domain.Deposit && req.Direction != domain.Withdrawal {
		return domain.LedgerEntry{}, store.ErrInvalidInput
	}

	entry, err := s.repo.AppendLedgerEntry(ctx, domain.LedgerEntry{
		Direction:   req.Direction,
		AmountCents: req.AmountCents,
		Description: req.Description,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		return domain.LedgerEntry{}, err
	}

	s.logAudit(ctx, "ledger_manual_entry", "ledger_entry", entry.ID, fmt.Sprintf("direction=%s,amount=%d", entry.Direction, entry.AmountCents))
	return *entry, nil
}

func (s *Service) ListLedgerEntries(ctx context.Context, date string, limit int) ([]domain.LedgerEntry, error) {
	from, to, err := parseDayRange(date)
	if err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 200
	}
	return s.repo.ListLedgerEntries(ctx, from, to, limit)
}

func (s *Service) CurrentBalance(ctx context.Context) (int64, error) {
	return s.repo.LatestBalance(ctx)
}

func (s *Service) CreateMaintenanceJob(ctx context.Context, req domain.MaintenanceJobRequest) (domain.MaintenanceJob, error) {
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	req.DeviceType = strings.TrimSpace(req.DeviceType)
	if req.CustomerName == "" || req.DeviceType == "" || req.CostCents < 0 {
		return domain.MaintenanceJob{}, store.ErrInvalidInput
	}

	job := domain.MaintenanceJob{
		ID:            xid.New("job"),
		CustomerName:  req.CustomerName,
		CustomerPhone: strings.TrimSpace(req.CustomerPhone),
		DeviceType:    req.DeviceType,
		Problem:       strings.TrimSpace(req.Problem),
		Status:        domain.JobRepairing,
		CostCents:     req.CostCents,
		ReceivedAt:    time.Now().UTC(),
	}
	saved, err := s.repo.CreateMaintenanceJob(ctx, job)
	if err != nil {
		return domain.MaintenanceJob{}, err
	}
	s.logAudit(ctx, "maintenance_create", "maintenance_job", saved.ID, fmt.Sprintf("device=%s,cost=%d", saved.DeviceType, saved.CostCents))
	return *saved, nil
}

func (s *Service) ListMaintenanceJobs(ctx context.Context) ([]domain.MaintenanceJob, error) {
	return s.repo.ListMaintenanceJobs(ctx)
}

// AdvanceMaintenanceJob moves a repair job forward. Delivering a repaired
// job collects the fee into the drawer.
func (s *Service) AdvanceMaintenanceJob(ctx context.Context, jobID string, status string) (domain.MaintenanceJob, error) {
	if strings.TrimSpace(jobID) == "" {
		return domain.MaintenanceJob{}, store.ErrInvalidInput
	}
	if status != domain.JobRepaired && status != domain.JobDelivered {
		return domain.MaintenanceJob{}, store.ErrInvalidInput
	}

	now := time.Now().UTC()
	var ledger *domain.LedgerEntry
	if status == domain.JobDelivered {
		job, err := s.findMaintenanceJob(ctx, jobID)
		if err != nil {
			return domain.MaintenanceJob{}, err
		}
		if job.CostCents > 0 {
			ledger = &domain.LedgerEntry{
				Direction:   domain.Deposit,
				AmountCents: job.CostCents,
				Description: "Maintenance fee: " + job.DeviceType,
				CreatedAt:   now,
			}
		}
	}

	updated, err := s.repo.UpdateMaintenanceStatus(ctx, jobID, status, now, ledger)
	if err != nil {
		return domain.MaintenanceJob{}, err
	}

	s.logAudit(ctx, "maintenance_advance", "maintenance_job", updated.ID, fmt.Sprintf("status=%s", updated.Status))
	return *updated, nil
}

func (s *Service) findMaintenanceJob(ctx context.Context, jobID string) (domain.MaintenanceJob, error) {
	jobs, err := s.repo.ListMaintenanceJobs(ctx)
	if err != nil {
		return domain.MaintenanceJob{}, err
	}
	for _, job := range jobs {
		if job.ID == jobID {
			return job, nil
		}
	}
	return domain.MaintenanceJob{}, store.ErrNotFound
}

func (s *Service) FindStockUnit(ctx context.Context, serial string) (domain.StockUnit, error) {
	serial = strings.TrimSpace(serial)
	if serial == "" {
		return domain.StockUnit{}, store.ErrInvalidInput
	}
	unit, err := s.repo.FindStockUnitBySerial(ctx, serial)
	if err != nil {
		return domain.StockUnit{}, err
	}
	return *unit, nil
}

func (s *Service) ListStockUnits(ctx context.Context, productID string, status string) ([]domain.StockUnit, error) {
	return s.repo.ListStockUnits(ctx, strings.TrimSpace(productID), strings.TrimSpace(status))
}

func (s *Service) ListAuditLogs(ctx context.Context, date string, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}
	var from time.Time
	if strings.TrimSpace(date) == "" {
		from = time.Now().UTC().Add(-24 * time.Hour)
	} else {
		parsed, err := time.Parse("2006-01-02", date)
		if err != nil {
			return nil, store.ErrInvalidInput
		}
		from = parsed.UTC()
	}
	to := from.Add(24 * time.Hour)
	return s.repo.ListAuditLogs(ctx, from, to, limit)
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     time.Now().UTC(),
	}); err != nil {
		log.Printf("[audit] WARN: failed to write audit log action=%s entity=%s/%s: %v", action, entityType, entityID, err)
	}
}

// parseDayRange maps an optional YYYY-MM-DD filter to a [from, to) window.
// An empty date means no filter at all.
func parseDayRange(date string) (time.Time, time.Time, error) {
	if strings.TrimSpace(date) == "" {
		return time.Time{}, time.Time{}, nil
	}
	parsed, err := time.Parse("2006-01-02", date)
	if err != nil {
		return time.Time{}, time.Time{}, store.ErrInvalidInput
	}
	from := parsed.UTC()
	return from, from.Add(24 * time.Hour), nil
}
