package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"dokkan/backend/internal/domain"
	"dokkan/backend/internal/store"
	"dokkan/backend/internal/store/memory"
)

func newTestService() *Service {
	return New(memory.NewSeeded(), true)
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{
		Username: "admin",
		Role:     "admin",
	})
}

func TestCashSaleDepositsTotalAndDecrementsStock(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	before, err := svc.CurrentBalance(ctx)
	if err != nil {
		t.Fatalf("balance failed: %v", err)
	}

	result, err := svc.CreateSale(ctx, domain.SaleRequest{
		PaymentType: "cash",
		Lines: []domain.SaleLineRequest{
			{ProductID: "prod-charger-25w", Qty: 2},
		},
	})
	if err != nil {
		t.Fatalf("cash sale failed: %v", err)
	}
	if result.Sale.TotalCents != 150000 {
		t.Fatalf("expected total 150000, got %d", result.Sale.TotalCents)
	}
	if result.Sale.ProfitCents != 60000 {
		t.Fatalf("expected profit 60000, got %d", result.Sale.ProfitCents)
	}
	if result.Plan != nil {
		t.Fatalf("cash sale must not produce a plan")
	}

	after, err := svc.CurrentBalance(ctx)
	if err != nil {
		t.Fatalf("balance failed: %v", err)
	}
	if after != before+150000 {
		t.Fatalf("expected balance %d, got %d", before+150000, after)
	}

	products, err := svc.ListProducts(ctx)
	if err != nil {
		t.Fatalf("list products failed: %v", err)
	}
	for _, p := range products {
		if p.ID == "prod-charger-25w" && p.Stock != 38 {
			t.Fatalf("expected stock 38 after sale, got %d", p.Stock)
		}
	}
}

func TestSerializedSaleMarksUnitSoldExactlyOnce(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	_, err := svc.CreateSale(ctx, domain.SaleRequest{
		PaymentType: "cash",
		Lines: []domain.SaleLineRequest{
			{ProductID: "prod-phone-a54", Qty: 1, SerialNumber: "SN-A54-0001"},
		},
	})
	if err != nil {
		t.Fatalf("serialized sale failed: %v", err)
	}

	unit, err := svc.FindStockUnit(ctx, "SN-A54-0001")
	if err != nil {
		t.Fatalf("find unit failed: %v", err)
	}
	if unit.Status != domain.UnitSold {
		t.Fatalf("expected unit sold, got %s", unit.Status)
	}

	_, err = svc.CreateSale(ctx, domain.SaleRequest{
		PaymentType: "cash",
		Lines: []domain.SaleLineRequest{
			{ProductID: "prod-phone-a54", Qty: 1, SerialNumber: "SN-A54-0001"},
		},
	})
	if !errors.Is(err, store.ErrUnitNotAvailable) {
		t.Fatalf("expected ErrUnitNotAvailable on double sale, got %v", err)
	}
}

func TestConcurrentSaleOfSameSerialAllowsOneWinner(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	const attempts = 8
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			_, errs[slot] = svc.CreateSale(ctx, domain.SaleRequest{
				PaymentType: "cash",
				Lines: []domain.SaleLineRequest{
					{ProductID: "prod-phone-r13", Qty: 1, SerialNumber: "SN-R13-0001"},
				},
			})
		}(i)
	}
	wg.Wait()

	won := 0
	for _, err := range errs {
		if err == nil {
			won++
		} else if !errors.Is(err, store.ErrUnitNotAvailable) {
			t.Fatalf("unexpected loser error: %v", err)
		}
	}
	if won != 1 {
		t.Fatalf("expected exactly 1 winning sale, got %d", won)
	}
}

func TestInstallmentSaleBuildsPlanAndDepositsDownPayment(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	before, _ := svc.CurrentBalance(ctx)

	result, err := svc.CreateSale(ctx, domain.SaleRequest{
		CustomerID:  "cust-seed-1",
		PaymentType: "installment",
		Lines: []domain.SaleLineRequest{
			{ProductID: "prod-phone-a54", Qty: 1, SerialNumber: "SN-A54-0002", UnitPriceCents: 3200000},
		},
		Terms: &domain.InstallmentTerms{
			DownPaymentCents: 1200000,
			Months:           10,
			InterestRatePct:  10,
			DueDay:           5,
			GuarantorName:    "Guarantor One",
			GuarantorPhone:   "0779999999",
		},
	})
	if err != nil {
		t.Fatalf("installment sale failed: %v", err)
	}
	plan := result.Plan
	if plan == nil {
		t.Fatalf("expected a credit plan")
	}
	if plan.PrincipalCents != 2000000 {
		t.Fatalf("expected principal 2000000, got %d", plan.PrincipalCents)
	}
	if plan.InterestCents != 200000 {
		t.Fatalf("expected interest 200000, got %d", plan.InterestCents)
	}
	if plan.RemainingCents != 2200000 {
		t.Fatalf("expected remaining 2200000, got %d", plan.RemainingCents)
	}
	if len(plan.Installments) != 10 {
		t.Fatalf("expected 10 installments, got %d", len(plan.Installments))
	}
	var sum int64
	for _, inst := range plan.Installments {
		if inst.ID == "" || inst.PlanID != plan.ID {
			t.Fatalf("installment not linked to plan: %+v", inst)
		}
		if inst.Status != domain.InstallmentPending {
			t.Fatalf("expected pending installment, got %s", inst.Status)
		}
		sum += inst.AmountCents
	}
	if sum != plan.RemainingCents {
		t.Fatalf("installments sum %d != remaining %d", sum, plan.RemainingCents)
	}
	// Margin 400000 on the discounted price plus 200000 financing interest.
	if result.Sale.ProfitCents != 600000 {
		t.Fatalf("expected profit 600000, got %d", result.Sale.ProfitCents)
	}

	after, _ := svc.CurrentBalance(ctx)
	if after != before+1200000 {
		t.Fatalf("expected only the down payment in the drawer, balance %d -> %d", before, after)
	}
}

func TestInstallmentSaleRequiresCustomerAndTerms(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	_, err := svc.CreateSale(ctx, domain.SaleRequest{
		PaymentType: "installment",
		Lines: []domain.SaleLineRequest{
			{ProductID: "prod-phone-a54", Qty: 1, SerialNumber: "SN-A54-0003"},
		},
		Terms: &domain.InstallmentTerms{Months: 6, DueDay: 5},
	})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput without customer, got %v", err)
	}

	_, err = svc.CreateSale(ctx, domain.SaleRequest{
		CustomerID:  "cust-seed-1",
		PaymentType: "installment",
		Lines: []domain.SaleLineRequest{
			{ProductID: "prod-phone-a54", Qty: 1, SerialNumber: "SN-A54-0003"},
		},
	})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput without terms, got %v", err)
	}
}

func TestSettleInstallmentIsOnceOnly(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	result, err := svc.CreateSale(ctx, domain.SaleRequest{
		CustomerID:  "cust-seed-1",
		PaymentType: "installment",
		Lines: []domain.SaleLineRequest{
			{ProductID: "prod-phone-r13", Qty: 1, SerialNumber: "SN-R13-0002"},
		},
		Terms: &domain.InstallmentTerms{
			DownPaymentCents: 200000,
			Months:           4,
			InterestRatePct:  0,
			DueDay:           10,
		},
	})
	if err != nil {
		t.Fatalf("installment sale failed: %v", err)
	}
	plan := result.Plan
	first := plan.Installments[0]

	before, _ := svc.CurrentBalance(ctx)
	settled, err := svc.SettleInstallment(ctx, plan.ID, first.ID)
	if err != nil {
		t.Fatalf("settle failed: %v", err)
	}
	if settled.Installment.Status != domain.InstallmentPaid || settled.Installment.PaidAt == nil {
		t.Fatalf("expected paid installment, got %+v", settled.Installment)
	}
	if settled.Plan.RemainingCents != plan.RemainingCents-first.AmountCents {
		t.Fatalf("expected remaining %d, got %d", plan.RemainingCents-first.AmountCents, settled.Plan.RemainingCents)
	}
	after, _ := svc.CurrentBalance(ctx)
	if after != before+first.AmountCents {
		t.Fatalf("expected balance to grow by %d", first.AmountCents)
	}

	_, err = svc.SettleInstallment(ctx, plan.ID, first.ID)
	if !errors.Is(err, store.ErrAlreadyPaid) {
		t.Fatalf("expected ErrAlreadyPaid on double settle, got %v", err)
	}
}

func TestSalesReturnRefundsAndReopensSerial(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	sale, err := svc.CreateSale(ctx, domain.SaleRequest{
		PaymentType: "cash",
		Lines: []domain.SaleLineRequest{
			{ProductID: "prod-phone-a54", Qty: 1, SerialNumber: "SN-A54-0001"},
			{ProductID: "prod-case-clear", Qty: 2},
		},
	})
	if err != nil {
		t.Fatalf("sale failed: %v", err)
	}

	before, _ := svc.CurrentBalance(ctx)
	ret, err := svc.CreateSalesReturn(ctx, domain.SalesReturnRequest{
		SaleID: sale.Sale.ID,
		Lines: []domain.ReturnLineRequest{
			{SerialNumber: "SN-A54-0001"},
			{ProductID: "prod-case-clear", Qty: 1},
		},
	})
	if err != nil {
		t.Fatalf("return failed: %v", err)
	}
	if ret.RefundCents != 3250000+30000 {
		t.Fatalf("expected refund %d, got %d", 3250000+30000, ret.RefundCents)
	}
	after, _ := svc.CurrentBalance(ctx)
	if after != before-ret.RefundCents {
		t.Fatalf("expected refund withdrawn from drawer")
	}

	unit, err := svc.FindStockUnit(ctx, "SN-A54-0001")
	if err != nil {
		t.Fatalf("find unit failed: %v", err)
	}
	if unit.Status != domain.UnitInStock || unit.ReturnID != ret.ID {
		t.Fatalf("expected unit back in stock via return, got %+v", unit)
	}

	// The returned unit is sellable again under the same serial.
	_, err = svc.CreateSale(ctx, domain.SaleRequest{
		PaymentType: "cash",
		Lines: []domain.SaleLineRequest{
			{ProductID: "prod-phone-a54", Qty: 1, SerialNumber: "SN-A54-0001"},
		},
	})
	if err != nil {
		t.Fatalf("resale of returned unit failed: %v", err)
	}
}

func TestSalesReturnRejectsOverReturn(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	sale, err := svc.CreateSale(ctx, domain.SaleRequest{
		PaymentType: "cash",
		Lines: []domain.SaleLineRequest{
			{ProductID: "prod-case-clear", Qty: 2},
		},
	})
	if err != nil {
		t.Fatalf("sale failed: %v", err)
	}

	_, err = svc.CreateSalesReturn(ctx, domain.SalesReturnRequest{
		SaleID: sale.Sale.ID,
		Lines: []domain.ReturnLineRequest{
			{ProductID: "prod-case-clear", Qty: 2},
		},
	})
	if err != nil {
		t.Fatalf("full return failed: %v", err)
	}

	_, err = svc.CreateSalesReturn(ctx, domain.SalesReturnRequest{
		SaleID: sale.Sale.ID,
		Lines: []domain.ReturnLineRequest{
			{ProductID: "prod-case-clear", Qty: 1},
		},
	})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected over-return rejection, got %v", err)
	}
}

func TestRecordPurchaseEnforcesSerialDiscipline(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	_, err := svc.RecordPurchase(ctx, domain.PurchaseRequest{
		SupplierID:    "sup-seed-1",
		ProductID:     "prod-phone-a54",
		Qty:           2,
		UnitCostCents: 2750000,
		SerialNumbers: []string{"SN-A54-0100"},
	})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected serial count mismatch rejection, got %v", err)
	}

	_, err = svc.RecordPurchase(ctx, domain.PurchaseRequest{
		SupplierID:    "sup-seed-1",
		ProductID:     "prod-phone-a54",
		Qty:           1,
		UnitCostCents: 2750000,
		SerialNumbers: []string{"SN-A54-0001"},
	})
	if !errors.Is(err, store.ErrDuplicateSerial) {
		t.Fatalf("expected duplicate serial rejection, got %v", err)
	}

	// A sold serial stays reserved forever; selling it does not free the
	// number for purchasing.
	_, err = svc.CreateSale(ctx, domain.SaleRequest{
		PaymentType: "cash",
		Lines: []domain.SaleLineRequest{
			{ProductID: "prod-phone-a54", Qty: 1, SerialNumber: "SN-A54-0001"},
		},
	})
	if err != nil {
		t.Fatalf("sale failed: %v", err)
	}
	_, err = svc.RecordPurchase(ctx, domain.PurchaseRequest{
		SupplierID:    "sup-seed-1",
		ProductID:     "prod-phone-a54",
		Qty:           1,
		UnitCostCents: 2750000,
		SerialNumbers: []string{"SN-A54-0001"},
	})
	if !errors.Is(err, store.ErrDuplicateSerial) {
		t.Fatalf("expected duplicate serial rejection after sale, got %v", err)
	}
}

func TestPurchaseFailureLeavesNothingBehind(t *testing.T) {
	repo := memory.New(false)
	svc := New(repo, true)
	ctx := adminCtx()

	product, err := svc.CreateProduct(ctx, domain.ProductCreateRequest{
		Name:               "Pixel 8",
		PurchasePriceCents: 3000000,
		SellingPriceCents:  3500000,
		Serialized:         true,
	})
	if err != nil {
		t.Fatalf("create product failed: %v", err)
	}

	// Empty drawer plus a strict balance policy: the purchase must fail
	// and must not leave units or stock behind.
	_, err = svc.RecordPurchase(ctx, domain.PurchaseRequest{
		ProductID:     product.ID,
		Qty:           2,
		UnitCostCents: 3000000,
		SerialNumbers: []string{"SN-PX8-0001", "SN-PX8-0002"},
	})
	if !errors.Is(err, store.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	if _, err := svc.FindStockUnit(ctx, "SN-PX8-0001"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected no stock unit after failed purchase, got %v", err)
	}
	products, _ := svc.ListProducts(ctx)
	for _, p := range products {
		if p.ID == product.ID && p.Stock != 0 {
			t.Fatalf("expected stock 0 after failed purchase, got %d", p.Stock)
		}
	}
	balance, _ := svc.CurrentBalance(ctx)
	if balance != 0 {
		t.Fatalf("expected untouched balance, got %d", balance)
	}
}

func TestCashTransferMovesFloatAndDrawer(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	drawerBefore, _ := svc.CurrentBalance(ctx)
	tx, err := svc.RecordCashTransferTransaction(ctx, domain.CashTransferTransactionRequest{
		AccountID:       "cta-seed-1",
		Direction:       "deposit",
		AmountCents:     500000,
		CommissionCents: 10000,
		CustomerPhone:   "0771234567",
	})
	if err != nil {
		t.Fatalf("cash transfer failed: %v", err)
	}

	accounts, err := svc.ListCashTransferAccounts(ctx)
	if err != nil {
		t.Fatalf("list accounts failed: %v", err)
	}
	if accounts[0].BalanceCents != 50000000-500000 {
		t.Fatalf("expected float %d, got %d", 50000000-500000, accounts[0].BalanceCents)
	}

	drawerAfter, _ := svc.CurrentBalance(ctx)
	if drawerAfter != drawerBefore+500000+10000 {
		t.Fatalf("expected drawer to gain amount plus commission, got %d -> %d", drawerBefore, drawerAfter)
	}

	entries, err := svc.ListLedgerEntries(ctx, "", 10)
	if err != nil {
		t.Fatalf("list ledger failed: %v", err)
	}
	linked := 0
	for _, entry := range entries {
		if entry.RefID == tx.ID {
			linked++
		}
	}
	if linked != 2 {
		t.Fatalf("expected 2 linked ledger entries, got %d", linked)
	}
}

func TestCashTransferRejectsOverdrawnFloat(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	_, err := svc.RecordCashTransferTransaction(ctx, domain.CashTransferTransactionRequest{
		AccountID:   "cta-seed-1",
		Direction:   "deposit",
		AmountCents: 50000001,
	})
	if !errors.Is(err, store.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
}

func TestUnlinkedCashTransferLeavesDrawerAlone(t *testing.T) {
	svc := New(memory.NewSeeded(), false)
	ctx := adminCtx()

	before, _ := svc.CurrentBalance(ctx)
	_, err := svc.RecordCashTransferTransaction(ctx, domain.CashTransferTransactionRequest{
		AccountID:       "cta-seed-1",
		Direction:       "withdrawal",
		AmountCents:     300000,
		CommissionCents: 5000,
	})
	if err != nil {
		t.Fatalf("cash transfer failed: %v", err)
	}
	after, _ := svc.CurrentBalance(ctx)
	if after != before {
		t.Fatalf("expected drawer untouched when linkage is off, got %d -> %d", before, after)
	}
}

func TestExpenseAndManualEntryKeepChainConsistent(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	if _, err := svc.RecordExpense(ctx, domain.ExpenseRequest{
		Description: "Shop rent September",
		AmountCents: 1500000,
	}); err != nil {
		t.Fatalf("expense failed: %v", err)
	}
	if _, err := svc.RecordManualLedgerEntry(ctx, domain.ManualLedgerRequest{
		Direction:   "deposit",
		AmountCents: 250000,
		Description: "Owner top-up",
	}); err != nil {
		t.Fatalf("manual entry failed: %v", err)
	}
	if _, err := svc.CreateSale(ctx, domain.SaleRequest{
		PaymentType: "cash",
		Lines: []domain.SaleLineRequest{
			{ProductID: "prod-screen-guard", Qty: 3},
		},
	}); err != nil {
		t.Fatalf("sale failed: %v", err)
	}

	entries, err := svc.ListLedgerEntries(ctx, "", 0)
	if err != nil {
		t.Fatalf("list ledger failed: %v", err)
	}
	// Entries come newest first; walk the chain oldest first.
	prev := int64(0)
	for i := len(entries) - 1; i >= 0; i-- {
		entry := entries[i]
		want := prev
		switch entry.Direction {
		case "deposit":
			want += entry.AmountCents
		case "withdrawal":
			want -= entry.AmountCents
		}
		if entry.BalanceAfterCents != want {
			t.Fatalf("broken chain at seq %d: balance %d, want %d", entry.Seq, entry.BalanceAfterCents, want)
		}
		prev = entry.BalanceAfterCents
	}
	balance, _ := svc.CurrentBalance(ctx)
	if balance != prev {
		t.Fatalf("latest balance %d disagrees with chain head %d", balance, prev)
	}
}

func TestManualLedgerEntryRequiresAdmin(t *testing.T) {
	svc := newTestService()
	ctx := WithActor(context.Background(), domain.Actor{Username: "cashier", Role: "cashier"})

	_, err := svc.RecordManualLedgerEntry(ctx, domain.ManualLedgerRequest{
		Direction:   "withdrawal",
		AmountCents: 1000,
		Description: "should fail",
	})
	if err == nil {
		t.Fatalf("expected non-admin manual entry to fail")
	}
}

func TestMaintenanceDeliveryCollectsFee(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	job, err := svc.CreateMaintenanceJob(ctx, domain.MaintenanceJobRequest{
		CustomerName:  "Ali",
		CustomerPhone: "0775551234",
		DeviceType:    "Galaxy S21",
		Problem:       "cracked screen",
		CostCents:     400000,
	})
	if err != nil {
		t.Fatalf("create job failed: %v", err)
	}

	// Delivering straight from repairing is not a legal transition.
	if _, err := svc.AdvanceMaintenanceJob(ctx, job.ID, domain.JobDelivered); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid transition, got %v", err)
	}

	if _, err := svc.AdvanceMaintenanceJob(ctx, job.ID, domain.JobRepaired); err != nil {
		t.Fatalf("repair failed: %v", err)
	}

	before, _ := svc.CurrentBalance(ctx)
	delivered, err := svc.AdvanceMaintenanceJob(ctx, job.ID, domain.JobDelivered)
	if err != nil {
		t.Fatalf("delivery failed: %v", err)
	}
	if delivered.Status != domain.JobDelivered || delivered.DeliveredAt == nil {
		t.Fatalf("expected delivered job, got %+v", delivered)
	}
	after, _ := svc.CurrentBalance(ctx)
	if after != before+400000 {
		t.Fatalf("expected fee in the drawer, balance %d -> %d", before, after)
	}
}

func TestCreateSaleWithInlineCustomer(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	result, err := svc.CreateSale(ctx, domain.SaleRequest{
		NewCustomer: &domain.CustomerCreateRequest{Name: "Sara", Phone: "0778889999"},
		PaymentType: "installment",
		Lines: []domain.SaleLineRequest{
			{ProductID: "prod-phone-a54", Qty: 1, SerialNumber: "SN-A54-0003"},
		},
		Terms: &domain.InstallmentTerms{
			DownPaymentCents: 250000,
			Months:           6,
			InterestRatePct:  5,
			DueDay:           1,
		},
	})
	if err != nil {
		t.Fatalf("sale with inline customer failed: %v", err)
	}
	if result.Sale.CustomerID == "" || result.Plan.CustomerID != result.Sale.CustomerID {
		t.Fatalf("expected the new customer on both sale and plan")
	}

	customers, err := svc.ListCustomers(ctx)
	if err != nil {
		t.Fatalf("list customers failed: %v", err)
	}
	found := false
	for _, c := range customers {
		if c.ID == result.Sale.CustomerID && c.Name == "Sara" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected inline customer to be persisted")
	}
}

func TestSaleFailureRollsBackInlineCustomer(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	before, err := svc.ListCustomers(ctx)
	if err != nil {
		t.Fatalf("list customers failed: %v", err)
	}

	// The basket fails on stock, so the staged customer must vanish with it.
	_, err = svc.CreateSale(ctx, domain.SaleRequest{
		NewCustomer: &domain.CustomerCreateRequest{Name: "Walid", Phone: "0791112222"},
		PaymentType: "cash",
		Lines: []domain.SaleLineRequest{
			{ProductID: "prod-charger-25w", Qty: 1000},
		},
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	after, err := svc.ListCustomers(ctx)
	if err != nil {
		t.Fatalf("list customers failed: %v", err)
	}
	if len(after) != len(before) {
		t.Fatalf("customer count went %d -> %d after a failed sale", len(before), len(after))
	}
}

func TestSaleRejectsSameSerialOnTwoLines(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	balanceBefore, _ := svc.CurrentBalance(ctx)
	stockBefore := map[string]int{}
	products, _ := svc.ListProducts(ctx)
	for _, p := range products {
		stockBefore[p.ID] = p.Stock
	}

	_, err := svc.CreateSale(ctx, domain.SaleRequest{
		PaymentType: "cash",
		Lines: []domain.SaleLineRequest{
			{ProductID: "prod-phone-r13", Qty: 1, SerialNumber: "SN-R13-0001"},
			{ProductID: "prod-phone-r13", Qty: 1, SerialNumber: "SN-R13-0001"},
		},
	})
	if !errors.Is(err, store.ErrUnitNotAvailable) {
		t.Fatalf("expected ErrUnitNotAvailable for a twice-listed serial, got %v", err)
	}

	unit, err := svc.FindStockUnit(ctx, "SN-R13-0001")
	if err != nil {
		t.Fatalf("find stock unit failed: %v", err)
	}
	if unit.Status != domain.UnitInStock || unit.SaleID != "" {
		t.Fatalf("expected unit untouched, got status %q sale %q", unit.Status, unit.SaleID)
	}

	products, _ = svc.ListProducts(ctx)
	for _, p := range products {
		if p.Stock != stockBefore[p.ID] {
			t.Fatalf("stock of %s went %d -> %d after a rejected sale", p.ID, stockBefore[p.ID], p.Stock)
		}
	}
	if balanceAfter, _ := svc.CurrentBalance(ctx); balanceAfter != balanceBefore {
		t.Fatalf("balance went %d -> %d after a rejected sale", balanceBefore, balanceAfter)
	}
}

func TestZeroCostPurchaseSkipsLedger(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	balanceBefore, _ := svc.CurrentBalance(ctx)
	entriesBefore, _ := svc.ListLedgerEntries(ctx, "", 100)

	// Free goods (supplier samples, warranty replacements) enter stock
	// without a drawer movement.
	purchase, err := svc.RecordPurchase(ctx, domain.PurchaseRequest{
		ProductID:     "prod-case-clear",
		Qty:           5,
		UnitCostCents: 0,
	})
	if err != nil {
		t.Fatalf("zero-cost purchase failed: %v", err)
	}
	if purchase.UnitCostCents != 0 {
		t.Fatalf("expected unit cost 0, got %d", purchase.UnitCostCents)
	}

	products, _ := svc.ListProducts(ctx)
	for _, p := range products {
		if p.ID == "prod-case-clear" && p.Stock != 65 {
			t.Fatalf("expected stock 65 after receiving 5 free units, got %d", p.Stock)
		}
	}

	entriesAfter, _ := svc.ListLedgerEntries(ctx, "", 100)
	if len(entriesAfter) != len(entriesBefore) {
		t.Fatalf("ledger grew from %d to %d entries on a zero-cost purchase", len(entriesBefore), len(entriesAfter))
	}
	if balanceAfter, _ := svc.CurrentBalance(ctx); balanceAfter != balanceBefore {
		t.Fatalf("balance went %d -> %d on a zero-cost purchase", balanceBefore, balanceAfter)
	}
}

func TestSaleFailureLeavesNothingBehind(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	balanceBefore, _ := svc.CurrentBalance(ctx)
	salesBefore, _ := svc.ListSales(ctx, "", 100)
	stockBefore := map[string]int{}
	products, _ := svc.ListProducts(ctx)
	for _, p := range products {
		stockBefore[p.ID] = p.Stock
	}

	// First line is fine; the second overdraws stock, so nothing at all
	// may stick.
	_, err := svc.CreateSale(ctx, domain.SaleRequest{
		PaymentType: "cash",
		Lines: []domain.SaleLineRequest{
			{ProductID: "prod-charger-25w", Qty: 2},
			{ProductID: "prod-screen-guard", Qty: 100000},
		},
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	products, _ = svc.ListProducts(ctx)
	for _, p := range products {
		if p.Stock != stockBefore[p.ID] {
			t.Fatalf("stock of %s went %d -> %d after a failed sale", p.ID, stockBefore[p.ID], p.Stock)
		}
	}
	salesAfter, _ := svc.ListSales(ctx, "", 100)
	if len(salesAfter) != len(salesBefore) {
		t.Fatalf("sale count went %d -> %d after a failed sale", len(salesBefore), len(salesAfter))
	}
	if balanceAfter, _ := svc.CurrentBalance(ctx); balanceAfter != balanceBefore {
		t.Fatalf("balance went %d -> %d after a failed sale", balanceBefore, balanceAfter)
	}
}
