package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"dokkan/backend/internal/domain"
)

func TestSalesReturnRestocksUnitAndReversesLedger(t *testing.T) {
	databaseURL := os.Getenv("DOKKAN_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set DOKKAN_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL, true)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()
	productID := fmt.Sprintf("prod-ret-it-%d", stamp)
	unitID := fmt.Sprintf("unit-ret-it-%d", stamp)
	serial := fmt.Sprintf("SN-RET-IT-%d", stamp)
	saleID := fmt.Sprintf("sale-ret-it-%d", stamp)
	retID := fmt.Sprintf("ret-ret-it-%d", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM ledger_entries WHERE ref_id IN ($1, $2)`, saleID, retID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sales_returns WHERE id = $1`, retID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sales WHERE id = $1`, saleID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM stock_units WHERE id = $1`, unitID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, productID)
	})

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, brand, description, purchase_price_cents, selling_price_cents, serialized, stock, barcode, created_at)
		VALUES ($1, 'Return IT Phone', '', '', 700000, 990000, true, 1, '', now())
	`, productID); err != nil {
		t.Fatalf("insert product: %v", err)
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO stock_units (id, product_id, serial_number, status, purchase_id, sale_id, return_id, created_at)
		VALUES ($1, $2, $3, 'in_stock', 'pur-ret-it', NULL, NULL, now())
	`, unitID, productID, serial); err != nil {
		t.Fatalf("seed stock unit: %v", err)
	}

	sale := domain.Sale{
		ID: saleID,
		Lines: []domain.SaleLine{{
			ProductID:      productID,
			Qty:            1,
			UnitPriceCents: 990000,
			UnitCostCents:  700000,
			SerialNumber:   serial,
		}},
		TotalCents:  990000,
		ProfitCents: 290000,
		PaymentType: domain.PaymentCash,
	}
	if _, err := s.CreateSale(ctx, sale, nil, nil, &domain.LedgerEntry{
		Direction:   domain.Deposit,
		AmountCents: 990000,
		Description: "cash sale",
	}); err != nil {
		t.Fatalf("create sale: %v", err)
	}

	ret := domain.SalesReturn{
		ID:     retID,
		SaleID: saleID,
		Lines: []domain.ReturnLine{{
			ProductID:      productID,
			Qty:            1,
			UnitPriceCents: 990000,
			UnitCostCents:  700000,
			SerialNumber:   serial,
		}},
		RefundCents: 990000,
	}
	if _, err := s.CreateSalesReturn(ctx, ret, domain.LedgerEntry{
		Direction:   domain.Withdrawal,
		AmountCents: 990000,
		Description: "sales return refund",
	}); err != nil {
		t.Fatalf("create sales return: %v", err)
	}

	var stock int
	if err := s.db.QueryRowContext(ctx, `
		SELECT stock FROM products WHERE id = $1
	`, productID).Scan(&stock); err != nil {
		t.Fatalf("query stock: %v", err)
	}
	if stock != 1 {
		t.Fatalf("expected stock 1 after return restock, got %d", stock)
	}

	unit, err := s.FindStockUnitBySerial(ctx, serial)
	if err != nil {
		t.Fatalf("find stock unit: %v", err)
	}
	if unit.Status != domain.UnitInStock {
		t.Fatalf("expected unit back in_stock, got %s", unit.Status)
	}
	if unit.SaleID != "" {
		t.Fatalf("expected sale reference cleared, got %s", unit.SaleID)
	}
	if unit.ReturnID != retID {
		t.Fatalf("expected return reference %s, got %s", retID, unit.ReturnID)
	}

	var saleBalance, refundBalance int64
	if err := s.db.QueryRowContext(ctx, `
		SELECT balance_after_cents FROM ledger_entries WHERE ref_id = $1
	`, saleID).Scan(&saleBalance); err != nil {
		t.Fatalf("query sale ledger entry: %v", err)
	}
	if err := s.db.QueryRowContext(ctx, `
		SELECT balance_after_cents FROM ledger_entries WHERE ref_id = $1
	`, retID).Scan(&refundBalance); err != nil {
		t.Fatalf("query refund ledger entry: %v", err)
	}
	if refundBalance != saleBalance-990000 {
		t.Fatalf("expected refund to reverse the sale deposit, sale balance %d refund balance %d", saleBalance, refundBalance)
	}
}
