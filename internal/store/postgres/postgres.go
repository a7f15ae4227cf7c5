package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"dokkan/backend/internal/domain"
	"dokkan/backend/internal/store"
	"dokkan/backend/internal/xid"
)

type Store struct {
	db            *sql.DB
	allowNegative bool
}

func New(ctx context.Context, databaseURL string, allowNegative bool) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, allowNegative: allowNegative}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.SellingPriceCents < 1 || product.PurchasePriceCents < 0 {
		return nil, store.ErrInvalidInput
	}
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, brand, description, purchase_price_cents, selling_price_cents, serialized, stock, barcode, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, product.ID, product.Name, product.Brand, product.Description, product.PurchasePriceCents, product.SellingPriceCents, product.Serialized, product.Stock, product.Barcode, product.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) GetProductByID(ctx context.Context, id string) (*domain.Product, error) {
	var product domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, brand, description, purchase_price_cents, selling_price_cents, serialized, stock, barcode, created_at
		FROM products
		WHERE id = $1
	`, id).Scan(&product.ID, &product.Name, &product.Brand, &product.Description, &product.PurchasePriceCents, &product.SellingPriceCents, &product.Serialized, &product.Stock, &product.Barcode, &product.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	product.CreatedAt = product.CreatedAt.UTC()
	return &product, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, brand, description, purchase_price_cents, selling_price_cents, serialized, stock, barcode, created_at
		FROM products
		ORDER BY name, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Brand, &p.Description, &p.PurchasePriceCents, &p.SellingPriceCents, &p.Serialized, &p.Stock, &p.Barcode, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.CreatedAt = p.CreatedAt.UTC()
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" || product.Name == "" || product.SellingPriceCents < 1 {
		return nil, store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, brand = $3, description = $4, purchase_price_cents = $5, selling_price_cents = $6, barcode = $7
		WHERE id = $1
	`, product.ID, product.Name, product.Brand, product.Description, product.PurchasePriceCents, product.SellingPriceCents, product.Barcode)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	return s.GetProductByID(ctx, product.ID)
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if customer.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if customer.ID == "" {
		customer.ID = xid.New("cust")
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (id, name, phone, address, national_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, customer.ID, customer.Name, customer.Phone, customer.Address, customer.NationalID, customer.CreatedAt)
	if err != nil {
		return nil, err
	}

	created := customer
	return &created, nil
}

func (s *Store) GetCustomerByID(ctx context.Context, id string) (*domain.Customer, error) {
	var customer domain.Customer
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, phone, address, national_id, created_at
		FROM customers
		WHERE id = $1
	`, id).Scan(&customer.ID, &customer.Name, &customer.Phone, &customer.Address, &customer.NationalID, &customer.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	customer.CreatedAt = customer.CreatedAt.UTC()
	return &customer, nil
}

func (s *Store) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, phone, address, national_id, created_at
		FROM customers
		ORDER BY name, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, 64)
	for rows.Next() {
		var c domain.Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Phone, &c.Address, &c.NationalID, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.CreatedAt = c.CreatedAt.UTC()
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return customers, nil
}

func (s *Store) CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	if supplier.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if supplier.ID == "" {
		supplier.ID = xid.New("sup")
	}
	if supplier.CreatedAt.IsZero() {
		supplier.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO suppliers (id, name, contact_person, phone, address, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, supplier.ID, supplier.Name, supplier.ContactPerson, supplier.Phone, supplier.Address, supplier.CreatedAt)
	if err != nil {
		return nil, err
	}

	created := supplier
	return &created, nil
}

func (s *Store) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, contact_person, phone, address, created_at
		FROM suppliers
		ORDER BY name, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	suppliers := make([]domain.Supplier, 0, 32)
	for rows.Next() {
		var sup domain.Supplier
		if err := rows.Scan(&sup.ID, &sup.Name, &sup.ContactPerson, &sup.Phone, &sup.Address, &sup.CreatedAt); err != nil {
			return nil, err
		}
		sup.CreatedAt = sup.CreatedAt.UTC()
		suppliers = append(suppliers, sup)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return suppliers, nil
}

func (s *Store) CreatePurchase(ctx context.Context, purchase domain.Purchase, units []domain.StockUnit, ledger *domain.LedgerEntry) (*domain.Purchase, error) {
	if purchase.ProductID == "" || purchase.Qty < 1 || purchase.UnitCostCents < 0 {
		return nil, store.ErrInvalidInput
	}
	if purchase.ID == "" {
		purchase.ID = xid.New("pur")
	}
	if purchase.CreatedAt.IsZero() {
		purchase.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var serialized bool
	err = tx.QueryRowContext(ctx, `SELECT serialized FROM products WHERE id = $1 FOR UPDATE`, purchase.ProductID).Scan(&serialized)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if serialized && len(units) != purchase.Qty {
		return nil, store.ErrInvalidInput
	}
	if !serialized && len(units) != 0 {
		return nil, store.ErrInvalidInput
	}

	serialsJSON, err := json.Marshal(purchase.SerialNumbers)
	if err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO purchases (id, supplier_id, product_id, qty, unit_cost_cents, serial_numbers, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, purchase.ID, nullIfEmpty(purchase.SupplierID), purchase.ProductID, purchase.Qty, purchase.UnitCostCents, serialsJSON, purchase.CreatedAt)
	if err != nil {
		return nil, err
	}

	for i := range units {
		unit := units[i]
		if unit.ID == "" {
			unit.ID = xid.New("unit")
		}
		if unit.CreatedAt.IsZero() {
			unit.CreatedAt = purchase.CreatedAt
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO stock_units (id, product_id, serial_number, status, purchase_id, sale_id, return_id, created_at)
			VALUES ($1,$2,$3,$4,$5,NULL,NULL,$6)
		`, unit.ID, unit.ProductID, unit.SerialNumber, domain.UnitInStock, purchase.ID, unit.CreatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return nil, fmt.Errorf("%w: %s", store.ErrDuplicateSerial, unit.SerialNumber)
			}
			return nil, err
		}
	}

	_, err = tx.ExecContext(ctx, `UPDATE products SET stock = stock + $2 WHERE id = $1`, purchase.ProductID, purchase.Qty)
	if err != nil {
		return nil, err
	}

	if ledger != nil {
		entry := *ledger
		entry.RefID = purchase.ID
		if _, err := s.appendLedgerTx(ctx, tx, entry); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	created := purchase
	return &created, nil
}

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale, newCustomer *domain.Customer, plan *domain.InstallmentPlan, ledger *domain.LedgerEntry) (*domain.Sale, error) {
	if len(sale.Lines) == 0 {
		return nil, store.ErrInvalidInput
	}
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	// An inline customer joins the sale's transaction so a failed sale
	// rolls the customer back with everything else.
	if newCustomer != nil {
		if newCustomer.Name == "" {
			return nil, store.ErrInvalidInput
		}
		if newCustomer.ID == "" {
			newCustomer.ID = xid.New("cust")
		}
		if newCustomer.CreatedAt.IsZero() {
			newCustomer.CreatedAt = sale.CreatedAt
		}
		sale.CustomerID = newCustomer.ID
		_, err := tx.ExecContext(ctx, `
			INSERT INTO customers (id, name, phone, address, national_id, created_at)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, newCustomer.ID, newCustomer.Name, newCustomer.Phone, newCustomer.Address, newCustomer.NationalID, newCustomer.CreatedAt)
		if err != nil {
			return nil, err
		}
	} else if sale.CustomerID != "" {
		var one int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM customers WHERE id = $1`, sale.CustomerID).Scan(&one)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, store.ErrNotFound
			}
			return nil, err
		}
	}

	stockNeeded := map[string]int{}
	for _, line := range sale.Lines {
		if line.Qty < 1 || line.UnitPriceCents < 0 {
			return nil, store.ErrInvalidInput
		}
		var serialized bool
		err := tx.QueryRowContext(ctx, `SELECT serialized FROM products WHERE id = $1`, line.ProductID).Scan(&serialized)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, store.ErrNotFound
			}
			return nil, err
		}
		if serialized {
			if line.Qty != 1 || line.SerialNumber == "" {
				return nil, store.ErrInvalidInput
			}
			// CAS transition: the unit flips in_stock -> sold only if it is
			// still in stock, so two concurrent sales of the same serial
			// cannot both succeed.
			res, err := tx.ExecContext(ctx, `
				UPDATE stock_units
				SET status = $1, sale_id = $2, return_id = NULL
				WHERE serial_number = $3 AND product_id = $4 AND status = $5
			`, domain.UnitSold, sale.ID, line.SerialNumber, line.ProductID, domain.UnitInStock)
			if err != nil {
				return nil, err
			}
			affected, err := res.RowsAffected()
			if err != nil {
				return nil, err
			}
			if affected == 0 {
				var one int
				scanErr := tx.QueryRowContext(ctx, `SELECT 1 FROM stock_units WHERE serial_number = $1`, line.SerialNumber).Scan(&one)
				if errors.Is(scanErr, sql.ErrNoRows) {
					return nil, fmt.Errorf("%w: %s", store.ErrNotFound, line.SerialNumber)
				}
				return nil, fmt.Errorf("%w: %s", store.ErrUnitNotAvailable, line.SerialNumber)
			}
		} else if line.SerialNumber != "" {
			return nil, store.ErrInvalidInput
		}
		stockNeeded[line.ProductID] += line.Qty
	}

	for productID, needed := range stockNeeded {
		res, err := tx.ExecContext(ctx, `
			UPDATE products SET stock = stock - $2 WHERE id = $1 AND stock >= $2
		`, productID, needed)
		if err != nil {
			return nil, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if affected == 0 {
			return nil, fmt.Errorf("%w: product %s", store.ErrInsufficientStock, productID)
		}
	}

	linesJSON, err := json.Marshal(sale.Lines)
	if err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO sales (id, customer_id, lines, total_cents, profit_cents, payment_type, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, sale.ID, nullIfEmpty(sale.CustomerID), linesJSON, sale.TotalCents, sale.ProfitCents, sale.PaymentType, sale.CreatedAt)
	if err != nil {
		return nil, err
	}

	if plan != nil {
		if plan.ID == "" {
			plan.ID = xid.New("plan")
		}
		plan.SaleID = sale.ID
		_, err = tx.ExecContext(ctx, `
			INSERT INTO installment_plans (
				id, sale_id, customer_id, principal_cents, interest_rate_pct, interest_cents,
				total_cents, down_payment_cents, remaining_cents, months, monthly_cents,
				start_date, due_day, guarantor_name, guarantor_phone, guarantor_address, guarantor_national_id
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		`, plan.ID, plan.SaleID, plan.CustomerID, plan.PrincipalCents, plan.InterestRatePct, plan.InterestCents,
			plan.TotalCents, plan.DownPaymentCents, plan.RemainingCents, plan.Months, plan.MonthlyCents,
			plan.StartDate, plan.DueDay, plan.GuarantorName, plan.GuarantorPhone, plan.GuarantorAddress, plan.GuarantorNationalID)
		if err != nil {
			return nil, err
		}
		for i := range plan.Installments {
			if plan.Installments[i].ID == "" {
				plan.Installments[i].ID = xid.New("inst")
			}
			plan.Installments[i].PlanID = plan.ID
			inst := plan.Installments[i]
			_, err = tx.ExecContext(ctx, `
				INSERT INTO installments (id, plan_id, due_date, amount_cents, status, paid_at)
				VALUES ($1,$2,$3,$4,$5,$6)
			`, inst.ID, inst.PlanID, inst.DueDate, inst.AmountCents, inst.Status, nullTime(inst.PaidAt))
			if err != nil {
				return nil, err
			}
		}
	}

	if ledger != nil {
		if ledger.Direction != domain.Deposit {
			return nil, store.ErrInvalidInput
		}
		ledger.RefID = sale.ID
		if _, err := s.appendLedgerTx(ctx, tx, *ledger); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	created := sale
	return &created, nil
}

func (s *Store) GetSaleByID(ctx context.Context, id string) (*domain.Sale, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, customer_id, lines, total_cents, profit_cents, payment_type, created_at
		FROM sales
		WHERE id = $1
	`, id)
	sale, err := scanSale(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return sale, nil
}

func (s *Store) ListSales(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.Sale, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, customer_id, lines, total_cents, profit_cents, payment_type, created_at
		FROM sales
		WHERE ($1::timestamptz IS NULL OR created_at >= $1)
			AND ($2::timestamptz IS NULL OR created_at < $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, nullableTime(from), nullableTime(to), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, limit)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, *sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sales, nil
}

func (s *Store) CreateSalesReturn(ctx context.Context, ret domain.SalesReturn, ledger domain.LedgerEntry) (*domain.SalesReturn, error) {
	if len(ret.Lines) == 0 {
		return nil, store.ErrInvalidInput
	}
	if ret.ID == "" {
		ret.ID = xid.New("ret")
	}
	if ret.CreatedAt.IsZero() {
		ret.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		SELECT id, customer_id, lines, total_cents, profit_cents, payment_type, created_at
		FROM sales
		WHERE id = $1
		FOR UPDATE
	`, ret.SaleID)
	sale, err := scanSale(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	soldQty := map[string]int{}
	for _, line := range sale.Lines {
		soldQty[line.ProductID] += line.Qty
	}
	alreadyReturned := map[string]int{}
	priorRows, err := tx.QueryContext(ctx, `SELECT lines FROM sales_returns WHERE sale_id = $1`, ret.SaleID)
	if err != nil {
		return nil, err
	}
	for priorRows.Next() {
		var linesJSON []byte
		if err := priorRows.Scan(&linesJSON); err != nil {
			_ = priorRows.Close()
			return nil, err
		}
		var lines []domain.ReturnLine
		if err := json.Unmarshal(linesJSON, &lines); err != nil {
			_ = priorRows.Close()
			return nil, err
		}
		for _, line := range lines {
			alreadyReturned[line.ProductID] += line.Qty
		}
	}
	if err := priorRows.Err(); err != nil {
		_ = priorRows.Close()
		return nil, err
	}
	_ = priorRows.Close()

	restock := map[string]int{}
	for _, line := range ret.Lines {
		if line.Qty < 1 {
			return nil, store.ErrInvalidInput
		}
		if alreadyReturned[line.ProductID]+restock[line.ProductID]+line.Qty > soldQty[line.ProductID] {
			return nil, fmt.Errorf("%w: product %s over-returned", store.ErrInvalidInput, line.ProductID)
		}
		restock[line.ProductID] += line.Qty

		if line.SerialNumber != "" {
			// The unit goes back in stock but keeps the return reference so
			// the serial stays reserved against future purchases.
			res, err := tx.ExecContext(ctx, `
				UPDATE stock_units
				SET status = $1, sale_id = NULL, return_id = $2
				WHERE serial_number = $3 AND sale_id = $4 AND status = $5
			`, domain.UnitInStock, ret.ID, line.SerialNumber, ret.SaleID, domain.UnitSold)
			if err != nil {
				return nil, err
			}
			affected, err := res.RowsAffected()
			if err != nil {
				return nil, err
			}
			if affected == 0 {
				return nil, fmt.Errorf("%w: %s", store.ErrUnitNotAvailable, line.SerialNumber)
			}
		}
	}

	for productID, qty := range restock {
		_, err := tx.ExecContext(ctx, `UPDATE products SET stock = stock + $2 WHERE id = $1`, productID, qty)
		if err != nil {
			return nil, err
		}
	}

	linesJSON, err := json.Marshal(ret.Lines)
	if err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO sales_returns (id, sale_id, customer_id, lines, refund_cents, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, ret.ID, ret.SaleID, nullIfEmpty(ret.CustomerID), linesJSON, ret.RefundCents, ret.CreatedAt)
	if err != nil {
		return nil, err
	}

	ledger.RefID = ret.ID
	if _, err := s.appendLedgerTx(ctx, tx, ledger); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	created := ret
	return &created, nil
}

func (s *Store) GetSalesReturnsBySale(ctx context.Context, saleID string) ([]domain.SalesReturn, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sale_id, customer_id, lines, refund_cents, created_at
		FROM sales_returns
		WHERE sale_id = $1
		ORDER BY created_at, id
	`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	returns := make([]domain.SalesReturn, 0, 4)
	for rows.Next() {
		var ret domain.SalesReturn
		var customerID sql.NullString
		var linesJSON []byte
		if err := rows.Scan(&ret.ID, &ret.SaleID, &customerID, &linesJSON, &ret.RefundCents, &ret.CreatedAt); err != nil {
			return nil, err
		}
		if customerID.Valid {
			ret.CustomerID = customerID.String
		}
		if err := json.Unmarshal(linesJSON, &ret.Lines); err != nil {
			return nil, err
		}
		ret.CreatedAt = ret.CreatedAt.UTC()
		returns = append(returns, ret)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return returns, nil
}

func (s *Store) GetPlanByID(ctx context.Context, id string) (*domain.InstallmentPlan, error) {
	plan, err := s.loadPlan(ctx, s.db.QueryRowContext(ctx, planSelect+` WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	installments, err := s.loadInstallments(ctx, plan.ID)
	if err != nil {
		return nil, err
	}
	plan.Installments = installments
	return plan, nil
}

func (s *Store) ListPlans(ctx context.Context) ([]domain.InstallmentPlan, error) {
	rows, err := s.db.QueryContext(ctx, planSelect+` ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	plans := make([]domain.InstallmentPlan, 0, 32)
	for rows.Next() {
		plan, err := s.loadPlan(ctx, rows)
		if err != nil {
			return nil, err
		}
		plans = append(plans, *plan)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range plans {
		installments, err := s.loadInstallments(ctx, plans[i].ID)
		if err != nil {
			return nil, err
		}
		plans[i].Installments = installments
	}
	return plans, nil
}

func (s *Store) SettleInstallment(ctx context.Context, planID string, installmentID string, paidAt time.Time, ledger domain.LedgerEntry) (*domain.SettleInstallmentResult, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var inst domain.Installment
	var paidAtCol sql.NullTime
	err = tx.QueryRowContext(ctx, `
		SELECT id, plan_id, due_date, amount_cents, status, paid_at
		FROM installments
		WHERE id = $1 AND plan_id = $2
		FOR UPDATE
	`, installmentID, planID).Scan(&inst.ID, &inst.PlanID, &inst.DueDate, &inst.AmountCents, &inst.Status, &paidAtCol)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if inst.Status == domain.InstallmentPaid {
		return nil, store.ErrAlreadyPaid
	}
	if ledger.Direction != domain.Deposit || ledger.AmountCents != inst.AmountCents {
		return nil, store.ErrInvalidInput
	}

	if paidAt.IsZero() {
		paidAt = time.Now().UTC()
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE installments SET status = $2, paid_at = $3 WHERE id = $1
	`, installmentID, domain.InstallmentPaid, paidAt)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE installment_plans SET remaining_cents = remaining_cents - $2 WHERE id = $1
	`, planID, inst.AmountCents)
	if err != nil {
		return nil, err
	}

	ledger.RefID = installmentID
	if _, err := s.appendLedgerTx(ctx, tx, ledger); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	inst.Status = domain.InstallmentPaid
	inst.DueDate = inst.DueDate.UTC()
	inst.PaidAt = &paidAt

	plan, err := s.GetPlanByID(ctx, planID)
	if err != nil {
		return nil, err
	}
	return &domain.SettleInstallmentResult{Installment: inst, Plan: *plan}, nil
}

func (s *Store) CreateCashTransferAccount(ctx context.Context, account domain.CashTransferAccount) (*domain.CashTransferAccount, error) {
	if account.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if account.ID == "" {
		account.ID = xid.New("cta")
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cash_transfer_accounts (id, name, number, provider, balance_cents, daily_limit_cents, monthly_limit_cents, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, account.ID, account.Name, account.Number, account.Provider, account.BalanceCents, account.DailyLimitCents, account.MonthlyLimitCents, account.CreatedAt)
	if err != nil {
		return nil, err
	}

	created := account
	return &created, nil
}

func (s *Store) ListCashTransferAccounts(ctx context.Context) ([]domain.CashTransferAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, number, provider, balance_cents, daily_limit_cents, monthly_limit_cents, created_at
		FROM cash_transfer_accounts
		ORDER BY name, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := make([]domain.CashTransferAccount, 0, 8)
	for rows.Next() {
		var a domain.CashTransferAccount
		if err := rows.Scan(&a.ID, &a.Name, &a.Number, &a.Provider, &a.BalanceCents, &a.DailyLimitCents, &a.MonthlyLimitCents, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.CreatedAt = a.CreatedAt.UTC()
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return accounts, nil
}

func (s *Store) CreateCashTransferTransaction(ctx context.Context, transfer domain.CashTransferTransaction, ledger []domain.LedgerEntry) (*domain.CashTransferTransaction, error) {
	if transfer.AmountCents < 1 || transfer.CommissionCents < 0 {
		return nil, store.ErrInvalidInput
	}
	if transfer.Direction != domain.Deposit && transfer.Direction != domain.Withdrawal {
		return nil, store.ErrInvalidInput
	}
	if transfer.ID == "" {
		transfer.ID = xid.New("ctt")
	}
	if transfer.CreatedAt.IsZero() {
		transfer.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	// A customer deposit is paid out from the account float; a withdrawal
	// tops the float up. The float can never go negative.
	if transfer.Direction == domain.Deposit {
		res, err := tx.ExecContext(ctx, `
			UPDATE cash_transfer_accounts
			SET balance_cents = balance_cents - $2
			WHERE id = $1 AND balance_cents >= $2
		`, transfer.AccountID, transfer.AmountCents)
		if err != nil {
			return nil, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if affected == 0 {
			var one int
			scanErr := tx.QueryRowContext(ctx, `SELECT 1 FROM cash_transfer_accounts WHERE id = $1`, transfer.AccountID).Scan(&one)
			if errors.Is(scanErr, sql.ErrNoRows) {
				return nil, store.ErrNotFound
			}
			return nil, store.ErrInsufficientFunds
		}
	} else {
		res, err := tx.ExecContext(ctx, `
			UPDATE cash_transfer_accounts SET balance_cents = balance_cents + $2 WHERE id = $1
		`, transfer.AccountID, transfer.AmountCents)
		if err != nil {
			return nil, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if affected == 0 {
			return nil, store.ErrNotFound
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO cash_transfer_transactions (id, account_id, direction, amount_cents, commission_cents, customer_phone, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, transfer.ID, transfer.AccountID, transfer.Direction, transfer.AmountCents, transfer.CommissionCents, transfer.CustomerPhone, transfer.CreatedAt)
	if err != nil {
		return nil, err
	}

	for _, entry := range ledger {
		entry.RefID = transfer.ID
		if _, err := s.appendLedgerTx(ctx, tx, entry); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	created := transfer
	return &created, nil
}

func (s *Store) ListCashTransferTransactions(ctx context.Context, accountID string, limit int) ([]domain.CashTransferTransaction, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_id, direction, amount_cents, commission_cents, customer_phone, created_at
		FROM cash_transfer_transactions
		WHERE ($1 = '' OR account_id = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transfers := make([]domain.CashTransferTransaction, 0, limit)
	for rows.Next() {
		var t domain.CashTransferTransaction
		if err := rows.Scan(&t.ID, &t.AccountID, &t.Direction, &t.AmountCents, &t.CommissionCents, &t.CustomerPhone, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.CreatedAt = t.CreatedAt.UTC()
		transfers = append(transfers, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return transfers, nil
}

func (s *Store) CreateExpenseCategory(ctx context.Context, category domain.ExpenseCategory) (*domain.ExpenseCategory, error) {
	if category.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if category.ID == "" {
		category.ID = xid.New("expcat")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO expense_categories (id, name) VALUES ($1,$2)
	`, category.ID, category.Name)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}

	created := category
	return &created, nil
}

func (s *Store) ListExpenseCategories(ctx context.Context) ([]domain.ExpenseCategory, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM expense_categories ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	categories := make([]domain.ExpenseCategory, 0, 8)
	for rows.Next() {
		var c domain.ExpenseCategory
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return categories, nil
}

func (s *Store) CreateExpense(ctx context.Context, expense domain.Expense, ledger domain.LedgerEntry) (*domain.Expense, error) {
	if expense.Description == "" || expense.AmountCents < 1 {
		return nil, store.ErrInvalidInput
	}
	if expense.ID == "" {
		expense.ID = xid.New("exp")
	}
	if expense.CreatedAt.IsZero() {
		expense.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if expense.CategoryID != "" {
		var one int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM expense_categories WHERE id = $1`, expense.CategoryID).Scan(&one)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, store.ErrNotFound
			}
			return nil, err
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO expenses (id, category_id, description, amount_cents, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, expense.ID, nullIfEmpty(expense.CategoryID), expense.Description, expense.AmountCents, expense.CreatedAt)
	if err != nil {
		return nil, err
	}

	ledger.RefID = expense.ID
	if _, err := s.appendLedgerTx(ctx, tx, ledger); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	created := expense
	return &created, nil
}

func (s *Store) ListExpenses(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.Expense, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, category_id, description, amount_cents, created_at
		FROM expenses
		WHERE ($1::timestamptz IS NULL OR created_at >= $1)
			AND ($2::timestamptz IS NULL OR created_at < $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, nullableTime(from), nullableTime(to), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	expenses := make([]domain.Expense, 0, limit)
	for rows.Next() {
		var e domain.Expense
		var categoryID sql.NullString
		if err := rows.Scan(&e.ID, &categoryID, &e.Description, &e.AmountCents, &e.CreatedAt); err != nil {
			return nil, err
		}
		if categoryID.Valid {
			e.CategoryID = categoryID.String
		}
		e.CreatedAt = e.CreatedAt.UTC()
		expenses = append(expenses, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return expenses, nil
}

func (s *Store) AppendLedgerEntry(ctx context.Context, entry domain.LedgerEntry) (*domain.LedgerEntry, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	appended, err := s.appendLedgerTx(ctx, tx, entry)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return appended, nil
}

func (s *Store) ListLedgerEntries(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.LedgerEntry, error) {
	if limit < 1 {
		limit = 200
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, seq, direction, amount_cents, description, ref_id, balance_after_cents, created_at
		FROM ledger_entries
		WHERE ($1::timestamptz IS NULL OR created_at >= $1)
			AND ($2::timestamptz IS NULL OR created_at < $2)
		ORDER BY seq DESC
		LIMIT $3
	`, nullableTime(from), nullableTime(to), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.LedgerEntry, 0, limit)
	for rows.Next() {
		var e domain.LedgerEntry
		var refID sql.NullString
		if err := rows.Scan(&e.ID, &e.Seq, &e.Direction, &e.AmountCents, &e.Description, &refID, &e.BalanceAfterCents, &e.CreatedAt); err != nil {
			return nil, err
		}
		if refID.Valid {
			e.RefID = refID.String
		}
		e.CreatedAt = e.CreatedAt.UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Store) LatestBalance(ctx context.Context) (int64, error) {
	var balance int64
	err := s.db.QueryRowContext(ctx, `
		SELECT balance_after_cents FROM ledger_entries ORDER BY seq DESC LIMIT 1
	`).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return balance, nil
}

func (s *Store) CreateMaintenanceJob(ctx context.Context, job domain.MaintenanceJob) (*domain.MaintenanceJob, error) {
	if job.CustomerName == "" || job.DeviceType == "" {
		return nil, store.ErrInvalidInput
	}
	if job.ID == "" {
		job.ID = xid.New("job")
	}
	if job.Status == "" {
		job.Status = domain.JobRepairing
	}
	if job.ReceivedAt.IsZero() {
		job.ReceivedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO maintenance_jobs (id, customer_name, customer_phone, device_type, problem, status, cost_cents, received_at, repaired_at, delivered_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, job.ID, job.CustomerName, job.CustomerPhone, job.DeviceType, job.Problem, job.Status, job.CostCents, job.ReceivedAt, nullTime(job.RepairedAt), nullTime(job.DeliveredAt))
	if err != nil {
		return nil, err
	}

	created := job
	return &created, nil
}

func (s *Store) ListMaintenanceJobs(ctx context.Context) ([]domain.MaintenanceJob, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, customer_name, customer_phone, device_type, problem, status, cost_cents, received_at, repaired_at, delivered_at
		FROM maintenance_jobs
		ORDER BY received_at DESC, id DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := make([]domain.MaintenanceJob, 0, 32)
	for rows.Next() {
		job, err := scanMaintenanceJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return jobs, nil
}

func (s *Store) UpdateMaintenanceStatus(ctx context.Context, jobID string, status string, at time.Time, ledger *domain.LedgerEntry) (*domain.MaintenanceJob, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		SELECT id, customer_name, customer_phone, device_type, problem, status, cost_cents, received_at, repaired_at, delivered_at
		FROM maintenance_jobs
		WHERE id = $1
		FOR UPDATE
	`, jobID)
	job, err := scanMaintenanceJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	if at.IsZero() {
		at = time.Now().UTC()
	}
	switch {
	case job.Status == domain.JobRepairing && status == domain.JobRepaired:
		job.Status = domain.JobRepaired
		job.RepairedAt = &at
	case job.Status == domain.JobRepaired && status == domain.JobDelivered:
		job.Status = domain.JobDelivered
		job.DeliveredAt = &at
	default:
		return nil, fmt.Errorf("%w: cannot move job from %s to %s", store.ErrInvalidInput, job.Status, status)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE maintenance_jobs SET status = $2, repaired_at = $3, delivered_at = $4 WHERE id = $1
	`, jobID, job.Status, nullTime(job.RepairedAt), nullTime(job.DeliveredAt))
	if err != nil {
		return nil, err
	}

	if ledger != nil {
		entry := *ledger
		entry.RefID = jobID
		if _, err := s.appendLedgerTx(ctx, tx, entry); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return job, nil
}

func (s *Store) FindStockUnitBySerial(ctx context.Context, serial string) (*domain.StockUnit, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, product_id, serial_number, status, purchase_id, sale_id, return_id, created_at
		FROM stock_units
		WHERE serial_number = $1
	`, serial)
	unit, err := scanStockUnit(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return unit, nil
}

func (s *Store) ListStockUnits(ctx context.Context, productID string, status string) ([]domain.StockUnit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, serial_number, status, purchase_id, sale_id, return_id, created_at
		FROM stock_units
		WHERE ($1 = '' OR product_id = $1)
			AND ($2 = '' OR status = $2)
		ORDER BY serial_number
	`, productID, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	units := make([]domain.StockUnit, 0, 64)
	for rows.Next() {
		unit, err := scanStockUnit(rows)
		if err != nil {
			return nil, err
		}
		units = append(units, *unit)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return units, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE ($1::timestamptz IS NULL OR created_at >= $1)
			AND ($2::timestamptz IS NULL OR created_at < $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, nullableTime(from), nullableTime(to), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var l domain.AuditLog
		if err := rows.Scan(&l.ID, &l.ActorUsername, &l.ActorRole, &l.Action, &l.EntityType, &l.EntityID, &l.Detail, &l.CreatedAt); err != nil {
			return nil, err
		}
		l.CreatedAt = l.CreatedAt.UTC()
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if user.Username == "" || user.Password == "" {
		return store.ErrInvalidInput
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil && isUniqueViolation(err) {
		return store.ErrInvalidInput
	}
	return err
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at FROM users ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 8)
	for rows.Next() {
		var u domain.UserAccount
		if err := rows.Scan(&u.Username, &u.Password, &u.Role, &u.Active, &u.CreatedAt); err != nil {
			return nil, err
		}
		u.CreatedAt = u.CreatedAt.UTC()
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET password = $2 WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// appendLedgerTx appends one entry to the cash ledger inside the caller's
// transaction. The current chain tail is locked with FOR UPDATE so sequence
// numbers and running balances stay gapless under concurrent writers.
func (s *Store) appendLedgerTx(ctx context.Context, tx *sql.Tx, entry domain.LedgerEntry) (*domain.LedgerEntry, error) {
	if entry.AmountCents < 1 {
		return nil, store.ErrInvalidInput
	}

	var lastSeq int64
	var lastBalance int64
	err := tx.QueryRowContext(ctx, `
		SELECT seq, balance_after_cents FROM ledger_entries ORDER BY seq DESC LIMIT 1 FOR UPDATE
	`).Scan(&lastSeq, &lastBalance)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	var next int64
	switch entry.Direction {
	case domain.Deposit:
		next = lastBalance + entry.AmountCents
	case domain.Withdrawal:
		next = lastBalance - entry.AmountCents
		if next < 0 && !s.allowNegative {
			return nil, store.ErrInsufficientFunds
		}
	default:
		return nil, store.ErrInvalidInput
	}

	if entry.ID == "" {
		entry.ID = xid.New("led")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	entry.Seq = lastSeq + 1
	entry.BalanceAfterCents = next

	_, err = tx.ExecContext(ctx, `
		INSERT INTO ledger_entries (id, seq, direction, amount_cents, description, ref_id, balance_after_cents, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.Seq, entry.Direction, entry.AmountCents, entry.Description, nullIfEmpty(entry.RefID), entry.BalanceAfterCents, entry.CreatedAt)
	if err != nil {
		return nil, err
	}

	appended := entry
	return &appended, nil
}

const planSelect = `
	SELECT id, sale_id, customer_id, principal_cents, interest_rate_pct, interest_cents,
		total_cents, down_payment_cents, remaining_cents, months, monthly_cents,
		start_date, due_day, guarantor_name, guarantor_phone, guarantor_address, guarantor_national_id
	FROM installment_plans`

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) loadPlan(_ context.Context, row rowScanner) (*domain.InstallmentPlan, error) {
	var plan domain.InstallmentPlan
	err := row.Scan(&plan.ID, &plan.SaleID, &plan.CustomerID, &plan.PrincipalCents, &plan.InterestRatePct, &plan.InterestCents,
		&plan.TotalCents, &plan.DownPaymentCents, &plan.RemainingCents, &plan.Months, &plan.MonthlyCents,
		&plan.StartDate, &plan.DueDay, &plan.GuarantorName, &plan.GuarantorPhone, &plan.GuarantorAddress, &plan.GuarantorNationalID)
	if err != nil {
		return nil, err
	}
	plan.StartDate = plan.StartDate.UTC()
	return &plan, nil
}

func (s *Store) loadInstallments(ctx context.Context, planID string) ([]domain.Installment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, plan_id, due_date, amount_cents, status, paid_at
		FROM installments
		WHERE plan_id = $1
		ORDER BY due_date, id
	`, planID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	installments := make([]domain.Installment, 0, 12)
	for rows.Next() {
		var inst domain.Installment
		var paidAt sql.NullTime
		if err := rows.Scan(&inst.ID, &inst.PlanID, &inst.DueDate, &inst.AmountCents, &inst.Status, &paidAt); err != nil {
			return nil, err
		}
		inst.DueDate = inst.DueDate.UTC()
		if paidAt.Valid {
			p := paidAt.Time.UTC()
			inst.PaidAt = &p
		}
		installments = append(installments, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return installments, nil
}

func scanSale(row rowScanner) (*domain.Sale, error) {
	var sale domain.Sale
	var customerID sql.NullString
	var linesJSON []byte
	if err := row.Scan(&sale.ID, &customerID, &linesJSON, &sale.TotalCents, &sale.ProfitCents, &sale.PaymentType, &sale.CreatedAt); err != nil {
		return nil, err
	}
	if customerID.Valid {
		sale.CustomerID = customerID.String
	}
	if err := json.Unmarshal(linesJSON, &sale.Lines); err != nil {
		return nil, err
	}
	sale.CreatedAt = sale.CreatedAt.UTC()
	return &sale, nil
}

func scanStockUnit(row rowScanner) (*domain.StockUnit, error) {
	var unit domain.StockUnit
	var saleID sql.NullString
	var returnID sql.NullString
	if err := row.Scan(&unit.ID, &unit.ProductID, &unit.SerialNumber, &unit.Status, &unit.PurchaseID, &saleID, &returnID, &unit.CreatedAt); err != nil {
		return nil, err
	}
	if saleID.Valid {
		unit.SaleID = saleID.String
	}
	if returnID.Valid {
		unit.ReturnID = returnID.String
	}
	unit.CreatedAt = unit.CreatedAt.UTC()
	return &unit, nil
}

func scanMaintenanceJob(row rowScanner) (*domain.MaintenanceJob, error) {
	var job domain.MaintenanceJob
	var repairedAt sql.NullTime
	var deliveredAt sql.NullTime
	if err := row.Scan(&job.ID, &job.CustomerName, &job.CustomerPhone, &job.DeviceType, &job.Problem, &job.Status, &job.CostCents, &job.ReceivedAt, &repairedAt, &deliveredAt); err != nil {
		return nil, err
	}
	job.ReceivedAt = job.ReceivedAt.UTC()
	if repairedAt.Valid {
		r := repairedAt.Time.UTC()
		job.RepairedAt = &r
	}
	if deliveredAt.Valid {
		d := deliveredAt.Time.UTC()
		job.DeliveredAt = &d
	}
	return &job, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}

func nullableTime(val time.Time) any {
	if val.IsZero() {
		return nil
	}
	return val
}
