package readmodel

import (
	"context"
	"time"

	"dokkan/backend/internal/cache"
	"dokkan/backend/internal/domain"
	"dokkan/backend/internal/store"
)

// DeletedPlaceholder is rendered for catalog references that no longer
// resolve, so historical views never fail on missing products or
// customers.
const DeletedPlaceholder = "(deleted)"

// Assembler builds denormalized views of sales and credit plans by
// joining the transactional records with catalog data at read time.
type Assembler struct {
	repo     store.Repository
	cache    cache.ViewCache
	cacheTTL time.Duration
}

func New(repo store.Repository, cacheStore cache.ViewCache, cacheTTL time.Duration) *Assembler {
	if cacheStore == nil {
		cacheStore = cache.NoopViewCache{}
	}
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}

	return &Assembler{
		repo:     repo,
		cache:    cacheStore,
		cacheTTL: cacheTTL,
	}
}

func (a *Assembler) AssembleSale(ctx context.Context, saleID string) (domain.SaleView, error) {
	cacheKey := "ledger:view:sale:" + saleID
	if cached, ok, err := a.cache.GetSale(ctx, cacheKey); err == nil && ok {
		return *cached, nil
	}

	sale, err := a.repo.GetSaleByID(ctx, saleID)
	if err != nil {
		return domain.SaleView{}, err
	}

	view := domain.SaleView{
		Sale:        *sale,
		Lines:       make([]domain.SaleLineView, 0, len(sale.Lines)),
		AssembledAt: time.Now().UTC(),
	}
	view.CustomerName = a.customerName(ctx, sale.CustomerID)

	for _, line := range sale.Lines {
		name := DeletedPlaceholder
		if product, err := a.repo.GetProductByID(ctx, line.ProductID); err == nil {
			name = product.Name
		}
		view.Lines = append(view.Lines, domain.SaleLineView{
			ProductID:      line.ProductID,
			ProductName:    name,
			Qty:            line.Qty,
			UnitPriceCents: line.UnitPriceCents,
			SerialNumber:   line.SerialNumber,
			LineTotalCents: int64(line.Qty) * line.UnitPriceCents,
		})
	}

	if sale.PaymentType == domain.PaymentInstallment {
		if plans, err := a.repo.ListPlans(ctx); err == nil {
			for _, plan := range plans {
				if plan.SaleID == sale.ID {
					view.PlanID = plan.ID
					break
				}
			}
		}
	}

	_ = a.cache.SetSale(ctx, cacheKey, &view, a.cacheTTL)
	return view, nil
}

func (a *Assembler) AssemblePlan(ctx context.Context, planID string) (domain.PlanView, error) {
	cacheKey := "ledger:view:plan:" + planID
	if cached, ok, err := a.cache.GetPlan(ctx, cacheKey); err == nil && ok {
		return *cached, nil
	}

	plan, err := a.repo.GetPlanByID(ctx, planID)
	if err != nil {
		return domain.PlanView{}, err
	}

	view := domain.PlanView{
		Plan:        *plan,
		AssembledAt: time.Now().UTC(),
	}
	view.CustomerName = a.customerName(ctx, plan.CustomerID)
	if sale, err := a.repo.GetSaleByID(ctx, plan.SaleID); err == nil {
		view.SaleTotalCents = sale.TotalCents
	}
	for _, inst := range plan.Installments {
		if inst.Status == domain.InstallmentPaid {
			view.PaidCount++
		} else {
			view.PendingCount++
		}
	}

	_ = a.cache.SetPlan(ctx, cacheKey, &view, a.cacheTTL)
	return view, nil
}

func (a *Assembler) customerName(ctx context.Context, customerID string) string {
	if customerID == "" {
		return ""
	}
	customer, err := a.repo.GetCustomerByID(ctx, customerID)
	if err != nil {
		return DeletedPlaceholder
	}
	return customer.Name
}
