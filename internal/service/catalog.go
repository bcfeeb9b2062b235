package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"pharmapos/backend/internal/domain"
)

const catalogSearchLimit = 20

func (s *Service) CreateBrand(ctx context.Context, req domain.NamedRequest) (domain.Brand, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Brand{}, err
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := validate("invalid brand", req); err != nil {
		return domain.Brand{}, err
	}
	created, err := s.repo.CreateBrand(ctx, domain.Brand{Name: req.Name})
	if err != nil {
		return domain.Brand{}, err
	}
	return *created, nil
}

func (s *Service) ListBrands(ctx context.Context) ([]domain.Brand, error) {
	return s.repo.ListBrands(ctx)
}

func (s *Service) CreateCategory(ctx context.Context, req domain.NamedRequest) (domain.Category, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Category{}, err
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := validate("invalid category", req); err != nil {
		return domain.Category{}, err
	}
	created, err := s.repo.CreateCategory(ctx, domain.Category{Name: req.Name})
	if err != nil {
		return domain.Category{}, err
	}
	return *created, nil
}

func (s *Service) ListCategories(ctx context.Context) ([]domain.Category, error) {
	return s.repo.ListCategories(ctx)
}

func (s *Service) ListProducts(ctx context.Context, query string) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx, strings.TrimSpace(query), 0)
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	product, err := s.repo.GetProduct(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := validate("invalid product", req); err != nil {
		return domain.Product{}, err
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{
		Name:          req.Name,
		BrandID:       strings.TrimSpace(req.BrandID),
		CategoryID:    strings.TrimSpace(req.CategoryID),
		Company:       strings.TrimSpace(req.Company),
		Description:   strings.TrimSpace(req.Description),
		TaxPercentage: req.TaxPercentage,
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_create", "product", created.ID, fmt.Sprintf("name=%s,tax=%s", created.Name, created.TaxPercentage.String()))
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}
	if err := validate("invalid product", req); err != nil {
		return domain.Product{}, err
	}

	existing, err := s.repo.GetProduct(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	changes := make([]string, 0, 6)
	if req.Name != nil {
		updated.Name = strings.TrimSpace(*req.Name)
		changes = append(changes, "name")
	}
	if req.BrandID != nil {
		updated.BrandID = strings.TrimSpace(*req.BrandID)
		changes = append(changes, "brand")
	}
	if req.CategoryID != nil {
		updated.CategoryID = strings.TrimSpace(*req.CategoryID)
		changes = append(changes, "category")
	}
	if req.Company != nil {
		updated.Company = strings.TrimSpace(*req.Company)
		changes = append(changes, "company")
	}
	if req.Description != nil {
		updated.Description = strings.TrimSpace(*req.Description)
		changes = append(changes, "description")
	}
	if req.TaxPercentage != nil {
		updated.TaxPercentage = *req.TaxPercentage
		changes = append(changes, "tax")
	}
	if updated.Name == "" {
		return domain.Product{}, invalid("invalid product", "name", "This field is required")
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}
	s.logAudit(ctx, "product_update", "product", saved.ID, "fields="+strings.Join(changes, "|"))
	return *saved, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	if _, err := requireAdmin(ctx); err != nil {
		return err
	}
	id = strings.TrimSpace(id)
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "product_delete", "product", id, "")
	return nil
}

// AddStock records a batch received outside a purchase invoice, e.g. an
// opening balance.
func (s *Service) AddStock(ctx context.Context, productID string, req domain.BatchCreateRequest) (domain.Batch, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Batch{}, err
	}
	if err := validate("invalid batch", req); err != nil {
		return domain.Batch{}, err
	}
	expiry, err := time.Parse(domain.DateLayout, req.ExpiryDate)
	if err != nil {
		return domain.Batch{}, invalid("invalid batch", "expiry_date", "Must be a date formatted as "+domain.DateLayout)
	}

	var salePrice decimal.NullDecimal
	if req.SalePrice != nil {
		salePrice = decimal.NewNullDecimal(*req.SalePrice)
	}

	created, err := s.repo.CreateBatch(ctx, domain.Batch{
		ProductID:     strings.TrimSpace(productID),
		BatchNumber:   strings.TrimSpace(req.BatchNumber),
		ExpiryDate:    expiry,
		PurchasePrice: req.PurchasePrice,
		SalePrice:     salePrice,
		Quantity:      req.Quantity,
	})
	if err != nil {
		return domain.Batch{}, err
	}
	s.logAudit(ctx, "stock_add", "batch", created.ID, fmt.Sprintf("product=%s,batch=%s,qty=%d", created.ProductID, created.BatchNumber, created.Quantity))
	return *created, nil
}

func (s *Service) ListBatches(ctx context.Context, productID string) ([]domain.Batch, error) {
	return s.repo.ListBatches(ctx, strings.TrimSpace(productID))
}

// SearchCatalog backs the POS product lookup. Stock counts only positive
// batches; price is the sale price of the earliest expiring batch in stock.
func (s *Service) SearchCatalog(ctx context.Context, term string) ([]domain.CatalogSearchResult, error) {
	products, err := s.repo.ListProducts(ctx, strings.TrimSpace(term), catalogSearchLimit)
	if err != nil {
		return nil, err
	}

	results := make([]domain.CatalogSearchResult, 0, len(products))
	for _, p := range products {
		batches, err := s.repo.ListBatches(ctx, p.ID)
		if err != nil {
			return nil, err
		}

		stock := 0
		price := decimal.Zero
		priced := false
		for _, b := range batches {
			if b.Quantity <= 0 {
				continue
			}
			stock += b.Quantity
			if !priced {
				if b.SalePrice.Valid {
					price = b.SalePrice.Decimal
				}
				priced = true
			}
		}

		results = append(results, domain.CatalogSearchResult{
			ID:    p.ID,
			Name:  p.Name,
			Brand: p.BrandName,
			Stock: stock,
			Price: price,
			Tax:   p.TaxPercentage,
		})
	}
	return results, nil
}

func (s *Service) ListCustomers(ctx context.Context, limit int) ([]domain.Customer, error) {
	if limit < 1 {
		limit = 100
	}
	return s.repo.ListCustomers(ctx, limit)
}
