package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/freshcart-backend/api/responses"
	"github.com/angelmondragon/freshcart-backend/api/validators"
	product "github.com/angelmondragon/freshcart-backend/internal/products"
	"github.com/angelmondragon/freshcart-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/freshcart-backend/pkg/errors"
	"github.com/angelmondragon/freshcart-backend/pkg/logger"
	"github.com/angelmondragon/freshcart-backend/pkg/money"
)

type catalogReader interface {
	ListActive(ctx context.Context) ([]models.Product, error)
	FindActive(ctx context.Context, id uuid.UUID) (*models.Product, error)
}

type catalogWriter interface {
	Create(ctx context.Context, p *models.Product) (*models.Product, error)
	Archive(ctx context.Context, id uuid.UUID) error
}

// ListProducts returns the active catalog, optionally narrowed by category.
func ListProducts(repo catalogReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "product repository unavailable"))
			return
		}
		category := strings.TrimSpace(r.URL.Query().Get("category"))

		rows, err := repo.ListActive(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]product.ProductDTO, 0, len(rows))
		for _, p := range rows {
			if category != "" && !strings.EqualFold(p.Category, category) {
				continue
			}
			out = append(out, product.NewProductDTO(p))
		}
		responses.WriteSuccess(w, out)
	}
}

func GetProduct(repo catalogReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "product repository unavailable"))
			return
		}
		productID, err := validators.ParseUUIDParam(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		p, err := repo.FindActive(r.Context(), productID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, product.NewProductDTO(*p))
	}
}

type createProductRequest struct {
	Name        string  `json:"name" validate:"required,max=200"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=2000"`
	Category    string  `json:"category" validate:"max=100"`
	Price       string  `json:"price" validate:"required,money"`
	Quantity    int     `json:"quantity" validate:"min=0"`
	ImageRef    *string `json:"image_ref,omitempty"`
}

func (req createProductRequest) toModel() (*models.Product, error) {
	cents, err := money.FromDecimalString(req.Price)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "price must be a decimal amount").
			WithDetails(map[string]string{"price": "is invalid"})
	}
	if cents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "price must be positive").
			WithDetails(map[string]string{"price": "must be positive"})
	}
	return &models.Product{
		Name:        validators.SanitizeString(req.Name, 200),
		Description: validators.SanitizeOptional(req.Description, 2000),
		Category:    validators.SanitizeString(req.Category, 100),
		PriceCents:  cents,
		Quantity:    req.Quantity,
		ImageRef:    validators.SanitizeOptional(req.ImageRef, 512),
	}, nil
}

// AdminCreateProduct adds a product to the catalog.
func AdminCreateProduct(repo catalogWriter, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "product repository unavailable"))
			return
		}
		var payload createProductRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		model, err := payload.toModel()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		created, err := repo.Create(r.Context(), model)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, product.NewProductDTO(*created))
	}
}

// AdminArchiveProduct soft-deletes a product. Existing orders keep their
// frozen name and price.
func AdminArchiveProduct(repo catalogWriter, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "product repository unavailable"))
			return
		}
		productID, err := validators.ParseUUIDParam(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := repo.Archive(r.Context(), productID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
