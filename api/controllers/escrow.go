package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/digimart-backend/api/middleware"
	"github.com/angelmondragon/digimart-backend/api/responses"
	"github.com/angelmondragon/digimart-backend/api/validators"
	"github.com/angelmondragon/digimart-backend/internal/escrow"
	"github.com/angelmondragon/digimart-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/digimart-backend/pkg/errors"
	"github.com/angelmondragon/digimart-backend/pkg/logger"
)

type createHoldRequest struct {
	OrderItemID   *uuid.UUID `json:"order_item_id,omitempty"`
	OrderID       uuid.UUID  `json:"order_id" validate:"required"`
	ShopID        uuid.UUID  `json:"shop_id" validate:"required"`
	SellerUserID  uuid.UUID  `json:"seller_user_id" validate:"required"`
	ProductTitle  string     `json:"product_title" validate:"required,min=1,max=255"`
	SubtotalCents int        `json:"subtotal_cents" validate:"required,min=1"`
}

// EscrowCreateHold captures a purchase: the buyer's funds move into the
// seller's hold bucket and the item enters the escrow window. Callers may
// supply the order item id so retried captures stay idempotent.
func EscrowCreateHold(svc escrow.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "escrow service unavailable"))
			return
		}

		buyerID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload createHoldRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		itemID := uuid.New()
		if payload.OrderItemID != nil && *payload.OrderItemID != uuid.Nil {
			itemID = *payload.OrderItemID
		}

		item, err := svc.CreateHold(r.Context(), escrow.CreateHoldInput{
			OrderItemID:   itemID,
			OrderID:       payload.OrderID,
			ShopID:        payload.ShopID,
			BuyerID:       buyerID,
			SellerUserID:  payload.SellerUserID,
			ProductTitle:  validators.SanitizeString(payload.ProductTitle, 255),
			SubtotalCents: payload.SubtotalCents,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, item)
	}
}

// EscrowMarkDelivered records that the seller handed over the digital goods.
func EscrowMarkDelivered(svc escrow.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "escrow service unavailable"))
			return
		}

		sellerID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		itemID, err := pathUUID(r, "itemID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		item, err := svc.GetItem(r.Context(), itemID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if item.SellerUserID != sellerID {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "only the seller may mark delivery"))
			return
		}

		if err := svc.MarkDelivered(r.Context(), itemID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{"status": "delivered"})
	}
}

// EscrowConfirmDelivery is the buyer's acceptance. It marks the item
// release-eligible; the payout itself lands with the next sweep.
func EscrowConfirmDelivery(svc escrow.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "escrow service unavailable"))
			return
		}

		buyerID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		itemID, err := pathUUID(r, "itemID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.ConfirmDelivery(r.Context(), itemID, buyerID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{"status": "confirmed"})
	}
}

// EscrowGetItem returns one order item to its buyer, its seller, or staff.
func EscrowGetItem(svc escrow.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "escrow service unavailable"))
			return
		}

		actorID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		itemID, err := pathUUID(r, "itemID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		item, err := svc.GetItem(r.Context(), itemID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		role := middleware.RoleFromContext(r.Context())
		staff := role == string(enums.UserRoleModerator) || role == string(enums.UserRoleAdmin)
		if !staff && item.BuyerID != actorID && item.SellerUserID != actorID {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "not a participant on this item"))
			return
		}

		responses.WriteSuccess(w, item)
	}
}

func pathUUID(r *http.Request, key string) (uuid.UUID, error) {
	raw := chi.URLParam(r, key)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid id in path")
	}
	return id, nil
}
