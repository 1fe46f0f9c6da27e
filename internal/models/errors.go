package models

import "farmrent/internal/apperr"

// Domain errors shared by the store and service layers
var (
	ErrListingNotFound    = apperr.Define(apperr.ErrNotFound, "listing not found")
	ErrBookingNotFound    = apperr.Define(apperr.ErrNotFound, "booking not found")
	ErrListingNotApproved = apperr.Define(apperr.ErrPreconditionFailed, "listing is not approved")
	ErrAlreadyConfirmed   = apperr.Define(apperr.ErrPreconditionFailed, "booking already confirmed")
	ErrTxAlreadyUsed      = apperr.Define(apperr.ErrPreconditionFailed, "transaction already settled another booking")
	ErrNotBookingOwner    = apperr.Define(apperr.ErrForbidden, "booking belongs to another farmer")
)
