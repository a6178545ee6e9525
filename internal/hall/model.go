package hall

import (
	"net/http"

	"github.com/Malathy2002/hall-booking-website/internal/pkg/apperror"
)

var (
	ErrNotFound = apperror.New(http.StatusNotFound, apperror.KindNotFound, "hall not found")
	ErrInactive = apperror.New(http.StatusBadRequest, apperror.KindValidation, "hall is not accepting bookings")
)

// Hall is the slice of the catalog record the booking core needs:
// who owns it and how it is priced. Amounts are in minor currency units.
type Hall struct {
	ID             int64
	OwnerID        int64
	Name           string
	BasePrice      int64
	PerGuestCharge int64
	Capacity       int
	IsActive       bool
}
