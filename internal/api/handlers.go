package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"fleethire/internal/domain"
	"fleethire/internal/models"
)

func (s *HTTPServer) handleQuote(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	quote, err := s.svc.Bookings.Quote(r.Context(), req.input())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

func (s *HTTPServer) handleAvailability(w http.ResponseWriter, r *http.Request) {
	var req availabilityRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	res, err := s.svc.Bookings.CheckAvailability(r.Context(), models.AvailabilityRequest{
		BranchID:         req.BranchID,
		CategoryID:       req.CategoryID,
		Start:            req.Start,
		End:              req.End,
		Quantity:         req.Quantity,
		ExcludeBookingID: req.ExcludeBookingID,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *HTTPServer) handleCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := s.svc.Catalog.GetActiveCategories(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": categories})
}

func (s *HTTPServer) handleDistance(w http.ResponseWriter, r *http.Request) {
	from := strings.TrimSpace(r.URL.Query().Get("from"))
	to := strings.TrimSpace(r.URL.Query().Get("to"))
	if from == "" || to == "" {
		writeError(w, http.StatusBadRequest, "from and to are required")
		return
	}
	if s.svc.Distance == nil {
		s.writeDomainError(w, r, domain.DependencyUnavailableError{Dependency: "distance"})
		return
	}

	km, err := s.svc.Distance.EstimateKm(r.Context(), from, to)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, distanceResponse{From: from, To: to, DistanceKm: km})
}

func (s *HTTPServer) handleCustomerPrefill(w http.ResponseWriter, r *http.Request) {
	profile, err := s.svc.Bookings.CustomerPrefill(r.Context(), r.URL.Query().Get("phone"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *HTTPServer) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	var req createBookingRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	booking, err := s.svc.Bookings.Create(r.Context(), req.draft())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/v1/bookings/"+strconv.FormatInt(booking.ID, 10))
	writeJSON(w, http.StatusCreated, newBookingResponse(booking))
}

func (s *HTTPServer) handleListBookings(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	page, err := s.svc.Bookings.List(r.Context(), filter)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	resp := bookingPageResponse{
		Items:    make([]bookingResponse, 0, len(page.Items)),
		Total:    page.Total,
		Page:     page.Page,
		PageSize: page.PageSize,
	}
	for i := range page.Items {
		resp.Items = append(resp.Items, newBookingResponse(&page.Items[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	id, err := bookingID(r)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	booking, err := s.svc.Bookings.Get(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newBookingResponse(booking))
}

func (s *HTTPServer) handleUpdateBooking(w http.ResponseWriter, r *http.Request) {
	id, err := bookingID(r)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	var req updateBookingRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	booking, err := s.svc.Bookings.Update(r.Context(), id, req.patch())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newBookingResponse(booking))
}

// transitionHandler serves the body-less status transitions.
func (s *HTTPServer) transitionHandler(fn func(ctx context.Context, id int64) (*models.Booking, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := bookingID(r)
		if err != nil {
			s.writeDomainError(w, r, err)
			return
		}

		booking, err := fn(r.Context(), id)
		if err != nil {
			s.writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newBookingResponse(booking))
	}
}

func (s *HTTPServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, err := bookingID(r)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	outcome, err := s.svc.Bookings.Cancel(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (s *HTTPServer) handlePayment(w http.ResponseWriter, r *http.Request) {
	id, err := bookingID(r)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	var req paymentRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	booking, err := s.svc.Bookings.RecordPayment(r.Context(), id, req.Amount)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newBookingResponse(booking))
}

func (s *HTTPServer) handleAssign(w http.ResponseWriter, r *http.Request) {
	id, err := bookingID(r)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	var req assignRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	res, err := s.svc.Assignments.Assign(r.Context(), models.AssignmentRequest{
		BookingID: id,
		DriverID:  req.DriverID,
		VehicleID: req.VehicleID,
		TripIDs:   req.TripIDs,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"booking":        newBookingResponse(res.Booking),
		"assigned_trips": res.AssignedTrips,
		"assigned_at":    res.AssignedAt,
	})
}

func bookingID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.ValidationError{Field: "id", Rule: domain.RuleInvalid, Msg: "booking id must be a positive integer"}
	}
	return id, nil
}

func parseFilter(r *http.Request) (models.BookingFilter, error) {
	q := r.URL.Query()
	filter := models.BookingFilter{
		Status:  models.BookingStatus(strings.ToUpper(strings.TrimSpace(q.Get("status")))),
		Keyword: q.Get("q"),
	}

	var err error
	if filter.BranchID, err = parseInt64(q.Get("branch_id"), "branch_id"); err != nil {
		return filter, err
	}
	page, err := parseInt64(q.Get("page"), "page")
	if err != nil {
		return filter, err
	}
	size, err := parseInt64(q.Get("page_size"), "page_size")
	if err != nil {
		return filter, err
	}
	filter.Page, filter.PageSize = int(page), int(size)

	if filter.From, err = parseTime(q.Get("from"), "from"); err != nil {
		return filter, err
	}
	if filter.To, err = parseTime(q.Get("to"), "to"); err != nil {
		return filter, err
	}
	return filter, nil
}

func parseInt64(raw, field string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0, domain.ValidationError{Field: field, Rule: domain.RuleInvalid, Msg: "must be a non-negative integer"}
	}
	return v, nil
}

// parseTime accepts RFC 3339 timestamps or plain dates.
func parseTime(raw, field string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, nil
	}
	return time.Time{}, domain.ValidationError{Field: field, Rule: domain.RuleInvalid, Msg: "invalid date format; expected RFC 3339 or YYYY-MM-DD"}
}
