package main

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"inspectpay/auth"
	"inspectpay/inspection"
	"inspectpay/inspector"
	"inspectpay/lot"
)

type generateLotRequest struct {
	InspectorID   string `json:"inspector_id" validate:"required,uuid"`
	PeriodType    string `json:"period_type" validate:"required,oneof=DAILY WEEKLY MONTHLY"`
	PeriodStart   string `json:"period_start" validate:"required_with=PeriodEnd,omitempty,datetime=2006-01-02"`
	PeriodEnd     string `json:"period_end" validate:"required_with=PeriodStart,omitempty,datetime=2006-01-02"`
	ReferenceDate string `json:"reference_date" validate:"omitempty,datetime=2006-01-02"`
	Notes         string `json:"notes" validate:"max=2000"`
}

type payLotRequest struct {
	PaymentMethod string `json:"payment_method" validate:"required,max=64"`
	Notes         string `json:"notes" validate:"max=2000"`
}

type cancelLotRequest struct {
	Reason string `json:"reason" validate:"max=2000"`
}

type lotResponse struct {
	ID              string  `json:"id"`
	InspectorID     string  `json:"inspector_id"`
	PeriodType      string  `json:"period_type"`
	PeriodStart     string  `json:"period_start"`
	PeriodEnd       string  `json:"period_end"`
	Status          string  `json:"status"`
	InspectionCount int     `json:"inspection_count"`
	TotalValue      string  `json:"total_value"`
	PaymentDate     *string `json:"payment_date,omitempty"`
	PaymentMethod   *string `json:"payment_method,omitempty"`
	PaidByUserID    *string `json:"paid_by_user_id,omitempty"`
	Notes           *string `json:"notes,omitempty"`
	CreatedByUserID *string `json:"created_by_user_id,omitempty"`
	CancelledAt     *string `json:"cancelled_at,omitempty"`
	CreatedAt       string  `json:"created_at"`
	UpdatedAt       string  `json:"updated_at"`
}

type lotItemResponse struct {
	InspectionID     string  `json:"inspection_id"`
	VesselName       string  `json:"vessel_name"`
	CompletionDate   *string `json:"completion_date,omitempty"`
	ValueAtInclusion string  `json:"value_at_inclusion"`
	CurrentOwed      *string `json:"current_owed,omitempty"`
	CurrentStatus    string  `json:"current_status"`
}

type lotDetailResponse struct {
	lotResponse
	Inspections []lotItemResponse `json:"inspections"`
}

type lotListResponse struct {
	Items    []lotResponse `json:"items"`
	Total    int           `json:"total"`
	Page     int           `json:"page"`
	PageSize int           `json:"page_size"`
}

type statusTotalsResponse struct {
	Count int    `json:"count"`
	Total string `json:"total"`
}

type summaryResponse struct {
	Pending statusTotalsResponse `json:"pending"`
	Paid    statusTotalsResponse `json:"paid"`
}

type eligibleInspectionResponse struct {
	ID             string  `json:"id"`
	InspectorID    string  `json:"inspector_id"`
	VesselName     string  `json:"vessel_name"`
	CompletionDate *string `json:"completion_date,omitempty"`
	OwedAmount     string  `json:"owed_amount"`
}

type workloadResponse struct {
	InspectorID     string `json:"inspector_id"`
	FullName        string `json:"full_name"`
	EligibleCount   int    `json:"eligible_count"`
	EligibleTotal   string `json:"eligible_total"`
	OldestCompleted string `json:"oldest_completed"`
}

func toLotResponse(l lot.Lot) lotResponse {
	return lotResponse{
		ID:              l.ID,
		InspectorID:     l.InspectorID,
		PeriodType:      string(l.PeriodType),
		PeriodStart:     l.PeriodStart.Format(time.DateOnly),
		PeriodEnd:       l.PeriodEnd.Format(time.DateOnly),
		Status:          string(l.Status),
		InspectionCount: l.InspectionCount,
		TotalValue:      l.TotalValue.StringFixed(2),
		PaymentDate:     formatTimePtr(l.PaymentDate),
		PaymentMethod:   l.PaymentMethod,
		PaidByUserID:    l.PaidByUserID,
		Notes:           l.Notes,
		CreatedByUserID: l.CreatedByUserID,
		CancelledAt:     formatTimePtr(l.CancelledAt),
		CreatedAt:       l.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:       l.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

func formatDatePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.DateOnly)
	return &s
}

func parseDate(value string) (time.Time, error) {
	return time.Parse(time.DateOnly, value)
}

// parsePeriodQuery reads period_start and period_end. When required is false
// a missing bound comes back nil.
func parsePeriodQuery(r *http.Request, required bool) (*time.Time, *time.Time, error) {
	var bounds [2]*time.Time
	for i, name := range []string{"period_start", "period_end"} {
		raw := r.URL.Query().Get(name)
		if raw == "" {
			if required {
				return nil, nil, fmt.Errorf("%s is required", name)
			}
			continue
		}
		d, err := parseDate(raw)
		if err != nil {
			return nil, nil, fmt.Errorf("%s must be a YYYY-MM-DD date", name)
		}
		bounds[i] = &d
	}
	return bounds[0], bounds[1], nil
}

// inspectorQuery reads the inspector_id filter. An empty value means any
// inspector; anything else must be a UUID.
func inspectorQuery(r *http.Request) (string, error) {
	raw := r.URL.Query().Get("inspector_id")
	if raw == "" {
		return "", nil
	}
	if _, err := uuid.Parse(raw); err != nil {
		return "", fmt.Errorf("inspector_id must be a UUID")
	}
	return raw, nil
}

// scopeInspector limits non-admin callers to their own inspector id.
func scopeInspector(r *http.Request, requested string) string {
	id, _ := auth.FromContext(r.Context())
	if id.IsAdmin() {
		return requested
	}
	return id.UserID
}

func (s *Server) handleGenerateLot(w http.ResponseWriter, r *http.Request) {
	var req generateLotRequest
	if err := readJSON(w, r, &req, false); err != nil {
		_ = writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.validation().Struct(req); err != nil {
		_ = writeJSON(w, http.StatusBadRequest, &errorResponse{Error: "validation failed", Fields: validationFields(err)})
		return
	}

	periodType := lot.PeriodType(req.PeriodType)
	var start, end time.Time
	if req.PeriodStart != "" {
		start, _ = parseDate(req.PeriodStart)
		end, _ = parseDate(req.PeriodEnd)
	} else {
		ref := s.clock()
		if req.ReferenceDate != "" {
			ref, _ = parseDate(req.ReferenceDate)
		}
		var err error
		start, end, err = lot.PeriodFor(periodType, ref)
		if err != nil {
			s.writeServiceError(w, r, "handleGenerateLot", err)
			return
		}
	}

	created, err := s.lots.Generate(r.Context(), lot.GenerateParams{
		InspectorID: req.InspectorID,
		PeriodType:  periodType,
		PeriodStart: start,
		PeriodEnd:   end,
		ActorID:     actorID(r),
		Notes:       req.Notes,
	})
	if err != nil {
		s.writeServiceError(w, r, "handleGenerateLot", err)
		return
	}

	_ = writeJSON(w, http.StatusCreated, toLotResponse(created))
}

func (s *Server) handlePayLot(w http.ResponseWriter, r *http.Request) {
	var req payLotRequest
	if err := readJSON(w, r, &req, false); err != nil {
		_ = writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.validation().Struct(req); err != nil {
		_ = writeJSON(w, http.StatusBadRequest, &errorResponse{Error: "validation failed", Fields: validationFields(err)})
		return
	}

	paid, err := s.lots.MarkPaid(r.Context(), lot.MarkPaidParams{
		LotID:         chi.URLParam(r, "id"),
		PaymentMethod: req.PaymentMethod,
		Notes:         req.Notes,
		ActorID:       actorID(r),
	})
	if err != nil {
		s.writeServiceError(w, r, "handlePayLot", err)
		return
	}

	_ = writeJSON(w, http.StatusOK, toLotResponse(paid))
}

func (s *Server) handleCancelLot(w http.ResponseWriter, r *http.Request) {
	var req cancelLotRequest
	if err := readJSON(w, r, &req, true); err != nil {
		_ = writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.validation().Struct(req); err != nil {
		_ = writeJSON(w, http.StatusBadRequest, &errorResponse{Error: "validation failed", Fields: validationFields(err)})
		return
	}

	cancelled, err := s.lots.Cancel(r.Context(), lot.CancelParams{
		LotID:   chi.URLParam(r, "id"),
		ActorID: actorID(r),
		Reason:  req.Reason,
	})
	if err != nil {
		s.writeServiceError(w, r, "handleCancelLot", err)
		return
	}

	_ = writeJSON(w, http.StatusOK, toLotResponse(cancelled))
}

func (s *Server) handleDeleteLot(w http.ResponseWriter, r *http.Request) {
	err := s.lots.Delete(r.Context(), lot.DeleteParams{
		LotID:   chi.URLParam(r, "id"),
		ActorID: actorID(r),
	})
	if err != nil {
		s.writeServiceError(w, r, "handleDeleteLot", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// detailFor loads the lot and hides other inspectors' lots from non-admins.
func (s *Server) detailFor(r *http.Request) (lot.Detail, error) {
	d, err := s.lots.GetDetail(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		return lot.Detail{}, err
	}
	if scopeInspector(r, d.Lot.InspectorID) != d.Lot.InspectorID {
		return lot.Detail{}, lot.ErrLotNotFound
	}
	return d, nil
}

func (s *Server) handleGetLot(w http.ResponseWriter, r *http.Request) {
	d, err := s.detailFor(r)
	if err != nil {
		s.writeServiceError(w, r, "handleGetLot", err)
		return
	}

	resp := lotDetailResponse{lotResponse: toLotResponse(d.Lot), Inspections: make([]lotItemResponse, 0, len(d.Items))}
	for _, it := range d.Items {
		var owed *string
		if it.CurrentOwed.Valid {
			v := it.CurrentOwed.Decimal.StringFixed(2)
			owed = &v
		}
		resp.Inspections = append(resp.Inspections, lotItemResponse{
			InspectionID:     it.InspectionID,
			VesselName:       it.VesselName,
			CompletionDate:   formatDatePtr(it.CompletionDate),
			ValueAtInclusion: it.ValueAtInclusion.StringFixed(2),
			CurrentOwed:      owed,
			CurrentStatus:    string(it.CurrentStatus),
		})
	}
	_ = writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleExportLot(w http.ResponseWriter, r *http.Request) {
	d, err := s.detailFor(r)
	if err != nil {
		s.writeServiceError(w, r, "handleExportLot", err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=lot-%s.xlsx", d.Lot.ID))
	if err := lot.WriteStatement(w, d); err != nil {
		s.writeServiceError(w, r, "handleExportLot", err)
	}
}

func (s *Server) handleListLots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	pageSize, _ := strconv.Atoi(q.Get("page_size"))
	inspectorID, err := inspectorQuery(r)
	if err != nil {
		_ = writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.lots.List(r.Context(), lot.ListFilter{
		InspectorID: scopeInspector(r, inspectorID),
		Status:      lot.Status(q.Get("status")),
		Page:        page,
		PageSize:    pageSize,
	})
	if err != nil {
		s.writeServiceError(w, r, "handleListLots", err)
		return
	}

	resp := lotListResponse{Items: make([]lotResponse, 0, len(result.Items)), Total: result.Total, Page: result.Page, PageSize: result.PageSize}
	for _, l := range result.Items {
		resp.Items = append(resp.Items, toLotResponse(l))
	}
	_ = writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	start, end, err := parsePeriodQuery(r, false)
	if err != nil {
		_ = writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	summary, err := s.lots.SummarizeByStatus(r.Context(), lot.SummaryFilter{PeriodStart: start, PeriodEnd: end})
	if err != nil {
		s.writeServiceError(w, r, "handleSummary", err)
		return
	}

	_ = writeJSON(w, http.StatusOK, summaryResponse{
		Pending: statusTotalsResponse{Count: summary.Pending.Count, Total: summary.Pending.Total.StringFixed(2)},
		Paid:    statusTotalsResponse{Count: summary.Paid.Count, Total: summary.Paid.Total.StringFixed(2)},
	})
}

func (s *Server) handleEligibleInspections(w http.ResponseWriter, r *http.Request) {
	start, end, err := parsePeriodQuery(r, true)
	if err != nil {
		_ = writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	inspectorID, err := inspectorQuery(r)
	if err != nil {
		_ = writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	items, err := s.lots.ListEligible(r.Context(), inspection.EligibilityFilter{
		InspectorID: scopeInspector(r, inspectorID),
		PeriodStart: *start,
		PeriodEnd:   *end,
	})
	if err != nil {
		s.writeServiceError(w, r, "handleEligibleInspections", err)
		return
	}

	resp := make([]eligibleInspectionResponse, 0, len(items))
	for _, in := range items {
		resp = append(resp, eligibleInspectionResponse{
			ID:             in.ID,
			InspectorID:    in.InspectorID,
			VesselName:     in.VesselName,
			CompletionDate: formatDatePtr(in.CompletionDate),
			OwedAmount:     in.OwedAmount.Decimal.StringFixed(2),
		})
	}
	_ = writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleEligibleInspectors(w http.ResponseWriter, r *http.Request) {
	start, end, err := parsePeriodQuery(r, true)
	if err != nil {
		_ = writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	workloads, err := s.workloads.ListWorkloads(r.Context(), inspector.Period{Start: *start, End: *end})
	if err != nil {
		s.writeServiceError(w, r, "handleEligibleInspectors", err)
		return
	}

	caller, _ := auth.FromContext(r.Context())
	resp := make([]workloadResponse, 0, len(workloads))
	for _, wl := range workloads {
		if !caller.IsAdmin() && wl.InspectorID != caller.UserID {
			continue
		}
		resp = append(resp, workloadResponse{
			InspectorID:     wl.InspectorID,
			FullName:        wl.FullName,
			EligibleCount:   wl.EligibleCount,
			EligibleTotal:   wl.EligibleTotal.StringFixed(2),
			OldestCompleted: wl.OldestCompleted.Format(time.DateOnly),
		})
	}
	_ = writeJSON(w, http.StatusOK, resp)
}
