package main

import (
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"inspectpay/inspector"
	"inspectpay/logging"
	"inspectpay/lot"
)

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case lot.IsValidation(err), errors.Is(err, inspector.ErrInvalidPeriod):
		return http.StatusBadRequest
	case errors.Is(err, lot.ErrNoEligibleInspections), errors.Is(err, lot.ErrLotNotFound):
		return http.StatusNotFound
	case errors.Is(err, lot.ErrInvalidStateTransition), errors.Is(err, lot.ErrConcurrentAssignmentConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, fn string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logging.Error(s.log(), "api", fn, r.Method+" "+r.URL.Path, nil, err)
		_ = writeJSONError(w, status, "internal server error")
		return
	}
	s.log().WithFields(logrus.Fields{
		"module":   "api",
		"funcName": fn,
		"status":   status,
	}).Debug(err.Error())
	_ = writeJSONError(w, status, err.Error())
}
