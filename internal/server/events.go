package server

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Cristi184/diabetDashApp-sub000/internal/domain"
)

func (s *Server) handleSaveGlucose(c echo.Context) error {
	var r domain.GlucoseReading
	if err := c.Bind(&r); err != nil {
		return badRequest(c, "invalid glucose reading")
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	r.SubjectID = c.Param("id")
	if r.Timestamp.IsZero() {
		r.Timestamp = s.now().UTC()
	}
	if err := r.Validate(); err != nil {
		return respondError(c, err)
	}
	if err := s.events.SaveGlucoseReadings(c.Request().Context(), r); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, r)
}

func (s *Server) handleDeleteGlucose(c echo.Context) error {
	if err := s.events.DeleteGlucoseReading(c.Request().Context(), c.Param("id")); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleSaveMeal(c echo.Context) error {
	var m domain.MealEvent
	if err := c.Bind(&m); err != nil {
		return badRequest(c, "invalid meal")
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	m.SubjectID = c.Param("id")
	if m.Timestamp.IsZero() {
		m.Timestamp = s.now().UTC()
	}
	if err := m.Validate(); err != nil {
		return respondError(c, err)
	}
	if err := s.events.SaveMeal(c.Request().Context(), m); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, m)
}

func (s *Server) handleSaveTreatment(c echo.Context) error {
	var t domain.TreatmentEvent
	if err := c.Bind(&t); err != nil {
		return badRequest(c, "invalid treatment")
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.SubjectID = c.Param("id")
	if t.Timestamp.IsZero() {
		t.Timestamp = s.now().UTC()
	}
	if err := t.Validate(); err != nil {
		return respondError(c, err)
	}
	if err := s.events.SaveTreatment(c.Request().Context(), t); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, t)
}
