package signals

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ispfinder/ispfinder/internal/models"
)

const (
	degradedBelow = 60.0
	outageBelow   = 40.0
)

// StatusService derives ISP status from coverage until ISPs expose status
// feeds of their own.
type StatusService struct {
	isps     []models.ISP
	logger   *slog.Logger
	recorder Recorder
	now      func() time.Time
}

// NewStatusService creates a status service over the catalog ISPs.
func NewStatusService(isps []models.ISP, logger *slog.Logger, recorder Recorder) *StatusService {
	return &StatusService{
		isps:     isps,
		logger:   logger,
		recorder: recorderOrNop(recorder),
		now:      time.Now,
	}
}

// FetchIspStatusForCity returns the status of every ISP covering cityID, in
// catalog order. ISPs without coverage in the city are left out.
func (s *StatusService) FetchIspStatusForCity(ctx context.Context, cityID string) ([]models.IspStatus, error) {
	if err := ctx.Err(); err != nil {
		s.recorder.ObserveFetch("status", outcomeError)
		return nil, fmt.Errorf("fetch status for %s: %w", cityID, err)
	}

	now := s.now().UTC()
	statuses := make([]models.IspStatus, 0)
	for i := range s.isps {
		isp := &s.isps[i]
		coverage, ok := isp.CoverageFor(cityID)
		if !ok {
			continue
		}
		statuses = append(statuses, statusFor(isp, coverage.Percentage, now))
	}

	s.recorder.ObserveFetch("status", outcomeOK)
	s.logger.Debug("isp status fetched", "city_id", cityID, "count", len(statuses))
	return statuses, nil
}

func statusFor(isp *models.ISP, coverage float64, now time.Time) models.IspStatus {
	status := models.IspStatus{
		ISPID:       isp.ID,
		ISPName:     isp.Name,
		Status:      models.StatusOperational,
		Message:     "All systems operational",
		LastUpdated: now,
	}

	switch {
	case coverage < outageBelow:
		status.Status = models.StatusOutage
		status.Message = "Partial outage reported. Technicians are investigating."
		status.Incidents = []models.Incident{{
			ID:        isp.ID + "-outage",
			Title:     "Regional connectivity issue",
			Severity:  models.SeverityHigh,
			StartedAt: now.Add(-30 * time.Minute),
		}}
	case coverage < degradedBelow:
		status.Status = models.StatusDegraded
		status.Message = "Service may be limited in some neighborhoods."
		status.Incidents = []models.Incident{{
			ID:        isp.ID + "-maint",
			Title:     "Planned maintenance",
			Severity:  models.SeverityMedium,
			StartedAt: now.Add(-time.Hour),
		}}
	}
	return status
}
