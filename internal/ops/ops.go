package ops

import (
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/ksred/advisor-engine/internal/monitor"
	"github.com/ksred/advisor-engine/internal/queue"
	"github.com/ksred/advisor-engine/internal/report"
	"github.com/ksred/advisor-engine/internal/types"
	"github.com/ksred/advisor-engine/pkg/response"
)

// Service exposes the engine's diagnostic trail (queues, error ledger, run
// reports) to operational tooling. Read-only; it mutates nothing.
type Service struct {
	queues  *queue.Database
	ledger  *monitor.Database
	reports *report.Database
}

// NewService creates the ops service over the shared database connection.
func NewService(gormDB *gorm.DB) *Service {
	return &Service{
		queues:  queue.NewDatabase(gormDB),
		ledger:  monitor.NewDatabase(gormDB),
		reports: report.NewDatabase(gormDB),
	}
}

// Router builds the ops API.
func (s *Service) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		response.Success(c, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")
	{
		v1.GET("/queues", s.listQueuesHandler())
		v1.GET("/errors", s.listErrorsHandler())
		v1.GET("/reports/:queue_id", s.listReportsHandler())
	}
	return router
}

func (s *Service) listQueuesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		date := c.Query("date")
		if date == "" {
			date = types.TradeDate(time.Now())
		}

		queues, err := s.queues.ListByDate(date)
		response.Handle(c, queues, err)
	}
}

func (s *Service) listErrorsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		live, err := s.ledger.GetLiveErrors(c.Query("account"))
		response.Handle(c, live, err)
	}
}

func (s *Service) listReportsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		queueID := c.Param("queue_id")
		if queueID == "" {
			response.BadRequest(c, "queue ID is required")
			return
		}

		reports, err := s.reports.GetReportsByQueueID(queueID)
		response.Handle(c, reports, err)
	}
}
