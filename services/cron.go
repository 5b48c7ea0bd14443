package services

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"

	"docatlas/internal/logger"
)

// CronService runs periodic maintenance jobs inside the worker process.
type CronService struct {
	scheduler *gocron.Scheduler
}

func NewCronService() *CronService {
	s := gocron.NewScheduler(time.UTC)
	s.TagsUnique()
	return &CronService{scheduler: s}
}

// ScheduleReducer refreshes the 3-D projection at the given interval. The
// layout goes stale as documents arrive and leave; a periodic full rebuild is
// cheaper than tracking deltas.
func (c *CronService) ScheduleReducer(reducer *ReducerService, interval time.Duration) error {
	_, err := c.scheduler.Every(interval).Tag("reducer-refresh").Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		if err := reducer.Run(ctx); err != nil {
			logger.Error("Scheduled reducer run failed", "error", err)
		}
	})
	return err
}

func (c *CronService) Start() {
	c.scheduler.StartAsync()
}

func (c *CronService) Stop() {
	c.scheduler.Stop()
}
