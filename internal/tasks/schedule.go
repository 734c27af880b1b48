package tasks

import (
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/hugh/roombook/pkg/util"
)

// Registrar is satisfied by *asynq.Scheduler.
type Registrar interface {
	Register(cronspec string, task *asynq.Task, opts ...asynq.Option) (string, error)
}

// RegisterSchedules adds the periodic reminder scan. Scans are unique for one
// cron interval so a slow worker never has two queued.
func RegisterSchedules(s Registrar, reminderCron string) (string, error) {
	interval, err := util.CronInterval(reminderCron, time.Now())
	if err != nil {
		return "", err
	}
	id, err := s.Register(reminderCron, NewReminderScanTask(), asynq.Unique(interval))
	if err != nil {
		return "", fmt.Errorf("registering reminder scan: %w", err)
	}
	return id, nil
}
