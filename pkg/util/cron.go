package util

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Standard five-field format (minute, hour, day of month, month, weekday), the
// same dialect the asynq scheduler accepts.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// NextCronTime returns the first activation of cronExpr strictly after from, in loc.
func NextCronTime(cronExpr string, from time.Time, loc *time.Location) (time.Time, error) {
	schedule, err := cronParser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid cron expression: %w", err)
	}
	if loc == nil {
		loc = time.UTC
	}
	return schedule.Next(from.In(loc)), nil
}

func ValidateCronExpr(cronExpr string) error {
	if _, err := cronParser.Parse(cronExpr); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	return nil
}

// CronInterval estimates the spacing between two consecutive activations after
// from. Reminder scan tasks are deduplicated over that window.
func CronInterval(cronExpr string, from time.Time) (time.Duration, error) {
	schedule, err := cronParser.Parse(cronExpr)
	if err != nil {
		return 0, fmt.Errorf("invalid cron expression: %w", err)
	}
	first := schedule.Next(from)
	return schedule.Next(first).Sub(first), nil
}
