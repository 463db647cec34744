package jobs

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// NextRun computes the next delivery time of a recurring job from its
// standard five-field cron expression.
func NextRun(spec string, after time.Time) (time.Time, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression: %w", err)
	}
	return schedule.Next(after), nil
}
