// services/scheduler.go
package services

import (
	"fmt"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// StartScheduler wires the two background cadences: the hourly periodic
// badge re-evaluation and the midnight daily-quest rollover. The returned
// scheduler is owned by main and shut down on process exit.
func StartScheduler(badges *BadgeService, progress *ProgressService) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	// Every hour: re-evaluate leader-style badges
	if _, err := sched.NewJob(
		gocron.DurationJob(1*time.Hour),
		gocron.NewTask(func() {
			badges.CheckPeriodicBadges()
		}),
	); err != nil {
		return nil, fmt.Errorf("failed to schedule periodic badge check: %w", err)
	}

	// Every day at midnight: materialize fresh daily quests
	if _, err := sched.NewJob(
		gocron.CronJob("0 0 * * *", false),
		gocron.NewTask(func() {
			progress.InitializeDailyQuestsForAllUsers(time.Now())
		}),
	); err != nil {
		return nil, fmt.Errorf("failed to schedule daily quest rollover: %w", err)
	}

	sched.Start()
	log.Println("Scheduler started: periodic badge check (hourly), daily quest rollover (00:00)")
	return sched, nil
}
