package main

import (
	"context"
	"sync"

	"pointsledger/internal/ledger"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

type SweepJob struct {
	Ledger *ledger.Ledger
	Log    logrus.FieldLogger

	running sync.Mutex
}

func NewSweepJob(l *ledger.Ledger, log logrus.FieldLogger) *SweepJob {
	return &SweepJob{
		Ledger: l,
		Log:    log,
	}
}

func (j *SweepJob) Start(cronRunner *cron.Cron, schedule string) error {
	_, err := cronRunner.AddFunc(schedule, j.runScheduledTask)
	return err
}

// runScheduledTask skips a tick while the previous sweep is still going.
func (j *SweepJob) runScheduledTask() {
	if !j.running.TryLock() {
		j.Log.Warn("previous sweep still running, skipping")
		return
	}
	defer j.running.Unlock()

	expired, err := j.Ledger.SweepAll(context.Background())
	if err != nil {
		j.Log.WithError(err).Error("sweep expired points")
		return
	}
	j.Log.WithField("expired", expired).Info("sweep finished")
}
