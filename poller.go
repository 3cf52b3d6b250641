/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package recon

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jerry-enebeli/recon/model"
	"github.com/sirupsen/logrus"
)

// PollerState describes what a poller is doing right now.
type PollerState int32

const (
	PollerStateIdle PollerState = iota
	PollerStateClaiming
	PollerStateProcessing
)

func (s PollerState) String() string {
	switch s {
	case PollerStateClaiming:
		return "claiming"
	case PollerStateProcessing:
		return "processing"
	default:
		return "idle"
	}
}

// JobClaimer claims the next eligible job for a worker.
type JobClaimer interface {
	ClaimNextJob(ctx context.Context, workerID string, lockTimeout time.Duration) (*model.Job, error)
}

// JobProcessor runs a claimed job to a terminal state.
type JobProcessor interface {
	ProcessJob(ctx context.Context, job *model.Job) error
}

// Poller claims at most one job per tick and hands it to the pipeline. A worker instance
// never has more than one job in flight.
type Poller struct {
	claimer      JobClaimer
	processor    JobProcessor
	workerID     string
	lockTimeout  time.Duration
	pollInterval time.Duration

	state   atomic.Int32
	busy    atomic.Bool
	wakeCh  chan struct{}
	stopCh  chan struct{}
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

// NewPoller creates a poller that claims jobs from the Recon datasource and processes
// them with its pipeline.
func NewPoller(r *Recon, pollInterval time.Duration) *Poller {
	return newPoller(r.datasource, r, r.workerID, r.lockTimeout, pollInterval)
}

func newPoller(claimer JobClaimer, processor JobProcessor, workerID string, lockTimeout, pollInterval time.Duration) *Poller {
	return &Poller{
		claimer:      claimer,
		processor:    processor,
		workerID:     workerID,
		lockTimeout:  lockTimeout,
		pollInterval: pollInterval,
		wakeCh:       make(chan struct{}, 1),
		stopCh:       make(chan struct{}),
	}
}

// Start begins polling in the background until ctx is done or Stop is called.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.run(ctx)
	}()

	logrus.WithFields(logrus.Fields{
		"worker_id":     p.workerID,
		"poll_interval": p.pollInterval,
		"lock_timeout":  p.lockTimeout,
	}).Info("recon worker started")
}

// Stop stops accepting ticks and waits for the in-flight cycle, if any, to finish.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stopCh)
	p.mu.Unlock()

	p.wg.Wait()
	logrus.WithField("worker_id", p.workerID).Info("recon worker stopped")
}

// IsRunning returns whether the poll loop is active.
func (p *Poller) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// State returns the current poller state.
func (p *Poller) State() PollerState {
	return PollerState(p.state.Load())
}

// Wake asks the poll loop to run a cycle now instead of waiting for the next tick.
// Wakes that arrive while one is already pending are coalesced.
func (p *Poller) Wake() {
	select {
	case p.wakeCh <- struct{}{}:
	default:
	}
}

// HandleNotification wakes the poller when a job notification arrives from Postgres.
func (p *Poller) HandleNotification(channel, payload string) error {
	logrus.WithFields(logrus.Fields{
		"channel": channel,
		"job_id":  payload,
	}).Debug("job notification received")
	p.Wake()
	return nil
}

func (p *Poller) setState(s PollerState) {
	p.state.Store(int32(s))
}

func (p *Poller) run(ctx context.Context) {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			_, _ = p.Tick(ctx)
		case <-p.wakeCh:
			_, _ = p.Tick(ctx)
		}
	}
}

// Tick performs one claim-and-process cycle. If a cycle is already running the tick is
// dropped and Tick returns nil, nil. The claimed job is returned along with the outcome
// of processing it; claim errors are logged and returned.
func (p *Poller) Tick(ctx context.Context) (*model.Job, error) {
	if !p.busy.CompareAndSwap(false, true) {
		logrus.Debug("previous cycle still in flight, dropping tick")
		return nil, nil
	}
	defer func() {
		p.setState(PollerStateIdle)
		p.busy.Store(false)
	}()

	p.setState(PollerStateClaiming)
	job, err := p.claimer.ClaimNextJob(ctx, p.workerID, p.lockTimeout)
	if err != nil {
		logrus.WithField("worker_id", p.workerID).Errorf("error polling jobs: %v", err)
		return nil, err
	}
	if job == nil {
		return nil, nil
	}

	p.setState(PollerStateProcessing)
	return job, p.processor.ProcessJob(ctx, job)
}
