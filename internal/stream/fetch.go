package stream

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/bandlink/internal/codec"
	"github.com/srg/bandlink/internal/protocol"
	"github.com/srg/bandlink/internal/router"
)

// FetchOptions tunes activity history retrieval
type FetchOptions struct {
	PollInterval time.Duration `default:"500ms"`
	// IdleTimeout fails the fetch when no notification arrives for this long
	IdleTimeout time.Duration `default:"30s"`
	// RetriggerDelay is the pause before asking for the next batch
	RetriggerDelay time.Duration `default:"1s"`
	// UTCOffsetQuarters goes into every trigger packet
	UTCOffsetQuarters int8
}

// ActivityFunc receives one record and the minute it belongs to
type ActivityFunc func(ts time.Time, rec codec.ActivityRecord)

// Fetcher retrieves activity history
type Fetcher struct {
	w      waiter
	logger *logrus.Logger
	opts   FetchOptions
}

// NewFetcher creates a history fetcher
func NewFetcher(transport protocol.Transport, r *router.Router, opts FetchOptions, logger *logrus.Logger) *Fetcher {
	defaults.SetDefaults(&opts)
	return &Fetcher{
		w:      waiter{transport: transport, router: r},
		logger: logger,
		opts:   opts,
	}
}

// fetchRun is the cursor state of one Fetch call
type fetchRun struct {
	start, end time.Time
	fn         ActivityFunc

	started   bool
	cursor    time.Time
	delivered int
	received  int

	lastControl   []byte
	sinceControl  int
	finished      bool
	retriggerFrom time.Time
}

// Fetch delivers every record with a timestamp in [start, end) to fn and
// returns how many were delivered. "No data" from the band is an empty
// result, not an error.
func (f *Fetcher) Fetch(ctx context.Context, start, end time.Time, fn ActivityFunc) (int, error) {
	if !start.Before(end) {
		return 0, fmt.Errorf("fetch range is empty: start %s is not before end %s", start, end)
	}

	run := &fetchRun{start: start, end: end, fn: fn}
	log := f.logger
	if log != nil {
		log.WithFields(logrus.Fields{
			"start": start.Format(time.RFC3339),
			"end":   end.Format(time.RFC3339),
		}).Info("Fetching activity history")
	}

	categories := []router.Category{router.CategoryFetchControl, router.CategoryActivity}
	f.w.router.Reset(categories...)

	for _, ch := range []protocol.Channel{protocol.ChannelFetch, protocol.ChannelActivityData} {
		if err := f.w.transport.EnableNotifications(ch); err != nil {
			return 0, protocol.NormalizeError("enable "+ch.String(), err)
		}
	}
	defer func() {
		for _, ch := range []protocol.Channel{protocol.ChannelActivityData, protocol.ChannelFetch} {
			if err := f.w.transport.DisableNotifications(ch); err != nil && log != nil {
				log.WithFields(logrus.Fields{"channel": ch.String(), "error": err}).Debug("Failed to disable fetch notifications")
			}
		}
		f.w.router.Reset(categories...)
	}()

	if err := f.trigger(start); err != nil {
		return 0, err
	}

	lastActivity := time.Now()
	for !run.finished {
		if done, err := f.w.check(ctx, nil); done {
			return run.delivered, err
		}
		if idle := time.Since(lastActivity); idle >= f.opts.IdleTimeout {
			return run.delivered, &protocol.Error{
				Kind: protocol.Timeout,
				Op:   "fetch activity",
				Msg:  fmt.Sprintf("no notification for %s", idle.Round(time.Millisecond)),
			}
		}

		if f.w.transport.WaitForEvents(f.opts.PollInterval) {
			lastActivity = time.Now()
		}

		if err := f.process(run); err != nil {
			return run.delivered, err
		}

		if !run.retriggerFrom.IsZero() {
			from := run.retriggerFrom
			run.retriggerFrom = time.Time{}
			if err := sleep(ctx, f.opts.RetriggerDelay); err != nil {
				return run.delivered, err
			}
			if err := f.trigger(from); err != nil {
				return run.delivered, err
			}
			lastActivity = time.Now()
		}
	}

	if log != nil {
		log.WithFields(logrus.Fields{
			"delivered": run.delivered,
			"received":  run.received,
		}).Info("Activity fetch finished")
	}
	return run.delivered, nil
}

// process applies queued control frames in order. Records queued before a
// batch-ending frame are consumed first so the cursor is current.
func (f *Fetcher) process(run *fetchRun) error {
	for !run.finished && run.retriggerFrom.IsZero() {
		ev, ok := f.w.router.Pop(router.CategoryFetchControl)
		if !ok {
			break
		}
		ctrl := ev.(router.FetchControl)

		if ctrl.Kind != codec.FetchStarted {
			f.consumeRecords(run)
		}

		if run.lastControl != nil && run.sinceControl == 0 && bytes.Equal(run.lastControl, ctrl.Raw) {
			if f.logger != nil {
				f.logger.WithField("control", ctrl.Kind.String()).Debug("Ignoring duplicate fetch control frame")
			}
			continue
		}
		run.lastControl = ctrl.Raw
		run.sinceControl = 0

		if err := f.applyControl(run, ctrl); err != nil {
			return err
		}
	}
	if !run.finished {
		f.consumeRecords(run)
	}
	return nil
}

func (f *Fetcher) applyControl(run *fetchRun, ctrl router.FetchControl) error {
	log := f.logger
	switch ctrl.Kind {
	case codec.FetchStarted:
		run.started = true
		run.cursor = ctrl.Start
		if log != nil {
			log.WithFields(logrus.Fields{
				"first":    ctrl.Start.Format(time.RFC3339),
				"expected": ctrl.ExpectedRecords,
			}).Debug("Fetch started")
		}
		if err := f.w.transport.Write(protocol.ChannelFetch, codec.FetchAck(), false); err != nil {
			return protocol.NormalizeError("fetch ack", err)
		}
	case codec.FetchNoData:
		if log != nil {
			log.Info("Band has no activity data for the requested range")
		}
		run.finished = true
	case codec.FetchMoreData:
		if !run.started || !run.cursor.Before(run.end) {
			run.finished = true
			return nil
		}
		run.started = false
		run.retriggerFrom = run.cursor
		if log != nil {
			log.WithField("from", run.cursor.Format(time.RFC3339)).Debug("Requesting next activity batch")
		}
	case codec.FetchNoMoreData:
		run.finished = true
	default:
		if log != nil {
			log.WithField("raw", fmt.Sprintf("% x", ctrl.Raw)).Warn("Unexpected fetch control frame")
		}
	}
	return nil
}

func (f *Fetcher) consumeRecords(run *fetchRun) {
	for {
		ev, ok := f.w.router.Pop(router.CategoryActivity)
		if !ok {
			return
		}
		if !run.started {
			if f.logger != nil {
				f.logger.Warn("Dropping activity record received before fetch start")
			}
			continue
		}
		rec := ev.(router.ActivityRecord)
		ts := run.cursor
		run.cursor = run.cursor.Add(time.Minute)
		run.received++
		run.sinceControl++
		if ts.Before(run.end) && !ts.Before(run.start) {
			run.fn(ts, rec.Record)
			run.delivered++
		}
	}
}

func (f *Fetcher) trigger(from time.Time) error {
	packet := codec.EncodeFetchTrigger(from, f.opts.UTCOffsetQuarters)
	if err := f.w.transport.Write(protocol.ChannelFetch, packet, false); err != nil {
		return protocol.NormalizeError("fetch trigger", err)
	}
	return nil
}
