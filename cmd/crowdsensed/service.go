package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/visiona/crowdsense"
	"github.com/visiona/crowdsense/internal/config"
	"github.com/visiona/crowdsense/internal/emitter"
	"github.com/visiona/crowdsense/internal/event"
	"github.com/visiona/crowdsense/internal/journal"
	"github.com/visiona/crowdsense/internal/stream"
)

// service wires config -> stream intake -> detector -> emitter/journal.
type service struct {
	cfg      *config.Config
	detector *crowdsense.Detector
	emitter  *emitter.MQTTEmitter
	journal  *journal.Writer
	mailbox  *stream.Mailbox

	mu        sync.Mutex
	processed uint64
	detected  uint64

	// pendingSensitivity holds an auto-calibration recommendation until
	// the current ProcessFrame call has fully returned; listeners must
	// not mutate the detector from inside the callback chain.
	pendingSensitivity int
}

func newService(configPath string) (*service, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	slog.Info("configuration loaded",
		"instance_id", cfg.InstanceID,
		"sensitivity", cfg.Detector.Sensitivity,
		"area_threshold", cfg.Detector.DetectedAreaThreshold,
	)

	s := &service{
		cfg:      cfg,
		detector: crowdsense.New(),
		mailbox:  stream.NewMailbox(),
	}

	if err := s.detector.SetSensitivity(cfg.Detector.Sensitivity); err != nil {
		return nil, err
	}
	if err := s.detector.SetDetectedAreaThreshold(cfg.Detector.DetectedAreaThreshold); err != nil {
		return nil, err
	}

	if cfg.MQTT.Broker != "" {
		s.emitter = emitter.NewMQTTEmitter(cfg)
	}
	if cfg.Journal.Dir != "" {
		name := fmt.Sprintf("%s-%s.evt", cfg.InstanceID, time.Now().Format("20060102"))
		w, err := journal.OpenWriter(cfg.Journal.Dir, name)
		if err != nil {
			return nil, err
		}
		s.journal = w
		slog.Info("journal opened", "dir", cfg.Journal.Dir, "file", name)
	}

	s.detector.SetListeners(crowdsense.Listeners{
		OnAutoSensitivity: s.onAutoSensitivity,
	})

	return s, nil
}

// Run blocks until the stream source drains or ctx is cancelled.
func (s *service) Run(ctx context.Context) error {
	src, closeSrc, err := openSource(s.cfg.Stream.Source)
	if err != nil {
		return err
	}
	defer closeSrc()

	if s.emitter != nil {
		if err := s.emitter.Connect(ctx); err != nil {
			return fmt.Errorf("failed to connect mqtt: %w", err)
		}
	}

	if s.cfg.Detector.AutoSensitivityOnStart {
		if s.detector.StartAutoSensitivity() {
			slog.Info("auto-sensitivity calibration started")
		}
	}

	go stream.Pump(ctx, src, s.mailbox)
	go s.logStats(ctx)

	slog.Info("crowdsense service running", "source", s.cfg.Stream.Source)

	for {
		frame, ok := s.mailbox.Receive()
		if !ok {
			slog.Info("stream drained")
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}

		res := s.detector.ProcessFrame(frame.Data, nil)

		s.mu.Lock()
		s.processed++
		pending := s.pendingSensitivity
		s.pendingSensitivity = 0
		s.mu.Unlock()

		if pending > 0 {
			if err := s.detector.SetSensitivity(pending); err != nil {
				slog.Error("failed to apply recommendation", "error", err)
			} else {
				slog.Info("sensitivity updated", "sensitivity", pending)
			}
		}

		if !res.ParseOK {
			slog.Debug("frame rejected by scanner",
				"trace_id", frame.TraceID,
				"seq", frame.Seq,
			)
			continue
		}
		if res.DiffOK && res.AreaPct >= s.detector.DetectedAreaThreshold() {
			s.mu.Lock()
			s.detected++
			s.mu.Unlock()
			s.emitDetection(frame, res)
		}
	}
}

func (s *service) emitDetection(frame stream.Frame, res crowdsense.Result) {
	ev := &event.DetectionEvent{
		InstanceID:     s.cfg.InstanceID,
		TraceID:        frame.TraceID,
		Seq:            frame.Seq,
		TimestampMS:    frame.Timestamp.UnixMilli(),
		Width:          res.Width,
		Height:         res.Height,
		BlockNumX:      res.BlockNumX,
		BlockNumY:      res.BlockNumY,
		QFactor:        res.QFactor,
		Sensitivity:    s.detector.Sensitivity(),
		DetectedBlocks: res.DetectedBlocks,
		MaxMagnitude:   res.MaxMagnitude,
		AreaPct:        res.AreaPct,
	}

	if s.emitter != nil {
		s.emitter.PublishDetection(ev)
	}
	if s.journal != nil {
		// The journal record additionally snapshots the change map; the
		// detector owns the live buffer, so copy it out.
		live := s.detector.ChangeMap()
		ev.ChangeMap = make([]int, len(live))
		copy(ev.ChangeMap, live)
		if err := s.journal.Append(ev); err != nil {
			slog.Error("journal append failed", "error", err)
		}
	}
}

func (s *service) onAutoSensitivity(userSensitivity int) {
	if userSensitivity > 0 {
		slog.Info("auto-sensitivity recommendation", "sensitivity", userSensitivity)
		s.mu.Lock()
		s.pendingSensitivity = userSensitivity
		s.mu.Unlock()
	} else {
		slog.Warn("auto-sensitivity calibration failed")
	}

	if s.emitter != nil {
		s.emitter.PublishAutoSensitivity(&event.AutoSensitivityEvent{
			InstanceID:  s.cfg.InstanceID,
			TimestampMS: time.Now().UnixMilli(),
			Sensitivity: userSensitivity,
		})
	}
}

func (s *service) logStats(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(s.cfg.Stream.StatsIntervalS) * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			processed, detected := s.processed, s.detected
			s.mu.Unlock()
			slog.Info("stats",
				"processed", processed,
				"detected", detected,
				"dropped", s.mailbox.Drops(),
			)
		}
	}
}

// Shutdown closes the emitter and the journal.
func (s *service) Shutdown(ctx context.Context) error {
	s.mailbox.Close()
	if s.emitter != nil {
		s.emitter.Disconnect()
	}
	if s.journal != nil {
		if err := s.journal.Close(); err != nil {
			return err
		}
	}
	return nil
}

func openSource(source string) (f *os.File, closeFn func(), err error) {
	if source == "-" {
		return os.Stdin, func() {}, nil
	}
	file, err := os.Open(source)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open stream source: %w", err)
	}
	return file, func() { file.Close() }, nil
}
