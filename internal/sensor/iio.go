package sensor

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// IIO channel attributes, relative to the device directory.
const (
	attrIlluminanceInput  = "in_illuminance_input"
	attrIlluminanceRaw    = "in_illuminance_raw"
	attrIlluminanceScale  = "in_illuminance_scale"
	attrIlluminanceOffset = "in_illuminance_offset"
)

// DefaultIIOPollInterval is used when NewIIO gets a non-positive interval.
const DefaultIIOPollInterval = 250 * time.Millisecond

// IIO reads an ambient light sensor exposed through the Linux industrial
// I/O subsystem (/sys/bus/iio/devices/iio:deviceN).
//
// Polling runs only while at least one callback is registered. Every poll
// is delivered; consumers do their own rate limiting.
type IIO struct {
	device   string
	interval time.Duration
	now      func() time.Time
	reg      *registry

	mu     sync.Mutex
	stopCh chan struct{}
	logger Logger
}

// NewIIO opens the IIO device directory. It fails with ErrNoSensor when the
// device has no illuminance channel.
func NewIIO(device string, pollInterval time.Duration) (*IIO, error) {
	if !exists(filepath.Join(device, attrIlluminanceInput)) &&
		!exists(filepath.Join(device, attrIlluminanceRaw)) {
		return nil, fmt.Errorf("%w: %s", ErrNoSensor, device)
	}
	if pollInterval <= 0 {
		pollInterval = DefaultIIOPollInterval
	}
	return &IIO{
		device:   device,
		interval: pollInterval,
		now:      time.Now,
		reg:      newRegistry(),
		logger:   noopLogger{},
	}, nil
}

// SetLogger sets the logger for the source.
func (s *IIO) SetLogger(logger Logger) {
	s.mu.Lock()
	s.logger = logger
	s.mu.Unlock()
}

func (s *IIO) log() Logger {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logger
}

// ReadLux reads the illuminance once. A processed in_illuminance_input is
// preferred; otherwise (raw + offset) * scale is used.
func (s *IIO) ReadLux() (float64, error) {
	if v, err := readFloat(filepath.Join(s.device, attrIlluminanceInput)); err == nil {
		return v, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return 0, err
	}

	raw, err := readFloat(filepath.Join(s.device, attrIlluminanceRaw))
	if err != nil {
		return 0, err
	}
	scale := 1.0
	if v, err := readFloat(filepath.Join(s.device, attrIlluminanceScale)); err == nil {
		scale = v
	}
	offset := 0.0
	if v, err := readFloat(filepath.Join(s.device, attrIlluminanceOffset)); err == nil {
		offset = v
	}
	return (raw + offset) * scale, nil
}

// Register implements Source. minInterval is ignored; the configured poll
// interval applies.
func (s *IIO) Register(cb Callback, _ time.Duration) (Registration, error) {
	reg, first, err := s.reg.add(cb)
	if err != nil {
		return nil, err
	}
	if first {
		s.startPolling()
	}
	return reg, nil
}

// Unregister implements Source.
func (s *IIO) Unregister(reg Registration) {
	if s.reg.remove(reg) {
		s.stopPolling()
	}
}

// Close stops polling and rejects further registrations.
func (s *IIO) Close() error {
	s.reg.close()
	s.stopPolling()
	return nil
}

func (s *IIO) startPolling() {
	s.mu.Lock()
	if s.stopCh != nil {
		s.mu.Unlock()
		return
	}
	stopCh := make(chan struct{})
	s.stopCh = stopCh
	s.mu.Unlock()

	go s.poll(stopCh)
}

// stopPolling does not wait for the poller: it may be running on the
// poller's own goroutine, inside a callback.
func (s *IIO) stopPolling() {
	s.mu.Lock()
	if s.stopCh != nil {
		close(s.stopCh)
		s.stopCh = nil
	}
	s.mu.Unlock()
}

func (s *IIO) poll(stopCh <-chan struct{}) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sample(stopCh)
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			s.sample(stopCh)
		}
	}
}

func (s *IIO) sample(stopCh <-chan struct{}) {
	lux, err := s.ReadLux()
	if err != nil {
		s.log().Debug("reading illuminance", "device", s.device, "error", err)
		return
	}
	select {
	case <-stopCh:
		return
	default:
	}
	s.reg.deliver(Reading{Lux: lux, Timestamp: s.now()}, s.log())
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func readFloat(path string) (float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", path, err)
	}
	return v, nil
}
