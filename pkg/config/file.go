package config

import (
	"encoding/json"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/wsprd/pkg/nco"
	"github.com/charlie0129/wsprd/pkg/utils/ptr"
	"github.com/charlie0129/wsprd/pkg/wspr"
)

var (
	defaultFileConfig = &RawFileConfig{
		PowerDbm: ptr.To(23),
		Band:     ptr.To("20m"),
		TxMode:   ptr.To(string(TxModePolling)),
		// Second 1 of every even minute: WSPR slots start one second past
		// the even minute.
		SlotSchedule:       ptr.To("1 */2 * * * *"),
		TickIntervalMicros: ptr.To(1000),
		LockThresholdPPM:   ptr.To(1.0),
		LockSamples:        ptr.To(10),
		SPIPort:            ptr.To(""),
		SPISpeedHz:         ptr.To(int64(4_000_000)),
		PPSChip:            ptr.To("gpiochip0"),
		PPSLine:            ptr.To(18),
		SetSystemClock:     ptr.To(false),
		Enabled:            ptr.To(true),
		AllowNonRootAccess: ptr.To(false),
	}
)

var _ Config = &File{}

type File struct {
	c        *RawFileConfig
	mu       *sync.RWMutex
	filepath string
}

func NewFile(configPath string) (*File, error) {
	f := &File{
		filepath: configPath,
		mu:       &sync.RWMutex{},
	}
	err := f.Load()
	if err != nil {
		return nil, err
	}

	return f, nil
}

func NewFileFromConfig(c *RawFileConfig, configPath string) *File {
	if c == nil {
		c = &RawFileConfig{}
	}

	f := &File{
		c:        c,
		mu:       &sync.RWMutex{},
		filepath: configPath,
	}

	return f
}

type RawFileConfig struct {
	Callsign           *string  `json:"callsign,omitempty"`
	Grid               *string  `json:"grid,omitempty"`
	PowerDbm           *int     `json:"powerDbm,omitempty"`
	Band               *string  `json:"band,omitempty"`
	DialFrequencyHz    *float64 `json:"dialFrequencyHz,omitempty"`
	TxMode             *string  `json:"txMode,omitempty"`
	SlotSchedule       *string  `json:"slotSchedule,omitempty"`
	TickIntervalMicros *int     `json:"tickIntervalMicros,omitempty"`
	LockThresholdPPM   *float64 `json:"lockThresholdPpm,omitempty"`
	LockSamples        *int     `json:"lockSamples,omitempty"`
	SPIPort            *string  `json:"spiPort,omitempty"`
	SPISpeedHz         *int64   `json:"spiSpeedHz,omitempty"`
	PPSChip            *string  `json:"ppsChip,omitempty"`
	PPSLine            *int     `json:"ppsLine,omitempty"`
	SetSystemClock     *bool    `json:"setSystemClock,omitempty"`
	Enabled            *bool    `json:"enabled,omitempty"`
	AllowNonRootAccess *bool    `json:"allowNonRootAccess,omitempty"`
}

// NewRawFileConfigFromConfig materializes every value, defaults included.
func NewRawFileConfigFromConfig(c Config) (*RawFileConfig, error) {
	if c == nil {
		return nil, pkgerrors.New("config is nil")
	}

	rawConfig := &RawFileConfig{
		Callsign:           ptr.To(c.Callsign()),
		Grid:               ptr.To(c.Grid()),
		PowerDbm:           ptr.To(c.PowerDbm()),
		Band:               ptr.To(c.Band()),
		DialFrequencyHz:    ptr.To(c.DialFrequencyHz()),
		TxMode:             ptr.To(string(c.TxMode())),
		SlotSchedule:       ptr.To(c.SlotSchedule()),
		TickIntervalMicros: ptr.To(int(c.TickInterval() / time.Microsecond)),
		LockThresholdPPM:   ptr.To(c.LockThresholdPPM()),
		LockSamples:        ptr.To(c.LockSamples()),
		SPIPort:            ptr.To(c.SPIPort()),
		SPISpeedHz:         ptr.To(c.SPISpeedHz()),
		PPSChip:            ptr.To(c.PPSChip()),
		PPSLine:            ptr.To(c.PPSLine()),
		SetSystemClock:     ptr.To(c.SetSystemClock()),
		Enabled:            ptr.To(c.Enabled()),
		AllowNonRootAccess: ptr.To(c.AllowNonRootAccess()),
	}

	return rawConfig, nil
}

// read runs fn under the read lock.
func (f *File) read(fn func(c *RawFileConfig)) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()
	fn(f.c)
}

func (f *File) write(fn func(c *RawFileConfig)) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f.c)
}

func (f *File) Callsign() (v string) {
	f.read(func(c *RawFileConfig) {
		v = strings.ToUpper(strings.TrimSpace(ptr.Deref(c.Callsign, "")))
	})
	return
}

func (f *File) Grid() (v string) {
	f.read(func(c *RawFileConfig) {
		v = strings.ToUpper(strings.TrimSpace(ptr.Deref(c.Grid, "")))
	})
	return
}

func (f *File) PowerDbm() (v int) {
	f.read(func(c *RawFileConfig) { v = ptr.Deref(c.PowerDbm, *defaultFileConfig.PowerDbm) })
	return
}

func (f *File) Band() (v string) {
	f.read(func(c *RawFileConfig) { v = ptr.Deref(c.Band, *defaultFileConfig.Band) })
	return
}

// DialFrequencyHz returns the configured carrier frequency of tone 0. When
// unset it is the band's dial frequency plus the middle of the audio
// window.
func (f *File) DialFrequencyHz() float64 {
	var explicit *float64
	f.read(func(c *RawFileConfig) { explicit = c.DialFrequencyHz })
	if explicit != nil {
		return *explicit
	}

	b, err := nco.BandByName(f.Band())
	if err != nil {
		return 0
	}
	return float64(b.DialHz) + (nco.AudioOffsetMinHz+nco.AudioOffsetMaxHz)/2
}

func (f *File) TxMode() (v TxMode) {
	f.read(func(c *RawFileConfig) { v = TxMode(ptr.Deref(c.TxMode, *defaultFileConfig.TxMode)) })
	return
}

func (f *File) SlotSchedule() (v string) {
	f.read(func(c *RawFileConfig) { v = ptr.Deref(c.SlotSchedule, *defaultFileConfig.SlotSchedule) })
	return
}

func (f *File) TickInterval() (v time.Duration) {
	f.read(func(c *RawFileConfig) {
		v = time.Duration(ptr.Deref(c.TickIntervalMicros, *defaultFileConfig.TickIntervalMicros)) * time.Microsecond
	})
	return
}

func (f *File) LockThresholdPPM() (v float64) {
	f.read(func(c *RawFileConfig) { v = ptr.Deref(c.LockThresholdPPM, *defaultFileConfig.LockThresholdPPM) })
	return
}

func (f *File) LockSamples() (v int) {
	f.read(func(c *RawFileConfig) { v = ptr.Deref(c.LockSamples, *defaultFileConfig.LockSamples) })
	return
}

func (f *File) SPIPort() (v string) {
	f.read(func(c *RawFileConfig) { v = ptr.Deref(c.SPIPort, *defaultFileConfig.SPIPort) })
	return
}

func (f *File) SPISpeedHz() (v int64) {
	f.read(func(c *RawFileConfig) { v = ptr.Deref(c.SPISpeedHz, *defaultFileConfig.SPISpeedHz) })
	return
}

func (f *File) PPSChip() (v string) {
	f.read(func(c *RawFileConfig) { v = ptr.Deref(c.PPSChip, *defaultFileConfig.PPSChip) })
	return
}

func (f *File) PPSLine() (v int) {
	f.read(func(c *RawFileConfig) { v = ptr.Deref(c.PPSLine, *defaultFileConfig.PPSLine) })
	return
}

func (f *File) SetSystemClock() (v bool) {
	f.read(func(c *RawFileConfig) { v = ptr.Deref(c.SetSystemClock, *defaultFileConfig.SetSystemClock) })
	return
}

func (f *File) Enabled() (v bool) {
	f.read(func(c *RawFileConfig) { v = ptr.Deref(c.Enabled, *defaultFileConfig.Enabled) })
	return
}

func (f *File) AllowNonRootAccess() (v bool) {
	f.read(func(c *RawFileConfig) { v = ptr.Deref(c.AllowNonRootAccess, *defaultFileConfig.AllowNonRootAccess) })
	return
}

func (f *File) SetCallsign(s string) {
	f.write(func(c *RawFileConfig) { c.Callsign = &s })
}

func (f *File) SetGrid(s string) {
	f.write(func(c *RawFileConfig) { c.Grid = &s })
}

func (f *File) SetPowerDbm(i int) {
	if i < wspr.MinPowerDbm || i > wspr.MaxPowerDbm {
		panic("power must be between 0 and 60 dBm")
	}

	f.write(func(c *RawFileConfig) { c.PowerDbm = &i })
}

func (f *File) SetDialFrequencyHz(hz float64) {
	f.write(func(c *RawFileConfig) { c.DialFrequencyHz = &hz })
}

func (f *File) SetEnabled(b bool) {
	f.write(func(c *RawFileConfig) { c.Enabled = &b })
}

func (f *File) SetAllowNonRootAccess(b bool) {
	f.write(func(c *RawFileConfig) { c.AllowNonRootAccess = &b })
}

// Validate rejects values that would make every slot fail. An empty grid is
// allowed when a GNSS fix is expected to provide one.
func (f *File) Validate() error {
	if _, err := wspr.NormalizeCallsign(f.Callsign()); err != nil {
		return pkgerrors.Wrapf(err, "invalid callsign in %s", f.filepath)
	}

	if f.Grid() != "" {
		if _, err := wspr.Encode(f.Callsign(), f.Grid(), f.PowerDbm()); err != nil {
			return pkgerrors.Wrapf(err, "invalid message in %s", f.filepath)
		}
	}

	if p := f.PowerDbm(); p < wspr.MinPowerDbm || p > wspr.MaxPowerDbm {
		return pkgerrors.Wrapf(wspr.ErrInvalidPower, "powerDbm %d", p)
	}

	hz := f.DialFrequencyHz()
	if hz <= 0 || hz >= nco.MaxFrequencyHz(1.0) {
		return pkgerrors.Errorf("dial frequency %.0f Hz is out of range (band %q)", hz, f.Band())
	}

	switch f.TxMode() {
	case TxModePolling, TxModeBlocking:
	default:
		return pkgerrors.Errorf("unknown txMode %q", f.TxMode())
	}

	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(f.SlotSchedule()); err != nil {
		return pkgerrors.Wrapf(err, "invalid slotSchedule %q", f.SlotSchedule())
	}

	if f.TickInterval() <= 0 {
		return pkgerrors.New("tickIntervalMicros must be positive")
	}
	if f.LockThresholdPPM() <= 0 || f.LockSamples() <= 0 {
		return pkgerrors.New("lockThresholdPpm and lockSamples must be positive")
	}

	return nil
}

func (f *File) Load() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	fp, err := os.Open(f.filepath)
	if err != nil {
		if os.IsNotExist(err) {
			// If the file does not exist, return the empty config.
			// Do not make f.c a nil.
			f.c = &RawFileConfig{}
			return nil
		}
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	// Since we want to tell if the file is empty, using json.Decoder will
	// not work.
	b, err := io.ReadAll(fp)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to read file %s", f.filepath)
	}

	if strings.TrimSpace(string(b)) == "" {
		f.c = &RawFileConfig{}
		return nil
	}

	conf := RawFileConfig{}
	err = json.Unmarshal(b, &conf)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to unmarshal config from file %s", f.filepath)
	}
	f.c = &conf

	return nil
}

func (f *File) Reload() error {
	next := &File{filepath: f.filepath, mu: &sync.RWMutex{}}
	if err := next.Load(); err != nil {
		return err
	}
	if err := next.Validate(); err != nil {
		return err
	}

	f.mu.Lock()
	f.c = next.c
	f.mu.Unlock()

	return nil
}

func (f *File) Save() error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c == nil {
		return pkgerrors.New("config is nil")
	}

	fp, err := os.OpenFile(f.filepath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	enc := json.NewEncoder(fp)
	enc.SetIndent("", "  ")
	err = enc.Encode(f.c)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to encode config to file %s", f.filepath)
	}

	return nil
}

func (f *File) LogrusFields() logrus.Fields {
	if f.c == nil {
		panic("config is nil")
	}

	return logrus.Fields{
		"callsign":         f.Callsign(),
		"grid":             f.Grid(),
		"powerDbm":         f.PowerDbm(),
		"band":             f.Band(),
		"dialFrequencyHz":  f.DialFrequencyHz(),
		"txMode":           f.TxMode(),
		"slotSchedule":     f.SlotSchedule(),
		"tickInterval":     f.TickInterval(),
		"lockThresholdPpm": f.LockThresholdPPM(),
		"lockSamples":      f.LockSamples(),
		"spiPort":          f.SPIPort(),
		"ppsChip":          f.PPSChip(),
		"ppsLine":          f.PPSLine(),
		"setSystemClock":   f.SetSystemClock(),
		"enabled":          f.Enabled(),
	}
}
