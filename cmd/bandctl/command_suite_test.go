package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/bandlink/internal/protocol"
	"github.com/srg/bandlink/internal/testutils"
	"github.com/srg/bandlink/internal/transport/goble"
	"github.com/srg/bandlink/pkg/band"
	"github.com/srg/bandlink/pkg/config"
	"github.com/stretchr/testify/suite"
)

const testKeyHex = "000102030405060708090a0b0c0d0e0f"

// testConfig keeps every protocol wait short
const testConfig = `
log_level: error
address: "c8:0f:10:aa:bb:cc"
poll_interval: 5ms
keep_alive_interval: 50ms
fetch_timeout: 300ms
fetch_retrigger_delay: 1ms
firmware_response_timeout: 300ms
auth_timeout: 1s
`

// CommandTestSuite runs cobra commands against a simulated band
type CommandTestSuite struct {
	suite.Suite

	band       *testutils.FakeBand
	configPath string
	stdout     *bytes.Buffer
	stderr     *bytes.Buffer

	origOpen func(context.Context, *config.Config, protocol.Key, band.Options, *logrus.Logger) (*band.Session, error)
	origScan func(context.Context, goble.ScanOptions, *logrus.Logger, func(goble.Advertisement)) ([]goble.Advertisement, error)
}

func (s *CommandTestSuite) SetupSuite() {
	s.origOpen = openSession
	s.origScan = scanBands
}

func (s *CommandTestSuite) TearDownSuite() {
	openSession = s.origOpen
	scanBands = s.origScan
}

func (s *CommandTestSuite) SetupTest() {
	s.band = testutils.NewFakeBand(testutils.TestKey())
	s.band.Location = time.Local

	s.configPath = filepath.Join(s.T().TempDir(), "bandctl.yaml")
	s.Require().NoError(os.WriteFile(s.configPath, []byte(testConfig), 0o600))

	openSession = func(_ context.Context, cfg *config.Config, key protocol.Key, opts band.Options, logger *logrus.Logger) (*band.Session, error) {
		if _, err := cfg.ResolveAddress(); err != nil {
			return nil, err
		}
		return band.New(s.band, key, opts, logger)
	}

	s.resetFlags()
}

// resetFlags restores every package-level flag variable between runs
func (s *CommandTestSuite) resetFlags() {
	globalFlags.configPath = ""
	globalFlags.address = ""
	globalFlags.addressFile = ""
	globalFlags.key = ""
	globalFlags.keyFile = ""
	globalFlags.pair = false

	scanDuration, scanFormat, scanPrefixes, scanAllowList, scanAll = 0, "table", nil, nil, false
	timeSet = false
	heartRateRaw, heartRateDuration = false, 0
	activityFrom, activityTo, activityFormat = "1d", "now", "table"
	alarmID, alarmRepeat, alarmDisable, alarmNoSnooze = 0, "once", false, false
	alertTitle, alertBody = "", ""
	firmwareWatchface, trackPaused, trackPosition, trackVolume = false, false, 0, 50
	listenDuration = 0
	_ = rootCmd.PersistentFlags().Set("log-level", "")
}

// Execute runs the root command with the test config and key prepended
func (s *CommandTestSuite) Execute(args ...string) error {
	s.resetFlags()
	s.stdout = new(bytes.Buffer)
	s.stderr = new(bytes.Buffer)
	rootCmd.SetOut(s.stdout)
	rootCmd.SetErr(s.stderr)
	rootCmd.SetArgs(append([]string{"--config", s.configPath, "--key", testKeyHex}, args...))
	return rootCmd.ExecuteContext(context.Background())
}

// ExecuteNoKey runs the root command without --key
func (s *CommandTestSuite) ExecuteNoKey(args ...string) error {
	s.resetFlags()
	s.stdout = new(bytes.Buffer)
	s.stderr = new(bytes.Buffer)
	rootCmd.SetOut(s.stdout)
	rootCmd.SetErr(s.stderr)
	rootCmd.SetArgs(append([]string{"--config", s.configPath}, args...))
	return rootCmd.ExecuteContext(context.Background())
}
