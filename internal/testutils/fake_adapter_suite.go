package testutils

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"

	"github.com/Cirius1792/split-keeb-battery/internal/device"
	"github.com/Cirius1792/split-keeb-battery/internal/devicefactory"
)

// FakeScanningDevice replays canned advertisements to the scan handler,
// then holds the scan window open until the context ends, like a real
// adapter does.
type FakeScanningDevice struct {
	Advertisements []device.Advertisement
	ScanErr        error // returned immediately when set
}

func (d *FakeScanningDevice) Scan(ctx context.Context, _ bool, handler func(device.Advertisement)) error {
	if d.ScanErr != nil {
		return d.ScanErr
	}
	for _, adv := range d.Advertisements {
		if ctx.Err() != nil {
			break
		}
		handler(adv)
	}
	<-ctx.Done()
	return ctx.Err()
}

// FakeAdapterSuite is a testify suite that swaps the package device
// factory for a fake adapter replaying configured advertisements, and
// restores the real one after each test.
//
// Usage:
//
//	type ScannerSuite struct {
//	    testutils.FakeAdapterSuite
//	}
//
//	func (s *ScannerSuite) SetupTest() {
//	    s.Advertisements = []device.Advertisement{
//	        testutils.NewAdvertisementBuilder().WithName("Corne").Build(),
//	    }
//	    s.FakeAdapterSuite.SetupTest() // call parent last to apply
//	}
type FakeAdapterSuite struct {
	suite.Suite

	Helper *TestHelper
	Logger *logrus.Logger

	// Advertisements is replayed by the fake adapter on every scan.
	Advertisements []device.Advertisement
	// ScanErr makes every scan fail when set.
	ScanErr error

	originalFactory func() (device.ScanningDevice, error)
}

func (s *FakeAdapterSuite) SetupSuite() {
	s.Helper = NewTestHelper(s.T())
	s.Logger = s.Helper.Logger
}

func (s *FakeAdapterSuite) SetupTest() {
	s.originalFactory = devicefactory.DeviceFactory
	devicefactory.DeviceFactory = func() (device.ScanningDevice, error) {
		return &FakeScanningDevice{
			Advertisements: s.Advertisements,
			ScanErr:        s.ScanErr,
		}, nil
	}
}

func (s *FakeAdapterSuite) TearDownTest() {
	if s.originalFactory != nil {
		devicefactory.DeviceFactory = s.originalFactory
	}
	s.Advertisements = nil
	s.ScanErr = nil
}
