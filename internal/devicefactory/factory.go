package devicefactory

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/srg/perbench/internal/device"
	goble "github.com/srg/perbench/internal/device/go-ble"
	"github.com/srg/perbench/internal/device/tinygo"
	"github.com/srg/perbench/pkg/config"
)

// RadioFactory creates the device.Radio for a backend name.
// This is a variable so that it can be overridden in tests.
var RadioFactory = func(backend string, logger *logrus.Logger) (device.Radio, error) {
	switch backend {
	case config.BackendGoBLE, "":
		return goble.NewRadio(logger), nil
	case config.BackendTinyGo:
		return tinygo.NewRadio(logger), nil
	default:
		return nil, fmt.Errorf("unknown radio backend %q: %w", backend, device.ErrUnsupported)
	}
}

// NewRadio creates the radio selected by cfg.Backend.
func NewRadio(cfg *config.Config, logger *logrus.Logger) (device.Radio, error) {
	return RadioFactory(cfg.Backend, logger)
}
