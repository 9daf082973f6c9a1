package params

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/srg/perbench/internal/coordinator"
)

// Transport writes a characteristic and waits for its completion.
// *connection.Machine implements it.
type Transport interface {
	WriteCharacteristic(ctx context.Context, service, characteristic string, value []byte) (coordinator.Result, error)
}

// Writer sends parameter messages to the connected peripheral.
type Writer struct {
	transport Transport
	logger    *logrus.Logger
}

func NewWriter(transport Transport, logger *logrus.Logger) *Writer {
	if logger == nil {
		logger = logrus.New()
	}
	return &Writer{transport: transport, logger: logger}
}

// Write encodes p and writes it to the parameter characteristic. A
// non-success GATT status is reported in the result, not as an error.
func (w *Writer) Write(ctx context.Context, p Params) (coordinator.Result, error) {
	msg, err := p.Encode()
	if err != nil {
		return coordinator.Result{}, fmt.Errorf("invalid parameters: %w", err)
	}
	value, err := p.Bytes()
	if err != nil {
		return coordinator.Result{}, err
	}

	logger := w.logger.WithFields(logrus.Fields{
		"mode":    p.Mode.String(),
		"message": msg,
	})
	logger.Info("Writing test parameters")

	res, err := w.transport.WriteCharacteristic(ctx, ServiceUUID, CharacteristicUUID, value)
	if err != nil {
		logger.WithField("error", err).Error("Parameter write failed")
		return res, err
	}
	if !res.OK() {
		logger.WithField("status", res.Status.String()).Warn("Peripheral rejected parameters")
	}
	return res, nil
}
