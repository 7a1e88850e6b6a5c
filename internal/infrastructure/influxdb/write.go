package influxdb

import (
	"context"
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/lumi-core/internal/device"
	"github.com/nerrad567/lumi-core/internal/dispatcher"
	"github.com/nerrad567/lumi-core/internal/ledger"
)

// Measurement names.
const (
	MeasurementOperation   = "ledger_operation"
	MeasurementDeviceState = "device_state"
)

// WriteOperation records one journaled operation. Tags are low cardinality
// (op name, result code); caller and height are fields.
func (c *Client) WriteOperation(e dispatcher.Entry) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(operationPoint(e))
}

// WriteDeviceState records a device's state after a committed operation.
func (c *Client) WriteDeviceState(d device.Device, height ledger.Height, at time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(deviceStatePoint(d, height, at))
}

// OnReceipt implements dispatcher.Observer: one operation point plus one
// device_state point per changed device.
func (c *Client) OnReceipt(_ context.Context, r dispatcher.Receipt) {
	c.WriteOperation(r.Entry)
	for _, d := range r.Devices {
		c.WriteDeviceState(d, r.Height, r.CreatedAt)
	}
}

func operationPoint(e dispatcher.Entry) *write.Point {
	return write.NewPoint(MeasurementOperation,
		map[string]string{
			"op":     opTag(e.Operation),
			"code":   e.Code.String(),
			"result": outcome(e.Code),
		},
		map[string]any{
			"caller": string(e.Caller),
			"height": uint64(e.Height),
			"seq":    e.Seq,
		},
		timestamp(e.CreatedAt))
}

func deviceStatePoint(d device.Device, height ledger.Height, at time.Time) *write.Point {
	return write.NewPoint(MeasurementDeviceState,
		map[string]string{
			"device_id": strconv.FormatUint(d.ID, 10),
		},
		map[string]any{
			"owner":      string(d.Owner),
			"is_on":      d.IsOn,
			"brightness": int64(d.Brightness),
			"height":     uint64(height),
		},
		timestamp(at))
}

// unknownOpTag replaces unrecognised operation names so arbitrary strings
// from blocks cannot create new series.
const unknownOpTag = "unknown"

func opTag(op dispatcher.Operation) string {
	if !op.Known() {
		return unknownOpTag
	}
	return op.Op
}

func outcome(c ledger.Code) string {
	if c == ledger.CodeOK {
		return "accepted"
	}
	return "rejected"
}

func timestamp(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
