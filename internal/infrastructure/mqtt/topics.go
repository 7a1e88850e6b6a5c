package mqtt

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nerrad567/lumi-core/internal/ledger"
)

// TopicPrefix is the root of every lumid topic.
const TopicPrefix = "lumi"

// Topics builds lumid topic names.
//
//	Topics{}.ChainBlocks()   // lumi/chain/blocks
//	Topics{}.Receipt(42)     // lumi/receipts/42
//	Topics{}.DeviceState(7)  // lumi/state/device/7
type Topics struct{}

// ChainBlocks is where the chain bridge publishes ordered blocks.
func (Topics) ChainBlocks() string {
	return TopicPrefix + "/chain/blocks"
}

// ChainSubmit is where lumid publishes transactions it wants included in
// a future block (keeper execute-schedule requests).
func (Topics) ChainSubmit() string {
	return TopicPrefix + "/chain/submit"
}

// Receipt is the topic carrying the receipts of one block.
func (Topics) Receipt(height ledger.Height) string {
	return fmt.Sprintf("%s/receipts/%d", TopicPrefix, height)
}

// DeviceState is the retained topic holding a device's latest state.
func (Topics) DeviceState(id uint64) string {
	return fmt.Sprintf("%s/state/device/%d", TopicPrefix, id)
}

// SystemStatus carries lumid's online/offline status and its LWT.
func (Topics) SystemStatus() string {
	return TopicPrefix + "/system/status"
}

// AllReceipts matches every receipt topic.
func (Topics) AllReceipts() string {
	return TopicPrefix + "/receipts/+"
}

// AllDeviceStates matches every retained device state topic.
func (Topics) AllDeviceStates() string {
	return TopicPrefix + "/state/device/+"
}

// ParseDeviceState extracts the device id from a DeviceState topic.
func (Topics) ParseDeviceState(topic string) (uint64, bool) {
	rest, ok := strings.CutPrefix(topic, TopicPrefix+"/state/device/")
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseUint(rest, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// ParseReceipt extracts the block height from a Receipt topic.
func (Topics) ParseReceipt(topic string) (ledger.Height, bool) {
	rest, ok := strings.CutPrefix(topic, TopicPrefix+"/receipts/")
	if !ok {
		return 0, false
	}
	h, err := strconv.ParseUint(rest, 10, 64)
	if err != nil {
		return 0, false
	}
	return ledger.Height(h), true
}
