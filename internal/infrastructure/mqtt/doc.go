// Package mqtt connects lumid to the MQTT broker that carries chain blocks
// in and receipts, device state and keeper submissions out.
//
//	chain bridge -> lumi/chain/blocks -> lumid -> lumi/receipts/{height}
//	                                           -> lumi/state/device/{id} (retained)
//	keeper       <- lumi/chain/submit <- lumid
//
// The client reconnects with exponential backoff and restores its
// subscriptions. A retained offline status is registered as the LWT on
// lumi/system/status and replaced with an online status on every connect.
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//	err = client.Subscribe(mqtt.Topics{}.ChainBlocks(), 1, handler)
//
// Broker-backed tests carry the integration build tag:
//
//	go test -tags=integration ./internal/infrastructure/mqtt/...
package mqtt
