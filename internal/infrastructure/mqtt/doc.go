// Package mqtt provides MQTT client connectivity for the identity service.
//
// The service publishes outbound account notifications (confirmation and
// password reset requests) to the broker, where an external mailer picks
// them up:
//
//	identity ──► MQTT Broker ──► mailer
//
// Topics are rooted at a configurable prefix (default "identity"):
//
//	{prefix}/notify/{kind}   one topic per notification kind
//	{prefix}/system/status   retained online/offline status (LWT)
//
// Features:
//   - Auto-reconnect with exponential backoff
//   - Retained online status republished on every reconnect
//   - Last Will and Testament for offline detection
//
// Usage:
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return fmt.Errorf("mqtt connect: %w", err)
//	}
//	defer client.Close()
//
//	topic := client.Topics().Notify("confirmation_requested")
//	err = client.Publish(topic, payload, 1, false)
package mqtt
