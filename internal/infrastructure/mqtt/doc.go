// Package mqtt provides the doorbell's broker link.
//
// This package manages:
//   - Connecting to a single broker with client ID and optional credentials
//   - Blocking reconnect with a fixed delay and no attempt limit
//   - Announcing every connection on the status topic ("Connected to MQTT
//     server: host" the first time, "Reconnected" afterwards)
//   - Subscribing the play, volume and stop topics on every connection
//   - Last Will and Testament on the availability topic
//
// # Threading
//
// paho delivers messages on its own goroutines. The client only queues them;
// Poll hands them to the registered handler on the caller's goroutine, so
// command handling never races the main loop.
//
// # Usage
//
//	client := mqtt.New(cfg.MQTT, logger)
//	client.SetHandler(dispatcher.Dispatch)
//	defer client.Close()
//
//	for ctx.Err() == nil {
//	    if err := client.EnsureConnected(ctx); err != nil {
//	        return err
//	    }
//	    client.Poll()
//	    ...
//	}
package mqtt
