// Package mqtt connects the capture service to an MQTT broker.
//
// The broker is an optional side channel. Outbound, the service publishes
// request state changes, request outcomes and capturing-link security
// changes so that dashboards and recording agents can follow what is
// being captured. Inbound, device agents announce hot-plug events on the
// hardware topics and the service stops streams on removed devices.
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(client.Topics().AllHardware(), 1,
//	    func(topic string, payload []byte) error { ... })
//
// A retained status message on {prefix}/system/status reports "online"
// after every connect and "offline" on Close; the broker publishes the
// same topic as the LWT when the connection drops.
package mqtt
