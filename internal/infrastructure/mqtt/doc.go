// Package mqtt publishes hub state changes to an MQTT broker.
//
// The publisher is optional and one-directional: usbhubd announces its
// own availability and every acknowledged channel change, but never
// accepts commands over MQTT. Control stays exclusively on the HTTP
// API so the single-session guarantee cannot be bypassed.
//
// # Topics
//
//	usbhubd/system/status          "online"/"offline", retained, LWT
//	usbhubd/channel/{n}/power      "0"/"1", retained
//	usbhubd/channel/{n}/dataline   "0"/"1", retained
//	usbhubd/events                 JSON change events, not retained
//
// Retained channel topics let late subscribers read current state
// without touching the device.
package mqtt
