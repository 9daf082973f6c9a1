//go:build !darwin

package main

const (
	exampleDeviceAddress = "C0:FF:EE:00:00:01"
	deviceAddressNote    = "Device address format: MAC address, e.g. C0:FF:EE:00:00:01\n  Use 'perbench scan' to discover devices"
)
