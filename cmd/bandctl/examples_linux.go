//go:build linux

package main

const (
	exampleDeviceAddress = "c8:0f:10:aa:bb:cc"
	deviceAddressNote    = "Device address format: MAC address, ':' or '-' separated\n  Use 'bandctl scan' to discover bands"
)
