//go:build darwin

package main

const (
	exampleDeviceAddress = "6E4E8B56-1C2A-4A3F-9B4E-0123456789AB"
	deviceAddressNote    = "Device address format: CoreBluetooth peripheral UUID\n  Use 'bandctl scan' to discover bands"
)
