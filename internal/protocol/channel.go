package protocol

import "fmt"

// Channel identifies a GATT characteristic the engine talks to.
// Channels are transport-neutral; the transport maps them to handles.
type Channel uint8

const (
	ChannelUnknown Channel = iota
	ChannelAuth
	ChannelHeartRateMeasure
	ChannelHeartRateControl
	ChannelSensorControl
	ChannelSensorData
	ChannelConfiguration
	ChannelFetch
	ChannelActivityData
	ChannelBattery
	ChannelSteps
	ChannelDeviceEvent
	ChannelChunkedTransfer
	ChannelCurrentTime
	ChannelImmediateAlert
	ChannelNewAlert
	ChannelFirmwareControl
	ChannelFirmwareData
	ChannelSerialNumber
	ChannelHardwareRevision
	ChannelSoftwareRevision
)

// Service UUIDs
const (
	ServiceBand1            = "0000fee0-0000-1000-8000-00805f9b34fb"
	ServiceBand2            = "0000fee1-0000-1000-8000-00805f9b34fb"
	ServiceHeartRate        = "0000180d-0000-1000-8000-00805f9b34fb"
	ServiceImmediateAlert   = "00001802-0000-1000-8000-00805f9b34fb"
	ServiceAlertNotify      = "00001811-0000-1000-8000-00805f9b34fb"
	ServiceDeviceInfo       = "0000180a-0000-1000-8000-00805f9b34fb"
	ServiceFirmwareUpdate   = "00001530-0000-3512-2118-0009af100700"
	huamiCharacteristicBase = "-0000-3512-2118-0009af100700"
	sigCharacteristicBase   = "-0000-1000-8000-00805f9b34fb"
)

// Endpoint is the (service, characteristic) UUID pair behind a Channel
type Endpoint struct {
	Service        string
	Characteristic string
}

var endpoints = map[Channel]Endpoint{
	ChannelAuth:             {ServiceBand2, "00000009" + huamiCharacteristicBase},
	ChannelHeartRateMeasure: {ServiceHeartRate, "00002a37" + sigCharacteristicBase},
	ChannelHeartRateControl: {ServiceHeartRate, "00002a39" + sigCharacteristicBase},
	ChannelSensorControl:    {ServiceBand1, "00000001" + huamiCharacteristicBase},
	ChannelSensorData:       {ServiceBand1, "00000002" + huamiCharacteristicBase},
	ChannelConfiguration:    {ServiceBand1, "00000003" + huamiCharacteristicBase},
	ChannelFetch:            {ServiceBand1, "00000004" + huamiCharacteristicBase},
	ChannelActivityData:     {ServiceBand1, "00000005" + huamiCharacteristicBase},
	ChannelBattery:          {ServiceBand1, "00000006" + huamiCharacteristicBase},
	ChannelSteps:            {ServiceBand1, "00000007" + huamiCharacteristicBase},
	ChannelDeviceEvent:      {ServiceBand1, "00000010" + huamiCharacteristicBase},
	ChannelChunkedTransfer:  {ServiceBand1, "00000020" + huamiCharacteristicBase},
	ChannelCurrentTime:      {ServiceBand1, "00002a2b" + sigCharacteristicBase},
	ChannelImmediateAlert:   {ServiceImmediateAlert, "00002a06" + sigCharacteristicBase},
	ChannelNewAlert:         {ServiceAlertNotify, "00002a46" + sigCharacteristicBase},
	ChannelFirmwareControl:  {ServiceFirmwareUpdate, "00001531" + huamiCharacteristicBase},
	ChannelFirmwareData:     {ServiceFirmwareUpdate, "00001532" + huamiCharacteristicBase},
	ChannelSerialNumber:     {ServiceDeviceInfo, "00002a25" + sigCharacteristicBase},
	ChannelHardwareRevision: {ServiceDeviceInfo, "00002a27" + sigCharacteristicBase},
	ChannelSoftwareRevision: {ServiceDeviceInfo, "00002a28" + sigCharacteristicBase},
}

var channelNames = map[Channel]string{
	ChannelUnknown:          "unknown",
	ChannelAuth:             "auth",
	ChannelHeartRateMeasure: "heart_rate_measure",
	ChannelHeartRateControl: "heart_rate_control",
	ChannelSensorControl:    "sensor_control",
	ChannelSensorData:       "sensor_data",
	ChannelConfiguration:    "configuration",
	ChannelFetch:            "fetch",
	ChannelActivityData:     "activity_data",
	ChannelBattery:          "battery",
	ChannelSteps:            "steps",
	ChannelDeviceEvent:      "device_event",
	ChannelChunkedTransfer:  "chunked_transfer",
	ChannelCurrentTime:      "current_time",
	ChannelImmediateAlert:   "immediate_alert",
	ChannelNewAlert:         "new_alert",
	ChannelFirmwareControl:  "firmware_control",
	ChannelFirmwareData:     "firmware_data",
	ChannelSerialNumber:     "serial_number",
	ChannelHardwareRevision: "hardware_revision",
	ChannelSoftwareRevision: "software_revision",
}

func (c Channel) String() string {
	if name, ok := channelNames[c]; ok {
		return name
	}
	return fmt.Sprintf("channel(%d)", uint8(c))
}

// Endpoint returns the UUID pair for the channel
func (c Channel) Endpoint() (Endpoint, bool) {
	ep, ok := endpoints[c]
	return ep, ok
}

// Channels lists every known channel in declaration order
func Channels() []Channel {
	result := make([]Channel, 0, len(endpoints))
	for c := ChannelAuth; c <= ChannelSoftwareRevision; c++ {
		result = append(result, c)
	}
	return result
}
