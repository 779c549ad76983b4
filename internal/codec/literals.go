package codec

// Response prefix shared by auth, fetch and firmware control notifications
const ResponsePrefix byte = 0x10

// Response status bytes
const (
	StatusSuccess byte = 0x01
	StatusFailure byte = 0x04
)

// Auth commands
const (
	authCmdSendKey       byte = 0x01
	authCmdRequestRandom byte = 0x02
	authCmdSendEncrypted byte = 0x03
	authFlags            byte = 0x00
)

// Heart rate control point commands
var (
	hrStopContinuous  = []byte{0x15, 0x01, 0x00}
	hrStopManual      = []byte{0x15, 0x02, 0x00}
	hrStartManual     = []byte{0x15, 0x02, 0x01}
	hrStartContinuous = []byte{0x15, 0x01, 0x01}
	hrPing            = []byte{0x16}
)

// Sensor control commands
var (
	sensorEnableRaw = []byte{0x01, 0x03, 0x19}
	sensorStart     = []byte{0x02}
	sensorStop      = []byte{0x03}
)

// Fetch commands
var (
	fetchTriggerPrefix = []byte{0x01, 0x01}
	fetchAck           = []byte{0x02}
)

// Firmware control commands
const (
	FirmwareCmdCompletion byte = 0x00
	FirmwareCmdStart      byte = 0x01
	FirmwareCmdBeginData  byte = 0x03
	FirmwareCmdChecksum   byte = 0x04
	FirmwareCmdReboot     byte = 0x05

	firmwareStartKind byte = 0x08
)

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// RequestRandomNumber returns 0x02 0x00
func RequestRandomNumber() []byte { return []byte{authCmdRequestRandom, authFlags} }

// HeartRateStopContinuous returns 0x15 0x01 0x00
func HeartRateStopContinuous() []byte { return clone(hrStopContinuous) }

// HeartRateStopManual returns 0x15 0x02 0x00
func HeartRateStopManual() []byte { return clone(hrStopManual) }

// HeartRateStartManual returns 0x15 0x02 0x01
func HeartRateStartManual() []byte { return clone(hrStartManual) }

// HeartRateStartContinuous returns 0x15 0x01 0x01
func HeartRateStartContinuous() []byte { return clone(hrStartContinuous) }

// HeartRatePing returns the 0x16 keep-alive
func HeartRatePing() []byte { return clone(hrPing) }

func SensorEnableRaw() []byte { return clone(sensorEnableRaw) }
func SensorStart() []byte     { return clone(sensorStart) }
func SensorStop() []byte      { return clone(sensorStop) }

// FetchAck returns the single 0x02 acknowledgment byte
func FetchAck() []byte { return clone(fetchAck) }

// FirmwareCompletion returns the 0x00 completion frame
func FirmwareCompletion() []byte { return []byte{FirmwareCmdCompletion} }

// FirmwareChecksum returns the 0x04 checksum validation frame
func FirmwareChecksum() []byte { return []byte{FirmwareCmdChecksum} }

// FirmwareReboot returns the 0x05 reboot frame
func FirmwareReboot() []byte { return []byte{FirmwareCmdReboot} }

// FirmwareBeginData returns the 0x03 0x01 acknowledgment that opens the data phase
func FirmwareBeginData() []byte { return []byte{FirmwareCmdBeginData, StatusSuccess} }
