package monitor

// Register describes one readable converter register and how to interpret
// its 16-bit value.
type Register struct {
	// Name labels the register in readings and CSV columns.
	Name string

	// Register is the in-device register address.
	Register byte

	// Scale and Offset convert the signed raw value to engineering units:
	// value = raw*Scale + Offset.
	Scale  float64
	Offset float64

	// Raw marks a register whose value is reported as-is (counter or
	// status word) rather than scaled.
	Raw bool
}

// DefaultSlaveAddress is the LVDC4816 converter's write address on the
// reference bench.
const DefaultSlaveAddress = 0xC8

// LVDC4816Registers returns the telemetry register set of the LVDC4816
// DC-DC converter. Electrical quantities are 1/32 LSB; temperatures carry a
// -40 degree offset.
func LVDC4816Registers() []Register {
	return []Register{
		{Name: "HV_V", Register: 0x88, Scale: 1.0 / 32},
		{Name: "LV_V", Register: 0x8B, Scale: 1.0 / 32},
		{Name: "I1_A", Register: 0x90, Scale: 1.0 / 32},
		{Name: "I2_A", Register: 0x8C, Scale: 1.0 / 32},
		{Name: "Temp1_C", Register: 0x8D, Scale: 1.0 / 32, Offset: -40},
		{Name: "Temp2_C", Register: 0x8E, Scale: 1.0 / 32, Offset: -40},
		{Name: "I1_CNT", Register: 0xCD, Raw: true},
		{Name: "DUT_Status", Register: 0x79, Raw: true},
	}
}
