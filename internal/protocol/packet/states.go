package packet

import "fmt"

// MaxDecodersPerPacket is the number of decoder bits a single state vector
// can carry, and therefore the maximum number of decoders per device.
const MaxDecodersPerPacket = 64

// StateVector is a bit-packed vector indexed by decoder index. On the wire
// bit i lives in byte i/8 at bit position i%8.
type StateVector uint64

// Test reports whether bit i is set. Out of range indices report false.
func (v StateVector) Test(i int) bool {
	if i < 0 || i >= MaxDecodersPerPacket {
		return false
	}
	return v&(1<<uint(i)) != 0
}

// Set sets bit i to on. Out of range indices are ignored.
func (v *StateVector) Set(i int, on bool) {
	if i < 0 || i >= MaxDecodersPerPacket {
		return
	}
	if on {
		*v |= 1 << uint(i)
	} else {
		*v &^= 1 << uint(i)
	}
}

// Any reports whether any bit is set.
func (v StateVector) Any() bool {
	return v != 0
}

// String renders the vector as hex for logging.
func (v StateVector) String() string {
	return fmt.Sprintf("%#016x", uint64(v))
}
