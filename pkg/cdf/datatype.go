package cdf

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// DataType is a CDF data type code as stored in VDR and AEDR records.
type DataType int32

const (
	INT1    DataType = 1
	INT2    DataType = 2
	INT4    DataType = 4
	INT8    DataType = 8
	UINT1   DataType = 11
	UINT2   DataType = 12
	UINT4   DataType = 14
	REAL4   DataType = 21
	REAL8   DataType = 22
	EPOCH   DataType = 31
	EPOCH16 DataType = 32
	TT2000  DataType = 33
	BYTE    DataType = 41
	FLOAT   DataType = 44
	DOUBLE  DataType = 45
	CHAR    DataType = 51
	UCHAR   DataType = 52
)

// Size returns the on-disk width of a single element in bytes. CHAR and
// UCHAR elements are single bytes; a value spans NumElems of them.
func (t DataType) Size() int {
	switch t {
	case INT1, UINT1, BYTE, CHAR, UCHAR:
		return 1
	case INT2, UINT2:
		return 2
	case INT4, UINT4, REAL4, FLOAT:
		return 4
	case INT8, REAL8, EPOCH, TT2000, DOUBLE:
		return 8
	case EPOCH16:
		return 16
	default:
		return 0
	}
}

// Valid reports whether t is one of the enumerated type codes.
func (t DataType) Valid() bool { return t.Size() != 0 }

// IsString reports whether values of t are carried as character data.
func (t DataType) IsString() bool { return t == CHAR || t == UCHAR }

// IsEpoch reports whether t is one of the three time scales.
func (t DataType) IsEpoch() bool { return t == EPOCH || t == EPOCH16 || t == TT2000 }

func (t DataType) String() string {
	switch t {
	case INT1:
		return "CDF_INT1"
	case INT2:
		return "CDF_INT2"
	case INT4:
		return "CDF_INT4"
	case INT8:
		return "CDF_INT8"
	case UINT1:
		return "CDF_UINT1"
	case UINT2:
		return "CDF_UINT2"
	case UINT4:
		return "CDF_UINT4"
	case REAL4:
		return "CDF_REAL4"
	case REAL8:
		return "CDF_REAL8"
	case EPOCH:
		return "CDF_EPOCH"
	case EPOCH16:
		return "CDF_EPOCH16"
	case TT2000:
		return "CDF_TIME_TT2000"
	case BYTE:
		return "CDF_BYTE"
	case FLOAT:
		return "CDF_FLOAT"
	case DOUBLE:
		return "CDF_DOUBLE"
	case CHAR:
		return "CDF_CHAR"
	case UCHAR:
		return "CDF_UCHAR"
	default:
		return "CDF_UNKNOWN"
	}
}

// DataTypeByName resolves a CDF_* type name back to its code.
func DataTypeByName(name string) (DataType, bool) {
	for _, t := range []DataType{INT1, INT2, INT4, INT8, UINT1, UINT2, UINT4,
		REAL4, REAL8, EPOCH, EPOCH16, TT2000, BYTE, FLOAT, DOUBLE, CHAR, UCHAR} {
		if strings.EqualFold(t.String(), name) {
			return t, true
		}
	}
	return 0, false
}

// DefaultPadBytes returns the format's default pad value for t, encoded
// in the given byte order. String types pad with spaces.
func (t DataType) DefaultPadBytes(numElems int, order binary.ByteOrder) []byte {
	switch t {
	case INT1, BYTE:
		return []byte{byte(int8(-127))}
	case INT2:
		b := make([]byte, 2)
		order.PutUint16(b, uint16(int16(-32767)))
		return b
	case INT4:
		b := make([]byte, 4)
		order.PutUint32(b, uint32(int32(-2147483647)))
		return b
	case INT8, TT2000:
		b := make([]byte, 8)
		order.PutUint64(b, uint64(int64(-9223372036854775807)))
		return b
	case UINT1:
		return []byte{254}
	case UINT2:
		b := make([]byte, 2)
		order.PutUint16(b, 65534)
		return b
	case UINT4:
		b := make([]byte, 4)
		order.PutUint32(b, 4294967294)
		return b
	case REAL4, FLOAT:
		return encodeF32(-1.0e30, order)
	case REAL8, DOUBLE, EPOCH:
		return encodeF64(-1.0e30, order)
	case EPOCH16:
		b := make([]byte, 0, 16)
		b = append(b, encodeF64(-1.0e30, order)...)
		return append(b, encodeF64(-1.0e30, order)...)
	case CHAR, UCHAR:
		b := make([]byte, numElems)
		for i := range b {
			b[i] = ' '
		}
		return b
	default:
		return nil
	}
}

// Encoding is a CDF data encoding code from the CDR.
type Encoding int32

const (
	NetworkEncoding    Encoding = 1
	SunEncoding        Encoding = 2
	DecstationEncoding Encoding = 3
	IBMPCEncoding      Encoding = 4
	NeXTEncoding       Encoding = 5
	HPEncoding         Encoding = 6
	VAXEncoding        Encoding = 7
	HostEncoding       Encoding = 8
	MacEncoding        Encoding = 9
	SGiEncoding        Encoding = 11
	IBMRSEncoding      Encoding = 12
	AlphaVMSdEncoding  Encoding = 13
	AlphaVMSgEncoding  Encoding = 14
	AlphaOSF1Encoding  Encoding = 15
	AlphaVMSiEncoding  Encoding = 16
	ARMLittleEncoding  Encoding = 17
)

// Resolve replaces HostEncoding with the concrete encoding of the
// running platform.
func (e Encoding) Resolve() Encoding {
	if e != HostEncoding {
		return e
	}
	if hostBigEndian() {
		return NetworkEncoding
	}
	return IBMPCEncoding
}

// ByteOrder returns the byte order that values under encoding e use.
// Encodings 3, 14 and 15 carry non-IEEE float layouts and are rejected.
func (e Encoding) ByteOrder() (binary.ByteOrder, error) {
	switch e {
	case NetworkEncoding, SunEncoding, NeXTEncoding, MacEncoding,
		SGiEncoding, IBMRSEncoding:
		return binary.BigEndian, nil
	case IBMPCEncoding, HPEncoding, VAXEncoding, AlphaVMSdEncoding,
		AlphaVMSiEncoding, ARMLittleEncoding:
		return binary.LittleEndian, nil
	case HostEncoding:
		return e.Resolve().ByteOrder()
	case DecstationEncoding, AlphaVMSgEncoding, AlphaOSF1Encoding:
		return nil, ErrUnsupportedEncoding
	default:
		return nil, ErrUnsupportedEncoding
	}
}

func hostBigEndian() bool {
	return binary.NativeEndian.Uint16([]byte{0x12, 0x34}) == 0x1234
}

func (e Encoding) String() string {
	switch e {
	case NetworkEncoding:
		return "NETWORK"
	case SunEncoding:
		return "SUN"
	case DecstationEncoding:
		return "DECSTATION"
	case IBMPCEncoding:
		return "IBMPC"
	case NeXTEncoding:
		return "NeXT"
	case HPEncoding:
		return "HP"
	case VAXEncoding:
		return "VAX"
	case HostEncoding:
		return "HOST"
	case MacEncoding:
		return "MAC"
	case SGiEncoding:
		return "SGi"
	case IBMRSEncoding:
		return "IBMRS"
	case AlphaVMSdEncoding:
		return "ALPHAVMSd"
	case AlphaVMSgEncoding:
		return "ALPHAVMSg"
	case AlphaOSF1Encoding:
		return "ALPHAOSF1"
	case AlphaVMSiEncoding:
		return "ALPHAVMSi"
	case ARMLittleEncoding:
		return "ARM_LITTLE"
	default:
		return fmt.Sprintf("ENCODING_%d", int32(e))
	}
}

// Majority is the storage order of multi-dimensional records.
type Majority int

const (
	RowMajor    Majority = 1
	ColumnMajor Majority = 2
)

func (m Majority) String() string {
	if m == ColumnMajor {
		return "Column_major"
	}
	return "Row_major"
}

// SparseMode is a variable's sparse-record policy.
type SparseMode int32

const (
	// NoSparse stores every record physically.
	NoSparse SparseMode = 0
	// PadSparse synthesizes missing records from the pad value.
	PadSparse SparseMode = 1
	// PrevSparse synthesizes missing records from the closest preceding
	// physical record, falling back to pad when there is none.
	PrevSparse SparseMode = 2
)

func (s SparseMode) String() string {
	switch s {
	case PadSparse:
		return "Pad_sparse"
	case PrevSparse:
		return "Prev_sparse"
	default:
		return "No_sparse"
	}
}
