package bundle

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"

	"github.com/dtn7/cboring"
	"github.com/howeyc/crc16"
)

// CRCType indicates which CRC type is used. Only the three defined consts
// CRCNo, CRC16 and CRC32 are valid, as specified in section 4.1.1.
type CRCType uint64

const (
	CRCNo CRCType = 0
	CRC16 CRCType = 1
	CRC32 CRCType = 2
)

// crcByteLen is the width in bytes of each CRCType's checksum value; CRCNo
// carries none.
var crcByteLen = map[CRCType]int{
	CRCNo: 0,
	CRC16: 2,
	CRC32: 4,
}

func (c CRCType) String() string {
	switch c {
	case CRCNo:
		return "no"
	case CRC16:
		return "16"
	case CRC32:
		return "32"
	default:
		return "unknown"
	}
}

var (
	crc16Table = crc16.MakeTable(crc16.CCITT)
	crc32Table = crc32.MakeTable(crc32.Castagnoli)
)

// checksum computes data's checksum for the given CRCType, in network byte
// order (big endian). CRCNo returns nil.
func checksum(crcType CRCType, data []byte) []byte {
	arr := emptyCRC(crcType)

	switch crcType {
	case CRCNo:
		return arr
	case CRC16:
		binary.BigEndian.PutUint16(arr, crc16.Checksum(data, crc16Table))
	case CRC32:
		binary.BigEndian.PutUint32(arr, crc32.Checksum(data, crc32Table))
	default:
		panic("unknown CRCType")
	}

	return arr
}

// emptyCRC returns a zeroed CRC value of the given CRCType's width.
func emptyCRC(crcType CRCType) []byte {
	n, ok := crcByteLen[crcType]
	if !ok {
		panic("unknown CRCType")
	}
	if n == 0 {
		return nil
	}
	return make([]byte, n)
}

// blockToBytes encodes a Block to a byte array based on the CBOR encoding. It
// temporary sets the present CRC value to zero. Therefore this function is not
// thread safe.
func blockToBytes(blck block) []byte {
	savedCRC := blck.getCRC()
	blck.resetCRC()
	defer blck.setCRC(savedCRC)

	buff := new(bytes.Buffer)
	_ = blck.MarshalCbor(buff)
	return buff.Bytes()
}

// calculateCRC calculates a Block's CRC value based on its CRCType. The CRC
// value will be set to zero temporary during calculation. Therefore this
// function is not thread safe.
func calculateCRC(blck block) []byte {
	return checksum(blck.GetCRCType(), blockToBytes(blck))
}

// calculateCRCBuff appends an empty CRC placeholder of crcType's width to
// buff, then returns the checksum of buff's accumulated bytes (including
// that placeholder), as required by the CRC's self-referential encoding.
func calculateCRCBuff(buff *bytes.Buffer, crcType CRCType) ([]byte, error) {
	if err := cboring.WriteByteString(emptyCRC(crcType), buff); err != nil {
		return nil, err
	}

	return checksum(crcType, buff.Bytes()), nil
}

// checkCRC returns true if the stored CRC value matches the calculated one or
// the CRC Type is none.
// This method changes the block's CRC value temporary and is not thread safe.
func checkCRC(blck block) bool {
	if !blck.HasCRC() {
		return true
	}
	return bytes.Equal(blck.getCRC(), calculateCRC(blck))
}
