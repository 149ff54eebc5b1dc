// Package checksum computes the CRC-16/XMODEM used to verify NVM regions.
package checksum

import "github.com/sigurn/crc16"

var table = crc16.MakeTable(crc16.CRC16_XMODEM)

func CRC16(data []byte) uint16 {
	return crc16.Checksum(data, table)
}

// PageSum is the checksum of the part of one page covered by a region.
type PageSum struct {
	Addr uint32 `json:"addr"`
	CRC  uint16 `json:"crc"`
}

// Pages splits data, which starts at addr, at page boundaries and returns
// one checksum per page. The first and last slices may cover only part of
// their page.
func Pages(addr uint32, data []byte, pageSize int) []PageSum {
	var result []PageSum
	for start := 0; start < len(data); {
		n := pageSize - int(addr%uint32(pageSize))
		end := min(start+n, len(data))
		result = append(result, PageSum{Addr: addr, CRC: CRC16(data[start:end])})
		addr += uint32(end - start)
		start = end
	}
	return result
}
