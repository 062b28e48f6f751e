// loader.go - executable recognition and program load: raw .COM images
// and MZ-header segmented executables.
//
// Field layout and the fixed PSP startup register values are grounded
// on original_source/src/machine.rs's load_com/load_exe; the fixed-
// offset header parse with explicit LittleEndian field reads and
// fmt.Errorf validation follows the teacher's sid_parser.go
// convention for structured binary headers.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package x86core

import (
	"encoding/binary"
	"fmt"
)

// Fixed PSP/segment layout used for every loaded program. The loader
// never relocates this; programs requiring a different memory map are
// out of scope.
const (
	pspSegment  = 0x085F
	pspSize     = 0x100
	loadSegment = pspSegment // .COM images go at offset 0x100, right after the PSP; MZ load images go at offset 0, over the PSP area
)

// mzHeader is the 14 little-endian words at the front of an MZ
// executable, minus the signature word (checked separately). Every
// field is named and parsed, including ones the loader does not act on
// (allocation sizes, checksum, overlay number).
type mzHeader struct {
	lastPageBytes  uint16
	pages          uint16
	relocCount     uint16
	headerParas    uint16
	minAlloc       uint16
	maxAlloc       uint16
	initSS         uint16
	initSP         uint16
	checksum       uint16
	initIP         uint16
	initCS         uint16
	relocTableOff  uint16
	overlayNumber  uint16
}

const mzHeaderSize = 28 // 14 words through overlayNumber

func parseMZHeader(data []byte) (mzHeader, error) {
	if len(data) < mzHeaderSize {
		return mzHeader{}, fmt.Errorf("loader: truncated MZ header (%d bytes)", len(data))
	}
	get16 := func(off int) uint16 { return binary.LittleEndian.Uint16(data[off:]) }
	return mzHeader{
		lastPageBytes: get16(2),
		pages:         get16(4),
		relocCount:    get16(6),
		headerParas:   get16(8),
		minAlloc:      get16(10),
		maxAlloc:      get16(12),
		initSS:        get16(14),
		initSP:        get16(16),
		checksum:      get16(18),
		initIP:        get16(20),
		initCS:        get16(22),
		relocTableOff: get16(24),
		overlayNumber: get16(26),
	}, nil
}

// isMZExecutable reports whether data begins with the "MZ" (or the
// historically-tolerated "ZM") signature.
func isMZExecutable(data []byte) bool {
	if len(data) < 2 {
		return false
	}
	return (data[0] == 'M' && data[1] == 'Z') || (data[0] == 'Z' && data[1] == 'M')
}

// LoadResult carries the register values the loader computed so the
// caller (machine.go) can seed the register file.
type LoadResult struct {
	CS, IP, SS, SP, DS, ES uint16
	CX, DX, SI, DI, BP     uint16
}

// pspDefaults are the register values DOS seeds for every loaded
// program regardless of COM vs. MZ shape (spec.md §4.6); an MZ load
// only overrides CS/IP/SS/SP afterwards.
func pspDefaults() LoadResult {
	return LoadResult{
		CX: 0x00FF, DX: loadSegment,
		SI: 0x0100, DI: 0xFFFE, BP: 0x091C,
	}
}

// LoadExecutable recognizes data as either a raw .COM image or an MZ
// executable and writes it into memory at the fixed load segment,
// returning the startup register values. Malformed MZ headers report
// ExecutableMalformed via the returned error.
func LoadExecutable(mmu *MMU, data []byte) (LoadResult, error) {
	if isMZExecutable(data) {
		return loadMZ(mmu, data)
	}
	return loadCOM(mmu, data)
}

// loadCOM places a raw .COM image at loadSegment:0x100, the fixed
// convention carried over from MS-DOS. CX, DX, SI, DI, BP get the
// documented PSP-derived values; flags are left at the caller's
// HardReset default.
func loadCOM(mmu *MMU, data []byte) (LoadResult, error) {
	const comEntryOffset = 0x0100
	if len(data) > MemorySize-int(ToFlat(loadSegment, comEntryOffset)) {
		return LoadResult{}, fmt.Errorf("loader: .COM image too large (%d bytes)", len(data))
	}
	mmu.Write(loadSegment, comEntryOffset, data)
	r := pspDefaults()
	r.CS, r.IP = loadSegment, comEntryOffset
	r.SS, r.SP = loadSegment, 0xFFFE
	r.DS, r.ES = loadSegment, loadSegment
	return r, nil
}

// loadMZ parses the MZ header, copies the load image starting right
// after the header into memory at loadSegment, applies every entry in
// the relocation table (the original only applied the first entry and
// crashed on multi-segment programs as a result; see SPEC_FULL.md §1),
// and returns the header's initCS/initIP/initSS/initSP translated into
// the fixed load segment.
func loadMZ(mmu *MMU, data []byte) (LoadResult, error) {
	hdr, err := parseMZHeader(data)
	if err != nil {
		return LoadResult{}, err
	}
	headerBytes := int(hdr.headerParas) * 16
	if headerBytes <= 0 || headerBytes > len(data) {
		return LoadResult{}, fmt.Errorf("loader: MZ header_paragraphs out of range (%d)", hdr.headerParas)
	}

	imageSize := int(hdr.pages) * 512
	if hdr.lastPageBytes != 0 {
		imageSize -= 512 - int(hdr.lastPageBytes)
	}
	imageSize -= headerBytes
	if imageSize < 0 || headerBytes+imageSize > len(data) {
		return LoadResult{}, fmt.Errorf("loader: MZ image size inconsistent with file length")
	}

	image := data[headerBytes : headerBytes+imageSize]
	if len(image) > MemorySize-int(ToFlat(loadSegment, 0)) {
		return LoadResult{}, fmt.Errorf("loader: MZ image too large (%d bytes)", len(image))
	}
	mmu.Write(loadSegment, 0, image)

	relocTableOff := int(hdr.relocTableOff)
	for i := 0; i < int(hdr.relocCount); i++ {
		entryOff := relocTableOff + i*4
		if entryOff+4 > len(data) {
			return LoadResult{}, fmt.Errorf("loader: relocation table entry %d out of range", i)
		}
		relocOffset := binary.LittleEndian.Uint16(data[entryOff:])
		relocSegment := binary.LittleEndian.Uint16(data[entryOff+2:])

		targetSeg := loadSegment + relocSegment
		existing := mmu.ReadU16(targetSeg, relocOffset)
		mmu.WriteU16(targetSeg, relocOffset, existing+loadSegment)
	}

	r := pspDefaults()
	r.CS, r.IP = loadSegment+hdr.initCS, hdr.initIP
	r.SS, r.SP = loadSegment+hdr.initSS, hdr.initSP
	r.DS, r.ES = loadSegment, loadSegment
	return r, nil
}
