package record

import "github.com/leftmike/frankensqlite/dberr"

// File header layout: the first 100 bytes of the main database file.
// Multi-byte integers are big-endian.
const (
	FileHeaderSize = 100
	Magic          = "SQLite format 3\x00"

	offPageSize        = 16
	offWriteVersion    = 18
	offReadVersion     = 19
	offReservedBytes   = 20
	offMaxPayloadFrac  = 21
	offMinPayloadFrac  = 22
	offLeafPayloadFrac = 23
	offChangeCounter   = 24
	offDBSizePages     = 28
	offFreelistTrunk   = 32
	offFreelistCount   = 36
	offSchemaCookie    = 40
	offSchemaFormat    = 44
	offDefaultCache    = 48
	offLargestRoot     = 52
	offTextEncoding    = 56
	offUserVersion     = 60
	offIncrVacuum      = 64
	offApplicationID   = 68
	offVersionValidFor = 92
	offWriterVersion   = 96
)

// FileHeader is the decoded form of the first 100 bytes of the database
// file.
type FileHeader struct {
	PageSize         uint32
	WriteVersion     byte
	ReadVersion      byte
	ReservedBytes    byte
	ChangeCounter    uint32
	SizeInPages      uint32
	FreelistTrunk    uint32
	FreelistCount    uint32
	SchemaCookie     uint32
	SchemaFormat     uint32
	DefaultCacheSize uint32
	LargestRoot      uint32
	TextEncoding     uint32
	UserVersion      uint32
	IncrVacuum       uint32
	ApplicationID    uint32
	VersionValidFor  uint32
	WriterVersion    uint32
}

func putU32(buf []byte, off int, v uint32) {
	buf[off] = byte(v >> 24)
	buf[off+1] = byte(v >> 16)
	buf[off+2] = byte(v >> 8)
	buf[off+3] = byte(v)
}

func getU32(buf []byte, off int) uint32 {
	return uint32(buf[off])<<24 | uint32(buf[off+1])<<16 | uint32(buf[off+2])<<8 | uint32(buf[off+3])
}

// EncodeFileHeader writes fh into the first 100 bytes of page.
func EncodeFileHeader(page []byte, fh *FileHeader) {
	copy(page[0:16], Magic)
	if fh.PageSize == 65536 {
		page[offPageSize] = 0
		page[offPageSize+1] = 1
	} else {
		page[offPageSize] = byte(fh.PageSize >> 8)
		page[offPageSize+1] = byte(fh.PageSize)
	}
	page[offWriteVersion] = fh.WriteVersion
	page[offReadVersion] = fh.ReadVersion
	page[offReservedBytes] = fh.ReservedBytes
	page[offMaxPayloadFrac] = 64
	page[offMinPayloadFrac] = 32
	page[offLeafPayloadFrac] = 32
	putU32(page, offChangeCounter, fh.ChangeCounter)
	putU32(page, offDBSizePages, fh.SizeInPages)
	putU32(page, offFreelistTrunk, fh.FreelistTrunk)
	putU32(page, offFreelistCount, fh.FreelistCount)
	putU32(page, offSchemaCookie, fh.SchemaCookie)
	putU32(page, offSchemaFormat, fh.SchemaFormat)
	putU32(page, offDefaultCache, fh.DefaultCacheSize)
	putU32(page, offLargestRoot, fh.LargestRoot)
	putU32(page, offTextEncoding, fh.TextEncoding)
	putU32(page, offUserVersion, fh.UserVersion)
	putU32(page, offIncrVacuum, fh.IncrVacuum)
	putU32(page, offApplicationID, fh.ApplicationID)
	putU32(page, offVersionValidFor, fh.VersionValidFor)
	putU32(page, offWriterVersion, fh.WriterVersion)
}

// DecodeFileHeader parses the first 100 bytes of page, validating the magic
// string and the two fixed payload-fraction bytes.
func DecodeFileHeader(page []byte) (*FileHeader, error) {
	if len(page) < FileHeaderSize {
		return nil, dberr.New(dberr.ShortRead, "file header: %d bytes, want %d", len(page),
			FileHeaderSize)
	}
	if string(page[0:16]) != Magic {
		return nil, dberr.New(dberr.Corrupt, "bad magic")
	}
	if page[offMaxPayloadFrac] != 64 || page[offMinPayloadFrac] != 32 ||
		page[offLeafPayloadFrac] != 32 {
		return nil, dberr.New(dberr.Corrupt, "bad payload fraction bytes")
	}
	ps := uint32(page[offPageSize])<<8 | uint32(page[offPageSize+1])
	if ps == 1 {
		ps = 65536
	}
	return &FileHeader{
		PageSize:         ps,
		WriteVersion:     page[offWriteVersion],
		ReadVersion:      page[offReadVersion],
		ReservedBytes:    page[offReservedBytes],
		ChangeCounter:    getU32(page, offChangeCounter),
		SizeInPages:      getU32(page, offDBSizePages),
		FreelistTrunk:    getU32(page, offFreelistTrunk),
		FreelistCount:    getU32(page, offFreelistCount),
		SchemaCookie:     getU32(page, offSchemaCookie),
		SchemaFormat:     getU32(page, offSchemaFormat),
		DefaultCacheSize: getU32(page, offDefaultCache),
		LargestRoot:      getU32(page, offLargestRoot),
		TextEncoding:     getU32(page, offTextEncoding),
		UserVersion:      getU32(page, offUserVersion),
		IncrVacuum:       getU32(page, offIncrVacuum),
		ApplicationID:    getU32(page, offApplicationID),
		VersionValidFor:  getU32(page, offVersionValidFor),
		WriterVersion:    getU32(page, offWriterVersion),
	}, nil
}

// B-tree page types.
const (
	PageInteriorTable = 0x05
	PageLeafTable     = 0x0D
	PageInteriorIndex = 0x02
	PageLeafIndex     = 0x0A
)

// BTreePageHeaderSize returns the header size for a page of the given type:
// 12 bytes for interior pages (they carry a rightmost-child pointer), 8 for
// leaf pages.
func BTreePageHeaderSize(pageType byte) int {
	if pageType == PageInteriorTable || pageType == PageInteriorIndex {
		return 12
	}
	return 8
}

// BTreePageHeader is the decoded 8- or 12-byte B-tree page header.
type BTreePageHeader struct {
	PageType        byte
	FirstFreeblock  uint16
	CellCount       uint16
	CellContentArea uint16
	FragmentedFree  byte
	RightmostChild  uint32 // interior pages only
}

func EncodeBTreePageHeader(buf []byte, h *BTreePageHeader) {
	buf[0] = h.PageType
	buf[1] = byte(h.FirstFreeblock >> 8)
	buf[2] = byte(h.FirstFreeblock)
	buf[3] = byte(h.CellCount >> 8)
	buf[4] = byte(h.CellCount)
	buf[5] = byte(h.CellContentArea >> 8)
	buf[6] = byte(h.CellContentArea)
	buf[7] = h.FragmentedFree
	if h.PageType == PageInteriorTable || h.PageType == PageInteriorIndex {
		putU32(buf, 8, h.RightmostChild)
	}
}

func DecodeBTreePageHeader(buf []byte) (*BTreePageHeader, error) {
	if len(buf) < 8 {
		return nil, dberr.New(dberr.ShortRead, "btree page header: %d bytes", len(buf))
	}
	h := &BTreePageHeader{
		PageType:        buf[0],
		FirstFreeblock:  uint16(buf[1])<<8 | uint16(buf[2]),
		CellCount:       uint16(buf[3])<<8 | uint16(buf[4]),
		CellContentArea: uint16(buf[5])<<8 | uint16(buf[6]),
		FragmentedFree:  buf[7],
	}
	switch h.PageType {
	case PageInteriorTable, PageInteriorIndex:
		if len(buf) < 12 {
			return nil, dberr.New(dberr.ShortRead, "interior page header: %d bytes", len(buf))
		}
		h.RightmostChild = getU32(buf, 8)
	case PageLeafTable, PageLeafIndex:
	default:
		return nil, dberr.New(dberr.Corrupt, "unknown page type 0x%02x", h.PageType)
	}
	return h, nil
}
