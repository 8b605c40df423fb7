package vm

// ---------------------------------------------------------------------------
// Image format constants
// ---------------------------------------------------------------------------

// ImageMagic identifies a serialized sahl program.
var ImageMagic = [4]byte{'S', 'A', 'H', 'L'}

// ImageVersion is bumped on incompatible layout changes.
const ImageVersion uint16 = 1

// ImageHeaderSize is magic(4) + version(2) + flags(2) + start(4).
const ImageHeaderSize = 12

// Image flags
const (
	ImageFlagNone uint16 = 0
)

// Constant value tags. Tag numbers are independent of Kind so the in-memory
// enum can change without breaking images.
const (
	imageTagNil   byte = 0x0
	imageTagInt   byte = 0x1
	imageTagChar  byte = 0x2
	imageTagBool  byte = 0x3
	imageTagFloat byte = 0x4
	imageTagStr   byte = 0x5
	imageTagList  byte = 0x6
)

var kindToTag = [kindCount]byte{
	KindNil:   imageTagNil,
	KindInt:   imageTagInt,
	KindChar:  imageTagChar,
	KindBool:  imageTagBool,
	KindFloat: imageTagFloat,
	KindStr:   imageTagStr,
	KindList:  imageTagList,
}

var tagToKind = map[byte]Kind{
	imageTagNil:   KindNil,
	imageTagInt:   KindInt,
	imageTagChar:  KindChar,
	imageTagBool:  KindBool,
	imageTagFloat: KindFloat,
	imageTagStr:   KindStr,
	imageTagList:  KindList,
}
