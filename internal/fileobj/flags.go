package fileobj

// Flag is the open-flag bitmask from spec.md §4.3 / file.h's FileFlag.
type Flag uint32

const (
	FlagReadOnly Flag = 1 << iota
	FlagWriteOnly
	FlagReadWrite
	FlagAppend
	FlagCreate
	FlagExclusive
	FlagNonBlocking
	FlagTruncate
	FlagTemporary // requires Create|Exclusive
	FlagReplace   // requires Create; synonym for Create|Truncate with rename-into-place
)

const flagAll = FlagReadOnly | FlagWriteOnly | FlagReadWrite | FlagAppend |
	FlagCreate | FlagExclusive | FlagNonBlocking | FlagTruncate |
	FlagTemporary | FlagReplace

// accessMask is the set of mutually-exclusive access-mode bits.
const accessMask = FlagReadOnly | FlagWriteOnly | FlagReadWrite

func (f Flag) has(bit Flag) bool { return f&bit != 0 }

// validate enforces spec.md §4.3's flag legality: exactly one access mode,
// Temporary requires Create+Exclusive, Replace requires Create (§9's
// "replace" open question: treated as a synonym for create|truncate with
// rename-into-place).
func (f Flag) validate() bool {
	if f & ^flagAll != 0 {
		return false
	}

	access := f & accessMask
	if access != FlagReadOnly && access != FlagWriteOnly && access != FlagReadWrite {
		return false
	}

	if f.has(FlagTemporary) && !(f.has(FlagCreate) && f.has(FlagExclusive)) {
		return false
	}

	if f.has(FlagReplace) && !f.has(FlagCreate) {
		return false
	}

	return true
}

// PipeFlag is the bitmask applied independently to each end of an unnamed
// pipe (spec.md: "non-blocking-read and non-blocking-write bits").
type PipeFlag uint32

const (
	PipeFlagNonBlockingRead PipeFlag = 1 << iota
	PipeFlagNonBlockingWrite
)

// Origin mirrors POSIX lseek's whence argument (spec.md §4.3).
type Origin uint8

const (
	OriginBeginning Origin = iota
	OriginCurrent
	OriginEnd
)

// Kind distinguishes a regular OS file from an in-daemon unnamed pipe.
type Kind uint8

const (
	KindRegular Kind = iota
	KindPipe
)
