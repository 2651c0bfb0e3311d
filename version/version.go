package version

var (
	// GitCommit is the current HEAD set using ldflags.
	GitCommit string

	// Version is the built softwares version.
	Version = StreamerSemVer
)

func init() {
	if GitCommit != "" {
		Version += "-" + GitCommit
	}
}

const (
	// StreamerSemVer is the current version of the streamer.
	// It's the Semantic Version of the software.
	StreamerSemVer = "0.1.0"
)

// Protocol is used for implementation agnostic versioning.
type Protocol uint64

// Uint64 returns the Protocol version as a uint64.
func (p Protocol) Uint64() uint64 {
	return uint64(p)
}

var (
	// WireProtocol versions the frames exchanged over a channel.
	WireProtocol Protocol = 1

	// VoucherProtocol versions the encoding of the signed balance and the
	// message prefix it is hashed under.
	VoucherProtocol Protocol = 1
)
